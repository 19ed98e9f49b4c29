// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors for frame dispatch, message delivery and
// connection termination.

package control

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hioload",
			Subsystem: "ws",
			Name:      "frames_total",
			Help:      "Frames handed to the dispatcher, by opcode.",
		},
		[]string{"opcode"},
	)
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hioload",
			Subsystem: "ws",
			Name:      "messages_total",
			Help:      "Messages delivered to endpoints, by content kind and delivery mode.",
		},
		[]string{"kind", "mode"},
	)
	terminationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hioload",
			Subsystem: "ws",
			Name:      "terminations_total",
			Help:      "Locally initiated connection terminations, by close status code.",
		},
		[]string{"code"},
	)
	streamBlockedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hioload",
			Subsystem: "ws",
			Name:      "stream_blocked_total",
			Help:      "Times a frame producer waited on a full streaming buffer.",
		},
	)
)

// RegisterMetrics registers the collectors with the default registry.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesTotal, messagesTotal, terminationsTotal, streamBlockedTotal)
	})
}

// RecordFrame counts a dispatched frame.
func RecordFrame(opcode string) {
	framesTotal.WithLabelValues(opcode).Inc()
}

// RecordMessage counts a delivered message (or opened stream).
func RecordMessage(kind, mode string) {
	messagesTotal.WithLabelValues(kind, mode).Inc()
}

// RecordTermination counts a locally initiated close.
func RecordTermination(code int) {
	terminationsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
}

// RecordStreamBlocked counts a producer suspension.
func RecordStreamBlocked() {
	streamBlockedTotal.Inc()
}

// FramesCounter exposes the frames collector for inspection.
func FramesCounter() *prometheus.CounterVec { return framesTotal }

// MessagesCounter exposes the messages collector for inspection.
func MessagesCounter() *prometheus.CounterVec { return messagesTotal }

// TerminationsCounter exposes the terminations collector for inspection.
func TerminationsCounter() *prometheus.CounterVec { return terminationsTotal }

// StreamBlockedCounter exposes the producer suspension counter.
func StreamBlockedCounter() prometheus.Counter { return streamBlockedTotal }
