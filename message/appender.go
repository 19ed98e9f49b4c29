// Package message
// Author: momentics <momentics@gmail.com>
//
// Reassembly of application messages from frame payloads. One Appender owns
// one in-progress message; the dispatcher opens it on the first frame and
// discards it after Complete.
//
// Simple appenders buffer the whole message and deliver it once. Stream
// appenders hand the application a live reader on the first Append and keep
// feeding the same bounded buffer until Complete.

package message

import (
	"github.com/momentics/hioload-wsmsg/api"
	"github.com/momentics/hioload-wsmsg/control"
)

// Appender accepts successive payload chunks of one message.
type Appender interface {
	// Append adds a chunk. It fails with api.ErrMessageTooLarge before
	// buffering when the message would exceed the policy ceiling, with
	// api.ErrInvalidEncoding on malformed text, and with
	// api.ErrAppenderClosed after Complete or Abort.
	Append(payload []byte) error

	// Complete ends the message and triggers final delivery or end of
	// stream. A second call fails with api.ErrAppenderClosed.
	Complete() error

	// Abort drops the message because the connection is going away.
	// Stream consumers still waiting for data see io.ErrUnexpectedEOF.
	Abort()
}

// Interrupter is implemented by appenders whose consumer runs on another
// goroutine. Interrupt may be called concurrently with Append and wakes a
// producer blocked on backpressure.
type Interrupter interface {
	Interrupt()
}

// Options carries what every appender needs from its connection.
type Options struct {
	Policy *control.Policy

	// Executor runs stream consumers. Nil means api.GoExecutor.
	Executor api.Executor

	// Recover receives a panic raised by a stream consumer.
	Recover func(v any)

	// Blocked is called each time a producer waits on a full stream buffer.
	Blocked func()
}

func (o Options) executor() api.Executor {
	if o.Executor == nil {
		return api.GoExecutor
	}
	return o.Executor
}

// sizeGuard tracks the accumulated size and the finished flag shared by
// all variants.
type sizeGuard struct {
	policy   *control.Policy
	size     int64
	finished bool
}

// admit checks a chunk without committing it.
func (g *sizeGuard) admit(n int) error {
	if g.finished {
		return api.NewError(api.ErrCodeAppenderClosed, "cannot append to finished buffer")
	}
	return g.policy.AssertValidMessageSize(g.size + int64(n))
}

func (g *sizeGuard) commit(n int) {
	g.size += int64(n)
}

// finish flips the finished flag, failing when it was already set.
func (g *sizeGuard) finish() error {
	if g.finished {
		return api.NewError(api.ErrCodeAppenderClosed, "message already completed")
	}
	g.finished = true
	return nil
}

// Size returns the number of payload bytes accepted so far.
func (g *sizeGuard) Size() int64 { return g.size }
