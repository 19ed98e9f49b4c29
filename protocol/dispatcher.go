// File: protocol/dispatcher.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Frame dispatcher: routes decoded frames of one connection to the endpoint,
// reassembles fragmented messages, answers control frames and owns the
// connection lifecycle. Every failure raised while handling a frame ends in
// exactly one termination.

package protocol

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-wsmsg/api"
	"github.com/momentics/hioload-wsmsg/control"
	"github.com/momentics/hioload-wsmsg/internal/logging"
	"github.com/momentics/hioload-wsmsg/message"
)

// Dispatcher is fed by a single goroutine through Dispatch. Terminate,
// Abandon and Status may be called from any goroutine, including from
// inside endpoint callbacks. OnError and OnClose may run on the goroutine
// that triggered them: a stream consumer or a Terminate caller.
type Dispatcher struct {
	policy   *control.Policy
	endpoint api.Endpoint
	sender   api.FrameSender
	executor api.Executor
	log      zerolog.Logger

	state   atomic.Int32
	tracker continuationTracker
	active  message.Appender

	// interrupter of the active stream appender, reachable from Terminate.
	activeMu    sync.Mutex
	interrupter message.Interrupter

	openOnce  sync.Once
	closeOnce sync.Once
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithExecutor sets where stream consumers run.
func WithExecutor(e api.Executor) DispatcherOption {
	return func(d *Dispatcher) {
		if e != nil {
			d.executor = e
		}
	}
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

// NewDispatcher binds endpoint and sender under a copy of policy. A nil
// endpoint declares no interest in anything.
func NewDispatcher(policy *control.Policy, endpoint *api.Endpoint, sender api.FrameSender, opts ...DispatcherOption) (*Dispatcher, error) {
	if policy == nil {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "policy is required")
	}
	if sender == nil {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "frame sender is required")
	}
	p := policy.Clone()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	d := &Dispatcher{
		policy:   p,
		sender:   sender,
		executor: api.GoExecutor,
		log:      logging.New("dispatcher"),
	}
	if endpoint != nil {
		d.endpoint = *endpoint
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.With().Str("behavior", p.Behavior.String()).Logger()
	d.state.Store(int32(api.SessionOpen))
	return d, nil
}

// Status returns the lifecycle state.
func (d *Dispatcher) Status() api.SessionStatus {
	return api.SessionStatus(d.state.Load())
}

// Policy returns a copy of the session policy.
func (d *Dispatcher) Policy() *control.Policy {
	return d.policy.Clone()
}

// Open notifies OnOpen. Only the first call while the session is open has
// an effect; Dispatch calls it before the first frame. A panic in OnOpen
// terminates the connection like any other unexpected failure.
func (d *Dispatcher) Open() {
	if d.Status() != api.SessionOpen {
		return
	}
	d.openOnce.Do(func() {
		cb := d.endpoint.OnOpen
		if cb == nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				d.unhandled(r)
			}
		}()
		cb()
	})
}

// Dispatch handles one frame. Failures never escape: they are reported to
// OnError and turned into a termination.
func (d *Dispatcher) Dispatch(f *WSFrame) {
	if f == nil {
		return
	}
	d.Open()
	defer func() {
		if r := recover(); r != nil {
			d.unhandled(r)
		}
	}()

	control.RecordFrame(OpcodeName(f.Opcode))
	if d.log.GetLevel() <= zerolog.TraceLevel {
		d.log.Trace().Stringer("frame", f).Msg("dispatch")
	}

	switch d.Status() {
	case api.SessionClosed:
		d.log.Debug().Stringer("frame", f).Msg("connection closed, frame discarded")
		return
	case api.SessionTerminating:
		d.releaseActive()
		if f.Opcode == OpcodeClose {
			d.state.Store(int32(api.SessionClosed))
			d.log.Debug().Msg("close acknowledged by peer")
			return
		}
		d.log.Debug().Stringer("frame", f).Msg("terminating, frame discarded")
		return
	}

	if cb := d.endpoint.OnFrame; cb != nil {
		cb(f.Opcode, f.IsFinal, f.Payload)
		if d.Status() != api.SessionOpen {
			// the observer terminated the connection
			return
		}
	}
	if err := d.route(f); err != nil {
		if d.Status() != api.SessionOpen {
			// Terminated while the frame was in flight.
			d.releaseActive()
			d.log.Debug().Err(err).Msg("frame aborted by termination")
			return
		}
		d.fail(err)
	}
}

// Fail reports a failure detected outside Dispatch, such as a frame the
// codec refused, and terminates the connection accordingly.
func (d *Dispatcher) Fail(err error) {
	if err == nil || d.Status() != api.SessionOpen {
		return
	}
	d.fail(err)
}

func (d *Dispatcher) route(f *WSFrame) error {
	if f.Rsv != 0 {
		return api.Errorf(api.ErrCodeProtocolViolation, "reserved bits 0x%02x set without a negotiated extension", f.Rsv)
	}
	if err := d.policy.AssertValidPayloadLength(int64(len(f.Payload))); err != nil {
		return err
	}
	if IsControl(f.Opcode) {
		if !f.IsFinal {
			return api.Errorf(api.ErrCodeProtocolViolation, "fragmented %s frame", OpcodeName(f.Opcode))
		}
		if len(f.Payload) > MaxControlPayloadLen {
			return api.Errorf(api.ErrCodeProtocolViolation,
				"%s payload of %d bytes exceeds %d", OpcodeName(f.Opcode), len(f.Payload), MaxControlPayloadLen)
		}
	}

	switch f.Opcode {
	case OpcodeClose:
		return d.onClose(f)
	case OpcodePing:
		return d.onPing(f)
	case OpcodePong:
		if cb := d.endpoint.OnPong; cb != nil {
			cb(f.Payload)
		}
		return nil
	case OpcodeText:
		return d.onData(FragmentText, f)
	case OpcodeBinary:
		return d.onData(FragmentBinary, f)
	case OpcodeContinuation:
		return d.onContinuation(f)
	default:
		return api.Errorf(api.ErrCodeProtocolViolation, "unknown opcode 0x%x", f.Opcode)
	}
}

func (d *Dispatcher) onClose(f *WSFrame) error {
	info, err := ParseCloseInfo(f.Payload)
	if err != nil {
		return err
	}
	d.releaseActive()
	if !d.state.CompareAndSwap(int32(api.SessionOpen), int32(api.SessionClosed)) {
		// A concurrent Terminate already sent our CLOSE; this is its answer.
		d.state.Store(int32(api.SessionClosed))
		return nil
	}
	d.log.Debug().Int("code", info.Code).Str("reason", info.Reason).Msg("close received")
	d.notifyClose(info.Code, info.Reason)
	if err := d.send(OpcodeClose, info.Payload()); err != nil {
		d.log.Debug().Err(err).Msg("close echo not sent")
		d.closeSender()
	}
	return nil
}

func (d *Dispatcher) onPing(f *WSFrame) error {
	pong := make([]byte, len(f.Payload))
	copy(pong, f.Payload)
	if err := d.send(OpcodePong, pong); err != nil {
		d.Abandon(err)
		return nil
	}
	if cb := d.endpoint.OnPing; cb != nil {
		cb(f.Payload)
	}
	return nil
}

func (d *Dispatcher) onData(kind FragmentType, f *WSFrame) error {
	if d.tracker.open() {
		return d.tracker.begin(kind)
	}
	app := d.openAppender(kind)
	d.setActive(app)
	if f.IsFinal {
		if err := app.Append(f.Payload); err != nil {
			return err
		}
		d.clearActive()
		return app.Complete()
	}
	if err := d.tracker.begin(kind); err != nil {
		return err
	}
	return app.Append(f.Payload)
}

func (d *Dispatcher) onContinuation(f *WSFrame) error {
	if _, err := d.tracker.next(); err != nil {
		return err
	}
	if err := d.active.Append(f.Payload); err != nil {
		return err
	}
	if !f.IsFinal {
		return nil
	}
	app := d.active
	d.tracker.end()
	d.clearActive()
	return app.Complete()
}

// openAppender picks the delivery variant: stream before simple, and
// discard when the endpoint declared neither.
func (d *Dispatcher) openAppender(kind FragmentType) message.Appender {
	opts := message.Options{
		Policy:   d.policy,
		Executor: d.executor,
		Recover:  d.streamPanic,
		Blocked:  control.RecordStreamBlocked,
	}
	ep := d.endpoint
	if kind == FragmentText {
		switch {
		case ep.OnTextStream != nil:
			return message.NewTextStream(opts, func(r api.TextReader) {
				control.RecordMessage("text", "stream")
				ep.OnTextStream(r)
			})
		case ep.OnText != nil:
			return message.NewSimpleText(opts, func(s string) {
				control.RecordMessage("text", "simple")
				ep.OnText(s)
			})
		}
		return message.NewDiscard(opts, true)
	}
	switch {
	case ep.OnBinaryStream != nil:
		return message.NewBinaryStream(opts, func(r io.ReadCloser) {
			control.RecordMessage("binary", "stream")
			ep.OnBinaryStream(r)
		})
	case ep.OnBinary != nil:
		return message.NewSimpleBinary(opts, func(b []byte) {
			control.RecordMessage("binary", "simple")
			ep.OnBinary(b)
		})
	}
	return message.NewDiscard(opts, false)
}

func (d *Dispatcher) setActive(app message.Appender) {
	d.active = app
	i, _ := app.(message.Interrupter)
	d.activeMu.Lock()
	d.interrupter = i
	d.activeMu.Unlock()
}

func (d *Dispatcher) clearActive() {
	d.active = nil
	d.activeMu.Lock()
	d.interrupter = nil
	d.activeMu.Unlock()
}

// releaseActive drops whatever message is in flight.
func (d *Dispatcher) releaseActive() {
	if d.active != nil {
		d.active.Abort()
	}
	d.clearActive()
	d.tracker.end()
}

func (d *Dispatcher) interruptActive() {
	d.activeMu.Lock()
	i := d.interrupter
	d.activeMu.Unlock()
	if i != nil {
		i.Interrupt()
	}
}

// Terminate starts closing the connection with code and reason. Only the
// first call on an open connection has any effect.
func (d *Dispatcher) Terminate(code int, reason string) {
	if !d.state.CompareAndSwap(int32(api.SessionOpen), int32(api.SessionTerminating)) {
		d.log.Debug().Int("code", code).Stringer("status", d.Status()).Msg("termination ignored")
		return
	}
	d.interruptActive()
	info := NewCloseInfo(code, reason)
	control.RecordTermination(info.Code)
	d.log.Debug().Int("code", info.Code).Str("reason", info.Reason).Msg("terminating connection")

	if err := d.send(OpcodeClose, info.Payload()); err != nil {
		d.log.Debug().Err(err).Msg("close frame not sent, abandoning connection")
		d.state.Store(int32(api.SessionClosed))
		d.closeSender()
	}
	d.notifyClose(info.Code, info.Reason)
}

// Abandon marks the connection closed without a handshake, typically after
// the transport failed. OnClose sees CloseAbnormalClosure.
func (d *Dispatcher) Abandon(cause error) {
	prev := api.SessionStatus(d.state.Swap(int32(api.SessionClosed)))
	if prev == api.SessionClosed {
		return
	}
	d.interruptActive()
	d.log.Debug().Err(cause).Stringer("from", prev).Msg("connection abandoned")
	d.closeSender()
	d.notifyClose(CloseAbnormalClosure, "")
}

func (d *Dispatcher) fail(err error) {
	e := api.AsError(err)
	code := StatusCodeFor(e, d.policy.Behavior)
	ev := d.log.Debug()
	if e.Code == api.ErrCodeInternal {
		ev = d.log.Warn()
	}
	ev.Err(e).Int("code", code).Msg("frame handling failed")

	d.releaseActive()
	d.notifyError(e)
	d.Terminate(code, reasonFor(e))
}

// unhandled turns a panic raised while handling a frame into an unexpected
// failure.
func (d *Dispatcher) unhandled(v any) {
	if d.Status() != api.SessionOpen {
		d.releaseActive()
		d.log.Debug().Str("panic", fmt.Sprint(v)).Msg("failure after termination ignored")
		return
	}
	d.log.Warn().Str("panic", fmt.Sprint(v)).Msg("unhandled failure while dispatching")
	d.releaseActive()
	d.notifyError(panicError(v))
	d.Terminate(unexpectedStatus(d.policy.Behavior), fmt.Sprintf("%T", v))
}

// streamPanic runs on the consumer goroutine.
func (d *Dispatcher) streamPanic(v any) {
	d.log.Warn().Str("panic", fmt.Sprint(v)).Msg("stream consumer failed")
	d.notifyError(panicError(v))
	d.Terminate(unexpectedStatus(d.policy.Behavior), fmt.Sprintf("%T", v))
}

func panicError(v any) *api.Error {
	if err, ok := v.(error); ok {
		return api.WrapError(api.ErrCodeInternal, "unhandled failure", err)
	}
	return api.Errorf(api.ErrCodeInternal, "unhandled failure: %v", v)
}

// send hands a frame to the sender. A panicking sender is reported as a
// transport failure.
func (d *Dispatcher) send(opcode byte, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = api.Errorf(api.ErrCodeTransportFailure, "send %s: %v", OpcodeName(opcode), r)
		}
	}()
	return d.sender.SendFrame(opcode, payload)
}

func (d *Dispatcher) closeSender() {
	if err := d.sender.Close(); err != nil {
		d.log.Debug().Err(err).Msg("sender close")
	}
}

// invokeSafe runs a notification that must not fail the dispatcher. Data
// callbacks are called directly so that their panics end the connection.
func (d *Dispatcher) invokeSafe(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Warn().Str("callback", what).Str("panic", fmt.Sprint(r)).Msg("endpoint callback panicked")
		}
	}()
	fn()
}

func (d *Dispatcher) notifyError(e *api.Error) {
	if cb := d.endpoint.OnError; cb != nil {
		d.invokeSafe("OnError", func() { cb(e) })
	}
}

func (d *Dispatcher) notifyClose(code int, reason string) {
	d.closeOnce.Do(func() {
		if cb := d.endpoint.OnClose; cb != nil {
			d.invokeSafe("OnClose", func() { cb(code, reason) })
		}
	})
}
