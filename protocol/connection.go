// File: protocol/connection.go
// Package protocol implements the core WebSocket connection handling.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WSConnection couples an api.Transport with a Dispatcher: it decodes the
// inbound byte stream into frames, feeds them to the dispatcher in order and
// encodes the frames the dispatcher sends back.

package protocol

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-wsmsg/api"
	"github.com/momentics/hioload-wsmsg/control"
	"github.com/momentics/hioload-wsmsg/internal/logging"
)

// readDeadliner is implemented by transports able to bound a blocking Recv.
type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// WSConnection encapsulates one established WebSocket session.
type WSConnection struct {
	transport  api.Transport
	policy     *control.Policy
	dispatcher *Dispatcher
	log        zerolog.Logger

	dispatchOpts []DispatcherOption
	maskCheck    bool

	pending []byte

	sendMu sync.Mutex
	done   chan struct{}
	closed int32

	bytesReceived  int64
	bytesSent      int64
	framesReceived int64
	framesSent     int64
}

// ConnectionOption customizes a WSConnection.
type ConnectionOption func(*WSConnection)

// WithDispatcherOptions forwards options to the underlying Dispatcher.
func WithDispatcherOptions(opts ...DispatcherOption) ConnectionOption {
	return func(c *WSConnection) { c.dispatchOpts = append(c.dispatchOpts, opts...) }
}

// WithConnectionLogger replaces the connection logger.
func WithConnectionLogger(l zerolog.Logger) ConnectionOption {
	return func(c *WSConnection) { c.log = l }
}

// WithoutMaskCheck accepts inbound frames regardless of their mask bit.
// Useful when replaying captures.
func WithoutMaskCheck() ConnectionOption {
	return func(c *WSConnection) { c.maskCheck = false }
}

// NewWSConnection binds tr to endpoint under policy.
func NewWSConnection(tr api.Transport, policy *control.Policy, endpoint *api.Endpoint, opts ...ConnectionOption) (*WSConnection, error) {
	if tr == nil {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "transport is required")
	}
	c := &WSConnection{
		transport: tr,
		log:       logging.New("connection"),
		maskCheck: true,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	d, err := NewDispatcher(policy, endpoint, c, c.dispatchOpts...)
	if err != nil {
		return nil, err
	}
	c.dispatcher = d
	c.policy = d.Policy()
	return c, nil
}

// Dispatcher exposes the session state machine, e.g. to Terminate it.
func (c *WSConnection) Dispatcher() *Dispatcher {
	return c.dispatcher
}

// Transport provides access to the underlying api.Transport.
func (c *WSConnection) Transport() api.Transport {
	return c.transport
}

// Run notifies OnOpen, then reads and dispatches frames until the session
// is closed, the transport fails or ctx is cancelled. Cancellation terminates the session
// with CloseGoingAway. A completed close handshake returns nil.
func (c *WSConnection) Run(ctx context.Context) error {
	defer c.Close()
	stop := context.AfterFunc(ctx, func() {
		c.dispatcher.Terminate(CloseGoingAway, "shutting down")
		c.Close()
	})
	defer stop()

	c.dispatcher.Open()
	for {
		if c.dispatcher.Status() == api.SessionClosed {
			return nil
		}
		c.armIdleDeadline()
		raws, err := c.transport.Recv()
		if err != nil {
			return c.recvFailed(ctx, err)
		}
		for _, raw := range raws {
			atomic.AddInt64(&c.bytesReceived, int64(len(raw)))
			if err := c.feed(raw); err != nil {
				return err
			}
			if c.dispatcher.Status() == api.SessionClosed {
				return nil
			}
		}
	}
}

// feed appends raw to the pending bytes and dispatches every complete
// frame. A frame the codec refuses fails the session.
func (c *WSConnection) feed(raw []byte) error {
	c.pending = append(c.pending, raw...)
	for len(c.pending) > 0 {
		frame, n, err := DecodeFrameFromBytes(c.pending, int64(c.policy.MaxPayloadSize))
		if err == nil && frame != nil {
			err = c.checkMask(frame)
		}
		if err != nil {
			c.pending = nil
			c.dispatcher.Fail(err)
			return err
		}
		if frame == nil {
			break
		}
		c.pending = c.pending[n:]
		atomic.AddInt64(&c.framesReceived, 1)
		c.dispatcher.Dispatch(frame)
		if c.dispatcher.Status() == api.SessionClosed {
			c.pending = nil
			return nil
		}
	}
	if len(c.pending) == 0 {
		c.pending = nil
	}
	return nil
}

// checkMask enforces that clients mask and servers do not.
func (c *WSConnection) checkMask(f *WSFrame) error {
	if !c.maskCheck {
		return nil
	}
	wantMasked := c.policy.Behavior == api.BehaviorServer
	if f.Masked != wantMasked {
		if wantMasked {
			return api.NewError(api.ErrCodeProtocolViolation, "client frame is not masked")
		}
		return api.NewError(api.ErrCodeProtocolViolation, "server frame must not be masked")
	}
	return nil
}

func (c *WSConnection) armIdleDeadline() {
	if c.policy.IdleTimeout <= 0 {
		return
	}
	if dl, ok := c.transport.(readDeadliner); ok {
		if err := dl.SetReadDeadline(time.Now().Add(c.policy.IdleTimeout)); err != nil {
			c.log.Debug().Err(err).Msg("set read deadline")
		}
	}
}

func (c *WSConnection) recvFailed(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case c.dispatcher.Status() == api.SessionClosed:
		return nil
	case isTimeout(err):
		c.log.Debug().Dur("idle_timeout", c.policy.IdleTimeout).Msg("idle timeout expired")
		c.dispatcher.Terminate(CloseGoingAway, "idle timeout")
		return api.WrapError(api.ErrCodeTransportFailure, "idle timeout", err)
	case errors.Is(err, io.EOF):
		c.dispatcher.Abandon(err)
		return nil
	default:
		c.dispatcher.Abandon(err)
		return api.WrapError(api.ErrCodeTransportFailure, "receive", err)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// SendFrame implements api.FrameSender. Client frames are masked.
func (c *WSConnection) SendFrame(opcode byte, payload []byte) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return api.ErrConnectionClosed
	}
	frame := NewFrame(opcode, payload, true)
	mask := c.policy.Behavior == api.BehaviorClient

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	data, err := EncodeFrameToBufferWithMask(frame, mask, nil)
	if err != nil {
		return err
	}
	if err := c.transport.Send([][]byte{data}); err != nil {
		return api.WrapError(api.ErrCodeTransportFailure, "send "+OpcodeName(opcode), err)
	}
	atomic.AddInt64(&c.framesSent, 1)
	atomic.AddInt64(&c.bytesSent, int64(len(data)))
	return nil
}

// Close releases the transport. It does not perform a close handshake;
// use Dispatcher().Terminate for that.
func (c *WSConnection) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	close(c.done)
	return c.transport.Close()
}

// Done returns channel closed when connection is closed.
func (c *WSConnection) Done() <-chan struct{} {
	return c.done
}

// Stats returns a snapshot of connection statistics for metrics reporting.
func (c *WSConnection) Stats() map[string]int64 {
	return map[string]int64{
		"bytes_received":  atomic.LoadInt64(&c.bytesReceived),
		"bytes_sent":      atomic.LoadInt64(&c.bytesSent),
		"frames_received": atomic.LoadInt64(&c.framesReceived),
		"frames_sent":     atomic.LoadInt64(&c.framesSent),
	}
}

var _ api.FrameSender = (*WSConnection)(nil)
