// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the transport interface.

package fake

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/momentics/hioload-wsmsg/api"
)

// Transport is a scripted in-memory api.Transport. Inbound chunks queued
// with Feed are returned by Recv one at a time; Recv blocks while the queue
// is empty, until more data, EOF, Close or the read deadline.
type Transport struct {
	mu       sync.Mutex
	cond     *sync.Cond
	inbound  [][]byte
	sent     [][]byte
	eof      bool
	closed   bool
	sendErr  error
	recvErr  error
	deadline time.Time
	timer    *time.Timer
}

// NewTransport creates an empty fake transport.
func NewTransport() *Transport {
	t := &Transport{}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Send implements api.Transport.
func (t *Transport) Send(buffers [][]byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return api.ErrConnectionClosed
	}
	if t.sendErr != nil {
		return t.sendErr
	}
	for _, buf := range buffers {
		t.sent = append(t.sent, append([]byte(nil), buf...))
	}
	return nil
}

// Recv implements api.Transport.
func (t *Transport) Recv() ([][]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		switch {
		case t.closed:
			return nil, api.ErrConnectionClosed
		case t.recvErr != nil:
			return nil, t.recvErr
		case len(t.inbound) > 0:
			chunk := t.inbound[0]
			t.inbound = t.inbound[1:]
			return [][]byte{chunk}, nil
		case t.eof:
			return nil, io.EOF
		case !t.deadline.IsZero() && !time.Now().Before(t.deadline):
			return nil, os.ErrDeadlineExceeded
		}
		t.cond.Wait()
	}
}

// SetReadDeadline bounds blocking Recv calls. A zero time disables it.
func (t *Transport) SetReadDeadline(d time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.deadline = d
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if !d.IsZero() {
		t.timer = time.AfterFunc(time.Until(d), func() {
			t.mu.Lock()
			t.cond.Broadcast()
			t.mu.Unlock()
		})
	}
	return nil
}

// Close implements api.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
	}
	t.cond.Broadcast()
	return nil
}

// Feed queues inbound chunks.
func (t *Transport) Feed(chunks ...[]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range chunks {
		t.inbound = append(t.inbound, append([]byte(nil), c...))
	}
	t.cond.Broadcast()
}

// EndInbound makes Recv report io.EOF once the queue is drained.
func (t *Transport) EndInbound() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.eof = true
	t.cond.Broadcast()
}

// SetSendError configures the transport to return an error on Send.
func (t *Transport) SetSendError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendErr = err
}

// SetRecvError configures the transport to return an error on Recv.
func (t *Transport) SetRecvError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recvErr = err
	t.cond.Broadcast()
}

// Sent returns all data that has been sent via Send.
func (t *Transport) Sent() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.sent...)
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

var _ api.Transport = (*Transport)(nil)
