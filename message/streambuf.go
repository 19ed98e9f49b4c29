// Package message
// Author: momentics <momentics@gmail.com>
//
// streamBuffer is the bounded single-producer/single-consumer byte channel
// behind streaming delivery. The frame dispatcher writes, the application
// reads on another goroutine.

package message

import (
	"io"
	"sync"

	"github.com/momentics/hioload-wsmsg/api"
)

const minStreamBuffer = 4096

// streamBuffer holds unread bytes in buf[r:w]. Capacity starts small and
// doubles up to max; a producer facing a full buffer at max capacity waits
// for the consumer.
type streamBuffer struct {
	mu       sync.Mutex
	readable *sync.Cond
	writable *sync.Cond

	buf []byte
	r   int
	w   int
	max int

	finished bool  // producer signalled end of message
	closed   bool  // consumer closed its handle
	err      error // abort cause reported to the consumer

	blocked func()
}

func newStreamBuffer(max int, blocked func()) *streamBuffer {
	if max <= 0 {
		max = minStreamBuffer
	}
	initial := minStreamBuffer
	if initial > max {
		initial = max
	}
	b := &streamBuffer{
		buf:     make([]byte, initial),
		max:     max,
		blocked: blocked,
	}
	b.readable = sync.NewCond(&b.mu)
	b.writable = sync.NewCond(&b.mu)
	return b
}

// errReaderGone reports that the consumer closed its handle; the producer
// drops the rest of the message.
var errReaderGone = api.NewError(api.ErrCodeAppenderClosed, "stream reader closed")

// write copies p into the buffer, blocking while it is full.
func (b *streamBuffer) write(p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(p) > 0 {
		if b.closed {
			return errReaderGone
		}
		if b.finished || b.err != nil {
			return api.NewError(api.ErrCodeAppenderClosed, "cannot append to finished stream")
		}
		if b.w == len(b.buf) && !b.makeRoom() {
			if b.blocked != nil {
				b.blocked()
			}
			b.writable.Wait()
			continue
		}
		n := copy(b.buf[b.w:], p)
		b.w += n
		p = p[n:]
		b.readable.Signal()
	}
	return nil
}

// makeRoom compacts or grows the buffer. It reports false when the buffer
// is full at maximum capacity.
func (b *streamBuffer) makeRoom() bool {
	if b.r > 0 {
		b.compact()
		return true
	}
	if len(b.buf) < b.max {
		size := len(b.buf) * 2
		if size > b.max {
			size = b.max
		}
		grown := make([]byte, size)
		copy(grown, b.buf[b.r:b.w])
		b.w -= b.r
		b.r = 0
		b.buf = grown
		return true
	}
	return false
}

func (b *streamBuffer) compact() {
	n := copy(b.buf, b.buf[b.r:b.w])
	b.r, b.w = 0, n
}

// waitReadable blocks until data, end of stream or an abort is observable.
// Called with b.mu held.
func (b *streamBuffer) waitReadable() error {
	for b.r == b.w {
		switch {
		case b.err != nil:
			return b.err
		case b.closed:
			return api.NewError(api.ErrCodeAppenderClosed, "read on closed stream")
		case b.finished:
			return io.EOF
		}
		b.readable.Wait()
	}
	return nil
}

// afterRead reclaims space once the read cursor passes the low-water mark
// and wakes a waiting producer. Called with b.mu held.
func (b *streamBuffer) afterRead() {
	switch {
	case b.r == b.w:
		b.r, b.w = 0, 0
	case b.r >= len(b.buf)/2:
		b.compact()
	}
	b.writable.Signal()
}

func (b *streamBuffer) read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.waitReadable(); err != nil {
		return 0, err
	}
	n := copy(p, b.buf[b.r:b.w])
	b.r += n
	b.afterRead()
	return n, nil
}

func (b *streamBuffer) readByte() (byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.waitReadable(); err != nil {
		return 0, err
	}
	c := b.buf[b.r]
	b.r++
	b.afterRead()
	return c, nil
}

// finish marks the end of the message. Buffered bytes stay readable.
func (b *streamBuffer) finish() {
	b.mu.Lock()
	b.finished = true
	b.mu.Unlock()
	b.readable.Broadcast()
}

// abort cuts the stream short. Unread bytes are dropped and the consumer
// sees err. A finished stream is left alone so its consumer can drain it.
func (b *streamBuffer) abort(err error) {
	b.mu.Lock()
	if !b.finished && b.err == nil {
		b.err = err
		b.r, b.w = 0, 0
	}
	b.mu.Unlock()
	b.readable.Broadcast()
	b.writable.Broadcast()
}

// closeRead is the consumer hanging up.
func (b *streamBuffer) closeRead() {
	b.mu.Lock()
	b.closed = true
	b.r, b.w = 0, 0
	b.mu.Unlock()
	b.readable.Broadcast()
	b.writable.Broadcast()
}

func (b *streamBuffer) buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.w - b.r
}

func (b *streamBuffer) capacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}
