// File: message/stream.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package message

import "io"

// streamCore is the producer half shared by the binary and text stream
// appenders.
type streamCore struct {
	sizeGuard
	opts     Options
	buf      *streamBuffer
	notified bool
}

func newStreamCore(opts Options) streamCore {
	return streamCore{
		sizeGuard: sizeGuard{policy: opts.Policy},
		opts:      opts,
		buf:       newStreamBuffer(opts.Policy.BufferSize, opts.Blocked),
	}
}

// notify hands the consumer its handle the first time it is called. The
// handle is closed when run returns.
func (s *streamCore) notify(run func(), closer io.Closer) {
	if s.notified {
		return
	}
	s.notified = true
	task := func() {
		defer closer.Close()
		defer func() {
			if r := recover(); r != nil && s.opts.Recover != nil {
				s.opts.Recover(r)
			}
		}()
		run()
	}
	if err := s.opts.executor().Submit(task); err != nil {
		go task()
	}
}

// push writes validated bytes. A consumer that hung up turns the rest of
// the message into a no-op.
func (s *streamCore) push(p []byte) error {
	if err := s.buf.write(p); err != nil && err != errReaderGone {
		return err
	}
	return nil
}

func (s *streamCore) complete() error {
	if err := s.finish(); err != nil {
		return err
	}
	s.buf.finish()
	return nil
}

// Abort implements Appender.
func (s *streamCore) Abort() {
	s.finished = true
	s.Interrupt()
}

// Interrupt implements Interrupter.
func (s *streamCore) Interrupt() {
	s.buf.abort(io.ErrUnexpectedEOF)
}
