// File: message/stream_text.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package message

import (
	"io"
	"unicode/utf8"

	"github.com/momentics/hioload-wsmsg/api"
	"github.com/momentics/hioload-wsmsg/internal/utf8stream"
)

// TextStream delivers a text message as an api.TextReader. Only complete,
// validated code points reach the buffer; malformed input aborts the
// reader with the encoding error.
type TextStream struct {
	streamCore
	utf     utf8stream.Validator
	reader  *RuneReader
	deliver func(api.TextReader)
}

// NewTextStream opens a streamed text message.
func NewTextStream(opts Options, deliver func(api.TextReader)) *TextStream {
	m := &TextStream{streamCore: newStreamCore(opts), deliver: deliver}
	m.reader = &RuneReader{b: m.buf}
	return m
}

// Append implements Appender.
func (m *TextStream) Append(payload []byte) error {
	if err := m.admit(len(payload)); err != nil {
		return err
	}
	valid, err := m.utf.Feed(payload)
	if err != nil {
		m.finished = true
		m.buf.abort(err)
		return err
	}
	m.commit(len(payload))
	m.notify(func() {
		if m.deliver != nil {
			m.deliver(m.reader)
		}
	}, m.reader)
	return m.push(valid)
}

// Complete implements Appender.
func (m *TextStream) Complete() error {
	if m.finished {
		return m.complete()
	}
	if err := m.utf.Finish(); err != nil {
		m.finished = true
		m.buf.abort(err)
		return err
	}
	return m.complete()
}

// RuneReader is the consumer handle of a TextStream.
type RuneReader struct {
	b *streamBuffer
}

// Read returns UTF-8 bytes. A single call may end inside a code point; use
// ReadRune for rune-at-a-time consumption.
func (r *RuneReader) Read(p []byte) (int, error) { return r.b.read(p) }

// ReadRune implements io.RuneReader.
func (r *RuneReader) ReadRune() (rune, int, error) {
	c, err := r.b.readByte()
	if err != nil {
		return 0, 0, err
	}
	if c < utf8.RuneSelf {
		return rune(c), 1, nil
	}
	size := 2
	switch {
	case c >= 0xF0:
		size = 4
	case c >= 0xE0:
		size = 3
	}
	var seq [utf8.UTFMax]byte
	seq[0] = c
	for i := 1; i < size; i++ {
		if seq[i], err = r.b.readByte(); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, 0, err
		}
	}
	ch, n := utf8.DecodeRune(seq[:size])
	return ch, n, nil
}

// Close stops delivery; the producer drops the rest of the message.
func (r *RuneReader) Close() error {
	r.b.closeRead()
	return nil
}

var _ api.TextReader = (*RuneReader)(nil)
