// File: message/simple_text.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package message

import (
	"strings"

	"github.com/momentics/hioload-wsmsg/internal/utf8stream"
)

// SimpleText buffers a whole text message and delivers the decoded string
// on Complete. Bytes pass through an incremental validator so malformed
// input fails on the chunk that carries it.
type SimpleText struct {
	sizeGuard
	utf     utf8stream.Validator
	sb      strings.Builder
	deliver func(string)
}

// NewSimpleText opens a buffered text message.
func NewSimpleText(opts Options, deliver func(string)) *SimpleText {
	return &SimpleText{
		sizeGuard: sizeGuard{policy: opts.Policy},
		deliver:   deliver,
	}
}

// Append implements Appender.
func (m *SimpleText) Append(payload []byte) error {
	if err := m.admit(len(payload)); err != nil {
		return err
	}
	valid, err := m.utf.Feed(payload)
	if err != nil {
		return err
	}
	m.commit(len(payload))
	m.sb.Write(valid)
	return nil
}

// Complete implements Appender.
func (m *SimpleText) Complete() error {
	if err := m.finish(); err != nil {
		return err
	}
	if err := m.utf.Finish(); err != nil {
		return err
	}
	msg := m.sb.String()
	m.sb.Reset()
	if m.deliver != nil {
		m.deliver(msg)
	}
	return nil
}

// Abort implements Appender.
func (m *SimpleText) Abort() {
	m.finished = true
	m.sb.Reset()
}

// Buffered returns the validated text held so far.
func (m *SimpleText) Buffered() string { return m.sb.String() }
