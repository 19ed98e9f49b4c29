// File: message/discard.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package message

import (
	"github.com/momentics/hioload-wsmsg/internal/utf8stream"
)

// Discard validates a message nobody subscribed to: size limits always,
// UTF-8 for text. Nothing is buffered or delivered.
type Discard struct {
	sizeGuard
	text bool
	utf  utf8stream.Validator
}

// NewDiscard opens a message that is checked and dropped.
func NewDiscard(opts Options, text bool) *Discard {
	return &Discard{sizeGuard: sizeGuard{policy: opts.Policy}, text: text}
}

// Append implements Appender.
func (m *Discard) Append(payload []byte) error {
	if err := m.admit(len(payload)); err != nil {
		return err
	}
	if m.text {
		if _, err := m.utf.Feed(payload); err != nil {
			return err
		}
	}
	m.commit(len(payload))
	return nil
}

// Complete implements Appender.
func (m *Discard) Complete() error {
	if err := m.finish(); err != nil {
		return err
	}
	if m.text {
		return m.utf.Finish()
	}
	return nil
}

// Abort implements Appender.
func (m *Discard) Abort() { m.finished = true }
