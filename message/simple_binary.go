// File: message/simple_binary.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package message

// SimpleBinary buffers a whole binary message and delivers it on Complete.
type SimpleBinary struct {
	sizeGuard
	buf     []byte
	deliver func([]byte)
}

// NewSimpleBinary opens a buffered binary message.
func NewSimpleBinary(opts Options, deliver func([]byte)) *SimpleBinary {
	return &SimpleBinary{
		sizeGuard: sizeGuard{policy: opts.Policy},
		deliver:   deliver,
	}
}

// Append implements Appender.
func (m *SimpleBinary) Append(payload []byte) error {
	if err := m.admit(len(payload)); err != nil {
		return err
	}
	m.commit(len(payload))
	m.buf = append(m.buf, payload...)
	return nil
}

// Complete implements Appender.
func (m *SimpleBinary) Complete() error {
	if err := m.finish(); err != nil {
		return err
	}
	msg := m.buf
	if msg == nil {
		msg = []byte{}
	}
	m.buf = nil
	if m.deliver != nil {
		m.deliver(msg)
	}
	return nil
}

// Abort implements Appender.
func (m *SimpleBinary) Abort() {
	m.finished = true
	m.buf = nil
}

// Buffered returns the bytes held so far.
func (m *SimpleBinary) Buffered() []byte { return m.buf }
