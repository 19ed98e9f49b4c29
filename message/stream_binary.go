// File: message/stream_binary.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package message

import "io"

// BinaryStream delivers a binary message as an io.ReadCloser backed by the
// growing stream buffer.
type BinaryStream struct {
	streamCore
	reader  *ByteReader
	deliver func(io.ReadCloser)
}

// NewBinaryStream opens a streamed binary message.
func NewBinaryStream(opts Options, deliver func(io.ReadCloser)) *BinaryStream {
	m := &BinaryStream{streamCore: newStreamCore(opts), deliver: deliver}
	m.reader = &ByteReader{b: m.buf}
	return m
}

// Append implements Appender. The consumer is started on the first call.
func (m *BinaryStream) Append(payload []byte) error {
	if err := m.admit(len(payload)); err != nil {
		return err
	}
	m.commit(len(payload))
	m.notify(func() {
		if m.deliver != nil {
			m.deliver(m.reader)
		}
	}, m.reader)
	return m.push(payload)
}

// Complete implements Appender.
func (m *BinaryStream) Complete() error { return m.complete() }

// ByteReader is the consumer handle of a BinaryStream.
type ByteReader struct {
	b *streamBuffer
}

// Read blocks until data is buffered, the message completes (io.EOF) or the
// connection aborts it (io.ErrUnexpectedEOF).
func (r *ByteReader) Read(p []byte) (int, error) { return r.b.read(p) }

// ReadByte implements io.ByteReader.
func (r *ByteReader) ReadByte() (byte, error) { return r.b.readByte() }

// Close stops delivery; the producer drops the rest of the message.
func (r *ByteReader) Close() error {
	r.b.closeRead()
	return nil
}
