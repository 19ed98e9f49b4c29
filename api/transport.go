// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Transport and frame-sender contracts the reassembly core depends on.
// Byte-level I/O lives behind Transport; the dispatcher only ever sees
// FrameSender.

package api

// Transport abstracts a full-duplex byte channel. Recv may return several
// chunks at once; chunk boundaries carry no framing meaning.
type Transport interface {
	// Send writes the given buffers in order.
	Send(buffers [][]byte) error

	// Recv blocks until at least one chunk is available.
	Recv() ([][]byte, error)

	// Close shuts down the channel.
	Close() error
}

// FrameSender emits single, final frames towards the peer. The dispatcher
// uses it for PONG replies, CLOSE echoes and termination frames.
type FrameSender interface {
	SendFrame(opcode byte, payload []byte) error

	// Close abandons the connection without a close handshake.
	Close() error
}
