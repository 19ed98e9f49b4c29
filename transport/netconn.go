// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// Package transport adapts byte streams to api.Transport.
package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/momentics/hioload-wsmsg/api"
)

// DefaultReadSize is the chunk size of one Recv.
const DefaultReadSize = 16 * 1024

// NetConn implements api.Transport over a stream whose handshake is
// already done, typically a net.Conn or a hijacked HTTP connection.
type NetConn struct {
	conn     io.ReadWriteCloser
	readSize int
	writeMu  sync.Mutex
}

// NewNetConn wraps conn. readSize <= 0 selects DefaultReadSize.
func NewNetConn(conn io.ReadWriteCloser, readSize int) *NetConn {
	if readSize <= 0 {
		readSize = DefaultReadSize
	}
	return &NetConn{conn: conn, readSize: readSize}
}

// Recv returns the next chunk read from the stream. io.EOF is passed
// through unchanged once the peer is gone.
func (n *NetConn) Recv() ([][]byte, error) {
	buf := make([]byte, n.readSize)
	k, err := n.conn.Read(buf)
	if k > 0 {
		// deliver what arrived, the error resurfaces on the next call
		return [][]byte{buf[:k]}, nil
	}
	if err == nil {
		return nil, nil
	}
	return nil, err
}

// Send writes the buffers in order, using writev when conn is a net.Conn.
func (n *NetConn) Send(buffers [][]byte) error {
	n.writeMu.Lock()
	defer n.writeMu.Unlock()
	if c, ok := n.conn.(net.Conn); ok {
		bufs := net.Buffers(buffers)
		_, err := bufs.WriteTo(c)
		return err
	}
	for _, b := range buffers {
		if _, err := n.conn.Write(b); err != nil {
			return err
		}
	}
	return nil
}

// SetReadDeadline forwards to the stream when it supports deadlines.
func (n *NetConn) SetReadDeadline(t time.Time) error {
	if d, ok := n.conn.(interface{ SetReadDeadline(time.Time) error }); ok {
		return d.SetReadDeadline(t)
	}
	return errDeadlineUnsupported
}

// Close the connection.
func (n *NetConn) Close() error {
	return n.conn.Close()
}

var errDeadlineUnsupported = errors.New("transport: read deadlines not supported")

var _ api.Transport = (*NetConn)(nil)
