// File: api/handler.go
// Package api defines the endpoint capability the dispatcher delivers to.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "io"

// TextReader is the handle passed to streaming text consumers. It yields
// only complete, validated UTF-8.
type TextReader interface {
	io.Reader
	io.RuneReader
	io.Closer
}

// Endpoint is the binding table between a connection and application code.
// A nil callback means the application has no interest in that event:
// frames of that kind are still validated but never delivered.
//
// OnTextStream and OnBinaryStream take precedence over OnText and OnBinary.
// Stream callbacks run on the dispatcher's Executor, never on the frame
// delivery goroutine; the handle is closed when the callback returns.
//
// OnOpen runs once before any other callback. OnFrame sees every frame
// received while the connection is open, before it is routed; payload is
// only valid during the call.
type Endpoint struct {
	OnOpen         func()
	OnFrame        func(opcode byte, fin bool, payload []byte)
	OnText         func(msg string)
	OnBinary       func(msg []byte)
	OnTextStream   func(r TextReader)
	OnBinaryStream func(r io.ReadCloser)
	OnClose        func(code int, reason string)
	OnError        func(err *Error)
	OnPing         func(payload []byte)
	OnPong         func(payload []byte)
}

// WantsText reports whether any text delivery is declared.
func (e *Endpoint) WantsText() bool {
	return e != nil && (e.OnText != nil || e.OnTextStream != nil)
}

// WantsBinary reports whether any binary delivery is declared.
func (e *Endpoint) WantsBinary() bool {
	return e != nil && (e.OnBinary != nil || e.OnBinaryStream != nil)
}
