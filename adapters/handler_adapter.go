// File: adapters/handler_adapter.go
// Package adapters
// Author: momentics <momentics@gmail.com>
//
// Endpoint glue: binds listener objects to an api.Endpoint and wraps
// endpoints in middleware.

package adapters

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-wsmsg/api"
)

// OpenListener is told when the connection becomes active.
type OpenListener interface {
	OnOpen()
}

// FrameListener observes raw frames before they are routed.
type FrameListener interface {
	OnFrame(opcode byte, fin bool, payload []byte)
}

// TextListener receives whole text messages.
type TextListener interface {
	OnText(msg string)
}

// BinaryListener receives whole binary messages.
type BinaryListener interface {
	OnBinary(msg []byte)
}

// TextStreamListener receives text messages as they arrive.
type TextStreamListener interface {
	OnTextStream(r api.TextReader)
}

// BinaryStreamListener receives binary messages as they arrive.
type BinaryStreamListener interface {
	OnBinaryStream(r io.ReadCloser)
}

// CloseListener is told how the connection ended.
type CloseListener interface {
	OnClose(code int, reason string)
}

// ErrorListener is told about failures before the connection terminates.
type ErrorListener interface {
	OnError(err *api.Error)
}

// PingListener observes inbound PING payloads.
type PingListener interface {
	OnPing(payload []byte)
}

// PongListener observes inbound PONG payloads.
type PongListener interface {
	OnPong(payload []byte)
}

// Bind builds the endpoint table from whichever listener interfaces l
// implements. Unimplemented events stay nil, i.e. undeclared.
func Bind(l any) *api.Endpoint {
	ep := &api.Endpoint{}
	if v, ok := l.(OpenListener); ok {
		ep.OnOpen = v.OnOpen
	}
	if v, ok := l.(FrameListener); ok {
		ep.OnFrame = v.OnFrame
	}
	if v, ok := l.(TextListener); ok {
		ep.OnText = v.OnText
	}
	if v, ok := l.(BinaryListener); ok {
		ep.OnBinary = v.OnBinary
	}
	if v, ok := l.(TextStreamListener); ok {
		ep.OnTextStream = v.OnTextStream
	}
	if v, ok := l.(BinaryStreamListener); ok {
		ep.OnBinaryStream = v.OnBinaryStream
	}
	if v, ok := l.(CloseListener); ok {
		ep.OnClose = v.OnClose
	}
	if v, ok := l.(ErrorListener); ok {
		ep.OnError = v.OnError
	}
	if v, ok := l.(PingListener); ok {
		ep.OnPing = v.OnPing
	}
	if v, ok := l.(PongListener); ok {
		ep.OnPong = v.OnPong
	}
	return ep
}

// Middleware decorates an endpoint. It must keep nil callbacks nil so the
// declared interests do not change.
type Middleware func(*api.Endpoint) *api.Endpoint

// Chain applies middleware so that the first one is the outermost.
func Chain(ep *api.Endpoint, mws ...Middleware) *api.Endpoint {
	for i := len(mws) - 1; i >= 0; i-- {
		ep = mws[i](ep)
	}
	return ep
}

// wrap rebuilds every declared callback around around(name, call).
func wrap(ep *api.Endpoint, around func(event string, call func())) *api.Endpoint {
	out := &api.Endpoint{}
	if f := ep.OnOpen; f != nil {
		out.OnOpen = func() { around("open", f) }
	}
	if f := ep.OnFrame; f != nil {
		out.OnFrame = func(op byte, fin bool, p []byte) { around("frame", func() { f(op, fin, p) }) }
	}
	if f := ep.OnText; f != nil {
		out.OnText = func(msg string) { around("text", func() { f(msg) }) }
	}
	if f := ep.OnBinary; f != nil {
		out.OnBinary = func(msg []byte) { around("binary", func() { f(msg) }) }
	}
	if f := ep.OnTextStream; f != nil {
		out.OnTextStream = func(r api.TextReader) { around("text_stream", func() { f(r) }) }
	}
	if f := ep.OnBinaryStream; f != nil {
		out.OnBinaryStream = func(r io.ReadCloser) { around("binary_stream", func() { f(r) }) }
	}
	if f := ep.OnClose; f != nil {
		out.OnClose = func(code int, reason string) { around("close", func() { f(code, reason) }) }
	}
	if f := ep.OnError; f != nil {
		out.OnError = func(err *api.Error) { around("error", func() { f(err) }) }
	}
	if f := ep.OnPing; f != nil {
		out.OnPing = func(p []byte) { around("ping", func() { f(p) }) }
	}
	if f := ep.OnPong; f != nil {
		out.OnPong = func(p []byte) { around("pong", func() { f(p) }) }
	}
	return out
}

// LoggingMiddleware logs every callback at debug level.
func LoggingMiddleware(log zerolog.Logger) Middleware {
	return func(ep *api.Endpoint) *api.Endpoint {
		return wrap(ep, func(event string, call func()) {
			log.Debug().Str("event", event).Msg("endpoint callback")
			call()
		})
	}
}

// RecoveryMiddleware recovers from panics in callbacks instead of letting
// them terminate the connection.
func RecoveryMiddleware(log zerolog.Logger) Middleware {
	return func(ep *api.Endpoint) *api.Endpoint {
		return wrap(ep, func(event string, call func()) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("event", event).Str("panic", fmt.Sprint(r)).Msg("panic recovered")
				}
			}()
			call()
		})
	}
}
