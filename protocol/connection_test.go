package protocol_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/momentics/hioload-wsmsg/api"
	"github.com/momentics/hioload-wsmsg/control"
	"github.com/momentics/hioload-wsmsg/fake"
	"github.com/momentics/hioload-wsmsg/protocol"
)

func encode(t *testing.T, f *protocol.WSFrame, mask bool) []byte {
	t.Helper()
	b, err := protocol.EncodeFrameToBufferWithMask(f, mask, nil)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func decodeSent(t *testing.T, tr *fake.Transport) []*protocol.WSFrame {
	t.Helper()
	var out []*protocol.WSFrame
	for _, raw := range tr.Sent() {
		f, n, err := protocol.DecodeFrameFromBytes(raw, 0)
		if err != nil || f == nil || n != len(raw) {
			t.Fatalf("sent data is not one frame: %v %v", f, err)
		}
		out = append(out, f)
	}
	return out
}

func runConn(t *testing.T, c *protocol.WSConnection, ctx context.Context) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestConnectionPingAndClose(t *testing.T) {
	tr := fake.NewTransport()
	var pings int
	ep := &api.Endpoint{OnPing: func([]byte) { pings++ }}
	c, err := protocol.NewWSConnection(tr, control.NewServerPolicy(), ep)
	if err != nil {
		t.Fatal(err)
	}
	tr.Feed(
		encode(t, protocol.NewFrame(protocol.OpcodePing, []byte("x"), true), true),
		encode(t, closeFrame(protocol.CloseNormalClosure, "bye"), true),
	)
	if err := runConn(t, c, context.Background()); err != nil {
		t.Fatal(err)
	}
	sent := decodeSent(t, tr)
	if len(sent) != 2 || sent[0].Opcode != protocol.OpcodePong || sent[1].Opcode != protocol.OpcodeClose {
		t.Fatalf("sent %v", sent)
	}
	if sent[0].Masked || string(sent[0].Payload) != "x" {
		t.Fatalf("pong %+v", sent[0])
	}
	if pings != 1 || !tr.Closed() {
		t.Fatalf("pings=%d closed=%t", pings, tr.Closed())
	}
	stats := c.Stats()
	if stats["frames_received"] != 2 || stats["frames_sent"] != 2 {
		t.Fatalf("stats %v", stats)
	}
}

func TestConnectionReassemblesSplitFrames(t *testing.T) {
	tr := fake.NewTransport()
	got := make(chan string, 1)
	c, err := protocol.NewWSConnection(tr, control.NewServerPolicy(), &api.Endpoint{
		OnText: func(s string) { got <- s },
	})
	if err != nil {
		t.Fatal(err)
	}
	raw := append(
		encode(t, protocol.NewFrame(protocol.OpcodeText, []byte("Hel"), false), true),
		encode(t, protocol.NewFrame(protocol.OpcodeContinuation, []byte("lo ✓"), true), true)...,
	)
	for i := range raw {
		tr.Feed(raw[i : i+1])
	}
	tr.EndInbound()
	if err := runConn(t, c, context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case s := <-got:
		if s != "Hello ✓" {
			t.Fatalf("got %q", s)
		}
	default:
		t.Fatal("message not delivered")
	}
}

func TestConnectionRejectsUnmaskedClientFrame(t *testing.T) {
	tr := fake.NewTransport()
	c, _ := protocol.NewWSConnection(tr, control.NewServerPolicy(), nil)
	tr.Feed(encode(t, protocol.NewFrame(protocol.OpcodeText, []byte("hi"), true), false))
	err := runConn(t, c, context.Background())
	if !errors.Is(err, api.ErrProtocolViolation) {
		t.Fatalf("err = %v", err)
	}
	sent := decodeSent(t, tr)
	info, _ := protocol.ParseCloseInfo(sent[0].Payload)
	if info.Code != protocol.CloseProtocolError {
		t.Fatalf("close code %d", info.Code)
	}
}

func TestConnectionWithoutMaskCheck(t *testing.T) {
	tr := fake.NewTransport()
	var got string
	c, _ := protocol.NewWSConnection(tr, control.NewServerPolicy(), &api.Endpoint{
		OnText: func(s string) { got = s },
	}, protocol.WithoutMaskCheck())
	tr.Feed(encode(t, protocol.NewFrame(protocol.OpcodeText, []byte("hi"), true), false))
	tr.EndInbound()
	if err := runConn(t, c, context.Background()); err != nil {
		t.Fatal(err)
	}
	if got != "hi" {
		t.Fatalf("got %q", got)
	}
}

func TestConnectionOversizedFrameHeader(t *testing.T) {
	p := control.NewServerPolicy()
	p.BufferSize = 128
	p.MaxPayloadSize = 128
	tr := fake.NewTransport()
	c, _ := protocol.NewWSConnection(tr, p, nil)
	raw := encode(t, protocol.NewFrame(protocol.OpcodeBinary, make([]byte, 200), true), true)
	tr.Feed(raw[:8])
	err := runConn(t, c, context.Background())
	if !errors.Is(err, api.ErrMessageTooLarge) {
		t.Fatalf("err = %v", err)
	}
	info, _ := protocol.ParseCloseInfo(decodeSent(t, tr)[0].Payload)
	if info.Code != protocol.CloseMessageTooBig {
		t.Fatalf("close code %d", info.Code)
	}
}

func TestConnectionIdleTimeout(t *testing.T) {
	p := control.NewServerPolicy()
	p.IdleTimeout = 20 * time.Millisecond
	tr := fake.NewTransport()
	c, _ := protocol.NewWSConnection(tr, p, nil)
	err := runConn(t, c, context.Background())
	if !errors.Is(err, api.ErrTransportFailure) {
		t.Fatalf("err = %v", err)
	}
	info, _ := protocol.ParseCloseInfo(decodeSent(t, tr)[0].Payload)
	if info.Code != protocol.CloseGoingAway || info.Reason != "idle timeout" {
		t.Fatalf("close %+v", info)
	}
}

func TestConnectionPeerVanishes(t *testing.T) {
	tr := fake.NewTransport()
	var events []string
	var code int
	c, _ := protocol.NewWSConnection(tr, control.NewServerPolicy(), &api.Endpoint{
		OnOpen: func() { events = append(events, "open") },
		OnClose: func(c int, _ string) {
			code = c
			events = append(events, "close")
		},
	})
	tr.EndInbound()
	if err := runConn(t, c, context.Background()); err != nil {
		t.Fatal(err)
	}
	if code != protocol.CloseAbnormalClosure || c.Dispatcher().Status() != api.SessionClosed {
		t.Fatalf("code=%d status=%s", code, c.Dispatcher().Status())
	}
	if len(events) != 2 || events[0] != "open" || events[1] != "close" {
		t.Fatalf("events %v", events)
	}
}

func TestConnectionRecvFailure(t *testing.T) {
	tr := fake.NewTransport()
	tr.SetRecvError(errors.New("reset by peer"))
	c, _ := protocol.NewWSConnection(tr, control.NewServerPolicy(), nil)
	if err := runConn(t, c, context.Background()); !errors.Is(err, api.ErrTransportFailure) {
		t.Fatalf("err = %v", err)
	}
}

func TestConnectionContextCancel(t *testing.T) {
	tr := fake.NewTransport()
	c, _ := protocol.NewWSConnection(tr, control.NewServerPolicy(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	if err := runConn(t, c, ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	info, _ := protocol.ParseCloseInfo(decodeSent(t, tr)[0].Payload)
	if info.Code != protocol.CloseGoingAway {
		t.Fatalf("close %+v", info)
	}
}

func TestConnectionClientMasksOutbound(t *testing.T) {
	tr := fake.NewTransport()
	c, _ := protocol.NewWSConnection(tr, control.NewClientPolicy(), nil)
	tr.Feed(encode(t, protocol.NewFrame(protocol.OpcodePing, []byte("p"), true), false))
	tr.EndInbound()
	if err := runConn(t, c, context.Background()); err != nil {
		t.Fatal(err)
	}
	sent := decodeSent(t, tr)
	if len(sent) != 1 || !sent[0].Masked || string(sent[0].Payload) != "p" {
		t.Fatalf("sent %+v", sent)
	}
}

func TestConnectionConcurrentTerminate(t *testing.T) {
	tr := fake.NewTransport()
	c, _ := protocol.NewWSConnection(tr, control.NewServerPolicy(), nil)
	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Dispatcher().Terminate(protocol.CloseNormalClosure, "")
		}()
	}
	wg.Wait()
	tr.Feed(encode(t, closeFrame(protocol.CloseNormalClosure, ""), true))
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after close handshake")
	}
	if n := len(tr.Sent()); n != 1 {
		t.Fatalf("sent %d frames", n)
	}
}
