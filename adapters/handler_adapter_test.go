package adapters

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-wsmsg/api"
)

type textAndClose struct {
	texts []string
	code  int
}

func (l *textAndClose) OnText(msg string)          { l.texts = append(l.texts, msg) }
func (l *textAndClose) OnClose(code int, _ string) { l.code = code }

func TestBindDeclaresOnlyImplementedEvents(t *testing.T) {
	l := &textAndClose{}
	ep := Bind(l)
	if ep.OnText == nil || ep.OnClose == nil {
		t.Fatal("implemented callbacks missing")
	}
	if ep.OnBinary != nil || ep.OnTextStream != nil || ep.OnBinaryStream != nil ||
		ep.OnError != nil || ep.OnPing != nil || ep.OnPong != nil ||
		ep.OnOpen != nil || ep.OnFrame != nil {
		t.Fatal("unimplemented callbacks declared")
	}
	ep.OnText("hi")
	ep.OnClose(1000, "")
	if len(l.texts) != 1 || l.code != 1000 {
		t.Fatalf("listener saw %v %d", l.texts, l.code)
	}
	if !ep.WantsText() || ep.WantsBinary() {
		t.Fatal("wants mismatch")
	}
}

func TestBindNothing(t *testing.T) {
	ep := Bind(struct{}{})
	if ep.WantsText() || ep.WantsBinary() || ep.OnClose != nil {
		t.Fatal("empty listener declared interests")
	}
}

type observer struct {
	opened int
	ops    []byte
}

func (o *observer) OnOpen() { o.opened++ }
func (o *observer) OnFrame(opcode byte, fin bool, payload []byte) {
	o.ops = append(o.ops, opcode)
}

func TestBindOpenAndFrameListeners(t *testing.T) {
	o := &observer{}
	var buf bytes.Buffer
	ep := Chain(Bind(o), LoggingMiddleware(zerolog.New(&buf).Level(zerolog.DebugLevel)))
	if ep.OnOpen == nil || ep.OnFrame == nil || ep.WantsText() || ep.WantsBinary() {
		t.Fatal("open/frame listener bound wrong")
	}
	ep.OnOpen()
	ep.OnFrame(0x9, true, []byte("p"))
	if o.opened != 1 || len(o.ops) != 1 || o.ops[0] != 0x9 {
		t.Fatalf("observer saw %+v", o)
	}
	if !strings.Contains(buf.String(), `"event":"open"`) || !strings.Contains(buf.String(), `"event":"frame"`) {
		t.Fatalf("log = %s", buf.String())
	}
}

func TestMiddlewareKeepsInterestsAndOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(ep *api.Endpoint) *api.Endpoint {
			return wrap(ep, func(_ string, call func()) {
				order = append(order, name)
				call()
			})
		}
	}
	var got []byte
	ep := Chain(&api.Endpoint{OnBinary: func(b []byte) { got = b }}, mw("outer"), mw("inner"))
	if ep.OnText != nil || ep.OnClose != nil {
		t.Fatal("middleware declared new interests")
	}
	ep.OnBinary([]byte("x"))
	if string(got) != "x" || strings.Join(order, ",") != "outer,inner" {
		t.Fatalf("got %q order %v", got, order)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	ep := RecoveryMiddleware(log)(&api.Endpoint{OnText: func(string) { panic("boom") }})
	ep.OnText("x")
	if !strings.Contains(buf.String(), "panic recovered") || !strings.Contains(buf.String(), "boom") {
		t.Fatalf("log = %s", buf.String())
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)
	called := false
	ep := LoggingMiddleware(log)(&api.Endpoint{OnPing: func([]byte) { called = true }})
	ep.OnPing(nil)
	if !called || !strings.Contains(buf.String(), `"event":"ping"`) {
		t.Fatalf("called=%t log=%s", called, buf.String())
	}
}
