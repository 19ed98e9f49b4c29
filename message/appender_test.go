package message_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-wsmsg/api"
	"github.com/momentics/hioload-wsmsg/control"
	"github.com/momentics/hioload-wsmsg/message"
)

func testOptions(maxMessage int64, bufferSize int) message.Options {
	p := control.NewServerPolicy()
	p.MaxMessageSize = maxMessage
	p.BufferSize = bufferSize
	return message.Options{Policy: p}
}

func TestSimpleBinaryConcatenates(t *testing.T) {
	var got [][]byte
	m := message.NewSimpleBinary(testOptions(1024, 64), func(b []byte) { got = append(got, b) })
	for _, chunk := range []string{"Hello", " ", "World"} {
		if err := m.Append([]byte(chunk)); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.Complete(); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || string(got[0]) != "Hello World" {
		t.Fatalf("got %q", got)
	}
}

func TestSimpleBinaryEmptyMessage(t *testing.T) {
	var got []byte
	m := message.NewSimpleBinary(testOptions(16, 16), func(b []byte) { got = b })
	_ = m.Append(nil)
	if err := m.Complete(); err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("want empty non-nil slice, got %#v", got)
	}
}

func TestSizeCheckPrecedesBuffering(t *testing.T) {
	m := message.NewSimpleBinary(testOptions(8, 8), nil)
	if err := m.Append([]byte("12345")); err != nil {
		t.Fatal(err)
	}
	before := append([]byte(nil), m.Buffered()...)
	err := m.Append([]byte("6789"))
	if !errors.Is(err, api.ErrMessageTooLarge) {
		t.Fatalf("want message too large, got %v", err)
	}
	if !bytes.Equal(before, m.Buffered()) {
		t.Fatalf("buffer changed: %q -> %q", before, m.Buffered())
	}
	if m.Size() != 5 {
		t.Fatalf("size %d", m.Size())
	}
}

func TestAppendAfterCompleteFails(t *testing.T) {
	appenders := map[string]message.Appender{
		"simple-binary": message.NewSimpleBinary(testOptions(64, 64), nil),
		"simple-text":   message.NewSimpleText(testOptions(64, 64), nil),
		"discard":       message.NewDiscard(testOptions(64, 64), true),
		"stream-binary": message.NewBinaryStream(testOptions(64, 64), nil),
		"stream-text":   message.NewTextStream(testOptions(64, 64), nil),
	}
	for name, m := range appenders {
		t.Run(name, func(t *testing.T) {
			if err := m.Append([]byte("x")); err != nil {
				t.Fatal(err)
			}
			if err := m.Complete(); err != nil {
				t.Fatal(err)
			}
			if err := m.Append([]byte("y")); !errors.Is(err, api.ErrAppenderClosed) {
				t.Fatalf("append after complete: %v", err)
			}
			if err := m.Complete(); !errors.Is(err, api.ErrAppenderClosed) {
				t.Fatalf("second complete: %v", err)
			}
		})
	}
}

func TestSimpleTextFragments(t *testing.T) {
	var got []string
	m := message.NewSimpleText(testOptions(64, 64), func(s string) { got = append(got, s) })
	euro := []byte("€")
	for _, chunk := range [][]byte{[]byte("Hel"), []byte("lo "), euro[:1], euro[1:]} {
		if err := m.Append(chunk); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.Complete(); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "Hello €" {
		t.Fatalf("got %q", got)
	}
}

func TestSimpleTextTruncatedAtComplete(t *testing.T) {
	called := false
	m := message.NewSimpleText(testOptions(64, 64), func(string) { called = true })
	if err := m.Append([]byte{'o', 'k', 0xE2, 0x82}); err != nil {
		t.Fatal(err)
	}
	if err := m.Complete(); !errors.Is(err, api.ErrInvalidEncoding) {
		t.Fatalf("want invalid encoding, got %v", err)
	}
	if called {
		t.Fatal("torn message delivered")
	}
}

func TestSimpleTextFailsFast(t *testing.T) {
	m := message.NewSimpleText(testOptions(64, 64), nil)
	if err := m.Append([]byte{'a', 0xFF, 'b'}); !errors.Is(err, api.ErrInvalidEncoding) {
		t.Fatalf("want invalid encoding, got %v", err)
	}
	if m.Buffered() != "" {
		t.Fatalf("invalid chunk buffered: %q", m.Buffered())
	}
}

func TestDiscardStillValidates(t *testing.T) {
	m := message.NewDiscard(testOptions(4, 4), false)
	if err := m.Append([]byte("12345")); !errors.Is(err, api.ErrMessageTooLarge) {
		t.Fatalf("want message too large, got %v", err)
	}
	txt := message.NewDiscard(testOptions(64, 64), true)
	if err := txt.Append([]byte{0xC0, 0x80}); !errors.Is(err, api.ErrInvalidEncoding) {
		t.Fatalf("want invalid encoding, got %v", err)
	}
}

func TestBinaryStreamDeliversOnceAndDrains(t *testing.T) {
	opts := testOptions(1<<20, 16)
	var calls atomic.Int32
	result := make(chan []byte, 1)
	m := message.NewBinaryStream(opts, func(r io.ReadCloser) {
		calls.Add(1)
		data, err := io.ReadAll(r)
		if err != nil {
			t.Error(err)
		}
		result <- data
	})

	var want bytes.Buffer
	for i := 0; i < 50; i++ {
		chunk := bytes.Repeat([]byte{byte('a' + i%26)}, 13)
		want.Write(chunk)
		if err := m.Append(chunk); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.Complete(); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-result:
		if !bytes.Equal(got, want.Bytes()) {
			t.Fatalf("stream mismatch: %d vs %d bytes", len(got), want.Len())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not finish")
	}
	if calls.Load() != 1 {
		t.Fatalf("handler called %d times", calls.Load())
	}
}

func TestBinaryStreamBlocksProducer(t *testing.T) {
	opts := testOptions(1<<20, 8)
	var blocked atomic.Int32
	opts.Blocked = func() { blocked.Add(1) }
	release := make(chan struct{})
	result := make(chan []byte, 1)
	m := message.NewBinaryStream(opts, func(r io.ReadCloser) {
		<-release
		data, _ := io.ReadAll(r)
		result <- data
	})

	appended := make(chan error, 1)
	go func() {
		err := m.Append([]byte("0123456789abcdefghij"))
		if err == nil {
			err = m.Complete()
		}
		appended <- err
	}()

	select {
	case err := <-appended:
		t.Fatalf("producer did not block: %v", err)
	case <-time.After(30 * time.Millisecond):
	}
	if blocked.Load() == 0 {
		t.Fatal("blocked hook not called")
	}
	close(release)
	if err := <-appended; err != nil {
		t.Fatal(err)
	}
	if got := <-result; string(got) != "0123456789abcdefghij" {
		t.Fatalf("got %q", got)
	}
}

func TestBinaryStreamInterruptUnblocks(t *testing.T) {
	opts := testOptions(1<<20, 4)
	readErr := make(chan error, 1)
	started := make(chan struct{})
	m := message.NewBinaryStream(opts, func(r io.ReadCloser) {
		close(started)
		time.Sleep(20 * time.Millisecond)
		_, err := io.ReadAll(r)
		readErr <- err
	})
	appended := make(chan error, 1)
	go func() { appended <- m.Append([]byte("0123456789")) }()
	<-started
	m.Interrupt()
	if err := <-appended; !errors.Is(err, api.ErrAppenderClosed) {
		t.Fatalf("producer: %v", err)
	}
	if err := <-readErr; err != io.ErrUnexpectedEOF {
		t.Fatalf("consumer: %v", err)
	}
}

func TestBinaryStreamReaderCloseDropsRest(t *testing.T) {
	opts := testOptions(1<<20, 4)
	var wg sync.WaitGroup
	wg.Add(1)
	m := message.NewBinaryStream(opts, func(r io.ReadCloser) {
		defer wg.Done()
		p := make([]byte, 2)
		_, _ = r.Read(p)
		_ = r.Close()
	})
	if err := m.Append([]byte("0123456789")); err != nil {
		t.Fatal(err)
	}
	wg.Wait()
	if err := m.Append([]byte("more")); err != nil {
		t.Fatalf("append after reader close: %v", err)
	}
	if err := m.Complete(); err != nil {
		t.Fatal(err)
	}
}

func TestStreamSizeLimit(t *testing.T) {
	m := message.NewBinaryStream(testOptions(6, 4), func(r io.ReadCloser) { _, _ = io.Copy(io.Discard, r) })
	if err := m.Append([]byte("1234")); err != nil {
		t.Fatal(err)
	}
	if err := m.Append([]byte("567")); !errors.Is(err, api.ErrMessageTooLarge) {
		t.Fatalf("want message too large, got %v", err)
	}
	m.Abort()
}

func TestTextStreamRunes(t *testing.T) {
	result := make(chan string, 1)
	m := message.NewTextStream(testOptions(1024, 8), func(r api.TextReader) {
		var sb strings.Builder
		for {
			ch, _, err := r.ReadRune()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Error(err)
				break
			}
			sb.WriteRune(ch)
		}
		result <- sb.String()
	})
	msg := []byte("añ€𝄞 text over a small buffer")
	for i := 0; i < len(msg); i += 3 {
		end := i + 3
		if end > len(msg) {
			end = len(msg)
		}
		if err := m.Append(msg[i:end]); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.Complete(); err != nil {
		t.Fatal(err)
	}
	if got := <-result; got != string(msg) {
		t.Fatalf("got %q", got)
	}
}

func TestTextStreamInvalidReachesConsumer(t *testing.T) {
	readErr := make(chan error, 1)
	m := message.NewTextStream(testOptions(1024, 64), func(r api.TextReader) {
		_, err := io.ReadAll(r)
		readErr <- err
	})
	if err := m.Append([]byte("fine ")); err != nil {
		t.Fatal(err)
	}
	if err := m.Append([]byte{0xED, 0xA0, 0x80}); !errors.Is(err, api.ErrInvalidEncoding) {
		t.Fatalf("want invalid encoding, got %v", err)
	}
	if err := <-readErr; !errors.Is(err, api.ErrInvalidEncoding) && err != io.ErrUnexpectedEOF {
		t.Fatalf("consumer saw %v", err)
	}
}

func TestTextStreamTruncatedAtComplete(t *testing.T) {
	readErr := make(chan error, 1)
	m := message.NewTextStream(testOptions(1024, 64), func(r api.TextReader) {
		_, err := io.ReadAll(r)
		readErr <- err
	})
	if err := m.Append([]byte{'x', 0xF0, 0x9F}); err != nil {
		t.Fatal(err)
	}
	if err := m.Complete(); !errors.Is(err, api.ErrInvalidEncoding) {
		t.Fatalf("want invalid encoding, got %v", err)
	}
	if err := <-readErr; !errors.Is(err, api.ErrInvalidEncoding) {
		t.Fatalf("consumer saw %v", err)
	}
}

func TestStreamConsumerPanicIsRecovered(t *testing.T) {
	opts := testOptions(64, 64)
	recovered := make(chan any, 1)
	opts.Recover = func(v any) { recovered <- v }
	m := message.NewBinaryStream(opts, func(io.ReadCloser) { panic("boom") })
	if err := m.Append([]byte("x")); err != nil {
		t.Fatal(err)
	}
	select {
	case v := <-recovered:
		if v != "boom" {
			t.Fatalf("recovered %v", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("panic not reported")
	}
}

func TestStreamUsesExecutor(t *testing.T) {
	opts := testOptions(64, 64)
	var submitted atomic.Int32
	opts.Executor = api.ExecutorFunc(func(task func()) error {
		submitted.Add(1)
		go task()
		return nil
	})
	done := make(chan struct{})
	m := message.NewBinaryStream(opts, func(r io.ReadCloser) {
		_, _ = io.Copy(io.Discard, r)
		close(done)
	})
	_ = m.Append([]byte("a"))
	_ = m.Append([]byte("b"))
	_ = m.Complete()
	<-done
	if submitted.Load() != 1 {
		t.Fatalf("submitted %d tasks", submitted.Load())
	}
}
