package qos

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ramses-rf/gateway/internal/ramses/catalog"
	"github.com/ramses-rf/gateway/internal/ramses/command"
)

// fakeWriter records every line written instead of touching a real port.
type fakeWriter struct {
	mu    sync.Mutex
	lines []string
}

func (w *fakeWriter) WriteLine(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines = append(w.lines, line)
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.lines)
}

func newTestEngine(writer Writer) *Engine {
	log := zerolog.Nop()
	return NewEngine(log, writer, "18:000730", false, nil)
}

// TestSendWritesLine exercises the basic enqueue -> drain -> write path.
func TestSendWritesLine(t *testing.T) {
	w := &fakeWriter{}
	e := newTestEngine(w)
	cmd := command.New(catalog.RQ, "18:000730", "01:191718", catalog.Code3EF1, "00")
	e.Send(cmd)
	e.drain()
	if w.count() != 1 {
		t.Fatalf("expected 1 line written, got %d", w.count())
	}
}

func TestDisableSendingDropsWrites(t *testing.T) {
	w := &fakeWriter{}
	log := zerolog.Nop()
	e := NewEngine(log, w, "18:000730", true, nil)
	cmd := command.New(catalog.RQ, "18:000730", "01:191718", catalog.Code3EF1, "00")
	e.Send(cmd)
	e.drain()
	if w.count() != 0 {
		t.Errorf("expected no bytes written with DisableSending, got %d", w.count())
	}
}

// TestHandleReplyInvokesCallback covers spec.md §4.E reply correlation.
func TestHandleReplyInvokesCallback(t *testing.T) {
	w := &fakeWriter{}
	e := newTestEngine(w)
	done := make(chan *command.ReplyHeader, 1)
	cmd := command.New(catalog.RQ, "18:000730", "01:191718", catalog.Code3EF1, "00")
	cmd.Callback = func(reply *command.ReplyHeader, payload string, err error) {
		done <- reply
	}
	e.Send(cmd)
	e.drain()

	e.HandleReply(cmd.ReplyHeader(), "00012345012345012345")

	select {
	case reply := <-done:
		if reply == nil || reply.Src != "01:191718" {
			t.Errorf("callback reply = %+v, want src 01:191718", reply)
		}
	default:
		t.Fatal("callback was not invoked")
	}
}

// TestDeprecationAfterTwelveConsecutiveSends covers spec.md §8 S4: the 13th
// consecutive send from a device with no reply is suppressed with a logged
// warning and no bytes written; the 14th is likewise.
func TestDeprecationAfterTwelveConsecutiveSends(t *testing.T) {
	w := &fakeWriter{}
	e := newTestEngine(w)

	for i := 0; i < DeprecationThreshold; i++ {
		cmd := command.New(catalog.RQ, "13:000001", "13:000001", catalog.Code0008, "00")
		e.Send(cmd)
		e.drain()
	}
	if w.count() != DeprecationThreshold {
		t.Fatalf("expected %d lines written before deprecation, got %d", DeprecationThreshold, w.count())
	}
	if e.IsDeprecated("13:000001") {
		t.Fatal("should not be deprecated yet at exactly the threshold")
	}

	// 13th send: the attempt itself must be suppressed, per spec.md §8 S4.
	cmd13 := command.New(catalog.RQ, "13:000001", "13:000001", catalog.Code0008, "00")
	e.Send(cmd13)
	e.drain()
	if w.count() != DeprecationThreshold {
		t.Fatalf("the 13th send should be dropped, not written; got %d lines", w.count())
	}
	if !e.IsDeprecated("13:000001") {
		t.Fatal("expected device to be deprecated after 12 consecutive unanswered sends")
	}

	// 14th send: likewise suppressed, no bytes written.
	cmd14 := command.New(catalog.RQ, "13:000001", "13:000001", catalog.Code0008, "00")
	e.Send(cmd14)
	e.drain()
	if w.count() != DeprecationThreshold {
		t.Errorf("14th send should be suppressed, line count changed to %d", w.count())
	}
}

// TestReplyResetsDeprecationCounter covers spec.md §4.E: "the counter resets
// on the first matching reply."
func TestReplyResetsDeprecationCounter(t *testing.T) {
	w := &fakeWriter{}
	e := newTestEngine(w)

	var last *command.Command
	for i := 0; i < DeprecationThreshold+1; i++ {
		last = command.New(catalog.RQ, "13:000001", "13:000001", catalog.Code0008, "00")
		e.Send(last)
		e.drain()
	}
	if !e.IsDeprecated("13:000001") {
		t.Fatal("expected deprecation after threshold+1 sends")
	}

	e.HandleReply(last.ReplyHeader(), "000000")
	if e.IsDeprecated("13:000001") {
		t.Fatal("a matching reply should clear deprecation")
	}

	cmd := command.New(catalog.RQ, "13:000001", "13:000001", catalog.Code0008, "00")
	e.Send(cmd)
	e.drain()
	if w.count() != DeprecationThreshold+1 {
		t.Errorf("expected send to succeed after deprecation clears, line count = %d", w.count())
	}
}

// TestExpiredCallbackAfterRetriesExhausted covers §4.E: the callback fires
// with an ExpiredCallback-carrying error once retries are exhausted.
func TestExpiredCallbackAfterRetriesExhausted(t *testing.T) {
	w := &fakeWriter{}
	e := newTestEngine(w)
	tick := 0
	e.now = func() time.Time {
		tick++
		return time.Unix(int64(tick)*10, 0) // force every checkTimeouts to see elapsed deadlines
	}

	result := make(chan error, 1)
	cmd := command.New(catalog.RQ, "18:000730", "01:191718", catalog.Code3EF1, "00")
	cmd.Retries = 2
	cmd.Timeout = time.Millisecond
	cmd.Callback = func(reply *command.ReplyHeader, payload string, err error) {
		if reply == nil {
			result <- err
		}
	}

	e.Send(cmd)
	e.drain()
	// first attempt times out -> retry (attempt 1)
	e.checkTimeouts()
	// second attempt (final) times out -> exhausted, callback fires
	e.checkTimeouts()

	select {
	case err := <-result:
		if err == nil {
			t.Fatal("expected a non-nil expiry error")
		}
	default:
		t.Fatal("expected the callback to fire after retries were exhausted")
	}
}
