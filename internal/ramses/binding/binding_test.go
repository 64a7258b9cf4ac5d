package binding

import (
	"testing"
	"time"

	"github.com/ramses-rf/gateway/internal/ramses/catalog"
	"github.com/ramses-rf/gateway/internal/ramses/command"
)

type fakeSender struct {
	sent []*command.Command
}

func (f *fakeSender) Send(cmd *command.Command) { f.sent = append(f.sent, cmd) }

// TestBindScenario reproduces spec.md §8 S3: a faked device offers, the
// controller accepts, the faked device confirms, and the handshake ends
// BOUND with the callback fired on the final message.
func TestBindScenario(t *testing.T) {
	now := time.Unix(0, 0)

	requester := &fakeSender{}
	var fired Tuple
	h, err := NewBindRequest(requester, "34:021943", catalog.Code30C9, "00", "18:000730", now, func(final Tuple) {
		fired = final
	})
	if err != nil {
		t.Fatalf("NewBindRequest: %v", err)
	}

	if h.State() != Offering {
		t.Fatalf("state after NewBindRequest = %v, want OFFERING", h.State())
	}
	if len(requester.sent) != 1 {
		t.Fatalf("expected the offer to be sent immediately, got %d sends", len(requester.sent))
	}

	accept := Tuple{Idx: "03", Code: catalog.Code30C9, DeviceID: "01:054173"}
	h.HandleAccept(accept, now.Add(time.Second))

	if h.State() != Bound {
		t.Fatalf("state after accept = %v, want BOUND", h.State())
	}
	if len(requester.sent) != 2 {
		t.Fatalf("expected the confirm to be sent, got %d sends total", len(requester.sent))
	}
	if fired != accept {
		t.Errorf("callback fired with %#v, want %#v", fired, accept)
	}
}

// TestBindWaitScenario covers the responder side of the same handshake.
func TestBindWaitScenario(t *testing.T) {
	now := time.Unix(0, 0)
	acceptor := &fakeSender{}
	var fired Tuple

	h := NewBindWait(acceptor, "01:054173", catalog.Code2309, "03", now, func(final Tuple) {
		fired = final
	})
	if h.State() != Listening {
		t.Fatalf("state after NewBindWait = %v, want LISTENING", h.State())
	}

	offer := Tuple{Idx: "00", Code: catalog.Code2309, DeviceID: "34:021943"}
	h.HandleOffer(offer, now)
	if h.State() != Accepting {
		t.Fatalf("state after offer = %v, want ACCEPTING", h.State())
	}
	if len(acceptor.sent) != 1 {
		t.Fatalf("expected the accept to be sent, got %d sends", len(acceptor.sent))
	}

	confirm := Tuple{Idx: "00", Code: catalog.Code2309, DeviceID: "34:021943"}
	h.HandleConfirm(confirm, now.Add(time.Second))
	if h.State() != Bound {
		t.Fatalf("state after confirm = %v, want BOUND", h.State())
	}
	if fired != confirm {
		t.Errorf("callback fired with %#v, want %#v", fired, confirm)
	}
}

func TestHandshakeTimesOutWhenUnanswered(t *testing.T) {
	now := time.Unix(0, 0)
	h, err := NewBindRequest(&fakeSender{}, "34:021943", catalog.Code30C9, "00", "18:000730", now, nil)
	if err != nil {
		t.Fatalf("NewBindRequest: %v", err)
	}

	if h.CheckTimeout(now.Add(2 * time.Second)) {
		t.Error("should not time out before the 3s ack window elapses")
	}
	if !h.CheckTimeout(now.Add(4 * time.Second)) {
		t.Error("should time out once the 3s ack window elapses with no accept")
	}
}

func TestBoundHandshakeNeverTimesOut(t *testing.T) {
	now := time.Unix(0, 0)
	requester := &fakeSender{}
	h, err := NewBindRequest(requester, "34:021943", catalog.Code30C9, "00", "18:000730", now, nil)
	if err != nil {
		t.Fatalf("NewBindRequest: %v", err)
	}
	h.HandleAccept(Tuple{Idx: "03", Code: catalog.Code30C9, DeviceID: "01:054173"}, now)

	if h.CheckTimeout(now.Add(10 * time.Hour)) {
		t.Error("a completed handshake must never report a timeout")
	}
}

// TestBindRequestRejectsUnsupportedCode covers spec.md §4.H's fixed request
// set: a bind-request for a code outside {0002,1260,1290,30C9} fails
// synchronously instead of arming a handshake.
func TestBindRequestRejectsUnsupportedCode(t *testing.T) {
	now := time.Unix(0, 0)
	sender := &fakeSender{}
	h, err := NewBindRequest(sender, "34:021943", catalog.Code2309, "00", "18:000730", now, nil)
	if err == nil {
		t.Fatal("expected an error for a non-requestable bind code")
	}
	if h != nil {
		t.Errorf("expected a nil Handshake on rejection, got %#v", h)
	}
	if len(sender.sent) != 0 {
		t.Errorf("expected no offer to be sent, got %d sends", len(sender.sent))
	}
}
