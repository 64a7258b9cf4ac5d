// Package binding implements the 1FC9 three-way bind handshake state
// machine of spec.md §4.F, grounded on the Fakeable device's
// _bind_request/_bind_waiting methods (devices_base.py).
package binding

import (
	"sync"
	"time"

	"github.com/ramses-rf/gateway/internal/ramses/address"
	"github.com/ramses-rf/gateway/internal/ramses/catalog"
	"github.com/ramses-rf/gateway/internal/ramses/command"
	"github.com/ramses-rf/gateway/internal/ramses/rerr"
)

// State is one node of the bind handshake state machine.
type State int

const (
	Unknown State = iota
	Unbound
	Listening  // bind-wait mode: waiting for an offer
	Offering   // bind-request mode: sent the offer, waiting for an accept
	Accepting  // bind-wait mode: sent the accept (W), waiting for the confirm
	Confirming // bind-request mode: received the accept, sending the confirm
	Bound
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "UNBOUND"
	case Listening:
		return "LISTENING"
	case Offering:
		return "OFFERING"
	case Accepting:
		return "ACCEPTING"
	case Confirming:
		return "CONFIRMING"
	case Bound:
		return "BOUND"
	default:
		return "UNKNOWN"
	}
}

// listenTimeout is how long a bind-wait listener stays armed for an offer,
// per devices_base.py's _bind_waiting (300s).
const listenTimeout = 300 * time.Second

// ackTimeout is how long the requester/acceptor waits for the next
// handshake leg once it has sent its own packet, per the same source (3s).
const ackTimeout = 3 * time.Second

// requestableCodes is the fixed set of codes a bind-request may offer, per
// spec.md §4.H; a request for any other code fails synchronously rather than
// being armed.
var requestableCodes = map[catalog.Code]bool{
	catalog.Code0002: true,
	catalog.Code1260: true,
	catalog.Code1290: true,
	catalog.Code30C9: true,
}

// Sender is the minimal command dispatch contract the handshake needs.
type Sender interface {
	Send(cmd *command.Command)
}

// Offer/Accept/Confirm mirror the three 1FC9 packets of the handshake:
// idx is the zone_idx/domain_id, Code is the code being bound, DeviceID is
// the offering/accepting device's own id.
type Tuple struct {
	Idx      string
	Code     catalog.Code
	DeviceID string
}

// Callback is invoked once the handshake reaches BOUND, with the final
// (confirm, for bind-wait; accept, for bind-request) message's tuple.
type Callback func(final Tuple)

// Handshake tracks one in-progress or completed bind for a single device
// acting in one role (requester or acceptor); a device that both offers and
// accepts different codes concurrently holds one Handshake per code.
type Handshake struct {
	mu sync.Mutex

	deviceID string
	code     catalog.Code
	state    State
	deadline time.Time

	sender   Sender
	callback Callback

	offer Tuple // the tuple this handshake is negotiating
}

// NewBindRequest starts bind-request mode (spec.md's "initiator"): it sends
// the I/1FC9 offer immediately and arms a 3s wait for the W accept. code
// must be one of requestableCodes; any other code fails synchronously
// rather than arming a handshake, per spec.md §4.H.
func NewBindRequest(sender Sender, deviceID string, code catalog.Code, idx string, gatewayID string, now time.Time, cb Callback) (*Handshake, error) {
	if !requestableCodes[code] {
		return nil, rerr.UnsupportedCode("bind-request code %s is not requestable", code)
	}
	h := &Handshake{
		deviceID: deviceID,
		code:     code,
		state:    Offering,
		deadline: now.Add(ackTimeout),
		sender:   sender,
		callback: cb,
		offer:    Tuple{Idx: idx, Code: code, DeviceID: deviceID},
	}
	h.sender.Send(offerCommand(deviceID, idx, code))
	return h, nil
}

// NewBindWait starts bind-wait mode (spec.md's "responder"): it arms a 300s
// wait for an I/1FC9 offer naming code.
func NewBindWait(sender Sender, deviceID string, code catalog.Code, idx string, now time.Time, cb Callback) *Handshake {
	return &Handshake{
		deviceID: deviceID,
		code:     code,
		state:    Listening,
		deadline: now.Add(listenTimeout),
		sender:   sender,
		callback: cb,
		offer:    Tuple{Idx: idx, Code: code, DeviceID: deviceID},
	}
}

// State returns the handshake's current node, for observability/tests.
func (h *Handshake) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// HandleOffer processes an incoming I/1FC9 offer while LISTENING (bind-wait
// mode): it replies with W/1FC9 (the accept) and moves to ACCEPTING.
func (h *Handshake) HandleOffer(offer Tuple, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != Listening || offer.Code != h.code {
		return
	}
	h.offer = offer
	h.state = Accepting
	h.deadline = now.Add(ackTimeout)
	h.sender.Send(acceptCommand(h.deviceID, h.offer.Idx, h.code, offer.DeviceID))
}

// HandleAccept processes an incoming W/1FC9 accept while OFFERING
// (bind-request mode): it replies with I/1FC9 (the confirm) and completes
// the handshake as BOUND.
func (h *Handshake) HandleAccept(accept Tuple, now time.Time) {
	h.mu.Lock()
	if h.state != Offering || accept.Code != h.code {
		h.mu.Unlock()
		return
	}
	h.state = Confirming
	h.sender.Send(confirmCommand(h.deviceID, h.offer.Idx, h.code, accept.DeviceID))
	h.state = Bound
	cb := h.callback
	final := accept
	h.mu.Unlock()
	if cb != nil {
		cb(final)
	}
}

// HandleConfirm processes an incoming I/1FC9 confirm while ACCEPTING
// (bind-wait mode): the handshake completes as BOUND.
func (h *Handshake) HandleConfirm(confirm Tuple, now time.Time) {
	h.mu.Lock()
	if h.state != Accepting || confirm.Code != h.code {
		h.mu.Unlock()
		return
	}
	h.state = Bound
	cb := h.callback
	final := confirm
	h.mu.Unlock()
	if cb != nil {
		cb(final)
	}
}

// CheckTimeout reports whether the handshake has expired without
// completing; callers remove it from any pending-handshake table on true.
func (h *Handshake) CheckTimeout(now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == Bound {
		return false
	}
	return now.After(h.deadline)
}

func offerCommand(deviceID, idx string, code catalog.Code) *command.Command {
	return command.New(catalog.I, deviceID, deviceID, catalog.Code1FC9, tuplePayload(idx, code, deviceID))
}

func acceptCommand(deviceID, idx string, code catalog.Code, dst string) *command.Command {
	cmd := command.New(catalog.W, deviceID, dst, catalog.Code1FC9, tuplePayload(idx, code, deviceID))
	return cmd
}

func confirmCommand(deviceID, idx string, code catalog.Code, dst string) *command.Command {
	cmd := command.New(catalog.I, deviceID, dst, catalog.Code1FC9, tuplePayload(idx, code, deviceID))
	return cmd
}

// tuplePayload renders one (idx, code, device-hex) 1FC9 tuple: 12 hex chars
// per spec.md's catalogue entry for 1FC9.
func tuplePayload(idx string, code catalog.Code, deviceID string) string {
	hex, err := address.EncodeHex(deviceID)
	if err != nil {
		hex = "000000"
	}
	return idx + string(code) + hex
}
