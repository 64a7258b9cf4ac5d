package opentherm

import "sync"

// supportState mirrors the tri-state of the original implementation's
// _msgs_ot_supported: unknown until a reply is seen, then latched true or
// false. A DataID is only ever recorded unsupported once the *second*
// Data-Invalid/Unknown-DataId reply arrives, matching the boundary behaviour
// of spec.md §8 scenario S5.
type supportState int

const (
	stateUnknown supportState = iota
	statePendingUnsupported
	stateSupported
	stateUnsupported
)

// SupportTracker records, per DataID, whether an OTB boiler has answered with
// a usable value, grounded on devices_heat.py's _handle_3220/_msgs_ot_supported
// latching logic (two consecutive invalid replies before a DataID is
// considered permanently unsupported).
type SupportTracker struct {
	mu    sync.Mutex
	state map[int]supportState
}

// NewSupportTracker returns an empty tracker.
func NewSupportTracker() *SupportTracker {
	return &SupportTracker{state: map[int]supportState{}}
}

// Observe records msg's support signal for its DataID. It is idempotent in
// the sense required by S5: once a DataID is latched unsupported, further
// identical replies do not change or re-log state.
func (t *SupportTracker) Observe(msg *Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.state[msg.DataID]
	if cur == stateUnsupported {
		return
	}

	if msg.Supported {
		t.state[msg.DataID] = stateSupported
		return
	}

	if cur == statePendingUnsupported {
		t.state[msg.DataID] = stateUnsupported
		return
	}
	t.state[msg.DataID] = statePendingUnsupported
}

// Schema returns the DataIDs currently believed supported, keyed by name,
// suitable for an opentherm_schema property: DataIDs latched unsupported
// are omitted, per spec.md §8 S5.
func (t *SupportTracker) Schema() map[int]string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := map[int]string{}
	for id, st := range t.state {
		if st == stateUnsupported {
			continue
		}
		entry, ok := DataIDs[id]
		if !ok {
			continue
		}
		out[id] = entry.Name
	}
	return out
}

// IsUnsupported reports whether id has been latched unsupported (spec.md §8
// S5).
func (t *SupportTracker) IsUnsupported(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state[id] == stateUnsupported
}
