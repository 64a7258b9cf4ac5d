// Package message turns a decoded packet into a typed Message: a per-code
// payload parse, with array-code splitting and 3-second fragment joining,
// per spec.md §4.C and §4.A.
package message

import (
	"time"

	"github.com/ramses-rf/gateway/internal/ramses/catalog"
	"github.com/ramses-rf/gateway/internal/ramses/packet"
	"github.com/ramses-rf/gateway/internal/ramses/rerr"
)

// Record is one decoded field set, either the whole payload (non-array
// codes) or one element of an array payload.
type Record map[string]any

// Message is a packet plus its decoded payload.
type Message struct {
	Packet  *packet.Packet
	Fields  Record   // populated for non-array codes
	Array   []Record // populated for array codes; index matches wire order
	IsArray bool
}

// arrayJoinWindow is the fragment-concatenation window of spec.md §4.A
// scenario 4 ("arriving within 3 seconds").
const arrayJoinWindow = 3 * time.Second

// Decode parses pkt's payload into a Message. prev is the immediately
// preceding decoded Message for the same code+src (or nil); it is consulted
// to join split array fragments per spec.md §4.A.
func Decode(pkt *packet.Packet, prev *Message) (*Message, error) {
	entry := catalog.Schema[pkt.Code]
	if entry == nil {
		// An uncatalogued code is parsed only up to framing (already validated
		// by packet.Parse) and stored opaque; it never fails the dispatcher,
		// per spec.md §7 ("Unknown codes ... never take down the dispatcher").
		return &Message{Packet: pkt, Fields: Record{"raw_hex": pkt.Payload}}, nil
	}

	// The catalogue regex is the authoritative shape check for (verb, code),
	// precompiled once at package init and applied here at frame entry, per
	// spec.md §9 ("Regex-heavy parsers") — never recompiled per packet, and
	// never skipped before handing off to the per-code parser below.
	shape, ok := entry.Verbs[pkt.Verb]
	if !ok {
		return nil, rerr.InvalidPayload("verb %s not valid for code %s", pkt.Verb, pkt.Code)
	}
	if !shape.MatchString(pkt.Payload) {
		return nil, rerr.InvalidPayload("payload %q does not match %s/%s shape", pkt.Payload, pkt.Verb, pkt.Code)
	}

	parser := parsers[pkt.Code]

	// RQ queries often carry a bare index with no trailing record (e.g. a
	// 000A request for just zone_idx); such payloads are too short to be an
	// array and are decoded as a single record instead.
	recordCount := 0
	if entry.Array != nil && entry.Array.RecordHexLen > 0 && len(pkt.Payload) >= entry.Array.RecordHexLen && len(pkt.Payload)%entry.Array.RecordHexLen == 0 {
		recordCount = len(pkt.Payload) / entry.Array.RecordHexLen
	}
	// 3150 is only an array when a UFH controller packs more than one
	// zone's demand into the payload; a single-domain 3150 (the common case,
	// e.g. a TRV/BDR relay reporting its own demand) decodes as one value,
	// per original_source/ramses_rf/protocol/ramses.py's CODES_WITH_ARRAYS
	// (which keys 3150's array form to source type "02", the UFC).
	minRecords := 1
	if pkt.Code == catalog.Code3150 {
		minRecords = 2
	}
	// Only an I packet is split into records: the W/RQ/RP shapes in
	// catalog.Schema admit a single record, which decodes as plain Fields.
	isArray := pkt.Verb == catalog.I && recordCount > 0 && recordCount >= minRecords

	if !isArray {
		fields := Record{}
		if parser != nil {
			var err error
			fields, err = parser(pkt.Verb, pkt.Payload)
			if err != nil {
				return nil, err
			}
		}
		return &Message{Packet: pkt, Fields: fields}, nil
	}

	records, err := splitArray(pkt.Payload, entry.Array.RecordHexLen, parser, pkt.Verb)
	if err != nil {
		return nil, err
	}

	msg := &Message{Packet: pkt, Array: records, IsArray: true}
	return joinArrayFragment(msg, prev), nil
}

// splitArray slices payload into fixed-width hex records and runs parser
// (if any) over each, tagging the result with its record index.
func splitArray(payload string, recordHexLen int, parser payloadParser, verb catalog.Verb) ([]Record, error) {
	if recordHexLen <= 0 || len(payload)%recordHexLen != 0 {
		return nil, rerr.InvalidPayload("array payload length %d not a multiple of record length %d", len(payload), recordHexLen)
	}
	n := len(payload) / recordHexLen
	out := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		raw := payload[i*recordHexLen : (i+1)*recordHexLen]
		var rec Record
		if parser != nil {
			var err error
			rec, err = parser(verb, raw)
			if err != nil {
				return nil, err
			}
		} else {
			rec = Record{}
		}
		rec["_idx"] = raw[:2]
		out = append(out, rec)
	}
	return out, nil
}

// joinArrayFragment implements the original implementation's
// detect_array_fragment: a later I-packet of the same code/src arriving
// within arrayJoinWindow of an earlier array packet is treated as the tail
// of the same logical array and its records are appended to prev's. A packet
// that repeats a record index prev already holds is a complete array, not a
// tail, and is returned unjoined.
func joinArrayFragment(this, prev *Message) *Message {
	if prev == nil || !prev.IsArray {
		return this
	}
	if this.Packet.Code != prev.Packet.Code || this.Packet.Src != prev.Packet.Src {
		return this
	}
	if this.Packet.Verb != catalog.I || prev.Packet.Verb != catalog.I {
		return this
	}
	if this.Packet.DTM.Sub(prev.Packet.DTM) >= arrayJoinWindow {
		return this
	}
	seen := map[any]bool{}
	for _, rec := range prev.Array {
		seen[rec["_idx"]] = true
	}
	for _, rec := range this.Array {
		if seen[rec["_idx"]] {
			return this
		}
	}
	this.Array = append(append([]Record{}, prev.Array...), this.Array...)
	return this
}
