// Package entities holds the live graph the gateway maintains: devices,
// systems, zones, DHW and UFH circuits, each backed by a message store that
// remembers the latest payload per (code, verb, context), per spec.md §5.
package entities

import (
	"strconv"
	"sync"
	"time"

	"github.com/ramses-rf/gateway/internal/ramses/catalog"
	"github.com/ramses-rf/gateway/internal/ramses/message"
)

// qosTxLimit mirrors the original implementation's _QOS_TX_LIMIT: once an
// entity has sent this many commands with no matching reply, further sends
// from it are logged as deprecated (superseded at the transport layer by
// qos.Engine, but entities track their own count for _send_cmd-style guards).
const qosTxLimit = 12

// record is one stored message plus its receipt time, used for TTL expiry.
type record struct {
	msg *message.Message
	at  time.Time
}

// Store is the per-entity message database: the latest message per code
// (`latest_by_code`), and the latest per (code, verb, context) triple
// (`by_code_verb_context`), mirroring the original's `_msgs`/`_msgz`.
type Store struct {
	mu sync.RWMutex

	latestByCode map[catalog.Code]*record
	byCVC        map[catalog.Code]map[catalog.Verb]map[string]*record

	txCount int // consecutive sends with no matching reply
}

// NewStore returns an empty message store.
func NewStore() *Store {
	return &Store{
		latestByCode: map[catalog.Code]*record{},
		byCVC:        map[catalog.Code]map[catalog.Verb]map[string]*record{},
	}
}

// context returns the key used to disambiguate messages of the same
// code/verb, per spec.md §4.F's "context is code-specific (e.g. zone
// index, OT DataID, fragment index)": the first array-record index for an
// array code, the OpenTherm DataID for 3220, the fragment index for 0404,
// else "".
func context(msg *message.Message) string {
	if msg.IsArray && len(msg.Array) > 0 {
		if idx, ok := msg.Array[0]["_idx"].(string); ok {
			return idx
		}
	}
	switch msg.Packet.Code {
	case catalog.Code3220:
		if dataID, ok := msg.Fields["data_id"].(int); ok {
			return strconv.Itoa(dataID)
		}
	case catalog.Code0404:
		if fragIdx, ok := msg.Fields["frag_idx"].(int); ok {
			return strconv.Itoa(fragIdx)
		}
	}
	return ""
}

// Put records msg, keyed by its code/verb/context, per spec.md §5. I and RP
// verbs additionally update the "latest by code" slot used by most property
// getters.
func (s *Store) Put(msg *message.Message, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := msg.Packet.Code
	verb := msg.Packet.Verb
	ctx := context(msg)
	rec := &record{msg: msg, at: now}

	if verb == catalog.I || verb == catalog.RP {
		s.latestByCode[code] = rec
	}

	if s.byCVC[code] == nil {
		s.byCVC[code] = map[catalog.Verb]map[string]*record{}
	}
	if s.byCVC[code][verb] == nil {
		s.byCVC[code][verb] = map[string]*record{}
	}
	s.byCVC[code][verb][ctx] = rec
}

// Latest returns the newest message for code, regardless of TTL.
func (s *Store) Latest(code catalog.Code) *message.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := s.latestByCode[code]
	if r == nil {
		return nil
	}
	return r.msg
}

// LatestValid returns the newest message for code, or nil if that code has
// an expiry per catalog.Schema and it has elapsed since receipt. Lazy
// expiry: nothing is evicted proactively, entries simply stop being
// returned once stale, per spec.md §5 ("TTL-aware lazy expiry").
func (s *Store) LatestValid(code catalog.Code, now time.Time) *message.Message {
	s.mu.RLock()
	r := s.latestByCode[code]
	s.mu.RUnlock()
	if r == nil {
		return nil
	}
	entry := catalog.Schema[code]
	if entry != nil && entry.HasExpiry && now.Sub(r.at) > entry.TTL {
		return nil
	}
	return r.msg
}

// ByVerbContext returns the newest message matching code/verb/ctx.
func (s *Store) ByVerbContext(code catalog.Code, verb catalog.Verb, ctx string) *message.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byVerb := s.byCVC[code]
	if byVerb == nil {
		return nil
	}
	byCtx := byVerb[verb]
	if byCtx == nil {
		return nil
	}
	r := byCtx[ctx]
	if r == nil {
		return nil
	}
	return r.msg
}

// NoteSendWithoutReply increments the consecutive-unanswered-send counter
// and reports whether it has just crossed qosTxLimit, per the original's
// _qos_function.
func (s *Store) NoteSendWithoutReply() (justDeprecated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount++
	return s.txCount == qosTxLimit
}

// NoteReplyReceived resets the consecutive-send counter.
func (s *Store) NoteReplyReceived() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount = 0
}

// IsSendDeprecated reports whether this entity has exceeded the duty-cycle
// threshold for unanswered sends.
func (s *Store) IsSendDeprecated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.txCount >= qosTxLimit
}
