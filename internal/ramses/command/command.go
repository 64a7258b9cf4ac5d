// Package command builds outbound RAMSES-II commands and derives the reply
// header used by the QoS layer to correlate responses, per spec.md §4.E.
package command

import (
	"fmt"
	"time"

	"github.com/ramses-rf/gateway/internal/ramses/address"
	"github.com/ramses-rf/gateway/internal/ramses/catalog"
)

// Priority orders the QoS send queue; lower numeric value sends sooner.
type Priority int

const (
	PriorityHighest Priority = iota
	PriorityHigh
	PriorityDefault
	PriorityLow
	PriorityLowest
)

// ReplyHeader identifies the packet that satisfies a command, per spec.md
// §4.E: (verb', code, src, dst, ctx).
type ReplyHeader struct {
	Verb catalog.Verb
	Code catalog.Code
	Src  string
	Dst  string
	Ctx  string
}

func (h ReplyHeader) String() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", h.Verb, h.Code, h.Src, h.Dst, h.Ctx)
}

// expectedReplyVerb maps a sent verb to the verb its reply carries.
func expectedReplyVerb(v catalog.Verb) catalog.Verb {
	switch v {
	case catalog.RQ:
		return catalog.RP
	case catalog.W:
		return catalog.I
	default:
		return v
	}
}

// Command is one outbound frame plus its QoS contract.
type Command struct {
	Verb    catalog.Verb
	Src     string
	Dst     string
	Code    catalog.Code
	Payload string // hex

	Priority       Priority
	Retries        int // default 3
	Timeout        time.Duration
	DisableBackoff bool
	Ctx            string // code-specific context used for reply correlation

	Callback func(reply *ReplyHeader, payload string, err error)

	enqueuedAt time.Time
}

// DefaultRetries is used when a Command is built via New without overriding it.
const DefaultRetries = 3

// DefaultTimeout is the per-attempt reply wait when unset.
const DefaultTimeout = 3 * time.Second

// New builds a Command with the spec's default QoS contract (3 retries,
// 3s timeout, DEFAULT priority).
func New(verb catalog.Verb, src, dst string, code catalog.Code, payloadHex string) *Command {
	return &Command{
		Verb:     verb,
		Src:      src,
		Dst:      dst,
		Code:     code,
		Payload:  payloadHex,
		Priority: PriorityDefault,
		Retries:  DefaultRetries,
		Timeout:  DefaultTimeout,
	}
}

// ReplyHeader computes the header a reply to this command must match.
func (c *Command) ReplyHeader() ReplyHeader {
	return ReplyHeader{
		Verb: expectedReplyVerb(c.Verb),
		Code: c.Code,
		Src:  c.Dst, // the reply comes from whoever we addressed
		Dst:  c.Src,
		Ctx:  c.Ctx,
	}
}

// EnqueuedAt returns the time the command was placed on the send queue, used
// for FIFO-within-priority ordering (spec.md §4.E).
func (c *Command) EnqueuedAt() time.Time { return c.enqueuedAt }

// MarkEnqueued stamps the enqueue time; called exactly once by the queue.
func (c *Command) MarkEnqueued(t time.Time) { c.enqueuedAt = t }

// Line renders the command as a bare RAMSES-II wire line (no \r\n, no
// gateway-address rewrite - that is the transport's job for faked devices).
func (c *Command) Line(gatewayID string) string {
	verb := string(c.Verb)
	if len(verb) == 1 {
		verb = " " + verb
	}
	src := c.Src
	if src == "" {
		src = gatewayID
	}
	length := len(c.Payload) / 2
	if c.Dst == src || c.Dst == "" {
		return fmt.Sprintf("%s --- %s %s %s %s %03d %s", verb, src, address.NUL, src, c.Code, length, c.Payload)
	}
	return fmt.Sprintf("%s --- %s %s %s %s %03d %s", verb, src, c.Dst, address.NUL, c.Code, length, c.Payload)
}
