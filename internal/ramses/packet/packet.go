// Package packet implements the RAMSES-II wire codec: ASCII line <-> typed
// frame, per spec.md §4.B. Parsing and serialisation are total and
// deterministic on well-formed input; round-trip identity holds for any line
// that isn't an evofw3 "!" control flag.
package packet

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ramses-rf/gateway/internal/ramses/address"
	"github.com/ramses-rf/gateway/internal/ramses/catalog"
	"github.com/ramses-rf/gateway/internal/ramses/rerr"
)

// Packet is a parsed wire frame, per spec.md §3 ("Packet").
type Packet struct {
	DTM     time.Time
	RSSI    string // 3 ASCII digits, "000" when synthesised
	Verb    catalog.Verb
	Seq     string // "---" or a 3-digit sequence number
	Addr0   string
	Addr1   string
	Addr2   string
	Code    catalog.Code
	Length  int
	Payload string // hex, uppercase

	Src string
	Dst string
}

var lineRe = regexp.MustCompile(
	`^(\d{3}) ( I|RQ|RP| W) (---|\d{3}) (\S{9}) (\S{9}) (\S{9}) ([0-9a-fA-F]{4}) (\d{3}) ([0-9a-fA-F]*)$`,
)

// IsFlagLine reports whether line is an evofw3 control flag, passed through
// to the transport untouched (spec.md §4.B/§4.D).
func IsFlagLine(line string) bool {
	return strings.HasPrefix(line, "!")
}

// Parse decodes one ASCII line into a Packet. dtm is the local receipt time,
// stamped by the transport (the wire format itself carries no timestamp).
func Parse(line string, dtm time.Time) (*Packet, error) {
	m := lineRe.FindStringSubmatch(line)
	if m == nil {
		return nil, rerr.InvalidPayload("malformed line: %q", line)
	}

	verb := catalog.Verb(strings.TrimSpace(m[2]))
	addr0, addr1, addr2 := m[4], m[5], m[6]

	for _, a := range []string{addr0, addr1, addr2} {
		if !address.IsValidID(a) {
			return nil, rerr.InvalidPayload("malformed address %q in line %q", a, line)
		}
	}

	length, err := strconv.Atoi(m[8])
	if err != nil {
		return nil, rerr.InvalidPayload("malformed length %q", m[8])
	}
	payload := strings.ToUpper(m[9])
	if len(payload) != 2*length {
		return nil, rerr.InvalidPayload("length byte %d but %d hex chars in %q", length, len(payload), line)
	}

	srcDst, err := address.Resolve(addr0, addr1, addr2)
	if err != nil {
		return nil, rerr.InvalidAddrSet("%v", err)
	}

	return &Packet{
		DTM:     dtm,
		RSSI:    m[1],
		Verb:    verb,
		Seq:     m[3],
		Addr0:   addr0,
		Addr1:   addr1,
		Addr2:   addr2,
		Code:    catalog.Code(strings.ToUpper(m[7])),
		Length:  length,
		Payload: payload,
		Src:     srcDst.Src,
		Dst:     srcDst.Dst,
	}, nil
}

// Serialise is the inverse of Parse: it renders a Packet back to its exact
// wire line (without the trailing \r\n, which is the transport's concern).
func (p *Packet) Serialise() string {
	verb := string(p.Verb)
	if len(verb) == 1 {
		verb = " " + verb
	}
	return fmt.Sprintf("%s %s %s %s %s %s %s %03d %s",
		p.RSSI, verb, p.Seq, p.Addr0, p.Addr1, p.Addr2, p.Code, p.Length, p.Payload)
}

// IsBroadcast reports whether this packet's source and destination coincide.
func (p *Packet) IsBroadcast() bool { return p.Src == p.Dst }
