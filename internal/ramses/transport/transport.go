// Package transport turns a byte stream into a line stream and back, per
// spec.md §4.D: evofw3 "!" flags are surfaced but not parsed as packets, and
// a faked gateway's own address is rewritten to its real id before writing.
package transport

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ramses-rf/gateway/internal/ramses/rerr"
)

// FlagHandler is invoked with the raw text of an evofw3 "!"-prefixed control
// line (the "!" itself stripped).
type FlagHandler func(flag string)

// LineHandler is invoked for every complete, non-empty, non-flag line.
type LineHandler func(line string, dtm time.Time)

// PacketLogger appends every line read or written, in exact wire format,
// prefixed with an ISO-8601 local timestamp, per spec.md §6.
type PacketLogger struct {
	w io.Writer
}

// NewPacketLogger wraps w (expected append-only, opened once by the caller).
func NewPacketLogger(w io.Writer) *PacketLogger { return &PacketLogger{w: w} }

func (p *PacketLogger) Log(line string, dtm time.Time) {
	if p == nil || p.w == nil {
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", dtm.Format(time.RFC3339), line)
}

// fakedGatewayAddr is the placeholder source address evofw3 firmware uses
// for locally-originated packets; it must be rewritten to the real gateway
// id before the line reaches the wire (spec.md §4.D).
const fakedGatewayAddr = "18:000730"

// rewriteFakedAddr replaces a leading faked-gateway address with realID.
func rewriteFakedAddr(line, realID string) string {
	return strings.Replace(line, fakedGatewayAddr, realID, 1)
}

// Transport is the common read/write contract both implementations satisfy.
type Transport interface {
	// Start reads lines on the calling goroutine, invoking onLine for each
	// and onFlag for each "!" control line, and returns on Close or EOF.
	Start(onLine LineHandler, onFlag FlagHandler) error
	WriteLine(line string) error
	Close() error
}

// splitLines feeds r through a bufio.Scanner splitting on \r\n, discarding
// empty lines, and routing "!" lines to onFlag instead of onLine.
func splitLines(log zerolog.Logger, r io.Reader, pktlog *PacketLogger, now func() time.Time, onLine LineHandler, onFlag FlagHandler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), 64*1024)
	for scanner.Scan() {
		raw := strings.TrimRight(scanner.Text(), "\r")
		if raw == "" {
			continue
		}
		if strings.HasPrefix(raw, "!") {
			if onFlag != nil {
				onFlag(strings.TrimPrefix(raw, "!"))
			}
			continue
		}
		dtm := now()
		pktlog.Log(raw, dtm)
		if onLine != nil {
			onLine(raw, dtm)
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return rerr.TransportError("serial read loop terminated: %v", err)
	}
	return nil
}
