package transport

import (
	"bufio"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// FileTransport is a one-way replay transport for tests: it reads
// pre-recorded wire lines from a file or reader and never writes to the
// medium, per spec.md §4.D.
type FileTransport struct {
	log    zerolog.Logger
	r      io.Reader
	pktlog *PacketLogger
	now    func() time.Time

	written []string // writes are captured, not transmitted
}

// NewFileTransport wraps r, an already-open reader of recorded wire lines.
// now lets tests inject a deterministic clock; nil uses time.Now.
func NewFileTransport(log zerolog.Logger, r io.Reader, now func() time.Time) *FileTransport {
	if now == nil {
		now = time.Now
	}
	return &FileTransport{log: log, r: bufio.NewReader(r), now: now}
}

func (t *FileTransport) Start(onLine LineHandler, onFlag FlagHandler) error {
	return splitLines(t.log, t.r, t.pktlog, t.now, onLine, onFlag)
}

// WriteLine records the line for test inspection but never reaches the
// medium, per spec.md §4.D ("no writes reach the medium").
func (t *FileTransport) WriteLine(line string) error {
	t.written = append(t.written, line)
	return nil
}

// Written returns the lines passed to WriteLine, for test assertions.
func (t *FileTransport) Written() []string { return t.written }

func (t *FileTransport) Close() error { return nil }
