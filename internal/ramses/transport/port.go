package transport

import (
	"io"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/rs/zerolog"

	"github.com/ramses-rf/gateway/internal/ramses/rerr"
)

// PortConfig mirrors the serial configuration contract of spec.md §6.
type PortConfig struct {
	PortName string
	BaudRate uint
	Timeout  time.Duration
	XonXoff  bool
	RTSCTS   bool
}

// PortTransport is the live HGI80/evofw3 serial implementation, grounded on
// the teacher's openSerialPort/closeSerialPort (main.go), generalised into a
// type that owns the handle for its lifetime (spec.md §5: "the serial port
// is owned by exactly one transport ... acquired on start, released on stop").
type PortTransport struct {
	log       zerolog.Logger
	cfg       PortConfig
	gatewayID string
	pktlog    *PacketLogger

	port io.ReadWriteCloser
}

// NewPortTransport opens the serial port described by cfg. gatewayID is used
// to rewrite faked-gateway addresses on write.
func NewPortTransport(log zerolog.Logger, cfg PortConfig, gatewayID string, pktlog *PacketLogger) (*PortTransport, error) {
	options := serial.OpenOptions{
		PortName:              cfg.PortName,
		BaudRate:              cfg.BaudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: uint(cfg.Timeout.Milliseconds()),
		ParityMode:            serial.PARITY_NONE,
	}
	if options.BaudRate == 0 {
		options.BaudRate = 115200
	}

	port, err := serial.Open(options)
	if err != nil {
		return nil, rerr.TransportError("failed opening serial port %s: %v", cfg.PortName, err)
	}

	return &PortTransport{log: log, cfg: cfg, gatewayID: gatewayID, pktlog: pktlog, port: port}, nil
}

// Start begins the read loop. It blocks until the port is closed or a fatal
// read error occurs.
func (t *PortTransport) Start(onLine LineHandler, onFlag FlagHandler) error {
	return splitLines(t.log, t.port, t.pktlog, time.Now, onLine, onFlag)
}

// WriteLine appends \r\n and writes line, rewriting a faked-gateway source
// address to this gateway's real id first.
func (t *PortTransport) WriteLine(line string) error {
	line = rewriteFakedAddr(line, t.gatewayID)
	t.pktlog.Log(line, time.Now())
	if _, err := t.port.Write([]byte(line + "\r\n")); err != nil {
		return rerr.TransportError("failed writing to serial port: %v", err)
	}
	return nil
}

// Close releases the serial port. Idempotent calls after the first are a
// caller error per spec.md §5 ("never re-entered"); Close itself tolerates
// being called once after Start returns.
func (t *PortTransport) Close() error {
	return t.port.Close()
}
