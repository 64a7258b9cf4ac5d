package qos

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ramses-rf/gateway/internal/ramses/command"
	"github.com/ramses-rf/gateway/internal/ramses/rerr"
)

// DeprecationThreshold is the number of consecutive sends from one device
// without a matching reply after which further sends are suppressed
// (spec.md §4.E, tested by S4: the 13th send is dropped).
const DeprecationThreshold = 12

// Writer is the byte-sink a Command's rendered line is written to; normally
// the transport.
type Writer interface {
	WriteLine(line string) error
}

type waiter struct {
	header   command.ReplyHeader
	cmd      *command.Command
	deadline time.Time
	attempt  int
}

// Engine is the single-threaded cooperative send loop of spec.md §4.E/§5.
// Send/HandleReply may be called from other goroutines; the queue, waiters
// and counters are guarded by mu, and Send wakes Run through a channel.
type Engine struct {
	log           zerolog.Logger
	writer        Writer
	gatewayID     string
	disableSend   bool
	hasBattery    func(deviceID string) bool

	mu       sync.Mutex
	queue    *Queue
	waiters  []*waiter
	attempts map[string]int // deviceID -> consecutive unanswered sends
	deprecated map[string]bool

	now func() time.Time

	wake chan struct{}
	stop chan struct{}
}

// NewEngine builds a send engine. hasBattery may be nil (treated as "never").
func NewEngine(log zerolog.Logger, writer Writer, gatewayID string, disableSend bool, hasBattery func(string) bool) *Engine {
	if hasBattery == nil {
		hasBattery = func(string) bool { return false }
	}
	e := &Engine{
		log:         log,
		writer:      writer,
		gatewayID:   gatewayID,
		disableSend: disableSend,
		hasBattery:  hasBattery,
		queue:       NewQueue(nil),
		attempts:    map[string]int{},
		deprecated:  map[string]bool{},
		now:         time.Now,
		wake:        make(chan struct{}, 1),
		stop:        make(chan struct{}),
	}
	return e
}

// Send enqueues a command. Safe for concurrent use.
func (e *Engine) Send(cmd *command.Command) {
	e.mu.Lock()
	e.queue.Enqueue(cmd)
	e.mu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// IsDeprecated reports whether sends from deviceID are currently suppressed.
func (e *Engine) IsDeprecated(deviceID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deprecated[deviceID]
}

// HandleReply is called for every incoming I/RP packet the dispatcher
// accepted; it
// resolves any matching waiter and resets that src device's duty-cycle
// counter.
func (e *Engine) HandleReply(header command.ReplyHeader, payload string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.attempts[header.Src] = 0
	if e.deprecated[header.Src] {
		delete(e.deprecated, header.Src)
		e.log.Info().Str("device", header.Src).Msg("duty-cycle deprecation cleared by reply")
	}

	for i, w := range e.waiters {
		if w.header == header {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			cb := w.cmd.Callback
			if cb != nil {
				cb(&header, payload, nil)
			}
			return
		}
	}
}

// Stop terminates Run.
func (e *Engine) Stop() { close(e.stop) }

// Run drives the cooperative send loop until Stop is called. tick is the
// polling interval for waiter-timeout checks; pass e.g. 100ms.
func (e *Engine) Run(tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-e.wake:
			e.drain()
		case <-ticker.C:
			e.drain()
			e.checkTimeouts()
		}
	}
}

func (e *Engine) drain() {
	for {
		e.mu.Lock()
		cmd := e.queue.Pop()
		e.mu.Unlock()
		if cmd == nil {
			return
		}
		e.transmit(cmd, 0)
	}
}

func (e *Engine) transmit(cmd *command.Command, attempt int) {
	srcID := cmd.Src
	if srcID == "" {
		srcID = e.gatewayID
	}

	e.mu.Lock()
	if e.attempts[srcID] >= DeprecationThreshold {
		e.deprecated[srcID] = true
		e.mu.Unlock()
		e.log.Warn().Str("device", srcID).Msg("Sending deprecated: duty-cycle threshold exceeded, command dropped")
		return
	}
	e.mu.Unlock()

	if e.hasBattery(cmd.Dst) {
		e.log.Warn().Str("device", cmd.Dst).Msg("sending to a battery-backed device")
	}
	if e.hasBattery(srcID) {
		e.log.Info().Str("device", srcID).Msg("sending from a battery-backed device is discouraged")
	}

	line := cmd.Line(e.gatewayID)

	if e.disableSend {
		e.log.Info().Str("_msg", line).Msg("sending disabled, dropping command")
		return
	}

	if err := e.writer.WriteLine(line); err != nil {
		e.log.Error().Err(err).Str("_msg", line).Msg("write failed")
		return
	}

	e.mu.Lock()
	e.attempts[srcID]++
	e.mu.Unlock()

	if cmd.Callback == nil {
		return
	}

	header := cmd.ReplyHeader()
	timeout := cmd.Timeout
	if !cmd.DisableBackoff && attempt > 0 {
		timeout = timeout << attempt // double the gap on each retry
	}
	e.mu.Lock()
	e.waiters = append(e.waiters, &waiter{
		header:   header,
		cmd:      cmd,
		deadline: e.now().Add(timeout),
		attempt:  attempt,
	})
	e.mu.Unlock()
}

func (e *Engine) checkTimeouts() {
	now := e.now()

	e.mu.Lock()
	var expired []*waiter
	kept := e.waiters[:0]
	for _, w := range e.waiters {
		if now.After(w.deadline) {
			expired = append(expired, w)
		} else {
			kept = append(kept, w)
		}
	}
	e.waiters = kept
	e.mu.Unlock()

	for _, w := range expired {
		if w.attempt+1 < w.cmd.Retries {
			e.transmit(w.cmd, w.attempt+1)
			continue
		}
		if w.cmd.Callback != nil {
			w.cmd.Callback(nil, "", rerr.ExpiredCallback("no reply to %s after %d attempts", w.header, w.cmd.Retries))
		}
	}
}
