package main

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ramses-rf/gateway/internal/ramses/entities"
	"github.com/ramses-rf/gateway/internal/ramses/transport"
	bqsink "github.com/ramses-rf/gateway/internal/sink/bigquery"
)

// lastMessageClock tracks when the transport last delivered a line, read by
// the stale-port watchdog, the generalised form of the teacher's package-
// level lastReceivedMessage var (made safe for concurrent access here since
// the watchdog and the read loop run on different goroutines).
type lastMessageClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *lastMessageClock) touch(t time.Time) {
	c.mu.Lock()
	c.at = t
	c.mu.Unlock()
}

func (c *lastMessageClock) since() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.at)
}

// applyJitter spreads period-second intervals by +/-10%, mirroring the
// teacher's applyJitter/applyJitterWithPercentage so a fleet of gateways
// restarted together doesn't all poll in lockstep.
func applyJitter(periodSeconds int) time.Duration {
	spread := periodSeconds / 10
	if spread == 0 {
		spread = 1
	}
	jittered := periodSeconds + rand.Intn(2*spread) - spread
	return time.Duration(jittered) * time.Second
}

// staleThreshold mirrors the teacher's "more than 2 minutes" reconnect
// trigger.
const staleThreshold = 2 * time.Minute

// runStalePortWatchdog closes and reopens the serial port whenever no line
// has arrived for staleThreshold, per the teacher's main.go reconnect
// goroutine.
func runStalePortWatchdog(ctx context.Context, logger zerolog.Logger, handle *portHandle, clock *lastMessageClock, pktlog *transport.PacketLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(applyJitter(120)):
		}

		if clock.since() <= staleThreshold {
			continue
		}

		logger.Warn().Msg("no traffic received in over 2 minutes, resetting serial port")
		old := handle.swap(openPort(logger, pktlog))
		if err := old.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed closing stale serial port")
		}
	}
}

// runBigquerySnapshotLoop periodically streams a SnapshotZones pass into the
// sink, the generalised form of the teacher's storeZoneInfoInBiqquery
// goroutine.
func runBigquerySnapshotLoop(ctx context.Context, logger zerolog.Logger, registry *entities.Registry, sink bqsink.Client, dataset, table string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(applyJitter(300)):
		}

		rows := bqsink.SnapshotZones(registry, time.Now())
		if len(rows) == 0 {
			continue
		}
		if err := sink.InsertMeasurements(ctx, dataset, table, rows); err != nil {
			logger.Error().Err(err).Msg("failed inserting zone snapshot into bigquery")
		}
	}
}
