// Package discovery runs the periodic SCHEMA/PARAMS/STATUS query tiers of
// spec.md §4.H against every known entity, grounded on ZoneBase._start_
// discovery (zones.py) and the per-device _setup_discovery_tasks pattern
// (devices_base.py).
package discovery

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/ramses-rf/gateway/internal/ramses/catalog"
	"github.com/ramses-rf/gateway/internal/ramses/command"
)

// Tier is one of the three periodic query tiers of spec.md §4.H.
type Tier int

const (
	Schema Tier = iota
	Params
	Status
)

func (t Tier) String() string {
	switch t {
	case Schema:
		return "SCHEMA"
	case Params:
		return "PARAMS"
	default:
		return "STATUS"
	}
}

// Period is the nominal re-query interval for tier, per spec.md §4.H.
func (t Tier) Period() time.Duration {
	switch t {
	case Schema:
		return 24 * time.Hour
	case Params:
		return 6 * time.Hour
	default:
		return 15 * time.Minute
	}
}

// JitterFunc returns the tier's startup delay; SCHEMA is seeded at t≈0
// (unless the entity is an OTB, see OTBSchemaDelay), PARAMS/STATUS jitter by
// a few seconds so a fleet of entities doesn't all fire in lockstep.
type JitterFunc func(t Tier) time.Duration

// DefaultJitter reproduces spec.md §4.H's "seeded at t≈jitter(10..20)s" for
// PARAMS and a smaller jitter for STATUS; SCHEMA fires essentially at once.
func DefaultJitter(t Tier) time.Duration {
	switch t {
	case Schema:
		return time.Duration(rand.Intn(3)) * time.Second
	case Params:
		return time.Duration(10+rand.Intn(10)) * time.Second
	default:
		return time.Duration(2+rand.Intn(5)) * time.Second
	}
}

// otbSchemaDelay is the extra SCHEMA-tier grace period for an OpenTherm
// bridge so the boiler has time to settle after power-up, per spec.md §4.H.
const otbSchemaDelay = 240 * time.Second

// Query is one request a tier issues for one entity.
type Query struct {
	Code    catalog.Code
	Payload string
}

// TaskDef binds a tier to the set of queries it issues for one entity kind;
// the discovery scheduler does not know about zones/devices itself, it is
// handed a closure that builds commands for whatever id it is scheduling.
type TaskDef struct {
	Tier    Tier
	Build   func() []*command.Command
	Suppress func() bool // if true when the tick fires, the queries are skipped
}

// Sender dispatches a built command onto the send engine.
type Sender interface {
	Send(cmd *command.Command)
}

// task is a scheduler's live handle on one TaskDef for one entity.
type task struct {
	def    TaskDef
	cancel context.CancelFunc
}

// Scheduler runs one goroutine per (entity, tier) task, each on its own
// jittered ticker, until the context passed to Schedule is done or
// CancelEntity cancels it.
type Scheduler struct {
	mu     sync.Mutex
	sender Sender
	jitter JitterFunc
	tasks  map[string][]*task // keyed by an opaque entity id the caller chooses
}

// NewScheduler returns a scheduler that sends built commands via sender.
// jitter may be nil to use DefaultJitter.
func NewScheduler(sender Sender, jitter JitterFunc) *Scheduler {
	if jitter == nil {
		jitter = DefaultJitter
	}
	return &Scheduler{sender: sender, jitter: jitter, tasks: map[string][]*task{}}
}

// Schedule arms def for entityID under ctx; delay overrides the tier's
// jittered startup delay (pass 0 to use the jitter function, or
// otbSchemaDelay for an OTB's SCHEMA tier).
func (s *Scheduler) Schedule(ctx context.Context, entityID string, def TaskDef, delayOverride time.Duration) {
	taskCtx, cancel := context.WithCancel(ctx)

	delay := delayOverride
	if delay == 0 {
		delay = s.jitter(def.Tier)
	}

	s.mu.Lock()
	s.tasks[entityID] = append(s.tasks[entityID], &task{def: def, cancel: cancel})
	s.mu.Unlock()

	go s.run(taskCtx, def, delay)
}

func (s *Scheduler) run(ctx context.Context, def TaskDef, delay time.Duration) {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	s.fire(def)

	ticker := time.NewTicker(def.Tier.Period())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(def)
		}
	}
}

func (s *Scheduler) fire(def TaskDef) {
	if def.Suppress != nil && def.Suppress() {
		return
	}
	for _, cmd := range def.Build() {
		s.sender.Send(cmd)
	}
}

// CancelEntity stops every task scheduled for entityID, per spec.md §4.H
// ("per-entity task cancellation").
func (s *Scheduler) CancelEntity(entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks[entityID] {
		t.cancel()
	}
	delete(s.tasks, entityID)
}

// OTBSchemaDelay returns the extra SCHEMA-tier startup delay for an OTB.
func OTBSchemaDelay() time.Duration { return otbSchemaDelay }
