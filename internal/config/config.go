// Package config holds the gateway's runtime policy, per spec.md §6's
// "configuration contract (consumed, not parsed)": the dispatcher and
// control-plane operations read it, nothing inside the protocol packages
// parses flags or env vars itself. cmd/ramses-gateway builds one Config from
// kingpin flags, mirroring the teacher's flag-var style in main.go.
package config

import "github.com/ramses-rf/gateway/internal/ramses/address"

// ReduceProcessing selects how much of the dispatch pipeline runs, per
// spec.md §6 ("tiers: create-entities-only, then update-entities-only, then
// full").
type ReduceProcessing int

const (
	// ProcessFull runs address resolution, device/TCS creation, role
	// validation, and entity updates.
	ProcessFull ReduceProcessing = iota
	// ProcessUpdateOnly creates devices and runs role validation but skips
	// routing, so entity stores are not updated.
	ProcessUpdateOnly
	// ProcessCreateOnly only ensures devices/systems exist; it never updates
	// their stores.
	ProcessCreateOnly
)

// KnownDevice is one entry of the include/exclude id->{alias, class, faked}
// map of spec.md §6.
type KnownDevice struct {
	Alias string
	Class address.DeviceType
	Faked bool
}

// Config is the gateway's policy surface, consumed by the dispatcher and
// control-plane operations. This package imports only ramses/address, so the
// dispatcher and control packages can accept a *Config without a cycle.
type Config struct {
	DisableSending   bool
	DisableDiscovery bool
	EnableEavesdrop  bool

	EnforceKnownList bool
	IncludeList      map[string]KnownDevice
	ExcludeList      map[string]KnownDevice

	MaxZones int

	ReduceProcessing ReduceProcessing
}

// DefaultMaxZones is spec.md §6's default zone-count ceiling per system.
const DefaultMaxZones = 12

// New returns a Config with spec.md §6's defaults; callers override fields
// from their own flag/env source.
func New() *Config {
	return &Config{
		MaxZones:    DefaultMaxZones,
		IncludeList: map[string]KnownDevice{},
		ExcludeList: map[string]KnownDevice{},
	}
}

// Allowed reports whether id may be processed at all, per the include/exclude
// filter policy of spec.md §6: an explicit exclude always wins; with
// EnforceKnownList set, a non-empty include list silently drops anything
// absent from it.
func (c *Config) Allowed(id string) bool {
	if _, excluded := c.ExcludeList[id]; excluded {
		return false
	}
	if c.EnforceKnownList && len(c.IncludeList) > 0 {
		_, known := c.IncludeList[id]
		return known
	}
	return true
}

// ClassOverride returns the include-list's declared class for id, if any,
// used to seed a newly created Device with an operator-asserted type instead
// of the type nibble's default role.
func (c *Config) ClassOverride(id string) (address.DeviceType, bool) {
	kd, ok := c.IncludeList[id]
	if !ok || kd.Class == "" {
		return "", false
	}
	return kd.Class, true
}

// IsFaked reports whether id is declared faked in the include list, i.e.
// hosted on the gateway rather than a real radio device.
func (c *Config) IsFaked(id string) bool {
	kd, ok := c.IncludeList[id]
	return ok && kd.Faked
}
