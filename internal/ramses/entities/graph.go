package entities

import (
	"strconv"
	"sync"

	"github.com/ramses-rf/gateway/internal/ramses/address"
	"github.com/ramses-rf/gateway/internal/ramses/catalog"
	"github.com/ramses-rf/gateway/internal/ramses/opentherm"
)

// Device is one addressable RAMSES-II entity discovered on the bus.
// Parent/controller links are held as ids (handles), not pointers, per
// spec.md §5 ("non-owning references") — the Gateway is the sole owner of
// every Device and resolves handles through its registry.
type Device struct {
	*Store

	ID   string
	Type address.DeviceType
	Role catalog.Role

	ControllerID string // "" if none/unknown
	Faked        bool
	HasBattery   bool

	// OpenTherm is non-nil only for an OTB device once its first 3220 reply
	// has been observed; see dispatch's routing step and spec.md §8 S5.
	OpenTherm *opentherm.SupportTracker
}

// NewDevice creates a device with the default role for its address type, or
// the generic RoleDEV for a type with no default.
func NewDevice(id string, typ address.DeviceType) *Device {
	role, ok := catalog.DefaultRoleByType[typ]
	if !ok {
		role = catalog.RoleDEV
	}
	return &Device{
		Store: NewStore(),
		ID:    id,
		Type:  typ,
		Role:  role,
	}
}

// Promote moves the device to role if its current role is still generic
// (spec.md §4.G: promotion only ever leaves DEV/RFG, never re-demotes an
// already-fingerprinted device).
func (d *Device) Promote(role catalog.Role) {
	if catalog.Promotable[d.Role] {
		d.Role = role
	}
}

// Zone is one heating zone of a TemperatureControlSystem.
type Zone struct {
	*Store

	Idx          string // "00".."FF" hex zone index
	SystemID     string // controller id owning this zone (handle)
	SensorID     string // device id providing the zone's measured temp
	ActuatorsIDs []string
}

// NewZone creates a zone bound to systemID with the given index.
func NewZone(systemID, idx string) *Zone {
	return &Zone{Store: NewStore(), SystemID: systemID, Idx: idx}
}

// DHW is the domestic-hot-water zone of a system (domain byte FA), at most
// one per TemperatureControlSystem.
type DHW struct {
	*Store

	SystemID   string
	SensorID   string
	HeatingCtl string // device controlling the DHW relay/valve
}

// NewDHW creates the DHW zone for systemID.
func NewDHW(systemID string) *DHW {
	return &DHW{Store: NewStore(), SystemID: systemID}
}

// UFHCircuit is one underfloor-heating controller circuit (22C9), keyed by
// its numeric index under a UFH controller device.
type UFHCircuit struct {
	*Store

	ControllerID string
	Idx          string
	ZoneIdx      string // "" until bound to a zone via 000C
}

// NewUFHCircuit creates circuit idx under the UFH controller controllerID.
func NewUFHCircuit(controllerID, idx string) *UFHCircuit {
	return &UFHCircuit{Store: NewStore(), ControllerID: controllerID, Idx: idx}
}

// TCS is a TemperatureControlSystem: a controller device plus its zones,
// optional DHW zone, and UFH controllers.
type TCS struct {
	*Store

	ControllerID string
	Zones        map[string]*Zone // keyed by zone idx
	DHW          *DHW             // nil until discovered
	UFHControllers map[string]*UFHCircuit // keyed by "ufhCtlID/idx"

	MaxZones int
}

// NewTCS creates a system rooted at controllerID.
func NewTCS(controllerID string, maxZones int) *TCS {
	return &TCS{
		Store:          NewStore(),
		ControllerID:   controllerID,
		Zones:          map[string]*Zone{},
		UFHControllers: map[string]*UFHCircuit{},
		MaxZones:       maxZones,
	}
}

// ZoneByIdx returns the zone at idx, creating one if absent and idx's
// numeric value is within MaxZones, per spec.md §3's invariant
// `int(Z.idx, 16) < T.max_zones` and §8's boundary behaviour (zone_idx "10"
// is accepted under max_zones=12, rejected under max_zones=8). Returns nil
// (no zone) for an out-of-range or unparseable idx.
func (t *TCS) ZoneByIdx(idx string) *Zone {
	return t.zoneByIdxEx(idx, nil)
}

// ZoneByIdxEx is ZoneByIdx plus a created flag, used by discovery wiring to
// arm per-zone tasks exactly once, the first time a zone is observed.
func (t *TCS) ZoneByIdxEx(idx string) (*Zone, bool) {
	created := false
	z := t.zoneByIdxEx(idx, &created)
	return z, created
}

func (t *TCS) zoneByIdxEx(idx string, created *bool) *Zone {
	if z, ok := t.Zones[idx]; ok {
		return z
	}
	n, err := strconv.ParseInt(idx, 16, 64)
	if err != nil || n < 0 || (t.MaxZones > 0 && int(n) >= t.MaxZones) {
		return nil
	}
	z := NewZone(t.ControllerID, idx)
	t.Zones[idx] = z
	if created != nil {
		*created = true
	}
	return z
}

// Registry is the Gateway's owning store of every entity it has created: the
// single place ids are resolved to live objects, per spec.md §5.
type Registry struct {
	mu sync.RWMutex

	devices map[string]*Device
	systems map[string]*TCS // keyed by controller id
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{devices: map[string]*Device{}, systems: map[string]*TCS{}}
}

// Device returns the device for id, or nil.
func (r *Registry) Device(id string) *Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devices[id]
}

// GetOrCreateDevice returns the device for id, creating one of typ if absent.
func (r *Registry) GetOrCreateDevice(id string, typ address.DeviceType) *Device {
	d, _ := r.GetOrCreateDeviceEx(id, typ)
	return d
}

// GetOrCreateDeviceEx is GetOrCreateDevice plus a created flag, used by
// discovery wiring to arm a freshly observed device's SCHEMA/PARAMS/STATUS
// tasks exactly once.
func (r *Registry) GetOrCreateDeviceEx(id string, typ address.DeviceType) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[id]; ok {
		return d, false
	}
	d := NewDevice(id, typ)
	r.devices[id] = d
	return d, true
}

// System returns the TCS controlled by controllerID, or nil.
func (r *Registry) System(controllerID string) *TCS {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.systems[controllerID]
}

// GetOrCreateSystem returns the TCS for controllerID, creating one if absent.
func (r *Registry) GetOrCreateSystem(controllerID string, maxZones int) *TCS {
	t, _ := r.GetOrCreateSystemEx(controllerID, maxZones)
	return t
}

// GetOrCreateSystemEx is GetOrCreateSystem plus a created flag, used by
// discovery wiring to arm a freshly observed TCS's SCHEMA/STATUS tasks
// exactly once.
func (r *Registry) GetOrCreateSystemEx(controllerID string, maxZones int) (*TCS, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.systems[controllerID]; ok {
		return t, false
	}
	t := NewTCS(controllerID, maxZones)
	r.systems[controllerID] = t
	return t, true
}

// Devices returns every known device, for discovery fan-out and schema dumps.
func (r *Registry) Devices() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	return out
}

// Systems returns every known TCS.
func (r *Registry) Systems() []*TCS {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*TCS, 0, len(r.systems))
	for _, t := range r.systems {
		out = append(out, t)
	}
	return out
}
