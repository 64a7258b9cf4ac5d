// Package dispatch is the top-level message router of spec.md §4.J: it
// takes a freshly-decoded Message, validates its address set and src/dst
// roles against the catalogue, ensures the entity graph has Devices/TCS for
// it, and routes it to whatever in the graph cares. Grounded on
// original_source/ramses_rf/processor.py's process_msg and its
// _check_msg_addrs/_check_msg_src/_check_msg_dst/_create_devices_from_addrs
// helpers.
package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ramses-rf/gateway/internal/config"
	"github.com/ramses-rf/gateway/internal/ramses/address"
	"github.com/ramses-rf/gateway/internal/ramses/catalog"
	"github.com/ramses-rf/gateway/internal/ramses/devices"
	"github.com/ramses-rf/gateway/internal/ramses/discovery"
	"github.com/ramses-rf/gateway/internal/ramses/entities"
	"github.com/ramses-rf/gateway/internal/ramses/message"
	"github.com/ramses-rf/gateway/internal/ramses/opentherm"
	"github.com/ramses-rf/gateway/internal/ramses/packet"
	"github.com/ramses-rf/gateway/internal/ramses/rerr"
)

// dstRxException hardcodes the one Rx exception spec.md §4.J calls out: a
// CTL may receive an RQ/3EF1 (actuator cycle info request), per processor.py's
// "HACK: an exception-to-the-rule that need sorting".
type dstRxException struct {
	role catalog.Role
	verb catalog.Verb
	code catalog.Code
}

var dstRxExceptions = []dstRxException{
	{catalog.RoleCTL, catalog.RQ, catalog.Code3EF1},
}

// Dispatcher routes decoded packets into the entity graph, per spec.md §4.J.
type Dispatcher struct {
	Registry *entities.Registry
	Config   *config.Config
	Strict   bool // InvalidPacket raises instead of logging, per spec.md §7

	// Scheduler, when non-nil, arms SCHEMA/PARAMS/STATUS discovery tasks for
	// every freshly observed device, system and zone, per spec.md §4.I; left
	// nil in tests that don't care about discovery side effects.
	Scheduler *discovery.Scheduler
	GatewayID string
	Clock     func() time.Time
	Ctx       context.Context // tasks are cancelled when this is done

	log zerolog.Logger

	prevArray map[string]*message.Message // key: code|src, for fragment joining
}

// New returns a Dispatcher that populates registry subject to cfg's policy.
func New(registry *entities.Registry, cfg *config.Config, logger zerolog.Logger, strict bool) *Dispatcher {
	return &Dispatcher{
		Registry:  registry,
		Config:    cfg,
		Strict:    strict,
		log:       logger,
		prevArray: map[string]*message.Message{},
	}
}

// WithDiscovery arms d to schedule per-entity discovery tasks on scheduler as
// new devices/systems/zones are observed, querying as gatewayID; tasks are
// cancelled when ctx is done. Returns d for chaining at construction time.
func (d *Dispatcher) WithDiscovery(ctx context.Context, scheduler *discovery.Scheduler, gatewayID string) *Dispatcher {
	d.Ctx = ctx
	d.Scheduler = scheduler
	d.GatewayID = gatewayID
	return d
}

func (d *Dispatcher) clock() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}

func (d *Dispatcher) ctx() context.Context {
	if d.Ctx != nil {
		return d.Ctx
	}
	return context.Background()
}

// scheduleDevice arms dev's discovery tasks, delaying its SCHEMA tier by
// discovery.OTBSchemaDelay for an OTB so the boiler has time to settle after
// power-up, per spec.md §4.I.
func (d *Dispatcher) scheduleDevice(dev *entities.Device) {
	if d.Scheduler == nil {
		return
	}
	for _, def := range discovery.PlanForDevice(d.GatewayID, dev, d.clock) {
		delay := time.Duration(0)
		if def.Tier == discovery.Schema && dev.Role == catalog.RoleOTB {
			delay = discovery.OTBSchemaDelay()
		}
		d.Scheduler.Schedule(d.ctx(), dev.ID, def, delay)
	}
}

// scheduleSystem arms tcs's SCHEMA/STATUS discovery tasks, keyed by its
// controller id.
func (d *Dispatcher) scheduleSystem(tcs *entities.TCS) {
	if d.Scheduler == nil {
		return
	}
	for _, def := range discovery.PlanForSystem(d.GatewayID, tcs, d.clock) {
		d.Scheduler.Schedule(d.ctx(), tcs.ControllerID, def, 0)
	}
}

// scheduleZone arms zone's PARAMS/STATUS discovery tasks, keyed by a
// composite id so CancelEntity can target one zone without affecting its
// siblings or its TCS's own tasks.
func (d *Dispatcher) scheduleZone(tcs *entities.TCS, zone *entities.Zone) {
	if d.Scheduler == nil {
		return
	}
	key := tcs.ControllerID + "|zone|" + zone.Idx
	for _, def := range discovery.PlanForZone(d.GatewayID, tcs, zone, d.clock) {
		d.Scheduler.Schedule(d.ctx(), key, def, 0)
	}
}

// Process decodes pkt and runs it through the five dispatch steps of
// spec.md §4.J, returning the decoded Message (even on a policy violation
// that was only logged, not raised) or the error that dropped the packet.
func (d *Dispatcher) Process(pkt *packet.Packet, now time.Time) (*message.Message, error) {
	if !d.Config.Allowed(pkt.Src) || !d.Config.Allowed(pkt.Dst) {
		return nil, nil // silently ignored per spec.md §6 enforce_known_list
	}

	if err := d.checkAddrSet(pkt); err != nil {
		return nil, err
	}

	key := string(pkt.Code) + "|" + pkt.Src
	msg, err := message.Decode(pkt, d.prevArray[key])
	if err != nil {
		return nil, err
	}
	if msg.IsArray {
		d.prevArray[key] = msg
	}

	if d.Config.ReduceProcessing >= config.ProcessCreateOnly {
		d.createDevicesFromAddrs(pkt)
		return msg, nil
	}
	src, dst := d.createDevicesFromAddrs(pkt)

	if err := d.checkSrcRole(msg, src); err != nil {
		if d.Strict {
			return msg, err
		}
		d.log.Info().Str("src", pkt.Src).Str("code", string(pkt.Code)).Msg(err.Error())
	}
	if dst != nil && !(pkt.Dst == pkt.Src && pkt.Verb == catalog.I) {
		if err := d.checkDstRole(msg, dst); err != nil {
			if d.Strict {
				return msg, err
			}
			d.log.Info().Str("dst", pkt.Dst).Str("code", string(pkt.Code)).Msg(err.Error())
		}
	}

	if d.Config.ReduceProcessing >= config.ProcessUpdateOnly {
		return msg, nil
	}

	d.route(msg, src, dst, now)
	return msg, nil
}

// checkAddrSet implements spec.md §4.J step 1: a heat-domain-only code seen
// between two same-typed, non-identical devices is rejected outright; a code
// shared with HVAC is logged as an advisory instead of raised.
func (d *Dispatcher) checkAddrSet(pkt *packet.Packet) error {
	srcAddr, errSrc := address.Parse(pkt.Src)
	dstAddr, errDst := address.Parse(pkt.Dst)
	if errSrc != nil || errDst != nil {
		return nil // malformed ids are caught earlier, by packet.Parse
	}
	if pkt.Src == pkt.Dst || srcAddr.Type != dstAddr.Type {
		return nil
	}

	switch {
	case catalog.CodesOfHeatDomainOnly(pkt.Code):
		return rerr.InvalidAddrSet("invalid src/dst pair %s/%s for heat-only code %s", pkt.Src, pkt.Dst, pkt.Code)
	case catalog.CodesOfHeatDomain(pkt.Code):
		d.log.Warn().Str("src", pkt.Src).Str("dst", pkt.Dst).Str("code", string(pkt.Code)).
			Msg("invalid src/dst addr pair, is it HVAC?")
	case !catalog.CodesOfHVACDomainOnly(pkt.Code):
		d.log.Info().Str("src", pkt.Src).Str("dst", pkt.Dst).Str("code", string(pkt.Code)).
			Msg("invalid src/dst addr pair, is it HVAC?")
	}
	return nil
}

// createDevicesFromAddrs implements spec.md §4.J step 2: ensure src/dst are
// real Devices, subject to the include/exclude filter. Unlike
// processor.py's _create_devices_from_addrs, dst creation here does not wait
// on enable_eavesdrop: spec.md §6 scopes that flag to deductive inference
// (sensor matching, class promotion, zone-type inference), not to the
// baseline "ensure devices exist" step, so both sides are always created.
func (d *Dispatcher) createDevicesFromAddrs(pkt *packet.Packet) (src, dst *entities.Device) {
	src = d.getOrCreate(pkt.Src)
	if pkt.Dst == pkt.Src {
		return src, src
	}
	return src, d.getOrCreate(pkt.Dst)
}

func (d *Dispatcher) getOrCreate(id string) *entities.Device {
	if !address.IsValidID(id) || address.IsNull(id) {
		return nil
	}
	typ := address.DeviceType(id[:2])
	if override, ok := d.Config.ClassOverride(id); ok {
		typ = override
	}
	dev, created := d.Registry.GetOrCreateDeviceEx(id, typ)
	if override, ok := d.Config.ClassOverride(id); ok {
		dev.Promote(catalog.DefaultRoleByType[override])
	}
	dev.Faked = d.Config.IsFaked(id)
	if created {
		d.scheduleDevice(dev)
	}
	return dev
}

// checkSrcRole implements spec.md §4.J step 3 for the source: src must be
// permitted to emit (verb, code) per the catalogue. A role with no row in
// catalog.CodesByRole, the generic DEV among them, is never flagged.
func (d *Dispatcher) checkSrcRole(msg *message.Message, src *entities.Device) error {
	if src == nil {
		return nil
	}
	allowed, known := catalog.CodesByRole[src.Role]
	if !known {
		return nil // DEV and other generic roles aren't in the permission table
	}
	verbs, ok := allowed[msg.Packet.Code]
	if !ok {
		if src.Role == catalog.RoleDEV && (msg.Packet.Verb == catalog.RQ || msg.Packet.Verb == catalog.W) {
			return nil
		}
		return rerr.InvalidPacket("invalid code for %s to Tx: %s", src.ID, msg.Packet.Code)
	}
	if !verbs[msg.Packet.Verb] {
		return rerr.InvalidPacket("invalid verb/code for %s to Tx: %s/%s", src.ID, msg.Packet.Verb, msg.Packet.Code)
	}
	return nil
}

// expectedReplyVerb mirrors command.ReplyHeader's mapping, used here to infer
// what verb a valid reply from dst ought to carry.
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

// checkDstRole implements spec.md §4.J step 3 for the destination: dst must
// be able to receive (verb, code), checked against the verb its own role
// would use to answer. The CTL/RQ/3EF1 exception is hardcoded per the
// catalogue's documented carve-out.
func (d *Dispatcher) checkDstRole(msg *message.Message, dst *entities.Device) error {
	if dst == nil || msg.Packet.Verb == catalog.I {
		return nil
	}
	for _, ex := range dstRxExceptions {
		if dst.Role == ex.role && msg.Packet.Verb == ex.verb && msg.Packet.Code == ex.code {
			return nil
		}
	}

	allowed, known := catalog.CodesByRole[dst.Role]
	if !known {
		return nil
	}
	if _, ok := allowed[msg.Packet.Code]; !ok {
		if msg.Packet.Verb == catalog.RP {
			return nil
		}
		return rerr.InvalidPacket("invalid code for %s to Rx: %s", dst.ID, msg.Packet.Code)
	}

	verbs := allowed[msg.Packet.Code]
	want := expectedReplyVerb(msg.Packet.Verb)
	if !verbs[want] {
		return rerr.InvalidPacket("invalid verb/code for %s to Rx: %s/%s", dst.ID, msg.Packet.Verb, msg.Packet.Code)
	}
	return nil
}

// fakeableCodes is the set of codes whose same-device (src==dst) broadcast is
// fanned out to every device hosted on src, per spec.md §4.J step 5 — used
// for faked relays/actuators that share a physical host id.
var fakeableCodes = map[catalog.Code]bool{
	catalog.Code0008: true,
	catalog.Code0009: true,
	catalog.Code3B00: true,
	catalog.Code3EF1: true,
}

// route implements spec.md §4.J step 5: src always sees the message, a
// controller-only code attaches/creates its TCS, and fakeable same-device
// broadcasts are replayed to every device hosted on the gateway under src.
func (d *Dispatcher) route(msg *message.Message, src, dst *entities.Device, now time.Time) {
	if src != nil {
		src.Put(msg, now)
	}

	if msg.Packet.Code == catalog.Code3220 {
		observeOpenTherm(src, msg)
	}

	if isControllerOnly(msg.Packet.Code) {
		tcs, created := d.Registry.GetOrCreateSystemEx(msg.Packet.Src, d.Config.MaxZones)
		tcs.Put(msg, now)
		if created {
			d.scheduleSystem(tcs)
		}
	}

	// Role promotion is deductive inference (fingerprint matching, controller
	// detection from traffic patterns), which spec.md §6 scopes to
	// enable_eavesdrop.
	if d.Config.EnableEavesdrop {
		if tcs, err := devices.Apply(d.Registry, src, msg, d.Config.MaxZones); err != nil {
			d.log.Error().Str("src", msg.Packet.Src).Msg(err.Error())
		} else if tcs != nil {
			// devices.Apply's controller-promotion path checks the same
			// catalog.ControllerOnly codes as isControllerOnly above, so this
			// tcs was already created (and its discovery tasks armed) by the
			// isControllerOnly branch; Put is all that's left to do here.
			tcs.Put(msg, now)
		}
	}

	if zoneCarryingCodes[msg.Packet.Code] {
		d.routeToZones(msg, src, dst, now)
	}

	if dhwCodes[msg.Packet.Code] {
		d.routeToDHW(msg, src, dst, now)
	}

	if msg.Packet.Code == catalog.Code22C9 {
		d.routeToUFH(msg, src, now)
	}

	if !fakeableCodes[msg.Packet.Code] || dst == nil || src == nil || dst.ID != src.ID {
		return
	}
	for _, hosted := range d.Registry.Devices() {
		if hosted.ControllerID == src.ID && hosted.ID != src.ID {
			hosted.Put(msg, now)
		}
	}
}

// zoneCarryingCodes are codes whose payload identifies one or more zones of
// a TCS by zone_idx, per spec.md §4.C (0004 zone name, 000A zone params,
// 12B0 window state, 2309 setpoint, 2349 zone mode, 30C9 temperature,
// 3150 heat demand).
var zoneCarryingCodes = map[catalog.Code]bool{
	catalog.Code0004: true, catalog.Code000A: true, catalog.Code12B0: true,
	catalog.Code2309: true, catalog.Code2349: true, catalog.Code30C9: true,
	catalog.Code3150: true,
}

// routeToZones implements the zone-level half of spec.md §4.F's entity
// graph: a zone-carrying message is filed under every zone_idx it names, on
// whichever TCS is rooted at the message's controller side (src or dst,
// whichever has fingerprinted as CTL). No-op until that TCS exists — zones
// are populated only once their system has been created via a
// controller-only code, per spec.md §3's lazy-TCS-creation rule.
func (d *Dispatcher) routeToZones(msg *message.Message, src, dst *entities.Device, now time.Time) {
	ctl := controllerOf(src, dst)
	if ctl == nil {
		return
	}
	tcs := d.Registry.System(ctl.ID)
	if tcs == nil {
		return
	}
	for _, idx := range zoneIndices(msg) {
		zone, created := tcs.ZoneByIdxEx(idx)
		if zone == nil {
			continue // beyond MaxZones, per spec.md §3/§8's boundary behaviour
		}
		zone.Put(msg, now)
		if created {
			d.scheduleZone(tcs, zone)
		}
	}
}

// dhwCodes are the direct controller<->DHW-sensor/relay exchanges that
// lazily create a system's single hot-water zone, per
// original_source/ramses_rf/systems.py's _handle_msg: any of these three
// codes on a TCS attaches (creating first, if absent) its DHW sub-entity,
// unlike zone-carrying codes these don't key off a zone_idx field at all.
var dhwCodes = map[catalog.Code]bool{
	catalog.Code10A0: true, catalog.Code1260: true, catalog.Code1F41: true,
}

// routeToDHW is the DHW half of spec.md §4.F's entity graph: lazily creates
// tcs.DHW the first time one of dhwCodes is seen for a known TCS, then files
// the message against it. No-op until the TCS itself exists, same lazy-order
// rule as routeToZones.
func (d *Dispatcher) routeToDHW(msg *message.Message, src, dst *entities.Device, now time.Time) {
	ctl := controllerOf(src, dst)
	if ctl == nil {
		return
	}
	tcs := d.Registry.System(ctl.ID)
	if tcs == nil {
		return
	}
	if tcs.DHW == nil {
		tcs.DHW = entities.NewDHW(tcs.ControllerID)
	}
	tcs.DHW.Put(msg, now)
}

// routeToUFH is the underfloor-heating half of spec.md §4.F's entity graph:
// a 22C9 setpoint broadcast from a UFH controller files each array record
// against its own per-circuit entity, keyed by the record's own _idx (its
// wire-level circuit index, per message.splitArray). No-op until src's
// ControllerID and that TCS are both already known, mirroring routeToZones/
// routeToDHW's lazy-order rule.
func (d *Dispatcher) routeToUFH(msg *message.Message, src *entities.Device, now time.Time) {
	if src == nil || src.Role != catalog.RoleUFC || !msg.IsArray || src.ControllerID == "" {
		return
	}
	tcs := d.Registry.System(src.ControllerID)
	if tcs == nil {
		return
	}
	for _, rec := range msg.Array {
		idx, ok := rec["_idx"].(string)
		if !ok {
			continue
		}
		key := src.ID + "/" + idx
		circuit := tcs.UFHControllers[key]
		if circuit == nil {
			circuit = entities.NewUFHCircuit(src.ID, idx)
			tcs.UFHControllers[key] = circuit
		}
		circuit.Put(&message.Message{Packet: msg.Packet, Fields: rec}, now)
	}
}

// controllerOf returns whichever of src/dst has fingerprinted as a
// controller, or nil if neither has.
func controllerOf(src, dst *entities.Device) *entities.Device {
	if src != nil && src.Role == catalog.RoleCTL {
		return src
	}
	if dst != nil && dst.Role == catalog.RoleCTL {
		return dst
	}
	return nil
}

// zoneIndices returns the distinct zone_idx values msg's payload names,
// in wire order, for both array (one per record) and single-record codes.
func zoneIndices(msg *message.Message) []string {
	if msg.IsArray {
		seen := map[string]bool{}
		var idxs []string
		for _, rec := range msg.Array {
			idx, ok := rec["_idx"].(string)
			if !ok || seen[idx] {
				continue
			}
			seen[idx] = true
			idxs = append(idxs, idx)
		}
		return idxs
	}
	if idx, ok := msg.Fields["zone_idx"].(string); ok {
		return []string{idx}
	}
	return nil
}

// observeOpenTherm lazily attaches a SupportTracker to src on its first
// 3220 reply and feeds it the decoded DataID/supported signal, so the device
// records which DataIDs the boiler has twice declared invalid, per spec.md §8
// scenario S5. The discovery plans do not consult the tracker.
func observeOpenTherm(src *entities.Device, msg *message.Message) {
	if src == nil {
		return
	}
	dataID, ok := msg.Fields["data_id"].(int)
	if !ok {
		return
	}
	supported, _ := msg.Fields["supported"].(bool)

	if src.OpenTherm == nil {
		src.OpenTherm = opentherm.NewSupportTracker()
	}
	src.OpenTherm.Observe(&opentherm.Message{DataID: dataID, Supported: supported})
}

func isControllerOnly(code catalog.Code) bool {
	for _, c := range catalog.ControllerOnly {
		if c == code {
			return true
		}
	}
	return false
}
