// Package control implements the public control-plane operations of
// spec.md §6: get_device, create_fake_{bdr,ext,thm}, set_temperature,
// set_system_mode, set_zone_mode, set_zone_setpoint, set_dhw_mode,
// set_tpi_params, get_schedule and set_schedule. Every operation builds one
// or more command.Command and hands them to the send engine; nothing here
// talks to the transport or entity graph beyond reading/creating entities,
// mirroring the teacher's thin-wrapper style in main.go of composing
// already-built packages rather than reimplementing them.
package control

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ramses-rf/gateway/internal/config"
	"github.com/ramses-rf/gateway/internal/ramses/address"
	"github.com/ramses-rf/gateway/internal/ramses/catalog"
	"github.com/ramses-rf/gateway/internal/ramses/command"
	"github.com/ramses-rf/gateway/internal/ramses/entities"
	"github.com/ramses-rf/gateway/internal/ramses/rerr"
)

// Sender is the minimal send-engine contract control needs; qos.Engine
// satisfies it.
type Sender interface {
	Send(cmd *command.Command)
}

// Gateway is the outer application's handle onto a running dispatcher: the
// entity graph it reads from and the send engine it issues commands
// through, per spec.md §6's "public control-plane operations".
type Gateway struct {
	Registry *entities.Registry
	Config   *config.Config
	Engine   Sender
	ID       string // the gateway's own HGI device id, used as a command src
}

// New returns a Gateway bound to registry/cfg/engine, sending as gatewayID.
func New(registry *entities.Registry, cfg *config.Config, engine Sender, gatewayID string) *Gateway {
	return &Gateway{Registry: registry, Config: cfg, Engine: engine, ID: gatewayID}
}

// GetDevice looks up id, creating it (subject to the include/exclude filter
// policy of spec.md §6) if it isn't already known. It returns (nil, nil) for
// an id the filter policy silently drops, matching dispatch.Process's own
// "nothing to see here" convention rather than raising an error for a policy
// decision.
func (g *Gateway) GetDevice(id string) (*entities.Device, error) {
	if !address.IsValidID(id) || address.IsNull(id) {
		return nil, rerr.InvalidPayload("get_device: invalid id %q", id)
	}
	if !g.Config.Allowed(id) {
		return nil, nil
	}
	if d := g.Registry.Device(id); d != nil {
		return d, nil
	}
	typ := address.DeviceType(id[:2])
	if override, ok := g.Config.ClassOverride(id); ok {
		typ = override
	}
	d := g.Registry.GetOrCreateDevice(id, typ)
	d.Faked = g.Config.IsFaked(id)
	return d, nil
}

// createFake installs a faked device of typ/role at id: traffic for it is
// synthesised locally and transmitted under the gateway's own radio
// identity rather than arriving over the air, per spec.md §6's
// create_fake_{bdr,ext,thm}. It is recorded in the include list as faked so
// a later enforce_known_list pass or dispatch.getOrCreate agrees on its
// class.
func (g *Gateway) createFake(id string, typ address.DeviceType, role catalog.Role) (*entities.Device, error) {
	if !address.IsValidID(id) || address.IsNull(id) {
		return nil, rerr.InvalidPayload("create_fake: invalid id %q", id)
	}
	d := g.Registry.GetOrCreateDevice(id, typ)
	d.Faked = true
	d.Promote(role)
	if g.Config.IncludeList != nil {
		g.Config.IncludeList[id] = config.KnownDevice{Class: typ, Faked: true}
	}
	return d, nil
}

// CreateFakeBDR installs a faked wireless relay (type 13) at id.
func (g *Gateway) CreateFakeBDR(id string) (*entities.Device, error) {
	return g.createFake(id, address.TypeBDR, catalog.RoleBDR)
}

// CreateFakeEXT installs a faked external temperature sensor (type 17) at id.
func (g *Gateway) CreateFakeEXT(id string) (*entities.Device, error) {
	return g.createFake(id, address.TypeEXT, catalog.RoleEXT)
}

// CreateFakeTHM installs a faked thermostat (type 34) at id.
func (g *Gateway) CreateFakeTHM(id string) (*entities.Device, error) {
	return g.createFake(id, address.TypeTHM, catalog.RoleTHM)
}

// encodeTemp90 is the inverse of message.temp90: a signed 16-bit value
// scaled by 100, the RAMSES-II convention for every temperature/setpoint
// field this package writes.
func encodeTemp90(celsius float64) string {
	raw := int16(celsius * 100)
	return fmt.Sprintf("%04X", uint16(raw))
}

// encodeUntil packs a "follow until" timestamp into the 12-hex-char (6
// byte) minute/hour/day/month/year (year as 4 big-endian hex digits) field the 2E04/2349/1F41 catalogue
// entries carry after their mode byte. This layout isn't pinned down by
// original_source/ (its dtm_to_hex lives in a file outside the retrieved
// set); it is chosen to match the catalogue's field widths and is an Open
// Question decision recorded in DESIGN.md.
func encodeUntil(t time.Time) string {
	year := t.Year()
	return fmt.Sprintf("%02X%02X%02X%02X%04X", t.Minute(), t.Hour(), t.Day(), int(t.Month()), year)
}

// SetTemperature issues the report a fakeable sensor's device type uses to
// announce a measured temperature, per spec.md §6 ("issues the
// corresponding I/0002, I/1260, I/30C9, etc."): I/0002 for an external
// sensor, I/1260 for a DHW sensor, I/30C9 (zone_idx 00, single-zone
// self-report) for anything else fakeable as a zone sensor/thermostat.
func (g *Gateway) SetTemperature(deviceID string, celsius float64) error {
	d, err := g.requireFaked(deviceID)
	if err != nil {
		return err
	}
	temp := encodeTemp90(celsius)

	var code catalog.Code
	var payload string
	switch d.Type {
	case address.TypeEXT:
		code, payload = catalog.Code0002, "00"+temp+"01"
	case address.TypeDHW:
		code, payload = catalog.Code1260, "00"+temp
	default:
		code, payload = catalog.Code30C9, "00"+temp
	}

	cmd := command.New(catalog.I, deviceID, deviceID, code, payload)
	g.Engine.Send(cmd)
	return nil
}

// requireFaked resolves deviceID and confirms the gateway is allowed to
// speak for it; every set_* operation on a sensor goes through this, since
// only a faked device's traffic is ours to synthesise.
func (g *Gateway) requireFaked(deviceID string) (*entities.Device, error) {
	d := g.Registry.Device(deviceID)
	if d == nil {
		return nil, rerr.InvalidPayload("unknown device %q", deviceID)
	}
	if !d.Faked {
		return nil, rerr.CorruptState("device %q is not faked, refusing to synthesise its traffic", deviceID)
	}
	return d, nil
}

// SetSystemMode issues W/2E04: switch systemID's controller to mode, either
// indefinitely (until == nil) or until the given time.
func (g *Gateway) SetSystemMode(systemID string, mode int, until *time.Time) error {
	if mode < 0 || mode > 7 {
		return rerr.InvalidPayload("system mode %d out of range 0-7", mode)
	}
	permanent := "01"
	untilHex := "000000000000"
	if until != nil {
		permanent = "00"
		untilHex = encodeUntil(*until)
	}
	payload := fmt.Sprintf("%02X%s%s", mode, untilHex, permanent)
	cmd := command.New(catalog.W, g.ID, systemID, catalog.Code2E04, payload)
	g.Engine.Send(cmd)
	return nil
}

// SetZoneMode issues W/2349: zoneIdx under systemID adopts mode at setpoint,
// optionally until a given time (mode 4, temporary override) or indefinitely
// (mode 1, permanent override) or following its schedule (mode 0, until is
// ignored).
func (g *Gateway) SetZoneMode(systemID, zoneIdx string, mode int, setpoint float64, until *time.Time) error {
	if mode < 0 || mode > 4 {
		return rerr.InvalidPayload("zone mode %d out of range 0-4", mode)
	}
	payload := fmt.Sprintf("%s%s%02X", zoneIdx, encodeTemp90(setpoint), mode)
	if until != nil && mode != 0 {
		payload += encodeUntil(*until)
	}
	cmd := command.New(catalog.W, g.ID, systemID, catalog.Code2349, payload)
	g.Engine.Send(cmd)
	return nil
}

// SetZoneSetpoint issues W/2309: set zoneIdx's target temperature without
// changing its mode.
func (g *Gateway) SetZoneSetpoint(systemID, zoneIdx string, celsius float64) error {
	payload := zoneIdx + encodeTemp90(celsius)
	cmd := command.New(catalog.W, g.ID, systemID, catalog.Code2309, payload)
	g.Engine.Send(cmd)
	return nil
}

// SetDHWMode issues W/1F41: switch systemID's DHW zone active/inactive,
// optionally until a given time (an indefinite override when until is nil).
func (g *Gateway) SetDHWMode(systemID string, active bool, until *time.Time) error {
	activeHex := "00"
	if active {
		activeHex = "01"
	}
	payload := "00" + activeHex
	if until != nil {
		payload += encodeUntil(*until)
	}
	cmd := command.New(catalog.W, g.ID, systemID, catalog.Code1F41, payload)
	g.Engine.Send(cmd)
	return nil
}

// SetTPIParams issues W/1100: the boiler relay's TPI (time-proportional and
// integral) cycle parameters. cycleRate is cycles/hour; minOnTime and
// minOffTime are minutes, quantised to the catalogue's quarter-minute
// resolution (per parsers.go's parseTPIParams, which divides the raw byte
// by 4).
func (g *Gateway) SetTPIParams(systemID string, cycleRate int, minOnTime, minOffTime float64) error {
	payload := fmt.Sprintf("00%02X%02X%02XFFFFFF", cycleRate, int(minOnTime*4), int(minOffTime*4))
	cmd := command.New(catalog.W, g.ID, systemID, catalog.Code1100, payload)
	g.Engine.Send(cmd)
	return nil
}

// ScheduleFragment is one received 0404 fragment, assembled by GetSchedule.
type ScheduleFragment struct {
	Idx   int
	Total int
	Data  string // hex
}

// GetSchedule issues the RQ/0404 fragment walk for zoneIdx under systemID:
// one request per fragment index starting at 1 (per the original
// implementation's schedule fetch, which probes frag_idx 1 first and reads
// frag_total off the first reply), with onFragment invoked synchronously for
// each reply as the caller's command.Callback observes it. Callers drive the
// walk themselves fragment-by-fragment because frag_total is only known
// after the first reply.
func (g *Gateway) GetSchedule(systemID, zoneIdx string, fragIdx int, onFragment func(ScheduleFragment, error)) error {
	if fragIdx < 1 {
		return rerr.InvalidPayload("get_schedule: frag_idx must be >= 1, got %d", fragIdx)
	}
	payload := fmt.Sprintf("%s200000%02X%02X", zoneIdx, fragIdx, 0)
	cmd := command.New(catalog.RQ, g.ID, systemID, catalog.Code0404, payload)
	cmd.Callback = func(_ *command.ReplyHeader, reply string, err error) {
		if err != nil {
			onFragment(ScheduleFragment{}, err)
			return
		}
		frag, parseErr := decodeScheduleReply(reply)
		onFragment(frag, parseErr)
	}
	g.Engine.Send(cmd)
	return nil
}

// CachedScheduleFragment returns the last RP/0404 reply this gateway has
// already recorded for (systemID, fragIdx), without issuing a new RQ, per
// spec.md §4.F's by_code_verb_context accessor (context here is the
// fragment index). The reply is filed on the controller's own Device store
// (0404 isn't a controller-only code, so it's never promoted to the TCS's
// store). Returns false if systemID is unknown or that fragment has never
// been seen.
func (g *Gateway) CachedScheduleFragment(systemID string, fragIdx int) (ScheduleFragment, bool) {
	ctl := g.Registry.Device(systemID)
	if ctl == nil {
		return ScheduleFragment{}, false
	}
	msg := ctl.ByVerbContext(catalog.Code0404, catalog.RP, strconv.Itoa(fragIdx))
	if msg == nil {
		return ScheduleFragment{}, false
	}
	frag, err := decodeScheduleReply(msg.Packet.Payload)
	if err != nil {
		return ScheduleFragment{}, false
	}
	return frag, true
}

// SetSchedule issues one W/0404 fragment of zoneIdx's schedule under
// systemID. Callers slice a full schedule blob into fragments themselves
// (the original implementation's chunking is itself an implementation
// artifact of its transport, not part of the wire contract) and call this
// once per fragment in order.
func (g *Gateway) SetSchedule(systemID, zoneIdx string, fragIdx, fragTotal int, data string) error {
	if fragIdx < 1 || fragTotal < 1 || fragIdx > fragTotal {
		return rerr.InvalidPayload("set_schedule: bad frag_idx/frag_total %d/%d", fragIdx, fragTotal)
	}
	if len(data) == 0 || len(data)%2 != 0 {
		return rerr.InvalidPayload("set_schedule: data must be a non-empty even-length hex string, got %q", data)
	}
	payload := fmt.Sprintf("%s200000%02X%02X%s", zoneIdx, fragIdx, fragTotal, data)
	cmd := command.New(catalog.W, g.ID, systemID, catalog.Code0404, payload)
	g.Engine.Send(cmd)
	return nil
}

func decodeScheduleReply(hexPayload string) (ScheduleFragment, error) {
	if len(hexPayload) < 12 {
		return ScheduleFragment{}, rerr.InvalidPayload("schedule fragment reply too short: %q", hexPayload)
	}
	fragIdx, err := strconv.ParseUint(hexPayload[8:10], 16, 8)
	if err != nil {
		return ScheduleFragment{}, rerr.InvalidPayload("bad frag_idx in %q: %v", hexPayload, err)
	}
	fragTotal, err := strconv.ParseUint(hexPayload[10:12], 16, 8)
	if err != nil {
		return ScheduleFragment{}, rerr.InvalidPayload("bad frag_total in %q: %v", hexPayload, err)
	}
	data := ""
	if len(hexPayload) > 12 {
		data = hexPayload[12:]
	}
	return ScheduleFragment{Idx: int(fragIdx), Total: int(fragTotal), Data: data}, nil
}
