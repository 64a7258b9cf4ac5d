package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ramses-rf/gateway/internal/config"
	"github.com/ramses-rf/gateway/internal/ramses/catalog"
	"github.com/ramses-rf/gateway/internal/ramses/command"
	"github.com/ramses-rf/gateway/internal/ramses/discovery"
	"github.com/ramses-rf/gateway/internal/ramses/entities"
	"github.com/ramses-rf/gateway/internal/ramses/packet"
	"github.com/ramses-rf/gateway/internal/ramses/rerr"
)

func mustParse(t *testing.T, line string) *packet.Packet {
	t.Helper()
	pkt, err := packet.Parse(line, time.Now())
	if err != nil {
		t.Fatalf("packet.Parse(%q): %v", line, err)
	}
	return pkt
}

func newDispatcher(cfg *config.Config, strict bool) *Dispatcher {
	if cfg == nil {
		cfg = config.New()
	}
	return New(entities.NewRegistry(), cfg, zerolog.Nop(), strict)
}

// TestRejectsSameTypeHeatOnlyCode reproduces processor.py's own worked
// example: two controllers exchanging a heat-only code is invalid, per
// spec.md §4.J step 1.
func TestRejectsSameTypeHeatOnlyCode(t *testing.T) {
	d := newDispatcher(nil, false)
	pkt := mustParse(t, "000  I --- 01:054173 01:078710 --:------ 2309 003 000898")

	_, err := d.Process(pkt, time.Now())
	e, ok := err.(*rerr.Error)
	if !ok || e.Kind != rerr.KindInvalidAddrSet {
		t.Fatalf("Process() err = %v, want InvalidAddrSet", err)
	}
}

// TestAllowsDifferentTypeSrcDstAndCreatesDevices covers the normal path: a
// controller addressing a TRV with a zone setpoint creates both devices with
// their type-default roles and records the message on the source.
func TestAllowsDifferentTypeSrcDstAndCreatesDevices(t *testing.T) {
	d := newDispatcher(nil, false)
	pkt := mustParse(t, "000  I --- 01:054173 04:123456 --:------ 2309 003 000898")

	msg, err := d.Process(pkt, time.Now())
	if err != nil {
		t.Fatalf("Process() err = %v", err)
	}
	if msg == nil {
		t.Fatal("Process() returned nil message")
	}

	ctl := d.Registry.Device("01:054173")
	trv := d.Registry.Device("04:123456")
	if ctl == nil || ctl.Role != catalog.RoleCTL {
		t.Fatalf("controller device = %#v, want role CTL", ctl)
	}
	if trv == nil || trv.Role != catalog.RoleTRV {
		t.Fatalf("TRV device = %#v, want role TRV", trv)
	}
	if ctl.Latest(catalog.Code2309) == nil {
		t.Error("source device did not record the message")
	}
}

// TestSrcRoleViolationInStrictMode covers step 3: a TRV may only ever Tx an I
// for 30C9, never RQ.
func TestSrcRoleViolationInStrictMode(t *testing.T) {
	d := newDispatcher(nil, true)
	pkt := mustParse(t, "000 RQ --- 04:123456 01:054173 --:------ 30C9 001 00")

	_, err := d.Process(pkt, time.Now())
	if err == nil {
		t.Fatal("Process() err = nil, want InvalidPacket")
	}
	e, ok := err.(*rerr.Error)
	if !ok || e.Kind != rerr.KindInvalidPacket {
		t.Fatalf("Process() err = %v, want InvalidPacket", err)
	}
}

// TestSrcRoleViolationLoggedNotRaisedWhenNotStrict covers spec.md §7's
// propagation policy: the same violation is swallowed (logged) when the
// dispatcher isn't in strict mode.
func TestSrcRoleViolationLoggedNotRaisedWhenNotStrict(t *testing.T) {
	d := newDispatcher(nil, false)
	pkt := mustParse(t, "000 RQ --- 04:123456 01:054173 --:------ 30C9 001 00")

	msg, err := d.Process(pkt, time.Now())
	if err != nil {
		t.Fatalf("Process() err = %v, want nil (logged, not raised)", err)
	}
	if msg == nil {
		t.Fatal("Process() returned nil message")
	}
}

// TestCTLMayReceiveRQ3EF1Exception covers the hardcoded dst exception of
// spec.md §4.J step 3.
func TestCTLMayReceiveRQ3EF1Exception(t *testing.T) {
	d := newDispatcher(nil, true)
	pkt := mustParse(t, "000 RQ --- 99:123456 01:054173 --:------ 3EF1 000 ")

	_, err := d.Process(pkt, time.Now())
	if err != nil {
		t.Fatalf("Process() err = %v, want nil (CTL/RQ/3EF1 is an allowed exception)", err)
	}
}

// TestControllerOnlyCodeCreatesSystem covers step 5: observing a
// controller-only code attaches/creates the TCS for that controller.
func TestControllerOnlyCodeCreatesSystem(t *testing.T) {
	d := newDispatcher(nil, false)
	pkt := mustParse(t, "000  I --- 01:054173 --:------ 01:054173 1F09 003 00116A")

	if _, err := d.Process(pkt, time.Now()); err != nil {
		t.Fatalf("Process() err = %v", err)
	}

	tcs := d.Registry.System("01:054173")
	if tcs == nil {
		t.Fatal("controller-only code did not create a TCS")
	}
	if tcs.Latest(catalog.Code1F09) == nil {
		t.Error("TCS did not record the sync message")
	}
}

// TestFakeableBroadcastFansOutToHostedDevices covers step 5's fakeable-
// destination fan-out, grounded on processor.py's relay-demand example
// (".I --- 22:060293 --:------ 22:060293 0008 002 000C").
func TestFakeableBroadcastFansOutToHostedDevices(t *testing.T) {
	d := newDispatcher(nil, false)

	host := d.Registry.GetOrCreateDevice("22:060293", "22")
	hosted := d.Registry.GetOrCreateDevice("13:999999", "13")
	hosted.ControllerID = host.ID

	pkt := mustParse(t, "000  I --- 22:060293 --:------ 22:060293 0008 002 00AA")
	if _, err := d.Process(pkt, time.Now()); err != nil {
		t.Fatalf("Process() err = %v", err)
	}

	if hosted.Latest(catalog.Code0008) == nil {
		t.Error("hosted device did not receive the fanned-out relay-demand message")
	}
}

// TestEnforceKnownListDropsUnlistedDevices covers spec.md §6's
// enforce_known_list policy.
func TestEnforceKnownListDropsUnlistedDevices(t *testing.T) {
	cfg := config.New()
	cfg.EnforceKnownList = true
	cfg.IncludeList["01:054173"] = config.KnownDevice{}
	d := newDispatcher(cfg, false)

	pkt := mustParse(t, "000  I --- 01:054173 04:123456 --:------ 2309 003 000898")
	msg, err := d.Process(pkt, time.Now())
	if err != nil {
		t.Fatalf("Process() err = %v", err)
	}
	if msg != nil {
		t.Error("Process() should silently drop a packet touching an unlisted device")
	}
}

// TestOpenThermSupportLatchesAfterTwoUnknownDataIDReplies covers spec.md §8
// scenario S5: a DataID isn't latched unsupported until the *second*
// Unknown-DataId reply.
func TestOpenThermSupportLatchesAfterTwoUnknownDataIDReplies(t *testing.T) {
	d := newDispatcher(nil, false)
	line := "000 RP --- 10:111111 18:000730 --:------ 3220 005 0070490000"

	pkt := mustParse(t, line)
	if _, err := d.Process(pkt, time.Now()); err != nil {
		t.Fatalf("Process() err = %v", err)
	}
	otb := d.Registry.Device("10:111111")
	if otb == nil || otb.OpenTherm == nil {
		t.Fatal("first 3220 reply did not attach a SupportTracker")
	}
	if otb.OpenTherm.IsUnsupported(0x49) {
		t.Fatal("DataID latched unsupported after only one Unknown-DataId reply")
	}

	pkt = mustParse(t, line)
	if _, err := d.Process(pkt, time.Now()); err != nil {
		t.Fatalf("Process() err = %v", err)
	}
	if !otb.OpenTherm.IsUnsupported(0x49) {
		t.Error("DataID not latched unsupported after two consecutive Unknown-DataId replies")
	}
}

// TestZoneCarryingCodePopulatesZone covers the zone-level half of spec.md
// §4.F/§4.J step 5: once a TCS exists, a zone-carrying broadcast creates and
// records against the named zone.
func TestZoneCarryingCodePopulatesZone(t *testing.T) {
	d := newDispatcher(nil, false)

	syncPkt := mustParse(t, "000  I --- 01:054173 --:------ 01:054173 1F09 003 00116A")
	if _, err := d.Process(syncPkt, time.Now()); err != nil {
		t.Fatalf("Process(1F09) err = %v", err)
	}
	tcs := d.Registry.System("01:054173")
	if tcs == nil {
		t.Fatal("controller-only code did not create a TCS")
	}

	temp := mustParse(t, "000  I --- 01:054173 --:------ 01:054173 30C9 003 000847")
	if _, err := d.Process(temp, time.Now()); err != nil {
		t.Fatalf("Process(30C9) err = %v", err)
	}

	zone := tcs.Zones["00"]
	if zone == nil {
		t.Fatal("30C9 did not populate zone 00 on the TCS")
	}
	if zone.Latest(catalog.Code30C9) == nil {
		t.Error("zone did not record the temperature message")
	}
}

// TestZoneCarryingCodeNoopsBeforeSystemExists covers the lazy-TCS-creation
// rule: a zone-carrying code seen before any controller-only code has
// created the TCS is simply dropped by zone routing, not queued or errored.
func TestZoneCarryingCodeNoopsBeforeSystemExists(t *testing.T) {
	d := newDispatcher(nil, false)

	temp := mustParse(t, "000  I --- 01:054173 --:------ 01:054173 30C9 003 000847")
	if _, err := d.Process(temp, time.Now()); err != nil {
		t.Fatalf("Process(30C9) err = %v", err)
	}

	if tcs := d.Registry.System("01:054173"); tcs != nil {
		t.Fatal("30C9 alone should not create a TCS")
	}
}

// TestDHWCarryingCodePopulatesDHW covers the hot-water half of spec.md §4.F:
// once a TCS exists, a direct controller<->DHW-sensor exchange lazily
// creates and records against the system's single DHW zone.
func TestDHWCarryingCodePopulatesDHW(t *testing.T) {
	d := newDispatcher(nil, false)

	syncPkt := mustParse(t, "000  I --- 01:054173 --:------ 01:054173 1F09 003 00116A")
	if _, err := d.Process(syncPkt, time.Now()); err != nil {
		t.Fatalf("Process(1F09) err = %v", err)
	}

	temp := mustParse(t, "000  I --- 01:054173 07:777777 --:------ 1260 003 000911")
	if _, err := d.Process(temp, time.Now()); err != nil {
		t.Fatalf("Process(1260) err = %v", err)
	}

	tcs := d.Registry.System("01:054173")
	if tcs.DHW == nil {
		t.Fatal("1260 did not create the TCS's DHW zone")
	}
	if tcs.DHW.Latest(catalog.Code1260) == nil {
		t.Error("DHW zone did not record the temperature message")
	}
}

// TestUFHSetpointPopulatesCircuitsOnceBound covers the underfloor-heating
// half of spec.md §4.F: a 22C9 broadcast from a UFH controller only files
// per-circuit entities once that controller's host TCS is known.
func TestUFHSetpointPopulatesCircuitsOnceBound(t *testing.T) {
	d := newDispatcher(nil, false)

	syncPkt := mustParse(t, "000  I --- 01:054173 --:------ 01:054173 1F09 003 00116A")
	if _, err := d.Process(syncPkt, time.Now()); err != nil {
		t.Fatalf("Process(1F09) err = %v", err)
	}
	tcs := d.Registry.System("01:054173")
	if tcs == nil {
		t.Fatal("controller-only code did not create a TCS")
	}

	ufh := d.Registry.GetOrCreateDevice("02:123456", "02")
	ufh.ControllerID = tcs.ControllerID

	setpoint := mustParse(t, "000  I --- 02:123456 --:------ 02:123456 22C9 006 000BB80C8000")
	if _, err := d.Process(setpoint, time.Now()); err != nil {
		t.Fatalf("Process(22C9) err = %v", err)
	}

	circuit := tcs.UFHControllers["02:123456/00"]
	if circuit == nil {
		t.Fatal("22C9 did not populate the UFH circuit once its TCS was bound")
	}
	if circuit.Latest(catalog.Code22C9) == nil {
		t.Error("UFH circuit did not record the setpoint message")
	}
}

// stubSender is a discovery.Sender that just records the commands it's given,
// safe for concurrent use since the scheduler fires from its own goroutines.
type stubSender struct {
	mu   sync.Mutex
	cmds []*command.Command
}

func (s *stubSender) Send(cmd *command.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmds = append(s.cmds, cmd)
}

func (s *stubSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cmds)
}

// TestWithDiscoverySchedulesNewDevice covers spec.md §4.I's wiring: once a
// Dispatcher is armed with a Scheduler, observing a brand-new device arms its
// discovery tasks, which eventually send at least one query.
func TestWithDiscoverySchedulesNewDevice(t *testing.T) {
	d := newDispatcher(nil, false)
	sender := &stubSender{}
	scheduler := discovery.NewScheduler(sender, func(discovery.Tier) time.Duration { return time.Millisecond })
	d.WithDiscovery(context.Background(), scheduler, "18:000730")

	pkt := mustParse(t, "000  I --- 01:054173 04:123456 --:------ 2309 003 000898")
	if _, err := d.Process(pkt, time.Now()); err != nil {
		t.Fatalf("Process() err = %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if sender.count() > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("no discovery command was sent after observing a new controller/TRV pair")
}
