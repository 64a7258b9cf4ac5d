package discovery

import (
	"testing"
	"time"

	"github.com/ramses-rf/gateway/internal/ramses/address"
	"github.com/ramses-rf/gateway/internal/ramses/catalog"
	"github.com/ramses-rf/gateway/internal/ramses/entities"
	"github.com/ramses-rf/gateway/internal/ramses/message"
	"github.com/ramses-rf/gateway/internal/ramses/packet"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// TestPlanForDeviceGroupsQueryableCodesByTier covers spec.md §4.I: a
// controller's RP-able codes spread across all three tiers (10E0/0005 at
// SCHEMA, 1100/000A/10A0 at PARAMS, 2309/30C9/... at STATUS).
func TestPlanForDeviceGroupsQueryableCodesByTier(t *testing.T) {
	dev := entities.NewDevice("01:054173", address.TypeCTL)
	defs := PlanForDevice("18:000730", dev, fixedClock(time.Now()))

	tiers := map[Tier]bool{}
	for _, def := range defs {
		tiers[def.Tier] = true
	}
	for _, want := range []Tier{Schema, Params, Status} {
		if !tiers[want] {
			t.Errorf("PlanForDevice(CTL) missing a %s-tier task", want)
		}
	}
}

// TestPlanForDeviceSuppressesAlreadyFreshCode covers spec.md §4.I's
// suppression rule: a code with a still-valid reply on file is skipped, but
// siblings sharing its tier are still queried.
func TestPlanForDeviceSuppressesAlreadyFreshCode(t *testing.T) {
	dev := entities.NewDevice("01:054173", address.TypeCTL)
	now := time.Now()

	dev.Put(&message.Message{
		Packet: &packet.Packet{Verb: catalog.RP, Code: catalog.Code10E0, Src: dev.ID},
		Fields: message.Record{},
	}, now)

	defs := PlanForDevice("18:000730", dev, fixedClock(now.Add(time.Second)))

	var schemaCmds []catalog.Code
	for _, def := range defs {
		if def.Tier != Schema {
			continue
		}
		for _, cmd := range def.Build() {
			schemaCmds = append(schemaCmds, cmd.Code)
		}
	}

	for _, code := range schemaCmds {
		if code == catalog.Code10E0 {
			t.Error("SCHEMA task re-queried 10E0 despite a fresh reply on file")
		}
	}
	found0005 := false
	for _, code := range schemaCmds {
		if code == catalog.Code0005 {
			found0005 = true
		}
	}
	if !found0005 {
		t.Error("SCHEMA task dropped 0005 even though it has no reply on file")
	}
}

// TestPlanForZoneQueriesByIdx covers the zone-level plan: each command
// carries the zone's idx as its payload, addressed to the TCS's controller.
func TestPlanForZoneQueriesByIdx(t *testing.T) {
	tcs := entities.NewTCS("01:054173", 12)
	zone := entities.NewZone(tcs.ControllerID, "03")

	defs := PlanForZone("18:000730", tcs, zone, fixedClock(time.Now()))

	var sawStatus bool
	for _, def := range defs {
		for _, cmd := range def.Build() {
			if cmd.Dst != tcs.ControllerID {
				t.Errorf("zone query dst = %s, want controller %s", cmd.Dst, tcs.ControllerID)
			}
			if cmd.Payload != "03" {
				t.Errorf("zone query payload = %s, want zone idx 03", cmd.Payload)
			}
			if def.Tier == Status {
				sawStatus = true
			}
		}
	}
	if !sawStatus {
		t.Error("PlanForZone produced no STATUS-tier task")
	}
}
