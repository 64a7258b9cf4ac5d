// Plan-building for per-entity discovery, per spec.md §4.I: a device's role
// (or a TCS/zone) determines which codes are worth periodically RQing, and
// at which of the three tiers. Grounded on original_source/ramses_rf/
// discovery.py's per-class SCHEMA/PARAMS/STATUS task tables and devices_base.py's
// _setup_discovery_tasks.
package discovery

import (
	"time"

	"github.com/ramses-rf/gateway/internal/ramses/catalog"
	"github.com/ramses-rf/gateway/internal/ramses/command"
	"github.com/ramses-rf/gateway/internal/ramses/entities"
)

// codeTier classifies a queryable code into the SCHEMA/PARAMS/STATUS tier it
// belongs to, per spec.md §4.I's worked examples: SCHEMA asks 1FC9 (rf-bind),
// 10E0 (device-info) and inventory codes; PARAMS asks 1100/0004/000A/10A0;
// STATUS asks temperatures, modes, relay demands and HVAC state.
var codeTier = map[catalog.Code]Tier{
	catalog.Code1FC9: Schema,
	catalog.Code10E0: Schema,
	catalog.Code0005: Schema,
	catalog.Code000C: Schema,

	catalog.Code1100: Params,
	catalog.Code0004: Params,
	catalog.Code000A: Params,
	catalog.Code10A0: Params,

	catalog.Code1260: Status,
	catalog.Code1290: Status,
	catalog.Code2309: Status,
	catalog.Code2349: Status,
	catalog.Code30C9: Status,
	catalog.Code3150: Status,
	catalog.Code3EF0: Status,
	catalog.Code12B0: Status,
	catalog.Code31D9: Status,
	catalog.Code31DA: Status,
	catalog.Code1298: Status,
	catalog.Code12A0: Status,
	catalog.Code22F1: Status,
	catalog.Code22F3: Status,
	catalog.Code1F41: Status,
	catalog.Code2E04: Status,
}

// queryableCodesByTier groups, by tier, every code role is permitted to
// answer with RP (i.e. a plausible RQ target), skipping codes with no tier
// assignment (W-only/I-only codes no requester can usefully poll for).
func queryableCodesByTier(role catalog.Role) map[Tier][]catalog.Code {
	out := map[Tier][]catalog.Code{}
	for code, verbs := range catalog.CodesByRole[role] {
		if !verbs[catalog.RP] {
			continue
		}
		tier, ok := codeTier[code]
		if !ok {
			continue
		}
		out[tier] = append(out[tier], code)
	}
	return out
}

// buildTier returns the TaskDef for tier, querying gatewayID -> targetID for
// each of codes, skipping any code isFresh already reports as answered.
func buildTier(tier Tier, gatewayID, targetID string, codes []catalog.Code, isFresh func(catalog.Code, time.Time) bool, payload func(catalog.Code) string, clock func() time.Time) TaskDef {
	return TaskDef{
		Tier: tier,
		Build: func() []*command.Command {
			var cmds []*command.Command
			for _, code := range codes {
				if isFresh(code, clock()) {
					continue
				}
				p := "00"
				if payload != nil {
					p = payload(code)
				}
				cmds = append(cmds, command.New(catalog.RQ, gatewayID, targetID, code, p))
			}
			return cmds
		},
	}
}

// PlanForDevice returns one TaskDef per non-empty tier for dev, built from
// every code catalog.CodesByRole says dev's role may answer with RP. clock
// lets callers inject time.Now (kept as a parameter rather than called
// directly so tests can use a fixed clock).
func PlanForDevice(gatewayID string, dev *entities.Device, clock func() time.Time) []TaskDef {
	byTier := queryableCodesByTier(dev.Role)
	isFresh := func(code catalog.Code, now time.Time) bool {
		return dev.LatestValid(code, now) != nil
	}
	var defs []TaskDef
	for _, tier := range []Tier{Schema, Params, Status} {
		codes := byTier[tier]
		if len(codes) == 0 {
			continue
		}
		defs = append(defs, buildTier(tier, gatewayID, dev.ID, codes, isFresh, nil, clock))
	}
	return defs
}

// PlanForSystem returns the TCS-level TaskDefs: SCHEMA asks the zone/device
// inventory (0005/000C), STATUS asks the system mode (2E04), per spec.md
// §4.I (the controller itself answers these, so they are queried against
// its own id rather than a zone_idx payload).
func PlanForSystem(gatewayID string, tcs *entities.TCS, clock func() time.Time) []TaskDef {
	isFresh := func(code catalog.Code, now time.Time) bool {
		return tcs.LatestValid(code, now) != nil
	}
	return []TaskDef{
		buildTier(Schema, gatewayID, tcs.ControllerID, []catalog.Code{catalog.Code0005, catalog.Code000C}, isFresh, nil, clock),
		buildTier(Status, gatewayID, tcs.ControllerID, []catalog.Code{catalog.Code2E04}, isFresh, nil, clock),
	}
}

// PlanForZone returns the zone-level TaskDefs: PARAMS asks the zone name and
// setpoint params (0004/000A), STATUS asks setpoint/temperature/window state
// (2309/30C9/12B0), each carrying the zone_idx as its RQ payload per spec.md
// §4.C's zone_idx-first wire convention. Queries address the TCS's
// controller, since the zone itself has no radio presence.
func PlanForZone(gatewayID string, tcs *entities.TCS, zone *entities.Zone, clock func() time.Time) []TaskDef {
	isFresh := func(code catalog.Code, now time.Time) bool {
		return zone.LatestValid(code, now) != nil
	}
	payload := func(catalog.Code) string { return zone.Idx }
	return []TaskDef{
		buildTier(Params, gatewayID, tcs.ControllerID, []catalog.Code{catalog.Code0004, catalog.Code000A}, isFresh, payload, clock),
		buildTier(Status, gatewayID, tcs.ControllerID, []catalog.Code{catalog.Code2309, catalog.Code30C9, catalog.Code12B0}, isFresh, payload, clock),
	}
}
