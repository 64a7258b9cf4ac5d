// Package devices applies the promotion rules of spec.md §4.G: a freshly
// observed generic device is upgraded to a fingerprinted role once it emits
// a verb/code pair unique to that role, and a controller-capable thermostat
// that emits a controller-only code under the self-addressed domain pattern
// is marked a controller and given its own TCS. Grounded on
// original_source/ramses_rf/devices.py's DeviceBase._handle_msg/_is_controller
// and the RFG/HVAC promotion branches noted in its Fakeable/HvacDevice
// subclasses.
package devices

import (
	"github.com/ramses-rf/gateway/internal/ramses/address"
	"github.com/ramses-rf/gateway/internal/ramses/catalog"
	"github.com/ramses-rf/gateway/internal/ramses/entities"
	"github.com/ramses-rf/gateway/internal/ramses/message"
	"github.com/ramses-rf/gateway/internal/ramses/rerr"
)

// controllerCapableTypes is the set of device-type prefixes that may host a
// TemperatureControlSystem once they fingerprint as a controller, per
// spec.md §4.G ("type 01/12/22/23/34"). 12 and 22 have no named
// address.DeviceType constant elsewhere in the catalogue, so they're spelled
// out here rather than invented as unused package-level constants.
var controllerCapableTypes = map[address.DeviceType]bool{
	address.TypeCTL:          true,
	address.DeviceType("12"): true,
	address.DeviceType("22"): true,
	address.TypePRG:          true,
	address.TypeTHM:          true,
}

// Apply runs the promotion rules for one freshly-routed message against its
// source device, creating and attaching a TCS if the message marks src as a
// controller. It is a no-op on a device that has already fingerprinted away
// from its generic role (Promote itself is monotone), except for the
// controller check, which also fires on a device still on its type's default
// role (e.g. a type-34 THM) and raises a CorruptState error on a device that
// has fingerprinted as some other role. An RP is checked against the HVAC
// trigger table only (its (RP, 31DA) row); RQ and W are ignored.
func Apply(registry *entities.Registry, src *entities.Device, msg *message.Message, maxZones int) (*entities.TCS, error) {
	if src == nil {
		return nil, nil
	}
	if msg.Packet.Verb != catalog.I {
		if msg.Packet.Verb == catalog.RP {
			applyHVACPromotion(src, msg)
		}
		return nil, nil
	}

	if tcs, err := applyControllerPromotion(registry, src, msg, maxZones); tcs != nil || err != nil {
		return tcs, err
	}

	applyHVACPromotion(src, msg)
	applyRFGPromotion(src, msg)
	return nil, nil
}

// applyControllerPromotion implements the third bullet of spec.md §4.G: a
// controller-capable thermostat emitting a controller-only code with
// addr0 == addr2 == self and addr1 == NUL is a controller.
func applyControllerPromotion(registry *entities.Registry, src *entities.Device, msg *message.Message, maxZones int) (*entities.TCS, error) {
	if !controllerCapableTypes[src.Type] {
		return nil, nil
	}
	if !isControllerOnlyCode(msg.Packet.Code) {
		return nil, nil
	}
	if msg.Packet.Addr0 != src.ID || msg.Packet.Addr2 != src.ID || !address.IsNull(msg.Packet.Addr1) {
		return nil, nil
	}

	if src.Role != catalog.RoleCTL && !catalog.Promotable[src.Role] && src.Role != catalog.DefaultRoleByType[src.Type] {
		return nil, rerr.CorruptState("%s: already fingerprinted as %s, cannot also be a controller", src.ID, src.Role)
	}
	src.Role = catalog.RoleCTL

	tcs := registry.GetOrCreateSystem(src.ID, maxZones)
	return tcs, nil
}

func isControllerOnlyCode(code catalog.Code) bool {
	for _, c := range catalog.ControllerOnly {
		if c == code {
			return true
		}
	}
	return false
}

// applyHVACPromotion implements the first bullet of spec.md §4.G: a generic
// DEV emitting one of the HVAC fingerprint verb/code pairs is promoted to
// that role.
func applyHVACPromotion(src *entities.Device, msg *message.Message) {
	if src.Role != catalog.RoleDEV {
		return
	}
	if role, ok := catalog.HVACPromotionTrigger[catalog.VerbCode{Verb: msg.Packet.Verb, Code: msg.Packet.Code}]; ok {
		src.Promote(role)
	}
}

// applyRFGPromotion implements the second bullet of spec.md §4.G: a type-30
// RFG device fingerprints as FAN on 31D9/31DA, the only branch spec.md marks
// as settled (the RFG-proper trigger set is an open question per §9, so it's
// left unexercised here pending clarification from upstream).
func applyRFGPromotion(src *entities.Device, msg *message.Message) {
	if src.Type != address.TypeRFG || src.Role != catalog.RoleRFG {
		return
	}
	vc := catalog.VerbCode{Verb: msg.Packet.Verb, Code: msg.Packet.Code}
	for _, trigger := range catalog.RFGPromotionFAN {
		if trigger == vc {
			src.Role = catalog.RoleFAN
			return
		}
	}
}
