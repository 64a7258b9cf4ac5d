package message

import (
	"strconv"
	"strings"

	"github.com/ramses-rf/gateway/internal/ramses/address"
	"github.com/ramses-rf/gateway/internal/ramses/catalog"
	"github.com/ramses-rf/gateway/internal/ramses/opentherm"
	"github.com/ramses-rf/gateway/internal/ramses/rerr"
)

// payloadParser decodes one hex record (a whole payload for non-array codes,
// or one fixed-width slice for array codes) into a field set.
type payloadParser func(verb catalog.Verb, hexPayload string) (Record, error)

// parsers holds the per-code decoders named in spec.md §4.C. Codes with no
// entry here decode to an empty Record (their regex-level validation in
// catalog.Schema is still enforced by Decode).
var parsers = map[catalog.Code]payloadParser{
	catalog.Code0004: parseZoneName,
	catalog.Code0005: parseSystemZones,
	catalog.Code0008: parseRelayDemand,
	catalog.Code0009: parseRelayFailsafe,
	catalog.Code000A: parseZoneParams,
	catalog.Code000C: parseZoneDevices,
	catalog.Code1060: parseBatteryStatus,
	catalog.Code10A0: parseDHWParams,
	catalog.Code10E0: parseDeviceInfo,
	catalog.Code1100: parseTPIParams,
	catalog.Code1260: parseTemperature("dhw_temperature"),
	catalog.Code1290: parseTemperature("outdoor_temperature"),
	catalog.Code12B0: parseWindowState,
	catalog.Code1F41: parseDHWMode,
	catalog.Code1FC9: parseRFBind,
	catalog.Code2249: parseSetpointNowNext,
	catalog.Code22C9: parseUFHSetpoint,
	catalog.Code2309: parseZoneSetpoint,
	catalog.Code2349: parseZoneMode,
	catalog.Code2E04: parseSystemMode,
	catalog.Code30C9: parseZoneTemperature,
	catalog.Code3150: parseHeatDemand,
	catalog.Code3220: parseOpenTherm,
	catalog.Code3B00: parseActuatorSync,
	catalog.Code3EF0: parseActuatorState,
	catalog.Code3EF1: parseActuatorCycle,
	catalog.Code0404: parseScheduleFragment,
	catalog.Code0418: parseFaultLog,
	catalog.Code22F1: parseFanMode,
	catalog.Code22F3: parseFanBoost,
	catalog.Code31D9: parseFanState,
	catalog.Code31DA: parseFanStateExt,
}

func hexByte(s string, i int) (byte, error) {
	if i*2+2 > len(s) {
		return 0, rerr.InvalidPayload("payload %q too short for byte %d", s, i)
	}
	v, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
	if err != nil {
		return 0, rerr.InvalidPayload("bad hex byte in %q: %v", s, err)
	}
	return byte(v), nil
}

// temp90 decodes a signed 16-bit value scaled by 100, the RAMSES-II
// convention for temperature/setpoint fields (e.g. 0x0847 -> 21.19).
func temp90(hi, lo byte) float64 {
	raw := int16(uint16(hi)<<8 | uint16(lo))
	return float64(raw) / 100.0
}

func parseTemperature(field string) payloadParser {
	return func(verb catalog.Verb, p string) (Record, error) {
		hi, err := hexByte(p, 1)
		if err != nil {
			return nil, err
		}
		lo, err := hexByte(p, 2)
		if err != nil {
			return nil, err
		}
		return Record{field: temp90(hi, lo)}, nil
	}
}

// parseZoneTemperature decodes one 30C9 array record: zone_idx + temperature.
func parseZoneTemperature(verb catalog.Verb, p string) (Record, error) {
	hi, err := hexByte(p, 1)
	if err != nil {
		return nil, err
	}
	lo, err := hexByte(p, 2)
	if err != nil {
		return nil, err
	}
	return Record{"zone_idx": p[:2], "temperature": temp90(hi, lo)}, nil
}

// parseZoneSetpoint decodes one 2309 record: zone_idx + setpoint.
func parseZoneSetpoint(verb catalog.Verb, p string) (Record, error) {
	hi, err := hexByte(p, 1)
	if err != nil {
		return nil, err
	}
	lo, err := hexByte(p, 2)
	if err != nil {
		return nil, err
	}
	return Record{"zone_idx": p[:2], "setpoint": temp90(hi, lo)}, nil
}

// parseZoneParams decodes one 000A record: zone_idx, flags, min/max setpoint.
func parseZoneParams(verb catalog.Verb, p string) (Record, error) {
	if len(p) < 12 {
		return Record{}, nil // RQ with bare zone_idx carries no params
	}
	flags, err := hexByte(p, 1)
	if err != nil {
		return nil, err
	}
	minHi, _ := hexByte(p, 2)
	minLo, _ := hexByte(p, 3)
	maxHi, _ := hexByte(p, 4)
	maxLo, _ := hexByte(p, 5)
	return Record{
		"zone_idx":       p[:2],
		"local_override": flags&0x01 == 0,
		"openwindow":     flags&0x02 == 0,
		"min_temp":       temp90(minHi, minLo),
		"max_temp":       temp90(maxHi, maxLo),
	}, nil
}

// parseUFHSetpoint decodes one 22C9 record: ufh_idx + setpoint bounds.
func parseUFHSetpoint(verb catalog.Verb, p string) (Record, error) {
	minHi, err := hexByte(p, 1)
	if err != nil {
		return nil, err
	}
	minLo, _ := hexByte(p, 2)
	maxHi, _ := hexByte(p, 3)
	maxLo, _ := hexByte(p, 4)
	return Record{
		"ufh_setpoint":     temp90(minHi, minLo),
		"max_ufh_setpoint": temp90(maxHi, maxLo),
	}, nil
}

// parseSetpointNowNext decodes one 2249 record into its current and next
// setpoint; the minutes-remaining bytes are not decoded.
func parseSetpointNowNext(verb catalog.Verb, p string) (Record, error) {
	nowHi, _ := hexByte(p, 1)
	nowLo, _ := hexByte(p, 2)
	nextHi, _ := hexByte(p, 3)
	nextLo, _ := hexByte(p, 4)
	return Record{
		"setpoint":      temp90(nowHi, nowLo),
		"next_setpoint": temp90(nextHi, nextLo),
	}, nil
}

// parseHeatDemand decodes one 3150 record: (zone_idx|domain) + demand%, the
// raw byte scaled by 256 (0xC8/200 is the boiler-relay modulation scale used
// by 0008/3EF1, not this code; spec.md §8 S1 fixes 0x60 -> 0.375 == 0x60/256).
func parseHeatDemand(verb catalog.Verb, p string) (Record, error) {
	demand, err := hexByte(p, 1)
	if err != nil {
		return nil, err
	}
	return Record{"zone_idx": p[:2], "heat_demand": float64(demand) / 256.0}, nil
}

// parseSystemZones decodes one 0005 record: zone_type + zone-presence bitmask.
func parseSystemZones(verb catalog.Verb, p string) (Record, error) {
	if len(p) < 8 {
		return Record{}, nil
	}
	zoneType, _ := hexByte(p, 1)
	maskHi, _ := hexByte(p, 2)
	maskLo, _ := hexByte(p, 3)
	mask := uint16(maskHi)<<8 | uint16(maskLo)
	var present []int
	for i := 0; i < 16; i++ {
		if mask&(1<<uint(i)) != 0 {
			present = append(present, i)
		}
	}
	return Record{"zone_type": zoneType, "zones": present}, nil
}

// parseRelayDemand decodes 0008: domain/zone + demand%.
func parseRelayDemand(verb catalog.Verb, p string) (Record, error) {
	demand, err := hexByte(p, 1)
	if err != nil {
		return nil, err
	}
	return Record{"relay_demand": float64(demand) / 200.0}, nil
}

// parseRelayFailsafe decodes one 0009 record: domain/zone + failsafe flag.
// The exact meaning of the enabled-bit is not recoverable from the catalogue
// regex alone (spec.md §9 open question); it is surfaced as a raw flag byte
// rather than a named boolean until that question is resolved.
func parseRelayFailsafe(verb catalog.Verb, p string) (Record, error) {
	flag, err := hexByte(p, 1)
	if err != nil {
		return nil, err
	}
	return Record{"failsafe_flag": flag}, nil
}

// parseZoneDevices decodes one 000C record: zone_idx, device-role byte, and
// the device id in the trailing 3 bytes.
func parseZoneDevices(verb catalog.Verb, p string) (Record, error) {
	if len(p) < 12 {
		return nil, rerr.InvalidPayload("000C record %q too short", p)
	}
	role, _ := hexByte(p, 1)
	idHex := p[6:12]
	return Record{"role": role, "device_hex": idHex}, nil
}

// parseZoneName decodes 0004: zone_idx + UTF-16BE name, 7F-terminated.
func parseZoneName(verb catalog.Verb, p string) (Record, error) {
	if len(p) < 4 {
		return Record{}, nil
	}
	raw := p[4:]
	var runes []rune
	for i := 0; i+4 <= len(raw); i += 4 {
		hi, err := hexByte(raw, i/2)
		if err != nil {
			return nil, err
		}
		lo, err := hexByte(raw, i/2+1)
		if err != nil {
			return nil, err
		}
		if hi == 0x7F {
			break
		}
		runes = append(runes, rune(uint16(hi)<<8|uint16(lo)))
	}
	return Record{"zone_idx": p[:2], "name": strings.TrimRight(string(runes), "\x00")}, nil
}

// parseBatteryStatus decodes 1060: battery level + low-battery flag.
func parseBatteryStatus(verb catalog.Verb, p string) (Record, error) {
	level, err := hexByte(p, 1)
	if err != nil {
		return nil, err
	}
	low, err := hexByte(p, 2)
	if err != nil {
		return nil, err
	}
	return Record{"battery_level": float64(level) / 2.0, "low_battery": low == 0}, nil
}

// parseDHWParams decodes 10A0: setpoint and overrun; the differential is not
// decoded.
func parseDHWParams(verb catalog.Verb, p string) (Record, error) {
	if len(p) < 10 {
		return Record{}, nil
	}
	hi, _ := hexByte(p, 1)
	lo, _ := hexByte(p, 2)
	overrun, _ := hexByte(p, 3)
	return Record{"setpoint": temp90(hi, lo), "overrun": int(overrun)}, nil
}

// parseDeviceInfo decodes 10E0 into a raw firmware/product-id slice, since
// its layout varies by device class; callers that need specific fields
// re-slice the hex themselves.
func parseDeviceInfo(verb catalog.Verb, p string) (Record, error) {
	return Record{"raw_hex": p}, nil
}

// parseTPIParams decodes 1100: cycle rate and min on/off times; the
// proportional band is not decoded.
func parseTPIParams(verb catalog.Verb, p string) (Record, error) {
	if len(p) < 8 {
		return Record{}, nil
	}
	cycleRate, _ := hexByte(p, 1)
	minOnTime, _ := hexByte(p, 2)
	minOffTime, _ := hexByte(p, 3)
	return Record{
		"cycle_rate":   int(cycleRate),
		"min_on_time":  float64(minOnTime) / 4.0,
		"min_off_time": float64(minOffTime) / 4.0,
	}, nil
}

// parseWindowState decodes 12B0: open/closed flag (0xC800 == open).
func parseWindowState(verb catalog.Verb, p string) (Record, error) {
	hi, err := hexByte(p, 1)
	if err != nil {
		return nil, err
	}
	return Record{"zone_idx": p[:2], "open": hi == 0xC8}, nil
}

// parseDHWMode decodes 1F41: active flag + optional mode + until.
func parseDHWMode(verb catalog.Verb, p string) (Record, error) {
	active, err := hexByte(p, 1)
	if err != nil {
		return nil, err
	}
	rec := Record{"active": active == 1}
	if len(p) >= 6 {
		mode, _ := hexByte(p, 2)
		rec["mode"] = int(mode)
	}
	return rec, nil
}

// parseRFBind keeps a 1FC9 payload as raw hex; its (idx, code, device-hex)
// tuples, 12 hex chars each, are not split out here.
func parseRFBind(verb catalog.Verb, p string) (Record, error) {
	return Record{"raw_hex": p}, nil
}

// parseZoneMode decodes 2349: setpoint, mode, optional until.
func parseZoneMode(verb catalog.Verb, p string) (Record, error) {
	hi, _ := hexByte(p, 1)
	lo, _ := hexByte(p, 2)
	mode, err := hexByte(p, 3)
	if err != nil {
		return nil, err
	}
	return Record{"zone_idx": p[:2], "setpoint": temp90(hi, lo), "mode": int(mode)}, nil
}

// parseSystemMode decodes 2E04: system mode + optional until + permanent flag.
func parseSystemMode(verb catalog.Verb, p string) (Record, error) {
	mode, err := hexByte(p, 0)
	if err != nil {
		return nil, err
	}
	permanent, err := hexByte(p, (len(p)-2)/2)
	if err != nil {
		return nil, err
	}
	return Record{"system_mode": int(mode), "permanent": permanent == 1}, nil
}

// parseActuatorSync decodes 3B00: domain + sync flag.
func parseActuatorSync(verb catalog.Verb, p string) (Record, error) {
	flag, err := hexByte(p, 1)
	if err != nil {
		return nil, err
	}
	return Record{"actuator_sync": flag == 0xC8}, nil
}

// parseActuatorState decodes 3EF0: modulation level.
func parseActuatorState(verb catalog.Verb, p string) (Record, error) {
	level, err := hexByte(p, 1)
	if err != nil {
		return nil, err
	}
	return Record{"modulation_level": float64(level) / 200.0}, nil
}

// parseActuatorCycle decodes 3EF1 RP: cycle counters; RQ carries no fields.
func parseActuatorCycle(verb catalog.Verb, p string) (Record, error) {
	if verb != catalog.RP || len(p) < 20 {
		return Record{}, nil
	}
	modLevel, err := hexByte(p, 9)
	if err != nil {
		return nil, err
	}
	return Record{"modulation_level": float64(modLevel) / 200.0}, nil
}

// parseOpenTherm decodes a 3220 payload via the dedicated sub-protocol
// package and re-exposes its fields as a Record.
func parseOpenTherm(verb catalog.Verb, p string) (Record, error) {
	msg, err := opentherm.Decode(p)
	if err != nil {
		return nil, rerr.InvalidPayload("%v", err)
	}
	return Record{
		"msg_type":  msg.MsgType.String(),
		"data_id":   msg.DataID,
		"name":      msg.Name,
		"value":     msg.Value,
		"supported": msg.Supported,
	}, nil
}

// parseScheduleFragment decodes the 0404 wire header, per spec.md §1's
// carve-out: only the fragment envelope (zone_idx, fragment index/total,
// raw data) is in scope, not the zone-programme content it carries.
func parseScheduleFragment(verb catalog.Verb, p string) (Record, error) {
	if len(p) < 12 {
		return Record{"zone_idx": p[:2]}, nil
	}
	fragIdx, err := hexByte(p, 4)
	if err != nil {
		return nil, err
	}
	fragTotal, err := hexByte(p, 5)
	if err != nil {
		return nil, err
	}
	rec := Record{
		"zone_idx":   p[:2],
		"frag_idx":   int(fragIdx),
		"frag_total": int(fragTotal),
	}
	if len(p) > 12 {
		rec["frag_data"] = p[12:]
	}
	return rec, nil
}

// parseFaultLog decodes one 0418 fault-log entry: log index, fault
// state/type, the domain/zone the fault was raised against, and (when
// present) the device class + id that raised it. The dispatcher stores the
// decoded entry with the emitting device's other messages.
func parseFaultLog(verb catalog.Verb, p string) (Record, error) {
	if len(p) < 20 {
		return Record{}, nil
	}
	logIdx, err := hexByte(p, 0)
	if err != nil {
		return nil, err
	}
	faultState, _ := hexByte(p, 2)
	faultType, _ := hexByte(p, 3)
	deviceClass, _ := hexByte(p, 5)
	rec := Record{
		"log_idx":      int(logIdx),
		"fault_state":  int(faultState),
		"fault_type":   int(faultType),
		"domain_idx":   p[8:10],
		"device_class": int(deviceClass),
		"raw_hex":      p,
	}
	if idHex := p[12:18]; idHex != "000000" {
		if id, err := address.DecodeHex(idHex); err == nil {
			rec["device_id"] = id
		}
	}
	return rec, nil
}

// parseFanMode decodes 22F1: the HVAC remote's selected fan mode and
// (when present) the number of speeds the remote/unit supports.
func parseFanMode(verb catalog.Verb, p string) (Record, error) {
	if len(p) < 4 {
		return Record{}, nil
	}
	mode, err := hexByte(p, 1)
	if err != nil {
		return nil, err
	}
	rec := Record{"fan_mode": int(mode)}
	if len(p) >= 6 {
		numSpeeds, _ := hexByte(p, 2)
		rec["num_speeds"] = int(numSpeeds)
	}
	return rec, nil
}

// parseFanBoost decodes 22F3: the requested boost duration in minutes.
func parseFanBoost(verb catalog.Verb, p string) (Record, error) {
	if len(p) < 6 {
		return Record{}, nil
	}
	hi, err := hexByte(p, 1)
	if err != nil {
		return nil, err
	}
	lo, err := hexByte(p, 2)
	if err != nil {
		return nil, err
	}
	return Record{"boost_minutes": int(uint16(hi)<<8 | uint16(lo))}, nil
}

// parseFanState decodes 31D9: the fan unit's state flags and exhaust fan
// speed (same 0..200 scale as 0008/3EF0).
func parseFanState(verb catalog.Verb, p string) (Record, error) {
	if len(p) < 6 {
		return Record{}, nil
	}
	flags, err := hexByte(p, 1)
	if err != nil {
		return nil, err
	}
	rate, err := hexByte(p, 2)
	if err != nil {
		return nil, err
	}
	return Record{
		"fan_flags":         int(flags),
		"exhaust_fan_speed": float64(rate) / 200.0,
	}, nil
}

// parseFanStateExt decodes 31DA, the extended HVAC state frame: CO2 level,
// indoor humidity, exhaust/supply temperatures, and exhaust/supply fan
// speeds. Byte offsets follow the Itho/Orcon/Nuaire layout observed in
// original_source/ramses_rf/devices_hvac.py; the remaining bytes (bypass
// position, filter/fault flags) are not individually named here and are
// retained in raw_hex for a caller that needs them.
func parseFanStateExt(verb catalog.Verb, p string) (Record, error) {
	if len(p) < 58 {
		return Record{"raw_hex": p}, nil
	}
	fanInfo, err := hexByte(p, 0)
	if err != nil {
		return nil, err
	}
	co2Hi, _ := hexByte(p, 1)
	co2Lo, _ := hexByte(p, 2)
	humidity, _ := hexByte(p, 7)
	exhaustHi, _ := hexByte(p, 3)
	exhaustLo, _ := hexByte(p, 4)
	supplyHi, _ := hexByte(p, 5)
	supplyLo, _ := hexByte(p, 6)
	exhaustFanSpeed, _ := hexByte(p, 26)
	supplyFanSpeed, _ := hexByte(p, 27)
	return Record{
		"fan_info":            int(fanInfo),
		"co2_level":           int(uint16(co2Hi)<<8 | uint16(co2Lo)),
		"indoor_humidity":     float64(humidity) / 2.0,
		"exhaust_temperature": temp90(exhaustHi, exhaustLo),
		"supply_temperature":  temp90(supplyHi, supplyLo),
		"exhaust_fan_speed":   float64(exhaustFanSpeed) / 200.0,
		"supply_fan_speed":    float64(supplyFanSpeed) / 200.0,
		"raw_hex":             p,
	}, nil
}
