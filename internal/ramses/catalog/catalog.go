package catalog

import (
	"regexp"
	"time"
)

// ArrayInfo describes a code whose payload is a sequence of fixed-size
// records, the first byte of each being an index (zone_idx, OT DataID,
// UFH circuit, ...).
type ArrayInfo struct {
	RecordHexLen int // hex characters per record
}

// Entry is the catalogue row for one code: its human name, per-verb shape
// regex, TTL and array layout, per spec.md §4.A.
type Entry struct {
	Name           string
	Verbs          map[Verb]*regexp.Regexp
	TTL            time.Duration // 0 means "no expiry" (e.g. 000C, 0005)
	HasExpiry      bool
	Array          *ArrayInfo
	ControllerOnly bool // emission by a non-controller is corruption evidence
}

func re(pattern string) *regexp.Regexp { return regexp.MustCompile(pattern) }

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

// Schema is the master code catalogue. Regexes are precompiled once at
// package init and applied at frame entry, per spec.md §9 ("Regex-heavy
// parsers"); never recompiled per packet.
var Schema = map[Code]*Entry{
	Code0001: {Name: "rf_unknown", Verbs: map[Verb]*regexp.Regexp{
		I: re(`^00FFFF02(00|FF)$`),
		W: re(`^(0[0-9A-F]|FC|FF)000005(01|05)$`),
	}},
	Code0002: {Name: "outdoor_sensor", Verbs: map[Verb]*regexp.Regexp{
		I:  re(`^0[0-4][0-9A-F]{4}(00|01|02|05)$`),
		RQ: re(`^00$`),
	}},
	Code0004: {Name: "zone_name", HasExpiry: true, TTL: days(1), Verbs: map[Verb]*regexp.Regexp{
		I:  re(`^0[0-9A-F]00([0-9A-F]){40}$`),
		RQ: re(`^0[0-9A-F]00$`),
	}},
	Code0005: {Name: "system_zones", HasExpiry: false, Array: &ArrayInfo{RecordHexLen: 8}, Verbs: map[Verb]*regexp.Regexp{
		I:  re(`^(00[01][0-9A-F]{5}){1,3}$`),
		RQ: re(`^00[01][0-9A-F]$`),
		RP: re(`^00[01][0-9A-F]{3,5}$`),
	}},
	Code0006: {Name: "schedule_version", Verbs: map[Verb]*regexp.Regexp{
		RQ: re(`^00$`),
		RP: re(`^0005[0-9A-F]{4}$`),
	}},
	Code0008: {Name: "relay_demand", Verbs: map[Verb]*regexp.Regexp{
		I:  re(`^((0[0-9A-F]|F[9AC])[0-9A-F]{2}|00[0-9A-F]{24})$`),
		RQ: re(`^00$`),
		RP: re(`^00[0-9A-F]{2}$`),
	}},
	Code0009: {Name: "relay_failsafe", Array: &ArrayInfo{RecordHexLen: 6}, Verbs: map[Verb]*regexp.Regexp{
		I: re(`^((0[0-9A-F]|F[9AC])0[0-1](00|FF))+$`),
	}},
	Code000A: {Name: "zone_params", HasExpiry: true, TTL: days(1), Array: &ArrayInfo{RecordHexLen: 12},
		Verbs: map[Verb]*regexp.Regexp{
			I:  re(`^(0[0-9A-F][0-9A-F]{10}){1,8}$`),
			W:  re(`^0[0-9A-F][0-9A-F]{10}$`),
			RQ: re(`^0[0-9A-F]((00)?|([0-9A-F]{10})+)$`),
			RP: re(`^0[0-9A-F][0-9A-F]{10}$`),
		}},
	Code000C: {Name: "zone_devices", HasExpiry: false, Verbs: map[Verb]*regexp.Regexp{
		I:  re(`^(0[0-9A-F][01][0-9A-F](0[0-9A-F]|7F)[0-9A-F]{6}){1,8}$`),
		RQ: re(`^0[0-9A-F][01][0-9A-F]$`),
	}},
	Code0016: {Name: "rf_check", Verbs: map[Verb]*regexp.Regexp{
		RQ: re(`^0[0-9A-F]([0-9A-F]{2})?$`),
		RP: re(`^0[0-9A-F]{3}$`),
	}},
	Code0100: {Name: "language", HasExpiry: true, TTL: days(1), Verbs: map[Verb]*regexp.Regexp{
		RQ: re(`^00([0-9A-F]{4}F{4})?$`),
		RP: re(`^00[0-9A-F]{4}F{4}$`),
	}},
	Code0404: {Name: "schedule_fragment", Verbs: map[Verb]*regexp.Regexp{
		RQ: re(`^0[0-9A-F]200000[0-9A-F]{2}[0-9A-F]{2}$`),
		W:  re(`^0[0-9A-F]200000[0-9A-F]{2}[0-9A-F]{2}([0-9A-F]{2})+$`),
		I:  re(`^0[0-9A-F]200000[0-9A-F]{2}[0-9A-F]{2}([0-9A-F]{2})+$`),
		RP: re(`^0[0-9A-F]200000[0-9A-F]{2}[0-9A-F]{2}([0-9A-F]{2})+$`),
	}},
	Code0418: {Name: "fault_log", Verbs: map[Verb]*regexp.Regexp{
		I:  re(`^0[0-9A-F][0-9A-F]{38}$`),
		RQ: re(`^00[0-9A-F]{4}$`),
		RP: re(`^0[0-9A-F][0-9A-F]{38}$`),
	}},
	Code1030: {Name: "mix_valve_params", ControllerOnly: true, Verbs: map[Verb]*regexp.Regexp{
		I: re(`^0[0-9A-F](C[8-9A-F][0-9A-F]{4}){5}$`),
	}},
	Code1060: {Name: "battery_status", Verbs: map[Verb]*regexp.Regexp{
		I: re(`^0[0-9A-F]{3}0[01]$`),
	}},
	Code10A0: {Name: "dhw_params", HasExpiry: true, TTL: days(1), Verbs: map[Verb]*regexp.Regexp{
		I:  re(`^00[0-9A-F]{10,}$`),
		RQ: re(`^00([0-9A-F]{10})?$`),
		RP: re(`^00[0-9A-F]{10,}$`),
	}},
	Code10E0: {Name: "device_info", HasExpiry: true, TTL: days(1), Verbs: map[Verb]*regexp.Regexp{
		I:  re(`^00[0-9A-F]{30,}$`),
		RQ: re(`^00$`),
		RP: re(`^00[0-9A-F]{30,}$`),
	}},
	Code1100: {Name: "tpi_params", HasExpiry: true, TTL: days(1), Verbs: map[Verb]*regexp.Regexp{
		I:  re(`^00[0-9A-F]{12,14}$`),
		RQ: re(`^00([0-9A-F]{12,14})?$`),
		RP: re(`^00[0-9A-F]{12,14}$`),
		W:  re(`^00[0-9A-F]{12,14}$`),
	}},
	Code1260: {Name: "dhw_temperature", Verbs: map[Verb]*regexp.Regexp{
		I:  re(`^00[0-9A-F]{4}$`),
		RQ: re(`^00$`),
		RP: re(`^00[0-9A-F]{4}$`),
	}},
	Code1290: {Name: "outdoor_temperature", Verbs: map[Verb]*regexp.Regexp{
		I:  re(`^00[0-9A-F]{4}$`),
		RP: re(`^00[0-9A-F]{4}$`),
	}},
	Code1298: {Name: "co2_level", Verbs: map[Verb]*regexp.Regexp{
		I: re(`^00[0-9A-F]{4}$`),
	}},
	Code12A0: {Name: "indoor_humidity", Verbs: map[Verb]*regexp.Regexp{
		I: re(`^00[0-9A-F]{2,6}$`),
	}},
	Code12B0: {Name: "window_state", Verbs: map[Verb]*regexp.Regexp{
		I:  re(`^0[0-9A-F]{3}00$`),
		RP: re(`^0[0-9A-F]{3}00$`),
	}},
	Code1F09: {Name: "system_sync", ControllerOnly: true, Verbs: map[Verb]*regexp.Regexp{
		I:  re(`^00[0-9A-F]{4}$`),
		RP: re(`^00[0-9A-F]{4}$`),
		W:  re(`^F8[0-9A-F]{4}$`),
	}},
	Code1F41: {Name: "dhw_mode", Verbs: map[Verb]*regexp.Regexp{
		I:  re(`^00[0-9A-F]{2}(00|01|FFFFFF|[0-9A-F]{12})?$`),
		RQ: re(`^00$`),
		RP: re(`^00[0-9A-F]{2}(00|01|FFFFFF|[0-9A-F]{12})?$`),
		W:  re(`^00[0-9A-F]{2}(00|01|FFFFFF|[0-9A-F]{12})?$`),
	}},
	Code1FC9: {Name: "rf_bind", HasExpiry: false, Verbs: map[Verb]*regexp.Regexp{
		I:  re(`^((0[0-9A-F]|F[9ACF])[0-9A-F]{4}[0-9A-F]{6}){1,12}$`),
		RQ: re(`^00$`),
		RP: re(`^((0[0-9A-F]|F[9ACF])[0-9A-F]{4}[0-9A-F]{6}){1,12}$`),
		W:  re(`^((0[0-9A-F]|F[9ACF])[0-9A-F]{4}[0-9A-F]{6}){1,12}$`),
	}},
	Code2249: {Name: "setpoint_now_next", Array: &ArrayInfo{RecordHexLen: 14}, Verbs: map[Verb]*regexp.Regexp{
		I: re(`^(0[0-9A-F][0-9A-F]{12}){1,8}$`),
	}},
	Code22C9: {Name: "ufh_setpoint", Array: &ArrayInfo{RecordHexLen: 12}, Verbs: map[Verb]*regexp.Regexp{
		I: re(`^(0[0-7][0-9A-F]{10}){1,4}$`),
	}},
	Code22D0: {Name: "bind_signal", ControllerOnly: true, Verbs: map[Verb]*regexp.Regexp{
		I: re(`^00[0-9A-F]{6}$`),
	}},
	Code22F1: {Name: "fan_mode", Verbs: map[Verb]*regexp.Regexp{
		I: re(`^0[0-9A-F]{3}(0[0-9A-F])?$`),
	}},
	Code22F3: {Name: "fan_boost", Verbs: map[Verb]*regexp.Regexp{
		I: re(`^00[0-9A-F]{4,12}$`),
	}},
	Code2309: {Name: "zone_setpoint", HasExpiry: true, TTL: time.Hour, Array: &ArrayInfo{RecordHexLen: 6},
		Verbs: map[Verb]*regexp.Regexp{
			I:  re(`^(0[0-9A-F][0-9A-F]{4}){1,8}$`),
			RQ: re(`^0[0-9A-F]([0-9A-F]{4})?$`),
			RP: re(`^0[0-9A-F][0-9A-F]{4}$`),
			W:  re(`^0[0-9A-F][0-9A-F]{4}$`),
		}},
	Code2349: {Name: "zone_mode", Verbs: map[Verb]*regexp.Regexp{
		I:  re(`^0[0-9A-F][0-9A-F]{4}0[0-4][0-9A-F]{0,12}$`),
		RQ: re(`^0[0-9A-F]$`),
		RP: re(`^0[0-9A-F][0-9A-F]{4}0[0-4][0-9A-F]{0,12}$`),
		W:  re(`^0[0-9A-F][0-9A-F]{4}0[0-4][0-9A-F]{0,12}$`),
	}},
	Code2E04: {Name: "system_mode", Verbs: map[Verb]*regexp.Regexp{
		I:  re(`^0[0-7][0-9A-F]{12}0[01]$`),
		RQ: re(`^(00|FF)$`),
		RP: re(`^0[0-7][0-9A-F]{12}0[01]$`),
		W:  re(`^0[0-7][0-9A-F]{12}0[01]$`),
	}},
	Code30C9: {Name: "zone_temperature", HasExpiry: true, TTL: time.Hour, Array: &ArrayInfo{RecordHexLen: 6},
		Verbs: map[Verb]*regexp.Regexp{
			I:  re(`^(0[0-9A-F][0-9A-F]{4}){1,8}$`),
			RQ: re(`^00$`),
			RP: re(`^0[0-9A-F][0-9A-F]{4}$`),
		}},
	Code313F: {Name: "datetime", ControllerOnly: true, Verbs: map[Verb]*regexp.Regexp{
		I:  re(`^00[0-9A-F]{16}$`),
		RQ: re(`^00$`),
		RP: re(`^00[0-9A-F]{16}$`),
		W:  re(`^00[0-9A-F]{16}$`),
	}},
	Code3150: {Name: "heat_demand", Array: &ArrayInfo{RecordHexLen: 4}, Verbs: map[Verb]*regexp.Regexp{
		I: re(`^((0[0-9A-F]|F[9AC])[0-9A-F]{2}){1,8}$`),
	}},
	Code31D9: {Name: "fan_state", Verbs: map[Verb]*regexp.Regexp{
		I:  re(`^00[0-9A-F]{4,30}$`),
		RQ: re(`^00$`),
		RP: re(`^00[0-9A-F]{4,30}$`),
	}},
	Code31DA: {Name: "fan_state_ext", Verbs: map[Verb]*regexp.Regexp{
		I:  re(`^00[0-9A-F]{56}$`),
		RQ: re(`^00$`),
		RP: re(`^00[0-9A-F]{56}$`),
	}},
	Code3220: {Name: "opentherm_msg", Verbs: map[Verb]*regexp.Regexp{
		RQ: re(`^00[0-9A-F]{8}$`),
		RP: re(`^00[0-9A-F]{8}$`),
	}},
	Code3B00: {Name: "actuator_sync", Verbs: map[Verb]*regexp.Regexp{
		I: re(`^(00|FC)(00|C8)$`),
	}},
	Code3EF0: {Name: "actuator_state", Verbs: map[Verb]*regexp.Regexp{
		I:  re(`^00[0-9A-F]{2,14}$`),
		RQ: re(`^00$`),
		RP: re(`^00[0-9A-F]{2,14}$`),
	}},
	Code3EF1: {Name: "actuator_cycle", Verbs: map[Verb]*regexp.Regexp{
		RQ: re(`^(00[0-9A-F]{0,10})?$`),
		RP: re(`^00[0-9A-F]{18}$`),
	}},
	CodePUZZ: {Name: "puzzle_packet", Verbs: map[Verb]*regexp.Regexp{
		I:  re(`^[0-9A-F]*$`),
		RQ: re(`^[0-9A-F]*$`),
		W:  re(`^[0-9A-F]*$`),
	}},
}

// DomainByte maps a leading domain byte to its meaning, per spec.md §4.A.
var DomainByte = map[string]string{
	"F9": "heating_valve",
	"FA": "dhw_valve",
	"FC": "appliance",
	"FF": "broadcast",
}
