// Package catalog holds the frozen, process-wide catalogue of RAMSES-II
// codes and device roles: per-verb payload shape, TTL, array layout, and the
// src-role -> (code, verb) permission table used by the dispatcher (spec.md
// §4.A). Grounded on original_source/ramses_rf/protocol/ramses.py.
package catalog

// Verb is one of the four RAMSES-II verbs.
type Verb string

const (
	I  Verb = "I"  // information broadcast
	RQ Verb = "RQ" // request
	RP Verb = "RP" // reply
	W  Verb = "W"  // write
)

// Code is a 16-bit opaque protocol code, rendered as four hex digits.
type Code string

// The subset of the ~120-code catalogue this implementation decodes and/or
// routes on. Names follow the Python source's snake_case; Go identifiers are
// the hex code prefixed with "Code".
const (
	Code0001 Code = "0001"
	Code0002 Code = "0002" // outdoor/external sensor
	Code0004 Code = "0004" // zone name
	Code0005 Code = "0005" // system zones
	Code0006 Code = "0006" // schedule version
	Code0008 Code = "0008" // relay demand
	Code0009 Code = "0009" // relay failsafe
	Code000A Code = "000A" // zone params
	Code000C Code = "000C" // zone devices
	Code0016 Code = "0016" // rf check
	Code0100 Code = "0100" // language
	Code01D0 Code = "01D0"
	Code01E9 Code = "01E9"
	Code0404 Code = "0404" // schedule fragment
	Code0418 Code = "0418" // fault log entry
	Code042F Code = "042F"
	Code0B04 Code = "0B04"
	Code1030 Code = "1030" // mix valve params (controller-only)
	Code1060 Code = "1060" // battery status
	Code1081 Code = "1081"
	Code1090 Code = "1090"
	Code1098 Code = "1098"
	Code10A0 Code = "10A0" // DHW params
	Code10B0 Code = "10B0"
	Code10E0 Code = "10E0" // device info
	Code10E1 Code = "10E1"
	Code1100 Code = "1100" // TPI params
	Code11F0 Code = "11F0"
	Code1260 Code = "1260" // DHW temperature
	Code1280 Code = "1280"
	Code1290 Code = "1290" // OTB outdoor temperature
	Code1298 Code = "1298" // HVAC CO2 level
	Code12A0 Code = "12A0" // HVAC indoor humidity
	Code12B0 Code = "12B0" // window state
	Code12C0 Code = "12C0"
	Code12C8 Code = "12C8"
	Code12F0 Code = "12F0"
	Code1300 Code = "1300"
	Code1F09 Code = "1F09" // sync/heartbeat (controller-only)
	Code1F41 Code = "1F41" // DHW mode
	Code1FC9 Code = "1FC9" // bind
	Code1FCA Code = "1FCA"
	Code1FD0 Code = "1FD0"
	Code1FD4 Code = "1FD4"
	Code2249 Code = "2249"
	Code22C9 Code = "22C9" // UFH setpoint array
	Code22D0 Code = "22D0" // bind (controller-only signal)
	Code22D9 Code = "22D9"
	Code22F1 Code = "22F1" // HVAC fan mode
	Code22F3 Code = "22F3" // HVAC fan boost
	Code2309 Code = "2309" // zone setpoint
	Code2349 Code = "2349" // zone mode
	Code2389 Code = "2389"
	Code2400 Code = "2400"
	Code2401 Code = "2401"
	Code2410 Code = "2410"
	Code2420 Code = "2420"
	Code2D49 Code = "2D49"
	Code2E04 Code = "2E04" // system mode
	Code2E10 Code = "2E10"
	Code30C9 Code = "30C9" // zone temperature
	Code3110 Code = "3110"
	Code3120 Code = "3120"
	Code313F Code = "313F" // date/time request (controller-only)
	Code3150 Code = "3150" // heat demand
	Code31D9 Code = "31D9" // HVAC fan state
	Code31DA Code = "31DA" // HVAC fan state (extended)
	Code31E0 Code = "31E0"
	Code3200 Code = "3200"
	Code3210 Code = "3210"
	Code3220 Code = "3220" // OpenTherm
	Code3221 Code = "3221"
	Code3223 Code = "3223"
	Code3B00 Code = "3B00" // actuator sync
	Code3EF0 Code = "3EF0" // actuator state
	Code3EF1 Code = "3EF1" // actuator cycle
	CodePUZZ Code = "7FFF" // HGI puzzle packet (out-of-band diagnostics)
)

// Role is a device-class slug, as emitted by the entity/devices layer.
type Role string

const (
	RoleCTL Role = "CTL" // controller
	RoleUFC Role = "UFC" // UFH controller
	RoleTRV Role = "TRV"
	RoleDHW Role = "DHW"
	RoleOTB Role = "OTB"
	RoleBDR Role = "BDR"
	RoleEXT Role = "OUT" // external sensor
	RoleHGI Role = "HGI" // gateway
	RolePRG Role = "PRG" // programmer
	RoleRFG Role = "RFG" // RF/Internet gateway
	RoleTHM Role = "THM" // thermostat
	RoleFAN Role = "FAN"
	RoleCO2 Role = "CO2"
	RoleHUM Role = "HUM"
	RoleSWI Role = "REM" // HVAC two-way switch
	RoleDEV Role = "DEV" // generic/unclassified
	RoleHEA Role = "HEA" // generic heat (fallback, never Tx-validated)
	RoleHVC Role = "HVC" // generic HVAC (fallback, never Tx-validated)
)
