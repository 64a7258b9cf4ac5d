// Package opentherm decodes the OpenTherm sub-protocol carried inside
// RAMSES-II code 3220, per spec.md §4.C and the OpenTherm 2.2 specification.
package opentherm

import (
	"fmt"
	"strconv"
)

// MsgType is the OpenTherm message-type nibble (bits 1-3 of the first byte).
type MsgType int

const (
	ReadData MsgType = iota
	WriteData
	InvalidData
	_reserved3
	ReadAck
	WriteAck
	DataInvalid
	UnknownDataID
)

func (t MsgType) String() string {
	switch t {
	case ReadData:
		return "Read-Data"
	case WriteData:
		return "Write-Data"
	case ReadAck:
		return "Read-Ack"
	case WriteAck:
		return "Write-Ack"
	case DataInvalid:
		return "Data-Invalid"
	case UnknownDataID:
		return "Unknown-DataId"
	default:
		return "Reserved"
	}
}

// ValueFormat describes how to interpret a DataID's 2-byte value field.
type ValueFormat int

const (
	FormatFlag8  ValueFormat = iota // two 8-bit flag/byte halves
	FormatU16                      // unsigned 16-bit
	FormatS16                      // signed 16-bit
	FormatF88                      // f8.8 fixed point (signed)
)

// DataIDEntry is one row of the per-DataID table.
type DataIDEntry struct {
	Name   string
	Format ValueFormat
}

// DataIDs is the static per-DataID table (a representative subset of the
// OpenTherm 2.2 DataID space; unlisted ids decode with a generic name).
var DataIDs = map[int]DataIDEntry{
	0:   {"status", FormatFlag8},
	1:   {"control_setpoint", FormatF88},
	5:   {"fault_flags_and_code", FormatFlag8},
	9:   {"remote_override_setpoint", FormatF88},
	14:  {"max_relative_modulation_level", FormatF88},
	17:  {"relative_modulation_level", FormatF88},
	18:  {"ch_water_pressure", FormatF88},
	25:  {"boiler_water_temp", FormatF88},
	26:  {"dhw_temp", FormatF88},
	27:  {"outside_temp", FormatF88},
	28:  {"return_water_temp", FormatF88},
	33:  {"exhaust_temp", FormatS16},
	48:  {"dhw_setpoint_bounds", FormatFlag8},
	56:  {"dhw_setpoint", FormatF88},
	57:  {"max_ch_water_setpoint", FormatF88},
	116: {"burner_starts", FormatU16},
	117: {"ch_pump_starts", FormatU16},
	118: {"dhw_pump_starts", FormatU16},
	119: {"dhw_burner_starts", FormatU16},
	120: {"burner_hours", FormatU16},
	121: {"ch_pump_hours", FormatU16},
	122: {"dhw_pump_hours", FormatU16},
	123: {"dhw_burner_hours", FormatU16},
}

// Message is a decoded 3220 payload.
type Message struct {
	MsgType   MsgType
	DataID    int
	RawValue  uint16
	Value     float64
	Name      string
	Format    ValueFormat
	Supported bool // false iff MsgType is DataInvalid or UnknownDataID
}

// Decode parses a 5-byte (10 hex char) 3220 payload: 00 MT DataID Hi Lo.
func Decode(hexPayload string) (*Message, error) {
	if len(hexPayload) != 10 {
		return nil, fmt.Errorf("opentherm: payload must be 5 bytes, got %d hex chars", len(hexPayload))
	}
	b, err := parseBytes(hexPayload)
	if err != nil {
		return nil, err
	}

	msgType := MsgType((b[1] >> 4) & 0x7)
	dataID := int(b[2])
	raw := uint16(b[3])<<8 | uint16(b[4])

	entry, known := DataIDs[dataID]
	if !known {
		entry = DataIDEntry{Name: fmt.Sprintf("data_id_0x%02X", dataID), Format: FormatU16}
	}

	msg := &Message{
		MsgType:   msgType,
		DataID:    dataID,
		RawValue:  raw,
		Name:      entry.Name,
		Format:    entry.Format,
		Supported: msgType != DataInvalid && msgType != UnknownDataID,
	}
	msg.Value = decodeValue(raw, entry.Format)
	return msg, nil
}

func decodeValue(raw uint16, f ValueFormat) float64 {
	switch f {
	case FormatF88:
		return float64(int16(raw)) / 256.0
	case FormatS16:
		return float64(int16(raw))
	default:
		return float64(raw)
	}
}

func parseBytes(hexPayload string) ([5]byte, error) {
	var out [5]byte
	for i := range out {
		v, err := strconv.ParseUint(hexPayload[i*2:i*2+2], 16, 8)
		if err != nil {
			return out, fmt.Errorf("opentherm: bad hex byte %d: %w", i, err)
		}
		out[i] = byte(v)
	}
	return out, nil
}
