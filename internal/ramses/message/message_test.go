package message

import (
	"testing"
	"time"

	"github.com/ramses-rf/gateway/internal/ramses/packet"
)

func mustParse(t *testing.T, line string) *packet.Packet {
	t.Helper()
	pkt, err := packet.Parse(line, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("packet.Parse(%q): %v", line, err)
	}
	return pkt
}

// TestHeatDemandScenario covers spec.md §8 S1.
func TestHeatDemandScenario(t *testing.T) {
	pkt := mustParse(t, "045  I --- 02:000921 --:------ 01:191718 3150 002 0360")
	msg, err := Decode(pkt, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg.IsArray {
		t.Fatal("3150 with a single zone record should not be treated as array here")
	}
	demand, ok := msg.Fields["heat_demand"].(float64)
	if !ok {
		t.Fatalf("no heat_demand field: %#v", msg.Fields)
	}
	if demand != 0.375 {
		t.Errorf("heat_demand = %v, want 0.375", demand)
	}
}

// TestZoneTemperatureArrayScenario covers spec.md §8 S2.
func TestZoneTemperatureArrayScenario(t *testing.T) {
	pkt := mustParse(t, "045  I --- 01:145038 --:------ 01:145038 30C9 009 0008470108490208C4")
	msg, err := Decode(pkt, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !msg.IsArray || len(msg.Array) != 3 {
		t.Fatalf("expected a 3-element array, got %#v", msg.Array)
	}
	want := []struct {
		idx  string
		temp float64
	}{
		{"00", 21.19},
		{"01", 21.21},
		{"02", 22.44},
	}
	for i, w := range want {
		rec := msg.Array[i]
		if rec["_idx"] != w.idx {
			t.Errorf("record %d idx = %v, want %s", i, rec["_idx"], w.idx)
		}
		if rec["temperature"] != w.temp {
			t.Errorf("record %d temperature = %v, want %v", i, rec["temperature"], w.temp)
		}
	}
}

// TestArrayFragmentJoinIsIdempotent covers spec.md §8 "Joining array
// fragments is idempotent on already-complete arrays".
func TestArrayFragmentJoinIsIdempotent(t *testing.T) {
	first := mustParse(t, "045  I --- 01:145038 --:------ 01:145038 30C9 009 0008470108490208C4")
	firstMsg, err := Decode(first, nil)
	if err != nil {
		t.Fatalf("Decode first: %v", err)
	}
	if len(firstMsg.Array) != 3 {
		t.Fatalf("expected 3 records, got %d", len(firstMsg.Array))
	}

	second, err := Decode(first, firstMsg) // re-decode the same complete packet
	if err != nil {
		t.Fatalf("Decode second: %v", err)
	}
	if len(second.Array) != 3 {
		t.Errorf("idempotent join should still have 3 records, got %d", len(second.Array))
	}
}

// TestArrayFragmentJoinAcrossTwoPackets covers spec.md §4.A scenario 4: two
// array fragments for the same code/src within 3s are concatenated.
func TestArrayFragmentJoinAcrossTwoPackets(t *testing.T) {
	firstLine := "045  I --- 01:158182 --:------ 01:158182 000A 006 001201F40000"
	first, err := packet.Parse(firstLine, time.Unix(100, 0))
	if err != nil {
		t.Fatalf("parse first: %v", err)
	}
	firstMsg, err := Decode(first, nil)
	if err != nil {
		t.Fatalf("decode first: %v", err)
	}

	secondLine := "045  I --- 01:158182 --:------ 01:158182 000A 006 011301F50000"
	second, err := packet.Parse(secondLine, time.Unix(101, 0))
	if err != nil {
		t.Fatalf("parse second: %v", err)
	}
	secondMsg, err := Decode(second, firstMsg)
	if err != nil {
		t.Fatalf("decode second: %v", err)
	}

	if len(secondMsg.Array) != 2 {
		t.Fatalf("expected 2 joined records, got %d", len(secondMsg.Array))
	}
}

// TestUncatalogedCodeDecodesOpaque covers spec.md §7: a code with no
// catalogue entry is parsed only up to framing and stored opaque, never
// dropped as an error.
func TestUncatalogedCodeDecodesOpaque(t *testing.T) {
	pkt := mustParse(t, "045  I --- 01:054173 --:------ 01:054173 042F 009 000000000000000000")
	msg, err := Decode(pkt, nil)
	if err != nil {
		t.Fatalf("Decode: %v, want nil error for an uncatalogued code", err)
	}
	if msg.IsArray {
		t.Error("opaque message should not be treated as an array")
	}
	if msg.Fields["raw_hex"] != pkt.Payload {
		t.Errorf("raw_hex = %v, want %s", msg.Fields["raw_hex"], pkt.Payload)
	}
}

// TestOpenThermDecode exercises the 3220 sub-decode wiring.
func TestOpenThermDecode(t *testing.T) {
	pkt := mustParse(t, "045 RP --- 10:048122 18:000730 --:------ 3220 005 0044011400")
	msg, err := Decode(pkt, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg.Fields["name"] != "control_setpoint" {
		t.Errorf("name = %v, want control_setpoint", msg.Fields["name"])
	}
	if msg.Fields["supported"] != true {
		t.Errorf("supported = %v, want true", msg.Fields["supported"])
	}
}
