package devices

import (
	"testing"

	"github.com/ramses-rf/gateway/internal/ramses/address"
	"github.com/ramses-rf/gateway/internal/ramses/catalog"
	"github.com/ramses-rf/gateway/internal/ramses/entities"
	"github.com/ramses-rf/gateway/internal/ramses/message"
	"github.com/ramses-rf/gateway/internal/ramses/packet"
)

func iMsg(addr0, addr1, addr2 string, code catalog.Code) *message.Message {
	return &message.Message{Packet: &packet.Packet{
		Verb: catalog.I, Code: code,
		Addr0: addr0, Addr1: addr1, Addr2: addr2,
		Src: addr0, Dst: addr2,
	}}
}

func TestHVACFingerprintPromotesGenericDevice(t *testing.T) {
	registry := entities.NewRegistry()
	dev := registry.GetOrCreateDevice("32:111111", "32")
	if dev.Role != catalog.RoleDEV {
		t.Fatalf("device role = %s, want DEV before fingerprint", dev.Role)
	}

	msg := iMsg("32:111111", address.NUL, "01:054173", catalog.Code1298)
	if _, err := Apply(registry, dev, msg, 12); err != nil {
		t.Fatalf("Apply() err = %v", err)
	}
	if dev.Role != catalog.RoleCO2 {
		t.Errorf("device role = %s, want CO2", dev.Role)
	}
}

func TestControllerOnlyCodeSelfAddressedPromotesToControllerAndCreatesTCS(t *testing.T) {
	registry := entities.NewRegistry()
	dev := registry.GetOrCreateDevice("34:222222", "34")

	msg := iMsg("34:222222", address.NUL, "34:222222", catalog.Code1F09)
	tcs, err := Apply(registry, dev, msg, 12)
	if err != nil {
		t.Fatalf("Apply() err = %v", err)
	}
	if tcs == nil {
		t.Fatal("Apply() did not return a TCS")
	}
	if dev.Role != catalog.RoleCTL {
		t.Errorf("device role = %s, want CTL", dev.Role)
	}
	if registry.System("34:222222") == nil {
		t.Error("no TCS registered for the promoted controller")
	}
}

func TestControllerOnlyCodeWithDifferentAddr2IsNotSelfAddressed(t *testing.T) {
	registry := entities.NewRegistry()
	dev := registry.GetOrCreateDevice("01:054173", "01")
	dev.Role = catalog.RoleDEV // force generic, since 01 defaults to CTL already

	msg := iMsg("01:054173", address.NUL, "04:123456", catalog.Code1F09)
	tcs, err := Apply(registry, dev, msg, 12)
	if err != nil {
		t.Fatalf("Apply() err = %v", err)
	}
	if tcs != nil {
		t.Error("Apply() created a TCS for a non-self-addressed controller-only message")
	}
}

func TestRFGPromotesToFANOnFanState(t *testing.T) {
	registry := entities.NewRegistry()
	dev := registry.GetOrCreateDevice("30:333333", "30")
	if dev.Role != catalog.RoleRFG {
		t.Fatalf("device role = %s, want RFG by default", dev.Role)
	}

	msg := iMsg("30:333333", address.NUL, "18:000730", catalog.Code31D9)
	if _, err := Apply(registry, dev, msg, 12); err != nil {
		t.Fatalf("Apply() err = %v", err)
	}
	if dev.Role != catalog.RoleFAN {
		t.Errorf("device role = %s, want FAN", dev.Role)
	}
}

func TestAlreadyFingerprintedControllerConflictIsCorruptState(t *testing.T) {
	registry := entities.NewRegistry()
	dev := registry.GetOrCreateDevice("12:222222", "12")
	dev.Role = catalog.RoleTHM // fingerprinted, not promotable anymore

	msg := iMsg("12:222222", address.NUL, "12:222222", catalog.Code1F09)
	_, err := Apply(registry, dev, msg, 12)
	if err == nil {
		t.Fatal("Apply() err = nil, want CorruptState on a fingerprinted device reversing to controller")
	}
}

func TestApplyIgnoresRQVerb(t *testing.T) {
	registry := entities.NewRegistry()
	dev := registry.GetOrCreateDevice("32:111111", "32")

	msg := &message.Message{Packet: &packet.Packet{
		Verb: catalog.RQ, Code: catalog.Code1298,
		Addr0: "32:111111", Addr1: address.NUL, Addr2: "01:054173",
		Src: "32:111111", Dst: "01:054173",
	}}
	if _, err := Apply(registry, dev, msg, 12); err != nil {
		t.Fatalf("Apply() err = %v", err)
	}
	if dev.Role != catalog.RoleDEV {
		t.Errorf("device role = %s, want unchanged DEV for an RQ", dev.Role)
	}
}
