package config

import "testing"

func TestAllowedExcludeWins(t *testing.T) {
	c := New()
	c.ExcludeList["01:054173"] = KnownDevice{}
	c.IncludeList["01:054173"] = KnownDevice{}
	if c.Allowed("01:054173") {
		t.Error("an explicit exclude must win even if the id is also included")
	}
}

func TestAllowedEnforceKnownListDropsUnlisted(t *testing.T) {
	c := New()
	c.EnforceKnownList = true
	c.IncludeList["01:054173"] = KnownDevice{}
	if c.Allowed("34:111111") {
		t.Error("EnforceKnownList with a non-empty include list must drop an unlisted id")
	}
	if !c.Allowed("01:054173") {
		t.Error("an included id must be allowed")
	}
}

func TestAllowedEnforceKnownListWithEmptyIncludeAllowsAll(t *testing.T) {
	c := New()
	c.EnforceKnownList = true
	if !c.Allowed("34:111111") {
		t.Error("EnforceKnownList with an empty include list should not drop anything")
	}
}

func TestAllowedDefaultPermitsEverything(t *testing.T) {
	c := New()
	if !c.Allowed("34:111111") {
		t.Error("default config should allow any id")
	}
}

func TestClassOverride(t *testing.T) {
	c := New()
	c.IncludeList["34:111111"] = KnownDevice{Class: "34"}
	typ, ok := c.ClassOverride("34:111111")
	if !ok || typ != "34" {
		t.Errorf("ClassOverride = %v, %v, want 34, true", typ, ok)
	}
	if _, ok := c.ClassOverride("34:222222"); ok {
		t.Error("ClassOverride for an unlisted id should report false")
	}
}

func TestIsFaked(t *testing.T) {
	c := New()
	c.IncludeList["34:111111"] = KnownDevice{Faked: true}
	c.IncludeList["34:222222"] = KnownDevice{Faked: false}
	if !c.IsFaked("34:111111") {
		t.Error("expected 34:111111 to be faked")
	}
	if c.IsFaked("34:222222") {
		t.Error("expected 34:222222 to not be faked")
	}
	if c.IsFaked("34:333333") {
		t.Error("expected an unlisted id to not be faked")
	}
}

func TestDefaultMaxZones(t *testing.T) {
	c := New()
	if c.MaxZones != DefaultMaxZones {
		t.Errorf("MaxZones = %d, want %d", c.MaxZones, DefaultMaxZones)
	}
}
