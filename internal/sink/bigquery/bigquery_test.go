package bigquery

import (
	"testing"
	"time"

	"github.com/ramses-rf/gateway/internal/ramses/catalog"
	"github.com/ramses-rf/gateway/internal/ramses/entities"
	"github.com/ramses-rf/gateway/internal/ramses/message"
	"github.com/ramses-rf/gateway/internal/ramses/packet"
)

func putZoneReading(t *testing.T, zone *entities.Zone, code catalog.Code, field string, value float64, now time.Time) {
	t.Helper()
	pkt := &packet.Packet{Verb: catalog.I, Code: code}
	msg := &message.Message{Packet: pkt, Fields: message.Record{field: value}}
	zone.Put(msg, now)
}

func TestSnapshotZonesSkipsUnseenCodes(t *testing.T) {
	registry := entities.NewRegistry()
	tcs := registry.GetOrCreateSystem("01:054173", 12)
	zone := tcs.ZoneByIdx("00")
	now := time.Now()

	putZoneReading(t, zone, catalog.Code30C9, "temperature", 19.5, now)

	rows := SnapshotZones(registry, now)
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1 (only temperature was ever reported)", len(rows))
	}
	if rows[0].Field != "temperature" || !rows[0].Value.Valid || rows[0].Value.Float64 != 19.5 {
		t.Errorf("rows[0] = %+v, want temperature=19.5", rows[0])
	}
	if rows[0].EntityID != "01:054173/00" || rows[0].EntityType != "zone" {
		t.Errorf("rows[0] entity = %s/%s, want 01:054173/00/zone", rows[0].EntityID, rows[0].EntityType)
	}
}

func TestSnapshotZonesCoversAllTrackedCodes(t *testing.T) {
	registry := entities.NewRegistry()
	tcs := registry.GetOrCreateSystem("01:054173", 12)
	zone := tcs.ZoneByIdx("01")
	now := time.Now()

	putZoneReading(t, zone, catalog.Code30C9, "temperature", 20.0, now)
	putZoneReading(t, zone, catalog.Code2309, "setpoint", 21.0, now)
	putZoneReading(t, zone, catalog.Code3150, "heat_demand", 0.6, now)

	rows := SnapshotZones(registry, now)
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
}

func TestSnapshotZonesEmptyRegistry(t *testing.T) {
	registry := entities.NewRegistry()
	if rows := SnapshotZones(registry, time.Now()); rows != nil {
		t.Errorf("SnapshotZones() on empty registry = %v, want nil", rows)
	}
}

func TestDisabledClientIsNoOp(t *testing.T) {
	c := &client{enable: false}
	if c.CheckIfTableExists("d", "t") {
		t.Error("CheckIfTableExists() on disabled client = true, want false")
	}
	if err := c.CreateTable("d", "t", Measurement{}, "inserted_at", false); err != nil {
		t.Errorf("CreateTable() on disabled client = %v, want nil", err)
	}
	if err := c.InsertMeasurements(nil, "d", "t", []Measurement{{}}); err != nil {
		t.Errorf("InsertMeasurements() on disabled client = %v, want nil", err)
	}
}

func TestInitTableCreatesWhenAbsent(t *testing.T) {
	c := &client{enable: false}
	if err := InitTable(c, "gateway", "measurements"); err != nil {
		t.Fatalf("InitTable() err = %v", err)
	}
}
