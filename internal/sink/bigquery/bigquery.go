// Package bigquery streams entity-graph snapshots into a BigQuery table,
// generalizing the teacher's bigqueryClient.go/storeZoneInfoInBiqquery from
// a single hardcoded Evohome zone schema to any RAMSES-II entity kind
// (device, zone, system).
package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/ramses-rf/gateway/internal/ramses/catalog"
	"github.com/ramses-rf/gateway/internal/ramses/entities"
)

// Measurement is one row: a single decoded field observed on one entity at
// one point in time, the generalised form of the teacher's
// BigQueryMeasurement (which hardcoded Zone/Setpoint/Temperature/HeatDemand
// as named columns; here any message.Record field becomes a row via Field).
type Measurement struct {
	InsertedAt time.Time
	EntityID   string
	EntityType string // "device", "zone", "system"
	Code       string
	Verb       string
	Field      string
	Value      bigquery.NullFloat64
	StrValue   bigquery.NullString
}

// Client is the BigQuery surface the sink needs, mirroring the teacher's
// BigQueryClient interface shape so the enable-flag no-op pattern (tests and
// local runs without real GCP credentials) carries over unchanged.
type Client interface {
	CheckIfDatasetExists(dataset string) bool
	CheckIfTableExists(dataset, table string) bool
	CreateTable(dataset, table string, typeForSchema interface{}, partitionField string, waitReady bool) error
	UpdateTableSchema(dataset, table string, typeForSchema interface{}) error
	InsertMeasurements(ctx context.Context, dataset, table string, measurements []Measurement) error
}

type client struct {
	bq     *bigquery.Client
	enable bool
}

// NewClient dials BigQuery under projectID; enable mirrors the teacher's
// --bigquery-enable-style flag, letting every write become a no-op when the
// gateway runs without GCP credentials (e.g. in tests or offline).
func NewClient(ctx context.Context, projectID string, enable bool) (Client, error) {
	bq, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &client{bq: bq, enable: enable}, nil
}

func (c *client) CheckIfDatasetExists(dataset string) bool {
	if !c.enable {
		return true
	}
	md, _ := c.bq.Dataset(dataset).Metadata(context.Background())
	return md != nil
}

func (c *client) CheckIfTableExists(dataset, table string) bool {
	if !c.enable {
		return false
	}
	md, _ := c.bq.Dataset(dataset).Table(table).Metadata(context.Background())
	return md != nil
}

func (c *client) CreateTable(dataset, table string, typeForSchema interface{}, partitionField string, waitReady bool) error {
	if !c.enable {
		return nil
	}
	schema, err := bigquery.InferSchema(typeForSchema)
	if err != nil {
		return err
	}
	meta := &bigquery.TableMetadata{Schema: schema}
	if partitionField != "" {
		meta.TimePartitioning = &bigquery.TimePartitioning{Field: partitionField}
	}
	tbl := c.bq.Dataset(dataset).Table(table)
	if err := tbl.Create(context.Background(), meta); err != nil {
		return err
	}
	if !waitReady {
		return nil
	}
	for !c.CheckIfTableExists(dataset, table) {
		time.Sleep(time.Second)
	}
	return nil
}

func (c *client) UpdateTableSchema(dataset, table string, typeForSchema interface{}) error {
	if !c.enable {
		return nil
	}
	tbl := c.bq.Dataset(dataset).Table(table)
	schema, err := bigquery.InferSchema(typeForSchema)
	if err != nil {
		return err
	}
	meta, err := tbl.Metadata(context.Background())
	if err != nil {
		return err
	}
	_, err = tbl.Update(context.Background(), bigquery.TableMetadataToUpdate{Schema: schema}, meta.ETag)
	return err
}

func (c *client) InsertMeasurements(ctx context.Context, dataset, table string, measurements []Measurement) error {
	if !c.enable {
		return nil
	}
	return c.bq.Dataset(dataset).Table(table).Uploader().Put(ctx, measurements)
}

// InitTable ensures dataset.table exists with Measurement's schema, creating
// it partitioned on inserted_at or updating its schema in place, mirroring
// the teacher's initBigqueryTable. Unlike the teacher (whose
// CheckIfDatasetExists was defined but never actually called before
// creating a table), this fails fast with a clear error when the dataset
// itself is missing, instead of surfacing whatever opaque API error
// tbl.Create would otherwise return.
func InitTable(c Client, dataset, table string) error {
	if !c.CheckIfDatasetExists(dataset) {
		return fmt.Errorf("bigquery dataset %q does not exist", dataset)
	}
	if c.CheckIfTableExists(dataset, table) {
		return c.UpdateTableSchema(dataset, table, Measurement{})
	}
	return c.CreateTable(dataset, table, Measurement{}, "inserted_at", true)
}

// zoneCodes lists the zone codes SnapshotZones reads, each with the
// message.Record field (see message/parsers.go) its value is taken from and
// reported under as Field.
var zoneCodes = map[catalog.Code]string{
	catalog.Code30C9: "temperature",
	catalog.Code2309: "setpoint",
	catalog.Code3150: "heat_demand",
}

// SnapshotZones builds one Measurement per (zone, tracked code) with a fresh
// reading, the generalised form of storeZoneInfoInBiqquery's per-zone
// accumulation pass: each TCS's zones are walked and their latest
// temperature/setpoint/heat-demand readings become rows, skipping any zone
// that has never reported a given code (mirroring the teacher's "!= 0"
// not-yet-seen guard, expressed here via LatestValid returning nil).
func SnapshotZones(registry *entities.Registry, now time.Time) []Measurement {
	var out []Measurement
	for _, tcs := range registry.Systems() {
		for _, zone := range tcs.Zones {
			for code, field := range zoneCodes {
				msg := zone.LatestValid(code, now)
				if msg == nil {
					continue
				}
				value, ok := floatField(msg.Fields, field)
				if !ok {
					continue
				}
				out = append(out, Measurement{
					InsertedAt: now,
					EntityID:   zone.SystemID + "/" + zone.Idx,
					EntityType: "zone",
					Code:       string(code),
					Verb:       string(msg.Packet.Verb),
					Field:      field,
					Value:      bigquery.NullFloat64{Float64: value, Valid: true},
				})
			}
		}
	}
	return out
}

func floatField(fields map[string]any, key string) (float64, bool) {
	switch v := fields[key].(type) {
	case float64:
		return v, true
	default:
		return 0, false
	}
}
