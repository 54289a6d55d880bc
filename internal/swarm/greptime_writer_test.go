package swarm

import (
	"context"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"

	"github.com/BrianEstime1/drone-swarm/internal/telemetry"
)

type mockGreptimeClient struct {
	table *table.Table
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	if len(tables) > 0 {
		m.table = tables[0]
	}
	return &gpb.GreptimeResponse{}, nil
}

func TestGreptimeWriterTelemetry(t *testing.T) {
	ts := time.Unix(42, 0).UTC()
	tLat, tLon, tAlt, formErr := 47.1, 8.5, 120.0, 3.5
	rows := []telemetry.TelemetryRow{
		{
			SwarmID: "s1", RunID: "r1", VehicleID: "scout-1",
			Role: "follower", Status: "nominal", Cycle: 7,
			Lat: 47.0999, Lon: 8.4999, Alt: 118,
			HeadingDeg: 90, SpeedMPS: 7,
			BatteryV: 12.4, BatteryPct: 92, Satellites: 11, GPSFix: true,
			TargetLat: &tLat, TargetLon: &tLon, TargetAlt: &tAlt,
			FormationErrorM: &formErr,
			Timestamp:       ts,
		},
		{
			SwarmID: "s1", RunID: "r1", VehicleID: "leader-1",
			Role: "leader", Status: "nominal", Cycle: 7,
			Lat: 47.1, Lon: 8.5, Alt: 120,
			BatteryV: 12.6, BatteryPct: 100, Satellites: 12, GPSFix: true,
			Timestamp: ts,
		},
	}

	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, teleTable: "swarm_telemetry"}

	if err := w.WriteBatch(rows); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if m.table == nil {
		t.Fatalf("expected table to be captured")
	}

	schema := m.table.GetRows().Schema
	if len(schema) != 21 {
		t.Fatalf("unexpected schema length: %d", len(schema))
	}
	if schema[0].SemanticType != gpb.SemanticType_TAG {
		t.Fatalf("swarm_id semantic type = %v, want TAG", schema[0].SemanticType)
	}
	if schema[15].Datatype != gpb.ColumnDataType_BOOLEAN {
		t.Fatalf("has_target column type = %v, want BOOLEAN", schema[15].Datatype)
	}
	if schema[20].Datatype != gpb.ColumnDataType_TIMESTAMP_MILLISECOND {
		t.Fatalf("ts column type = %v, want TIMESTAMP_MILLISECOND", schema[20].Datatype)
	}

	got := m.table.GetRows().Rows
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}

	follower := got[0].Values
	if v := follower[2].GetStringValue(); v != "scout-1" {
		t.Fatalf("vehicle_id = %s, want scout-1", v)
	}
	if v := follower[5].GetI64Value(); v != 7 {
		t.Fatalf("cycle = %d, want 7", v)
	}
	if v := follower[12].GetF64Value(); v != 92 {
		t.Fatalf("battery_pct = %v, want 92", v)
	}
	if !follower[14].GetBoolValue() {
		t.Fatalf("gps_fix = false, want true")
	}
	if !follower[15].GetBoolValue() {
		t.Fatalf("has_target = false, want true")
	}
	if v := follower[16].GetF64Value(); v != tLat {
		t.Fatalf("target_lat = %v, want %v", v, tLat)
	}
	if v := follower[19].GetF64Value(); v != formErr {
		t.Fatalf("formation_error_m = %v, want %v", v, formErr)
	}
	if v := follower[20].GetTimestampMillisecondValue(); v != ts.UnixMilli() {
		t.Fatalf("ts = %d, want %d", v, ts.UnixMilli())
	}

	// The leader has no target: flag false, target columns zero-filled.
	leader := got[1].Values
	if leader[15].GetBoolValue() {
		t.Fatalf("leader has_target = true, want false")
	}
	if v := leader[16].GetF64Value(); v != 0 {
		t.Fatalf("leader target_lat = %v, want 0", v)
	}
}

func TestGreptimeWriterEvents(t *testing.T) {
	ts := time.Unix(42, 0).UTC()
	rows := []telemetry.EventRow{
		{
			SwarmID: "s1", RunID: "r1", Cycle: 9,
			Type: telemetry.EventLeaderHold, VehicleID: "leader-1",
			Detail: "status lost", Timestamp: ts,
		},
	}

	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, eventTable: "swarm_events"}

	if err := w.WriteEvents(rows); err != nil {
		t.Fatalf("WriteEvents: %v", err)
	}
	if m.table == nil {
		t.Fatalf("expected table to be captured")
	}

	schema := m.table.GetRows().Schema
	if len(schema) != 7 {
		t.Fatalf("unexpected schema length: %d", len(schema))
	}
	values := m.table.GetRows().Rows[0].Values
	if v := values[3].GetStringValue(); v != telemetry.EventLeaderHold {
		t.Fatalf("event_type = %s, want %s", v, telemetry.EventLeaderHold)
	}
	if v := values[5].GetStringValue(); v != "status lost" {
		t.Fatalf("detail = %s, want status lost", v)
	}
}

func TestGreptimeWriterCycle(t *testing.T) {
	ts := time.Unix(42, 0).UTC()
	row := telemetry.CycleRow{
		SwarmID: "s1", RunID: "r1", Cycle: 9,
		DurationMS: 17.5, Overrun: true,
		Polled: 4, PollFailures: 1, Dispatched: 2, DispatchFailures: 1, Withheld: 1,
		Timestamp: ts,
	}

	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, cycleTable: "swarm_cycles"}

	if err := w.WriteCycle(row); err != nil {
		t.Fatalf("WriteCycle: %v", err)
	}
	if m.table == nil {
		t.Fatalf("expected table to be captured")
	}

	schema := m.table.GetRows().Schema
	if len(schema) != 11 {
		t.Fatalf("unexpected schema length: %d", len(schema))
	}
	values := m.table.GetRows().Rows[0].Values
	if v := values[3].GetF64Value(); v != 17.5 {
		t.Fatalf("duration_ms = %v, want 17.5", v)
	}
	if !values[4].GetBoolValue() {
		t.Fatalf("overrun = false, want true")
	}
	if v := values[9].GetI64Value(); v != 1 {
		t.Fatalf("withheld = %d, want 1", v)
	}
}
