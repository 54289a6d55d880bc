package swarm

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/BrianEstime1/drone-swarm/internal/telemetry"
)

func newTestArchive(t *testing.T) *SQLiteWriter {
	t.Helper()
	w, err := NewSQLiteWriter(filepath.Join(t.TempDir(), "swarm.db"))
	if err != nil {
		t.Fatalf("NewSQLiteWriter: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestSQLiteWriterTelemetryRoundTrip(t *testing.T) {
	w := newTestArchive(t)
	ts := time.Date(2026, 2, 1, 12, 0, 0, 123456789, time.UTC)
	tLat, tLon, tAlt, formErr := 47.1, 8.5, 120.0, 3.5

	rows := []telemetry.TelemetryRow{
		{
			SwarmID: "s1", RunID: "r1", VehicleID: "leader-1",
			Role: "leader", Status: "nominal", Cycle: 2,
			Lat: 47.1, Lon: 8.5, Alt: 120,
			BatteryV: 12.6, BatteryPct: 100, Satellites: 12, GPSFix: true,
			Timestamp: ts,
		},
		{
			SwarmID: "s1", RunID: "r1", VehicleID: "scout-1",
			Role: "follower", Status: "warning", Cycle: 2,
			Lat: 47.0999, Lon: 8.4999, Alt: 118,
			HeadingDeg: 90, SpeedMPS: 7,
			BatteryV: 11.2, BatteryPct: 30, Satellites: 9, GPSFix: true,
			TargetLat: &tLat, TargetLon: &tLon, TargetAlt: &tAlt,
			FormationErrorM: &formErr,
			Timestamp:       ts,
		},
	}
	if err := w.WriteBatch(rows); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	// Single-row path shares the same insert.
	if err := w.Write(telemetry.TelemetryRow{
		SwarmID: "s1", RunID: "r1", VehicleID: "leader-1",
		Role: "leader", Status: "nominal", Cycle: 1,
		Timestamp: ts.Add(-time.Second),
	}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := w.Telemetry()
	if err != nil {
		t.Fatalf("Telemetry: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(got))
	}
	// Ordered by cycle, then vehicle.
	if got[0].Cycle != 1 || got[1].VehicleID != "leader-1" || got[2].VehicleID != "scout-1" {
		t.Fatalf("unexpected order: %v %v %v", got[0].VehicleID, got[1].VehicleID, got[2].VehicleID)
	}

	leader, follower := got[1], got[2]
	if leader.TargetLat != nil || leader.FormationErrorM != nil {
		t.Fatalf("leader row grew a target: %#v", leader)
	}
	if !leader.Timestamp.Equal(ts) {
		t.Fatalf("timestamp = %v, want %v", leader.Timestamp, ts)
	}
	if !leader.GPSFix || leader.Satellites != 12 {
		t.Fatalf("leader fix lost: %#v", leader)
	}

	if follower.TargetLat == nil || *follower.TargetLat != tLat {
		t.Fatalf("follower target lost: %#v", follower)
	}
	if follower.FormationErrorM == nil || *follower.FormationErrorM != formErr {
		t.Fatalf("follower formation error lost: %#v", follower)
	}
	if follower.Status != "warning" || follower.BatteryPct != 30 {
		t.Fatalf("follower fields lost: %#v", follower)
	}
}

func TestSQLiteWriterEventsRoundTrip(t *testing.T) {
	w := newTestArchive(t)
	ts := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	events := []telemetry.EventRow{
		{SwarmID: "s1", RunID: "r1", Cycle: 1, Type: telemetry.EventLeaderHold, VehicleID: "leader-1", Detail: "status lost", Timestamp: ts},
		{SwarmID: "s1", RunID: "r1", Cycle: 2, Type: telemetry.EventLeaderRecovered, VehicleID: "leader-1", Timestamp: ts},
	}
	if err := w.WriteEvents(events); err != nil {
		t.Fatalf("WriteEvents: %v", err)
	}

	got, err := w.Events()
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != telemetry.EventLeaderHold || got[0].Detail != "status lost" {
		t.Fatalf("unexpected event: %#v", got[0])
	}
	if !got[1].Timestamp.Equal(ts) {
		t.Fatalf("timestamp = %v, want %v", got[1].Timestamp, ts)
	}
}

func TestSQLiteWriterCyclesRoundTrip(t *testing.T) {
	w := newTestArchive(t)
	ts := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	row := telemetry.CycleRow{
		SwarmID: "s1", RunID: "r1", Cycle: 5,
		DurationMS: 42.5, Overrun: true,
		Polled: 4, PollFailures: 1, Dispatched: 2, DispatchFailures: 1, Withheld: 1,
		Timestamp: ts,
	}
	if err := w.WriteCycle(row); err != nil {
		t.Fatalf("WriteCycle: %v", err)
	}

	got, err := w.Cycles()
	if err != nil {
		t.Fatalf("Cycles: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 cycle, got %d", len(got))
	}
	if got[0].DurationMS != 42.5 || !got[0].Overrun || got[0].Withheld != 1 {
		t.Fatalf("unexpected cycle: %#v", got[0])
	}
	if !got[0].Timestamp.Equal(ts) {
		t.Fatalf("timestamp = %v, want %v", got[0].Timestamp, ts)
	}
}
