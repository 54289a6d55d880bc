package report

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BrianEstime1/drone-swarm/internal/swarm"
	"github.com/BrianEstime1/drone-swarm/internal/telemetry"
)

func fptr(v float64) *float64 { return &v }

func sampleRows() []telemetry.TelemetryRow {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	var rows []telemetry.TelemetryRow
	scout1 := []float64{2, 4, 6, 8, 10}
	scout2 := []float64{1, 3}
	for i := 0; i < 5; i++ {
		cycle := uint64(i + 1)
		ts := base.Add(time.Duration(i) * time.Second)
		rows = append(rows, telemetry.TelemetryRow{
			SwarmID: "alpha", RunID: "run-1", VehicleID: "leader-1", Role: "leader",
			Status: "nominal", Cycle: cycle, Lat: 47.3769, Lon: 8.5417, Alt: 400,
			BatteryV: 12.6, BatteryPct: 100, Satellites: 10, GPSFix: true, Timestamp: ts,
		})
		rows = append(rows, telemetry.TelemetryRow{
			SwarmID: "alpha", RunID: "run-1", VehicleID: "scout-1", Role: "follower",
			Status: "nominal", Cycle: cycle, Lat: 47.3768, Lon: 8.5417, Alt: 400,
			BatteryV: 12.4, BatteryPct: 92, Satellites: 9, GPSFix: true,
			FormationErrorM: fptr(scout1[i]), Timestamp: ts,
		})
		if i < len(scout2) {
			rows = append(rows, telemetry.TelemetryRow{
				SwarmID: "alpha", RunID: "run-1", VehicleID: "scout-2", Role: "follower",
				Status: "nominal", Cycle: cycle, Lat: 47.3767, Lon: 8.5417, Alt: 398,
				BatteryV: 12.3, BatteryPct: 88, Satellites: 9, GPSFix: true,
				FormationErrorM: fptr(scout2[i]), Timestamp: ts,
			})
		}
	}
	return rows
}

func TestFromRowsStats(t *testing.T) {
	r, err := FromRows(sampleRows())
	if err != nil {
		t.Fatalf("FromRows: %v", err)
	}
	if r.SwarmID != "alpha" || r.RunID != "run-1" {
		t.Errorf("unexpected identity: %s/%s", r.SwarmID, r.RunID)
	}
	if r.FirstCycle != 1 || r.LastCycle != 5 {
		t.Errorf("cycle range = %d..%d, want 1..5", r.FirstCycle, r.LastCycle)
	}
	if r.Rows != 12 {
		t.Errorf("rows = %d, want 12", r.Rows)
	}
	if len(r.Vehicles) != 2 {
		t.Fatalf("expected 2 follower stats, got %d: %+v", len(r.Vehicles), r.Vehicles)
	}

	s1 := r.Vehicles[0]
	if s1.VehicleID != "scout-1" || s1.Role != "follower" || s1.Samples != 5 {
		t.Fatalf("unexpected scout-1 stats: %+v", s1)
	}
	if s1.MeanM != 6 || s1.MinM != 2 || s1.MaxM != 10 || s1.P95M != 10 {
		t.Errorf("scout-1 aggregate wrong: %+v", s1)
	}
	if want := math.Sqrt(10); math.Abs(s1.StdDevM-want) > 1e-9 {
		t.Errorf("scout-1 stddev = %v, want %v", s1.StdDevM, want)
	}

	s2 := r.Vehicles[1]
	if s2.VehicleID != "scout-2" || s2.Samples != 2 {
		t.Fatalf("unexpected scout-2 stats: %+v", s2)
	}
	if s2.MeanM != 2 || s2.MinM != 1 || s2.MaxM != 3 || s2.P95M != 3 {
		t.Errorf("scout-2 aggregate wrong: %+v", s2)
	}
	if want := math.Sqrt(2); math.Abs(s2.StdDevM-want) > 1e-9 {
		t.Errorf("scout-2 stddev = %v, want %v", s2.StdDevM, want)
	}
}

func TestFromRowsNoSamples(t *testing.T) {
	leaderOnly := []telemetry.TelemetryRow{
		{SwarmID: "alpha", VehicleID: "leader-1", Role: "leader", Cycle: 1},
		{SwarmID: "alpha", VehicleID: "leader-1", Role: "leader", Cycle: 2},
	}
	if _, err := FromRows(leaderOnly); !errors.Is(err, ErrNoSamples) {
		t.Fatalf("expected ErrNoSamples, got %v", err)
	}
	if _, err := FromRows(nil); !errors.Is(err, ErrNoSamples) {
		t.Fatalf("expected ErrNoSamples for empty input, got %v", err)
	}
}

func TestFromJSONL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flight.jsonl")
	fw, err := swarm.NewFileWriter(path, "", "")
	if err != nil {
		t.Fatalf("file writer: %v", err)
	}
	for _, row := range sampleRows() {
		if err := fw.Write(row); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := FromJSONL(path)
	if err != nil {
		t.Fatalf("FromJSONL: %v", err)
	}
	if len(r.Vehicles) != 2 || r.Vehicles[0].MeanM != 6 {
		t.Errorf("unexpected stats from jsonl: %+v", r.Vehicles)
	}
}

func TestFromJSONLBadInput(t *testing.T) {
	if _, err := FromJSONL(filepath.Join(t.TempDir(), "missing.jsonl")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestFromArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight.db")
	db, err := swarm.NewSQLiteWriter(path)
	if err != nil {
		t.Fatalf("sqlite writer: %v", err)
	}
	if err := db.WriteBatch(sampleRows()); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := FromArchive(path)
	if err != nil {
		t.Fatalf("FromArchive: %v", err)
	}
	if len(r.Vehicles) != 2 {
		t.Fatalf("expected 2 follower stats, got %d", len(r.Vehicles))
	}
	if r.Vehicles[1].MaxM != 3 {
		t.Errorf("scout-2 max = %v, want 3", r.Vehicles[1].MaxM)
	}
}

func TestRenderChart(t *testing.T) {
	r, err := FromRows(sampleRows())
	if err != nil {
		t.Fatalf("FromRows: %v", err)
	}
	var buf bytes.Buffer
	if err := r.RenderChart(&buf); err != nil {
		t.Fatalf("RenderChart: %v", err)
	}
	page := buf.String()
	for _, want := range []string{"echarts", "Formation error by cycle", "scout-1", "scout-2"} {
		if !strings.Contains(page, want) {
			t.Errorf("chart missing %q", want)
		}
	}
}

func TestWriteChart(t *testing.T) {
	r, err := FromRows(sampleRows())
	if err != nil {
		t.Fatalf("FromRows: %v", err)
	}
	path := filepath.Join(t.TempDir(), "report.html")
	if err := r.WriteChart(path); err != nil {
		t.Fatalf("WriteChart: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() == 0 {
		t.Errorf("chart file is empty")
	}
}
