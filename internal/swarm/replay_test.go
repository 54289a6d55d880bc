package swarm

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BrianEstime1/drone-swarm/internal/telemetry"
)

type collectWriter struct{ rows []telemetry.TelemetryRow }

func (c *collectWriter) Write(r telemetry.TelemetryRow) error {
	c.rows = append(c.rows, r)
	return nil
}

func TestReplayLog(t *testing.T) {
	rows := []telemetry.TelemetryRow{
		{SwarmID: "s1", VehicleID: "leader-1", Cycle: 1, Timestamp: time.Unix(0, 0).UTC()},
		{SwarmID: "s1", VehicleID: "scout-1", Cycle: 1, Timestamp: time.Unix(0, 0).UTC()},
		{SwarmID: "s1", VehicleID: "leader-1", Cycle: 2, Timestamp: time.Unix(1, 0).UTC()},
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	cw := &collectWriter{}
	if err := ReplayLog(&buf, cw, 0); err != nil {
		t.Fatalf("ReplayLog: %v", err)
	}
	if len(cw.rows) != len(rows) {
		t.Fatalf("expected %d rows, got %d", len(rows), len(cw.rows))
	}
	for i, r := range rows {
		if cw.rows[i].VehicleID != r.VehicleID || cw.rows[i].Cycle != r.Cycle {
			t.Fatalf("row %d mismatch: %+v vs %+v", i, cw.rows[i], r)
		}
	}
}

func TestReplayLogBadInput(t *testing.T) {
	cw := &collectWriter{}
	if err := ReplayLog(strings.NewReader("not json\n"), cw, 0); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestReplayLogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "telemetry.jsonl")
	fw, err := NewFileWriter(path, "", "")
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	rows := []telemetry.TelemetryRow{
		{VehicleID: "leader-1", Cycle: 1, Timestamp: time.Unix(0, 0).UTC()},
		{VehicleID: "leader-1", Cycle: 2, Timestamp: time.Unix(0, int64(time.Millisecond)).UTC()},
	}
	if err := fw.WriteBatch(rows); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	fw.Close()

	cw := &collectWriter{}
	// High speed keeps the recorded 1 ms gap negligible.
	if err := ReplayLogFile(path, cw, 100); err != nil {
		t.Fatalf("ReplayLogFile: %v", err)
	}
	if len(cw.rows) != 2 || cw.rows[1].Cycle != 2 {
		t.Fatalf("unexpected rows: %+v", cw.rows)
	}
}

func TestReplayArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "swarm.db")
	w, err := NewSQLiteWriter(path)
	if err != nil {
		t.Fatalf("NewSQLiteWriter: %v", err)
	}
	rows := []telemetry.TelemetryRow{
		{SwarmID: "s1", VehicleID: "leader-1", Cycle: 1, Timestamp: time.Unix(0, 0).UTC()},
		{SwarmID: "s1", VehicleID: "scout-1", Cycle: 1, Timestamp: time.Unix(0, 0).UTC()},
	}
	if err := w.WriteBatch(rows); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	w.Close()

	cw := &collectWriter{}
	if err := ReplayArchive(path, cw, 0); err != nil {
		t.Fatalf("ReplayArchive: %v", err)
	}
	if len(cw.rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(cw.rows))
	}
	if cw.rows[0].VehicleID != "leader-1" || cw.rows[1].VehicleID != "scout-1" {
		t.Fatalf("unexpected order: %+v", cw.rows)
	}
}

func TestReplayDelay(t *testing.T) {
	base := time.Unix(10, 0)
	cases := []struct {
		name  string
		prev  time.Time
		cur   time.Time
		speed float64
		want  time.Duration
	}{
		{"first row", time.Time{}, base, 1, 0},
		{"paused pacing", base, base.Add(time.Second), 0, 0},
		{"real time", base, base.Add(time.Second), 1, time.Second},
		{"double speed", base, base.Add(time.Second), 2, 500 * time.Millisecond},
		{"half speed", base, base.Add(time.Second), 0.5, 2 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := replayDelay(tc.prev, tc.cur, tc.speed); got != tc.want {
				t.Fatalf("replayDelay = %v, want %v", got, tc.want)
			}
		})
	}
}
