package swarm

import (
	"testing"

	"github.com/BrianEstime1/drone-swarm/internal/telemetry"
)

func TestMultiWriterFanOut(t *testing.T) {
	a := &MockWriter{}
	b := &MockWriter{}
	ew := &MockEventWriter{}
	cw := &MockCycleWriter{}
	mw := NewMultiWriter([]TelemetryWriter{a, b}, []EventWriter{ew}, []CycleWriter{cw})

	if err := mw.Write(telemetry.TelemetryRow{VehicleID: "v1"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(a.Rows) != 1 || len(b.Rows) != 1 {
		t.Fatalf("row not fanned out: a=%d b=%d", len(a.Rows), len(b.Rows))
	}
	if err := mw.WriteEvent(telemetry.EventRow{Type: telemetry.EventStopped}); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	if len(ew.Events) != 1 {
		t.Fatalf("event not forwarded")
	}
	if err := mw.WriteCycle(telemetry.CycleRow{Cycle: 1}); err != nil {
		t.Fatalf("WriteCycle: %v", err)
	}
	if len(cw.Cycles) != 1 {
		t.Fatalf("cycle not forwarded")
	}
}

func TestMultiWriterBatchUsesBatchMode(t *testing.T) {
	batch := &batchCollector{}
	plain := &MockWriter{}
	mw := NewMultiWriter([]TelemetryWriter{batch, plain}, nil, nil)

	rows := []telemetry.TelemetryRow{{VehicleID: "v1"}, {VehicleID: "v2"}}
	if err := mw.WriteBatch(rows); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if len(batch.Batches) != 1 || len(batch.Batches[0]) != 2 {
		t.Fatalf("batch writer not used: %+v", batch.Batches)
	}
	if len(plain.Rows) != 2 {
		t.Fatalf("plain writer should get per-row writes, got %d", len(plain.Rows))
	}
}

func TestMultiWriterEventBatch(t *testing.T) {
	batch := &eventBatchCollector{}
	plain := &MockEventWriter{}
	mw := NewMultiWriter(nil, []EventWriter{batch, plain}, nil)

	rows := []telemetry.EventRow{
		{Type: telemetry.EventLeaderHold},
		{Type: telemetry.EventLeaderRecovered},
	}
	if err := mw.WriteEvents(rows); err != nil {
		t.Fatalf("WriteEvents: %v", err)
	}
	if len(batch.Batches) != 1 || len(batch.Batches[0]) != 2 {
		t.Fatalf("event batch writer not used: %+v", batch.Batches)
	}
	if len(plain.Events) != 2 {
		t.Fatalf("plain event writer should get per-event writes, got %d", len(plain.Events))
	}
}
