package swarm

import (
	"github.com/BrianEstime1/drone-swarm/internal/telemetry"
)

// MultiWriter fans telemetry, event and cycle rows out to multiple
// writers.
type MultiWriter struct {
	telewriters  []TelemetryWriter
	eventwriters []EventWriter
	cyclewriters []CycleWriter
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(tws []TelemetryWriter, ews []EventWriter, cws []CycleWriter) *MultiWriter {
	return &MultiWriter{telewriters: tws, eventwriters: ews, cyclewriters: cws}
}

// Write sends a telemetry row to all writers.
func (mw *MultiWriter) Write(row telemetry.TelemetryRow) error {
	for _, w := range mw.telewriters {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteBatch sends multiple telemetry rows to all writers, using batch
// mode where supported.
func (mw *MultiWriter) WriteBatch(rows []telemetry.TelemetryRow) error {
	for _, w := range mw.telewriters {
		if bw, ok := w.(batchWriter); ok {
			if err := bw.WriteBatch(rows); err != nil {
				return err
			}
			continue
		}
		for _, r := range rows {
			if err := w.Write(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteEvent sends a coordination event to all event writers.
func (mw *MultiWriter) WriteEvent(row telemetry.EventRow) error {
	for _, w := range mw.eventwriters {
		if err := w.WriteEvent(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteEvents sends multiple events to all event writers, using batch
// mode where supported.
func (mw *MultiWriter) WriteEvents(rows []telemetry.EventRow) error {
	for _, w := range mw.eventwriters {
		if bw, ok := w.(batchEventWriter); ok {
			if err := bw.WriteEvents(rows); err != nil {
				return err
			}
			continue
		}
		for _, r := range rows {
			if err := w.WriteEvent(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteCycle sends a cycle summary to all cycle writers.
func (mw *MultiWriter) WriteCycle(row telemetry.CycleRow) error {
	for _, w := range mw.cyclewriters {
		if err := w.WriteCycle(row); err != nil {
			return err
		}
	}
	return nil
}
