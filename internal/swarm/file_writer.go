package swarm

import (
	"encoding/json"
	"os"

	"github.com/BrianEstime1/drone-swarm/internal/telemetry"
)

// FileWriter writes telemetry, events and cycle summaries to JSONL
// files. The telemetry log doubles as replay and report input.
type FileWriter struct {
	teleFile  *os.File
	eventFile *os.File
	cycleFile *os.File
	teleEnc   *json.Encoder
	eventEnc  *json.Encoder
	cycleEnc  *json.Encoder
}

// NewFileWriter creates a FileWriter. eventPath or cyclePath may be
// empty to skip those logs.
func NewFileWriter(telemetryPath, eventPath, cyclePath string) (*FileWriter, error) {
	tf, err := os.Create(telemetryPath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{teleFile: tf, teleEnc: json.NewEncoder(tf)}
	if eventPath != "" {
		ef, err := os.Create(eventPath)
		if err != nil {
			tf.Close()
			return nil, err
		}
		fw.eventFile = ef
		fw.eventEnc = json.NewEncoder(ef)
	}
	if cyclePath != "" {
		cf, err := os.Create(cyclePath)
		if err != nil {
			if fw.eventFile != nil {
				fw.eventFile.Close()
			}
			tf.Close()
			return nil, err
		}
		fw.cycleFile = cf
		fw.cycleEnc = json.NewEncoder(cf)
	}
	return fw, nil
}

// Write logs a single telemetry row.
func (f *FileWriter) Write(row telemetry.TelemetryRow) error {
	return f.teleEnc.Encode(row)
}

// WriteBatch logs multiple telemetry rows.
func (f *FileWriter) WriteBatch(rows []telemetry.TelemetryRow) error {
	for _, r := range rows {
		if err := f.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteEvent logs a single coordination event, if enabled.
func (f *FileWriter) WriteEvent(e telemetry.EventRow) error {
	if f.eventEnc == nil {
		return nil
	}
	return f.eventEnc.Encode(e)
}

// WriteEvents logs multiple coordination events.
func (f *FileWriter) WriteEvents(rows []telemetry.EventRow) error {
	for _, r := range rows {
		if err := f.WriteEvent(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteCycle logs a cycle summary row, if enabled.
func (f *FileWriter) WriteCycle(row telemetry.CycleRow) error {
	if f.cycleEnc == nil {
		return nil
	}
	return f.cycleEnc.Encode(row)
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	var err error
	if f.teleFile != nil {
		if e := f.teleFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	if f.eventFile != nil {
		if e := f.eventFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	if f.cycleFile != nil {
		if e := f.cycleFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
