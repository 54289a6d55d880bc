package swarm

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/BrianEstime1/drone-swarm/internal/telemetry"
)

func replayDelay(prev, cur time.Time, speed float64) time.Duration {
	if prev.IsZero() || speed <= 0 {
		return 0
	}
	diff := cur.Sub(prev)
	if speed != 1 {
		diff = time.Duration(float64(diff) / speed)
	}
	return diff
}

// ReplayLog replays JSONL telemetry rows from r to writer. A speed >0
// paces playback against the recorded timestamps; speed <= 0 inserts no
// artificial delay.
func ReplayLog(r io.Reader, writer TelemetryWriter, speed float64) error {
	dec := json.NewDecoder(r)
	var prev time.Time
	for {
		var row telemetry.TelemetryRow
		if err := dec.Decode(&row); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if d := replayDelay(prev, row.Timestamp, speed); d > 0 {
			time.Sleep(d)
		}
		if err := writer.Write(row); err != nil {
			return err
		}
		prev = row.Timestamp
	}
}

// ReplayLogFile opens a JSONL file and replays its telemetry rows.
func ReplayLogFile(path string, writer TelemetryWriter, speed float64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ReplayLog(f, writer, speed)
}

// ReplayRows replays already-loaded telemetry rows with the same pacing
// rules as ReplayLog.
func ReplayRows(rows []telemetry.TelemetryRow, writer TelemetryWriter, speed float64) error {
	var prev time.Time
	for _, row := range rows {
		if d := replayDelay(prev, row.Timestamp, speed); d > 0 {
			time.Sleep(d)
		}
		if err := writer.Write(row); err != nil {
			return err
		}
		prev = row.Timestamp
	}
	return nil
}

// ReplayArchive replays telemetry rows from a SQLite archive.
func ReplayArchive(path string, writer TelemetryWriter, speed float64) error {
	db, err := NewSQLiteWriter(path)
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Telemetry()
	if err != nil {
		return err
	}
	return ReplayRows(rows, writer, speed)
}
