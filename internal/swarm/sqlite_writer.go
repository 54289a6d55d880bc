package swarm

import (
	"database/sql"
	"time"

	"github.com/BrianEstime1/drone-swarm/internal/telemetry"

	_ "modernc.org/sqlite"
)

// SQLiteWriter archives telemetry, events, and cycle summaries to a local
// SQLite database file. The same file can later feed replay and report.
type SQLiteWriter struct {
	db *sql.DB
}

// NewSQLiteWriter opens (or creates) the database at path and ensures the
// schema exists.
func NewSQLiteWriter(path string) (*SQLiteWriter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS swarm_telemetry (
			swarm_id TEXT,
			run_id TEXT,
			vehicle_id TEXT,
			role TEXT,
			status TEXT,
			cycle INTEGER,
			lat REAL,
			lon REAL,
			alt REAL,
			heading_deg REAL,
			speed_mps REAL,
			battery_v REAL,
			battery_pct REAL,
			satellites INTEGER,
			gps_fix INTEGER,
			target_lat REAL,
			target_lon REAL,
			target_alt REAL,
			formation_error_m REAL,
			ts INTEGER
		);
		CREATE TABLE IF NOT EXISTS swarm_events (
			swarm_id TEXT,
			run_id TEXT,
			cycle INTEGER,
			event_type TEXT,
			vehicle_id TEXT,
			detail TEXT,
			ts INTEGER
		);
		CREATE TABLE IF NOT EXISTS swarm_cycles (
			swarm_id TEXT,
			run_id TEXT,
			cycle INTEGER,
			duration_ms REAL,
			overrun INTEGER,
			polled INTEGER,
			poll_failures INTEGER,
			dispatched INTEGER,
			dispatch_failures INTEGER,
			withheld INTEGER,
			ts INTEGER
		);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteWriter{db: db}, nil
}

// Write inserts a single telemetry row.
func (w *SQLiteWriter) Write(row telemetry.TelemetryRow) error {
	return w.WriteBatch([]telemetry.TelemetryRow{row})
}

// WriteBatch inserts multiple telemetry rows in one transaction.
func (w *SQLiteWriter) WriteBatch(rows []telemetry.TelemetryRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO swarm_telemetry (
		swarm_id, run_id, vehicle_id, role, status, cycle,
		lat, lon, alt, heading_deg, speed_mps,
		battery_v, battery_pct, satellites, gps_fix,
		target_lat, target_lon, target_alt, formation_error_m, ts
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.Exec(
			r.SwarmID, r.RunID, r.VehicleID, r.Role, r.Status, int64(r.Cycle),
			r.Lat, r.Lon, r.Alt, r.HeadingDeg, r.SpeedMPS,
			r.BatteryV, r.BatteryPct, r.Satellites, r.GPSFix,
			r.TargetLat, r.TargetLon, r.TargetAlt, r.FormationErrorM,
			r.Timestamp.UnixNano(),
		)
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// WriteEvent inserts a single coordination event.
func (w *SQLiteWriter) WriteEvent(e telemetry.EventRow) error {
	return w.WriteEvents([]telemetry.EventRow{e})
}

// WriteEvents inserts multiple coordination events in one transaction.
func (w *SQLiteWriter) WriteEvents(rows []telemetry.EventRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO swarm_events (
		swarm_id, run_id, cycle, event_type, vehicle_id, detail, ts
	) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, e := range rows {
		_, err := stmt.Exec(
			e.SwarmID, e.RunID, int64(e.Cycle), e.Type, e.VehicleID, e.Detail,
			e.Timestamp.UnixNano(),
		)
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// WriteCycle inserts a cycle summary row.
func (w *SQLiteWriter) WriteCycle(row telemetry.CycleRow) error {
	_, err := w.db.Exec(`INSERT INTO swarm_cycles (
		swarm_id, run_id, cycle, duration_ms, overrun,
		polled, poll_failures, dispatched, dispatch_failures, withheld, ts
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.SwarmID, row.RunID, int64(row.Cycle), row.DurationMS, row.Overrun,
		row.Polled, row.PollFailures, row.Dispatched, row.DispatchFailures,
		row.Withheld, row.Timestamp.UnixNano(),
	)
	return err
}

// Telemetry reads back all archived telemetry rows ordered by cycle, then
// vehicle.
func (w *SQLiteWriter) Telemetry() ([]telemetry.TelemetryRow, error) {
	rows, err := w.db.Query(`SELECT
		swarm_id, run_id, vehicle_id, role, status, cycle,
		lat, lon, alt, heading_deg, speed_mps,
		battery_v, battery_pct, satellites, gps_fix,
		target_lat, target_lon, target_alt, formation_error_m, ts
	FROM swarm_telemetry ORDER BY cycle, vehicle_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []telemetry.TelemetryRow
	for rows.Next() {
		var r telemetry.TelemetryRow
		var cycle, ts int64
		var tLat, tLon, tAlt, formErr sql.NullFloat64
		if err := rows.Scan(
			&r.SwarmID, &r.RunID, &r.VehicleID, &r.Role, &r.Status, &cycle,
			&r.Lat, &r.Lon, &r.Alt, &r.HeadingDeg, &r.SpeedMPS,
			&r.BatteryV, &r.BatteryPct, &r.Satellites, &r.GPSFix,
			&tLat, &tLon, &tAlt, &formErr, &ts,
		); err != nil {
			return nil, err
		}
		r.Cycle = uint64(cycle)
		r.Timestamp = time.Unix(0, ts).UTC()
		if tLat.Valid {
			r.TargetLat = &tLat.Float64
		}
		if tLon.Valid {
			r.TargetLon = &tLon.Float64
		}
		if tAlt.Valid {
			r.TargetAlt = &tAlt.Float64
		}
		if formErr.Valid {
			r.FormationErrorM = &formErr.Float64
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Events reads back all archived coordination events ordered by cycle.
func (w *SQLiteWriter) Events() ([]telemetry.EventRow, error) {
	rows, err := w.db.Query(`SELECT
		swarm_id, run_id, cycle, event_type, vehicle_id, detail, ts
	FROM swarm_events ORDER BY cycle`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []telemetry.EventRow
	for rows.Next() {
		var e telemetry.EventRow
		var cycle, ts int64
		if err := rows.Scan(
			&e.SwarmID, &e.RunID, &cycle, &e.Type, &e.VehicleID, &e.Detail, &ts,
		); err != nil {
			return nil, err
		}
		e.Cycle = uint64(cycle)
		e.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Cycles reads back all archived cycle summaries ordered by cycle.
func (w *SQLiteWriter) Cycles() ([]telemetry.CycleRow, error) {
	rows, err := w.db.Query(`SELECT
		swarm_id, run_id, cycle, duration_ms, overrun,
		polled, poll_failures, dispatched, dispatch_failures, withheld, ts
	FROM swarm_cycles ORDER BY cycle`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []telemetry.CycleRow
	for rows.Next() {
		var c telemetry.CycleRow
		var cycle, ts int64
		if err := rows.Scan(
			&c.SwarmID, &c.RunID, &cycle, &c.DurationMS, &c.Overrun,
			&c.Polled, &c.PollFailures, &c.Dispatched, &c.DispatchFailures,
			&c.Withheld, &ts,
		); err != nil {
			return nil, err
		}
		c.Cycle = uint64(cycle)
		c.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the underlying database.
func (w *SQLiteWriter) Close() error {
	return w.db.Close()
}
