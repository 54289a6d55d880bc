package swarm

import (
	"context"
	"log"
	"net"
	"strconv"

	"github.com/BrianEstime1/drone-swarm/internal/telemetry"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"
)

const defaultGreptimePort = 4001

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes telemetry to GreptimeDB via the ingester client.
type GreptimeDBWriter struct {
	client     greptimeClient
	teleTable  string
	eventTable string
	cycleTable string
}

// NewGreptimeDBWriter creates a GreptimeDB writer. The endpoint may be a
// bare host or host:port; the port defaults to the gRPC ingest port.
func NewGreptimeDBWriter(endpoint, database string) (*GreptimeDBWriter, error) {
	host := endpoint
	port := defaultGreptimePort
	if h, p, err := net.SplitHostPort(endpoint); err == nil {
		host = h
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}

	cfg := greptime.NewConfig(host).
		WithPort(port).
		WithDatabase(database)

	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	return &GreptimeDBWriter{
		client:     client,
		teleTable:  telemetry.TelemetryTableName,
		eventTable: telemetry.EventTableName,
		cycleTable: telemetry.CycleTableName,
	}, nil
}

// Write inserts a single telemetry row.
func (w *GreptimeDBWriter) Write(row telemetry.TelemetryRow) error {
	return w.WriteBatch([]telemetry.TelemetryRow{row})
}

// WriteBatch inserts multiple telemetry rows. Rows without a formation
// target carry has_target=false and zero-filled target columns.
func (w *GreptimeDBWriter) WriteBatch(rows []telemetry.TelemetryRow) error {
	if len(rows) == 0 {
		return nil
	}

	tbl, err := table.New(w.teleTable)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("swarm_id", types.STRING)
	tbl.AddTagColumn("run_id", types.STRING)
	tbl.AddTagColumn("vehicle_id", types.STRING)
	tbl.AddFieldColumn("role", types.STRING)
	tbl.AddFieldColumn("status", types.STRING)
	tbl.AddFieldColumn("cycle", types.INT64)
	tbl.AddFieldColumn("lat", types.FLOAT64)
	tbl.AddFieldColumn("lon", types.FLOAT64)
	tbl.AddFieldColumn("alt", types.FLOAT64)
	tbl.AddFieldColumn("heading_deg", types.FLOAT64)
	tbl.AddFieldColumn("speed_mps", types.FLOAT64)
	tbl.AddFieldColumn("battery_v", types.FLOAT64)
	tbl.AddFieldColumn("battery_pct", types.FLOAT64)
	tbl.AddFieldColumn("satellites", types.INT64)
	tbl.AddFieldColumn("gps_fix", types.BOOLEAN)
	tbl.AddFieldColumn("has_target", types.BOOLEAN)
	tbl.AddFieldColumn("target_lat", types.FLOAT64)
	tbl.AddFieldColumn("target_lon", types.FLOAT64)
	tbl.AddFieldColumn("target_alt", types.FLOAT64)
	tbl.AddFieldColumn("formation_error_m", types.FLOAT64)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	for _, r := range rows {
		hasTarget := r.TargetLat != nil && r.TargetLon != nil && r.TargetAlt != nil
		var tLat, tLon, tAlt, formErr float64
		if hasTarget {
			tLat, tLon, tAlt = *r.TargetLat, *r.TargetLon, *r.TargetAlt
		}
		if r.FormationErrorM != nil {
			formErr = *r.FormationErrorM
		}
		if err := tbl.AddRow(
			r.SwarmID, r.RunID, r.VehicleID,
			r.Role, r.Status, int64(r.Cycle),
			r.Lat, r.Lon, r.Alt,
			r.HeadingDeg, r.SpeedMPS,
			r.BatteryV, r.BatteryPct,
			int64(r.Satellites), r.GPSFix,
			hasTarget, tLat, tLon, tAlt, formErr,
			r.Timestamp,
		); err != nil {
			return err
		}
	}

	return w.write(tbl, len(rows))
}

// WriteEvent inserts a single coordination event.
func (w *GreptimeDBWriter) WriteEvent(e telemetry.EventRow) error {
	return w.WriteEvents([]telemetry.EventRow{e})
}

// WriteEvents inserts multiple coordination events.
func (w *GreptimeDBWriter) WriteEvents(rows []telemetry.EventRow) error {
	if len(rows) == 0 {
		return nil
	}

	tbl, err := table.New(w.eventTable)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("swarm_id", types.STRING)
	tbl.AddTagColumn("run_id", types.STRING)
	tbl.AddFieldColumn("cycle", types.INT64)
	tbl.AddFieldColumn("event_type", types.STRING)
	tbl.AddFieldColumn("vehicle_id", types.STRING)
	tbl.AddFieldColumn("detail", types.STRING)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	for _, r := range rows {
		if err := tbl.AddRow(
			r.SwarmID, r.RunID,
			int64(r.Cycle), r.Type, r.VehicleID, r.Detail,
			r.Timestamp,
		); err != nil {
			return err
		}
	}

	return w.write(tbl, len(rows))
}

// WriteCycle inserts a cycle summary row.
func (w *GreptimeDBWriter) WriteCycle(row telemetry.CycleRow) error {
	tbl, err := table.New(w.cycleTable)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("swarm_id", types.STRING)
	tbl.AddTagColumn("run_id", types.STRING)
	tbl.AddFieldColumn("cycle", types.INT64)
	tbl.AddFieldColumn("duration_ms", types.FLOAT64)
	tbl.AddFieldColumn("overrun", types.BOOLEAN)
	tbl.AddFieldColumn("polled", types.INT64)
	tbl.AddFieldColumn("poll_failures", types.INT64)
	tbl.AddFieldColumn("dispatched", types.INT64)
	tbl.AddFieldColumn("dispatch_failures", types.INT64)
	tbl.AddFieldColumn("withheld", types.INT64)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	if err := tbl.AddRow(
		row.SwarmID, row.RunID,
		int64(row.Cycle), row.DurationMS, row.Overrun,
		int64(row.Polled), int64(row.PollFailures),
		int64(row.Dispatched), int64(row.DispatchFailures),
		int64(row.Withheld),
		row.Timestamp,
	); err != nil {
		return err
	}

	return w.write(tbl, 1)
}

func (w *GreptimeDBWriter) write(tbl *table.Table, n int) error {
	if _, err := w.client.Write(context.Background(), tbl); err != nil {
		log.Printf("[GreptimeDBWriter] write failed (%d rows): %v", n, err)
		return err
	}
	return nil
}
