// Package report aggregates recorded flight logs into per-vehicle
// formation tracking statistics and charts.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/BrianEstime1/drone-swarm/internal/swarm"
	"github.com/BrianEstime1/drone-swarm/internal/telemetry"
)

// ErrNoSamples rejects logs without a single formation error sample.
var ErrNoSamples = errors.New("report: no formation error samples in log")

// VehicleStats summarizes formation error for one vehicle across a run.
type VehicleStats struct {
	VehicleID string  `json:"vehicle_id"`
	Role      string  `json:"role"`
	Samples   int     `json:"samples"`
	MeanM     float64 `json:"mean_m"`
	StdDevM   float64 `json:"stddev_m"`
	MinM      float64 `json:"min_m"`
	MaxM      float64 `json:"max_m"`
	P95M      float64 `json:"p95_m"`
}

// Report is an aggregated view of one recorded flight.
type Report struct {
	SwarmID    string         `json:"swarm_id"`
	RunID      string         `json:"run_id"`
	FirstCycle uint64         `json:"first_cycle"`
	LastCycle  uint64         `json:"last_cycle"`
	Rows       int            `json:"rows"`
	Vehicles   []VehicleStats `json:"vehicles"`

	series map[string][]point
}

type point struct {
	cycle  uint64
	errorM float64
}

// FromRows aggregates telemetry rows into a report. Rows without a
// formation error (leader rows, withheld or failed polls) shape the
// cycle range but contribute no statistics. Vehicles are sorted by id.
func FromRows(rows []telemetry.TelemetryRow) (*Report, error) {
	if len(rows) == 0 {
		return nil, ErrNoSamples
	}
	r := &Report{
		SwarmID:    rows[0].SwarmID,
		RunID:      rows[0].RunID,
		FirstCycle: rows[0].Cycle,
		series:     make(map[string][]point),
	}
	errsByVehicle := make(map[string][]float64)
	roles := make(map[string]string)
	for _, row := range rows {
		r.Rows++
		if row.Cycle < r.FirstCycle {
			r.FirstCycle = row.Cycle
		}
		if row.Cycle > r.LastCycle {
			r.LastCycle = row.Cycle
		}
		roles[row.VehicleID] = row.Role
		if row.FormationErrorM == nil {
			continue
		}
		errsByVehicle[row.VehicleID] = append(errsByVehicle[row.VehicleID], *row.FormationErrorM)
		r.series[row.VehicleID] = append(r.series[row.VehicleID], point{cycle: row.Cycle, errorM: *row.FormationErrorM})
	}
	if len(errsByVehicle) == 0 {
		return nil, ErrNoSamples
	}

	ids := make([]string, 0, len(errsByVehicle))
	for id := range errsByVehicle {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		errs := errsByVehicle[id]
		sorted := append([]float64(nil), errs...)
		sort.Float64s(sorted)
		vs := VehicleStats{
			VehicleID: id,
			Role:      roles[id],
			Samples:   len(errs),
			MeanM:     stat.Mean(errs, nil),
			MinM:      floats.Min(sorted),
			MaxM:      floats.Max(sorted),
			P95M:      stat.Quantile(0.95, stat.Empirical, sorted, nil),
		}
		if len(errs) > 1 {
			vs.StdDevM = stat.StdDev(errs, nil)
		}
		r.Vehicles = append(r.Vehicles, vs)
	}
	return r, nil
}

// FromJSONL reads a JSONL telemetry log written by the file writer.
func FromJSONL(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := decodeRows(f)
	if err != nil {
		return nil, fmt.Errorf("report: reading %s: %w", path, err)
	}
	return FromRows(rows)
}

// FromArchive reads telemetry from a SQLite flight archive.
func FromArchive(path string) (*Report, error) {
	db, err := swarm.NewSQLiteWriter(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	rows, err := db.Telemetry()
	if err != nil {
		return nil, err
	}
	return FromRows(rows)
}

func decodeRows(r io.Reader) ([]telemetry.TelemetryRow, error) {
	dec := json.NewDecoder(r)
	var rows []telemetry.TelemetryRow
	for {
		var row telemetry.TelemetryRow
		if err := dec.Decode(&row); err != nil {
			if err == io.EOF {
				return rows, nil
			}
			return nil, err
		}
		rows = append(rows, row)
	}
}
