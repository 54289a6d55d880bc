// Flight-history structs with greptime tags
package telemetry

import (
	"os"
	"time"
)

// TelemetryRow represents one vehicle's record for a single control
// cycle. Followers additionally carry the target they were steered
// toward and their distance from it.
type TelemetryRow struct {
	SwarmID         string    `json:"swarm_id"`                    // TAG
	RunID           string    `json:"run_id"`                      // TAG
	VehicleID       string    `json:"vehicle_id"`                  // TAG
	Role            string    `json:"role"`                        // FIELD
	Status          string    `json:"status"`                      // FIELD
	Cycle           uint64    `json:"cycle"`                       // FIELD
	Lat             float64   `json:"lat"`                         // FIELD
	Lon             float64   `json:"lon"`                         // FIELD
	Alt             float64   `json:"alt"`                         // FIELD
	HeadingDeg      float64   `json:"heading_deg"`                 // FIELD
	SpeedMPS        float64   `json:"speed_mps"`                   // FIELD
	BatteryV        float64   `json:"battery_v"`                   // FIELD
	BatteryPct      float64   `json:"battery_pct"`                 // FIELD
	Satellites      int       `json:"satellites"`                  // FIELD
	GPSFix          bool      `json:"gps_fix"`                     // FIELD
	TargetLat       *float64  `json:"target_lat,omitempty"`        // FIELD, followers only
	TargetLon       *float64  `json:"target_lon,omitempty"`        // FIELD, followers only
	TargetAlt       *float64  `json:"target_alt,omitempty"`        // FIELD, followers only
	FormationErrorM *float64  `json:"formation_error_m,omitempty"` // FIELD, followers only
	Timestamp       time.Time `json:"ts"`                          // TIME INDEX
}

// TelemetryTableName holds the table name used when writing to GreptimeDB.
// It defaults to "swarm_telemetry" but can be overridden via the
// GREPTIMEDB_TABLE environment variable.
var TelemetryTableName = func() string {
	if env := os.Getenv("GREPTIMEDB_TABLE"); env != "" {
		return env
	}
	return "swarm_telemetry"
}()

func (TelemetryRow) TableName() string {
	return TelemetryTableName
}
