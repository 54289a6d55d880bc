package telemetry

import (
	"os"
	"time"
)

// CycleRow captures per-cycle loop health: how long the cycle took,
// whether it overran its period, and how the fleet I/O went.
type CycleRow struct {
	SwarmID          string    `json:"swarm_id"`          // TAG
	RunID            string    `json:"run_id"`            // TAG
	Cycle            uint64    `json:"cycle"`             // FIELD
	DurationMS       float64   `json:"duration_ms"`       // FIELD
	Overrun          bool      `json:"overrun"`           // FIELD
	Polled           int       `json:"polled"`            // FIELD
	PollFailures     int       `json:"poll_failures"`     // FIELD
	Dispatched       int       `json:"dispatched"`        // FIELD
	DispatchFailures int       `json:"dispatch_failures"` // FIELD
	Withheld         int       `json:"withheld"`          // FIELD
	Timestamp        time.Time `json:"ts"`                // TIME INDEX
}

// CycleTableName holds the table name for cycle records, overridable via
// the GREPTIMEDB_CYCLE_TABLE environment variable.
var CycleTableName = func() string {
	if env := os.Getenv("GREPTIMEDB_CYCLE_TABLE"); env != "" {
		return env
	}
	return "swarm_cycles"
}()

func (CycleRow) TableName() string {
	return CycleTableName
}
