package telemetry

import (
	"os"
	"time"
)

// Coordination event types.
const (
	EventPollFailed      = "poll_failed"
	EventDispatchFailed  = "dispatch_failed"
	EventRTLFlagged      = "rtl_flagged"
	EventLeaderHold      = "leader_hold"
	EventLeaderRecovered = "leader_recovered"
	EventLeaderFault     = "leader_fault"
	EventFormationChange = "formation_change"
	EventCycleOverrun    = "cycle_overrun"
	EventStandDown       = "stand_down"
	EventStopped         = "stopped"
)

// EventRow represents a swarm coordination event.
type EventRow struct {
	SwarmID   string    `json:"swarm_id"`             // TAG
	RunID     string    `json:"run_id"`               // TAG
	Cycle     uint64    `json:"cycle"`                // FIELD
	Type      string    `json:"event_type"`           // FIELD
	VehicleID string    `json:"vehicle_id,omitempty"` // FIELD, empty for swarm-wide events
	Detail    string    `json:"detail,omitempty"`     // FIELD
	Timestamp time.Time `json:"ts"`                   // TIME INDEX
}

// EventTableName holds the table name for coordination events, overridable
// via the GREPTIMEDB_EVENT_TABLE environment variable.
var EventTableName = func() string {
	if env := os.Getenv("GREPTIMEDB_EVENT_TABLE"); env != "" {
		return env
	}
	return "swarm_events"
}()

func (EventRow) TableName() string {
	return EventTableName
}
