package telemetry

import (
	"time"

	"github.com/BrianEstime1/drone-swarm/internal/geo"
)

// Sample is one polled reading from a vehicle link: position, motion,
// battery, and GPS quality at a point in time. Links produce Samples;
// vehicle state consumes them.
type Sample struct {
	Position   geo.Point `json:"position"`
	HeadingDeg float64   `json:"heading_deg"`
	SpeedMPS   float64   `json:"speed_mps"`
	BatteryV   float64   `json:"battery_v"`
	Satellites int       `json:"satellites"`
	GPSFix     bool      `json:"gps_fix"`
	Time       time.Time `json:"time"`
}
