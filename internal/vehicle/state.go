// Package vehicle tracks per-vehicle state and safety status.
package vehicle

import (
	"time"

	"github.com/BrianEstime1/drone-swarm/internal/geo"
	"github.com/BrianEstime1/drone-swarm/internal/telemetry"
)

// Role of a vehicle within the swarm.
type Role string

const (
	RoleLeader   Role = "leader"
	RoleFollower Role = "follower"
)

// Status is the safety classification derived from telemetry.
//
// Transitions follow the data on every update, with one exception:
// lost is entered only when the link timeout is exceeded and sticks
// until a fresh sample arrives.
type Status string

const (
	StatusNominal  Status = "nominal"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusLost     Status = "lost"
)

// Mode is the last flight mode commanded to a vehicle.
type Mode string

const (
	ModeFormation      Mode = "formation"
	ModeHold           Mode = "hold"
	ModeReturnToLaunch Mode = "rtl"
	ModeLand           Mode = "land"
)

// Thresholds holds the safety limits a State is judged against.
type Thresholds struct {
	BatteryWarnPct     float64
	BatteryCriticalPct float64
	MinSatellites      int // below this the fix counts as unusable
	WarnSatellites     int // below this the fix counts as degraded
	LinkTimeout        time.Duration
	BatteryCells       int // LiPo cell count for percent conversion
}

// DefaultThresholds returns the limits used when the config leaves them out.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BatteryWarnPct:     35,
		BatteryCriticalPct: 25,
		MinSatellites:      6,
		WarnSatellites:     8,
		LinkTimeout:        time.Second,
		BatteryCells:       3,
	}
}

// State holds the last known condition of one vehicle. It is created at
// swarm construction and lives for the whole run. Not safe for
// concurrent use: the coordinator serializes all access.
type State struct {
	id   string
	role Role
	slot int
	th   Thresholds

	pos        geo.Point
	headingDeg float64
	speedMPS   float64
	batteryV   float64
	batteryPct float64
	satellites int
	gpsFix     bool

	status     Status
	mode       Mode
	lastUpdate time.Time
	hasFix     bool // at least one successful update merged

	target    geo.Point
	hasTarget bool
}

// New returns a State for one vehicle. Slot is the stable formation
// index for followers; leaders pass 0.
func New(id string, role Role, slot int, th Thresholds) *State {
	return &State{
		id:     id,
		role:   role,
		slot:   slot,
		th:     th,
		status: StatusNominal,
		mode:   ModeFormation,
	}
}

func (s *State) ID() string     { return s.id }
func (s *State) Role() Role     { return s.role }
func (s *State) Slot() int      { return s.slot }
func (s *State) Status() Status { return s.status }
func (s *State) Mode() Mode     { return s.mode }

// Position returns the last merged position. Valid only after the first
// successful update; callers can check Fresh.
func (s *State) Position() geo.Point { return s.pos }

// Fresh reports whether at least one sample has ever been merged.
func (s *State) Fresh() bool { return s.hasFix }

// Update merges a polled sample and re-derives the status. A fresh
// sample always clears lost.
func (s *State) Update(sm telemetry.Sample, now time.Time) {
	s.pos = sm.Position
	s.headingDeg = sm.HeadingDeg
	s.speedMPS = sm.SpeedMPS
	s.batteryV = sm.BatteryV
	s.batteryPct = BatteryPercent(sm.BatteryV, s.th.BatteryCells)
	s.satellites = sm.Satellites
	s.gpsFix = sm.GPSFix
	s.lastUpdate = now
	s.hasFix = true
	s.status = s.derive()
}

// MarkStale records a failed poll. Once the link timeout has elapsed
// since the last good sample the vehicle goes lost and stays there
// until Update runs again.
func (s *State) MarkStale(now time.Time) {
	if s.lastUpdate.IsZero() {
		// First contact failure starts the timeout clock.
		s.lastUpdate = now
		return
	}
	if now.Sub(s.lastUpdate) > s.th.LinkTimeout {
		s.status = StatusLost
	}
}

// NeedsReturnToLaunch reports whether the vehicle must stop formation
// flight and return. True exactly when the status is critical; this is
// the only safety gate the coordinator consults before commanding the
// vehicle.
func (s *State) NeedsReturnToLaunch() bool {
	return s.status == StatusCritical
}

// SetTarget records the formation target last dispatched to the vehicle.
func (s *State) SetTarget(p geo.Point) {
	s.target = p
	s.hasTarget = true
}

// Target returns the last dispatched target, if any.
func (s *State) Target() (geo.Point, bool) {
	return s.target, s.hasTarget
}

// SetMode records the flight mode last commanded to the vehicle.
func (s *State) SetMode(m Mode) { s.mode = m }

func (s *State) derive() Status {
	switch {
	case !s.gpsFix, s.satellites < s.th.MinSatellites, s.batteryPct < s.th.BatteryCriticalPct:
		return StatusCritical
	case s.satellites < s.th.WarnSatellites, s.batteryPct < s.th.BatteryWarnPct:
		return StatusWarning
	default:
		return StatusNominal
	}
}

// View is a value snapshot of a State for display and row building.
type View struct {
	ID         string    `json:"id"`
	Role       Role      `json:"role"`
	Slot       int       `json:"slot"`
	Position   geo.Point `json:"position"`
	HeadingDeg float64   `json:"heading_deg"`
	SpeedMPS   float64   `json:"speed_mps"`
	BatteryV   float64   `json:"battery_v"`
	BatteryPct float64   `json:"battery_pct"`
	Satellites int       `json:"satellites"`
	GPSFix     bool      `json:"gps_fix"`
	Status     Status    `json:"status"`
	Mode       Mode      `json:"mode"`
	LastUpdate time.Time `json:"last_update"`

	Target          *geo.Point `json:"target,omitempty"`
	FormationErrorM *float64   `json:"formation_error_m,omitempty"`
}

// View returns a copy of the current state. For followers with a
// dispatched target it includes the distance still to close.
func (s *State) View() View {
	v := View{
		ID:         s.id,
		Role:       s.role,
		Slot:       s.slot,
		Position:   s.pos,
		HeadingDeg: s.headingDeg,
		SpeedMPS:   s.speedMPS,
		BatteryV:   s.batteryV,
		BatteryPct: s.batteryPct,
		Satellites: s.satellites,
		GPSFix:     s.gpsFix,
		Status:     s.status,
		Mode:       s.mode,
		LastUpdate: s.lastUpdate,
	}
	if s.hasTarget {
		t := s.target
		v.Target = &t
		if s.hasFix {
			err := geo.Distance(s.pos, s.target)
			v.FormationErrorM = &err
		}
	}
	return v
}

// BatteryPercent converts a pack voltage to a charge percentage, linear
// between 4.2 V per cell (full) and 3.3 V per cell (empty), clamped to
// [0, 100]. A non-positive cell count falls back to a 3S pack.
func BatteryPercent(voltage float64, cells int) float64 {
	if cells <= 0 {
		cells = 3
	}
	empty := 3.3 * float64(cells)
	full := 4.2 * float64(cells)
	pct := (voltage - empty) / (full - empty) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
