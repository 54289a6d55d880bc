// Coordinator orchestrating leader-follower formation flight
package swarm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BrianEstime1/drone-swarm/internal/formation"
	"github.com/BrianEstime1/drone-swarm/internal/geo"
	"github.com/BrianEstime1/drone-swarm/internal/observability"
	"github.com/BrianEstime1/drone-swarm/internal/telemetry"
	"github.com/BrianEstime1/drone-swarm/internal/vehicle"

	"github.com/google/uuid"
)

// VehicleLink is the wire-level contract the coordinator drives. Poll
// and SendWaypoint must honor context deadlines; both are called from
// worker goroutines, so implementations must be safe for concurrent use.
type VehicleLink interface {
	Poll(ctx context.Context) (telemetry.Sample, error)
	SendWaypoint(ctx context.Context, target geo.Point, headingDeg *float64) error
}

// ModeCommander is an optional link capability for switching flight
// modes. Links without it get a hold waypoint instead of a mode change
// during stand-down.
type ModeCommander interface {
	SendMode(ctx context.Context, mode vehicle.Mode) error
}

// TelemetryWriter is an interface to support different output writers.
type TelemetryWriter interface {
	Write(telemetry.TelemetryRow) error
}

// EventWriter handles coordination events.
type EventWriter interface {
	WriteEvent(telemetry.EventRow) error
}

// CycleWriter handles per-cycle loop health records.
type CycleWriter interface {
	WriteCycle(telemetry.CycleRow) error
}

// Optional: writers can also support batch mode
type batchWriter interface {
	WriteBatch([]telemetry.TelemetryRow) error
}

// Optional: event writers may support batch mode
type batchEventWriter interface {
	WriteEvents([]telemetry.EventRow) error
}

// Config tunes the control loop.
type Config struct {
	SwarmID string
	// Period is the fixed cycle interval. Required.
	Period time.Duration
	// PollTimeout bounds each telemetry poll. Defaults to Period/2.
	PollTimeout time.Duration
	// SendTimeout bounds each waypoint or mode send. Defaults to Period/2.
	SendTimeout time.Duration
	// GraceCycles is how many consecutive cycles the swarm holds for a
	// lost or critical leader before standing down. Defaults to 10.
	GraceCycles int
}

const defaultGraceCycles = 10

// Member pairs a vehicle's state with the link used to reach it.
type Member struct {
	State *vehicle.State
	Link  VehicleLink
}

// SafetyFault is returned from Run when the swarm stood itself down.
type SafetyFault struct {
	VehicleID string
	Cycle     uint64
	Reason    string
}

func (f *SafetyFault) Error() string {
	return fmt.Sprintf("safety fault on %s at cycle %d: %s", f.VehicleID, f.Cycle, f.Reason)
}

var (
	// ErrRunning rejects a second concurrent Run.
	ErrRunning = errors.New("swarm: coordinator already running")
	// ErrStopped rejects running a coordinator again after it stopped.
	ErrStopped = errors.New("swarm: coordinator stopped")
)

type runState int8

const (
	stateIdle runState = iota
	stateRunning
	stateStopped
)

func (s runState) String() string {
	switch s {
	case stateRunning:
		return "running"
	case stateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// member is the coordinator's per-vehicle bookkeeping.
type member struct {
	state *vehicle.State
	link  VehicleLink
	rtl   bool // return-to-launch commanded, cleared on recovery
}

// stagedConfig holds formation changes waiting for the next cycle
// boundary.
type stagedConfig struct {
	shape   *string
	spacing *float64
	stagger *float64
}

func (sc stagedConfig) empty() bool {
	return sc.shape == nil && sc.spacing == nil && sc.stagger == nil
}

// Coordinator runs the fixed-rate poll, plan and dispatch loop for one
// swarm. Build it with NewCoordinator; a Coordinator runs at most once.
type Coordinator struct {
	cfg   Config
	runID string

	leader    *member
	followers []*member // sorted by slot

	writer      TelemetryWriter
	eventWriter EventWriter
	cycleWriter CycleWriter
	metrics     *observability.SwarmCollector

	mu        sync.Mutex
	state     runState
	stopReq   bool
	form      formation.Formation
	staged    stagedConfig
	cycle     uint64
	holding   bool
	holdCount int // consecutive lost-or-critical leader cycles
	fault     *SafetyFault

	now func() time.Time
}

// NewCoordinator validates the fleet and wires the loop. Exactly one
// leader and at least one follower are required, vehicle IDs and
// follower slots must be unique, and the telemetry writer is mandatory.
// The event writer, cycle writer and metrics collector may be nil.
func NewCoordinator(cfg Config, members []Member, form formation.Formation, writer TelemetryWriter, eventWriter EventWriter, cycleWriter CycleWriter, metrics *observability.SwarmCollector) (*Coordinator, error) {
	if cfg.SwarmID == "" {
		cfg.SwarmID = "swarm"
	}
	if cfg.Period <= 0 {
		return nil, fmt.Errorf("swarm: period must be positive, got %v", cfg.Period)
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = cfg.Period / 2
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = cfg.Period / 2
	}
	if cfg.GraceCycles <= 0 {
		cfg.GraceCycles = defaultGraceCycles
	}
	if form == nil {
		return nil, errors.New("swarm: formation required")
	}
	if writer == nil {
		return nil, errors.New("swarm: telemetry writer required")
	}

	c := &Coordinator{
		cfg:         cfg,
		runID:       uuid.NewString(),
		writer:      writer,
		eventWriter: eventWriter,
		cycleWriter: cycleWriter,
		metrics:     metrics,
		form:        form,
		now:         time.Now,
	}

	seen := make(map[string]bool, len(members))
	for _, m := range members {
		if m.State == nil || m.Link == nil {
			return nil, errors.New("swarm: member needs both state and link")
		}
		id := m.State.ID()
		if seen[id] {
			return nil, fmt.Errorf("swarm: duplicate vehicle id %q", id)
		}
		seen[id] = true
		switch m.State.Role() {
		case vehicle.RoleLeader:
			if c.leader != nil {
				return nil, fmt.Errorf("swarm: two leaders (%s and %s)", c.leader.state.ID(), id)
			}
			c.leader = &member{state: m.State, link: m.Link}
		case vehicle.RoleFollower:
			c.followers = append(c.followers, &member{state: m.State, link: m.Link})
		default:
			return nil, fmt.Errorf("swarm: vehicle %s has unknown role %q", id, m.State.Role())
		}
	}
	if c.leader == nil {
		return nil, errors.New("swarm: a leader is required")
	}
	if len(c.followers) == 0 {
		return nil, errors.New("swarm: at least one follower is required")
	}

	slots := make(map[int]string, len(c.followers))
	for _, f := range c.followers {
		s := f.state.Slot()
		if s < 0 {
			return nil, fmt.Errorf("swarm: vehicle %s has negative slot %d", f.state.ID(), s)
		}
		if other, ok := slots[s]; ok {
			return nil, fmt.Errorf("swarm: vehicles %s and %s share slot %d", other, f.state.ID(), s)
		}
		slots[s] = f.state.ID()
	}
	sort.Slice(c.followers, func(i, j int) bool {
		return c.followers[i].state.Slot() < c.followers[j].state.Slot()
	})

	return c, nil
}

// RunID identifies this coordinator run in every written row.
func (c *Coordinator) RunID() string { return c.runID }

// Stop requests a graceful stop at the next cycle boundary. Stopping an
// idle coordinator finishes it immediately; stopping twice is a no-op.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case stateIdle:
		c.state = stateStopped
	case stateRunning:
		c.stopReq = true
	}
}

// SetShape stages a formation shape change for the next cycle boundary.
func (c *Coordinator) SetShape(shape string) error {
	if !formation.ValidShape(shape) {
		return fmt.Errorf("%w: %q (have %v)", formation.ErrUnknownShape, shape, formation.Shapes())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staged.shape = &shape
	return nil
}

// SetSpacing stages a slot spacing change in meters for the next cycle
// boundary.
func (c *Coordinator) SetSpacing(m float64) error {
	if m <= 0 {
		return fmt.Errorf("%w: got %v", formation.ErrInvalidSpacing, m)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staged.spacing = &m
	return nil
}

// SetAltitudeStagger stages a per-rank vertical step change in meters
// for the next cycle boundary.
func (c *Coordinator) SetAltitudeStagger(m float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staged.stagger = &m
}

// applyStagedLocked swaps in pending formation changes. Values were
// validated when staged, so rebuild errors cannot occur with catalog
// shapes; an unexpected one keeps the old formation.
func (c *Coordinator) applyStagedLocked(cycle uint64) []telemetry.EventRow {
	st := c.staged
	c.staged = stagedConfig{}
	if st.empty() {
		return nil
	}

	spacing := c.form.Spacing()
	if st.spacing != nil {
		spacing = *st.spacing
	}
	stagger := c.form.AltitudeStagger()
	if st.stagger != nil {
		stagger = *st.stagger
	}
	if st.shape != nil {
		if next, err := formation.New(*st.shape, spacing, stagger); err == nil {
			c.form = next
		}
	} else {
		if err := c.form.SetSpacing(spacing); err == nil {
			c.form.SetAltitudeStagger(stagger)
		}
	}

	detail := fmt.Sprintf("shape=%s spacing_m=%g stagger_m=%g",
		c.form.Shape(), c.form.Spacing(), c.form.AltitudeStagger())
	return []telemetry.EventRow{c.event(cycle, telemetry.EventFormationChange, "", detail)}
}

// Snapshot is a point-in-time view of the swarm for the admin surface.
type Snapshot struct {
	SwarmID    string         `json:"swarm_id"`
	RunID      string         `json:"run_id"`
	State      string         `json:"state"`
	Cycle      uint64         `json:"cycle"`
	Shape      string         `json:"shape"`
	SpacingM   float64        `json:"spacing_m"`
	StaggerM   float64        `json:"stagger_m"`
	Holding    bool           `json:"holding"`
	HoldCycles int            `json:"hold_cycles"`
	Fault      string         `json:"fault,omitempty"`
	Vehicles   []vehicle.View `json:"vehicles"`
}

// Snapshot returns the current fleet view. Safe to call from any
// goroutine.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		SwarmID:    c.cfg.SwarmID,
		RunID:      c.runID,
		State:      c.state.String(),
		Cycle:      c.cycle,
		Shape:      c.form.Shape(),
		SpacingM:   c.form.Spacing(),
		StaggerM:   c.form.AltitudeStagger(),
		Holding:    c.holding,
		HoldCycles: c.holdCount,
		Vehicles:   make([]vehicle.View, 0, 1+len(c.followers)),
	}
	if c.fault != nil {
		snap.Fault = c.fault.Error()
	}
	for _, m := range c.members() {
		snap.Vehicles = append(snap.Vehicles, m.state.View())
	}
	return snap
}

// members returns the fleet in row order: leader first, then followers
// by slot. The slice is rebuilt per call; membership is fixed after
// construction.
func (c *Coordinator) members() []*member {
	out := make([]*member, 0, 1+len(c.followers))
	out = append(out, c.leader)
	return append(out, c.followers...)
}

// event stamps a coordination event with this run's identity.
func (c *Coordinator) event(cycle uint64, typ, vehicleID, detail string) telemetry.EventRow {
	return telemetry.EventRow{
		SwarmID:   c.cfg.SwarmID,
		RunID:     c.runID,
		Cycle:     cycle,
		Type:      typ,
		VehicleID: vehicleID,
		Detail:    detail,
		Timestamp: c.now().UTC(),
	}
}
