package link

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/BrianEstime1/drone-swarm/internal/geo"
	"github.com/BrianEstime1/drone-swarm/internal/mission"
	"github.com/BrianEstime1/drone-swarm/internal/telemetry"
	"github.com/BrianEstime1/drone-swarm/internal/vehicle"
)

// Behavior tunes a simulated vehicle's flight and failure quirks.
// Zero values fall back to a healthy default airframe.
type Behavior struct {
	CruiseSpeedMPS     float64
	StartBatteryV      float64
	BatteryCells       int
	DrainVPerS         float64
	Satellites         int
	JitterM            float64 // GPS noise radius applied to reported positions
	DropoutRate        float64 // chance a poll or send times out
	BatteryAnomalyRate float64 // chance of a sudden voltage sag
	FixLossRate        float64 // chance a sample reports no usable fix
}

func (b Behavior) withDefaults() Behavior {
	if b.CruiseSpeedMPS <= 0 {
		b.CruiseSpeedMPS = 8
	}
	if b.BatteryCells <= 0 {
		b.BatteryCells = 3
	}
	if b.StartBatteryV <= 0 {
		b.StartBatteryV = 4.2 * float64(b.BatteryCells)
	}
	if b.Satellites <= 0 {
		b.Satellites = 10
	}
	return b
}

// SimLink is an in-process vehicle: it flies toward the last commanded
// waypoint at cruise speed, drains its battery, and injects the
// configured anomalies. Safe for use by one poller at a time plus mode
// commands from a second goroutine.
type SimLink struct {
	mu sync.Mutex

	id       string
	home     geo.Point
	pos      geo.Point
	heading  float64
	speed    float64
	batteryV float64
	behavior Behavior

	mode      vehicle.Mode
	target    geo.Point
	hasTarget bool
	route     *mission.Cursor

	rng  *rand.Rand
	last time.Time
	now  func() time.Time
}

// NewSimLink starts a simulated vehicle at start. The seed fixes the
// anomaly stream, so runs are reproducible.
func NewSimLink(id string, start geo.Point, b Behavior, seed int64) *SimLink {
	b = b.withDefaults()
	return &SimLink{
		id:       id,
		home:     start,
		pos:      start,
		batteryV: b.StartBatteryV,
		behavior: b,
		mode:     vehicle.ModeFormation,
		rng:      rand.New(rand.NewSource(seed)),
		now:      time.Now,
	}
}

// SetRoute gives the vehicle a patrol route to fly whenever no waypoint
// has been commanded. Used for the leader, which never receives
// formation targets.
func (l *SimLink) SetRoute(c *mission.Cursor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.route = c
}

// Poll advances the simulation to now and returns the current sample.
func (l *SimLink) Poll(ctx context.Context) (telemetry.Sample, error) {
	if err := ctx.Err(); err != nil {
		return telemetry.Sample{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.advance()
	if l.rng.Float64() < l.behavior.DropoutRate {
		return telemetry.Sample{}, ErrTimeout
	}

	sample := telemetry.Sample{
		Position:   l.pos,
		HeadingDeg: l.heading,
		SpeedMPS:   l.speed,
		BatteryV:   l.batteryV,
		Satellites: l.behavior.Satellites + l.rng.Intn(3) - 1,
		GPSFix:     true,
		Time:       l.now(),
	}
	if l.behavior.JitterM > 0 {
		jittered, err := l.pos.Offset(geo.Offset{
			North: (l.rng.Float64()*2 - 1) * l.behavior.JitterM,
			East:  (l.rng.Float64()*2 - 1) * l.behavior.JitterM,
		})
		if err == nil {
			sample.Position = jittered
		}
	}
	if l.rng.Float64() < l.behavior.FixLossRate {
		sample.GPSFix = false
		sample.Satellites = 2
	}
	return sample, nil
}

// SendWaypoint steers the vehicle toward pt. The heading hint is
// accepted for interface parity; the simulation derives its own heading
// from motion.
func (l *SimLink) SendWaypoint(ctx context.Context, pt geo.Point, headingDeg *float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rng.Float64() < l.behavior.DropoutRate {
		return ErrTimeout
	}
	l.target = pt
	l.hasTarget = true
	l.mode = vehicle.ModeFormation
	return nil
}

// SendMode switches the vehicle's flight mode. Hold parks it, return-to-
// launch flies it home, land descends in place.
func (l *SimLink) SendMode(ctx context.Context, m vehicle.Mode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.mode = m
	l.hasTarget = false
	return nil
}

// advance integrates motion and battery since the previous call.
// Caller holds l.mu.
func (l *SimLink) advance() {
	now := l.now()
	if l.last.IsZero() {
		l.last = now
		return
	}
	dt := now.Sub(l.last).Seconds()
	l.last = now
	if dt <= 0 {
		return
	}
	if dt > 5 {
		dt = 5
	}

	l.batteryV -= l.behavior.DrainVPerS * dt
	if l.rng.Float64() < l.behavior.BatteryAnomalyRate {
		l.batteryV -= 0.3 + l.rng.Float64()*0.5
	}
	if floor := 3.0 * float64(l.behavior.BatteryCells); l.batteryV < floor {
		l.batteryV = floor
	}

	target, ok := l.currentTarget()
	if !ok {
		l.speed = 0
		return
	}
	disp, err := geo.Displacement(l.pos, target)
	if err != nil {
		l.speed = 0
		return
	}
	dist := math.Sqrt(disp.North*disp.North + disp.East*disp.East + disp.Up*disp.Up)
	step := l.behavior.CruiseSpeedMPS * dt
	if dist <= step || dist < 0.1 {
		l.pos = target
		l.speed = dist / dt
	} else {
		frac := step / dist
		moved, err := l.pos.Offset(geo.Offset{
			North: disp.North * frac,
			East:  disp.East * frac,
			Up:    disp.Up * frac,
		})
		if err != nil {
			l.speed = 0
			return
		}
		if disp.North != 0 || disp.East != 0 {
			l.heading = geo.Bearing(l.pos, target)
		}
		l.pos = moved
		l.speed = l.behavior.CruiseSpeedMPS
	}

	if l.route != nil && !l.hasTarget && l.mode == vehicle.ModeFormation {
		l.route.Advance(l.pos)
	}
}

// currentTarget resolves where the vehicle is trying to go based on its
// mode and any commanded waypoint. Caller holds l.mu.
func (l *SimLink) currentTarget() (geo.Point, bool) {
	switch l.mode {
	case vehicle.ModeHold:
		return geo.Point{}, false
	case vehicle.ModeReturnToLaunch:
		return l.home, true
	case vehicle.ModeLand:
		down := l.pos
		down.Alt = l.home.Alt
		if l.pos.Alt <= l.home.Alt {
			return geo.Point{}, false
		}
		return down, true
	}
	if l.hasTarget {
		return l.target, true
	}
	if l.route != nil {
		return l.route.Target()
	}
	return geo.Point{}, false
}
