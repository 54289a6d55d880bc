// Package mission defines patrol routes the swarm leader flies.
package mission

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BrianEstime1/drone-swarm/internal/geo"
)

// defaultReachedM is the arrival radius used when a route does not set one.
const defaultReachedM = 5.0

// Route is an ordered sequence of legs relative to the swarm's home
// point. Keeping legs relative lets the same route fly anywhere.
type Route struct {
	Name        string  `yaml:"name,omitempty"`
	Description string  `yaml:"description,omitempty"`
	Loop        bool    `yaml:"loop"`
	ReachedM    float64 `yaml:"reached_m,omitempty"`
	Legs        []Leg   `yaml:"legs"`
}

// Leg is one waypoint, expressed as a local offset from home.
type Leg struct {
	Name  string  `yaml:"name,omitempty"`
	North float64 `yaml:"north_m"`
	East  float64 `yaml:"east_m"`
	Up    float64 `yaml:"up_m"`
}

// Load reads a YAML route definition from disk.
func Load(path string) (*Route, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route: %w", err)
	}
	var r Route
	if err := yaml.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("parse route: %w", err)
	}
	return &r, nil
}

// Cursor walks a route leg by leg as the vehicle reaches each waypoint.
type Cursor struct {
	points   []geo.Point
	loop     bool
	reachedM float64
	idx      int
	done     bool
}

// NewCursor anchors a route at home and returns a cursor positioned on
// the first leg. Legs that fall outside the supported region fail here,
// before anything flies.
func NewCursor(r Route, home geo.Point) (*Cursor, error) {
	points := make([]geo.Point, len(r.Legs))
	for i, leg := range r.Legs {
		p, err := home.Offset(geo.Offset{North: leg.North, East: leg.East, Up: leg.Up})
		if err != nil {
			return nil, fmt.Errorf("route %q leg %d: %w", r.Name, i, err)
		}
		points[i] = p
	}
	reached := r.ReachedM
	if reached <= 0 {
		reached = defaultReachedM
	}
	return &Cursor{
		points:   points,
		loop:     r.Loop,
		reachedM: reached,
		done:     len(points) == 0,
	}, nil
}

// Target returns the waypoint currently being flown toward. ok is false
// once a non-looping route is exhausted or the route had no legs.
func (c *Cursor) Target() (geo.Point, bool) {
	if c.done {
		return geo.Point{}, false
	}
	return c.points[c.idx], true
}

// Advance moves to the next leg once pos is inside the arrival radius of
// the current one. Looping routes wrap around; others finish.
func (c *Cursor) Advance(pos geo.Point) {
	if c.done {
		return
	}
	if geo.Distance(pos, c.points[c.idx]) > c.reachedM {
		return
	}
	c.idx++
	if c.idx < len(c.points) {
		return
	}
	if c.loop {
		c.idx = 0
		return
	}
	c.done = true
}

// Done reports whether a non-looping route has been fully flown.
func (c *Cursor) Done() bool { return c.done }
