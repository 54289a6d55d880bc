// Package formation computes follower slot offsets for swarm shapes.
package formation

import (
	"errors"
	"fmt"
	"math"

	"github.com/BrianEstime1/drone-swarm/internal/geo"
)

// Supported shape names.
const (
	ShapeLine    = "line"
	ShapeVee     = "vee"
	ShapeEchelon = "echelon"
)

var (
	// ErrInvalidSpacing rejects non-positive spacing. Spacing is never
	// clamped; a bad value is a configuration error.
	ErrInvalidSpacing = errors.New("formation: spacing must be positive")
	// ErrUnknownShape rejects shape names outside the catalog.
	ErrUnknownShape = errors.New("formation: unknown shape")
)

// Formation maps follower slots to offsets relative to the leader.
//
// Offsets is deterministic and index-stable: slot i keeps the same
// geometric role no matter how many followers are present. Offsets are
// north-aligned; the swarm does not rotate shapes with the leader's
// heading. Implementations are not safe for concurrent use; the
// coordinator serializes access and applies mutations between cycles.
type Formation interface {
	Shape() string
	Spacing() float64
	AltitudeStagger() float64
	// SetSpacing changes the slot spacing in meters, effective on the
	// next Offsets call. Non-positive values fail with ErrInvalidSpacing.
	SetSpacing(m float64) error
	// SetAltitudeStagger changes the per-rank vertical step in meters,
	// effective on the next Offsets call.
	SetAltitudeStagger(m float64)
	// Offsets returns one offset per follower slot, index-ordered.
	Offsets(followers int) []geo.Offset
}

// New builds a formation from a shape name. Spacing must be positive;
// stagger lowers each successive rank by its value in meters.
func New(shape string, spacingM, staggerM float64) (Formation, error) {
	if spacingM <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidSpacing, spacingM)
	}
	p := params{spacingM: spacingM, staggerM: staggerM}
	switch shape {
	case ShapeLine:
		return &Line{p}, nil
	case ShapeVee:
		return &Vee{p}, nil
	case ShapeEchelon:
		return &Echelon{p}, nil
	default:
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownShape, shape, Shapes())
	}
}

// Shapes lists the catalog, in display order.
func Shapes() []string {
	return []string{ShapeLine, ShapeVee, ShapeEchelon}
}

// ValidShape reports whether name is in the catalog.
func ValidShape(name string) bool {
	switch name {
	case ShapeLine, ShapeVee, ShapeEchelon:
		return true
	}
	return false
}

// params carries the tunables shared by every shape.
type params struct {
	spacingM float64
	staggerM float64
}

func (p *params) Spacing() float64         { return p.spacingM }
func (p *params) AltitudeStagger() float64 { return p.staggerM }

func (p *params) SetSpacing(m float64) error {
	if m <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidSpacing, m)
	}
	p.spacingM = m
	return nil
}

func (p *params) SetAltitudeStagger(m float64) {
	p.staggerM = m
}

// Line trails followers in single file behind the leader, slot i at
// (i+1) spacings back.
type Line struct {
	params
}

func (l *Line) Shape() string { return ShapeLine }

func (l *Line) Offsets(followers int) []geo.Offset {
	offs := make([]geo.Offset, 0, max(followers, 0))
	for i := 0; i < followers; i++ {
		rank := float64(i + 1)
		offs = append(offs, geo.Offset{
			North: -l.spacingM * rank,
			Up:    -l.staggerM * rank,
		})
	}
	return offs
}

// veeSin60 spreads vee wings at the classic 0.866 lateral ratio, the
// sin(60°) of an equilateral wing pair.
var veeSin60 = math.Sin(60 * math.Pi / 180)

// Vee places followers on alternating wings behind the leader: even
// slots starboard, odd slots port, each pair one rank further back.
// Two followers make the familiar triangle.
type Vee struct {
	params
}

func (v *Vee) Shape() string { return ShapeVee }

func (v *Vee) Offsets(followers int) []geo.Offset {
	offs := make([]geo.Offset, 0, max(followers, 0))
	for i := 0; i < followers; i++ {
		rank := float64(i/2 + 1)
		side := 1.0
		if i%2 == 1 {
			side = -1.0
		}
		offs = append(offs, geo.Offset{
			North: -v.spacingM * rank,
			East:  side * v.spacingM * veeSin60 * rank,
			Up:    -v.staggerM * rank,
		})
	}
	return offs
}

// echelonStep scales the diagonal so neighbouring slots sit one spacing
// apart: sin(45°) on both axes.
var echelonStep = math.Sin(45 * math.Pi / 180)

// Echelon staggers followers diagonally back-right of the leader.
type Echelon struct {
	params
}

func (e *Echelon) Shape() string { return ShapeEchelon }

func (e *Echelon) Offsets(followers int) []geo.Offset {
	offs := make([]geo.Offset, 0, max(followers, 0))
	for i := 0; i < followers; i++ {
		rank := float64(i + 1)
		offs = append(offs, geo.Offset{
			North: -e.spacingM * echelonStep * rank,
			East:  e.spacingM * echelonStep * rank,
			Up:    -e.staggerM * rank,
		})
	}
	return offs
}
