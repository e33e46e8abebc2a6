// Package curve samples the leaflet boundary into discrete deposition points.
//
// The boundary is a half circle traced as two mirrored quarter arcs: the
// stepping coordinate walks from the origin towards -radius, the orthogonal
// coordinate follows the circle equation, and the second half is the mirror
// image of the first read backwards. Index 0 and index Len()-1 are the two
// extremes; index Len()/2-1 and Len()/2 meet at the far end of the arc.
package curve

import (
	"math"

	"github.com/jbeda/geom"

	"leaflet-weaver/pkg/errors"
)

// Axis selects which coordinate is stepped at a fixed spacing.
type Axis int

const (
	// AxisY steps Y and solves for X.
	AxisY Axis = iota
	// AxisX steps X and solves for Y.
	AxisX
)

func (a Axis) String() string {
	switch a {
	case AxisY:
		return "y"
	case AxisX:
		return "x"
	default:
		return "unknown"
	}
}

// ParseAxis parses "x" or "y".
func ParseAxis(s string) (Axis, bool) {
	switch s {
	case "y", "Y":
		return AxisY, true
	case "x", "X":
		return AxisX, true
	}
	return AxisY, false
}

// stepEpsilon absorbs binary rounding in radius/spacing so that 25/0.1
// yields 250 samples rather than 251.
const stepEpsilon = 1e-9

// Params configures sampling.
type Params struct {
	Radius  float64
	Spacing float64
	Origin  geom.Coord
	Axis    Axis
}

// Curve is an immutable, ordered sequence of sampled boundary points.
type Curve struct {
	points []geom.Coord
	params Params
}

// Sample builds the target curve.
func Sample(p Params) (*Curve, error) {
	if !(p.Radius > 0) {
		return nil, errors.InvalidConfiguration("curve", "radius must be positive, got %v", p.Radius)
	}
	if !(p.Spacing > 0) {
		return nil, errors.InvalidConfiguration("curve", "spacing must be positive, got %v", p.Spacing)
	}
	if p.Axis != AxisY && p.Axis != AxisX {
		return nil, errors.InvalidConfiguration("curve", "unknown axis %d", p.Axis)
	}

	half := int(math.Ceil(p.Radius/p.Spacing - stepEpsilon))
	if half < 1 {
		half = 1
	}

	// step[k] is the stepped offset, solved[k] the circle offset, both
	// relative to the origin.
	step := make([]float64, half)
	solved := make([]float64, half)
	r2 := p.Radius * p.Radius
	for k := 0; k < half; k++ {
		s := -float64(k) * p.Spacing
		step[k] = s
		solved[k] = math.Sqrt(math.Max(r2-s*s, 0))
	}

	pts := make([]geom.Coord, 0, 2*half+1)
	for k := 0; k < half; k++ {
		pts = append(pts, p.point(step[k], -solved[k]))
	}
	for k := half - 1; k >= 0; k-- {
		pts = append(pts, p.point(step[k], solved[k]))
	}
	if len(pts)%2 != 0 {
		pts = append(pts, pts[len(pts)-1])
	}

	return &Curve{points: pts, params: p}, nil
}

// point maps (stepped, solved) offsets onto absolute coordinates for the
// configured axis.
func (p Params) point(stepped, solved float64) geom.Coord {
	if p.Axis == AxisX {
		return geom.Coord{X: p.Origin.X + stepped, Y: p.Origin.Y + solved}
	}
	return geom.Coord{X: p.Origin.X + solved, Y: p.Origin.Y + stepped}
}

// Len returns the number of samples; always even.
func (c *Curve) Len() int { return len(c.points) }

// Half returns Len()/2, the first index of the second half.
func (c *Curve) Half() int { return len(c.points) / 2 }

// At returns the sample at index i. It panics if i is outside [0, Len()).
func (c *Curve) At(i int) geom.Coord { return c.points[i] }

// Contains reports whether i is a valid sample index.
func (c *Curve) Contains(i int) bool { return i >= 0 && i < len(c.points) }

// Points returns a copy of all samples.
func (c *Curve) Points() []geom.Coord {
	out := make([]geom.Coord, len(c.points))
	copy(out, c.points)
	return out
}

// Params returns the parameters the curve was sampled with.
func (c *Curve) Params() Params { return c.params }

// Bounds returns the axis-aligned bounding box of all samples.
func (c *Curve) Bounds() geom.Rect {
	r := geom.Rect{Min: c.points[0], Max: c.points[0]}
	for _, pt := range c.points[1:] {
		r.Min.X = math.Min(r.Min.X, pt.X)
		r.Min.Y = math.Min(r.Min.Y, pt.Y)
		r.Max.X = math.Max(r.Max.X, pt.X)
		r.Max.Y = math.Max(r.Max.Y, pt.Y)
	}
	return r
}
