// Package motion defines the primitives sent to a dispensing head and the
// sequencer that expands one fiber into a collision-free primitive list.
package motion

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"leaflet-weaver/pkg/errors"
)

// Kind is the type of a primitive.
type Kind int

const (
	KindTravel Kind = iota
	KindActuator
	KindDwell
	KindFeed
)

func (k Kind) String() string {
	switch k {
	case KindTravel:
		return "travel"
	case KindActuator:
		return "actuator"
	case KindDwell:
		return "dwell"
	case KindFeed:
		return "feed"
	default:
		return "unknown"
	}
}

// Axis names a machine axis.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
	// AxisA is a secondary vertical axis some dispensing stages use in
	// place of Z.
	AxisA
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "X"
	case AxisY:
		return "Y"
	case AxisZ:
		return "Z"
	case AxisA:
		return "A"
	default:
		return "?"
	}
}

// ParseAxis maps an axis letter onto an Axis.
func ParseAxis(s string) (Axis, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "X":
		return AxisX, nil
	case "Y":
		return AxisY, nil
	case "Z":
		return AxisZ, nil
	case "A":
		return AxisA, nil
	}
	return 0, errors.InvalidConfiguration("motion", "unknown axis %q", s)
}

// AxisMove is a target (absolute) or delta (relative) on one axis.
type AxisMove struct {
	Axis  Axis
	Value float64
}

// Primitive is one atomic instruction for a motion sink. Only the fields
// relevant to Kind are set.
type Primitive struct {
	Kind     Kind
	Relative bool
	Moves    []AxisMove
	On       bool
	Dwell    time.Duration
	Feed     float64
}

// MoveTo is an absolute travel.
func MoveTo(moves ...AxisMove) Primitive {
	return Primitive{Kind: KindTravel, Moves: moves}
}

// MoveBy is a relative travel.
func MoveBy(moves ...AxisMove) Primitive {
	return Primitive{Kind: KindTravel, Relative: true, Moves: moves}
}

// Actuator opens or closes the dispensing valve.
func Actuator(on bool) Primitive {
	return Primitive{Kind: KindActuator, On: on}
}

// Wait pauses for d.
func Wait(d time.Duration) Primitive {
	return Primitive{Kind: KindDwell, Dwell: d}
}

// SetFeed changes the travel feed rate.
func SetFeed(f float64) Primitive {
	return Primitive{Kind: KindFeed, Feed: f}
}

// Value returns the value for axis a and whether the primitive moves it.
func (p Primitive) Value(a Axis) (float64, bool) {
	for _, m := range p.Moves {
		if m.Axis == a {
			return m.Value, true
		}
	}
	return 0, false
}

func (p Primitive) String() string {
	switch p.Kind {
	case KindTravel:
		var sb strings.Builder
		if p.Relative {
			sb.WriteString("move")
		} else {
			sb.WriteString("move_to")
		}
		for _, m := range p.Moves {
			fmt.Fprintf(&sb, " %s=%.4f", m.Axis, m.Value)
		}
		return sb.String()
	case KindActuator:
		if p.On {
			return "valve on"
		}
		return "valve off"
	case KindDwell:
		return "dwell " + p.Dwell.String()
	case KindFeed:
		return fmt.Sprintf("feed %g", p.Feed)
	default:
		return "unknown"
	}
}

// Sink receives primitives in order. Implementations must not reorder or
// batch; physical motion is irreversible.
type Sink interface {
	Emit(p Primitive) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(p Primitive) error

// Emit calls f(p).
func (f SinkFunc) Emit(p Primitive) error { return f(p) }

// Recorder is an in-memory sink used for dry runs and tests.
type Recorder struct {
	mu    sync.Mutex
	prims []Primitive
}

// Emit appends p.
func (r *Recorder) Emit(p Primitive) error {
	r.mu.Lock()
	r.prims = append(r.prims, p)
	r.mu.Unlock()
	return nil
}

// Primitives returns a copy of everything recorded.
func (r *Recorder) Primitives() []Primitive {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Primitive, len(r.prims))
	copy(out, r.prims)
	return out
}

// Len returns the number of recorded primitives.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prims)
}

// Reset drops everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.prims = nil
	r.mu.Unlock()
}

// Tee forwards every primitive to each sink in turn, stopping at the first
// error.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(p Primitive) error {
		for _, s := range sinks {
			if err := s.Emit(p); err != nil {
				return err
			}
		}
		return nil
	})
}
