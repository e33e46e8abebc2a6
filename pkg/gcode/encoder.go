// Package gcode turns motion primitives into G-code text and replays G-code
// against a simulated machine.
package gcode

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"leaflet-weaver/pkg/motion"
)

// Options control the G-code dialect.
type Options struct {
	// ValvePin is the output pin driven by SET_PIN for the actuator.
	ValvePin string
	// Precision is the number of decimals for coordinates.
	Precision int
}

// DefaultOptions returns the dialect used when nothing is configured.
func DefaultOptions() Options {
	return Options{ValvePin: "valve", Precision: 4}
}

// Encoder converts primitives to G-code lines. It remembers the positioning
// mode so G90/G91 are only emitted on change. Not safe for concurrent use.
type Encoder struct {
	opts     Options
	relative bool
	known    bool
}

// NewEncoder creates an encoder. Zero fields in opts take defaults.
func NewEncoder(opts Options) *Encoder {
	def := DefaultOptions()
	if opts.ValvePin == "" {
		opts.ValvePin = def.ValvePin
	}
	if opts.Precision <= 0 {
		opts.Precision = def.Precision
	}
	return &Encoder{opts: opts}
}

// Reset forgets the positioning mode.
func (e *Encoder) Reset() { e.known = false }

// Encode returns the lines for p.
func (e *Encoder) Encode(p motion.Primitive) ([]string, error) {
	switch p.Kind {
	case motion.KindTravel:
		if len(p.Moves) == 0 {
			return nil, fmt.Errorf("gcode: travel without axes")
		}
		var out []string
		if !e.known || e.relative != p.Relative {
			if p.Relative {
				out = append(out, "G91")
			} else {
				out = append(out, "G90")
			}
			e.relative, e.known = p.Relative, true
		}
		var sb strings.Builder
		sb.WriteString("G1")
		for _, m := range p.Moves {
			sb.WriteByte(' ')
			sb.WriteString(m.Axis.String())
			sb.WriteString(e.num(m.Value))
		}
		return append(out, sb.String()), nil
	case motion.KindActuator:
		v := 0
		if p.On {
			v = 1
		}
		return []string{fmt.Sprintf("SET_PIN PIN=%s VALUE=%d", e.opts.ValvePin, v)}, nil
	case motion.KindDwell:
		return []string{"G4 P" + strconv.FormatInt(p.Dwell.Round(time.Millisecond).Milliseconds(), 10)}, nil
	case motion.KindFeed:
		if !(p.Feed > 0) {
			return nil, fmt.Errorf("gcode: feed rate must be positive, got %v", p.Feed)
		}
		return []string{"G1 F" + e.num(p.Feed)}, nil
	default:
		return nil, fmt.Errorf("gcode: unknown primitive kind %d", p.Kind)
	}
}

// num formats v with the configured precision and trims trailing zeros.
func (e *Encoder) num(v float64) string {
	s := strconv.FormatFloat(v, 'f', e.opts.Precision, 64)
	if strings.IndexByte(s, '.') >= 0 {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "-0" {
		s = "0"
	}
	return s
}
