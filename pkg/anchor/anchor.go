// Package anchor picks the evenly spaced curve indices that fiber fans are
// bound to.
package anchor

import (
	"math"

	"leaflet-weaver/pkg/errors"
)

// Set is an ordered list of anchor indices into a curve. The first half
// feeds targets on the second half of the curve and vice versa.
type Set []int

// Select computes count anchors over a curve of n samples.
//
// Break points are spread over [0, n), rounded half-to-even, moved to the
// middle of their segment, then shifted by phase*width/2 samples. Shifted
// indices wrap around the curve so every anchor stays in [0, n).
func Select(n, count, width int, phase float64) (Set, error) {
	switch {
	case count <= 0:
		return nil, errors.InvalidConfiguration("anchor", "anchor count must be positive, got %d", count)
	case count%2 != 0:
		return nil, errors.InvalidConfiguration("anchor", "anchor count must be even, got %d", count)
	case count >= n:
		return nil, errors.InvalidConfiguration("anchor", "anchor count %d must be below sample count %d", count, n)
	case width <= 0:
		return nil, errors.InvalidConfiguration("anchor", "bundle width must be positive, got %d", width)
	case math.IsNaN(phase) || math.IsInf(phase, 0):
		return nil, errors.InvalidConfiguration("anchor", "phase shift must be finite, got %v", phase)
	}

	breaks := make([]float64, count)
	gap := float64(n) / float64(count)
	for i := range breaks {
		breaks[i] = math.RoundToEven(float64(i) * gap)
	}
	center := (breaks[1] - breaks[0]) / 2
	shift := phase * 0.5 * float64(width)

	set := make(Set, count)
	for i, b := range breaks {
		idx := int(b + center + shift)
		set[i] = wrap(idx, n)
	}
	return set, nil
}

func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// Left returns the anchors feeding the second half of the curve.
func (s Set) Left() []int { return s[:len(s)/2] }

// Right returns the anchors feeding the first half of the curve.
func (s Set) Right() []int { return s[len(s)/2:] }

// PerSide returns the number of anchors on each half.
func (s Set) PerSide() int { return len(s) / 2 }
