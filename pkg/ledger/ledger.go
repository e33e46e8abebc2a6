// Package ledger tracks the build height of every curve sample.
//
// A lookup always returns the height of the next layer to be deposited at an
// index. Reserve is the only mutator: it hands out the current height and
// moves the index up one layer step in a single critical section, so later
// visits to the same point are always strictly higher.
package ledger

import (
	"sync"

	"leaflet-weaver/pkg/errors"
)

// Ledger is a per-index visit counter. Heights are derived as
// base + visits*step rather than accumulated, so consecutive reservations
// are exactly one step apart with no floating point drift.
type Ledger struct {
	mu     sync.Mutex
	visits []int
	base   float64
	step   float64
}

// New creates a ledger with n entries, all at base height.
func New(n int, base, step float64) (*Ledger, error) {
	if n <= 0 {
		return nil, errors.InvalidConfiguration("ledger", "ledger size must be positive, got %d", n)
	}
	if base < 0 {
		return nil, errors.InvalidConfiguration("ledger", "base height must be non-negative, got %v", base)
	}
	if !(step > 0) {
		return nil, errors.InvalidConfiguration("ledger", "layer step must be positive, got %v", step)
	}
	return &Ledger{
		visits: make([]int, n),
		base:   base,
		step:   step,
	}, nil
}

// Len returns the number of tracked indices.
func (l *Ledger) Len() int { return len(l.visits) }

// Base returns the initial height of every index.
func (l *Ledger) Base() float64 { return l.base }

// Step returns the layer increment.
func (l *Ledger) Step() float64 { return l.step }

func (l *Ledger) height(visits int) float64 {
	return l.base + float64(visits)*l.step
}

// Reserve returns the current height at i and advances it by one step.
func (l *Ledger) Reserve(i int) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < 0 || i >= len(l.visits) {
		return 0, errors.IndexOutOfRange("ledger", i, len(l.visits))
	}
	h := l.height(l.visits[i])
	l.visits[i]++
	return h, nil
}

// Peek returns the height the next Reserve(i) would hand out.
func (l *Ledger) Peek(i int) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < 0 || i >= len(l.visits) {
		return 0, errors.IndexOutOfRange("ledger", i, len(l.visits))
	}
	return l.height(l.visits[i]), nil
}

// Visits returns how many times i has been reserved.
func (l *Ledger) Visits(i int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < 0 || i >= len(l.visits) {
		return 0
	}
	return l.visits[i]
}

// MaxHeight returns the highest next-layer height across all indices.
func (l *Ledger) MaxHeight() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	most := 0
	for _, v := range l.visits {
		if v > most {
			most = v
		}
	}
	return l.height(most)
}
