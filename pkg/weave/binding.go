package weave

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// Pass identifies which planning routine produced a binding.
type Pass int

const (
	// PassForward binds left-half anchors into right-half targets.
	PassForward Pass = iota
	// PassReturn binds right-half anchors into left-half targets.
	PassReturn
	// PassSweep pairs mirrored samples straight across the curve.
	PassSweep
)

func (p Pass) String() string {
	switch p {
	case PassForward:
		return "forward"
	case PassReturn:
		return "return"
	case PassSweep:
		return "sweep"
	default:
		return "unknown"
	}
}

// Binding is one fiber: an ordered (source, destination) pair of curve
// indices together with the heights reserved for each endpoint at plan time.
// The actuator opens at Source and closes at Dest.
type Binding struct {
	Source  int
	Dest    int
	SourceZ float64
	DestZ   float64

	// AnchorFirst is true when the anchor end is the source.
	AnchorFirst bool

	Pass  Pass
	Layer int
}

func (b Binding) String() string {
	return fmt.Sprintf("%s[%d] %d(%.4f)->%d(%.4f)", b.Pass, b.Layer, b.Source, b.SourceZ, b.Dest, b.DestZ)
}

// Step is a binding resolved against the curve: the three dimensional
// endpoints handed to the motion sequencer.
type Step struct {
	Binding
	From mgl64.Vec3
	To   mgl64.Vec3
}

// Queue is the frozen, ordered list of steps for one run. Order encodes the
// weave topology; nothing may reorder it.
type Queue struct {
	steps []Step
}

// NewQueue wraps steps in a queue. The slice is copied.
func NewQueue(steps []Step) *Queue {
	cp := make([]Step, len(steps))
	copy(cp, steps)
	return &Queue{steps: cp}
}

// Len returns the number of steps.
func (q *Queue) Len() int { return len(q.steps) }

// At returns step i.
func (q *Queue) At(i int) Step { return q.steps[i] }

// Steps returns a copy of all steps.
func (q *Queue) Steps() []Step {
	out := make([]Step, len(q.steps))
	copy(out, q.steps)
	return out
}

// Bindings returns the bindings in queue order.
func (q *Queue) Bindings() []Binding {
	out := make([]Binding, len(q.steps))
	for i, s := range q.steps {
		out[i] = s.Binding
	}
	return out
}
