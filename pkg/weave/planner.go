// Package weave turns a sampled curve and its anchors into the ordered
// binding sequence that realises the crossing-fan weave.
//
// Each anchor fans out to every m-th target on the opposite half of the
// curve while the anchor end wanders laterally by up to width/2 samples.
// Successive bindings alternate direction so the head never travels the
// full fiber length empty. Heights for both endpoints are reserved from the
// ledger as the binding is planned; execution replays them verbatim.
package weave

import (
	"github.com/go-gl/mathgl/mgl64"

	"leaflet-weaver/pkg/anchor"
	"leaflet-weaver/pkg/curve"
	"leaflet-weaver/pkg/errors"
	"leaflet-weaver/pkg/ledger"
	"leaflet-weaver/pkg/log"
)

// Config holds the anchor layout parameters.
type Config struct {
	// AnchorCount is the total number of anchors; must be even.
	AnchorCount int
	// BundleWidth is the lateral excursion around each anchor, in samples.
	BundleWidth int
}

// Planner accumulates bindings for one run. It is the only writer of the
// ledger it is given and must be used from a single goroutine.
type Planner struct {
	curve  *curve.Curve
	ledger *ledger.Ledger
	cfg    Config
	log    *log.Logger

	steps   []Step
	layer   int
	skipped int
}

// NewPlanner validates the anchor layout against the curve.
func NewPlanner(c *curve.Curve, l *ledger.Ledger, cfg Config, logger *log.Logger) (*Planner, error) {
	if c == nil || l == nil {
		return nil, errors.InvalidConfiguration("weave", "curve and ledger are required")
	}
	if l.Len() != c.Len() {
		return nil, errors.InvalidConfiguration("weave", "ledger has %d entries for %d samples", l.Len(), c.Len())
	}
	if _, err := anchor.Select(c.Len(), cfg.AnchorCount, cfg.BundleWidth, 0); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.GetLogger("weave")
	}
	return &Planner{curve: c, ledger: l, cfg: cfg, log: logger}, nil
}

// Forward plans one pass of left anchors into right-half targets.
func (p *Planner) Forward(phase float64) error {
	return p.pass(PassForward, phase)
}

// Return plans one pass of right anchors into left-half targets.
func (p *Planner) Return(phase float64) error {
	return p.pass(PassReturn, phase)
}

func (p *Planner) pass(kind Pass, phase float64) error {
	n := p.curve.Len()
	anchors, err := anchor.Select(n, p.cfg.AnchorCount, p.cfg.BundleWidth, phase)
	if err != nil {
		return err
	}

	w := p.cfg.BundleWidth
	m := anchors.PerSide()
	half := n / 2
	per := half / m
	before := len(p.steps)
	skippedBefore := p.skipped

	tic := true
	for i := 0; i < m; i++ {
		for j := 0; j < per; j++ {
			offset := j%w - w/2

			var target, anc int
			if kind == PassForward {
				target = j*m - i + half
				anc = anchors[i] - offset
				if target < half {
					continue
				}
			} else {
				target = j*m - i
				anc = mod(anchors[i+m]-offset, n)
				if target < 0 {
					continue
				}
			}

			if !p.curve.Contains(target) || !p.curve.Contains(anc) {
				p.skipped++
				p.log.WithFields(log.Fields{
					"pass":   kind.String(),
					"target": target,
					"anchor": anc,
				}).Debug("binding index outside curve, skipped")
				continue
			}

			if err := p.bind(kind, target, anc, tic); err != nil {
				return err
			}
			tic = !tic
		}
	}

	p.log.WithFields(log.Fields{
		"pass":     kind.String(),
		"layer":    p.layer,
		"phase":    phase,
		"bindings": len(p.steps) - before,
		"skipped":  p.skipped - skippedBefore,
	}).Debug("pass planned")
	p.layer++
	return nil
}

// bind reserves heights (target first, then anchor) and appends the step.
func (p *Planner) bind(kind Pass, target, anc int, anchorFirst bool) error {
	targetZ, err := p.ledger.Reserve(target)
	if err != nil {
		return err
	}
	anchorZ, err := p.ledger.Reserve(anc)
	if err != nil {
		return err
	}

	b := Binding{Pass: kind, Layer: p.layer, AnchorFirst: anchorFirst}
	if anchorFirst {
		b.Source, b.SourceZ, b.Dest, b.DestZ = anc, anchorZ, target, targetZ
	} else {
		b.Source, b.SourceZ, b.Dest, b.DestZ = target, targetZ, anc, anchorZ
	}
	p.steps = append(p.steps, p.resolve(b))
	return nil
}

// Layers plans count alternating passes: even layers run forward, odd
// layers return. Layer i uses phases[i] when given, otherwise i/2 so that
// each forward/return pair shares a shift and the next pair moves on.
func (p *Planner) Layers(count int, phases []float64) error {
	if count < 0 {
		return errors.InvalidConfiguration("weave", "layer count must be non-negative, got %d", count)
	}
	for i := 0; i < count; i++ {
		phase := float64(i / 2)
		if i < len(phases) {
			phase = phases[i]
		}
		var err error
		if i%2 == 0 {
			err = p.Forward(phase)
		} else {
			err = p.Return(phase)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Sweep plans one straight layer at height z: each first-half sample is
// paired with its mirror image, alternating direction. Sweeps do not touch
// the ledger.
func (p *Planner) Sweep(z float64) {
	n := p.curve.Len()
	tic := true
	for k := 0; k < n/2; k++ {
		left, right := k, n-1-k
		b := Binding{Pass: PassSweep, Layer: p.layer, SourceZ: z, DestZ: z}
		if tic {
			b.Source, b.Dest = left, right
		} else {
			b.Source, b.Dest = right, left
		}
		p.steps = append(p.steps, p.resolve(b))
		tic = !tic
	}
	p.layer++
}

func (p *Planner) resolve(b Binding) Step {
	from, to := p.curve.At(b.Source), p.curve.At(b.Dest)
	return Step{
		Binding: b,
		From:    mgl64.Vec3{from.X, from.Y, b.SourceZ},
		To:      mgl64.Vec3{to.X, to.Y, b.DestZ},
	}
}

// Queue freezes everything planned so far.
func (p *Planner) Queue() *Queue { return NewQueue(p.steps) }

// Len returns the number of bindings planned so far.
func (p *Planner) Len() int { return len(p.steps) }

// Skipped returns how many candidate bindings fell outside the curve.
func (p *Planner) Skipped() int { return p.skipped }

// LayerCount returns the number of passes planned so far.
func (p *Planner) LayerCount() int { return p.layer }

// Curve returns the curve being planned against.
func (p *Planner) Curve() *curve.Curve { return p.curve }

func mod(a, n int) int {
	a %= n
	if a < 0 {
		a += n
	}
	return a
}
