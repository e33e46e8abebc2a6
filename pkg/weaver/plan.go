// Package weaver assembles a run from a machine config and a job: it samples
// the curve, plans the queue and builds the sequencer and cleaning routine
// on top of a motion sink.
package weaver

import (
	"context"
	"fmt"
	"io"

	"github.com/jbeda/geom"

	"leaflet-weaver/pkg/cleaning"
	"leaflet-weaver/pkg/config"
	"leaflet-weaver/pkg/curve"
	"leaflet-weaver/pkg/errors"
	"leaflet-weaver/pkg/gcode"
	"leaflet-weaver/pkg/job"
	"leaflet-weaver/pkg/journal"
	"leaflet-weaver/pkg/ledger"
	"leaflet-weaver/pkg/log"
	"leaflet-weaver/pkg/motion"
	"leaflet-weaver/pkg/weave"
)

// Plan is a frozen queue together with the settings needed to execute it.
type Plan struct {
	Config *config.WeaveConfig
	Job    *job.Job
	Curve  *curve.Curve
	Ledger *ledger.Ledger
	Queue  *weave.Queue

	skipped int
	layers  int
}

// Summary describes a plan.
type Summary struct {
	Job       string
	Samples   int
	Anchors   int
	Layers    int
	Steps     int
	Skipped   int
	MaxHeight float64
	Bounds    geom.Rect
}

func (s Summary) String() string {
	return fmt.Sprintf("job %q: %d samples, %d anchors, %d layers, %d steps (%d skipped), max height %.3f mm, bounds %v",
		s.Job, s.Samples, s.Anchors, s.Layers, s.Steps, s.Skipped, s.MaxHeight, s.Bounds)
}

// NewPlan samples the curve and plans every pass of j. A nil job plans the
// [weave] layers of cfg.
func NewPlan(cfg *config.WeaveConfig, j *job.Job, logger *log.Logger) (*Plan, error) {
	if logger == nil {
		logger = log.GetLogger("weaver")
	}
	if j == nil {
		j = job.Default("default", cfg.Weave.Layers, cfg.Weave.Phases)
		if err := j.Validate(); err != nil {
			return nil, errors.Wrap(err, errors.ErrInvalidConfiguration, "default job").SetSection("weave")
		}
	}

	axis, ok := curve.ParseAxis(cfg.Curve.Axis)
	if !ok {
		return nil, errors.InvalidConfiguration("curve", "unknown axis %q", cfg.Curve.Axis)
	}
	c, err := curve.Sample(curve.Params{
		Radius:  cfg.Curve.Radius,
		Spacing: cfg.Curve.Spacing,
		Origin:  geom.Coord{X: cfg.Curve.OriginX, Y: cfg.Curve.OriginY},
		Axis:    axis,
	})
	if err != nil {
		return nil, err
	}
	l, err := ledger.New(c.Len(), cfg.Weave.BaseHeight, cfg.Weave.LayerThickness)
	if err != nil {
		return nil, err
	}
	p, err := weave.NewPlanner(c, l, weave.Config{
		AnchorCount: cfg.Anchors.Count,
		BundleWidth: cfg.Anchors.BundleWidth,
	}, logger.WithPrefix("planner"))
	if err != nil {
		return nil, err
	}
	if err := j.Apply(p); err != nil {
		return nil, err
	}

	plan := &Plan{
		Config:  cfg,
		Job:     j,
		Curve:   c,
		Ledger:  l,
		Queue:   p.Queue(),
		skipped: p.Skipped(),
		layers:  p.LayerCount(),
	}
	logger.WithFields(log.Fields{
		"job":     j.Name,
		"samples": c.Len(),
		"steps":   plan.Queue.Len(),
		"skipped": plan.skipped,
	}).Info("plan ready")
	return plan, nil
}

// Summary returns the plan's vital statistics.
func (p *Plan) Summary() Summary {
	return Summary{
		Job:       p.Job.Name,
		Samples:   p.Curve.Len(),
		Anchors:   p.Config.Anchors.Count,
		Layers:    p.layers,
		Steps:     p.Queue.Len(),
		Skipped:   p.skipped,
		MaxHeight: p.Ledger.MaxHeight(),
		Bounds:    p.Curve.Bounds(),
	}
}

// MotionConfig converts the [dance] and [weave] settings.
func (p *Plan) MotionConfig() (motion.Config, error) {
	d := p.Config.Dance
	z, err := motion.ParseAxis(d.ZAxis)
	if err != nil {
		return motion.Config{}, errors.Wrap(err, errors.ErrInvalidConfiguration, "z_axis").SetSection("dance")
	}
	return motion.Config{
		Heaven:         d.Heaven,
		LayerThickness: p.Config.Weave.LayerThickness,
		ContactHeight:  d.ContactHeight,
		Runway:         d.Runway,
		GroundFeed:     d.GroundFeed,
		AirFeed:        d.AirFeed,
		Stamp:          d.Stamp,
		ZAxis:          z,
	}, nil
}

// Station converts the [cleaning] settings.
func (p *Plan) Station() cleaning.Station {
	c := p.Config.Cleaning
	return cleaning.Station{
		SafeZ:      c.SafeZ,
		X:          c.X,
		Y:          c.Y,
		WipeZ:      c.WipeZ,
		TravelFeed: c.TravelFeed,
		WipeFeed:   c.WipeFeed,
		Strokes:    c.Strokes,
		Stroke:     c.Stroke,
		ExitX:      c.ExitX,
	}
}

// GCodeOptions converts the [output] settings.
func (p *Plan) GCodeOptions() gcode.Options {
	return gcode.Options{ValvePin: p.Config.Output.ValvePin, Precision: p.Config.Output.Precision}
}

// Rig binds a sequencer and a cleaning routine to sink.
func (p *Plan) Rig(sink motion.Sink, logger *log.Logger) (*motion.Sequencer, *cleaning.Routine, error) {
	mc, err := p.MotionConfig()
	if err != nil {
		return nil, nil, err
	}
	seq, err := motion.NewSequencer(mc, sink)
	if err != nil {
		return nil, nil, err
	}
	if logger == nil {
		logger = log.GetLogger("cleaning")
	}
	cl, err := cleaning.New(p.Station(), sink, mc.ZAxis, logger)
	if err != nil {
		return nil, nil, err
	}
	return seq, cl, nil
}

// ResumeRun reopens a journalled run and returns the queue index to start
// from. It refuses a run journalled for another job or queue length, since
// that index would point into a different weave.
func (p *Plan) ResumeRun(ctx context.Context, jr *journal.Journal, runID string) (int, error) {
	return jr.Resume(ctx, runID, p.Job.Name, p.Queue.Len())
}

// WriteGCode renders the whole queue, from step start, as a G-code program
// and parks the head at the end. It returns the number of lines written.
func (p *Plan) WriteGCode(w io.Writer, start int) (int, error) {
	if start < 0 || start > p.Queue.Len() {
		return 0, errors.IndexOutOfRange("weaver", start, p.Queue.Len()+1)
	}
	gw := gcode.NewWriter(w, p.GCodeOptions())
	seq, _, err := p.Rig(gw, log.Discard())
	if err != nil {
		return 0, err
	}
	s := p.Summary()
	if err := gw.Preamble(
		fmt.Sprintf("job: %s", s.Job),
		fmt.Sprintf("steps: %d layers: %d samples: %d", s.Steps, s.Layers, s.Samples),
	); err != nil {
		return 0, err
	}
	layer := -1
	for i := start; i < p.Queue.Len(); i++ {
		step := p.Queue.At(i)
		if step.Layer != layer {
			layer = step.Layer
			if err := gw.Comment("layer %d (%s)", layer, step.Pass); err != nil {
				return 0, err
			}
		}
		if err := seq.Dance(step.From, step.To); err != nil {
			return 0, errors.SinkError(err, i)
		}
	}
	if err := seq.Park(); err != nil {
		return 0, err
	}
	if err := gw.Flush(); err != nil {
		return 0, err
	}
	return gw.Lines(), nil
}
