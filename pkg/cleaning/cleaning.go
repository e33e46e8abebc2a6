// Package cleaning drives the head to the wiping station and back.
package cleaning

import (
	"context"

	"leaflet-weaver/pkg/errors"
	"leaflet-weaver/pkg/log"
	"leaflet-weaver/pkg/motion"
)

// Station describes the wiping pad and how to approach it.
type Station struct {
	// SafeZ is an absolute height that clears the build and the pad.
	SafeZ float64
	// X, Y locate the pad.
	X, Y float64
	// WipeZ is the absolute height at which the nozzle touches the pad.
	WipeZ float64

	TravelFeed float64
	WipeFeed   float64

	// Strokes is the number of wipe moves per axis. Each move reverses
	// the previous one and the alternation carries over from X to Y.
	Strokes int
	// Stroke is the wipe amplitude.
	Stroke float64
	// ExitX is the relative X move away from the pad after retreating.
	ExitX float64
}

// DefaultStation is the pad layout of the reference rig.
func DefaultStation() Station {
	return Station{
		SafeZ:      45.2,
		X:          283,
		Y:          13,
		WipeZ:      10,
		TravelFeed: 200,
		WipeFeed:   500,
		Strokes:    100,
		Stroke:     2,
		ExitX:      50,
	}
}

// Validate checks the station.
func (s Station) Validate() error {
	switch {
	case s.SafeZ <= s.WipeZ:
		return errors.InvalidConfiguration("cleaning", "safe z %v must be above wipe z %v", s.SafeZ, s.WipeZ)
	case !(s.TravelFeed > 0) || !(s.WipeFeed > 0):
		return errors.InvalidConfiguration("cleaning", "feed rates must be positive")
	case s.Strokes < 0:
		return errors.InvalidConfiguration("cleaning", "stroke count must be non-negative, got %d", s.Strokes)
	case s.Stroke < 0:
		return errors.InvalidConfiguration("cleaning", "stroke length must be non-negative, got %v", s.Stroke)
	}
	return nil
}

// Routine emits the cleaning sequence to a sink.
type Routine struct {
	station Station
	sink    motion.Sink
	z       motion.Axis
	log     *log.Logger
}

// New creates a routine. z is the vertical axis shared with the sequencer.
func New(st Station, sink motion.Sink, z motion.Axis, logger *log.Logger) (*Routine, error) {
	if err := st.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, errors.InvalidConfiguration("cleaning", "sink is required")
	}
	if logger == nil {
		logger = log.GetLogger("cleaning")
	}
	return &Routine{station: st, sink: sink, z: z, log: logger}, nil
}

// Station returns the station layout.
func (r *Routine) Station() Station { return r.station }

// Clean closes the valve, wipes the nozzle along X then Y and leaves the
// head above the pad offset by ExitX. If ctx is cancelled during the
// wipe, the remaining strokes are skipped but the head still retreats
// before the context error is returned.
func (r *Routine) Clean(ctx context.Context) error {
	st := r.station
	approach := []motion.Primitive{
		motion.Actuator(false),
		motion.SetFeed(st.TravelFeed),
		motion.MoveTo(motion.AxisMove{Axis: r.z, Value: st.SafeZ}),
		motion.MoveTo(motion.AxisMove{Axis: motion.AxisX, Value: st.X}, motion.AxisMove{Axis: motion.AxisY, Value: st.Y}),
		motion.MoveTo(motion.AxisMove{Axis: r.z, Value: st.WipeZ}),
		motion.SetFeed(st.WipeFeed),
	}
	if err := r.emit(approach...); err != nil {
		return err
	}

	wiped := 0
	sign := 1.0
	var cancelled error
wipe:
	for _, axis := range []motion.Axis{motion.AxisX, motion.AxisY} {
		for i := 0; i < st.Strokes; i++ {
			if err := ctx.Err(); err != nil {
				cancelled = err
				break wipe
			}
			if err := r.emit(motion.MoveBy(motion.AxisMove{Axis: axis, Value: sign * st.Stroke})); err != nil {
				return err
			}
			sign = -sign
			wiped++
		}
	}

	retreat := []motion.Primitive{
		motion.SetFeed(st.TravelFeed),
		motion.MoveTo(motion.AxisMove{Axis: r.z, Value: st.SafeZ}),
		motion.MoveBy(motion.AxisMove{Axis: motion.AxisX, Value: st.ExitX}),
	}
	if err := r.emit(retreat...); err != nil {
		return err
	}

	entry := r.log.WithField("strokes", wiped)
	if cancelled != nil {
		entry.Warn("cleaning interrupted")
		return cancelled
	}
	entry.Debug("nozzle wiped")
	return nil
}

func (r *Routine) emit(ps ...motion.Primitive) error {
	for _, p := range ps {
		if err := r.sink.Emit(p); err != nil {
			return err
		}
	}
	return nil
}
