package motion

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"leaflet-weaver/pkg/errors"
)

// tierEpsilon absorbs rounding when a reserved height sits exactly on a
// layer boundary (0.45/0.15 evaluates just below 3).
const tierEpsilon = 1e-9

// Config holds the dance parameters.
type Config struct {
	// Heaven is the clearance lift above contact height for travel.
	Heaven float64
	// LayerThickness defines the tier used to stagger runways.
	LayerThickness float64
	// ContactHeight is the z used at both ends of every fiber. Zero means
	// 0.6 * LayerThickness.
	ContactHeight float64
	// Runway is the anti-backlash lead length laid along X.
	Runway float64

	GroundFeed float64
	AirFeed    float64

	// Stamp is the dwell after each runway.
	Stamp time.Duration

	// ZAxis receives vertical motion, AxisZ or AxisA.
	ZAxis Axis
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case !(c.Heaven > 0):
		return errors.InvalidConfiguration("motion", "heaven must be positive, got %v", c.Heaven)
	case !(c.LayerThickness > 0):
		return errors.InvalidConfiguration("motion", "layer thickness must be positive, got %v", c.LayerThickness)
	case c.ContactHeight < 0:
		return errors.InvalidConfiguration("motion", "contact height must be non-negative, got %v", c.ContactHeight)
	case c.Runway < 0:
		return errors.InvalidConfiguration("motion", "runway must be non-negative, got %v", c.Runway)
	case !(c.GroundFeed > 0) || !(c.AirFeed > 0):
		return errors.InvalidConfiguration("motion", "feed rates must be positive, got ground=%v air=%v", c.GroundFeed, c.AirFeed)
	case c.Stamp < 0:
		return errors.InvalidConfiguration("motion", "stamp dwell must be non-negative, got %v", c.Stamp)
	case c.ZAxis != AxisZ && c.ZAxis != AxisA:
		return errors.InvalidConfiguration("motion", "vertical axis must be Z or A, got %s", c.ZAxis)
	}
	return nil
}

// Sequencer expands fibers into primitive sequences and emits them to a
// sink. It holds no state between calls.
type Sequencer struct {
	cfg     Config
	contact float64
	lift    func(dz float64) AxisMove
	sink    Sink
}

// NewSequencer validates cfg and binds the sequencer to sink.
func NewSequencer(cfg Config, sink Sink) (*Sequencer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, errors.InvalidConfiguration("motion", "sink is required")
	}
	contact := cfg.ContactHeight
	if contact == 0 {
		contact = 0.6 * cfg.LayerThickness
	}
	z := cfg.ZAxis
	return &Sequencer{
		cfg:     cfg,
		contact: contact,
		lift:    func(dz float64) AxisMove { return AxisMove{Axis: z, Value: dz} },
		sink:    sink,
	}, nil
}

// Config returns the configuration with the contact height resolved.
func (s *Sequencer) Config() Config {
	c := s.cfg
	c.ContactHeight = s.contact
	return c
}

// Sink returns the sink primitives are emitted to.
func (s *Sequencer) Sink() Sink { return s.sink }

// Tier returns floor(z / layer thickness).
func (s *Sequencer) Tier(z float64) int {
	return int(math.Floor(z/s.cfg.LayerThickness + tierEpsilon))
}

// Steps returns the primitive sequence for a fiber from src to dst. The z
// components are the reserved heights; they select the runway tier only.
func (s *Sequencer) Steps(src, dst mgl64.Vec3) []Primitive {
	rway := -s.cfg.Runway
	if dst.X() > src.X() {
		rway = s.cfg.Runway
	}

	sx := src.X() - float64(s.Tier(src.Z()))*rway
	dx := dst.X() + float64(s.Tier(dst.Z()))*rway
	h := s.cfg.Heaven
	top := s.contact + h
	z := s.cfg.ZAxis

	return []Primitive{
		SetFeed(s.cfg.AirFeed),
		MoveTo(AxisMove{AxisX, sx - rway}, AxisMove{AxisY, src.Y()}, AxisMove{z, top}),
		MoveBy(s.lift(-h)),
		Actuator(true),
		SetFeed(s.cfg.GroundFeed),
		MoveBy(AxisMove{AxisX, rway}),
		Wait(s.cfg.Stamp),
		MoveBy(s.lift(h)),
		SetFeed(s.cfg.AirFeed),
		MoveTo(AxisMove{AxisX, dx}, AxisMove{AxisY, dst.Y()}, AxisMove{z, top}),
		MoveBy(s.lift(-h)),
		SetFeed(s.cfg.GroundFeed),
		MoveBy(AxisMove{AxisX, rway}),
		Actuator(false),
		Wait(s.cfg.Stamp),
		MoveBy(s.lift(h)),
		SetFeed(s.cfg.AirFeed),
	}
}

// Dance emits the sequence for one fiber. It stops at the first sink error
// and returns it unwrapped; the caller decides whether the run survives.
func (s *Sequencer) Dance(src, dst mgl64.Vec3) error {
	for _, p := range s.Steps(src, dst) {
		if err := s.sink.Emit(p); err != nil {
			return err
		}
	}
	return nil
}

// Park lifts the head to clearance above contact height with the actuator
// closed.
func (s *Sequencer) Park() error {
	for _, p := range []Primitive{
		Actuator(false),
		SetFeed(s.cfg.AirFeed),
		MoveTo(AxisMove{s.cfg.ZAxis, s.contact + s.cfg.Heaven}),
	} {
		if err := s.sink.Emit(p); err != nil {
			return err
		}
	}
	return nil
}
