package config

import (
	"time"
)

// CurveConfig holds the [curve] section.
type CurveConfig struct {
	Radius  float64 // mm
	Spacing float64 // mm between samples
	OriginX float64
	OriginY float64
	Axis    string // "y" or "x", the stepped axis
}

// AnchorConfig holds the [anchors] section.
type AnchorConfig struct {
	Count       int
	BundleWidth int
}

// LayerConfig holds the [weave] section.
type LayerConfig struct {
	Layers         int
	Phases         []float64 // optional per-layer phase schedule
	LayerThickness float64
	BaseHeight     float64 // first deposit height, defaults to 0.6 * thickness
}

// DanceConfig holds the [dance] section.
type DanceConfig struct {
	Heaven        float64
	Runway        float64
	GroundFeed    float64
	AirFeed       float64
	Stamp         time.Duration
	ContactHeight float64 // 0 means 0.6 * layer thickness
	ZAxis         string  // "z" or "a"
}

// CleaningConfig holds the [cleaning] section.
type CleaningConfig struct {
	SafeZ      float64
	X          float64
	Y          float64
	WipeZ      float64
	TravelFeed float64
	WipeFeed   float64
	Strokes    int
	Stroke     float64
	ExitX      float64
}

// OutputConfig holds the [output] section.
type OutputConfig struct {
	ValvePin  string
	Precision int
	Device    string // serial device or unix socket for streaming
	BaudRate  int
}

// WeaveConfig is the complete machine and pattern description.
type WeaveConfig struct {
	Curve    CurveConfig
	Anchors  AnchorConfig
	Weave    LayerConfig
	Dance    DanceConfig
	Cleaning CleaningConfig
	Output   OutputConfig
}

// DefaultWeaveConfig returns the reference 25 mm leaflet on the reference
// rig.
func DefaultWeaveConfig() *WeaveConfig {
	return &WeaveConfig{
		Curve:   CurveConfig{Radius: 12.5, Spacing: 0.1, Axis: "y"},
		Anchors: AnchorConfig{Count: 8, BundleWidth: 10},
		Weave: LayerConfig{
			Layers:         6,
			LayerThickness: 0.15,
			BaseHeight:     0.6 * 0.15,
		},
		Dance: DanceConfig{
			Heaven:     10,
			Runway:     1,
			GroundFeed: 100,
			AirFeed:    500,
			Stamp:      500 * time.Millisecond,
			ZAxis:      "z",
		},
		Cleaning: CleaningConfig{
			SafeZ:      45.2,
			X:          283,
			Y:          13,
			WipeZ:      10,
			TravelFeed: 200,
			WipeFeed:   500,
			Strokes:    100,
			Stroke:     2,
			ExitX:      50,
		},
		Output: OutputConfig{ValvePin: "valve", Precision: 4, BaudRate: 115200},
	}
}

// ParseWeaveConfig loads and parses a weave config file.
func ParseWeaveConfig(path string) (*WeaveConfig, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	return WeaveFromConfig(c)
}

// ParseWeaveConfigString parses weave config text.
func ParseWeaveConfigString(data string) (*WeaveConfig, error) {
	c, err := LoadString(data)
	if err != nil {
		return nil, err
	}
	return WeaveFromConfig(c)
}

// WeaveFromConfig reads every weave section from c. Missing sections take
// defaults; unknown sections or options are an error.
func WeaveFromConfig(c *Config) (*WeaveConfig, error) {
	w := DefaultWeaveConfig()
	steps := []func(*Config, *WeaveConfig) error{
		parseCurve,
		parseAnchors,
		parseLayers,
		parseDance,
		parseCleaning,
		parseOutput,
	}
	for _, step := range steps {
		if err := step(c, w); err != nil {
			return nil, err
		}
	}
	if err := c.CheckUnused(); err != nil {
		return nil, err
	}
	return w, nil
}

// section returns the named section or an empty one so that fallbacks
// apply uniformly.
func section(c *Config, name string) *Section {
	if s := c.GetSectionOptional(name); s != nil {
		return s
	}
	return newSection(name, nil)
}

func parseCurve(c *Config, w *WeaveConfig) error {
	s := section(c, "curve")
	var err error
	d := w.Curve
	if w.Curve.Radius, err = s.GetFloatIn("radius", Above(0), d.Radius); err != nil {
		return err
	}
	if w.Curve.Spacing, err = s.GetFloatIn("spacing", Above(0), d.Spacing); err != nil {
		return err
	}
	if w.Curve.OriginX, err = s.GetFloat("origin_x", d.OriginX); err != nil {
		return err
	}
	if w.Curve.OriginY, err = s.GetFloat("origin_y", d.OriginY); err != nil {
		return err
	}
	if w.Curve.Axis, err = s.GetChoice("axis", []string{"y", "x"}, d.Axis); err != nil {
		return err
	}
	return nil
}

func parseAnchors(c *Config, w *WeaveConfig) error {
	s := section(c, "anchors")
	var err error
	if w.Anchors.Count, err = s.GetIntWithMin("count", 2, w.Anchors.Count); err != nil {
		return err
	}
	if w.Anchors.Count%2 != 0 {
		return ErrOutOfRange("anchors", "count", float64(w.Anchors.Count), "must be even")
	}
	if w.Anchors.BundleWidth, err = s.GetIntWithMin("bundle_width", 1, w.Anchors.BundleWidth); err != nil {
		return err
	}
	return nil
}

func parseLayers(c *Config, w *WeaveConfig) error {
	s := section(c, "weave")
	var err error
	if w.Weave.Layers, err = s.GetIntWithMin("layers", 0, w.Weave.Layers); err != nil {
		return err
	}
	if w.Weave.Phases, err = s.GetFloatList("phases", ",", nil); err != nil {
		return err
	}
	if w.Weave.LayerThickness, err = s.GetFloatIn("layer_thickness", Above(0), w.Weave.LayerThickness); err != nil {
		return err
	}
	if w.Weave.BaseHeight, err = s.GetFloatIn("base_height", AtLeast(0), 0.6*w.Weave.LayerThickness); err != nil {
		return err
	}
	return nil
}

func parseDance(c *Config, w *WeaveConfig) error {
	s := section(c, "dance")
	d := &w.Dance
	var err error
	if d.Heaven, err = s.GetFloatIn("heaven", Above(0), d.Heaven); err != nil {
		return err
	}
	if d.Runway, err = s.GetFloatIn("runway", AtLeast(0), d.Runway); err != nil {
		return err
	}
	if d.GroundFeed, err = s.GetFloatIn("ground_feed", Above(0), d.GroundFeed); err != nil {
		return err
	}
	if d.AirFeed, err = s.GetFloatIn("air_feed", Above(0), d.AirFeed); err != nil {
		return err
	}
	if d.Stamp, err = s.GetDuration("stamp", d.Stamp); err != nil {
		return err
	}
	if d.ContactHeight, err = s.GetFloatIn("contact_height", AtLeast(0), d.ContactHeight); err != nil {
		return err
	}
	if d.ZAxis, err = s.GetChoice("z_axis", []string{"z", "a"}, d.ZAxis); err != nil {
		return err
	}
	return nil
}

func parseCleaning(c *Config, w *WeaveConfig) error {
	s := section(c, "cleaning")
	cl := &w.Cleaning
	floats := []struct {
		name   string
		dst    *float64
		bounds Bound
	}{
		{"safe_z", &cl.SafeZ, Bound{}},
		{"x", &cl.X, Bound{}},
		{"y", &cl.Y, Bound{}},
		{"wipe_z", &cl.WipeZ, Bound{}},
		{"travel_feed", &cl.TravelFeed, Above(0)},
		{"wipe_feed", &cl.WipeFeed, Above(0)},
		{"stroke", &cl.Stroke, AtLeast(0)},
		{"exit_x", &cl.ExitX, Bound{}},
	}
	for _, f := range floats {
		v, err := s.GetFloatIn(f.name, f.bounds, *f.dst)
		if err != nil {
			return err
		}
		*f.dst = v
	}
	var err error
	if cl.Strokes, err = s.GetIntWithMin("strokes", 0, cl.Strokes); err != nil {
		return err
	}
	if cl.SafeZ <= cl.WipeZ {
		return ErrOutOfRange("cleaning", "safe_z", cl.SafeZ, "must be above wipe_z")
	}
	return nil
}

func parseOutput(c *Config, w *WeaveConfig) error {
	s := section(c, "output")
	o := &w.Output
	var err error
	if o.ValvePin, err = s.Get("valve_pin", o.ValvePin); err != nil {
		return err
	}
	if o.Precision, err = s.GetIntWithMin("precision", 1, o.Precision); err != nil {
		return err
	}
	if o.Device, err = s.Get("device", o.Device); err != nil {
		return err
	}
	if o.BaudRate, err = s.GetIntWithMin("baud", 1, o.BaudRate); err != nil {
		return err
	}
	return nil
}
