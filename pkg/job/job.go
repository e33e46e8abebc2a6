// Package job reads the layer schedule for one build from a TOML file.
//
//	name = "leaflet-a"
//
//	[[pass]]
//	style = "bundles"
//	layers = 6
//	phases = [0.0, 0.0, 1.0, 1.0, 2.0, 2.0]
//
//	[[pass]]
//	style = "sweep"
//	z = 1.2
package job

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"

	"leaflet-weaver/pkg/errors"
	"leaflet-weaver/pkg/weave"
)

// Style selects how a pass is planned.
type Style string

const (
	// StyleBundles plans alternating forward and return weave layers.
	StyleBundles Style = "bundles"
	// StyleSweep plans one straight layer across the curve.
	StyleSweep Style = "sweep"
)

// Pass is one entry of the schedule.
type Pass struct {
	Style  Style     `toml:"style"`
	Layers int       `toml:"layers,omitempty"`
	Phases []float64 `toml:"phases,omitempty"`
	Z      float64   `toml:"z,omitempty"`
}

// Job is an ordered list of passes.
type Job struct {
	Name        string `toml:"name"`
	Description string `toml:"description,omitempty"`
	Passes      []Pass `toml:"pass"`
}

// Default is a single bundles pass.
func Default(name string, layers int, phases []float64) *Job {
	return &Job{
		Name:   name,
		Passes: []Pass{{Style: StyleBundles, Layers: layers, Phases: phases}},
	}
}

// Load reads and validates a job file.
func Load(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job file: %w", err)
	}
	j, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return j, nil
}

// Parse decodes and validates TOML job data. Unknown keys are rejected.
func Parse(data []byte) (*Job, error) {
	var j Job
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&j); err != nil {
		return nil, errors.Wrap(err, errors.ErrInvalidConfiguration, "decoding job").SetSection("job")
	}
	if err := j.Validate(); err != nil {
		return nil, err
	}
	return &j, nil
}

// Save writes j to path.
func Save(path string, j *Job) error {
	data, err := toml.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing job file: %w", err)
	}
	return nil
}

// Validate checks every pass.
func (j *Job) Validate() error {
	if len(j.Passes) == 0 {
		return errors.InvalidConfiguration("job", "job %q has no passes", j.Name)
	}
	for i, p := range j.Passes {
		switch p.Style {
		case StyleBundles:
			if p.Layers <= 0 {
				return errors.InvalidConfiguration("job", "pass %d: bundles need a positive layer count", i)
			}
			if len(p.Phases) > p.Layers {
				return errors.InvalidConfiguration("job", "pass %d: %d phases for %d layers", i, len(p.Phases), p.Layers)
			}
		case StyleSweep:
			if p.Z < 0 {
				return errors.InvalidConfiguration("job", "pass %d: sweep height must be non-negative", i)
			}
			if p.Layers != 0 || len(p.Phases) != 0 {
				return errors.InvalidConfiguration("job", "pass %d: sweep takes only z", i)
			}
		default:
			return errors.InvalidConfiguration("job", "pass %d: unknown style %q", i, p.Style)
		}
	}
	return nil
}

// Layers returns the number of layers the job plans.
func (j *Job) Layers() int {
	n := 0
	for _, p := range j.Passes {
		if p.Style == StyleSweep {
			n++
		} else {
			n += p.Layers
		}
	}
	return n
}

// Apply plans every pass, in order, into p.
func (j *Job) Apply(p *weave.Planner) error {
	for i, pass := range j.Passes {
		switch pass.Style {
		case StyleBundles:
			if err := p.Layers(pass.Layers, pass.Phases); err != nil {
				return errors.Wrap(err, errors.ErrInvalidConfiguration, fmt.Sprintf("pass %d", i)).SetSection("job")
			}
		case StyleSweep:
			p.Sweep(pass.Z)
		default:
			return errors.InvalidConfiguration("job", "pass %d: unknown style %q", i, pass.Style)
		}
	}
	return nil
}
