package weaver

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

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

const smallRig = `
[curve]
radius: 8
spacing: 1

[anchors]
count: 4
bundle_width: 2

[weave]
layers: 2
layer_thickness: 0.5

[dance]
heaven: 5
z_axis: a

[cleaning]
strokes: 4

[output]
valve_pin: nozzle
precision: 3
`

func smallConfig(t *testing.T) *config.WeaveConfig {
	t.Helper()
	cfg, err := config.ParseWeaveConfigString(smallRig)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func TestNewPlanMatchesPlanner(t *testing.T) {
	cfg := smallConfig(t)
	plan, err := NewPlan(cfg, nil, log.Discard())
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}

	c, err := curve.Sample(curve.Params{Radius: 8, Spacing: 1})
	if err != nil {
		t.Fatal(err)
	}
	l, err := ledger.New(c.Len(), 0.3, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	p, err := weave.NewPlanner(c, l, weave.Config{AnchorCount: 4, BundleWidth: 2}, log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Layers(2, nil); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(p.Queue().Steps(), plan.Queue.Steps()); diff != "" {
		t.Errorf("queue (-direct +plan):\n%s", diff)
	}
	s := plan.Summary()
	if s.Job != "default" || s.Layers != 2 || s.Steps != p.Len() || s.Skipped != p.Skipped() || s.Samples != c.Len() {
		t.Errorf("summary = %+v", s)
	}
	if !strings.Contains(s.String(), `job "default"`) {
		t.Errorf("summary string = %q", s.String())
	}
}

func TestNewPlanWithJob(t *testing.T) {
	cfg := smallConfig(t)
	j := &job.Job{Name: "sweep-only", Passes: []job.Pass{{Style: job.StyleSweep, Z: 0.2}}}
	plan, err := NewPlan(cfg, j, log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if got, want := plan.Queue.Len(), plan.Curve.Len()/2; got != want {
		t.Errorf("sweep steps = %d, want %d", got, want)
	}
	for _, st := range plan.Queue.Steps() {
		if st.Pass != weave.PassSweep || st.SourceZ != 0.2 {
			t.Fatalf("unexpected step %v", st.Binding)
		}
	}
}

func TestConversions(t *testing.T) {
	plan, err := NewPlan(smallConfig(t), nil, log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	mc, err := plan.MotionConfig()
	if err != nil {
		t.Fatal(err)
	}
	if mc.ZAxis != motion.AxisA || mc.Heaven != 5 || mc.LayerThickness != 0.5 {
		t.Errorf("motion config = %+v", mc)
	}
	if st := plan.Station(); st.Strokes != 4 || st.SafeZ != 45.2 {
		t.Errorf("station = %+v", st)
	}
	if o := plan.GCodeOptions(); o != (gcode.Options{ValvePin: "nozzle", Precision: 3}) {
		t.Errorf("gcode options = %+v", o)
	}

	rec := &motion.Recorder{}
	seq, cl, err := plan.Rig(rec, log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if seq.Sink() != motion.Sink(rec) || cl.Station().Strokes != 4 {
		t.Error("rig not bound to the recorder")
	}
}

func TestWriteGCodeReplays(t *testing.T) {
	plan, err := NewPlan(smallConfig(t), nil, log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	lines, err := plan.WriteGCode(&buf, 0)
	if err != nil {
		t.Fatalf("WriteGCode: %v", err)
	}
	if lines != strings.Count(buf.String(), "\n") {
		t.Errorf("lines = %d, text has %d", lines, strings.Count(buf.String(), "\n"))
	}
	if !strings.HasPrefix(buf.String(), "; job: default\n") {
		t.Errorf("preamble:\n%.80s", buf.String())
	}
	if !strings.Contains(buf.String(), "; layer 1 (return)") {
		t.Error("missing layer marker")
	}

	m := gcode.NewMachine(plan.GCodeOptions(), log.Discard())
	if err := m.Replay(&buf); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	st := m.Stats()
	if st.Cycles != plan.Queue.Len() {
		t.Errorf("valve cycles = %d, want one per step (%d)", st.Cycles, plan.Queue.Len())
	}
	if st.Unknown != 0 {
		t.Errorf("unknown commands = %d", st.Unknown)
	}
	if m.ValveOpen() {
		t.Error("valve left open")
	}
	if z := m.Position("A"); math.Abs(z-5.3) > 1e-9 {
		t.Errorf("parked at A=%v, want contact 0.3 + heaven 5", z)
	}
}

func TestWriteGCodeFromMiddle(t *testing.T) {
	plan, err := NewPlan(smallConfig(t), nil, log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	var all, tail bytes.Buffer
	if _, err := plan.WriteGCode(&all, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := plan.WriteGCode(&tail, 2); err != nil {
		t.Fatal(err)
	}
	m := gcode.NewMachine(plan.GCodeOptions(), log.Discard())
	if err := m.Replay(&tail); err != nil {
		t.Fatal(err)
	}
	if got := m.Stats().Cycles; got != plan.Queue.Len()-2 {
		t.Errorf("cycles = %d, want %d", got, plan.Queue.Len()-2)
	}
	if tail.Len() >= all.Len() {
		t.Error("resumed program is not shorter")
	}

	if _, err := plan.WriteGCode(&tail, plan.Queue.Len()+1); !errors.Is(err, errors.ErrIndexOutOfRange) {
		t.Errorf("start past end: err = %v", err)
	}
}

func TestResumeRunChecksPlan(t *testing.T) {
	ctx := context.Background()
	jr, err := journal.Open(ctx, filepath.Join(t.TempDir(), "runs.db"), log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer jr.Close()

	cfg := smallConfig(t)
	plan, err := NewPlan(cfg, nil, log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	id, err := jr.BeginRun(ctx, plan.Job.Name, plan.Queue.Len())
	if err != nil {
		t.Fatal(err)
	}
	if err := jr.RecordStep(ctx, id, 2, plan.Queue.At(2).Binding, 0); err != nil {
		t.Fatal(err)
	}
	if err := jr.FinishRun(ctx, id, journal.StatusHalted, nil); err != nil {
		t.Fatal(err)
	}

	grown := smallConfig(t)
	grown.Weave.Layers = 4
	longer, err := NewPlan(grown, nil, log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if longer.Queue.Len() == plan.Queue.Len() {
		t.Fatalf("extra layers left the queue at %d steps", plan.Queue.Len())
	}
	if _, err := longer.ResumeRun(ctx, jr, id); !errors.IsInvalidConfiguration(err) {
		t.Errorf("resume with more layers: err = %v, want invalid configuration", err)
	}

	next, err := plan.ResumeRun(ctx, jr, id)
	if err != nil {
		t.Fatalf("ResumeRun: %v", err)
	}
	if next != 3 {
		t.Errorf("resume at %d, want 3", next)
	}
}

func TestNewPlanRejects(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Curve.Axis = "q"
	if _, err := NewPlan(cfg, nil, log.Discard()); !errors.IsInvalidConfiguration(err) {
		t.Errorf("bad axis: err = %v", err)
	}

	cfg = smallConfig(t)
	cfg.Weave.Layers = 0
	if _, err := NewPlan(cfg, nil, log.Discard()); !errors.IsInvalidConfiguration(err) {
		t.Errorf("no layers: err = %v", err)
	}
}
