package gcode

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"leaflet-weaver/pkg/motion"
)

func TestEncode(t *testing.T) {
	enc := NewEncoder(Options{})
	var got []string
	for _, p := range []motion.Primitive{
		motion.SetFeed(500),
		motion.MoveTo(motion.AxisMove{Axis: motion.AxisX, Value: 4}, motion.AxisMove{Axis: motion.AxisY, Value: 2}, motion.AxisMove{Axis: motion.AxisZ, Value: 10.09}),
		motion.MoveBy(motion.AxisMove{Axis: motion.AxisZ, Value: -10}),
		motion.Actuator(true),
		motion.MoveBy(motion.AxisMove{Axis: motion.AxisX, Value: -1.5}),
		motion.Wait(50 * time.Millisecond),
		motion.Actuator(false),
		motion.MoveTo(motion.AxisMove{Axis: motion.AxisA, Value: 0.00001}),
	} {
		lines, err := enc.Encode(p)
		if err != nil {
			t.Fatalf("Encode(%s): %v", p, err)
		}
		got = append(got, lines...)
	}

	want := []string{
		"G1 F500",
		"G90",
		"G1 X4 Y2 Z10.09",
		"G91",
		"G1 Z-10",
		"SET_PIN PIN=valve VALUE=1",
		"G1 X-1.5",
		"G4 P50",
		"SET_PIN PIN=valve VALUE=0",
		"G90",
		"G1 A0",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("lines (-want +got):\n%s", diff)
	}
}

func TestEncodeErrors(t *testing.T) {
	enc := NewEncoder(DefaultOptions())
	for _, p := range []motion.Primitive{
		motion.MoveTo(),
		motion.SetFeed(0),
		{Kind: motion.Kind(42)},
	} {
		if _, err := enc.Encode(p); err == nil {
			t.Errorf("Encode(%+v) succeeded", p)
		}
	}
}

func TestEncodeOptions(t *testing.T) {
	enc := NewEncoder(Options{ValvePin: "dispenser", Precision: 2})
	lines, _ := enc.Encode(motion.Actuator(true))
	if lines[0] != "SET_PIN PIN=dispenser VALUE=1" {
		t.Errorf("got %q", lines[0])
	}
	lines, _ = enc.Encode(motion.MoveBy(motion.AxisMove{Axis: motion.AxisX, Value: 1.23456}))
	if lines[1] != "G1 X1.23" {
		t.Errorf("got %q", lines[1])
	}
}

func TestEncoderWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, DefaultOptions())
	if err := w.Preamble("leaflet-weaver", "bundles x2"); err != nil {
		t.Fatal(err)
	}
	if err := w.Emit(motion.MoveTo(motion.AxisMove{Axis: motion.AxisX, Value: 1})); err != nil {
		t.Fatal(err)
	}
	if err := w.Comment("step %d", 3); err != nil {
		t.Fatal(err)
	}
	if err := w.Emit(motion.MoveBy(motion.AxisMove{Axis: motion.AxisY, Value: 2})); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	want := "; leaflet-weaver\n; bundles x2\nG21\nG90\nG1 X1\n; step 3\nG91\nG1 Y2\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("output (-want +got):\n%s", diff)
	}
	if w.Lines() != 8 {
		t.Errorf("Lines = %d, want 8", w.Lines())
	}
}
