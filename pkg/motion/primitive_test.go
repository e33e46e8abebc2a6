package motion

import (
	stderrors "errors"
	"testing"
	"time"

	"leaflet-weaver/pkg/errors"
)

func TestPrimitiveString(t *testing.T) {
	tests := []struct {
		p    Primitive
		want string
	}{
		{MoveTo(AxisMove{AxisX, 1}, AxisMove{AxisZ, 2.5}), "move_to X=1.0000 Z=2.5000"},
		{MoveBy(AxisMove{AxisA, -10}), "move A=-10.0000"},
		{Actuator(true), "valve on"},
		{Actuator(false), "valve off"},
		{Wait(500 * time.Millisecond), "dwell 500ms"},
		{SetFeed(200), "feed 200"},
	}
	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestParseAxis(t *testing.T) {
	for in, want := range map[string]Axis{"x": AxisX, "Y": AxisY, " z ": AxisZ, "a": AxisA} {
		got, err := ParseAxis(in)
		if err != nil || got != want {
			t.Errorf("ParseAxis(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseAxis("B"); !errors.IsInvalidConfiguration(err) {
		t.Errorf("ParseAxis(B): err = %v, want invalid configuration", err)
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	_ = r.Emit(SetFeed(1))
	_ = r.Emit(Actuator(true))
	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}
	got := r.Primitives()
	got[0] = Wait(time.Second)
	if r.Primitives()[0].Kind != KindFeed {
		t.Error("Primitives returned internal slice")
	}
	r.Reset()
	if r.Len() != 0 {
		t.Errorf("Len after Reset = %d", r.Len())
	}
}

func TestTee(t *testing.T) {
	var a, b Recorder
	sink := Tee(&a, &b)
	if err := sink.Emit(Actuator(true)); err != nil {
		t.Fatal(err)
	}
	if a.Len() != 1 || b.Len() != 1 {
		t.Errorf("lens = %d, %d; want 1, 1", a.Len(), b.Len())
	}

	boom := stderrors.New("down")
	var c Recorder
	sink = Tee(SinkFunc(func(Primitive) error { return boom }), &c)
	if err := sink.Emit(Actuator(false)); !stderrors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
	if c.Len() != 0 {
		t.Error("Tee continued after error")
	}
}
