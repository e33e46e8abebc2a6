package journal

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"testing"
	"time"

	"leaflet-weaver/pkg/errors"
	"leaflet-weaver/pkg/log"
	"leaflet-weaver/pkg/weave"
)

func openTest(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"), log.Discard())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	j := openTest(t)

	id, err := j.BeginRun(ctx, "leaflet-a", 5)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if len(id) != 36 {
		t.Errorf("run id %q is not a uuid", id)
	}

	obs := j.Observer(ctx, id)
	for i := 0; i < 3; i++ {
		step := weave.Step{Binding: weave.Binding{Source: i, Dest: 10 - i, Pass: weave.PassForward}}
		obs.OnStep(i, step, time.Millisecond)
	}
	obs.OnCleaning(2, time.Second)

	if err := j.FinishRun(ctx, id, StatusHalted, stderrors.New("valve stuck")); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	r, err := j.Run(ctx, id)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.Job != "leaflet-a" || r.Steps != 5 || r.Completed != 3 || r.Cleanings != 1 {
		t.Errorf("run = %+v", r)
	}
	if r.Status != StatusHalted || r.Error != "valve stuck" {
		t.Errorf("status = %q error = %q", r.Status, r.Error)
	}
	if r.StartedAt.IsZero() {
		t.Error("StartedAt not parsed")
	}

	next, err := j.Resume(ctx, id, "leaflet-a", 5)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if next != 3 {
		t.Errorf("resume at %d, want 3", next)
	}
	r, _ = j.Run(ctx, id)
	if r.Status != StatusRunning || r.Error != "" {
		t.Errorf("after resume status = %q error = %q", r.Status, r.Error)
	}
}

func TestResumeFreshRun(t *testing.T) {
	ctx := context.Background()
	j := openTest(t)
	id, err := j.BeginRun(ctx, "empty", 4)
	if err != nil {
		t.Fatal(err)
	}
	next, err := j.Resume(ctx, id, "empty", 4)
	if err != nil {
		t.Fatal(err)
	}
	if next != 0 {
		t.Errorf("resume at %d, want 0", next)
	}
}

func TestResumeRejectsChangedPlan(t *testing.T) {
	ctx := context.Background()
	j := openTest(t)
	id, _ := j.BeginRun(ctx, "leaflet-a", 100)
	if err := j.RecordStep(ctx, id, 40, weave.Binding{}, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := j.FinishRun(ctx, id, StatusHalted, stderrors.New("cancelled")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		job   string
		steps int
	}{
		{"more layers", "leaflet-a", 300},
		{"other job", "leaflet-b", 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := j.Resume(ctx, id, tt.job, tt.steps); !errors.IsInvalidConfiguration(err) {
				t.Errorf("Resume: err = %v, want invalid configuration", err)
			}
		})
	}

	r, _ := j.Run(ctx, id)
	if r.Status != StatusHalted || r.Error != "cancelled" {
		t.Errorf("refused resume changed the run: status = %q error = %q", r.Status, r.Error)
	}
}

func TestRecordStepTwice(t *testing.T) {
	ctx := context.Background()
	j := openTest(t)
	id, _ := j.BeginRun(ctx, "dup", 2)
	b := weave.Binding{Source: 1, Dest: 2}
	for k := 0; k < 2; k++ {
		if err := j.RecordStep(ctx, id, 0, b, time.Millisecond); err != nil {
			t.Fatalf("RecordStep #%d: %v", k, err)
		}
	}
	r, _ := j.Run(ctx, id)
	if r.Completed != 1 {
		t.Errorf("completed = %d, want 1", r.Completed)
	}
}

func TestUnknownRun(t *testing.T) {
	ctx := context.Background()
	j := openTest(t)
	if _, err := j.Resume(ctx, "nope", "a", 1); !stderrors.Is(err, ErrUnknownRun) {
		t.Errorf("Resume: err = %v", err)
	}
	err := j.FinishRun(ctx, "nope", StatusDone, nil)
	if !stderrors.Is(err, ErrUnknownRun) || !errors.Is(err, errors.ErrJournal) {
		t.Errorf("FinishRun: err = %v", err)
	}
}

func TestRunsAndReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(ctx, path, log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	first, _ := j.BeginRun(ctx, "a", 1)
	second, _ := j.BeginRun(ctx, "b", 1)
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	j, err = Open(ctx, path, log.Discard())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()
	runs, err := j.Runs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != second || runs[1].ID != first {
		t.Errorf("runs = %v", runs)
	}
}
