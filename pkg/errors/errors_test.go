package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestHostErrorMessage(t *testing.T) {
	err := ConfigValidationError("curve", "radius", "must be positive")
	got := err.Error()
	if !strings.HasPrefix(got, "[CONFIG_VALIDATION:radius]") {
		t.Errorf("Error() = %q", got)
	}

	wrapped := SinkError(fmt.Errorf("port closed"), 7)
	if !strings.HasSuffix(wrapped.Error(), ": port closed") {
		t.Errorf("Error() = %q, want cause appended", wrapped.Error())
	}
	if wrapped.Context["step"] != 7 {
		t.Errorf("step context = %v", wrapped.Context["step"])
	}
}

func TestIsWalksChain(t *testing.T) {
	cause := stderrors.New("disk full")
	inner := JournalError(cause, "record step")
	outer := Wrap(inner, ErrRuntime, "run aborted")
	plain := fmt.Errorf("context: %w", outer)

	tests := []struct {
		code ErrorCode
		want bool
	}{
		{ErrRuntime, true},
		{ErrJournal, true},
		{ErrSink, false},
	}
	for _, tt := range tests {
		if got := Is(plain, tt.code); got != tt.want {
			t.Errorf("Is(%s) = %v, want %v", tt.code, got, tt.want)
		}
	}
	if !stderrors.Is(plain, cause) {
		t.Error("cause lost from chain")
	}
	if Is(nil, ErrRuntime) {
		t.Error("Is(nil) = true")
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		config bool
		fatal  bool
	}{
		{"invalid", InvalidConfiguration("planner", "bundle width %d", 0), true, false},
		{"section", ConfigSectionError("dance"), true, false},
		{"range", IndexOutOfRange("curve", 12, 10), false, false},
		{"sink", SinkError(stderrors.New("x"), 1), false, true},
		{"cleaning", CleaningError(stderrors.New("x"), 1), false, true},
		{"runtime", RuntimeError("x"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConfig(tt.err); got != tt.config {
				t.Errorf("IsConfig = %v, want %v", got, tt.config)
			}
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal = %v, want %v", got, tt.fatal)
			}
		})
	}
}
