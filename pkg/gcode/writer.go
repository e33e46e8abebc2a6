package gcode

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"leaflet-weaver/pkg/motion"
)

// Writer is a motion sink that writes G-code text.
type Writer struct {
	mu    sync.Mutex
	w     *bufio.Writer
	enc   *Encoder
	lines int
}

// NewWriter creates a writer on w.
func NewWriter(w io.Writer, opts Options) *Writer {
	return &Writer{w: bufio.NewWriter(w), enc: NewEncoder(opts)}
}

// Preamble writes a header comment, millimeter units and absolute mode.
func (w *Writer) Preamble(comments ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, c := range comments {
		if err := w.writeLine("; " + c); err != nil {
			return err
		}
	}
	w.enc.Reset()
	if err := w.writeLine("G21"); err != nil {
		return err
	}
	return w.emitLocked(motion.MoveTo())
}

// Comment writes a comment line.
func (w *Writer) Comment(format string, args ...interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeLine("; " + fmt.Sprintf(format, args...))
}

// Emit writes the lines for p.
func (w *Writer) Emit(p motion.Primitive) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.emitLocked(p)
}

func (w *Writer) emitLocked(p motion.Primitive) error {
	if p.Kind == motion.KindTravel && len(p.Moves) == 0 {
		// mode switch only
		if !w.enc.known || w.enc.relative != p.Relative {
			line := "G90"
			if p.Relative {
				line = "G91"
			}
			w.enc.relative, w.enc.known = p.Relative, true
			return w.writeLine(line)
		}
		return nil
	}
	lines, err := w.enc.Encode(p)
	if err != nil {
		return err
	}
	for _, l := range lines {
		if err := w.writeLine(l); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeLine(l string) error {
	if _, err := w.w.WriteString(l); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	w.lines++
	return nil
}

// Lines returns the number of lines written.
func (w *Writer) Lines() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Flush()
}
