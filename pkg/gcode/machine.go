package gcode

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"leaflet-weaver/pkg/log"
	"leaflet-weaver/pkg/motion"
)

// Stats summarises what a machine has executed.
type Stats struct {
	Lines    int
	Moves    int
	Unknown  int
	Cycles   int // valve openings
	Travel   float64
	Deposit  float64 // path length with the valve open
	Dwell    time.Duration
	Duration time.Duration // estimated from feed rates and dwells
}

// Machine is a simulated dispensing stage that tracks position, positioning
// mode, feed rate and valve state from G-code. It also accepts primitives
// directly so it can stand in for hardware.
type Machine struct {
	mu sync.RWMutex

	position  map[string]float64 // X, Y, Z, A
	feedrate  float64            // mm/min
	absCoords bool
	valveOpen bool
	valvePin  string
	stats     Stats

	enc *Encoder
	log *log.Logger
}

// NewMachine creates a machine at the origin in absolute mode.
func NewMachine(opts Options, logger *log.Logger) *Machine {
	if logger == nil {
		logger = log.GetLogger("machine")
	}
	enc := NewEncoder(opts)
	return &Machine{
		position:  map[string]float64{"X": 0, "Y": 0, "Z": 0, "A": 0},
		feedrate:  1500,
		absCoords: true,
		valvePin:  enc.opts.ValvePin,
		enc:       enc,
		log:       logger,
	}
}

// Emit encodes p and executes the result.
func (m *Machine) Emit(p motion.Primitive) error {
	lines, err := m.enc.Encode(p)
	if err != nil {
		return err
	}
	for _, l := range lines {
		if err := m.Execute(l); err != nil {
			return err
		}
	}
	return nil
}

// Replay executes every line from r.
func (m *Machine) Replay(r io.Reader) error {
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		if err := m.Execute(sc.Text()); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return sc.Err()
}

// Execute parses and executes a G-code line.
func (m *Machine) Execute(line string) error {
	cmd, err := parseGCodeLine(line)
	if cmd == nil || err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Lines++

	switch cmd.Name {
	case "G0", "G1":
		return m.executeMove(cmd)
	case "G4":
		return m.executeDwell(cmd)
	case "G90":
		m.absCoords = true
	case "G91":
		m.absCoords = false
	case "G21", "M400", "M114":
	case "SET_PIN":
		return m.executeSetPin(cmd)
	default:
		m.stats.Unknown++
		m.log.WithField("command", cmd.Name).Debug("unknown G-code command")
	}
	return nil
}

// executeMove handles G0/G1 movement commands.
func (m *Machine) executeMove(cmd *gcodeCommand) error {
	if v, ok := cmd.Args["F"]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || !(f > 0) {
			return fmt.Errorf("bad feed rate %q", v)
		}
		m.feedrate = f
	}

	var dist2 float64
	moved := false
	for _, axis := range []string{"X", "Y", "Z", "A"} {
		v, ok := cmd.Args[axis]
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("bad %s value %q", axis, v)
		}
		target := f
		if !m.absCoords {
			target = m.position[axis] + f
		}
		d := target - m.position[axis]
		dist2 += d * d
		m.position[axis] = target
		moved = true
	}
	if !moved {
		return nil
	}

	dist := math.Sqrt(dist2)
	m.stats.Moves++
	m.stats.Travel += dist
	if m.valveOpen {
		m.stats.Deposit += dist
	}
	m.stats.Duration += time.Duration(math.Round(dist / m.feedrate * float64(time.Minute)))
	return nil
}

func (m *Machine) executeDwell(cmd *gcodeCommand) error {
	v, ok := cmd.Args["P"]
	if !ok {
		return nil
	}
	ms, err := strconv.ParseFloat(v, 64)
	if err != nil || ms < 0 {
		return fmt.Errorf("bad dwell %q", v)
	}
	d := time.Duration(ms * float64(time.Millisecond))
	m.stats.Dwell += d
	m.stats.Duration += d
	return nil
}

func (m *Machine) executeSetPin(cmd *gcodeCommand) error {
	if !strings.EqualFold(cmd.Args["PIN"], m.valvePin) {
		return nil
	}
	v, err := strconv.ParseFloat(cmd.Args["VALUE"], 64)
	if err != nil {
		return fmt.Errorf("bad pin value %q", cmd.Args["VALUE"])
	}
	open := v != 0
	if open && !m.valveOpen {
		m.stats.Cycles++
	}
	m.valveOpen = open
	return nil
}

// Position returns the current position of axis ("X", "Y", "Z" or "A").
func (m *Machine) Position(axis string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.position[strings.ToUpper(axis)]
}

// Feedrate returns the current feed rate in mm/min.
func (m *Machine) Feedrate() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.feedrate
}

// IsAbsoluteCoords returns true if using absolute coordinates.
func (m *Machine) IsAbsoluteCoords() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.absCoords
}

// ValveOpen reports the actuator state.
func (m *Machine) ValveOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.valveOpen
}

// Stats returns a snapshot of the execution counters.
func (m *Machine) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// gcodeCommand represents a parsed G-code command.
type gcodeCommand struct {
	Name string
	Args map[string]string
	Raw  string
}

var reParenComment = regexp.MustCompile(`\([^)]*\)`)

// parseGCodeLine parses a G-code line into a command.
func parseGCodeLine(line string) (*gcodeCommand, error) {
	ln := strings.TrimSpace(line)
	if idx := strings.IndexByte(ln, ';'); idx >= 0 {
		ln = strings.TrimSpace(ln[:idx])
	}
	ln = strings.TrimSpace(reParenComment.ReplaceAllString(ln, " "))
	if ln == "" {
		return nil, nil
	}

	fields := strings.Fields(ln)
	name := strings.ToUpper(fields[0])
	args := map[string]string{}
	for _, f := range fields[1:] {
		if k, v, ok := strings.Cut(f, "="); ok {
			k = strings.ToUpper(strings.TrimSpace(k))
			if k == "" {
				return nil, fmt.Errorf("malformed parameter %q", f)
			}
			args[k] = strings.TrimSpace(v)
			continue
		}
		// single-letter flags such as "X" carry no value
		args[strings.ToUpper(f[:1])] = strings.TrimSpace(f[1:])
	}
	return &gcodeCommand{Name: name, Args: args, Raw: line}, nil
}
