package config

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Section is one [name] block. Every option looked up is remembered, found
// or not, so that leftovers can be reported as typos.
type Section struct {
	name    string
	options map[string]string
	read    map[string]bool
}

func newSection(name string, options map[string]string) *Section {
	s := &Section{name: name, options: make(map[string]string, len(options)), read: make(map[string]bool)}
	for k, v := range options {
		s.options[strings.ToLower(k)] = v
	}
	return s
}

func (s *Section) lookup(option string) (string, bool) {
	key := strings.ToLower(option)
	s.read[key] = true
	v, ok := s.options[key]
	return strings.TrimSpace(v), ok
}

// GetUnusedOptions lists the options nobody looked up, sorted.
func (s *Section) GetUnusedOptions() []string {
	var out []string
	for key := range s.options {
		if !s.read[key] {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// value reads option through parse. A missing option takes the first
// fallback, or is an error when there is none.
func value[T any](s *Section, option string, fallback []T, expected string, parse func(string) (T, bool)) (T, error) {
	var zero T
	raw, ok := s.lookup(option)
	if !ok {
		if len(fallback) > 0 {
			return fallback[0], nil
		}
		return zero, ErrMissingOption(s.name, option)
	}
	v, ok := parse(raw)
	if !ok {
		return zero, ErrInvalidValue(s.name, option, raw, expected)
	}
	return v, nil
}

func parseFloat(raw string) (float64, bool) {
	f, err := strconv.ParseFloat(raw, 64)
	return f, err == nil
}

// Get returns option as text.
func (s *Section) Get(option string, fallback ...string) (string, error) {
	return value(s, option, fallback, "text", func(raw string) (string, bool) { return raw, true })
}

// GetInt returns option as an integer.
func (s *Section) GetInt(option string, fallback ...int) (int, error) {
	return value(s, option, fallback, "integer", func(raw string) (int, bool) {
		i, err := strconv.Atoi(raw)
		return i, err == nil
	})
}

// GetIntWithMin returns an integer option of at least minVal.
func (s *Section) GetIntWithMin(option string, minVal int, fallback ...int) (int, error) {
	v, err := s.GetInt(option, fallback...)
	if err != nil {
		return 0, err
	}
	if v < minVal {
		return 0, ErrOutOfRange(s.name, option, float64(v), "must have minimum of "+strconv.Itoa(minVal))
	}
	return v, nil
}

// GetFloat returns option as a float.
func (s *Section) GetFloat(option string, fallback ...float64) (float64, error) {
	return value(s, option, fallback, "float", parseFloat)
}

type boundKind int

const (
	unbounded boundKind = iota
	above
	atLeast
	atMost
)

// Bound is a one-sided limit on a float option. The zero Bound admits
// every value.
type Bound struct {
	kind  boundKind
	limit float64
}

// Above requires a value strictly greater than v.
func Above(v float64) Bound { return Bound{above, v} }

// AtLeast requires a value of at least v.
func AtLeast(v float64) Bound { return Bound{atLeast, v} }

// AtMost requires a value of at most v.
func AtMost(v float64) Bound { return Bound{atMost, v} }

// violation describes how v breaks b, or returns "".
func (b Bound) violation(v float64) string {
	limit := strconv.FormatFloat(b.limit, 'f', -1, 64)
	switch {
	case b.kind == above && v <= b.limit:
		return "must be above " + limit
	case b.kind == atLeast && v < b.limit:
		return "must have minimum of " + limit
	case b.kind == atMost && v > b.limit:
		return "must have maximum of " + limit
	}
	return ""
}

// GetFloatIn returns a float option that satisfies b.
func (s *Section) GetFloatIn(option string, b Bound, fallback ...float64) (float64, error) {
	v, err := s.GetFloat(option, fallback...)
	if err != nil {
		return 0, err
	}
	if msg := b.violation(v); msg != "" {
		return 0, ErrOutOfRange(s.name, option, v, msg)
	}
	return v, nil
}

// GetDuration reads a non-negative number of seconds.
func (s *Section) GetDuration(option string, fallback ...time.Duration) (time.Duration, error) {
	var fb []float64
	if len(fallback) > 0 {
		fb = []float64{fallback[0].Seconds()}
	}
	sec, err := s.GetFloatIn(option, AtLeast(0), fb...)
	if err != nil {
		return 0, err
	}
	return time.Duration(sec * float64(time.Second)).Round(time.Microsecond), nil
}

// GetChoice returns one of choices, matched case-insensitively.
func (s *Section) GetChoice(option string, choices []string, fallback ...string) (string, error) {
	v, err := s.Get(option, fallback...)
	if err != nil {
		return "", err
	}
	for _, c := range choices {
		if strings.EqualFold(v, c) {
			return c, nil
		}
	}
	return "", ErrInvalidChoice(s.name, option, v, choices)
}

// GetFloatList returns a sep-separated list of floats. Empty items are
// skipped, so "1, 2," is two values.
func (s *Section) GetFloatList(option string, sep string, fallback ...[]float64) ([]float64, error) {
	return value(s, option, fallback, "list of floats", func(raw string) ([]float64, bool) {
		out := []float64{}
		for _, item := range strings.Split(raw, sep) {
			if item = strings.TrimSpace(item); item == "" {
				continue
			}
			f, ok := parseFloat(item)
			if !ok {
				return nil, false
			}
			out = append(out, f)
		}
		return out, true
	})
}
