package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Config is a parsed machine file. Sections are created as the file is
// read; repeated headers merge into the first.
type Config struct {
	sections map[string]*Section
	order    []string
	read     map[string]bool
}

func newConfig() *Config {
	return &Config{sections: make(map[string]*Section), read: make(map[string]bool)}
}

// Load reads a machine file. "[include <glob>]" headers splice in other
// files relative to the including one.
func Load(path string) (*Config, error) {
	c := newConfig()
	if err := c.loadFile(path, make(map[string]bool)); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadString parses a machine file held in memory. Includes are rejected.
func LoadString(data string) (*Config, error) {
	c := newConfig()
	if err := c.parse(strings.NewReader(data), "<string>", "", nil); err != nil {
		return nil, err
	}
	return c, nil
}

// loadFile parses path. open holds the files being included above it.
func (c *Config) loadFile(path string, open map[string]bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: invalid path %s: %w", path, err)
	}
	if open[abs] {
		return fmt.Errorf("config: recursive include: %s", path)
	}
	open[abs] = true
	defer delete(open, abs)

	f, err := os.Open(abs)
	if err != nil {
		return fmt.Errorf("config: unable to open %s: %w", path, err)
	}
	defer f.Close()
	return c.parse(f, path, filepath.Dir(abs), open)
}

func (c *Config) parse(r io.Reader, name, dir string, open map[string]bool) error {
	var cur *Section
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := sc.Text()
		if i := strings.IndexAny(line, "#;"); i >= 0 {
			line = line[:i]
		}
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		at := func(format string, args ...any) error {
			return fmt.Errorf("config: %s:%d: %s", name, n, fmt.Sprintf(format, args...))
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			header := strings.TrimSpace(line[1 : len(line)-1])
			if pattern, ok := strings.CutPrefix(header, "include "); ok {
				if open == nil {
					return at("include not allowed here")
				}
				if err := c.include(strings.TrimSpace(pattern), dir, open); err != nil {
					return at("%v", err)
				}
				cur = nil
				continue
			}
			if header == "" {
				return at("empty section header")
			}
			cur = c.section(strings.ToLower(header))
			continue
		}

		if cur == nil {
			return at("option outside of a section")
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			key, val, ok = strings.Cut(line, "=")
		}
		if key = strings.TrimSpace(key); !ok || key == "" {
			return at("malformed line %q", line)
		}
		cur.options[strings.ToLower(key)] = strings.TrimSpace(val)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("config: error reading %s: %w", name, err)
	}
	return nil
}

// section returns the named section, creating it on first sight.
func (c *Config) section(name string) *Section {
	if s, ok := c.sections[name]; ok {
		return s
	}
	s := newSection(name, nil)
	c.sections[name] = s
	c.order = append(c.order, name)
	return s
}

func (c *Config) include(pattern, dir string, open map[string]bool) error {
	if pattern == "" {
		return fmt.Errorf("empty include")
	}
	glob := filepath.Join(dir, pattern)
	matches, err := filepath.Glob(glob)
	if err != nil {
		return fmt.Errorf("invalid include pattern %q: %w", pattern, err)
	}
	if len(matches) == 0 && !strings.ContainsAny(glob, "*?[") {
		return fmt.Errorf("include file does not exist: %s", glob)
	}
	sort.Strings(matches)
	for _, m := range matches {
		if err := c.loadFile(m, open); err != nil {
			return err
		}
	}
	return nil
}

// GetSection returns a required section.
func (c *Config) GetSection(name string) (*Section, error) {
	if s := c.GetSectionOptional(name); s != nil {
		return s, nil
	}
	return nil, ErrMissingSection(name)
}

// GetSectionOptional returns the section, or nil when the file has none.
func (c *Config) GetSectionOptional(name string) *Section {
	name = strings.ToLower(name)
	s, ok := c.sections[name]
	if ok {
		c.read[name] = true
	}
	return s
}

// CheckUnused names every section nobody read and every option nobody read
// in the sections that were.
func (c *Config) CheckUnused() error {
	var sections, problems []string
	for _, name := range c.order {
		if !c.read[name] {
			sections = append(sections, name)
			continue
		}
		if unused := c.sections[name].GetUnusedOptions(); len(unused) > 0 {
			problems = append(problems, fmt.Sprintf("[%s]: unused options %v", name, unused))
		}
	}
	if len(sections) > 0 {
		sort.Strings(sections)
		problems = append([]string{fmt.Sprintf("unused sections %v", sections)}, problems...)
	}
	if len(problems) > 0 {
		return ErrUnused(strings.Join(problems, "; "))
	}
	return nil
}
