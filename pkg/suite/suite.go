// Package suite defines test suites: DAGs of route entries with
// dependency edges, grouped into execution levels for sequential or
// level-parallel runs.
package suite

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Entry is one test in a suite: a route path plus the names of the
// entries it depends on.
type Entry struct {
	Route     string   `json:"route"`
	DependsOn []string `json:"dependsOn,omitempty"`
}

// Name derives the entry's name from its route's file stem.
func (e Entry) Name() string {
	base := filepath.Base(e.Route)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Suite is a named DAG of test entries.
type Suite struct {
	Name    string  `json:"name"`
	Entries []Entry `json:"tests"`

	// Path is the suite file's location on disk; used for route path
	// resolution. Empty for suites built in memory.
	Path string `json:"-"`
}

// Load reads and parses a suite file.
func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading suite file %s: %w", path, err)
	}
	var s Suite
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing suite file %s: %w", path, err)
	}
	s.Path = path
	return &s, nil
}

// Validate checks the suite's structural invariants and returns every
// violation found. An empty result means the suite is valid.
func (s *Suite) Validate() []error {
	var errs []error

	names := make(map[string]int, len(s.Entries))
	for i, e := range s.Entries {
		if e.Route == "" {
			errs = append(errs, fmt.Errorf("entry %d has an empty route", i))
			continue
		}
		if prev, dup := names[e.Name()]; dup {
			errs = append(errs, fmt.Errorf("entries %d and %d share the name %q", prev, i, e.Name()))
		}
		names[e.Name()] = i
	}

	for i, e := range s.Entries {
		for _, dep := range e.DependsOn {
			if _, ok := names[dep]; !ok {
				errs = append(errs, fmt.Errorf("entry %d (%q) depends on unknown test %q", i, e.Name(), dep))
			}
		}
	}

	if cycle := s.findCycle(names); cycle != "" {
		errs = append(errs, fmt.Errorf("dependency cycle involving %q", cycle))
	}
	return errs
}

// findCycle runs a DFS with a recursion stack and returns the name of a
// node on a cycle, or empty.
func (s *Suite) findCycle(names map[string]int) string {
	const (
		unvisited = iota
		inStack
		done
	)
	state := make(map[string]int, len(s.Entries))

	var visit func(name string) string
	visit = func(name string) string {
		switch state[name] {
		case inStack:
			return name
		case done:
			return ""
		}
		state[name] = inStack
		if idx, ok := names[name]; ok {
			for _, dep := range s.Entries[idx].DependsOn {
				if hit := visit(dep); hit != "" {
					return hit
				}
			}
		}
		state[name] = done
		return ""
	}

	for _, e := range s.Entries {
		if hit := visit(e.Name()); hit != "" {
			return hit
		}
	}
	return ""
}

// ExecutionLevels groups entries by longest dependency path. Level 0
// holds all entries with no dependencies; level k holds entries whose
// dependencies are all in levels below k. Within a level, the suite
// file's entry order is preserved.
//
// A remaining set with no satisfiable entry indicates a cycle; validation
// catches this first, but the grouping guards against it independently.
func (s *Suite) ExecutionLevels() ([][]Entry, error) {
	placed := make(map[string]bool, len(s.Entries))
	remaining := append([]Entry(nil), s.Entries...)

	var levels [][]Entry
	for len(remaining) > 0 {
		var level []Entry
		var next []Entry
		for _, e := range remaining {
			ready := true
			for _, dep := range e.DependsOn {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, e)
			} else {
				next = append(next, e)
			}
		}
		if len(level) == 0 {
			return nil, fmt.Errorf("suite %q: no runnable entries among %d remaining (dependency cycle)",
				s.Name, len(remaining))
		}
		for _, e := range level {
			placed[e.Name()] = true
		}
		levels = append(levels, level)
		remaining = next
	}
	return levels, nil
}

// TopologicalOrder flattens the execution levels in order.
func (s *Suite) TopologicalOrder() ([]Entry, error) {
	levels, err := s.ExecutionLevels()
	if err != nil {
		return nil, err
	}
	var order []Entry
	for _, level := range levels {
		order = append(order, level...)
	}
	return order, nil
}
