package agent

import (
	"fmt"

	"lectern/tools"
)

// Tool-subset bounds per mode. A mode narrower than this cannot do useful
// work; a wider one defeats the point of specialist delegation.
const (
	minModeTools = 3
	maxModeTools = 7
)

// DefaultMaxIterations caps reasoning steps when a mode does not set its own
// limit.
const DefaultMaxIterations = 8

// Mode is one specialist configuration: a prompt, a restricted tool subset,
// and the modes it may delegate to.
type Mode struct {
	Name          string
	Prompt        string
	Tools         []string
	Delegates     []string
	MaxIterations int
	// Batch marks the mode as a per-item pipeline run by the batch runner.
	Batch bool
}

// IterationCap returns the mode's effective iteration limit.
func (m *Mode) IterationCap() int {
	if m.MaxIterations > 0 {
		return m.MaxIterations
	}
	return DefaultMaxIterations
}

// ModeSet holds the registered modes. Registration validates each mode's
// tool subset against the registry; Finalize validates the delegation graph.
// After Finalize the set is read-only.
type ModeSet struct {
	modes     map[string]*Mode
	finalized bool
}

func NewModeSet() *ModeSet {
	return &ModeSet{modes: make(map[string]*Mode)}
}

// Register adds a mode, checking its tool subset against the registry.
func (s *ModeSet) Register(m *Mode, registry *tools.Registry) error {
	if s.finalized {
		return fmt.Errorf("mode set is finalized")
	}
	if m.Name == "" {
		return fmt.Errorf("mode has empty name")
	}
	if _, exists := s.modes[m.Name]; exists {
		return fmt.Errorf("mode '%s' already registered", m.Name)
	}
	if len(m.Tools) < minModeTools || len(m.Tools) > maxModeTools {
		return fmt.Errorf("mode '%s' has %d tools, want %d-%d", m.Name, len(m.Tools), minModeTools, maxModeTools)
	}
	seen := make(map[string]bool, len(m.Tools))
	for _, name := range m.Tools {
		if seen[name] {
			return fmt.Errorf("mode '%s' lists tool '%s' twice", m.Name, name)
		}
		seen[name] = true
		if _, ok := registry.Get(name); !ok {
			return fmt.Errorf("mode '%s' references unknown tool '%s'", m.Name, name)
		}
	}

	s.modes[m.Name] = m
	return nil
}

// Finalize checks that every delegation target exists and that the
// delegation graph has no cycles, then freezes the set. Cycles are rejected
// here so a runaway delegation chain can never start at runtime.
func (s *ModeSet) Finalize() error {
	for name, m := range s.modes {
		for _, target := range m.Delegates {
			if target == name {
				return fmt.Errorf("mode '%s' delegates to itself", name)
			}
			if _, ok := s.modes[target]; !ok {
				return fmt.Errorf("mode '%s' delegates to unknown mode '%s'", name, target)
			}
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(s.modes))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("delegation cycle: %v -> %s", path, name)
		case done:
			return nil
		}
		state[name] = visiting
		for _, target := range s.modes[name].Delegates {
			if err := visit(target, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for name := range s.modes {
		if err := visit(name, nil); err != nil {
			return err
		}
	}

	s.finalized = true
	return nil
}

// Get returns a mode by name.
func (s *ModeSet) Get(name string) (*Mode, bool) {
	m, ok := s.modes[name]
	return m, ok
}

// Names returns the registered mode names.
func (s *ModeSet) Names() []string {
	names := make([]string, 0, len(s.modes))
	for name := range s.modes {
		names = append(names, name)
	}
	return names
}
