package config

import "fmt"

// Tool-subset bounds for a mode, mirrored by the agent's mode set.
const (
	MinModeTools = 3
	MaxModeTools = 7
)

// ModeConfig declares one specialist mode: its prompt, its restricted tool
// subset, and the modes it may delegate to.
type ModeConfig struct {
	Name          string   `hcl:"name,label"`
	Prompt        string   `hcl:"prompt"`
	Model         string   `hcl:"model,optional"`
	Tools         []string `hcl:"tools"`
	Delegates     []string `hcl:"delegates,optional"`
	MaxIterations int      `hcl:"max_iterations,optional"`
	Batch         bool     `hcl:"batch,optional"`
}

func (m *ModeConfig) Validate() error {
	if m.Prompt == "" {
		return fmt.Errorf("prompt is required")
	}
	if len(m.Tools) < MinModeTools || len(m.Tools) > MaxModeTools {
		return fmt.Errorf("mode has %d tools, want %d-%d", len(m.Tools), MinModeTools, MaxModeTools)
	}
	if m.MaxIterations < 0 {
		return fmt.Errorf("max_iterations cannot be negative")
	}
	seen := make(map[string]bool)
	for _, d := range m.Delegates {
		if d == m.Name {
			return fmt.Errorf("mode cannot delegate to itself")
		}
		if seen[d] {
			return fmt.Errorf("delegate '%s' listed twice", d)
		}
		seen[d] = true
	}
	return nil
}
