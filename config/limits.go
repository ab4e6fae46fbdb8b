package config

// LimitsConfig holds engine-wide guardrails.
type LimitsConfig struct {
	// WindowSize bounds the prompt window of a session.
	WindowSize int `hcl:"window_size,optional"`
	// MaxIterations caps reasoning steps for modes without their own limit.
	MaxIterations int `hcl:"max_iterations,optional"`
	// ToolTimeoutSecs bounds a single tool invocation.
	ToolTimeoutSecs int `hcl:"tool_timeout_secs,optional"`
}

// Defaults fills in default values for unset fields
func (l *LimitsConfig) Defaults() {
	if l.WindowSize == 0 {
		l.WindowSize = 6
	}
	if l.MaxIterations == 0 {
		l.MaxIterations = 8
	}
	if l.ToolTimeoutSecs == 0 {
		l.ToolTimeoutSecs = 60
	}
}
