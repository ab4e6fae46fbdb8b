package config

import "fmt"

type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
	ProviderAnthropic Provider = "anthropic"
)

// Model binds a provider and model name under a config-local label.
type Model struct {
	Name     string   `hcl:"name,label"`
	Provider Provider `hcl:"provider"`
	Model    string   `hcl:"model"`
	APIKey   string   `hcl:"api_key"`
	Default  bool     `hcl:"default,optional"`
}

func (m *Model) Validate() error {
	switch m.Provider {
	case ProviderOpenAI, ProviderGemini, ProviderAnthropic:
	default:
		return fmt.Errorf("provider '%s' is not supported", m.Provider)
	}
	if m.Model == "" {
		return fmt.Errorf("model name is required")
	}
	return nil
}
