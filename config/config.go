package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// Config holds all configuration
type Config struct {
	Variables   []Variable     `hcl:"variable,block"`
	Models      []Model        `hcl:"model,block"`
	Modes       []ModeConfig   `hcl:"mode,block"`
	CustomTools []CustomTool   `hcl:"tool,block"`
	Storage     *StorageConfig `hcl:"storage,block"`
	Memory      *MemoryConfig  `hcl:"memory,block"`
	Limits      *LimitsConfig  `hcl:"limits,block"`

	// ResolvedVars holds the resolved variable values for runtime use
	ResolvedVars map[string]cty.Value
}

func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

// LoadAndValidate loads the config and validates all components
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func LoadFile(filename string) (*Config, error) {
	return loadFromFiles([]string{filename})
}

func LoadDir(dir string) (*Config, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.hcl"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl files in %s", dir)
	}
	return loadFromFiles(files)
}

// loadFromFiles implements staged loading: variables first, then everything
// else with a vars.<name> evaluation context.
func loadFromFiles(files []string) (*Config, error) {
	parser := hclparse.NewParser()
	var bodies []hcl.Body

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parse %s: %w", file, diags)
		}
		bodies = append(bodies, hclFile.Body)
	}

	// Stage 1: variables only, no context needed.
	var allVars []Variable
	for _, body := range bodies {
		content, _, diags := body.PartialContent(&hcl.BodySchema{
			Blocks: []hcl.BlockHeaderSchema{
				{Type: "variable", LabelNames: []string{"name"}},
			},
		})
		if diags.HasErrors() {
			return nil, fmt.Errorf("reading variable blocks: %w", diags)
		}
		for _, block := range content.Blocks {
			var v Variable
			v.Name = block.Labels[0]
			if diags := gohcl.DecodeBody(block.Body, nil, &v); diags.HasErrors() {
				return nil, fmt.Errorf("decode variable '%s': %w", v.Name, diags)
			}
			allVars = append(allVars, v)
		}
	}

	ctx, resolvedVars, err := buildVarsContext(allVars)
	if err != nil {
		return nil, err
	}

	// Stage 2: everything else, with var.<name> resolvable.
	merged := &Config{ResolvedVars: resolvedVars}
	for i, body := range bodies {
		var fileCfg Config
		if diags := gohcl.DecodeBody(body, ctx, &fileCfg); diags.HasErrors() {
			return nil, fmt.Errorf("decode %s: %w", files[i], diags)
		}
		merged.Variables = append(merged.Variables, fileCfg.Variables...)
		merged.Models = append(merged.Models, fileCfg.Models...)
		merged.Modes = append(merged.Modes, fileCfg.Modes...)
		merged.CustomTools = append(merged.CustomTools, fileCfg.CustomTools...)
		if fileCfg.Storage != nil {
			merged.Storage = fileCfg.Storage
		}
		if fileCfg.Memory != nil {
			merged.Memory = fileCfg.Memory
		}
		if fileCfg.Limits != nil {
			merged.Limits = fileCfg.Limits
		}
	}

	if merged.Storage == nil {
		merged.Storage = &StorageConfig{}
	}
	merged.Storage.Defaults()
	if merged.Memory == nil {
		merged.Memory = &MemoryConfig{}
	}
	merged.Memory.Defaults()
	if merged.Limits == nil {
		merged.Limits = &LimitsConfig{}
	}
	merged.Limits.Defaults()

	return merged, nil
}

func buildVarsContext(vars []Variable) (*hcl.EvalContext, map[string]cty.Value, error) {
	resolved := make(map[string]cty.Value, len(vars))
	for i := range vars {
		value, err := ResolveVariableValue(&vars[i])
		if err != nil {
			return nil, nil, fmt.Errorf("resolving variable '%s': %w", vars[i].Name, err)
		}
		resolved[vars[i].Name] = cty.StringVal(value)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"vars": cty.ObjectVal(resolved),
		},
	}, resolved, nil
}

// Validate checks that all config components are valid
func (c *Config) Validate() error {
	for _, v := range c.Variables {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("variable '%s': %w", v.Name, err)
		}
	}

	modelNames := make(map[string]bool, len(c.Models))
	defaults := 0
	for _, m := range c.Models {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("model '%s': %w", m.Name, err)
		}
		if modelNames[m.Name] {
			return fmt.Errorf("model '%s' declared twice", m.Name)
		}
		modelNames[m.Name] = true
		if m.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return fmt.Errorf("more than one model marked default")
	}

	for _, t := range c.CustomTools {
		if err := t.Validate(); err != nil {
			return err
		}
	}

	modeNames := make(map[string]bool, len(c.Modes))
	for _, m := range c.Modes {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("mode '%s': %w", m.Name, err)
		}
		if modeNames[m.Name] {
			return fmt.Errorf("mode '%s' declared twice", m.Name)
		}
		modeNames[m.Name] = true
		if m.Model != "" && !modelNames[m.Model] {
			return fmt.Errorf("mode '%s' references unknown model '%s'", m.Name, m.Model)
		}
	}
	// Delegation targets must exist; cycle detection happens when the mode
	// set is assembled.
	for _, m := range c.Modes {
		for _, d := range m.Delegates {
			if !modeNames[d] {
				return fmt.Errorf("mode '%s' delegates to unknown mode '%s'", m.Name, d)
			}
		}
	}

	if c.Memory != nil {
		if err := c.Memory.Validate(); err != nil {
			return fmt.Errorf("memory: %w", err)
		}
		if c.Memory.Model != "" && !modelNames[c.Memory.Model] {
			return fmt.Errorf("memory references unknown model '%s'", c.Memory.Model)
		}
	}

	switch c.Storage.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("storage backend '%s' is not supported", c.Storage.Backend)
	}

	return nil
}

// FindModel returns the named model config.
func (c *Config) FindModel(name string) (*Model, error) {
	for i := range c.Models {
		if c.Models[i].Name == name {
			return &c.Models[i], nil
		}
	}
	return nil, fmt.Errorf("model '%s' not found", name)
}

// DefaultModel returns the model marked default, or the first one declared.
func (c *Config) DefaultModel() (*Model, error) {
	if len(c.Models) == 0 {
		return nil, fmt.Errorf("no models configured")
	}
	for i := range c.Models {
		if c.Models[i].Default {
			return &c.Models[i], nil
		}
	}
	return &c.Models[0], nil
}

// FindMode returns the named mode config.
func (c *Config) FindMode(name string) (*ModeConfig, error) {
	for i := range c.Modes {
		if c.Modes[i].Name == name {
			return &c.Modes[i], nil
		}
	}
	return nil, fmt.Errorf("mode '%s' not found", name)
}
