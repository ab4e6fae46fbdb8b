package config

import (
	"fmt"
	"net/http"
	"strings"

	"lectern/tools"
)

// CustomTool declares an HTTP-backed tool in config. URL templates reference
// inputs as $${inputs.name} (escaped so HCL passes the placeholder through
// to runtime substitution).
type CustomTool struct {
	Name        string        `hcl:"name,label"`
	Description string        `hcl:"description,optional"`
	Method      string        `hcl:"method"`
	URL         string        `hcl:"url"`
	Inputs      *InputsSchema `hcl:"inputs,block"`
}

// InputsSchema declares the tool's argument schema.
type InputsSchema struct {
	Fields []InputField `hcl:"field,block"`
}

type InputField struct {
	Name        string `hcl:"name,label"`
	Type        string `hcl:"type"`
	Description string `hcl:"description,optional"`
	Required    bool   `hcl:"required,optional"`
}

var validFieldTypes = map[string]tools.PropertyType{
	"string":  tools.TypeString,
	"number":  tools.TypeNumber,
	"integer": tools.TypeInteger,
	"boolean": tools.TypeBoolean,
	"array":   tools.TypeArray,
	"object":  tools.TypeObject,
}

func (t *CustomTool) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("tool has empty name")
	}
	switch strings.ToUpper(t.Method) {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return fmt.Errorf("tool '%s': unsupported method '%s'", t.Name, t.Method)
	}
	if t.URL == "" {
		return fmt.Errorf("tool '%s': url is required", t.Name)
	}
	if t.Inputs != nil {
		for _, f := range t.Inputs.Fields {
			if _, ok := validFieldTypes[f.Type]; !ok {
				return fmt.Errorf("tool '%s': field '%s' has unknown type '%s'", t.Name, f.Name, f.Type)
			}
		}
	}
	return nil
}

// BuildSchema converts the declared inputs into a tool parameter schema.
func (t *CustomTool) BuildSchema() tools.Schema {
	schema := tools.Schema{
		Type:       tools.TypeObject,
		Properties: tools.PropertyMap{},
	}
	if t.Inputs == nil {
		return schema
	}
	for _, f := range t.Inputs.Fields {
		schema.Properties[f.Name] = tools.Property{
			Type:        validFieldTypes[f.Type],
			Description: f.Description,
		}
		if f.Required {
			schema.Required = append(schema.Required, f.Name)
		}
	}
	return schema
}

// Build materializes the declared tool for registry registration.
func (t *CustomTool) Build() *tools.HTTPTool {
	return &tools.HTTPTool{
		Name:        t.Name,
		Description: t.Description,
		Method:      strings.ToUpper(t.Method),
		URLTemplate: t.URL,
		Schema:      t.BuildSchema(),
	}
}
