package tools

import (
	"encoding/json"
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// PropertyType represents a JSON Schema type
type PropertyType string

const (
	TypeString  PropertyType = "string"
	TypeNumber  PropertyType = "number"
	TypeInteger PropertyType = "integer"
	TypeBoolean PropertyType = "boolean"
	TypeArray   PropertyType = "array"
	TypeObject  PropertyType = "object"
)

// Property defines a single property in a JSON Schema
type Property struct {
	Type        PropertyType `json:"type"`
	Description string       `json:"description,omitempty"`
	Items       *Property    `json:"items,omitempty"`      // For array types
	Properties  PropertyMap  `json:"properties,omitempty"` // For nested objects
	Required    []string     `json:"required,omitempty"`   // For nested objects
}

// PropertyMap is a map of property names to their definitions
type PropertyMap map[string]Property

// Schema represents a JSON Schema for tool parameters or tool output
type Schema struct {
	Type       PropertyType `json:"type"`
	Properties PropertyMap  `json:"properties"`
	Required   []string     `json:"required,omitempty"`
}

// String returns the JSON representation of the schema
func (s Schema) String() string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Validate checks a decoded argument map against the schema. Missing required
// fields and type mismatches are reported with the field path so the
// reasoning step can correct the call.
func (s Schema) Validate(args map[string]any) error {
	return validateObject("", s.Properties, s.Required, args)
}

func validateObject(path string, props PropertyMap, required []string, value map[string]any) error {
	for _, name := range required {
		if _, ok := value[name]; !ok {
			return fmt.Errorf("missing required field '%s'", joinPath(path, name))
		}
	}

	for name, raw := range value {
		prop, ok := props[name]
		if !ok {
			// Unknown fields pass through; tools decide whether to use them.
			continue
		}
		if err := validateValue(joinPath(path, name), prop, raw); err != nil {
			return err
		}
	}

	return nil
}

func validateValue(path string, prop Property, value any) error {
	if value == nil {
		return fmt.Errorf("field '%s' is null", path)
	}

	switch prop.Type {
	case TypeString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("field '%s' must be a string, got %T", path, value)
		}
	case TypeNumber:
		if !isNumeric(value) {
			return fmt.Errorf("field '%s' must be a number, got %T", path, value)
		}
	case TypeInteger:
		if !isInteger(value) {
			return fmt.Errorf("field '%s' must be an integer, got %T", path, value)
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("field '%s' must be a boolean, got %T", path, value)
		}
	case TypeArray:
		items, ok := value.([]any)
		if !ok {
			return fmt.Errorf("field '%s' must be an array, got %T", path, value)
		}
		if prop.Items != nil {
			for i, item := range items {
				if err := validateValue(fmt.Sprintf("%s[%d]", path, i), *prop.Items, item); err != nil {
					return err
				}
			}
		}
	case TypeObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("field '%s' must be an object, got %T", path, value)
		}
		if len(prop.Properties) > 0 {
			return validateObject(path, prop.Properties, prop.Required, obj)
		}
	}

	return nil
}

func isNumeric(v any) bool {
	switch v.(type) {
	case float64, float32, int, int64, json.Number:
		return true
	}
	return false
}

func isInteger(v any) bool {
	switch n := v.(type) {
	case int, int64:
		return true
	case float64:
		return n == float64(int64(n))
	case json.Number:
		_, err := n.Int64()
		return err == nil
	}
	return false
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

// ToCtyType converts the schema to a cty.Type for HCL evaluation
func (s Schema) ToCtyType() cty.Type {
	return propertyMapToCtyType(s.Properties)
}

func propertyMapToCtyType(props PropertyMap) cty.Type {
	if len(props) == 0 {
		return cty.EmptyObject
	}

	attrTypes := make(map[string]cty.Type)
	for name, prop := range props {
		attrTypes[name] = propertyToCtyType(prop)
	}
	return cty.Object(attrTypes)
}

func propertyToCtyType(p Property) cty.Type {
	switch p.Type {
	case TypeString:
		return cty.String
	case TypeNumber, TypeInteger:
		return cty.Number
	case TypeBoolean:
		return cty.Bool
	case TypeArray:
		if p.Items != nil {
			return cty.List(propertyToCtyType(*p.Items))
		}
		return cty.List(cty.DynamicPseudoType)
	case TypeObject:
		if len(p.Properties) > 0 {
			return propertyMapToCtyType(p.Properties)
		}
		return cty.DynamicPseudoType
	default:
		return cty.DynamicPseudoType
	}
}
