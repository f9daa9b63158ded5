package llm

import "sort"

// Type is a JSON value type in an output schema
type Type string

// Schema value types
const (
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
	TypeObject  Type = "object"
)

// Schema describes the JSON a model must return. It is provider neutral: each
// backend converts it to its own response schema, and the caller validates
// responses against JSONSchema().
type Schema struct {
	Type        Type
	Description string
	Enum        []string
	Items       *Schema
	Properties  map[string]*Schema
	Required    []string
	MinItems    int
}

// Shape is the requested output of one model call
type Shape struct {
	Name            string
	Schema          *Schema
	Temperature     float32
	MaxOutputTokens int32
}

// String returns a Schema of type string
func String(description string) *Schema {
	return &Schema{Type: TypeString, Description: description}
}

// ArrayOf returns a Schema of an array of items
func ArrayOf(items *Schema, description string) *Schema {
	return &Schema{Type: TypeArray, Items: items, Description: description}
}

// Object returns a Schema of an object whose properties are all required
func Object(properties map[string]*Schema, optional ...string) *Schema {
	skip := make(map[string]bool, len(optional))
	for _, name := range optional {
		skip[name] = true
	}
	var required []string
	for _, name := range sortedKeys(properties) {
		if !skip[name] {
			required = append(required, name)
		}
	}
	return &Schema{Type: TypeObject, Properties: properties, Required: required}
}

// JSONSchema renders the schema as a JSON Schema document (draft-04 subset)
func (s *Schema) JSONSchema() map[string]any {
	if s == nil {
		return map[string]any{}
	}
	doc := map[string]any{"type": string(s.Type)}
	if s.Description != "" {
		doc["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		doc["enum"] = s.Enum
	}
	if s.Items != nil {
		doc["items"] = s.Items.JSONSchema()
	}
	if s.MinItems > 0 {
		doc["minItems"] = s.MinItems
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = p.JSONSchema()
		}
		doc["properties"] = props
	}
	if len(s.Required) > 0 {
		doc["required"] = s.Required
	}
	return doc
}

func sortedKeys(m map[string]*Schema) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
