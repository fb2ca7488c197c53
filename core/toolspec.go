package core

import (
	"fmt"
	"sort"
)

// Parameter describes one argument of a tool as a flat entry. The flat list
// is the internal canonical form; adapters and validators expand it into
// whichever schema dialect their backend expects.
type Parameter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// ToolSpec is the provider-neutral description of a callable tool:
// `{name, description, parameters: [{name, type, description, required}]}`.
type ToolSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  []Parameter `json:"parameters,omitempty"`
}

// Validate checks the spec is usable for registration and merging.
func (s ToolSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("tool spec missing name")
	}
	seen := make(map[string]struct{}, len(s.Parameters))
	for _, p := range s.Parameters {
		if p.Name == "" {
			return fmt.Errorf("tool %q: parameter missing name", s.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("tool %q: duplicate parameter %q", s.Name, p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

// Equal reports whether two specs describe the same tool, field for field.
// Parameter order is significant for everything except the required set.
func (s ToolSpec) Equal(o ToolSpec) bool {
	if s.Name != o.Name || s.Description != o.Description || len(s.Parameters) != len(o.Parameters) {
		return false
	}
	for i, p := range s.Parameters {
		q := o.Parameters[i]
		if p.Name != q.Name || p.Type != q.Type || p.Description != q.Description || p.Required != q.Required {
			return false
		}
		if len(p.Enum) != len(q.Enum) {
			return false
		}
		for j := range p.Enum {
			if p.Enum[j] != q.Enum[j] {
				return false
			}
		}
	}
	return true
}

// Schema expands the flat parameter list into a JSON-Schema object suitable
// for provider payloads and for argument validation.
func (s ToolSpec) Schema() map[string]any {
	properties := make(map[string]any, len(s.Parameters))
	var required []string
	for _, p := range s.Parameters {
		prop := map[string]any{"type": p.Type}
		if p.Type == "" {
			prop["type"] = "string"
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			enum := make([]any, len(p.Enum))
			for i, e := range p.Enum {
				enum[i] = e
			}
			prop["enum"] = enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ParametersFromSchema flattens the top level of a JSON-Schema object into
// the canonical parameter list. Nested object parameters keep type "object";
// their inner structure is not modeled. Output is sorted by name so the
// conversion is deterministic.
func ParametersFromSchema(schema map[string]any) ([]Parameter, error) {
	if schema == nil {
		return nil, nil
	}
	if t, ok := schema["type"].(string); ok && t != "object" {
		return nil, fmt.Errorf("unsupported parameter schema type %q", t)
	}
	requiredSet := map[string]bool{}
	switch req := schema["required"].(type) {
	case []any:
		for _, r := range req {
			if name, ok := r.(string); ok {
				requiredSet[name] = true
			}
		}
	case []string:
		for _, name := range req {
			requiredSet[name] = true
		}
	}
	props, _ := schema["properties"].(map[string]any)
	params := make([]Parameter, 0, len(props))
	for name, raw := range props {
		prop, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("parameter %q: property is not an object", name)
		}
		p := Parameter{Name: name, Required: requiredSet[name]}
		if t, ok := prop["type"].(string); ok {
			p.Type = t
		} else {
			p.Type = "string"
		}
		if d, ok := prop["description"].(string); ok {
			p.Description = d
		}
		if enum, ok := prop["enum"].([]any); ok {
			for _, e := range enum {
				if s, ok := e.(string); ok {
					p.Enum = append(p.Enum, s)
				}
			}
		}
		params = append(params, p)
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })
	return params, nil
}

// FunctionDecl is the legacy flat wire shape for a tool definition, as
// carried by the deprecated `functions` request field.
type FunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolDecl is the typed wire shape for a tool definition: a function
// declaration wrapped in a `{type: "function", function: {...}}` envelope.
type ToolDecl struct {
	Type     string       `json:"type"`
	Function FunctionDecl `json:"function"`
}

// SpecFromFunctionDecl normalizes a wire declaration into a ToolSpec.
func SpecFromFunctionDecl(fd FunctionDecl) (ToolSpec, error) {
	params, err := ParametersFromSchema(fd.Parameters)
	if err != nil {
		return ToolSpec{}, fmt.Errorf("normalize function %q: %w", fd.Name, err)
	}
	spec := ToolSpec{Name: fd.Name, Description: fd.Description, Parameters: params}
	if err := spec.Validate(); err != nil {
		return ToolSpec{}, err
	}
	return spec, nil
}

// SpecFromToolDecl normalizes a typed wire declaration into a ToolSpec. Only
// the "function" tool type is recognized.
func SpecFromToolDecl(td ToolDecl) (ToolSpec, error) {
	if td.Type != "" && td.Type != "function" {
		return ToolSpec{}, fmt.Errorf("unsupported tool type %q", td.Type)
	}
	return SpecFromFunctionDecl(td.Function)
}
