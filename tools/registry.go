// Package tools holds the tool descriptor registry.
//
// Descriptors are registered once at startup and read-only afterwards.
// Each descriptor carries a JSON Schema for its arguments, compiled into
// a validator used at dispatch time, and a destructive flag that gates
// confirmation handling.
package tools

import (
	"bytes"
	"encoding/json"
	"fmt"

	invopop "github.com/invopop/jsonschema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/taskpilot/taskpilot/llm"
)

// Descriptor describes one callable tool.
type Descriptor struct {
	Name        string
	Description string
	Destructive bool
	Schema      map[string]any // JSON Schema for arguments

	validator *jsonschema.Schema
}

// NewDescriptor builds a descriptor from an explicit JSON Schema,
// compiling the argument validator.
func NewDescriptor(name, description string, schema map[string]any, destructive bool) (*Descriptor, error) {
	if name == "" {
		return nil, fmt.Errorf("tool descriptor requires a name")
	}
	validator, err := compileSchema(name, schema)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	return &Descriptor{
		Name:        name,
		Description: description,
		Destructive: destructive,
		Schema:      schema,
		validator:   validator,
	}, nil
}

// newReflectedDescriptor builds a descriptor whose schema is reflected
// from an argument struct.
func newReflectedDescriptor(name, description string, args any, destructive bool) (*Descriptor, error) {
	schema, err := reflectSchema(args)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	return NewDescriptor(name, description, schema, destructive)
}

// ValidateArguments checks raw JSON arguments against the compiled schema.
func (d *Descriptor) ValidateArguments(raw json.RawMessage) error {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := d.validator.Validate(instance); err != nil {
		return fmt.Errorf("arguments do not match schema: %w", err)
	}
	return nil
}

// Definition converts the descriptor to a provider tool definition.
func (d *Descriptor) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        d.Name,
		Description: d.Description,
		Parameters:  d.Schema,
	}
}

// Registry is a read-only collection of tool descriptors.
type Registry struct {
	byName  map[string]*Descriptor
	ordered []*Descriptor
}

// NewRegistry creates a registry from descriptors. Duplicate names are
// rejected.
func NewRegistry(descriptors ...*Descriptor) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if _, exists := r.byName[d.Name]; exists {
			return nil, fmt.Errorf("duplicate tool name: %s", d.Name)
		}
		r.byName[d.Name] = d
		r.ordered = append(r.ordered, d)
	}
	return r, nil
}

// Lookup returns the descriptor for name.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.ordered))
	for i, d := range r.ordered {
		names[i] = d.Name
	}
	return names
}

// Descriptors returns descriptors in registration order.
func (r *Registry) Descriptors() []*Descriptor {
	out := make([]*Descriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Definitions converts the whole registry for a reasoning provider call.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, len(r.ordered))
	for i, d := range r.ordered {
		defs[i] = d.Definition()
	}
	return defs
}

// SchemaRequiresConfirmation reports whether a schema's required list
// names a confirmation property. Discovered tools with this shape are
// treated as destructive.
func SchemaRequiresConfirmation(schema map[string]any) bool {
	req, ok := schema["required"]
	if !ok {
		return false
	}
	switch names := req.(type) {
	case []string:
		for _, n := range names {
			if n == "confirmation" {
				return true
			}
		}
	case []any:
		for _, n := range names {
			if s, ok := n.(string); ok && s == "confirmation" {
				return true
			}
		}
	}
	return false
}

// reflectSchema generates a JSON Schema map from an argument struct.
func reflectSchema(args any) (map[string]any, error) {
	reflector := &invopop.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(args)

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	// Provider APIs expect a bare parameters object.
	delete(m, "$schema")
	delete(m, "$id")
	return m, nil
}

// compileSchema compiles a schema map into a validator.
func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	resource := name + ".schema.json"
	if err := compiler.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}
