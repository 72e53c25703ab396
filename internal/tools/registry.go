package tools

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Param describes one tool parameter.
type Param struct {
	Type        string // string, number, integer, boolean, object, array
	Description string
	Required    bool
}

// Handler executes a tool call. It must return a string output or an
// error — never anything else; the loop depends on that shape.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Descriptor is a registered tool: its name, the natural-language
// description the model uses to decide when to call it, its parameter
// schema, and the handler. Description quality directly determines
// orchestration correctness — treat it as contract, not documentation.
type Descriptor struct {
	Name        string
	Description string
	Parameters  map[string]Param
	Handler     Handler
}

// Registry is a fixed mapping from tool name to descriptor, built once
// per session. It preserves registration order for Descriptors and
// Schemas so the list surfaced to the model is stable.
type Registry struct {
	byName map[string]*Descriptor
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Descriptor)}
}

// Register adds a descriptor. Name collisions are rejected.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if d.Handler == nil {
		return fmt.Errorf("tool %q has no handler", d.Name)
	}
	if _, exists := r.byName[d.Name]; exists {
		return &DuplicateToolNameError{Name: d.Name}
	}

	r.byName[d.Name] = &d
	r.order = append(r.order, d.Name)
	return nil
}

// Descriptors returns all descriptors in registration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.byName[name])
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.order)
}

// Schemas renders the registry as the tool list sent to the model
// service, in registration order.
func (r *Registry) Schemas() []map[string]any {
	if len(r.order) == 0 {
		return nil
	}

	out := make([]map[string]any, 0, len(r.order))
	for _, name := range r.order {
		d := r.byName[name]

		properties := make(map[string]any, len(d.Parameters))
		var required []string
		for pname, p := range d.Parameters {
			properties[pname] = map[string]any{
				"type":        p.Type,
				"description": p.Description,
			}
			if p.Required {
				required = append(required, pname)
			}
		}
		sort.Strings(required)

		params := map[string]any{
			"type":       "object",
			"properties": properties,
		}
		if len(required) > 0 {
			params["required"] = required
		}

		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        d.Name,
				"description": d.Description,
				"parameters":  params,
			},
		})
	}
	return out
}

// Invoke validates args against the tool's schema and runs its
// handler synchronously. The result is either a string output or one
// of the typed errors in this package.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	d, ok := r.byName[name]
	if !ok {
		return "", &UnknownToolError{Name: name}
	}

	if err := validateArgs(d, args); err != nil {
		return "", err
	}

	out, err := d.Handler(ctx, args)
	if err != nil {
		return "", &ExecutionError{Tool: name, Err: err}
	}
	return out, nil
}

// validateArgs checks required fields and type coercibility.
func validateArgs(d *Descriptor, args map[string]any) error {
	var missing []string
	for pname, p := range d.Parameters {
		if !p.Required {
			continue
		}
		if _, ok := args[pname]; !ok {
			missing = append(missing, pname)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &InvalidArgumentsError{
			Tool:   d.Name,
			Reason: "missing required: " + strings.Join(missing, ", "),
		}
	}

	for pname, value := range args {
		p, ok := d.Parameters[pname]
		if !ok {
			continue // tolerate extras; models pad arguments freely
		}
		if !typeMatches(value, p.Type) {
			return &InvalidArgumentsError{
				Tool:   d.Name,
				Reason: fmt.Sprintf("%s: expected %s, got %T", pname, p.Type, value),
			}
		}
	}
	return nil
}

// typeMatches reports whether a decoded JSON value is coercible to the
// declared schema type. JSON numbers always decode as float64, so
// integer accepts whole floats.
func typeMatches(value any, expected string) bool {
	switch expected {
	case "", "string":
		_, ok := value.(string)
		return ok || expected == ""
	case "number":
		_, ok := value.(float64)
		if !ok {
			_, ok = value.(int)
		}
		return ok
	case "integer":
		switch v := value.(type) {
		case int:
			return true
		case float64:
			return math.Trunc(v) == v
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	}
	return false
}
