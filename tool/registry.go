package tool

import (
	"github.com/hupe1980/pipemesh/core"
	"github.com/hupe1980/pipemesh/model"
)

// Registry maps tool names to tools. It is populated once and read-only
// afterwards, so lookups need no locking.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds a registry. Empty or duplicate names are rejected.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}

	for _, t := range tools {
		if t == nil {
			return nil, &core.ConfigError{Field: "tools", Message: "nil tool"}
		}

		name := t.Name()
		if name == "" {
			return nil, &core.ConfigError{Field: "tools", Message: "tool name must not be empty"}
		}

		if _, exists := r.tools[name]; exists {
			return nil, &core.ConfigError{Field: "tools", Message: "duplicate tool name " + name}
		}

		r.tools[name] = t
		r.order = append(r.order, name)
	}

	return r, nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.order) }

// Names returns tool names in registration order.
func (r *Registry) Names() []string { return append([]string(nil), r.order...) }

// All returns the tools in registration order.
func (r *Registry) All() []Tool {
	result := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.tools[name])
	}
	return result
}

// Definitions returns the model-facing declarations in registration order.
func (r *Registry) Definitions() []model.ToolDefinition {
	result := make([]model.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		result = append(result, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return result
}
