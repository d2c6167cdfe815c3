package tools

import (
	"context"
	"fmt"
	"sync"
)

// ParamType is the declared type a tool argument is coerced to before the
// handler sees it.
type ParamType int

const (
	String ParamType = iota
	Integer
	Boolean
)

func (t ParamType) String() string {
	switch t {
	case Integer:
		return "integer"
	case Boolean:
		return "boolean"
	default:
		return "string"
	}
}

// Param declares one tool argument.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
}

// Caller identifies who a tool runs on behalf of.
type Caller struct {
	UserID string
	ChatID string
}

// Handler executes a tool with coerced arguments. A returned error becomes a
// "tool error: ..." result string; it never aborts the conversation.
type Handler func(ctx context.Context, c Caller, args Args) (string, error)

type Tool struct {
	Name        string
	Description string
	Params      []Param
	Handler     Handler
}

// Schema is the model-facing description of a tool. Parameters is a JSON
// Schema object.
type Schema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Registry holds tools in registration order.
type Registry struct {
	mu    sync.RWMutex
	tools []Tool
	index map[string]int
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register adds t. Names must be unique and handlers non-nil.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %s: handler is required", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[t.Name]; ok {
		return fmt.Errorf("tool %s already registered", t.Name)
	}
	r.index[t.Name] = len(r.tools)
	r.tools = append(r.tools, t)
	return nil
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[name]
	if !ok {
		return Tool{}, false
	}
	return r.tools[i], true
}

// Tools returns a copy of the registered tools.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Tool(nil), r.tools...)
}

func (r *Registry) Schemas() []Schema {
	tools := r.Tools()
	out := make([]Schema, 0, len(tools))
	for _, t := range tools {
		out = append(out, t.Schema())
	}
	return out
}

func (t Tool) Schema() Schema {
	props := make(map[string]any, len(t.Params))
	required := []string{}
	for _, p := range t.Params {
		props[p.Name] = map[string]any{
			"type":        p.Type.String(),
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return Schema{
		Name:        t.Name,
		Description: t.Description,
		Parameters: map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}
