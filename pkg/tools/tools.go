// Package tools defines the tool contract the agent loop dispatches
// against, a registry of named tools, and structural argument validation
// against each tool's declared JSON-schema-shaped parameters.
package tools

import (
	"context"
	"fmt"

	"github.com/mariozechner/agentcore/pkg/message"
)

// PartialFunc is called zero or more times during a long-running tool's
// execution with incremental output; the loop forwards each call as a
// ToolExecutionUpdate event.
type PartialFunc func(text string)

// Result is a tool invocation's outcome.
type Result struct {
	Content []message.Block
	Details map[string]any
	IsError bool
}

// TextResult is a convenience constructor for the common case of a single
// text block result.
func TextResult(text string, isError bool) Result {
	return Result{Content: message.TextBlocks(text), IsError: isError}
}

// Tool is one callable the agent loop may dispatch a model's tool-call to.
type Tool interface {
	Name() string
	Description() string
	// ParametersSchema is a JSON-schema-shaped description of accepted
	// arguments, validated structurally by ValidateArguments before
	// Execute is ever called.
	ParametersSchema() map[string]any
	Execute(ctx context.Context, toolCallID string, args map[string]any, onPartial PartialFunc) (Result, error)
}

// Registry holds the toolset available to one agent run.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds t, replacing any existing tool of the same name.
func (r *Registry) Register(t Tool) {
	name := t.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool in registration order.
func (r *Registry) List() []Tool {
	list := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		list = append(list, r.tools[name])
	}
	return list
}

// ValidateArguments structurally checks args against tool's declared
// schema: required properties present, declared types matched. It does
// not implement the full JSON Schema specification (no $ref, oneOf,
// pattern, etc.) — only the object/properties/required/type shape every
// tool in this module actually declares.
func ValidateArguments(tool Tool, args map[string]any) error {
	schema := tool.ParametersSchema()
	if schema == nil {
		return nil
	}

	if required, ok := schema["required"].([]string); ok {
		for _, name := range required {
			if _, present := args[name]; !present {
				return fmt.Errorf("missing required argument %q", name)
			}
		}
	}

	props, _ := schema["properties"].(map[string]any)
	for name, value := range args {
		propSchema, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		wantType, _ := propSchema["type"].(string)
		if wantType == "" {
			continue
		}
		if !matchesType(value, wantType) {
			return fmt.Errorf("argument %q: expected %s, got %T", name, wantType, value)
		}
	}
	return nil
}

func matchesType(value any, wantType string) bool {
	switch wantType {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "integer":
		switch v := value.(type) {
		case int, int64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}
