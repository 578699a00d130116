package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Tool defines the interface for executable agent tools.
//
// Implementing a Tool:
//
//	type Calculator struct{}
//
//	func (c *Calculator) Name() string        { return "calculator" }
//	func (c *Calculator) Description() string { return "Evaluates arithmetic" }
//
//	func (c *Calculator) Schema() json.RawMessage {
//		return json.RawMessage(`{
//			"type": "object",
//			"properties": {
//				"expression": {"type": "string"}
//			},
//			"required": ["expression"]
//		}`)
//	}
//
//	func (c *Calculator) Execute(ctx context.Context, input json.RawMessage) (string, error) {
//		var in struct{ Expression string `json:"expression"` }
//		json.Unmarshal(input, &in)
//		return evaluate(in.Expression), nil
//	}
type Tool interface {
	// Name returns the tool name used for LLM function calling.
	Name() string

	// Description tells the model when to use the tool.
	Description() string

	// Schema returns the JSON Schema for the tool's input.
	Schema() json.RawMessage

	// Execute runs the tool with input matching Schema.
	Execute(ctx context.Context, input json.RawMessage) (string, error)
}

// ToolRegistry holds the tools available to an engine.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolRegistry creates an empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any tool with the same name.
func (r *ToolRegistry) Register(tool Tool) {
	if tool == nil || tool.Name() == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns the named tool.
func (r *ToolRegistry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return tool, nil
}

// List returns the registered tools sorted by name.
func (r *ToolRegistry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
