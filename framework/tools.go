package framework

import (
	"context"
	"fmt"
	"sync"
)

// Tool defines a capability the model can invoke. The metadata doubles as a
// schema the model reasons about when deciding which tool to call. Mutating
// reports whether executing the tool can change workspace files; the
// executor uses it to snapshot before writes and to invalidate its result
// cache.
type Tool interface {
	Name() string
	Description() string
	Parameters() []ToolParameter
	Mutating() bool
	Execute(ctx context.Context, args map[string]interface{}) (*ToolResult, error)
}

// ToolParameter describes an argument the tool accepts.
type ToolParameter struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Default     interface{}
}

// ToolResult is returned by every tool execution. Failures travel inside
// the result (Success=false plus Error) so they can be fed back to the
// model as data rather than aborting the turn.
type ToolResult struct {
	Success  bool
	Data     map[string]interface{}
	Error    string
	Metadata map[string]interface{}
}

// ToolRegistry maintains tools by name.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolRegistry builds a registry instance.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry.
func (r *ToolRegistry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; exists {
		return fmt.Errorf("tool %s already registered", tool.Name())
	}
	r.tools[tool.Name()] = tool
	return nil
}

// Get fetches a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// All returns all registered tools.
func (r *ToolRegistry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		res = append(res, t)
	}
	return res
}
