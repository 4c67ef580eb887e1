package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/corralhq/corral/modelservice"
)

// ToolExecutor is the function signature for tool execution. It receives
// the raw call arguments and returns the tool's textual output.
type ToolExecutor func(ctx context.Context, arguments json.RawMessage) (string, error)

// RegisteredTool pairs a tool schema with its executor.
type RegisteredTool struct {
	Schema   modelservice.ToolSchema
	Executor ToolExecutor
}

// ToolRegistry manages tool registration and lookup.
type ToolRegistry struct {
	tools map[string]*RegisteredTool
	mu    sync.RWMutex
}

// NewToolRegistry creates an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]*RegisteredTool),
	}
}

// Register adds or replaces a tool in the registry.
func (r *ToolRegistry) Register(tool RegisteredTool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Schema.Name] = &tool
}

// Get returns a registered tool by name, or nil if not found.
func (r *ToolRegistry) Get(name string) *RegisteredTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Schemas returns all tool schemas in name order, for sending to the
// model service.
func (r *ToolRegistry) Schemas() []modelservice.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemas := make([]modelservice.ToolSchema, 0, len(r.tools))
	for _, tool := range r.tools {
		schemas = append(schemas, tool.Schema)
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

// Names returns the names of all registered tools in name order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// ToolResult is the outcome of a single dispatched tool call. Exactly one
// of Output and Err is set.
type ToolResult struct {
	CallID string
	Name   string
	Output string
	Err    string
}

// IsError reports whether the result carries an error payload.
func (tr ToolResult) IsError() bool { return tr.Err != "" }

// Content returns whichever payload is set.
func (tr ToolResult) Content() string {
	if tr.IsError() {
		return tr.Err
	}
	return tr.Output
}

// Dispatch resolves a tool call against the registry and executes it.
// Every failure mode, an unknown name, bad arguments, a tool error, even
// a panicking executor, comes back as a well-formed error result; the
// caller never needs its own recovery around a tool call.
func (r *ToolRegistry) Dispatch(ctx context.Context, call modelservice.ToolCallData) (result ToolResult) {
	result = ToolResult{CallID: call.ID, Name: call.Name}

	tool := r.Get(call.Name)
	if tool == nil {
		result.Err = fmt.Sprintf("Error: %v", &UnknownToolError{Name: call.Name})
		return result
	}

	defer func() {
		if rec := recover(); rec != nil {
			result.Output = ""
			result.Err = fmt.Sprintf("Error: tool %s panicked: %v", call.Name, rec)
		}
	}()

	output, err := tool.Executor(ctx, call.Arguments)
	if err != nil {
		result.Err = fmt.Sprintf("Error: %v", err)
		return result
	}
	result.Output = output
	return result
}
