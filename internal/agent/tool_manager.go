package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/agentd/internal/llm"
	"github.com/haasonsaas/agentd/pkg/models"
)

// Tool parameter limits to prevent resource exhaustion.
const (
	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 256

	// MaxToolParamsSize is the maximum size of tool parameters JSON (10MB).
	MaxToolParamsSize = 10 << 20
)

// ToolManager holds the session's tools and their compiled input schemas.
// Inputs are validated against the schema before every invocation; schema
// failures come back to the model as error results, never as Go errors.
type ToolManager struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
	order   []string
}

// NewToolManager creates a manager over the given tools. Duplicate names and
// uncompilable schemas are construction errors.
func NewToolManager(tools ...Tool) (*ToolManager, error) {
	m := &ToolManager{
		tools:   make(map[string]Tool, len(tools)),
		schemas: make(map[string]*jsonschema.Schema, len(tools)),
	}
	for _, tool := range tools {
		if err := m.Register(tool); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Register adds a tool, compiling its schema. Duplicate names are fatal.
func (m *ToolManager) Register(tool Tool) error {
	name := tool.Name()
	if name == "" || len(name) > MaxToolNameLength {
		return fmt.Errorf("invalid tool name %q", name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tools[name]; exists {
		return fmt.Errorf("duplicate tool name %q", name)
	}
	schema, err := jsonschema.CompileString(name+".json", string(tool.Schema()))
	if err != nil {
		return fmt.Errorf("compile schema for %q: %w", name, err)
	}
	m.tools[name] = tool
	m.schemas[name] = schema
	m.order = append(m.order, name)
	return nil
}

// Get returns a tool by name.
func (m *ToolManager) Get(name string) (Tool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tool, ok := m.tools[name]
	return tool, ok
}

// Params returns the tool definitions in registration order for the model.
func (m *ToolManager) Params() []llm.ToolParam {
	m.mu.RLock()
	defer m.mu.RUnlock()
	params := make([]llm.ToolParam, 0, len(m.order))
	for _, name := range m.order {
		tool := m.tools[name]
		params = append(params, llm.ToolParam{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.Schema(),
		})
	}
	return params
}

// Execute validates the call input and runs the tool. All failure modes are
// reported as error results so the run loop can continue.
func (m *ToolManager) Execute(ctx context.Context, call models.ToolCall) *ToolResult {
	if len(call.Name) > MaxToolNameLength {
		return ToolError(fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength))
	}
	raw := call.RawInput()
	if len(raw) > MaxToolParamsSize {
		return ToolError(fmt.Sprintf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize))
	}

	m.mu.RLock()
	tool, ok := m.tools[call.Name]
	schema := m.schemas[call.Name]
	m.mu.RUnlock()
	if !ok {
		return ToolError("tool not found: " + call.Name)
	}

	var input any = map[string]any{}
	if call.Input != nil {
		input = call.Input
	}
	if err := schema.Validate(input); err != nil {
		return ToolError("Invalid tool input: " + err.Error())
	}

	result, err := tool.Execute(ctx, raw)
	if err != nil {
		return ToolError("Error: " + err.Error())
	}
	if result == nil {
		return ToolError("Error: tool returned no result")
	}
	return result
}
