package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tedsh/ted/internal/llm"
)

// Executor dispatches engine tool calls into the registry. It satisfies the
// engine's Executor interface.
type Executor struct {
	registry *Registry
}

func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

func (e *Executor) ExecuteToolUse(ctx context.Context, use llm.ToolUse) (string, error) {
	tool, ok := e.registry.Get(use.Name)
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", use.Name)
	}
	return tool.Execute(ctx, use.Input)
}

// ApproveAndGetTool runs the pre-dispatch policy check for background tool
// calls. Only spawn_agent carries one; other tools gate inside Execute.
func (e *Executor) ApproveAndGetTool(name string, input json.RawMessage) error {
	tool, ok := e.registry.Get(name)
	if !ok {
		return fmt.Errorf("unknown tool: %s", name)
	}
	if spawn, ok := tool.(*SpawnAgentTool); ok {
		return spawn.Approve(input)
	}
	return nil
}

func (e *Executor) Preview(name string, input json.RawMessage) string {
	tool, ok := e.registry.Get(name)
	if !ok {
		return name
	}
	if preview := tool.Preview(input); preview != "" {
		return preview
	}
	return name
}
