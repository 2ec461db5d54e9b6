package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tedsh/ted/internal/engine"
	"github.com/tedsh/ted/internal/llm"
)

// SpawnRunner executes one sub-agent turn. agents.Runner satisfies this;
// the indirection keeps tools from importing the agents package directly.
type SpawnRunner interface {
	Run(ctx context.Context, agentType, task string, exec engine.Executor) (string, error)
}

// SpawnConfig bounds concurrent sub-agents.
type SpawnConfig struct {
	MaxParallel int // simultaneous agents, default 3
	MaxDepth    int // nesting levels, default 1
}

func (c SpawnConfig) withDefaults() SpawnConfig {
	if c.MaxParallel <= 0 {
		c.MaxParallel = 3
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = 1
	}
	return c
}

// SpawnAgentTool implements spawn_agent. The runner and the executor handed
// to sub-agents are wired after construction because both depend on the
// registry this tool is registered in.
type SpawnAgentTool struct {
	cfg    SpawnConfig
	depth  int
	sem    chan struct{}
	runner SpawnRunner
	exec   engine.Executor
}

func NewSpawnAgentTool(cfg SpawnConfig, depth int) *SpawnAgentTool {
	cfg = cfg.withDefaults()
	return &SpawnAgentTool{
		cfg:   cfg,
		depth: depth,
		sem:   make(chan struct{}, cfg.MaxParallel),
	}
}

// SetRunner wires the sub-agent runner and the executor sub-agents use.
func (t *SpawnAgentTool) SetRunner(runner SpawnRunner, exec engine.Executor) {
	t.runner = runner
	t.exec = exec
}

// SpawnAgentArgs are the arguments for spawn_agent.
type SpawnAgentArgs struct {
	AgentType string `json:"agent_type"`
	Task      string `json:"task"`
}

func (t *SpawnAgentTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        SpawnAgentToolName,
		Description: "Spawn a background agent to work on a task while the conversation continues. Returns the agent's final report.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"agent_type": map[string]interface{}{
					"type":        "string",
					"description": "Agent definition to run, e.g. 'plan' or 'research'",
				},
				"task": map[string]interface{}{
					"type":        "string",
					"description": "Task description handed to the agent",
				},
			},
			"required":             []string{"agent_type", "task"},
			"additionalProperties": false,
		},
	}
}

func (t *SpawnAgentTool) Preview(args json.RawMessage) string {
	var a SpawnAgentArgs
	if err := json.Unmarshal(args, &a); err != nil || a.AgentType == "" {
		return ""
	}
	task := a.Task
	if len(task) > 60 {
		task = task[:57] + "..."
	}
	return fmt.Sprintf("%s: %s", a.AgentType, task)
}

// Approve is the pre-dispatch policy check. It validates arguments, refuses
// nesting past the depth limit, and claims a slot in the parallelism
// semaphore. Execute releases the slot.
func (t *SpawnAgentTool) Approve(args json.RawMessage) error {
	var a SpawnAgentArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return NewToolError(ErrInvalidParams, err.Error())
	}
	if a.AgentType == "" || a.Task == "" {
		return NewToolError(ErrInvalidParams, "agent_type and task are required")
	}
	if t.runner == nil {
		return NewToolError(ErrExecutionFailed, "no agent runner configured")
	}
	if t.depth >= t.cfg.MaxDepth {
		return NewToolErrorf(ErrPermissionDenied, "agent nesting limit reached (%d)", t.cfg.MaxDepth)
	}
	select {
	case t.sem <- struct{}{}:
		return nil
	default:
		return NewToolErrorf(ErrExecutionFailed, "too many agents running (max %d)", t.cfg.MaxParallel)
	}
}

func (t *SpawnAgentTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	defer func() {
		select {
		case <-t.sem:
		default:
		}
	}()

	var a SpawnAgentArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}
	return t.runner.Run(ctx, a.AgentType, a.Task, t.exec)
}
