package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tedsh/ted/internal/llm"
)

func init() {
	// keep poll-based waits fast in tests
	pollInterval = 2 * time.Millisecond
}

// scriptedExecutor dispatches tool calls to per-name funcs.
type scriptedExecutor struct {
	mu       sync.Mutex
	handlers map[string]func(ctx context.Context, input json.RawMessage) (string, error)
	denied   map[string]error
	executed []string
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{
		handlers: make(map[string]func(context.Context, json.RawMessage) (string, error)),
		denied:   make(map[string]error),
	}
}

func (e *scriptedExecutor) handle(name string, fn func(context.Context, json.RawMessage) (string, error)) {
	e.handlers[name] = fn
}

func (e *scriptedExecutor) ExecuteToolUse(ctx context.Context, use llm.ToolUse) (string, error) {
	e.mu.Lock()
	e.executed = append(e.executed, use.ID)
	fn := e.handlers[use.Name]
	e.mu.Unlock()
	if fn == nil {
		return "", fmt.Errorf("unknown tool: %s", use.Name)
	}
	return fn(ctx, use.Input)
}

func (e *scriptedExecutor) ApproveAndGetTool(name string, input json.RawMessage) error {
	return e.denied[name]
}

func (e *scriptedExecutor) Preview(name string, input json.RawMessage) string {
	return name
}

func use(id, name, input string) llm.ToolUse {
	return llm.ToolUse{ID: id, Name: name, Input: json.RawMessage(input)}
}

func resultByID(t *testing.T, results []llm.ToolResult, id string) llm.ToolResult {
	t.Helper()
	for _, r := range results {
		if r.ToolUseID == id {
			return r
		}
	}
	t.Fatalf("no result for id %s in %+v", id, results)
	return llm.ToolResult{}
}

func TestExecuteToolUses_RegularOrderPreserved(t *testing.T) {
	exec := newScriptedExecutor()
	exec.handle("shell", func(ctx context.Context, input json.RawMessage) (string, error) {
		return "ok:" + string(input), nil
	})

	uses := []llm.ToolUse{
		use("a", "shell", `{"command":"one"}`),
		use("b", "shell", `{"command":"two"}`),
		use("c", "shell", `{"command":"three"}`),
	}
	var interrupted atomic.Bool
	out := ExecuteToolUses(context.Background(), uses, exec, nil, &interrupted)

	if len(out.Results) != 3 {
		t.Fatalf("got %d results", len(out.Results))
	}
	for i, id := range []string{"a", "b", "c"} {
		if out.Results[i].ToolUseID != id {
			t.Errorf("result %d = %s, want %s", i, out.Results[i].ToolUseID, id)
		}
	}
	if len(out.CancelledIDs) != 0 {
		t.Errorf("unexpected cancellations: %v", out.CancelledIDs)
	}
}

func TestExecuteToolUses_ToolErrorBecomesErrorResult(t *testing.T) {
	exec := newScriptedExecutor()
	exec.handle("shell", func(ctx context.Context, input json.RawMessage) (string, error) {
		return "", errors.New("command not found")
	})

	var interrupted atomic.Bool
	out := ExecuteToolUses(context.Background(), []llm.ToolUse{use("a", "shell", `{}`)}, exec, nil, &interrupted)

	r := resultByID(t, out.Results, "a")
	if !r.IsError || r.Content != "command not found" {
		t.Errorf("result = %+v", r)
	}
	if out.CancelledIDs["a"] {
		t.Error("an executed failure is not a cancellation")
	}
}

func TestExecuteToolUses_AgentRunsConcurrentlyWithRegular(t *testing.T) {
	exec := newScriptedExecutor()
	agentStarted := make(chan struct{})
	exec.handle("spawn_agent", func(ctx context.Context, input json.RawMessage) (string, error) {
		close(agentStarted)
		time.Sleep(20 * time.Millisecond)
		return "outline done", nil
	})
	exec.handle("shell", func(ctx context.Context, input json.RawMessage) (string, error) {
		// the agent task must already be running while the regular tool
		// executes
		select {
		case <-agentStarted:
		case <-time.After(time.Second):
			return "", errors.New("agent never started")
		}
		return "hi", nil
	})

	uses := []llm.ToolUse{
		use("a", "shell", `{"command":"echo hi"}`),
		use("b", "spawn_agent", `{"agent_type":"plan","task":"outline"}`),
	}
	var interrupted atomic.Bool
	out := ExecuteToolUses(context.Background(), uses, exec, nil, &interrupted)

	if len(out.Results) != 2 {
		t.Fatalf("got %d results: %+v", len(out.Results), out.Results)
	}
	if r := resultByID(t, out.Results, "a"); r.IsError || r.Content != "hi" {
		t.Errorf("shell result = %+v", r)
	}
	if r := resultByID(t, out.Results, "b"); r.IsError || r.Content != "outline done" {
		t.Errorf("agent result = %+v", r)
	}
	// regular results come first
	if out.Results[0].ToolUseID != "a" {
		t.Errorf("regular result should precede agent result: %+v", out.Results)
	}
}

func TestExecuteToolUses_AgentDenialIsErrorResult(t *testing.T) {
	exec := newScriptedExecutor()
	exec.denied["spawn_agent"] = errors.New("spawn_agent denied by policy")

	var interrupted atomic.Bool
	out := ExecuteToolUses(context.Background(), []llm.ToolUse{
		use("b", "spawn_agent", `{"agent_type":"plan"}`),
	}, exec, nil, &interrupted)

	r := resultByID(t, out.Results, "b")
	if !r.IsError || !strings.Contains(r.Content, "denied") {
		t.Errorf("result = %+v", r)
	}
	if len(exec.executed) != 0 {
		t.Error("denied call must not execute")
	}
}

func TestExecuteToolUses_AgentPanicIsErrorResult(t *testing.T) {
	exec := newScriptedExecutor()
	exec.handle("spawn_agent", func(ctx context.Context, input json.RawMessage) (string, error) {
		panic("boom")
	})

	var interrupted atomic.Bool
	out := ExecuteToolUses(context.Background(), []llm.ToolUse{
		use("b", "spawn_agent", `{}`),
	}, exec, nil, &interrupted)

	r := resultByID(t, out.Results, "b")
	if !r.IsError || !strings.Contains(r.Content, "boom") {
		t.Errorf("result = %+v", r)
	}
}

func TestExecuteToolUses_InterruptCancelsRemaining(t *testing.T) {
	exec := newScriptedExecutor()
	var interrupted atomic.Bool
	exec.handle("slow", func(ctx context.Context, input json.RawMessage) (string, error) {
		time.Sleep(50 * time.Millisecond)
		return "done", nil
	})
	exec.handle("trigger", func(ctx context.Context, input json.RawMessage) (string, error) {
		interrupted.Store(true)
		return "ok", nil
	})

	uses := []llm.ToolUse{
		use("a", "trigger", `{}`),
		use("b", "slow", `{}`),
		use("c", "slow", `{}`),
	}
	out := ExecuteToolUses(context.Background(), uses, exec, nil, &interrupted)

	if r := resultByID(t, out.Results, "a"); r.IsError {
		t.Errorf("first tool finished before the interrupt: %+v", r)
	}
	for _, id := range []string{"b", "c"} {
		r := resultByID(t, out.Results, id)
		if !r.IsError || r.Content != "Cancelled by user" {
			t.Errorf("result %s = %+v", id, r)
		}
		if !out.CancelledIDs[id] {
			t.Errorf("id %s should be in CancelledIDs", id)
		}
	}
}

func TestExecuteToolUses_CallIDReachesAgentContext(t *testing.T) {
	exec := newScriptedExecutor()
	var gotID atomic.Value
	exec.handle("spawn_agent", func(ctx context.Context, input json.RawMessage) (string, error) {
		gotID.Store(llm.CallIDFromContext(ctx))
		return "ok", nil
	})

	var interrupted atomic.Bool
	ExecuteToolUses(context.Background(), []llm.ToolUse{
		use("toolu_X", "spawn_agent", `{}`),
	}, exec, nil, &interrupted)

	if got, _ := gotID.Load().(string); got != "toolu_X" {
		t.Errorf("call id in context = %q, want toolu_X", got)
	}
}

type countingSurface struct {
	mu       sync.Mutex
	started  []string
	finished []string
	ticks    int
}

func (s *countingSurface) ToolStarted(use llm.ToolUse, preview string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, use.ID)
}

func (s *countingSurface) ToolFinished(id string, output string, isError bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, id)
}

func (s *countingSurface) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks++
}

func TestExecuteToolUses_SurfaceSeesRowsAndTicks(t *testing.T) {
	exec := newScriptedExecutor()
	exec.handle("slow", func(ctx context.Context, input json.RawMessage) (string, error) {
		time.Sleep(15 * time.Millisecond)
		return "done", nil
	})

	surface := &countingSurface{}
	var interrupted atomic.Bool
	ExecuteToolUses(context.Background(), []llm.ToolUse{use("a", "slow", `{}`)}, exec, surface, &interrupted)

	if len(surface.started) != 1 || len(surface.finished) != 1 {
		t.Errorf("started=%v finished=%v", surface.started, surface.finished)
	}
	if surface.ticks == 0 {
		t.Error("surface should have been ticked while the tool ran")
	}
}
