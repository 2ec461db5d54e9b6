package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tedsh/ted/internal/engine"
	"github.com/tedsh/ted/internal/llm"
)

type stubRunner struct {
	ran []string
	out string
}

func (s *stubRunner) Run(ctx context.Context, agentType, task string, exec engine.Executor) (string, error) {
	s.ran = append(s.ran, agentType)
	return s.out, nil
}

func testExecutor(t *testing.T) (*Executor, *Registry) {
	t.Helper()
	reg, err := NewRegistry(yoloApproval(), nil, SpawnConfig{})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return NewExecutor(reg), reg
}

func TestExecutor_DispatchesByName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	os.WriteFile(path, []byte("content"), 0o644)

	exec, _ := testExecutor(t)
	out, err := exec.ExecuteToolUse(context.Background(), llm.ToolUse{
		ID:    "t1",
		Name:  ReadFileToolName,
		Input: mustArgs(t, ReadFileArgs{Path: path}),
	})
	if err != nil {
		t.Fatalf("ExecuteToolUse() error = %v", err)
	}
	if !strings.Contains(out, "content") {
		t.Errorf("output = %q", out)
	}
}

func TestExecutor_UnknownTool(t *testing.T) {
	exec, _ := testExecutor(t)
	_, err := exec.ExecuteToolUse(context.Background(), llm.ToolUse{ID: "t1", Name: "teleport"})
	if err == nil || !strings.Contains(err.Error(), "unknown tool") {
		t.Errorf("err = %v", err)
	}
}

func TestExecutor_Preview(t *testing.T) {
	exec, _ := testExecutor(t)
	preview := exec.Preview(ShellToolName, mustArgs(t, ShellArgs{Command: "ls -la"}))
	if preview != "ls -la" {
		t.Errorf("preview = %q", preview)
	}
	// unknown tools fall back to the name
	if got := exec.Preview("mystery", nil); got != "mystery" {
		t.Errorf("preview = %q", got)
	}
}

func TestExecutor_SpawnApprovalAndRun(t *testing.T) {
	exec, reg := testExecutor(t)
	runner := &stubRunner{out: "agent report"}
	reg.SpawnTool().SetRunner(runner, exec)

	input := mustArgs(t, SpawnAgentArgs{AgentType: "plan", Task: "outline"})
	if err := exec.ApproveAndGetTool(SpawnAgentToolName, input); err != nil {
		t.Fatalf("ApproveAndGetTool() error = %v", err)
	}
	out, err := exec.ExecuteToolUse(context.Background(), llm.ToolUse{
		ID: "s1", Name: SpawnAgentToolName, Input: input,
	})
	if err != nil {
		t.Fatalf("ExecuteToolUse() error = %v", err)
	}
	if out != "agent report" || len(runner.ran) != 1 {
		t.Errorf("out = %q, ran = %v", out, runner.ran)
	}
}

func TestExecutor_SpawnApprovalRejectsBadArgs(t *testing.T) {
	exec, reg := testExecutor(t)
	reg.SpawnTool().SetRunner(&stubRunner{}, exec)

	if err := exec.ApproveAndGetTool(SpawnAgentToolName, json.RawMessage(`{"agent_type":"plan"}`)); err == nil {
		t.Error("expected error for missing task")
	}
	if err := exec.ApproveAndGetTool(SpawnAgentToolName, json.RawMessage(`not json`)); err == nil {
		t.Error("expected error for invalid json")
	}
}

func TestExecutor_SpawnWithoutRunnerDenied(t *testing.T) {
	exec, _ := testExecutor(t)
	input := mustArgs(t, SpawnAgentArgs{AgentType: "plan", Task: "x"})
	if err := exec.ApproveAndGetTool(SpawnAgentToolName, input); err == nil {
		t.Error("expected error when no runner is wired")
	}
}

func TestSpawnTool_ParallelLimit(t *testing.T) {
	tool := NewSpawnAgentTool(SpawnConfig{MaxParallel: 2}, 0)
	tool.SetRunner(&stubRunner{}, nil)
	input := mustArgs(t, SpawnAgentArgs{AgentType: "plan", Task: "x"})

	if err := tool.Approve(input); err != nil {
		t.Fatalf("first Approve() error = %v", err)
	}
	if err := tool.Approve(input); err != nil {
		t.Fatalf("second Approve() error = %v", err)
	}
	if err := tool.Approve(input); err == nil {
		t.Error("third Approve() should hit the parallel limit")
	}

	// finishing one run frees a slot
	if _, err := tool.Execute(context.Background(), input); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if err := tool.Approve(input); err != nil {
		t.Errorf("Approve() after release error = %v", err)
	}
}

func TestSpawnTool_DepthLimit(t *testing.T) {
	tool := NewSpawnAgentTool(SpawnConfig{MaxDepth: 1}, 1)
	tool.SetRunner(&stubRunner{}, nil)
	input := mustArgs(t, SpawnAgentArgs{AgentType: "plan", Task: "x"})
	if err := tool.Approve(input); err == nil {
		t.Error("expected depth limit error")
	}
}

func TestRegistry_SpecsSorted(t *testing.T) {
	_, reg := testExecutor(t)
	specs := reg.Specs()
	if len(specs) != len(DefaultEnabled()) {
		t.Fatalf("got %d specs", len(specs))
	}
	for i := 1; i < len(specs); i++ {
		if specs[i-1].Name >= specs[i].Name {
			t.Errorf("specs not sorted: %q before %q", specs[i-1].Name, specs[i].Name)
		}
	}
}
