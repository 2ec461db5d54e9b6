package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/tedsh/ted/internal/llm"
)

type fakeExecutor struct {
	outputs map[string]string
}

func (f *fakeExecutor) ExecuteToolUse(ctx context.Context, use llm.ToolUse) (string, error) {
	if out, ok := f.outputs[use.Name]; ok {
		return out, nil
	}
	return "", fmt.Errorf("unknown tool: %s", use.Name)
}

func (f *fakeExecutor) ApproveAndGetTool(name string, input json.RawMessage) error { return nil }

func (f *fakeExecutor) Preview(name string, input json.RawMessage) string { return name }

func TestRunner_RunTracksProgress(t *testing.T) {
	provider := llm.NewMockProvider("test")
	provider.AddToolUseResponse(llm.ToolUse{ID: "c1", Name: "file_read", Input: json.RawMessage(`{"path":"main.go"}`)})
	provider.AddTextResponse("The plan: refactor main.")

	r := &Runner{
		Registry: NewRegistry(nil),
		Tracker:  NewProgressTracker(),
		Provider: provider,
		Model:    "mock-model",
	}

	ctx := llm.ContextWithCallID(context.Background(), "toolu_spawn")
	out, err := r.Run(ctx, "plan", "outline the refactor", &fakeExecutor{
		outputs: map[string]string{"file_read": "package main"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out != "The plan: refactor main." {
		t.Errorf("output = %q", out)
	}

	a, ok := r.Tracker.Get("toolu_spawn")
	if !ok {
		t.Fatal("agent not tracked")
	}
	if !a.Completed || a.Status != StatusCompleted {
		t.Errorf("agent state = %+v", a)
	}
	var sawCall, sawText bool
	for _, e := range a.Conversation {
		if e.IsToolCall() && e.Name == "file_read" && e.Status == EntrySuccess {
			sawCall = true
		}
		if !e.IsToolCall() && strings.Contains(e.Text, "The plan") {
			sawText = true
		}
	}
	if !sawCall || !sawText {
		t.Errorf("conversation log = %+v", a.Conversation)
	}
}

func TestRunner_UnknownAgentType(t *testing.T) {
	r := &Runner{
		Registry: NewRegistry(nil),
		Tracker:  NewProgressTracker(),
		Provider: llm.NewMockProvider("test"),
		Model:    "mock-model",
	}
	ctx := llm.ContextWithCallID(context.Background(), "toolu_spawn")
	if _, err := r.Run(ctx, "nonsense", "task", &fakeExecutor{}); err == nil {
		t.Fatal("expected error for unknown agent type")
	}
}

func TestRunner_RequiresCallID(t *testing.T) {
	r := &Runner{Registry: NewRegistry(nil), Tracker: NewProgressTracker()}
	if _, err := r.Run(context.Background(), "plan", "task", &fakeExecutor{}); err == nil {
		t.Fatal("expected error without a call id in context")
	}
}

func TestRunner_DisallowedToolFailsEntry(t *testing.T) {
	provider := llm.NewMockProvider("test")
	// plan agents have no shell access
	provider.AddToolUseResponse(llm.ToolUse{ID: "c1", Name: "shell", Input: json.RawMessage(`{"command":"rm -rf /"}`)})
	provider.AddTextResponse("Could not run that.")

	r := &Runner{
		Registry: NewRegistry(nil),
		Tracker:  NewProgressTracker(),
		Provider: provider,
		Model:    "mock-model",
	}
	ctx := llm.ContextWithCallID(context.Background(), "toolu_spawn")
	if _, err := r.Run(ctx, "plan", "task", &fakeExecutor{outputs: map[string]string{"shell": "ok"}}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	a, _ := r.Tracker.Get("toolu_spawn")
	var sawFailed bool
	for _, e := range a.Conversation {
		if e.IsToolCall() && e.Status == EntryFailed && strings.Contains(e.Error, "not available") {
			sawFailed = true
		}
	}
	if !sawFailed {
		t.Errorf("expected a failed tool entry, log = %+v", a.Conversation)
	}
}
