package tools

import (
	"context"
	"strings"
	"testing"
)

func TestShell_RunsCommand(t *testing.T) {
	tool := NewShellTool(yoloApproval(), DefaultOutputLimits())
	out, err := tool.Execute(context.Background(), mustArgs(t, ShellArgs{Command: "echo hello"}))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out, "hello") {
		t.Errorf("output = %q", out)
	}
}

func TestShell_ReportsExitCode(t *testing.T) {
	tool := NewShellTool(yoloApproval(), DefaultOutputLimits())
	out, err := tool.Execute(context.Background(), mustArgs(t, ShellArgs{Command: "exit 3"}))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out, "[exit code: 3]") {
		t.Errorf("output = %q", out)
	}
}

func TestShell_DeniedCommand(t *testing.T) {
	tool := NewShellTool(NewApprovalManager(), DefaultOutputLimits())
	out, err := tool.Execute(context.Background(), mustArgs(t, ShellArgs{Command: "echo hi"}))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out, string(ErrPermissionDenied)) {
		t.Errorf("output = %q", out)
	}
}

func TestShell_ApprovedPatternRuns(t *testing.T) {
	m := NewApprovalManager()
	m.ApproveShellPattern("echo *")
	tool := NewShellTool(m, DefaultOutputLimits())

	out, err := tool.Execute(context.Background(), mustArgs(t, ShellArgs{Command: "echo approved"}))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out, "approved") {
		t.Errorf("output = %q", out)
	}
}

func TestShell_Preview(t *testing.T) {
	tool := NewShellTool(nil, DefaultOutputLimits())
	long := strings.Repeat("x", 80)
	preview := tool.Preview(mustArgs(t, ShellArgs{Command: long}))
	if len(preview) != 50 || !strings.HasSuffix(preview, "...") {
		t.Errorf("preview = %q (len %d)", preview, len(preview))
	}
}
