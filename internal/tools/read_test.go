package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func yoloApproval() *ApprovalManager {
	m := NewApprovalManager()
	m.YoloMode = true
	return m
}

func TestReadFile_NumbersLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	os.WriteFile(path, []byte("alpha\nbeta\ngamma"), 0o644)

	tool := NewReadFileTool(yoloApproval(), DefaultOutputLimits())
	out, err := tool.Execute(context.Background(), mustArgs(t, ReadFileArgs{Path: path}))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	want := "1: alpha\n2: beta\n3: gamma"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestReadFile_LineRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	var lines []string
	for i := 1; i <= 10; i++ {
		lines = append(lines, fmt.Sprintf("line %d", i))
	}
	os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644)

	tool := NewReadFileTool(yoloApproval(), DefaultOutputLimits())
	out, err := tool.Execute(context.Background(), mustArgs(t, ReadFileArgs{Path: path, StartLine: 3, EndLine: 4}))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out != "3: line 3\n4: line 4" {
		t.Errorf("output = %q", out)
	}
}

func TestReadFile_Missing(t *testing.T) {
	tool := NewReadFileTool(yoloApproval(), DefaultOutputLimits())
	out, err := tool.Execute(context.Background(), mustArgs(t, ReadFileArgs{Path: filepath.Join(t.TempDir(), "nope")}))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out, string(ErrFileNotFound)) {
		t.Errorf("output = %q", out)
	}
}

func TestReadFile_Binary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bin")
	os.WriteFile(path, []byte{0x7f, 'E', 'L', 'F', 0, 0, 1, 2}, 0o644)

	tool := NewReadFileTool(yoloApproval(), DefaultOutputLimits())
	out, _ := tool.Execute(context.Background(), mustArgs(t, ReadFileArgs{Path: path}))
	if !strings.Contains(out, string(ErrBinaryFile)) {
		t.Errorf("output = %q", out)
	}
}

func TestReadFile_DeniedWithoutApproval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret.txt")
	os.WriteFile(path, []byte("secret"), 0o644)

	tool := NewReadFileTool(NewApprovalManager(), DefaultOutputLimits())
	out, err := tool.Execute(context.Background(), mustArgs(t, ReadFileArgs{Path: path}))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out, string(ErrPermissionDenied)) {
		t.Errorf("output = %q", out)
	}
}

func mustArgs(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
