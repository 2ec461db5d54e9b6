package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFile_CreatesParents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "out.txt")

	tool := NewWriteFileTool(yoloApproval())
	out, err := tool.Execute(context.Background(), mustArgs(t, WriteFileArgs{Path: path, Content: "hello"}))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out, "Wrote 5 bytes") {
		t.Errorf("output = %q", out)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "hello" {
		t.Errorf("file content = %q, err = %v", data, err)
	}
}

func TestEditFile_ReplacesUniqueMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.go")
	os.WriteFile(path, []byte("count := 1\nprint(count)\n"), 0o644)

	tool := NewEditFileTool(yoloApproval())
	_, err := tool.Execute(context.Background(), mustArgs(t, EditFileArgs{
		Path: path, OldString: "count := 1", NewString: "count := 2",
	}))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "count := 2\nprint(count)\n" {
		t.Errorf("content = %q", data)
	}
}

func TestEditFile_AmbiguousMatchFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	os.WriteFile(path, []byte("x\nx\n"), 0o644)

	tool := NewEditFileTool(yoloApproval())
	out, _ := tool.Execute(context.Background(), mustArgs(t, EditFileArgs{
		Path: path, OldString: "x", NewString: "y",
	}))
	if !strings.Contains(out, "matches 2 times") {
		t.Errorf("output = %q", out)
	}

	// replace_all resolves it
	out, _ = tool.Execute(context.Background(), mustArgs(t, EditFileArgs{
		Path: path, OldString: "x", NewString: "y", ReplaceAll: true,
	}))
	if !strings.Contains(out, "Replaced 2") {
		t.Errorf("output = %q", out)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "y\ny\n" {
		t.Errorf("content = %q", data)
	}
}

func TestEditFile_OldStringNotFound(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	os.WriteFile(path, []byte("hello"), 0o644)

	tool := NewEditFileTool(yoloApproval())
	out, _ := tool.Execute(context.Background(), mustArgs(t, EditFileArgs{
		Path: path, OldString: "goodbye", NewString: "farewell",
	}))
	if !strings.Contains(out, "not found") {
		t.Errorf("output = %q", out)
	}
}
