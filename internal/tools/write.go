package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tedsh/ted/internal/llm"
)

// WriteFileTool implements file_write.
type WriteFileTool struct {
	approval *ApprovalManager
}

func NewWriteFileTool(approval *ApprovalManager) *WriteFileTool {
	return &WriteFileTool{approval: approval}
}

// WriteFileArgs are the arguments for file_write.
type WriteFileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (t *WriteFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        WriteFileToolName,
		Description: "Write content to a file, creating it and any parent directories if needed. Overwrites existing content.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path of the file to write",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Full file content",
				},
			},
			"required":             []string{"path", "content"},
			"additionalProperties": false,
		},
	}
}

func (t *WriteFileTool) Preview(args json.RawMessage) string {
	var a WriteFileArgs
	if err := json.Unmarshal(args, &a); err != nil || a.Path == "" {
		return ""
	}
	return fmt.Sprintf("%s (%d bytes)", a.Path, len(a.Content))
}

func (t *WriteFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a WriteFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return formatToolError(NewToolError(ErrInvalidParams, err.Error())), nil
	}
	if a.Path == "" {
		return formatToolError(NewToolError(ErrInvalidParams, "path is required")), nil
	}

	if t.approval != nil {
		outcome, err := t.approval.CheckPathApproval(WriteFileToolName, a.Path, true)
		if err != nil {
			return formatToolError(NewToolError(ErrPermissionDenied, err.Error())), nil
		}
		if outcome == Cancel {
			return formatToolError(NewToolErrorf(ErrPermissionDenied, "write denied: %s", a.Path)), nil
		}
	}

	if dir := filepath.Dir(a.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return formatToolError(NewToolErrorf(ErrExecutionFailed, "create directory: %v", err)), nil
		}
	}
	if err := os.WriteFile(a.Path, []byte(a.Content), 0644); err != nil {
		return formatToolError(NewToolErrorf(ErrExecutionFailed, "write error: %v", err)), nil
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(a.Content), a.Path), nil
}
