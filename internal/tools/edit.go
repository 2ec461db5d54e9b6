package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tedsh/ted/internal/llm"
)

// EditFileTool implements file_edit: exact string replacement inside an
// existing file.
type EditFileTool struct {
	approval *ApprovalManager
}

func NewEditFileTool(approval *ApprovalManager) *EditFileTool {
	return &EditFileTool{approval: approval}
}

// EditFileArgs are the arguments for file_edit.
type EditFileArgs struct {
	Path       string `json:"path"`
	OldString  string `json:"old_string"`
	NewString  string `json:"new_string"`
	ReplaceAll bool   `json:"replace_all,omitempty"`
}

func (t *EditFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        EditFileToolName,
		Description: "Replace an exact string in a file. old_string must match exactly once unless replace_all is set.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path of the file to edit",
				},
				"old_string": map[string]interface{}{
					"type":        "string",
					"description": "Exact text to replace",
				},
				"new_string": map[string]interface{}{
					"type":        "string",
					"description": "Replacement text",
				},
				"replace_all": map[string]interface{}{
					"type":        "boolean",
					"description": "Replace every occurrence instead of requiring a unique match",
				},
			},
			"required":             []string{"path", "old_string", "new_string"},
			"additionalProperties": false,
		},
	}
}

func (t *EditFileTool) Preview(args json.RawMessage) string {
	var a EditFileArgs
	if err := json.Unmarshal(args, &a); err != nil || a.Path == "" {
		return ""
	}
	return a.Path
}

func (t *EditFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a EditFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return formatToolError(NewToolError(ErrInvalidParams, err.Error())), nil
	}
	if a.Path == "" || a.OldString == "" {
		return formatToolError(NewToolError(ErrInvalidParams, "path and old_string are required")), nil
	}
	if a.OldString == a.NewString {
		return formatToolError(NewToolError(ErrInvalidParams, "old_string and new_string are identical")), nil
	}

	if t.approval != nil {
		outcome, err := t.approval.CheckPathApproval(EditFileToolName, a.Path, true)
		if err != nil {
			return formatToolError(NewToolError(ErrPermissionDenied, err.Error())), nil
		}
		if outcome == Cancel {
			return formatToolError(NewToolErrorf(ErrPermissionDenied, "edit denied: %s", a.Path)), nil
		}
	}

	data, err := os.ReadFile(a.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return formatToolError(NewToolError(ErrFileNotFound, a.Path)), nil
		}
		return formatToolError(NewToolErrorf(ErrExecutionFailed, "read error: %v", err)), nil
	}
	content := string(data)

	count := strings.Count(content, a.OldString)
	switch {
	case count == 0:
		return formatToolError(NewToolError(ErrInvalidParams, "old_string not found in file")), nil
	case count > 1 && !a.ReplaceAll:
		return formatToolError(NewToolErrorf(ErrInvalidParams, "old_string matches %d times; provide more context or set replace_all", count)), nil
	}

	updated := strings.Replace(content, a.OldString, a.NewString, 1)
	if a.ReplaceAll {
		updated = strings.ReplaceAll(content, a.OldString, a.NewString)
	}

	info, err := os.Stat(a.Path)
	mode := os.FileMode(0644)
	if err == nil {
		mode = info.Mode()
	}
	if err := os.WriteFile(a.Path, []byte(updated), mode); err != nil {
		return formatToolError(NewToolErrorf(ErrExecutionFailed, "write error: %v", err)), nil
	}

	replaced := 1
	if a.ReplaceAll {
		replaced = count
	}
	return fmt.Sprintf("Replaced %d occurrence(s) in %s", replaced, a.Path), nil
}
