package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/tedsh/ted/internal/llm"
)

// ReadFileTool implements file_read.
type ReadFileTool struct {
	approval *ApprovalManager
	limits   OutputLimits
}

func NewReadFileTool(approval *ApprovalManager, limits OutputLimits) *ReadFileTool {
	return &ReadFileTool{approval: approval, limits: limits}
}

// ReadFileArgs are the arguments for file_read.
type ReadFileArgs struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`
}

func (t *ReadFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ReadFileToolName,
		Description: "Read file contents. Returns line-numbered output. Use start_line/end_line for pagination.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute or relative path to the file to read",
				},
				"start_line": map[string]interface{}{
					"type":        "integer",
					"description": "1-indexed start line (default: 1)",
				},
				"end_line": map[string]interface{}{
					"type":        "integer",
					"description": "1-indexed end line (default: EOF)",
				},
			},
			"required":             []string{"path"},
			"additionalProperties": false,
		},
	}
}

func (t *ReadFileTool) Preview(args json.RawMessage) string {
	var a ReadFileArgs
	if err := json.Unmarshal(args, &a); err != nil || a.Path == "" {
		return ""
	}
	if a.StartLine > 0 || a.EndLine > 0 {
		return fmt.Sprintf("%s:%d-%d", a.Path, max(a.StartLine, 1), a.EndLine)
	}
	return a.Path
}

func (t *ReadFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a ReadFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return formatToolError(NewToolError(ErrInvalidParams, err.Error())), nil
	}
	if a.Path == "" {
		return formatToolError(NewToolError(ErrInvalidParams, "path is required")), nil
	}

	if t.approval != nil {
		outcome, err := t.approval.CheckPathApproval(ReadFileToolName, a.Path, false)
		if err != nil {
			return formatToolError(NewToolError(ErrPermissionDenied, err.Error())), nil
		}
		if outcome == Cancel {
			return formatToolError(NewToolErrorf(ErrPermissionDenied, "access denied: %s", a.Path)), nil
		}
	}

	data, err := os.ReadFile(a.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return formatToolError(NewToolError(ErrFileNotFound, a.Path)), nil
		}
		return formatToolError(NewToolErrorf(ErrExecutionFailed, "read error: %v", err)), nil
	}

	if isBinaryContent(data) {
		return formatToolError(NewToolErrorf(ErrBinaryFile, "%s appears to be a binary file", a.Path)), nil
	}

	lines := strings.Split(string(data), "\n")
	totalLines := len(lines)

	start := 0
	if a.StartLine > 0 {
		start = a.StartLine - 1
	}
	if start >= totalLines {
		return formatToolError(NewToolErrorf(ErrInvalidParams, "start_line %d exceeds file length %d", a.StartLine, totalLines)), nil
	}
	end := totalLines
	if a.EndLine > 0 && a.EndLine < totalLines {
		end = a.EndLine
	}
	if start >= end {
		return "No content in requested range.", nil
	}

	selected := lines[start:end]
	truncated := false
	if len(selected) > t.limits.MaxLines {
		selected = selected[:t.limits.MaxLines]
		truncated = true
	}

	var sb strings.Builder
	for i, line := range selected {
		sb.WriteString(fmt.Sprintf("%d: %s\n", start+i+1, line))
	}
	output := strings.TrimSuffix(sb.String(), "\n")

	if int64(len(output)) > t.limits.MaxBytes {
		output = output[:t.limits.MaxBytes]
		truncated = true
	}
	if truncated {
		output += fmt.Sprintf("\n\n[Output truncated. Total lines: %d. Use start_line/end_line for pagination.]", totalLines)
	}
	return output, nil
}

// isBinaryContent detects binary data from the first 512 bytes.
func isBinaryContent(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	sample := data
	if len(sample) > 512 {
		sample = sample[:512]
	}

	contentType := http.DetectContentType(sample)
	if strings.HasPrefix(contentType, "text/") {
		return false
	}
	if strings.Contains(contentType, "json") || strings.Contains(contentType, "xml") {
		return false
	}
	for _, b := range sample {
		if b == 0 {
			return true
		}
	}
	return false
}
