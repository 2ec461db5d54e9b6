// Package tools provides the local tool system ted exposes to the model:
// file access, search, shell execution and agent spawning, gated by a
// session-scoped approval layer.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tedsh/ted/internal/llm"
)

// Tool is one callable tool. Execute returns the text handed back to the
// model; tool-level failures are reported inside that text, not as Go
// errors, so the model can react to them.
type Tool interface {
	Spec() llm.ToolSpec
	Preview(args json.RawMessage) string
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// ConfirmOutcome is the result of an approval check.
type ConfirmOutcome string

const (
	ProceedOnce   ConfirmOutcome = "once"
	ProceedAlways ConfirmOutcome = "always"
	Cancel        ConfirmOutcome = "cancel"
)

// ToolErrorType tags structured tool failures for agent retry logic.
type ToolErrorType string

const (
	ErrFileNotFound     ToolErrorType = "FILE_NOT_FOUND"
	ErrInvalidParams    ToolErrorType = "INVALID_PARAMS"
	ErrExecutionFailed  ToolErrorType = "EXECUTION_FAILED"
	ErrPermissionDenied ToolErrorType = "PERMISSION_DENIED"
	ErrBinaryFile       ToolErrorType = "BINARY_FILE"
	ErrTimeout          ToolErrorType = "TIMEOUT"
)

// ToolError provides structured error information for retry logic.
type ToolError struct {
	Type    ToolErrorType `json:"type"`
	Message string        `json:"message"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func NewToolError(errType ToolErrorType, message string) *ToolError {
	return &ToolError{Type: errType, Message: message}
}

func NewToolErrorf(errType ToolErrorType, format string, args ...interface{}) *ToolError {
	return &ToolError{Type: errType, Message: fmt.Sprintf(format, args...)}
}

// formatToolError formats a ToolError for model consumption.
func formatToolError(err *ToolError) string {
	return fmt.Sprintf("Error [%s]: %s", err.Type, err.Message)
}

// OutputLimits bound how much tool output is returned to the model.
type OutputLimits struct {
	MaxLines int
	MaxBytes int64
}

func DefaultOutputLimits() OutputLimits {
	return OutputLimits{MaxLines: 2000, MaxBytes: 256 * 1024}
}

// Tool spec names.
const (
	ReadFileToolName   = "file_read"
	WriteFileToolName  = "file_write"
	EditFileToolName   = "file_edit"
	ShellToolName      = "shell"
	GrepToolName       = "grep"
	GlobToolName       = "glob"
	SpawnAgentToolName = "spawn_agent"
)

// DefaultEnabled is the tool set registered when config does not narrow it.
func DefaultEnabled() []string {
	return []string{
		ReadFileToolName,
		WriteFileToolName,
		EditFileToolName,
		ShellToolName,
		GrepToolName,
		GlobToolName,
		SpawnAgentToolName,
	}
}
