package tools

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// ApprovalRequest is a pending interactive approval.
type ApprovalRequest struct {
	ToolName    string
	Path        string // for file tools
	Command     string // for the shell tool
	Description string
}

// ApprovalManager gates tool execution. Decisions are cached for the
// session: file approvals by directory, shell approvals by pattern.
type ApprovalManager struct {
	mu       sync.RWMutex
	paths    map[string]ConfirmOutcome // sha256(tool+path) -> outcome
	dirs     map[string]ConfirmOutcome // approved directories, tool-agnostic
	patterns []string                  // approved shell patterns

	// promptMu serializes interactive prompts so concurrent tools cannot
	// stack approval dialogs on top of each other.
	promptMu sync.Mutex

	// YoloMode auto-approves everything. For containers and CI where no
	// interactive prompt is possible.
	YoloMode bool

	// PromptFunc asks the user. The returned string is an optional shell
	// pattern or directory broadening the approval. Nil means headless;
	// anything not pre-approved is denied.
	PromptFunc func(req *ApprovalRequest) (ConfirmOutcome, string)
}

func NewApprovalManager() *ApprovalManager {
	return &ApprovalManager{
		paths: make(map[string]ConfirmOutcome),
		dirs:  make(map[string]ConfirmOutcome),
	}
}

func cacheKey(toolName, path string) string {
	h := sha256.New()
	h.Write([]byte(toolName))
	h.Write([]byte{0})
	h.Write([]byte(path))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// CheckPathApproval checks whether a file tool may touch path. Directory
// approvals are tool-agnostic so approving a directory once covers reads
// and writes by every tool.
func (m *ApprovalManager) CheckPathApproval(toolName, path string, isWrite bool) (ConfirmOutcome, error) {
	if m.YoloMode {
		return ProceedOnce, nil
	}

	absPath := path
	if resolved, err := filepath.Abs(path); err == nil {
		absPath = resolved
	}

	if outcome, ok := m.lookupPath(toolName, absPath); ok {
		return outcome, nil
	}

	m.promptMu.Lock()
	defer m.promptMu.Unlock()

	// recheck under the prompt lock so parallel tools share one answer
	if outcome, ok := m.lookupPath(toolName, absPath); ok {
		return outcome, nil
	}

	if m.PromptFunc == nil {
		return Cancel, NewToolError(ErrPermissionDenied, "path not approved and no prompt available")
	}

	action := "read"
	if isWrite {
		action = "write"
	}
	dir := filepath.Dir(absPath)
	outcome, chosen := m.PromptFunc(&ApprovalRequest{
		ToolName:    toolName,
		Path:        absPath,
		Description: fmt.Sprintf("Allow %s access to %s", action, absPath),
	})

	switch outcome {
	case ProceedAlways:
		if chosen != "" {
			dir = chosen
		}
		m.approveDir(dir)
	case ProceedOnce:
		m.setPath(toolName, absPath, ProceedOnce)
	}
	return outcome, nil
}

// CheckShellApproval checks whether a shell command may run.
func (m *ApprovalManager) CheckShellApproval(command string) (ConfirmOutcome, error) {
	if m.YoloMode {
		return ProceedOnce, nil
	}

	if m.shellApproved(command) {
		return ProceedAlways, nil
	}

	m.promptMu.Lock()
	defer m.promptMu.Unlock()

	if m.shellApproved(command) {
		return ProceedAlways, nil
	}

	if m.PromptFunc == nil {
		return Cancel, NewToolError(ErrPermissionDenied, "command not approved and no prompt available")
	}

	outcome, pattern := m.PromptFunc(&ApprovalRequest{
		ToolName:    ShellToolName,
		Command:     command,
		Description: fmt.Sprintf("Allow shell command: %s", command),
	})
	if outcome == ProceedAlways {
		if pattern == "" {
			pattern = command
		}
		m.ApproveShellPattern(pattern)
	}
	return outcome, nil
}

// ApproveShellPattern pre-approves a shell pattern for the session.
// Patterns are literal commands or prefix globs like "git *".
func (m *ApprovalManager) ApproveShellPattern(pattern string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patterns {
		if p == pattern {
			return
		}
	}
	m.patterns = append(m.patterns, pattern)
}

// ApproveDirectory pre-approves a directory for all file tools.
func (m *ApprovalManager) ApproveDirectory(dir string) {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	m.approveDir(dir)
}

func (m *ApprovalManager) approveDir(dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[dir] = ProceedAlways
}

func (m *ApprovalManager) setPath(toolName, path string, outcome ConfirmOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths[cacheKey(toolName, path)] = outcome
}

func (m *ApprovalManager) lookupPath(toolName, absPath string) (ConfirmOutcome, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if outcome, ok := m.paths[cacheKey(toolName, absPath)]; ok {
		return outcome, true
	}
	for dir, outcome := range m.dirs {
		if outcome != ProceedAlways {
			continue
		}
		if absPath == dir || strings.HasPrefix(absPath, dir+string(filepath.Separator)) {
			return ProceedAlways, true
		}
	}
	return Cancel, false
}

func (m *ApprovalManager) shellApproved(command string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, pattern := range m.patterns {
		if matchPattern(pattern, command) {
			return true
		}
	}
	return false
}

// matchPattern matches literal patterns and trailing-wildcard prefixes
// like "git *".
func matchPattern(pattern, command string) bool {
	if pattern == "" {
		return false
	}
	if pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return strings.HasPrefix(command, prefix)
	}
	return pattern == command
}
