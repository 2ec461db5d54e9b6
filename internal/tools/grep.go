package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tedsh/ted/internal/llm"
)

// GrepTool implements the grep tool: regex search across files.
type GrepTool struct {
	approval *ApprovalManager
	limits   OutputLimits
}

func NewGrepTool(approval *ApprovalManager, limits OutputLimits) *GrepTool {
	return &GrepTool{approval: approval, limits: limits}
}

// GrepArgs are the arguments for grep.
type GrepArgs struct {
	Pattern    string `json:"pattern"`
	Path       string `json:"path,omitempty"`
	Glob       string `json:"glob,omitempty"`
	IgnoreCase bool   `json:"ignore_case,omitempty"`
}

const maxGrepMatches = 200

func (t *GrepTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        GrepToolName,
		Description: "Search file contents with a regular expression. Returns matching lines as path:line: text.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"pattern": map[string]interface{}{
					"type":        "string",
					"description": "Go regular expression to search for",
				},
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Base directory or file (defaults to current directory)",
				},
				"glob": map[string]interface{}{
					"type":        "string",
					"description": "Restrict search to files matching this glob, e.g. '**/*.go'",
				},
				"ignore_case": map[string]interface{}{
					"type":        "boolean",
					"description": "Case-insensitive matching",
				},
			},
			"required":             []string{"pattern"},
			"additionalProperties": false,
		},
	}
}

func (t *GrepTool) Preview(args json.RawMessage) string {
	var a GrepArgs
	if err := json.Unmarshal(args, &a); err != nil || a.Pattern == "" {
		return ""
	}
	if a.Path != "" {
		return fmt.Sprintf("%s in %s", a.Pattern, a.Path)
	}
	return a.Pattern
}

func (t *GrepTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	var a GrepArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return formatToolError(NewToolError(ErrInvalidParams, err.Error())), nil
	}
	if a.Pattern == "" {
		return formatToolError(NewToolError(ErrInvalidParams, "pattern is required")), nil
	}

	pattern := a.Pattern
	if a.IgnoreCase {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return formatToolError(NewToolErrorf(ErrInvalidParams, "invalid pattern: %v", err)), nil
	}

	basePath := a.Path
	if basePath == "" {
		basePath, err = os.Getwd()
		if err != nil {
			return formatToolError(NewToolErrorf(ErrExecutionFailed, "cannot get working directory: %v", err)), nil
		}
	}

	if t.approval != nil {
		outcome, err := t.approval.CheckPathApproval(GrepToolName, basePath, false)
		if err != nil {
			return formatToolError(NewToolError(ErrPermissionDenied, err.Error())), nil
		}
		if outcome == Cancel {
			return formatToolError(NewToolErrorf(ErrPermissionDenied, "access denied: %s", basePath)), nil
		}
	}

	absBasePath, err := filepath.Abs(basePath)
	if err != nil {
		return formatToolError(NewToolErrorf(ErrExecutionFailed, "cannot resolve path: %v", err)), nil
	}

	var matches []string
	walkErr := filepath.WalkDir(absBasePath, func(path string, d os.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != absBasePath {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if a.Glob != "" {
			relPath, err := filepath.Rel(absBasePath, path)
			if err != nil {
				return nil
			}
			if ok, err := doublestar.Match(a.Glob, relPath); err != nil || !ok {
				return nil
			}
		}

		found, err := t.grepFile(re, path, &matches)
		if err != nil {
			return nil
		}
		if found && len(matches) >= maxGrepMatches {
			return filepath.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		return formatToolError(NewToolErrorf(ErrExecutionFailed, "walk error: %v", walkErr)), nil
	}

	if len(matches) == 0 {
		return "No matches.", nil
	}

	output := strings.Join(matches, "\n")
	if len(matches) >= maxGrepMatches {
		output += fmt.Sprintf("\n\n[Results truncated at %d matches]", maxGrepMatches)
	}
	if int64(len(output)) > t.limits.MaxBytes {
		output = output[:t.limits.MaxBytes] + "\n[output truncated]"
	}
	return output, nil
}

func (t *GrepTool) grepFile(re *regexp.Regexp, path string, matches *[]string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	found := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if lineNum == 1 && isBinaryContent([]byte(line)) {
			return false, nil
		}
		if re.MatchString(line) {
			*matches = append(*matches, fmt.Sprintf("%s:%d: %s", path, lineNum, line))
			found = true
			if len(*matches) >= maxGrepMatches {
				return true, nil
			}
		}
	}
	return found, scanner.Err()
}
