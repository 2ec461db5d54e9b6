package tools

import (
	"sort"

	"github.com/tedsh/ted/internal/llm"
)

// Registry holds the enabled tools.
type Registry struct {
	approval *ApprovalManager
	limits   OutputLimits
	tools    map[string]Tool
}

// NewRegistry builds a registry with the named tools enabled. An empty list
// enables the default set. The spawn_agent tool is registered without a
// runner; wire it with SpawnTool().SetRunner before the first turn.
func NewRegistry(approval *ApprovalManager, enabled []string, spawnCfg SpawnConfig) (*Registry, error) {
	if len(enabled) == 0 {
		enabled = DefaultEnabled()
	}
	r := &Registry{
		approval: approval,
		limits:   DefaultOutputLimits(),
		tools:    make(map[string]Tool),
	}
	for _, name := range enabled {
		var tool Tool
		switch name {
		case ReadFileToolName:
			tool = NewReadFileTool(approval, r.limits)
		case WriteFileToolName:
			tool = NewWriteFileTool(approval)
		case EditFileToolName:
			tool = NewEditFileTool(approval)
		case ShellToolName:
			tool = NewShellTool(approval, r.limits)
		case GrepToolName:
			tool = NewGrepTool(approval, r.limits)
		case GlobToolName:
			tool = NewGlobTool(approval)
		case SpawnAgentToolName:
			tool = NewSpawnAgentTool(spawnCfg, 0)
		default:
			return nil, NewToolErrorf(ErrInvalidParams, "unknown tool: %s", name)
		}
		r.tools[name] = tool
	}
	return r, nil
}

// Get returns a tool by spec name.
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Specs returns the tool specs for the request, sorted by name so request
// payloads are stable.
func (r *Registry) Specs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(r.tools))
	for _, tool := range r.tools {
		specs = append(specs, tool.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// SpawnTool returns the spawn_agent tool for runner wiring, or nil when it
// is not enabled.
func (r *Registry) SpawnTool() *SpawnAgentTool {
	tool, ok := r.tools[SpawnAgentToolName]
	if !ok {
		return nil
	}
	spawn, _ := tool.(*SpawnAgentTool)
	return spawn
}
