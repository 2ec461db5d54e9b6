package agents

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Agent is a spawned-agent definition: the sub-model persona and the tools
// it may use.
type Agent struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	Model         string   `yaml:"model,omitempty"`
	SystemPrompt  string   `yaml:"system_prompt"`
	Tools         []string `yaml:"tools,omitempty"`
	MaxIterations int      `yaml:"max_iterations,omitempty"`
}

// AgentSource says where a definition was found.
type AgentSource string

const (
	SourceLocal   AgentSource = "local"
	SourceUser    AgentSource = "user"
	SourceBuiltin AgentSource = "builtin"
)

const defaultMaxIterations = 10

// builtinAgents ship with the binary and are always available.
var builtinAgents = map[string]*Agent{
	"plan": {
		Name:        "plan",
		Description: "Reads the codebase and produces an implementation outline",
		SystemPrompt: "You are a planning agent. Investigate the task using the " +
			"read-only tools available, then reply with a concise step-by-step plan. " +
			"Do not modify any files.",
		Tools:         []string{"file_read", "glob"},
		MaxIterations: defaultMaxIterations,
	},
	"research": {
		Name:        "research",
		Description: "Answers a question about the codebase",
		SystemPrompt: "You are a research agent. Use the available tools to find the " +
			"answer to the question, then reply with your findings and the relevant " +
			"file paths.",
		Tools:         []string{"file_read", "glob", "shell"},
		MaxIterations: defaultMaxIterations,
	},
}

// Registry discovers agent definitions. Resolution order: project-local
// (./ted-agents/), user config (~/.config/ted/agents/), extra paths from
// config, then builtins.
type Registry struct {
	searchPaths []searchPath
	cache       map[string]*Agent
}

type searchPath struct {
	path   string
	source AgentSource
}

func NewRegistry(extraPaths []string) *Registry {
	r := &Registry{cache: make(map[string]*Agent)}

	if cwd, err := os.Getwd(); err == nil {
		r.searchPaths = append(r.searchPaths, searchPath{
			path:   filepath.Join(cwd, "ted-agents"),
			source: SourceLocal,
		})
	}
	if home, err := os.UserHomeDir(); err == nil {
		configDir := os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			configDir = filepath.Join(home, ".config")
		}
		r.searchPaths = append(r.searchPaths, searchPath{
			path:   filepath.Join(configDir, "ted", "agents"),
			source: SourceUser,
		})
	}
	for _, p := range extraPaths {
		r.searchPaths = append(r.searchPaths, searchPath{path: p, source: SourceUser})
	}
	return r
}

// Get resolves an agent by name, first match wins.
func (r *Registry) Get(name string) (*Agent, error) {
	if agent, ok := r.cache[name]; ok {
		return agent, nil
	}
	for _, sp := range r.searchPaths {
		file := filepath.Join(sp.path, name+".yaml")
		if _, err := os.Stat(file); err != nil {
			continue
		}
		agent, err := loadAgentFile(file)
		if err != nil {
			return nil, fmt.Errorf("load agent %s: %w", name, err)
		}
		r.cache[name] = agent
		return agent, nil
	}
	if agent, ok := builtinAgents[name]; ok {
		r.cache[name] = agent
		return agent, nil
	}
	return nil, fmt.Errorf("unknown agent type %q", name)
}

// List returns the names of all resolvable agents, sorted.
func (r *Registry) List() []string {
	seen := make(map[string]bool)
	for _, sp := range r.searchPaths {
		entries, err := os.ReadDir(sp.path)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
				continue
			}
			seen[e.Name()[:len(e.Name())-len(".yaml")]] = true
		}
	}
	for name := range builtinAgents {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func loadAgentFile(path string) (*Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var agent Agent
	if err := yaml.Unmarshal(data, &agent); err != nil {
		return nil, err
	}
	if agent.Name == "" {
		base := filepath.Base(path)
		agent.Name = base[:len(base)-len(".yaml")]
	}
	if agent.SystemPrompt == "" {
		return nil, fmt.Errorf("agent %s has no system_prompt", agent.Name)
	}
	if agent.MaxIterations <= 0 {
		agent.MaxIterations = defaultMaxIterations
	}
	return &agent, nil
}
