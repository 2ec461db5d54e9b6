package cmd

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tedsh/ted/internal/agents"
	"github.com/tedsh/ted/internal/config"
	"github.com/tedsh/ted/internal/debuglog"
	"github.com/tedsh/ted/internal/engine"
	"github.com/tedsh/ted/internal/llm"
	"github.com/tedsh/ted/internal/store"
	"github.com/tedsh/ted/internal/tools"
	"github.com/tedsh/ted/internal/tui/chat"
)

var (
	chatSystem     string
	chatShellAllow []string
	chatDirs       []string
)

func init() {
	chatCmd.Flags().StringVar(&chatSystem, "system", "", "Extra system prompt text")
	chatCmd.Flags().StringArrayVar(&chatShellAllow, "shell-allow", nil, "Pre-approve shell command patterns, e.g. 'git *'")
	chatCmd.Flags().StringArrayVar(&chatDirs, "dir", nil, "Pre-approve directories for file tools (default: cwd)")
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session.

Examples:
  ted chat
  ted chat --provider ollama -m qwen3
  ted chat --shell-allow 'git *' --shell-allow 'go test*'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		cfg.ApplyOverrides(rootProvider, rootModel)

		provider, err := llm.NewProvider(cfg.Provider, cfg.ActiveAPIKey(), cfg.ActiveModel(), cfg.ActiveBaseURL())
		if err != nil {
			return err
		}

		var logger *debuglog.Logger
		if cfg.Debug.Enabled {
			dir := cfg.Debug.Dir
			if dir == "" {
				dir = config.GetDebugDir()
			}
			logger, err = debuglog.New(dir, uuid.NewString()[:8])
			if err != nil {
				return fmt.Errorf("open debug log: %w", err)
			}
			defer logger.Close()
			provider = debuglog.WrapProvider(provider, logger)
		}

		st, err := store.Open(store.Config{
			Path:          cfg.Store.Path,
			ColdThreshold: time.Duration(cfg.Store.ColdThresholdSecs) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("open context store: %w", err)
		}
		defer st.Close()
		if _, err := st.RecordSession(cfg.Provider, cfg.ActiveModel()); err != nil {
			return fmt.Errorf("record session: %w", err)
		}

		approval := tools.NewApprovalManager()
		approval.YoloMode = yoloMode
		dirs := chatDirs
		if len(dirs) == 0 {
			if cwd, err := os.Getwd(); err == nil {
				dirs = []string{cwd}
			}
		}
		for _, dir := range dirs {
			approval.ApproveDirectory(dir)
		}
		for _, pattern := range chatShellAllow {
			approval.ApproveShellPattern(pattern)
		}

		registry, err := tools.NewRegistry(approval, cfg.Tools.Enabled, tools.SpawnConfig{
			MaxParallel: cfg.Spawn.MaxParallel,
			MaxDepth:    cfg.Spawn.MaxDepth,
		})
		if err != nil {
			return err
		}
		var executor engine.Executor = tools.NewExecutor(registry)
		if logger != nil {
			executor = debuglog.WrapExecutor(executor, logger)
		}

		tracker := agents.NewProgressTracker()
		runner := &agents.Runner{
			Registry: agents.NewRegistry(nil),
			Tracker:  tracker,
			Provider: provider,
			Model:    cfg.ActiveModel(),
		}
		if spawn := registry.SpawnTool(); spawn != nil {
			spawn.SetRunner(runner, executor)
		}

		eng := engine.New(provider, cfg.ActiveModel(), executor, store.NewManager(st))
		eng.Tools = registry.Specs()
		eng.System = systemPrompt(chatSystem)
		if cfg.Turn.MaxRounds > 0 {
			eng.MaxRounds = cfg.Turn.MaxRounds
		}
		if cfg.Retry.MaxAttempts > 0 {
			eng.MaxRetries = cfg.Retry.MaxAttempts
		}
		if cfg.Retry.BaseBackoffMs > 0 {
			eng.BaseBackoff = time.Duration(cfg.Retry.BaseBackoffMs) * time.Millisecond
		}
		model := chat.New(eng, tracker)
		_, err = tea.NewProgram(model).Run()
		return err
	},
}

func systemPrompt(extra string) string {
	prompt := `You are ted, a coding assistant running in the user's terminal.
Use the available tools to read, search and modify the project. Spawn
background agents for research or planning tasks that would otherwise
stall the conversation. Be direct and keep answers short.`
	if extra != "" {
		prompt += "\n\n" + extra
	}
	return prompt
}
