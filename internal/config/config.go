package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Provider  string          `mapstructure:"provider"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Ollama    OllamaConfig    `mapstructure:"ollama"`
	Compat    CompatConfig    `mapstructure:"openai-compat"`
	Store     StoreConfig     `mapstructure:"store"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Spawn     SpawnConfig     `mapstructure:"spawn"`
	Turn      TurnConfig      `mapstructure:"turn"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Debug     DebugConfig     `mapstructure:"debug"`
}

type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type OpenAIConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// OllamaConfig configures the Ollama provider (OpenAI-compatible)
type OllamaConfig struct {
	BaseURL string `mapstructure:"base_url"` // Default: http://localhost:11434/v1
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"` // Optional, Ollama ignores it
}

// CompatConfig configures a generic OpenAI-compatible server
type CompatConfig struct {
	BaseURL string `mapstructure:"base_url"` // Required - no default
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"` // Optional
}

// StoreConfig configures the context store.
type StoreConfig struct {
	Path              string `mapstructure:"path"`                // default: XDG data dir
	ColdThresholdSecs int    `mapstructure:"cold_threshold_secs"` // age before compaction demotes a chunk
}

// RetryConfig bounds provider retry behavior.
type RetryConfig struct {
	MaxAttempts   int `mapstructure:"max_attempts"`
	BaseBackoffMs int `mapstructure:"base_backoff_ms"`
}

// SpawnConfig bounds spawned agents.
type SpawnConfig struct {
	MaxParallel int `mapstructure:"max_parallel"`
	MaxDepth    int `mapstructure:"max_depth"`
}

// TurnConfig bounds the agent loop.
type TurnConfig struct {
	MaxRounds int `mapstructure:"max_rounds"`
}

// ToolsConfig selects and gates local tools.
type ToolsConfig struct {
	Enabled []string `mapstructure:"enabled"` // empty means the default set
	Yolo    bool     `mapstructure:"yolo"`    // auto-approve everything
}

// DebugConfig controls the JSONL debug log.
type DebugConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"` // Override default directory
}

func Load() (*Config, error) {
	configPath, err := GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("TED")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("provider", "anthropic")
	viper.SetDefault("anthropic.model", "claude-sonnet-4-5")
	viper.SetDefault("openai.model", "gpt-5.2")
	viper.SetDefault("ollama.base_url", "http://localhost:11434/v1")
	// openai-compat has no base_url default - it's required
	viper.SetDefault("store.cold_threshold_secs", 3600)
	viper.SetDefault("retry.max_attempts", 5)
	viper.SetDefault("retry.base_backoff_ms", 1000)
	viper.SetDefault("spawn.max_parallel", 3)
	viper.SetDefault("spawn.max_depth", 1)
	viper.SetDefault("turn.max_rounds", 30)

	// Read config file (optional - won't error if missing)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	resolveCredentials(&cfg)
	return &cfg, nil
}

// ApplyOverrides applies provider and model overrides to the config.
// If provider is non-empty, it overrides the global provider.
// If model is non-empty, it overrides the model for the active provider.
func (c *Config) ApplyOverrides(provider, model string) {
	if provider != "" {
		c.Provider = provider
	}
	if model != "" {
		switch c.Provider {
		case "anthropic":
			c.Anthropic.Model = model
		case "openai":
			c.OpenAI.Model = model
		case "ollama":
			c.Ollama.Model = model
		case "openai-compat":
			c.Compat.Model = model
		}
	}
}

// ActiveModel returns the configured model for the active provider.
func (c *Config) ActiveModel() string {
	switch c.Provider {
	case "openai":
		return c.OpenAI.Model
	case "ollama":
		return c.Ollama.Model
	case "openai-compat":
		return c.Compat.Model
	default:
		return c.Anthropic.Model
	}
}

// ActiveAPIKey returns the API key for the active provider.
func (c *Config) ActiveAPIKey() string {
	switch c.Provider {
	case "openai":
		return c.OpenAI.APIKey
	case "ollama":
		return c.Ollama.APIKey
	case "openai-compat":
		return c.Compat.APIKey
	default:
		return c.Anthropic.APIKey
	}
}

// ActiveBaseURL returns the base URL for the active provider, if any.
func (c *Config) ActiveBaseURL() string {
	switch c.Provider {
	case "ollama":
		return c.Ollama.BaseURL
	case "openai-compat":
		return c.Compat.BaseURL
	default:
		return ""
	}
}

func resolveCredentials(cfg *Config) {
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	if cfg.Anthropic.APIKey == "" {
		cfg.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	cfg.OpenAI.APIKey = expandEnv(cfg.OpenAI.APIKey)
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	cfg.Ollama.APIKey = expandEnv(cfg.Ollama.APIKey)
	cfg.Ollama.BaseURL = expandEnv(cfg.Ollama.BaseURL)
	cfg.Compat.APIKey = expandEnv(cfg.Compat.APIKey)
	cfg.Compat.BaseURL = expandEnv(cfg.Compat.BaseURL)
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// GetConfigDir returns the XDG config directory for ted.
// Uses $XDG_CONFIG_HOME if set, otherwise ~/.config
func GetConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, "ted"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "ted"), nil
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// GetDebugDir returns the XDG data directory for ted debug logs.
func GetDebugDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "ted", "debug")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "ted-debug")
	}
	return filepath.Join(homeDir, ".local", "share", "ted", "debug")
}

// Exists returns true if a config file exists
func Exists() bool {
	path, err := GetConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Save writes the config to disk
func Save(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`provider: %s

anthropic:
  model: %s
  # api_key: set here or via ANTHROPIC_API_KEY

openai:
  model: %s
  # api_key: set here or via OPENAI_API_KEY

store:
  # path: override the context store location
  cold_threshold_secs: %d

retry:
  max_attempts: %d
  base_backoff_ms: %d

spawn:
  max_parallel: %d
  max_depth: %d

turn:
  max_rounds: %d
`, cfg.Provider, cfg.Anthropic.Model, cfg.OpenAI.Model,
		cfg.Store.ColdThresholdSecs,
		cfg.Retry.MaxAttempts, cfg.Retry.BaseBackoffMs,
		cfg.Spawn.MaxParallel, cfg.Spawn.MaxDepth,
		cfg.Turn.MaxRounds)

	return os.WriteFile(path, []byte(content), 0600)
}
