package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("TED_TEST_KEY", "secret")

	cases := []struct {
		in   string
		want string
	}{
		{"${TED_TEST_KEY}", "secret"},
		{"$TED_TEST_KEY", "secret"},
		{"literal-value", "literal-value"},
		{"", ""},
	}
	for _, c := range cases {
		if got := expandEnv(c.in); got != c.want {
			t.Errorf("expandEnv(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestGetConfigDir_RespectsXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	got, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if got != filepath.Join(dir, "ted") {
		t.Errorf("GetConfigDir() = %q", got)
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := &Config{Provider: "anthropic"}
	cfg.Anthropic.Model = "claude-sonnet-4-5"

	cfg.ApplyOverrides("openai", "gpt-5.2-mini")
	if cfg.Provider != "openai" || cfg.OpenAI.Model != "gpt-5.2-mini" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Anthropic.Model != "claude-sonnet-4-5" {
		t.Errorf("anthropic model changed: %q", cfg.Anthropic.Model)
	}
	if cfg.ActiveModel() != "gpt-5.2-mini" {
		t.Errorf("ActiveModel() = %q", cfg.ActiveModel())
	}
}

func TestSaveAndExists(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	if Exists() {
		t.Fatal("config should not exist yet")
	}
	cfg := &Config{Provider: "anthropic"}
	cfg.Anthropic.Model = "claude-sonnet-4-5"
	cfg.Turn.MaxRounds = 30
	if err := Save(cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !Exists() {
		t.Fatal("config should exist after Save")
	}

	data, err := os.ReadFile(filepath.Join(dir, "ted", "config.yaml"))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if len(data) == 0 {
		t.Error("config file is empty")
	}
}
