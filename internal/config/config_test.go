package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/edgard/resumobot/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := config.LoadConfig(writeConfig(t, `
telegram:
  token: "123:abc"
  channel_id: -1001234567890
gemini:
  api_key: "key"
`))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Logger.Level != "info" || !cfg.Logger.JSON {
		t.Errorf("logger defaults = %+v", cfg.Logger)
	}
	if cfg.Database.Path != "storage.db?_time_format=sqlite" {
		t.Errorf("database path default = %q", cfg.Database.Path)
	}
	if cfg.Gemini.ModelName == "" || cfg.Gemini.MaxRetries != 3 {
		t.Errorf("gemini defaults = %+v", cfg.Gemini)
	}
	if cfg.Summary.Schedule == "" || cfg.Summary.MinMessages != 5 || cfg.Summary.BatchLimit != 1000 {
		t.Errorf("summary defaults = %+v", cfg.Summary)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := config.LoadConfig(writeConfig(t, `
log:
  level: debug
  json: false
telegram:
  token: "123:abc"
  channel_id: -100
gemini:
  api_key: "key"
  model: "gemini-2.5-pro"
summary:
  schedule: "30 20 * * *"
  min_messages: 10
`))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Logger.Level != "debug" || cfg.Logger.JSON {
		t.Errorf("logger overrides not applied: %+v", cfg.Logger)
	}
	if cfg.Gemini.ModelName != "gemini-2.5-pro" {
		t.Errorf("gemini model override not applied: %q", cfg.Gemini.ModelName)
	}
	if cfg.Summary.Schedule != "30 20 * * *" || cfg.Summary.MinMessages != 10 {
		t.Errorf("summary overrides not applied: %+v", cfg.Summary)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "missing token",
			content: `
telegram:
  channel_id: -100
gemini:
  api_key: "key"
`,
		},
		{
			name: "missing channel",
			content: `
telegram:
  token: "123:abc"
gemini:
  api_key: "key"
`,
		},
		{
			name: "bad log level",
			content: `
log:
  level: loud
telegram:
  token: "123:abc"
  channel_id: -100
gemini:
  api_key: "key"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := config.LoadConfig(writeConfig(t, tt.content)); err == nil {
				t.Error("LoadConfig succeeded, want validation error")
			}
		})
	}
}
