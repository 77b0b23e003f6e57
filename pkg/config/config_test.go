package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadPrefersEnvValues(t *testing.T) {
	cfgDir := t.TempDir()
	cfgPath := filepath.Join(cfgDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("active_provider: openai\nopenai:\n  api_key: file-key\nstorage:\n  max_backups: 3\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("AGENT_OPENAI_API_KEY", "env-key")
	t.Setenv("AGENT_STORAGE_MAX_BACKUPS", "5")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.OpenAI.APIKey != "env-key" {
		t.Fatalf("expected env api key override, got %q", cfg.OpenAI.APIKey)
	}
	if cfg.Storage.MaxBackups != 5 {
		t.Fatalf("expected max backups override from env, got %d", cfg.Storage.MaxBackups)
	}
}

func TestLoadAddonEnvFallback(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("storage:\n  backup_dir: /from-file\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("OPENAI_API_KEY", "addon-key")
	t.Setenv("HA_CONFIG_DIR", "/ha")
	t.Setenv("SUPERVISOR_TOKEN", "tok")
	t.Setenv("OPENAI_API_URL", "http://llm.local/v1")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.OpenAI.APIKey != "addon-key" {
		t.Fatalf("expected add-on api key, got %q", cfg.OpenAI.APIKey)
	}
	if cfg.Storage.ConfigDir != "/ha" {
		t.Fatalf("expected config dir from HA_CONFIG_DIR, got %q", cfg.Storage.ConfigDir)
	}
	if cfg.Storage.BackupDir != "/from-file" {
		t.Fatalf("file value should win over add-on env, got %q", cfg.Storage.BackupDir)
	}
	if cfg.HomeAssistant.Token != "tok" {
		t.Fatalf("expected supervisor token, got %q", cfg.HomeAssistant.Token)
	}
	if cfg.OpenAI.BaseURL != "http://llm.local/v1" {
		t.Fatalf("unexpected base url %q", cfg.OpenAI.BaseURL)
	}
}

func TestLoadTOML(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
log_level = "debug"

[openai]
model = "gpt-4o-mini"
temperature = 0.2

[agent]
max_iterations = 4
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected model %q", cfg.OpenAI.Model)
	}
	if cfg.OpenAI.Temperature == nil || *cfg.OpenAI.Temperature != 0.2 {
		t.Fatalf("unexpected temperature %v", cfg.OpenAI.Temperature)
	}
	if cfg.Agent.MaxIterations != 4 {
		t.Fatalf("unexpected max iterations %d", cfg.Agent.MaxIterations)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("unexpected log level %q", cfg.LogLevel)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	if cfg.OpenAI.Model != DefaultOpenAIModel || cfg.OpenAI.BaseURL != DefaultOpenAIBaseURL {
		t.Fatalf("unexpected openai defaults: %+v", cfg.OpenAI)
	}
	if cfg.OpenAI.Temperature != nil {
		t.Fatalf("temperature must stay unset by default")
	}
	if cfg.Storage.ConfigDir != "/config" || cfg.Storage.BackupDir != "/backup" || cfg.Storage.MaxBackups != 10 {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.Agent.MaxIterations != 10 || cfg.Agent.ChangesetTTL != time.Hour {
		t.Fatalf("unexpected agent defaults: %+v", cfg.Agent)
	}
	if cfg.HomeAssistant.Timeout != 30*time.Second {
		t.Fatalf("unexpected timeout %v", cfg.HomeAssistant.Timeout)
	}
	if cfg.HomeAssistant.WebSocketURL != "ws://supervisor/core/websocket" {
		t.Fatalf("unexpected websocket url %q", cfg.HomeAssistant.WebSocketURL)
	}
}

func TestResolveProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{"explicit", Config{ActiveProvider: "gemini"}, ProviderGemini, false},
		{"openai key", Config{OpenAI: OpenAIConfig{APIKey: "k"}}, ProviderOpenAI, false},
		{"gemini key", Config{Gemini: GeminiConfig{APIKey: "k"}}, ProviderGemini, false},
		{"none", Config{}, "", false},
		{"unknown", Config{ActiveProvider: "foo"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.ResolveProvider()
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
