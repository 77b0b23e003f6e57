package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of the environment variables read by Load.
const EnvPrefix = "AGENT"

// Provider identifiers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	// ActiveProvider explicitly selects "openai" or "gemini".
	// If not set, the provider with an API key is used (OpenAI first).
	ActiveProvider string `yaml:"active_provider" toml:"active_provider" envconfig:"ACTIVE_PROVIDER"`

	// LogLevel controls structured logging verbosity (DEBUG, VERBOSE, INFO, WARNING, ERROR).
	LogLevel string `yaml:"log_level" toml:"log_level" envconfig:"LOG_LEVEL"`

	OpenAI        OpenAIConfig        `yaml:"openai" toml:"openai" envconfig:"OPENAI"`
	Gemini        GeminiConfig        `yaml:"gemini" toml:"gemini" envconfig:"GEMINI"`
	HomeAssistant HomeAssistantConfig `yaml:"home_assistant" toml:"home_assistant" envconfig:"HA"`
	Storage       StorageConfig       `yaml:"storage" toml:"storage" envconfig:"STORAGE"`
	Agent         AgentConfig         `yaml:"agent" toml:"agent" envconfig:"CHAT"`
	HTTP          HTTPConfig          `yaml:"http" toml:"http" envconfig:"HTTP"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key" toml:"api_key" envconfig:"API_KEY"`
	BaseURL string `yaml:"base_url" toml:"base_url" envconfig:"BASE_URL"`
	Model   string `yaml:"model" toml:"model" envconfig:"MODEL"`
	// Temperature is only sent to the model when set. OpenAI receives an
	// explicit 0 as the smallest positive float32.
	Temperature *float64 `yaml:"temperature" toml:"temperature" envconfig:"TEMPERATURE"`
}

type GeminiConfig struct {
	APIKey    string `yaml:"api_key" toml:"api_key" envconfig:"API_KEY"`
	ProjectID string `yaml:"project_id" toml:"project_id" envconfig:"PROJECT_ID"`
	Location  string `yaml:"location" toml:"location" envconfig:"LOCATION"`
	Model     string `yaml:"model" toml:"model" envconfig:"MODEL"`
}

// HomeAssistantConfig locates the registry and validation endpoints.
type HomeAssistantConfig struct {
	WebSocketURL string        `yaml:"websocket_url" toml:"websocket_url" envconfig:"WEBSOCKET_URL"`
	APIURL       string        `yaml:"api_url" toml:"api_url" envconfig:"API_URL"`
	Token        string        `yaml:"token" toml:"token" envconfig:"TOKEN"`
	Timeout      time.Duration `yaml:"timeout" toml:"timeout" envconfig:"TIMEOUT"`
}

type StorageConfig struct {
	ConfigDir  string `yaml:"config_dir" toml:"config_dir" envconfig:"CONFIG_DIR"`
	BackupDir  string `yaml:"backup_dir" toml:"backup_dir" envconfig:"BACKUP_DIR"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups" envconfig:"MAX_BACKUPS"`
}

type AgentConfig struct {
	MaxIterations    int           `yaml:"max_iterations" toml:"max_iterations" envconfig:"MAX_ITERATIONS"`
	SystemPromptFile string        `yaml:"system_prompt_file" toml:"system_prompt_file" envconfig:"SYSTEM_PROMPT_FILE"`
	ChangesetTTL     time.Duration `yaml:"changeset_ttl" toml:"changeset_ttl" envconfig:"CHANGESET_TTL"`
}

// HTTPConfig contains HTTP API related settings.
type HTTPConfig struct {
	Addr   string `yaml:"addr" toml:"addr" envconfig:"ADDR"`
	APIKey string `yaml:"api_key" toml:"api_key" envconfig:"API_KEY"`
}

// Defaults.
const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4o"
	DefaultGeminiModel   = "gemini-2.0-flash"
	DefaultWebSocketURL  = "ws://supervisor/core/websocket"
	DefaultAPIURL        = "http://supervisor/core/api"
	DefaultConfigDir     = "/config"
	DefaultBackupDir     = "/backup"
	DefaultMaxBackups    = 10
	DefaultMaxIterations = 10
	DefaultHTTPAddr      = ":8099"
	DefaultTimeout       = 30 * time.Second
	DefaultChangesetTTL  = time.Hour
)

// legacyEnv lists the variable names of the Home Assistant add-on. They fill
// settings left empty by the config file and the prefixed variables.
var legacyEnv = []struct {
	name  string
	apply func(c *Config, v string) error
}{
	{"OPENAI_API_KEY", func(c *Config, v string) error { setIfEmpty(&c.OpenAI.APIKey, v); return nil }},
	{"OPENAI_API_URL", func(c *Config, v string) error { setIfEmpty(&c.OpenAI.BaseURL, v); return nil }},
	{"OPENAI_MODEL", func(c *Config, v string) error { setIfEmpty(&c.OpenAI.Model, v); return nil }},
	{"TEMPERATURE", func(c *Config, v string) error {
		if c.OpenAI.Temperature != nil {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("TEMPERATURE: %w", err)
		}
		c.OpenAI.Temperature = &f
		return nil
	}},
	{"GEMINI_API_KEY", func(c *Config, v string) error { setIfEmpty(&c.Gemini.APIKey, v); return nil }},
	{"GOOGLE_API_KEY", func(c *Config, v string) error { setIfEmpty(&c.Gemini.APIKey, v); return nil }},
	{"HA_CONFIG_DIR", func(c *Config, v string) error { setIfEmpty(&c.Storage.ConfigDir, v); return nil }},
	{"BACKUP_DIR", func(c *Config, v string) error { setIfEmpty(&c.Storage.BackupDir, v); return nil }},
	{"SUPERVISOR_TOKEN", func(c *Config, v string) error { setIfEmpty(&c.HomeAssistant.Token, v); return nil }},
	{"LOG_LEVEL", func(c *Config, v string) error { setIfEmpty(&c.LogLevel, v); return nil }},
	{"SYSTEM_PROMPT_FILE", func(c *Config, v string) error { setIfEmpty(&c.Agent.SystemPromptFile, v); return nil }},
}

func setIfEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// Load reads configuration from the specified path, or defaults if path is empty.
// Priority: AGENT_* env vars > config file > add-on env vars > defaults.
func Load(path string) (*Config, error) {
	// Try loading .env files (ignore error if not present)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	if path == "" {
		path = defaultPath()
	}

	cfg := &Config{}

	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	// This will override values from config file if set in Env
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process env vars: %w", err)
	}

	for _, le := range legacyEnv {
		if v := os.Getenv(le.name); v != "" {
			if err := le.apply(cfg, v); err != nil {
				return nil, fmt.Errorf("failed to process env vars: %w", err)
			}
		}
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

func defaultPath() string {
	// Local directory config wins over the home directory one.
	for _, name := range []string{"config.yaml", "config.toml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	for _, name := range []string{"config.yaml", "config.toml"} {
		p := filepath.Join(home, ".ha-config-agent", name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	return nil
}

// ApplyDefaults fills every unset setting with its default.
func (c *Config) ApplyDefaults() {
	setIfEmpty(&c.OpenAI.BaseURL, DefaultOpenAIBaseURL)
	setIfEmpty(&c.OpenAI.Model, DefaultOpenAIModel)
	setIfEmpty(&c.Gemini.Model, DefaultGeminiModel)
	setIfEmpty(&c.HomeAssistant.WebSocketURL, DefaultWebSocketURL)
	setIfEmpty(&c.HomeAssistant.APIURL, DefaultAPIURL)
	setIfEmpty(&c.Storage.ConfigDir, DefaultConfigDir)
	setIfEmpty(&c.Storage.BackupDir, DefaultBackupDir)
	setIfEmpty(&c.HTTP.Addr, DefaultHTTPAddr)
	if c.HomeAssistant.Timeout <= 0 {
		c.HomeAssistant.Timeout = DefaultTimeout
	}
	if c.Storage.MaxBackups <= 0 {
		c.Storage.MaxBackups = DefaultMaxBackups
	}
	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = DefaultMaxIterations
	}
	if c.Agent.ChangesetTTL <= 0 {
		c.Agent.ChangesetTTL = DefaultChangesetTTL
	}
}

// ResolveProvider returns the provider to use, or "" when no provider has
// credentials. An explicit ActiveProvider must be a known provider.
func (c *Config) ResolveProvider() (string, error) {
	switch c.ActiveProvider {
	case ProviderOpenAI, ProviderGemini:
		return c.ActiveProvider, nil
	case "":
	default:
		return "", fmt.Errorf("unknown provider: %s", c.ActiveProvider)
	}
	if c.OpenAI.APIKey != "" {
		return ProviderOpenAI, nil
	}
	if c.Gemini.APIKey != "" || (c.Gemini.ProjectID != "" && c.Gemini.Location != "") {
		return ProviderGemini, nil
	}
	return "", nil
}

// Model returns the model name of the given provider.
func (c *Config) Model(provider string) string {
	if provider == ProviderGemini {
		return c.Gemini.Model
	}
	return c.OpenAI.Model
}
