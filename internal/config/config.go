package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

type Config struct {
	Provider  ProviderConfig  `json:"provider"`
	Assistant AssistantConfig `json:"assistant"`
	Server    ServerConfig    `json:"server"`
	Reminder  ReminderConfig  `json:"reminder"`
	Store     StoreConfig     `json:"store"`
	Personas  PersonasConfig  `json:"personas"`
	Log       LogConfig       `json:"log"`
}

type ProviderConfig struct {
	Primary  *PrimaryConfig  `json:"primary,omitempty"`
	Fallback *FallbackConfig `json:"fallback,omitempty"`
}

// PrimaryConfig describes the first-choice provider, tried exactly once
// per completion before the fallback tier takes over.
type PrimaryConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
}

// FallbackConfig describes the secondary provider and its ordered model
// list. Models are attempted strictly in the order given here.
type FallbackConfig struct {
	BaseURL string   `json:"base_url"`
	APIKey  string   `json:"api_key"`
	Models  []string `json:"models"`
}

type AssistantConfig struct {
	MaxRetries     int     `json:"max_retries,omitempty"`      // attempts per fallback model (default: 3)
	Temperature    float64 `json:"temperature,omitempty"`      // sampling temperature (default: 0.7)
	MaxTokens      int     `json:"max_tokens,omitempty"`       // max completion tokens (default: 2048)
	QuotaMarker    string  `json:"quota_marker,omitempty"`     // substring in a 429 body marking the daily cap
	RequestTimeout string  `json:"request_timeout,omitempty"`  // per-HTTP-request timeout (default: "120s")
	CallTimeout    string  `json:"call_timeout,omitempty"`     // overall deadline for one completion (default: "5m")
	DefaultLang    string  `json:"default_language,omitempty"` // language needing no directive (default: "en")
}

type ServerConfig struct {
	ListenAddr    string `json:"listen_addr,omitempty"`
	AuthToken     string `json:"auth_token,omitempty"`
	RatePerMinute int    `json:"rate_per_minute,omitempty"` // per-client request budget, 0=unlimited
}

type ReminderConfig struct {
	PollInterval string `json:"poll_interval,omitempty"`
}

type StoreConfig struct {
	Path string `json:"path,omitempty"`
}

type PersonasConfig struct {
	Dir string `json:"dir,omitempty"` // optional directory of YAML persona overrides
}

type LogConfig struct {
	Level string `json:"level,omitempty"`
	File  string `json:"file,omitempty"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		key := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return match
	})
}

func Home() string {
	if h := os.Getenv("SAHAYAK_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".sahayak")
	}
	return filepath.Join(home, ".sahayak")
}

func DefaultConfigPath() string {
	return filepath.Join(Home(), "config.json")
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	data = []byte(expandEnvVars(string(data)))

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Assistant.MaxRetries == 0 {
		cfg.Assistant.MaxRetries = 3
	}
	if cfg.Assistant.Temperature == 0 {
		cfg.Assistant.Temperature = 0.7
	}
	if cfg.Assistant.MaxTokens == 0 {
		cfg.Assistant.MaxTokens = 2048
	}
	if cfg.Assistant.QuotaMarker == "" {
		cfg.Assistant.QuotaMarker = "free-models-per-day"
	}
	if cfg.Assistant.RequestTimeout == "" {
		cfg.Assistant.RequestTimeout = "120s"
	}
	if cfg.Assistant.CallTimeout == "" {
		cfg.Assistant.CallTimeout = "5m"
	}
	if cfg.Assistant.DefaultLang == "" {
		cfg.Assistant.DefaultLang = "en"
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Reminder.PollInterval == "" {
		cfg.Reminder.PollInterval = "30s"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(Home(), "sahayak.db")
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func validate(cfg *Config) error {
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q", cfg.Log.Level)
	}

	if cfg.Provider.Primary == nil && cfg.Provider.Fallback == nil {
		return fmt.Errorf("no provider configured: set provider.primary or provider.fallback")
	}
	if cfg.Provider.Fallback != nil && len(cfg.Provider.Fallback.Models) == 0 {
		return fmt.Errorf("provider.fallback.models must list at least one model")
	}

	for _, field := range []struct {
		name, value string
	}{
		{"assistant.request_timeout", cfg.Assistant.RequestTimeout},
		{"assistant.call_timeout", cfg.Assistant.CallTimeout},
		{"reminder.poll_interval", cfg.Reminder.PollInterval},
	} {
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("invalid %s: %w", field.name, err)
		}
	}

	return nil
}

// Duration parses s, falling back to def when s is empty or malformed.
// Config validation already rejects malformed values on load; the fallback
// covers zero-value Config structs used in tests.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
