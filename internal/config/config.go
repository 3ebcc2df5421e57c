// Package config loads and watches the LingoBridge YAML configuration. The
// active configuration is held in an atomic snapshot store so hot reloads
// never expose a half-written config to in-flight requests.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lingobridge/lingobridge/internal/provider"
)

// Config is the application configuration, loaded from a YAML file.
type Config struct {
	// Server holds the listen address.
	Server ServerConfig `yaml:"server"`

	// Logging holds logger level and rotation settings.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics toggles the Prometheus /metrics endpoint and collectors.
	Metrics MetricsConfig `yaml:"metrics"`

	// Cache configures the persistent translation cache tier.
	Cache CacheConfig `yaml:"cache"`

	// Providers holds per-vendor defaults used when a request does not carry
	// its own credential or model.
	Providers map[string]ProviderConfig `yaml:"providers"`

	// CORS lists the origins allowed to call the API; empty allows any.
	CORS CORSConfig `yaml:"cors"`
}

// ServerConfig holds the HTTP listen address.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the listen port.
	Port int `yaml:"port"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// File, when set, tees logs into a rotating file at this path.
	File string `yaml:"file"`
	// MaxSizeMB is the size a log file may reach before rotation.
	MaxSizeMB int `yaml:"max-size-mb"`
	// MaxBackups is how many rotated files to keep.
	MaxBackups int `yaml:"max-backups"`
	// MaxAgeDays is how long rotated files are kept.
	MaxAgeDays int `yaml:"max-age-days"`
	// Compress gzips rotated files.
	Compress bool `yaml:"compress"`
}

// MetricsConfig toggles Prometheus metrics.
type MetricsConfig struct {
	// Enabled turns collectors and the /metrics endpoint on.
	Enabled bool `yaml:"enabled"`
}

// CacheConfig configures the persistent cache tier.
type CacheConfig struct {
	// DBPath is the SQLite file backing the cold tier.
	DBPath string `yaml:"db-path"`
	// EvictionIntervalMinutes is how often expired entries are swept;
	// 0 disables the periodic sweep (the startup sweep still runs).
	EvictionIntervalMinutes int `yaml:"eviction-interval-minutes"`
}

// ProviderConfig holds per-vendor defaults.
type ProviderConfig struct {
	// APIKey is the default credential for the vendor.
	APIKey string `yaml:"api-key"`
	// Model is the default model identifier.
	Model string `yaml:"model"`
	// BaseURL overrides the vendor's standard endpoint.
	BaseURL string `yaml:"base-url"`
}

// CORSConfig lists allowed origins.
type CORSConfig struct {
	// AllowOrigins lists origins allowed to call the API; empty means any.
	AllowOrigins []string `yaml:"allow-origins"`
}

// defaultModels are applied when a provider section names no model.
var defaultModels = map[string]string{
	string(provider.KindOpenAI):   "gpt-4o-mini",
	string(provider.KindGemini):   "gemini-2.0-flash",
	string(provider.KindClaude):   "claude-3-5-haiku-20241022",
	string(provider.KindDeepSeek): "deepseek-chat",
}

// EvictionInterval returns the configured sweep interval, 0 when disabled.
func (c *CacheConfig) EvictionInterval() time.Duration {
	if c.EvictionIntervalMinutes <= 0 {
		return 0
	}
	return time.Duration(c.EvictionIntervalMinutes) * time.Minute
}

// Provider returns the defaults for the named vendor, zero-valued when the
// config has no section for it.
func (c *Config) Provider(kind provider.Kind) ProviderConfig {
	if c == nil || c.Providers == nil {
		return ProviderConfig{}
	}
	return c.Providers[string(kind)]
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LoadConfig reads, parses, defaults and validates the YAML file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if errUnmarshal := yaml.Unmarshal(data, cfg); errUnmarshal != nil {
		return nil, fmt.Errorf("parse config: %w", errUnmarshal)
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if errValidate := cfg.validate(); errValidate != nil {
		return nil, errValidate
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8585
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 100
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = 28
	}
	if c.Cache.DBPath == "" {
		c.Cache.DBPath = "lingobridge.db"
	}
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	for kind, model := range defaultModels {
		pc := c.Providers[kind]
		if pc.Model == "" {
			pc.Model = model
		}
		c.Providers[kind] = pc
	}
}

// applyEnv fills provider API keys left empty in YAML from the environment,
// e.g. LINGOBRIDGE_OPENAI_API_KEY.
func (c *Config) applyEnv() {
	for kind, pc := range c.Providers {
		if pc.APIKey != "" {
			continue
		}
		envKey := "LINGOBRIDGE_" + strings.ToUpper(kind) + "_API_KEY"
		if v := os.Getenv(envKey); v != "" {
			pc.APIKey = v
			c.Providers[kind] = pc
		}
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}
	for kind := range c.Providers {
		if !provider.Kind(kind).Valid() {
			return fmt.Errorf("unknown provider %q in providers section", kind)
		}
	}
	return nil
}
