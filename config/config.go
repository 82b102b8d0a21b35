// Package config loads multitool-chat settings from a YAML or TOML file,
// the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	yaml "go.yaml.in/yaml/v2"
)

// Provider names.
const (
	ProviderGroq      = "groq"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreMySQL  = "mysql"
)

// GroqBaseURL is Groq's OpenAI-compatible endpoint.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// GroqModel is the default model.
const GroqModel = "qwen-qwq-32b"

// TavilyKeyEnv names the web search key variable.
const TavilyKeyEnv = "TAVILY_API_KEY"

// ErrMissingAPIKey is returned by Validate when a required key is unset.
var ErrMissingAPIKey = errors.New("missing API key")

var providerKeyEnv = map[string]string{
	ProviderGroq:      "GROQ_API_KEY",
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderGoogle:    "GOOGLE_API_KEY",
}

// Config is the complete application configuration.
type Config struct {
	// Provider selects the model backend: groq, openai, anthropic or google.
	Provider string `yaml:"provider" toml:"provider"`
	Model    string `yaml:"model" toml:"model"`

	// BaseURL overrides the API endpoint of OpenAI-compatible providers.
	BaseURL string `yaml:"base_url" toml:"base_url"`

	SystemPrompt  string `yaml:"system_prompt" toml:"system_prompt"`
	MaxToolRounds int    `yaml:"max_tool_rounds" toml:"max_tool_rounds"`

	// RequestTimeout bounds one Submit. Zero means no timeout.
	RequestTimeout time.Duration `yaml:"request_timeout" toml:"request_timeout"`

	Tools ToolsConfig `yaml:"tools" toml:"tools"`
	Store StoreConfig `yaml:"store" toml:"store"`

	// MetricsAddr enables the /metrics server when non-empty, e.g. ":9090".
	MetricsAddr string `yaml:"metrics_addr" toml:"metrics_addr"`
	Tracing     bool   `yaml:"tracing" toml:"tracing"`

	LogFile string `yaml:"log_file" toml:"log_file"`
	Debug   bool   `yaml:"debug" toml:"debug"`

	// Secrets come from the environment only.
	APIKey       string `yaml:"-" toml:"-"`
	TavilyAPIKey string `yaml:"-" toml:"-"`
}

// ToolsConfig holds per-tool result limits.
type ToolsConfig struct {
	Wikipedia Limits `yaml:"wikipedia" toml:"wikipedia"`
	Arxiv     Limits `yaml:"arxiv" toml:"arxiv"`
	Tavily    Limits `yaml:"tavily" toml:"tavily"`
}

// Limits mirrors tool.Limits for configuration files. Zero keeps the tool's
// default; a negative max_chars disables truncation.
type Limits struct {
	TopK     int `yaml:"top_k" toml:"top_k"`
	MaxChars int `yaml:"max_chars" toml:"max_chars"`
}

// StoreConfig selects the run journal backend.
type StoreConfig struct {
	Backend string `yaml:"backend" toml:"backend"`

	// DSN is a file path for sqlite or a DSN for mysql.
	DSN string `yaml:"dsn" toml:"dsn"`
}

// Default returns the built-in configuration: Groq's qwen-qwq-32b with the
// original tool limits and an in-memory run journal.
func Default() Config {
	return Config{
		Provider:      ProviderGroq,
		Model:         GroqModel,
		BaseURL:       GroqBaseURL,
		MaxToolRounds: 3,
		Tools: ToolsConfig{
			Wikipedia: Limits{TopK: 1, MaxChars: 500},
			Arxiv:     Limits{TopK: 2, MaxChars: 500},
			Tavily:    Limits{TopK: 5},
		},
		Store:   StoreConfig{Backend: StoreMemory},
		LogFile: "multitool-chat.log",
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// Files ending in .toml are decoded as TOML, everything else as YAML.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	cfg.providerDefaults()
	return cfg, nil
}

// providerDefaults keeps the Groq endpoint and model tied to the groq
// provider: they are filled in when groq is selected and left empty, and
// cleared when another provider is selected so its own defaults apply.
func (c *Config) providerDefaults() {
	if c.Provider == ProviderGroq {
		if c.BaseURL == "" {
			c.BaseURL = GroqBaseURL
		}
		if c.Model == "" {
			c.Model = GroqModel
		}
		return
	}
	if c.BaseURL == GroqBaseURL {
		c.BaseURL = ""
	}
	if c.Model == GroqModel {
		c.Model = ""
	}
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding variables already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv fills secrets and overrides from getenv (usually os.Getenv).
//
// MULTITOOL_PROVIDER and MULTITOOL_MODEL override the file settings.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("MULTITOOL_PROVIDER"); v != "" {
		c.Provider = v
		c.providerDefaults()
	}
	if v := getenv("MULTITOOL_MODEL"); v != "" {
		c.Model = v
	}
	if name, ok := providerKeyEnv[c.Provider]; ok {
		c.APIKey = getenv(name)
	}
	c.TavilyAPIKey = getenv(TavilyKeyEnv)
}

// APIKeyEnv returns the environment variable holding the provider key.
func (c Config) APIKeyEnv() string {
	return providerKeyEnv[c.Provider]
}

// Validate checks the configuration is usable. Missing keys wrap
// ErrMissingAPIKey with the variable name.
func (c Config) Validate() error {
	name, ok := providerKeyEnv[c.Provider]
	if !ok {
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.APIKey == "" {
		return fmt.Errorf("%w: %s is not set", ErrMissingAPIKey, name)
	}
	if c.TavilyAPIKey == "" {
		return fmt.Errorf("%w: %s is not set", ErrMissingAPIKey, TavilyKeyEnv)
	}
	if c.MaxToolRounds < 1 {
		return fmt.Errorf("max_tool_rounds must be >= 1, got %d", c.MaxToolRounds)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative")
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StoreSQLite, StoreMySQL:
		if c.Store.DSN == "" {
			return fmt.Errorf("store backend %s requires a dsn", c.Store.Backend)
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}
