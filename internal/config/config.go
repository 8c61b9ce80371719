package config

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Targets    []Target   `yaml:"targets"`
	Filter     Filter     `yaml:"filter"`
	Gateway    Gateway    `yaml:"gateway"`
	Model      Model      `yaml:"model"`
	Normalizer Normalizer `yaml:"normalizer"`
	Condition  Condition  `yaml:"condition"`
	Valuation  Valuation  `yaml:"valuation"`
	Ranking    Ranking    `yaml:"ranking"`
	Pipeline   Pipeline   `yaml:"pipeline"`
	Output     Output     `yaml:"output"`
	Server     Server     `yaml:"server"`
	History    History    `yaml:"history"`
}

// Target is one marketplace search to collect listings from.
type Target struct {
	Name     string `yaml:"name"`
	Platform string `yaml:"platform"`
	// Kind is "feed" for RSS/Atom saved searches or "json" for listing APIs.
	Kind      string `yaml:"kind"`
	URL       string `yaml:"url"`
	APIKeyEnv string `yaml:"api_key_env"`
	// EnrichPages fetches the listing page when the feed text is short.
	EnrichPages bool `yaml:"enrich_pages"`
}

type Filter struct {
	MinPrice       float64  `yaml:"min_price"`
	MaxPrice       float64  `yaml:"max_price"`
	MinTitleLength int      `yaml:"min_title_length"`
	DenyTerms      []string `yaml:"deny_terms"`
}

type Gateway struct {
	CallsPerMinute  int           `yaml:"calls_per_minute"`
	TokensPerMinute int           `yaml:"tokens_per_minute"`
	CallsPerDay     int           `yaml:"calls_per_day"`
	Timeout         time.Duration `yaml:"timeout"`
	Models          []string      `yaml:"models"`
	SecondaryModel  string        `yaml:"secondary_model"`
	MaxTokens       int           `yaml:"max_tokens"`
	Retry           Retry         `yaml:"retry"`
}

type Retry struct {
	TimeoutAttempts   int           `yaml:"timeout_attempts"`
	TimeoutDelay      time.Duration `yaml:"timeout_delay"`
	RateLimitAttempts int           `yaml:"rate_limit_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	Jitter            time.Duration `yaml:"jitter"`
}

type Model struct {
	Provider     string `yaml:"provider"`
	OllamaURL    string `yaml:"ollama_url"`
	OllamaModel  string `yaml:"ollama_model"`
	OpenAIModel  string `yaml:"openai_model"`
	APIKeyEnv    string `yaml:"api_key_env"`
	GeminiKeyEnv string `yaml:"gemini_key_env"`
}

type Normalizer struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

type Condition struct {
	MaxImages     int           `yaml:"max_images"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
	MaxImageBytes int64         `yaml:"max_image_bytes"`
}

type Valuation struct {
	MaxComparables   int     `yaml:"max_comparables"`
	MinSamples       int     `yaml:"min_samples"`
	ShippingDiscount float64 `yaml:"shipping_discount"`
	PickupDiscount   float64 `yaml:"pickup_discount"`
}

type Ranking struct {
	HotnessThreshold int `yaml:"hotness_threshold"`
}

type Pipeline struct {
	PacingDelay       time.Duration `yaml:"pacing_delay"`
	TargetConcurrency int           `yaml:"target_concurrency"`
	RetryBatchSize    int           `yaml:"retry_batch_size"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type History struct {
	DSNEnv string `yaml:"dsn_env"`
	Table  string `yaml:"table"`
}

// ConfigDir returns the XDG config directory for bikescout.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "bikescout")
}

// DataDir returns the XDG data directory for bikescout.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "bikescout")
}

// LoadEnv loads secrets from a .env file in the working directory into the
// process environment. A missing file is not an error.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/bikescout/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'bikescout init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Defaults returns the built-in configuration without any file.
func Defaults() *Config {
	return &Config{
		Filter: Filter{MinPrice: 300, MaxPrice: 15000, MinTitleLength: 10},
		Gateway: Gateway{
			CallsPerMinute:  10,
			TokensPerMinute: 1_000_000,
			CallsPerDay:     1400,
			Timeout:         60 * time.Second,
			Models:          []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-1.5-flash"},
			SecondaryModel:  "gemini-2.0-flash-lite",
			MaxTokens:       2048,
			Retry: Retry{
				TimeoutAttempts:   3,
				TimeoutDelay:      2 * time.Second,
				RateLimitAttempts: 4,
				BaseDelay:         time.Second,
				MaxDelay:          30 * time.Second,
				Jitter:            400 * time.Millisecond,
			},
		},
		Model: Model{
			Provider:     "gemini",
			OllamaURL:    "http://localhost:11434",
			OllamaModel:  "llava:13b",
			OpenAIModel:  "gpt-4o-mini",
			APIKeyEnv:    "OPENAI_API_KEY",
			GeminiKeyEnv: "GEMINI_API_KEY",
		},
		Normalizer: Normalizer{ConfidenceThreshold: 0.6},
		Condition:  Condition{MaxImages: 3, FetchTimeout: 15 * time.Second, MaxImageBytes: 4 << 20},
		Valuation:  Valuation{MaxComparables: 50, MinSamples: 3, ShippingDiscount: 0.15, PickupDiscount: 0.25},
		Ranking:    Ranking{HotnessThreshold: 1000},
		Pipeline:   Pipeline{PacingDelay: 3 * time.Second, TargetConcurrency: 2, RetryBatchSize: 10},
		Server:     Server{Port: 8000},
		History:    History{DSNEnv: "HISTORY_DATABASE_URL", Table: "market_history"},
	}
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	for i, t := range cfg.Targets {
		if t.URL == "" {
			return nil, fmt.Errorf("target %d (%s): url is required", i, t.Name)
		}
		if t.Platform == "" {
			return nil, fmt.Errorf("target %d (%s): platform is required", i, t.Name)
		}
		if t.Kind == "" {
			cfg.Targets[i].Kind = "feed"
		}
		if t.Name == "" {
			cfg.Targets[i].Name = t.Platform
		}
	}
	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DBPath returns the SQLite database path.
func (c *Config) DBPath() string {
	return filepath.Join(c.GetDataDir(), "bikescout.db")
}

// Target returns the target with the given name.
func (c *Config) Target(name string) (Target, bool) {
	for _, t := range c.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return Target{}, false
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
