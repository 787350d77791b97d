// Package config loads prompteval configuration from file and environment.
//
// Precedence (highest to lowest):
//  1. Environment variables (PROMPTEVAL_*)
//  2. Config file
//  3. Built-in defaults
//
// Config file search order:
//  1. .prompteval.yaml in current directory
//  2. ~/.config/prompteval/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all prompteval configuration.
type Config struct {
	// Judge model, as "provider:name".
	Model string `yaml:"model"`
	// BaseURL overrides the provider's default endpoint.
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	MaxTokens int64  `yaml:"max_tokens"`

	// Evaluation settings
	Runs          int     `yaml:"runs"`
	PassThreshold float64 `yaml:"pass_threshold"`
	Rubric        string  `yaml:"rubric"` // path to a rubric YAML; empty uses the built-in

	// Batch settings
	Parallel int    `yaml:"parallel"`
	Retries  int    `yaml:"retries"`
	Timeout  string `yaml:"timeout"` // per-call, Go duration string, e.g. "60s"
	Backoff  string `yaml:"backoff"` // retry backoff base, e.g. "1s"

	// CacheDir holds probe results across runs.
	CacheDir string `yaml:"cache_dir"`

	// OTEL
	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELHeaders  string `yaml:"otel_headers"` // Comma-separated key=value pairs, e.g. "Authorization=Basic abc123"

	// Parsed durations (not from YAML, set after loading)
	TimeoutDuration time.Duration `yaml:"-"`
	BackoffDuration time.Duration `yaml:"-"`

	// ConfigFile is the path to the config file that was loaded (empty if none).
	ConfigFile string `yaml:"-"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		Model:         "gh:gpt-4o-mini",
		MaxTokens:     1024,
		Runs:          3,
		PassThreshold: 0.75,
		Parallel:      4,
		Retries:       2,
		Timeout:       "60s",
		Backoff:       "1s",
	}
}

// Load reads configuration from file and environment variables.
// Environment variables always override file values.
func Load() (*Config, error) {
	cfg := Defaults()

	if path, data, err := findConfigFile(); err == nil {
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		cfg.ConfigFile = path
		mergeFile(cfg, &fileCfg)
	}

	// Environment variables override everything
	mergeEnv(cfg)

	var err error
	cfg.TimeoutDuration, err = parseDurationOrDisable(cfg.Timeout, 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout %q: %w", cfg.Timeout, err)
	}
	cfg.BackoffDuration, err = parseDurationOrDisable(cfg.Backoff, time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid backoff %q: %w", cfg.Backoff, err)
	}

	if cfg.PassThreshold < 0 || cfg.PassThreshold > 1 {
		return nil, fmt.Errorf("pass_threshold %v out of range [0, 1]", cfg.PassThreshold)
	}

	if cfg.CacheDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.CacheDir = filepath.Join(home, ".cache", "prompteval", "probes")
		}
	}

	return cfg, nil
}

// findConfigFile searches for a config file and returns its path and contents.
func findConfigFile() (string, []byte, error) {
	// 1. Current directory
	if data, err := os.ReadFile(".prompteval.yaml"); err == nil {
		return ".prompteval.yaml", data, nil
	}

	// 2. XDG config dir / ~/.config
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".config", "prompteval", "config.yaml")
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}

	return "", nil, fmt.Errorf("no config file found")
}

// mergeFile applies non-zero file values onto cfg.
func mergeFile(cfg *Config, file *Config) {
	if file.Model != "" {
		cfg.Model = file.Model
	}
	if file.BaseURL != "" {
		cfg.BaseURL = file.BaseURL
	}
	if file.APIKey != "" {
		cfg.APIKey = file.APIKey
	}
	if file.MaxTokens > 0 {
		cfg.MaxTokens = file.MaxTokens
	}
	if file.Runs > 0 {
		cfg.Runs = file.Runs
	}
	if file.PassThreshold > 0 {
		cfg.PassThreshold = file.PassThreshold
	}
	if file.Rubric != "" {
		cfg.Rubric = file.Rubric
	}
	if file.Parallel > 0 {
		cfg.Parallel = file.Parallel
	}
	if file.Retries > 0 {
		cfg.Retries = file.Retries
	}
	if file.Timeout != "" {
		cfg.Timeout = file.Timeout
	}
	if file.Backoff != "" {
		cfg.Backoff = file.Backoff
	}
	if file.CacheDir != "" {
		cfg.CacheDir = file.CacheDir
	}
	if file.OTELEndpoint != "" {
		cfg.OTELEndpoint = file.OTELEndpoint
	}
	if file.OTELHeaders != "" {
		cfg.OTELHeaders = file.OTELHeaders
	}
}

// mergeEnv applies environment variables onto cfg. Env always wins.
func mergeEnv(cfg *Config) {
	if v := os.Getenv("PROMPTEVAL_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("PROMPTEVAL_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("PROMPTEVAL_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("PROMPTEVAL_RUNS"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			cfg.Runs = n
		}
	}
	if v := os.Getenv("PROMPTEVAL_PARALLEL"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			cfg.Parallel = n
		}
	}
	if v := os.Getenv("PROMPTEVAL_RUBRIC"); v != "" {
		cfg.Rubric = v
	}
	if v := os.Getenv("PROMPTEVAL_TIMEOUT"); v != "" {
		cfg.Timeout = v
	}
	if v := os.Getenv("PROMPTEVAL_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTELEndpoint = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); v != "" {
		cfg.OTELHeaders = v
	}
}

// parseDurationOrDisable parses a duration string. "0", "off", "disable" return 0.
// Empty string returns the fallback value.
func parseDurationOrDisable(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	if s == "0" || s == "off" || s == "disable" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func parsePositiveInt(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("value %d below 1", n)
	}
	return n, nil
}
