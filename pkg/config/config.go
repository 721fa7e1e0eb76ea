package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Config is the booster runtime configuration
type Config struct {
	// Backend selects the executor binding
	Backend BackendConfig `yaml:"backend"`

	// Catalog lists the categories loaded at startup
	Catalog CatalogConfig `yaml:"catalog"`

	Ingest     IngestConfig     `yaml:"ingest"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Executor   ExecutorConfig   `yaml:"executor"`
	Probe      ProbeConfig      `yaml:"probe"`

	// DataDir enables the history journal when set
	DataDir string `yaml:"dataDir"`

	Log LogConfig `yaml:"log"`
	API APIConfig `yaml:"api"`
}

// BackendConfig selects and configures the executor binding
type BackendConfig struct {
	// Kind is "http" for a remote executor or "memory" for the simulator
	Kind    string        `yaml:"kind" validate:"required,oneof=http memory"`
	URL     string        `yaml:"url" validate:"required_if=Kind http,omitempty,url"`
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// CatalogConfig lists what to load
type CatalogConfig struct {
	Categories []string `yaml:"categories" validate:"dive,required"`
	Language   string   `yaml:"language"`
}

// IngestConfig tunes the event pipeline
type IngestConfig struct {
	GapTimeout      time.Duration `yaml:"gapTimeout" validate:"gt=0"`
	MaxPending      int           `yaml:"maxPending" validate:"gt=0"`
	CleanupInterval time.Duration `yaml:"cleanupInterval" validate:"gt=0"`
	Retention       time.Duration `yaml:"retention" validate:"gt=0"`
}

// ReconcilerConfig tunes the reconciliation loop
type ReconcilerConfig struct {
	Interval time.Duration `yaml:"interval" validate:"gt=0"`
	Timeout  time.Duration `yaml:"timeout" validate:"gt=0"`
}

// ExecutorConfig tunes batch submission
type ExecutorConfig struct {
	CallDelay      time.Duration `yaml:"callDelay" validate:"gte=0"`
	BatchRetention time.Duration `yaml:"batchRetention" validate:"gte=0"`
}

// ProbeConfig tunes the backend liveness probe
type ProbeConfig struct {
	Interval time.Duration `yaml:"interval" validate:"gt=0"`
	Retries  int           `yaml:"retries" validate:"gt=0"`
}

// LogConfig configures pkg/log
type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// APIConfig configures the local control API
type APIConfig struct {
	// Addr is the listen address for the API, /metrics and /health; empty disables it
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
	// ReadOnly rejects every request that would change state
	ReadOnly bool `yaml:"readOnly"`
	// RateLimit is the per-client request rate on /api, 0 disables it
	RateLimit float64 `yaml:"rateLimit" validate:"gte=0"`
	Burst     int     `yaml:"burst" validate:"gte=0"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Kind:    "memory",
			Timeout: 10 * time.Second,
		},
		Catalog: CatalogConfig{
			Categories: []string{"performance", "privacy", "cleanup", "network"},
			Language:   "en",
		},
		Ingest: IngestConfig{
			GapTimeout:      5 * time.Second,
			MaxPending:      50,
			CleanupInterval: 60 * time.Second,
			Retention:       5 * time.Minute,
		},
		Reconciler: ReconcilerConfig{
			Interval: 10 * time.Second,
			Timeout:  30 * time.Second,
		},
		Executor: ExecutorConfig{
			CallDelay:      100 * time.Millisecond,
			BatchRetention: 5 * time.Second,
		},
		Probe: ProbeConfig{
			Interval: 15 * time.Second,
			Retries:  3,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Write saves the configuration as YAML, creating parent directories
func (c *Config) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
