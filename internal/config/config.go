// Package config loads the coresight configuration file and applies
// CORESIGHT_* environment overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coresight/coresight/internal/ai"
	"github.com/coresight/coresight/internal/analytics"
	"github.com/coresight/coresight/internal/cost"
	"github.com/coresight/coresight/internal/dedup"
	"github.com/coresight/coresight/internal/embedding"
	"github.com/coresight/coresight/internal/jobs"
	"github.com/coresight/coresight/internal/logging"
	"github.com/coresight/coresight/internal/matching"
	"github.com/coresight/coresight/internal/pipeline"
	"github.com/coresight/coresight/internal/profile"
	"github.com/coresight/coresight/internal/storage"
)

// DefaultPath is the configuration file looked up when none is given
const DefaultPath = ".coresight/config.yaml"

// Reasoning provider names
const (
	ReasoningAnthropic = "anthropic"
	// ReasoningNone makes every decision take its default
	ReasoningNone = "none"
)

// ReasoningConfig holds reasoning gateway settings
type ReasoningConfig struct {
	// Provider is anthropic or none
	Provider string `yaml:"provider"`
	// Timeout bounds a single gateway call, including the strict retry
	Timeout time.Duration `yaml:"timeout"`

	ai.CompleterConfig `yaml:",inline"`
}

// Validate checks if the configuration has valid values
func (c ReasoningConfig) Validate() error {
	switch c.Provider {
	case ReasoningAnthropic, ReasoningNone:
	default:
		return fmt.Errorf("provider must be anthropic or none (got %q)", c.Provider)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive (got %v)", c.Timeout)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens cannot be negative (got %d)", c.MaxTokens)
	}
	return c.Retry.Validate()
}

// Config is the full coresight configuration
type Config struct {
	Storage   storage.Config   `yaml:"storage"`
	Embedding embedding.Config `yaml:"embedding"`
	Reasoning ReasoningConfig  `yaml:"reasoning"`
	Cost      cost.Config      `yaml:"cost"`
	Dedup     dedup.Config     `yaml:"dedup"`
	Matching  matching.Config  `yaml:"matching"`
	Profile   profile.Config   `yaml:"profile"`
	Analytics analytics.Config `yaml:"analytics"`
	Pipeline  pipeline.Config  `yaml:"pipeline"`
	Jobs      jobs.Config      `yaml:"jobs"`
	Logging   logging.Options  `yaml:"logging"`
}

// DefaultConfig returns a configuration that runs offline: hash
// embeddings and no reasoning provider.
func DefaultConfig() Config {
	return Config{
		Storage:   storage.DefaultConfig(),
		Embedding: embedding.DefaultConfig(),
		Reasoning: ReasoningConfig{
			Provider: ReasoningNone,
			Timeout:  30 * time.Second,
			CompleterConfig: ai.CompleterConfig{
				Model:     ai.ModelHaiku,
				MaxTokens: 2048,
				Retry:     ai.DefaultRetryConfig(),
			},
		},
		Cost:      cost.DefaultConfig(),
		Dedup:     dedup.DefaultConfig(),
		Matching:  matching.DefaultConfig(),
		Profile:   profile.DefaultConfig(),
		Analytics: analytics.DefaultConfig(),
		Pipeline:  pipeline.DefaultConfig(),
		Jobs:      jobs.DefaultConfig(),
		Logging:   logging.DefaultOptions(),
	}
}

// Load reads path over the defaults. A missing file at the default path
// is not an error; a missing explicit path is.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	sections := []struct {
		name string
		fn   func() error
	}{
		{"storage", c.validateStorage},
		{"embedding", c.Embedding.Validate},
		{"reasoning", c.Reasoning.Validate},
		{"cost", c.Cost.Validate},
		{"dedup", c.Dedup.Validate},
		{"matching", c.Matching.Validate},
		{"profile", c.Profile.Validate},
		{"analytics", c.Analytics.Validate},
		{"pipeline", c.Pipeline.Validate},
		{"jobs", c.Jobs.Validate},
		{"logging", c.Logging.Validate},
	}
	for _, s := range sections {
		if err := s.fn(); err != nil {
			return fmt.Errorf("invalid %s configuration: %w", s.name, err)
		}
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case storage.BackendSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("path is required for the sqlite backend")
		}
	case storage.BackendMemory:
	default:
		return fmt.Errorf("backend must be sqlite or memory (got %q)", c.Storage.Backend)
	}
	return nil
}

// String returns a human-readable summary of the config
func (c Config) String() string {
	return fmt.Sprintf("Config{Storage: %s:%s, Embedding: %s/%d, Reasoning: %s, %s}",
		c.Storage.Backend, c.Storage.Path, c.Embedding.Provider, c.Embedding.Dimensions,
		c.Reasoning.Provider, c.Dedup)
}
