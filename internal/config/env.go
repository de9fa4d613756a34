package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ApplyEnv overrides fields from environment variables.
//
// Environment variables:
//   - CORESIGHT_DB_PATH: SQLite database path
//   - CORESIGHT_STORAGE_BACKEND: sqlite or memory
//   - CORESIGHT_EMBEDDING_PROVIDER: genai, ollama or hash
//   - CORESIGHT_EMBEDDING_MODEL, CORESIGHT_EMBEDDING_BASE_URL
//   - CORESIGHT_EMBEDDING_DIMENSIONS
//   - GEMINI_API_KEY: API key for the genai provider
//   - CORESIGHT_REASONING_PROVIDER: anthropic or none
//   - CORESIGHT_REASONING_MODEL, CORESIGHT_REASONING_TIMEOUT
//   - ANTHROPIC_API_KEY: selects the anthropic provider when no provider is set
//   - CORESIGHT_DEDUP_MIN_SCORE, CORESIGHT_DEDUP_MERGE_CONFIDENCE
//   - CORESIGHT_MATCH_MIN_SIMILARITY, CORESIGHT_MATCH_ASSIGN_CONFIDENCE
//   - CORESIGHT_FOCUS_THRESHOLD, CORESIGHT_FOCUS_WINDOW_DAYS
//   - CORESIGHT_PIPELINE_CONCURRENCY, CORESIGHT_PIPELINE_MAX_ATTEMPTS
//   - CORESIGHT_COST_ENABLED
//   - CORESIGHT_LOG_LEVEL, CORESIGHT_LOG_JSON
//
// Returns an error if any environment variable has an invalid value.
func (c *Config) ApplyEnv() error {
	strs := []struct {
		key  string
		dest *string
	}{
		{"CORESIGHT_DB_PATH", &c.Storage.Path},
		{"CORESIGHT_STORAGE_BACKEND", &c.Storage.Backend},
		{"CORESIGHT_EMBEDDING_PROVIDER", &c.Embedding.Provider},
		{"CORESIGHT_EMBEDDING_MODEL", &c.Embedding.Model},
		{"CORESIGHT_EMBEDDING_BASE_URL", &c.Embedding.BaseURL},
		{"GEMINI_API_KEY", &c.Embedding.APIKey},
		{"CORESIGHT_REASONING_MODEL", &c.Reasoning.Model},
		{"CORESIGHT_LOG_LEVEL", &c.Logging.Level},
	}
	for _, s := range strs {
		if err := parseEnvString(s.key, s.dest); err != nil {
			return err
		}
	}

	if os.Getenv("CORESIGHT_REASONING_PROVIDER") == "" && os.Getenv("ANTHROPIC_API_KEY") != "" {
		c.Reasoning.Provider = ReasoningAnthropic
	}
	if err := parseEnvString("CORESIGHT_REASONING_PROVIDER", &c.Reasoning.Provider); err != nil {
		return err
	}
	if err := parseEnvDuration("CORESIGHT_REASONING_TIMEOUT", &c.Reasoning.Timeout); err != nil {
		return err
	}

	ints := []struct {
		key  string
		dest *int
	}{
		{"CORESIGHT_EMBEDDING_DIMENSIONS", &c.Embedding.Dimensions},
		{"CORESIGHT_FOCUS_THRESHOLD", &c.Analytics.SwitchThreshold},
		{"CORESIGHT_FOCUS_WINDOW_DAYS", &c.Analytics.FocusWindowDays},
		{"CORESIGHT_PIPELINE_CONCURRENCY", &c.Pipeline.MaxConcurrent},
		{"CORESIGHT_PIPELINE_MAX_ATTEMPTS", &c.Pipeline.MaxAttempts},
	}
	for _, i := range ints {
		if err := parseEnvInt(i.key, i.dest); err != nil {
			return err
		}
	}

	floats := []struct {
		key  string
		dest *float64
	}{
		{"CORESIGHT_DEDUP_MIN_SCORE", &c.Dedup.SearchMinScore},
		{"CORESIGHT_DEDUP_MERGE_CONFIDENCE", &c.Dedup.MergeConfidence},
		{"CORESIGHT_MATCH_MIN_SIMILARITY", &c.Matching.MinSimilarity},
		{"CORESIGHT_MATCH_ASSIGN_CONFIDENCE", &c.Matching.AssignConfidence},
	}
	for _, f := range floats {
		if err := parseEnvFloat(f.key, f.dest); err != nil {
			return err
		}
	}

	if err := parseEnvBool("CORESIGHT_COST_ENABLED", &c.Cost.Enabled); err != nil {
		return err
	}
	return parseEnvBool("CORESIGHT_LOG_JSON", &c.Logging.JSON)
}

// FromEnv loads the default config file, applies the environment and
// validates the result.
func FromEnv() (Config, error) {
	cfg, err := Load("")
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return cfg, nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvFloat parses a float from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration parses a duration such as "30s" from an environment variable
func parseEnvDuration(key string, dest *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString parses a string from an environment variable
func parseEnvString(key string, dest *string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	*dest = value
	return nil
}
