package embedding

import (
	"fmt"
	"time"
)

// Config holds embedding gateway settings
type Config struct {
	// Provider is genai, ollama or hash
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`

	// Dimensions is fixed per deployment. Vectors of any other length are
	// rejected and replaced by the fallback.
	Dimensions int `yaml:"dimensions"`

	// Timeout bounds a single provider call
	Timeout time.Duration `yaml:"timeout"`

	// RequestsPerSecond and Burst configure the provider rate limiter.
	// Zero RequestsPerSecond disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`

	// CacheSize is the number of vectors kept in the in-memory cache.
	// Zero disables it.
	CacheSize int `yaml:"cache_size"`
}

// DefaultConfig returns the default gateway configuration
func DefaultConfig() Config {
	return Config{
		Provider:          ProviderHash,
		Dimensions:        768,
		Timeout:           30 * time.Second,
		RequestsPerSecond: 10,
		Burst:             5,
		CacheSize:         1024,
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGenAI, ProviderOllama, ProviderHash:
	default:
		return fmt.Errorf("provider must be one of genai, ollama, hash (got %q)", c.Provider)
	}
	if c.Dimensions < 1 {
		return fmt.Errorf("dimensions must be positive (got %d)", c.Dimensions)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive (got %v)", c.Timeout)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second cannot be negative (got %.2f)", c.RequestsPerSecond)
	}
	if c.RequestsPerSecond > 0 && c.Burst < 1 {
		return fmt.Errorf("burst must be at least 1 when rate limiting is enabled (got %d)", c.Burst)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size cannot be negative (got %d)", c.CacheSize)
	}
	if c.Provider == ProviderGenAI && c.APIKey == "" {
		return fmt.Errorf("api_key is required for the genai provider")
	}
	return nil
}
