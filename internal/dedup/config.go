package dedup

import (
	"fmt"
)

// Config holds configuration for the duplicate resolution engine
type Config struct {
	// SearchMinScore is the minimum cosine similarity for an open task to be
	// considered a candidate. Issues with no candidate at or above it are
	// created without a reasoning call.
	// Default: 0.7
	SearchMinScore float64 `yaml:"search_min_score"`

	// TopK is how many candidates are retrieved. The best one is the
	// primary candidate; the rest are context for the model.
	// Default: 5
	TopK int `yaml:"top_k"`

	// MergeConfidence is the minimum model confidence (0.0-1.0) to merge
	// into the primary candidate.
	// Default: 0.7
	MergeConfidence float64 `yaml:"merge_confidence"`

	// MaxMergeAttempts bounds compare-and-set retries on the parent task
	// when concurrent merges race.
	// Default: 2 (one retry)
	MaxMergeAttempts int `yaml:"max_merge_attempts"`

	// AssignOnCreate hands newly created tasks to the matching engine.
	// Default: true
	AssignOnCreate bool `yaml:"assign_on_create"`
}

// DefaultConfig returns the default duplicate resolution configuration
func DefaultConfig() Config {
	return Config{
		SearchMinScore:   0.7,
		TopK:             5,
		MergeConfidence:  0.7,
		MaxMergeAttempts: 2,
		AssignOnCreate:   true,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.SearchMinScore < 0.0 || c.SearchMinScore > 1.0 {
		return fmt.Errorf("search_min_score must be between 0.0 and 1.0 (got %.2f)", c.SearchMinScore)
	}
	if c.MergeConfidence < 0.0 || c.MergeConfidence > 1.0 {
		return fmt.Errorf("merge_confidence must be between 0.0 and 1.0 (got %.2f)", c.MergeConfidence)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive (got %d)", c.TopK)
	}
	if c.TopK > 50 {
		return fmt.Errorf("top_k too large (got %d, max 50)", c.TopK)
	}
	if c.MaxMergeAttempts <= 0 {
		return fmt.Errorf("max_merge_attempts must be positive (got %d)", c.MaxMergeAttempts)
	}
	if c.MaxMergeAttempts > 10 {
		return fmt.Errorf("max_merge_attempts too large (got %d, max 10)", c.MaxMergeAttempts)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf("Config{SearchMin: %.2f, TopK: %d, MergeConfidence: %.2f, MaxMergeAttempts: %d, AssignOnCreate: %t}",
		c.SearchMinScore, c.TopK, c.MergeConfidence, c.MaxMergeAttempts, c.AssignOnCreate)
}
