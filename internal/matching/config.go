package matching

import (
	"fmt"
	"math"
)

// Config holds configuration for skill matching and assignment
type Config struct {
	// SkillWeight and ProfileWeight combine the two similarity axes.
	// They must sum to 1.
	SkillWeight   float64 `yaml:"skill_weight"`
	ProfileWeight float64 `yaml:"profile_weight"`

	// MinSimilarity excludes candidates whose skill-axis similarity is
	// below it before any reasoning call is made
	MinSimilarity float64 `yaml:"min_similarity"`

	// AssignConfidence is the validator confidence that must be exceeded
	// (strictly) for an automatic assignment
	AssignConfidence float64 `yaml:"assign_confidence"`

	// MaxValidationAttempts is how many ranked candidates are validated
	// before giving up on the task
	MaxValidationAttempts int `yaml:"max_validation_attempts"`

	// EmbedConcurrency bounds concurrent embedding calls when deriving
	// missing user embeddings
	EmbedConcurrency int `yaml:"embed_concurrency"`
}

// DefaultConfig returns the default matching configuration
func DefaultConfig() Config {
	return Config{
		SkillWeight:           0.7,
		ProfileWeight:         0.3,
		MinSimilarity:         0.3,
		AssignConfidence:      0.5,
		MaxValidationAttempts: 2,
		EmbedConcurrency:      4,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.SkillWeight < 0 || c.ProfileWeight < 0 {
		return fmt.Errorf("weights cannot be negative (skill=%.2f profile=%.2f)", c.SkillWeight, c.ProfileWeight)
	}
	if math.Abs(c.SkillWeight+c.ProfileWeight-1) > 1e-9 {
		return fmt.Errorf("skill_weight + profile_weight must equal 1.0 (got %.2f)", c.SkillWeight+c.ProfileWeight)
	}
	if c.MinSimilarity < 0 || c.MinSimilarity > 1 {
		return fmt.Errorf("min_similarity must be between 0.0 and 1.0 (got %.2f)", c.MinSimilarity)
	}
	if c.AssignConfidence < 0 || c.AssignConfidence >= 1 {
		return fmt.Errorf("assign_confidence must be in [0.0, 1.0) (got %.2f)", c.AssignConfidence)
	}
	if c.MaxValidationAttempts <= 0 {
		return fmt.Errorf("max_validation_attempts must be positive (got %d)", c.MaxValidationAttempts)
	}
	if c.MaxValidationAttempts > 10 {
		return fmt.Errorf("max_validation_attempts too large (got %d, max 10)", c.MaxValidationAttempts)
	}
	if c.EmbedConcurrency <= 0 {
		return fmt.Errorf("embed_concurrency must be positive (got %d)", c.EmbedConcurrency)
	}
	return nil
}
