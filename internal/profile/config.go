package profile

import "fmt"

// Config holds configuration for profile evolution
type Config struct {
	// LinkMinScore is the minimum similarity between a commit summary and an
	// open task for the commit to be linked to it.
	// Default: 0.7
	LinkMinScore float64 `yaml:"link_min_score"`

	// MaxUpdateAttempts bounds compare-and-set attempts on the user record.
	// Default: 2 (one retry with freshly read state)
	MaxUpdateAttempts int `yaml:"max_update_attempts"`
}

// DefaultConfig returns the default profile evolution configuration
func DefaultConfig() Config {
	return Config{
		LinkMinScore:      0.7,
		MaxUpdateAttempts: 2,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.LinkMinScore < 0.0 || c.LinkMinScore > 1.0 {
		return fmt.Errorf("link_min_score must be between 0.0 and 1.0 (got %.2f)", c.LinkMinScore)
	}
	if c.MaxUpdateAttempts <= 0 {
		return fmt.Errorf("max_update_attempts must be positive (got %d)", c.MaxUpdateAttempts)
	}
	if c.MaxUpdateAttempts > 10 {
		return fmt.Errorf("max_update_attempts too large (got %d, max 10)", c.MaxUpdateAttempts)
	}
	return nil
}
