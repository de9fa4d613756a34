package cost

import (
	"fmt"
	"time"
)

// Config holds AI cost budgeting configuration
type Config struct {
	// Enabled controls whether budgeting is enforced
	Enabled bool `yaml:"enabled" json:"enabled"`

	// MaxTokensPerHour is the token ceiling (input + output) per window. 0 = unlimited
	MaxTokensPerHour int64 `yaml:"max_tokens_per_hour" json:"max_tokens_per_hour"`

	// MaxCostPerHour is the USD ceiling per window. 0 = unlimited
	MaxCostPerHour float64 `yaml:"max_cost_per_hour" json:"max_cost_per_hour"`

	// MaxTokensPerOperation caps a single operation type (e.g. commit_analysis)
	// within a window so one noisy event source cannot starve the others. 0 = unlimited
	MaxTokensPerOperation int64 `yaml:"max_tokens_per_operation" json:"max_tokens_per_operation"`

	// AlertThreshold is the fraction of budget that triggers a warning
	AlertThreshold float64 `yaml:"alert_threshold" json:"alert_threshold"`

	// BudgetResetInterval is the length of a budget window
	BudgetResetInterval time.Duration `yaml:"budget_reset_interval" json:"budget_reset_interval"`

	// PersistStatePath is where state survives restarts. Empty disables persistence
	PersistStatePath string `yaml:"persist_state_path" json:"persist_state_path"`

	// InputTokenCost and OutputTokenCost are USD per 1M tokens
	InputTokenCost  float64 `yaml:"input_token_cost" json:"input_token_cost"`
	OutputTokenCost float64 `yaml:"output_token_cost" json:"output_token_cost"`
}

// DefaultConfig returns default cost budgeting configuration
func DefaultConfig() Config {
	return Config{
		Enabled:               true,
		MaxTokensPerHour:      200000,
		MaxCostPerHour:        1.00,
		MaxTokensPerOperation: 0,
		AlertThreshold:        0.80,
		BudgetResetInterval:   time.Hour,
		PersistStatePath:      ".coresight/cost_state.json",
		InputTokenCost:        0.80, // Haiku input per 1M tokens
		OutputTokenCost:       4.00, // Haiku output per 1M tokens
	}
}

// Validate checks that the configuration has safe and reasonable values
func (c *Config) Validate() error {
	if c.MaxTokensPerHour < 0 {
		return fmt.Errorf("max_tokens_per_hour must be non-negative, got %d", c.MaxTokensPerHour)
	}
	if c.MaxCostPerHour < 0 {
		return fmt.Errorf("max_cost_per_hour must be non-negative, got %.2f", c.MaxCostPerHour)
	}
	if c.MaxTokensPerOperation < 0 {
		return fmt.Errorf("max_tokens_per_operation must be non-negative, got %d", c.MaxTokensPerOperation)
	}
	if c.AlertThreshold <= 0 || c.AlertThreshold > 1.0 {
		return fmt.Errorf("alert_threshold must be between 0 and 1, got %.2f", c.AlertThreshold)
	}
	if c.BudgetResetInterval <= 0 {
		return fmt.Errorf("budget_reset_interval must be positive, got %v", c.BudgetResetInterval)
	}
	if c.InputTokenCost < 0 || c.OutputTokenCost < 0 {
		return fmt.Errorf("token costs must be non-negative, got input=%.2f output=%.2f", c.InputTokenCost, c.OutputTokenCost)
	}
	return nil
}
