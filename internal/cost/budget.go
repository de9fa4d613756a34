// Package cost tracks token spend on reasoning calls and refuses calls
// once the hourly budget is gone. A refused call is not an error for the
// engines: the reasoning gateway turns it into the call-site default.
package cost

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BudgetStatus represents the current budget state
type BudgetStatus int

const (
	BudgetHealthy BudgetStatus = iota
	BudgetWarning
	BudgetExceeded
)

// String returns a human-readable string representation of the budget status
func (s BudgetStatus) String() string {
	switch s {
	case BudgetHealthy:
		return "HEALTHY"
	case BudgetWarning:
		return "WARNING"
	case BudgetExceeded:
		return "EXCEEDED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// OperationUsage is the spend attributed to one reasoning operation.
type OperationUsage struct {
	Calls        int64   `json:"calls"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Tokens is input + output.
func (u OperationUsage) Tokens() int64 {
	return u.InputTokens + u.OutputTokens
}

// BudgetState is the persisted tracking state
type BudgetState struct {
	HourlyTokensUsed int64     `json:"hourly_tokens_used"`
	HourlyCostUsed   float64   `json:"hourly_cost_used"`
	WindowStartTime  time.Time `json:"window_start_time"`

	// WindowOperations is per-operation usage in the current window
	WindowOperations map[string]int64 `json:"window_operations"`

	// Operations is all-time usage by operation
	Operations map[string]OperationUsage `json:"operations"`

	TotalTokensUsed int64     `json:"total_tokens_used"`
	TotalCostUsed   float64   `json:"total_cost_used"`
	LastUpdated     time.Time `json:"last_updated"`
}

func newState(now time.Time) *BudgetState {
	return &BudgetState{
		WindowStartTime:  now,
		WindowOperations: make(map[string]int64),
		Operations:       make(map[string]OperationUsage),
		LastUpdated:      now,
	}
}

// Tracker tracks AI cost budgets and enforces limits
type Tracker struct {
	config Config
	logger *zap.Logger
	now    func() time.Time

	mu            sync.Mutex
	state         *BudgetState
	warningLogged bool
}

// NewTracker creates a tracker, restoring persisted state when present.
func NewTracker(cfg Config, logger *zap.Logger) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Tracker{
		config: cfg,
		logger: logger.Named("cost"),
		now:    time.Now,
	}
	t.state = newState(t.now())

	if cfg.PersistStatePath != "" {
		if err := t.loadState(); err != nil {
			t.logger.Warn("failed to load cost state, starting fresh",
				zap.String("path", cfg.PersistStatePath), zap.Error(err))
		}
	}

	t.mu.Lock()
	t.checkAndResetWindow()
	t.mu.Unlock()

	return t, nil
}

// RecordUsage records token usage for an operation.
func (t *Tracker) RecordUsage(ctx context.Context, operation string, inputTokens, outputTokens int64) error {
	if !t.config.Enabled {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.checkAndResetWindow()

	tokens := inputTokens + outputTokens
	cost := t.calculateCost(inputTokens, outputTokens)

	t.state.HourlyTokensUsed += tokens
	t.state.HourlyCostUsed += cost
	t.state.TotalTokensUsed += tokens
	t.state.TotalCostUsed += cost
	t.state.WindowOperations[operation] += tokens

	usage := t.state.Operations[operation]
	usage.Calls++
	usage.InputTokens += inputTokens
	usage.OutputTokens += outputTokens
	usage.Cost += cost
	t.state.Operations[operation] = usage
	t.state.LastUpdated = t.now()

	if err := t.persistState(); err != nil {
		t.logger.Warn("failed to persist cost state", zap.Error(err))
	}

	t.emitAlertsIfNeeded(t.statusLocked())
	return nil
}

// CheckBudget returns the current budget status without recording usage
func (t *Tracker) CheckBudget() BudgetStatus {
	if !t.config.Enabled {
		return BudgetHealthy
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checkAndResetWindow()
	return t.statusLocked()
}

// CanProceed reports whether another call for operation fits in budget.
func (t *Tracker) CanProceed(operation string) (bool, string) {
	if !t.config.Enabled {
		return true, ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checkAndResetWindow()

	if t.hourlyTokensExceeded() {
		return false, fmt.Sprintf("hourly token budget exceeded (%d/%d tokens used)",
			t.state.HourlyTokensUsed, t.config.MaxTokensPerHour)
	}
	if t.hourlyCostExceeded() {
		return false, fmt.Sprintf("hourly cost budget exceeded ($%.2f/$%.2f used)",
			t.state.HourlyCostUsed, t.config.MaxCostPerHour)
	}
	if limit := t.config.MaxTokensPerOperation; limit > 0 && t.state.WindowOperations[operation] >= limit {
		return false, fmt.Sprintf("token budget for %s exceeded (%d/%d tokens used)",
			operation, t.state.WindowOperations[operation], limit)
	}
	return true, ""
}

// BudgetStats contains budget statistics
type BudgetStats struct {
	Status           BudgetStatus              `json:"status"`
	HourlyTokensUsed int64                     `json:"hourly_tokens_used"`
	HourlyCostUsed   float64                   `json:"hourly_cost_used"`
	TotalTokensUsed  int64                     `json:"total_tokens_used"`
	TotalCostUsed    float64                   `json:"total_cost_used"`
	WindowStartTime  time.Time                 `json:"window_start_time"`
	LastUpdated      time.Time                 `json:"last_updated"`
	Operations       map[string]OperationUsage `json:"operations"`
	Config           Config                    `json:"config"`
}

// OperationNames returns operation names sorted by total tokens, highest first.
func (s BudgetStats) OperationNames() []string {
	names := make([]string, 0, len(s.Operations))
	for name := range s.Operations {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := s.Operations[names[i]].Tokens(), s.Operations[names[j]].Tokens()
		if a != b {
			return a > b
		}
		return names[i] < names[j]
	})
	return names
}

// GetStats returns current budget statistics
func (t *Tracker) GetStats() BudgetStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checkAndResetWindow()

	ops := make(map[string]OperationUsage, len(t.state.Operations))
	for k, v := range t.state.Operations {
		ops[k] = v
	}
	status := BudgetHealthy
	if t.config.Enabled {
		status = t.statusLocked()
	}
	return BudgetStats{
		Status:           status,
		HourlyTokensUsed: t.state.HourlyTokensUsed,
		HourlyCostUsed:   t.state.HourlyCostUsed,
		TotalTokensUsed:  t.state.TotalTokensUsed,
		TotalCostUsed:    t.state.TotalCostUsed,
		WindowStartTime:  t.state.WindowStartTime,
		LastUpdated:      t.state.LastUpdated,
		Operations:       ops,
		Config:           t.config,
	}
}

// must be called with lock held
func (t *Tracker) statusLocked() BudgetStatus {
	if t.hourlyTokensExceeded() || t.hourlyCostExceeded() {
		return BudgetExceeded
	}
	if t.config.MaxTokensPerHour > 0 &&
		float64(t.state.HourlyTokensUsed)/float64(t.config.MaxTokensPerHour) >= t.config.AlertThreshold {
		return BudgetWarning
	}
	if t.config.MaxCostPerHour > 0 &&
		t.state.HourlyCostUsed/t.config.MaxCostPerHour >= t.config.AlertThreshold {
		return BudgetWarning
	}
	return BudgetHealthy
}

func (t *Tracker) hourlyTokensExceeded() bool {
	return t.config.MaxTokensPerHour > 0 && t.state.HourlyTokensUsed >= t.config.MaxTokensPerHour
}

func (t *Tracker) hourlyCostExceeded() bool {
	return t.config.MaxCostPerHour > 0 && t.state.HourlyCostUsed >= t.config.MaxCostPerHour
}

func (t *Tracker) calculateCost(inputTokens, outputTokens int64) float64 {
	return float64(inputTokens)*t.config.InputTokenCost/1_000_000 +
		float64(outputTokens)*t.config.OutputTokenCost/1_000_000
}

// must be called with lock held
func (t *Tracker) checkAndResetWindow() {
	now := t.now()
	if now.Sub(t.state.WindowStartTime) >= t.config.BudgetResetInterval {
		t.state.HourlyTokensUsed = 0
		t.state.HourlyCostUsed = 0
		t.state.WindowOperations = make(map[string]int64)
		t.state.WindowStartTime = now
		t.warningLogged = false
	}
}

func (t *Tracker) emitAlertsIfNeeded(status BudgetStatus) {
	switch status {
	case BudgetExceeded:
		t.logger.Warn("AI budget exceeded, reasoning calls will use defaults",
			zap.Int64("hourly_tokens", t.state.HourlyTokensUsed),
			zap.Float64("hourly_cost", t.state.HourlyCostUsed))
	case BudgetWarning:
		if !t.warningLogged {
			t.warningLogged = true
			t.logger.Info("AI budget approaching limit",
				zap.Int64("hourly_tokens", t.state.HourlyTokensUsed),
				zap.Float64("hourly_cost", t.state.HourlyCostUsed),
				zap.Float64("threshold", t.config.AlertThreshold))
		}
	}
}

func (t *Tracker) persistState() error {
	if t.config.PersistStatePath == "" {
		return nil
	}
	data, err := json.MarshalIndent(t.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(t.config.PersistStatePath), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(t.config.PersistStatePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

func (t *Tracker) loadState() error {
	data, err := os.ReadFile(t.config.PersistStatePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}

	var state BudgetState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if state.WindowOperations == nil {
		state.WindowOperations = make(map[string]int64)
	}
	if state.Operations == nil {
		state.Operations = make(map[string]OperationUsage)
	}

	t.mu.Lock()
	t.state = &state
	t.mu.Unlock()
	return nil
}
