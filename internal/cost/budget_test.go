package cost

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.PersistStatePath = filepath.Join(t.TempDir(), "cost_state.json")
	cfg.MaxTokensPerHour = 1000
	cfg.MaxCostPerHour = 0
	cfg.InputTokenCost = 1
	cfg.OutputTokenCost = 2
	return cfg
}

func TestTrackerStatusTransitions(t *testing.T) {
	tracker, err := NewTracker(testConfig(t), nil)
	require.NoError(t, err)
	ctx := context.Background()

	assert.Equal(t, BudgetHealthy, tracker.CheckBudget())

	require.NoError(t, tracker.RecordUsage(ctx, "commit_analysis", 500, 300))
	assert.Equal(t, BudgetWarning, tracker.CheckBudget())
	ok, _ := tracker.CanProceed("commit_analysis")
	assert.True(t, ok)

	require.NoError(t, tracker.RecordUsage(ctx, "duplicate_check", 150, 50))
	assert.Equal(t, BudgetExceeded, tracker.CheckBudget())
	ok, reason := tracker.CanProceed("duplicate_check")
	assert.False(t, ok)
	assert.Contains(t, reason, "hourly token budget exceeded")
}

func TestTrackerWindowReset(t *testing.T) {
	cfg := testConfig(t)
	tracker, err := NewTracker(cfg, nil)
	require.NoError(t, err)

	now := time.Now()
	tracker.now = func() time.Time { return now }
	require.NoError(t, tracker.RecordUsage(context.Background(), "op", 1000, 0))
	assert.Equal(t, BudgetExceeded, tracker.CheckBudget())

	now = now.Add(cfg.BudgetResetInterval + time.Second)
	assert.Equal(t, BudgetHealthy, tracker.CheckBudget())
	stats := tracker.GetStats()
	assert.Equal(t, int64(0), stats.HourlyTokensUsed)
	assert.Equal(t, int64(1000), stats.TotalTokensUsed)
}

func TestTrackerPerOperationLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxTokensPerOperation = 100
	tracker, err := NewTracker(cfg, nil)
	require.NoError(t, err)

	require.NoError(t, tracker.RecordUsage(context.Background(), "commit_analysis", 80, 20))
	ok, reason := tracker.CanProceed("commit_analysis")
	assert.False(t, ok)
	assert.Contains(t, reason, "commit_analysis")

	ok, _ = tracker.CanProceed("duplicate_check")
	assert.True(t, ok)
}

func TestTrackerPersistsState(t *testing.T) {
	cfg := testConfig(t)
	first, err := NewTracker(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, first.RecordUsage(context.Background(), "profile_update", 100, 10))

	second, err := NewTracker(cfg, nil)
	require.NoError(t, err)
	stats := second.GetStats()
	assert.Equal(t, int64(110), stats.TotalTokensUsed)
	assert.Equal(t, int64(1), stats.Operations["profile_update"].Calls)
	assert.InDelta(t, (100*1.0+10*2.0)/1_000_000, stats.TotalCostUsed, 1e-12)
}

func TestTrackerDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Enabled = false
	tracker, err := NewTracker(cfg, nil)
	require.NoError(t, err)

	require.NoError(t, tracker.RecordUsage(context.Background(), "op", 1_000_000, 0))
	ok, _ := tracker.CanProceed("op")
	assert.True(t, ok)
	assert.Equal(t, BudgetHealthy, tracker.CheckBudget())
}

func TestOperationNamesSortedByTokens(t *testing.T) {
	stats := BudgetStats{Operations: map[string]OperationUsage{
		"small": {InputTokens: 10},
		"large": {InputTokens: 500, OutputTokens: 100},
		"mid":   {OutputTokens: 200},
	}}
	assert.Equal(t, []string{"large", "mid", "small"}, stats.OperationNames())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"negative tokens", func(c *Config) { c.MaxTokensPerHour = -1 }, true},
		{"zero threshold", func(c *Config) { c.AlertThreshold = 0 }, true},
		{"threshold above one", func(c *Config) { c.AlertThreshold = 1.5 }, true},
		{"zero interval", func(c *Config) { c.BudgetResetInterval = 0 }, true},
		{"negative cost", func(c *Config) { c.InputTokenCost = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
