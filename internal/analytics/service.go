// Package analytics computes read-only reports over persisted history:
// code impact profiles, true task cost and focus health. The computations
// are pure functions; Service loads their inputs from storage.
package analytics

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/coresight/coresight/internal/storage"
	"github.com/coresight/coresight/internal/types"
)

// Config holds analytics defaults
type Config struct {
	// FocusWindowDays is the default focus health window.
	// Default: 7
	FocusWindowDays int `yaml:"focus_window_days"`

	// SwitchThreshold is the context switches per day that mark a high-risk day.
	// Default: 4
	SwitchThreshold int `yaml:"switch_threshold"`

	// RecentCommits is how many commits an impact report details.
	// Default: 10
	RecentCommits int `yaml:"recent_commits"`
}

// DefaultConfig returns the default analytics configuration
func DefaultConfig() Config {
	return Config{
		FocusWindowDays: 7,
		SwitchThreshold: DefaultSwitchThreshold,
		RecentCommits:   DefaultRecentCommits,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.FocusWindowDays <= 0 || c.FocusWindowDays > 366 {
		return fmt.Errorf("focus_window_days must be between 1 and 366 (got %d)", c.FocusWindowDays)
	}
	if c.SwitchThreshold <= 0 {
		return fmt.Errorf("switch_threshold must be positive (got %d)", c.SwitchThreshold)
	}
	if c.RecentCommits < 0 {
		return fmt.Errorf("recent_commits cannot be negative (got %d)", c.RecentCommits)
	}
	return nil
}

// Service loads history and runs the reports.
type Service struct {
	store  storage.Storage
	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

// NewService creates an analytics service.
func NewService(store storage.Storage, cfg Config, logger *zap.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analytics config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, cfg: cfg, now: time.Now, logger: logger.Named("analytics")}, nil
}

// SetClock replaces the clock used for focus windows.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Impact returns the code impact report for userID.
func (s *Service) Impact(ctx context.Context, userID string) (*ImpactReport, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", userID, storage.ErrNotFound)
	}
	commits, err := s.store.ListCommits(ctx, storage.CommitFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list commits: %w", err)
	}
	report := ImpactBreakdown(userID, commits, s.cfg.RecentCommits)
	s.logger.Debug("impact computed",
		zap.String("user_id", userID), zap.Int("commits", report.TotalCommits), zap.String("label", string(report.Label)))
	return &report, nil
}

// TaskCost returns the cost report for taskID.
func (s *Service) TaskCost(ctx context.Context, taskID string) (*TaskCostReport, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	if task == nil {
		return nil, fmt.Errorf("task %s: %w", taskID, storage.ErrNotFound)
	}
	sessions, err := s.store.ListWorkSessions(ctx, storage.SessionFilter{TaskID: taskID})
	if err != nil {
		return nil, fmt.Errorf("failed to list work sessions: %w", err)
	}

	users := make(map[string]*types.User)
	for _, sess := range sessions {
		if _, ok := users[sess.UserID]; ok {
			continue
		}
		u, err := s.store.GetUser(ctx, sess.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to load user %s: %w", sess.UserID, err)
		}
		users[sess.UserID] = u
	}

	var project *types.Project
	var taskCount int
	if task.ProjectID != "" {
		project, err = s.store.GetProject(ctx, task.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to load project: %w", err)
		}
		if project != nil {
			taskCount, err = s.store.CountTasks(ctx, storage.TaskFilter{ProjectID: project.ID})
			if err != nil {
				return nil, fmt.Errorf("failed to count project tasks: %w", err)
			}
		}
	}

	report := TaskCost(task, sessions, users, project, taskCount)
	return &report, nil
}

// FocusHealth returns the team focus report for the last days days ending
// now. Zero arguments use the configured defaults.
func (s *Service) FocusHealth(ctx context.Context, days, threshold int) (*FocusReport, error) {
	if days <= 0 {
		days = s.cfg.FocusWindowDays
	}
	if threshold <= 0 {
		threshold = s.cfg.SwitchThreshold
	}
	window := LastDays(s.now(), days)

	// Until is exclusive in the filter; FocusHealth re-applies the window
	until := window.End.Add(time.Nanosecond)
	sessions, err := s.store.ListWorkSessions(ctx, storage.SessionFilter{Since: &window.Start, Until: &until})
	if err != nil {
		return nil, fmt.Errorf("failed to list work sessions: %w", err)
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}

	report := FocusHealth(sessions, names, window, threshold)
	if report.Summary.HighRisk > 0 {
		s.logger.Warn("context switching overload",
			zap.Strings("users", report.Alert.UsersFlagged), zap.Int("threshold", threshold))
	}
	return &report, nil
}
