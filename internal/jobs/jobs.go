// Package jobs raises job requisitions for tasks nobody on the team can
// take. Notifications are fire-and-forget: the matching engine hands a
// request to the Service and moves on, a background worker drafts the
// posting through the reasoning gateway and persists it.
package jobs

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/coresight/coresight/internal/ai"
	"github.com/coresight/coresight/internal/storage"
	"github.com/coresight/coresight/internal/types"
)

// JobPostingRequest describes a task that exhausted all candidates.
type JobPostingRequest struct {
	TaskID          string
	TaskTitle       string
	TaskDescription string
	RequiredSkills  []string
	CandidatesSeen  int
}

// Notifier is the job-requisition collaborator.
type Notifier interface {
	NotifyJobPosting(ctx context.Context, req JobPostingRequest)
}

// NopNotifier discards every request.
type NopNotifier struct{}

// NotifyJobPosting does nothing.
func (NopNotifier) NotifyJobPosting(context.Context, JobPostingRequest) {}

// Config holds job requisition settings
type Config struct {
	// QueueSize bounds pending notifications; a full queue drops new ones
	QueueSize int `yaml:"queue_size"`
	// Workers is the number of background drafters
	Workers int `yaml:"workers"`
}

// DefaultConfig returns the default job requisition configuration
func DefaultConfig() Config {
	return Config{
		QueueSize: 64,
		Workers:   1,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue_size must be positive (got %d)", c.QueueSize)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive (got %d)", c.Workers)
	}
	if c.Workers > 16 {
		return fmt.Errorf("workers too large (got %d, max 16)", c.Workers)
	}
	return nil
}

// Service is a queue-backed Notifier that persists requisitions.
type Service struct {
	store    storage.Storage
	reasoner *ai.Gateway
	logger   *zap.Logger

	queue chan JobPostingRequest
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var _ Notifier = (*Service)(nil)

// NewService starts cfg.Workers background workers.
func NewService(store storage.Storage, reasoner *ai.Gateway, cfg Config, logger *zap.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid jobs config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:    store,
		reasoner: reasoner,
		logger:   logger.Named("jobs"),
		queue:    make(chan JobPostingRequest, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s, nil
}

// NotifyJobPosting enqueues req without blocking. Requests arriving on a
// full queue or after Close are dropped with a warning.
func (s *Service) NotifyJobPosting(ctx context.Context, req JobPostingRequest) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.logger.Warn("job posting dropped, service closed", zap.String("task_id", req.TaskID))
		return
	}
	select {
	case s.queue <- req:
		s.logger.Debug("job posting queued", zap.String("task_id", req.TaskID))
	default:
		s.logger.Warn("job posting dropped, queue full",
			zap.String("task_id", req.TaskID), zap.Int("capacity", cap(s.queue)))
	}
}

// Close stops accepting requests and waits for the queue to drain.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Service) worker() {
	defer s.wg.Done()
	for req := range s.queue {
		if _, err := s.Process(context.Background(), req); err != nil {
			s.logger.Error("failed to raise job requisition",
				zap.String("task_id", req.TaskID), zap.Error(err))
		}
	}
}

// Process drafts and persists a requisition for req. A task that already
// has an open requisition gets that one back instead of a second.
func (s *Service) Process(ctx context.Context, req JobPostingRequest) (*types.JobRequisition, error) {
	existing, err := s.store.ListJobRequisitions(ctx, storage.RequisitionFilter{TaskID: req.TaskID})
	if err != nil {
		return nil, fmt.Errorf("failed to check existing requisitions: %w", err)
	}
	for _, j := range existing {
		if j.Status != types.RequisitionClosed {
			s.logger.Debug("requisition already open", zap.String("task_id", req.TaskID), zap.String("requisition_id", j.ID))
			return j, nil
		}
	}

	decision := ai.Reason(ctx, s.reasoner,
		ai.NoMatchReportRequest(req.TaskTitle, req.TaskDescription, req.RequiredSkills, req.CandidatesSeen))
	report := decision.Value

	job := &types.JobRequisition{
		TaskID:                  req.TaskID,
		SuggestedTitle:          report.SuggestedJobTitle,
		Description:             report.SuggestedJobDescription,
		RequiredSkills:          append([]string(nil), req.RequiredSkills...),
		MissingSkills:           report.MissingSkills,
		RequiredExperienceYears: report.RequiredExperienceYears,
		Status:                  types.RequisitionPending,
	}
	if err := s.store.CreateJobRequisition(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job requisition: %w", err)
	}

	s.logger.Info("job requisition raised",
		zap.String("task_id", req.TaskID),
		zap.String("requisition_id", job.ID),
		zap.String("title", job.SuggestedTitle),
		zap.Bool("drafted_by_model", decision.Parsed))
	return job, nil
}
