// Package pipeline runs incoming issue, commit and task events through the
// engines. Each event runs in its own goroutine with its own context, and
// a failed event is retried from the top.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/coresight/coresight/internal/dedup"
	"github.com/coresight/coresight/internal/matching"
	"github.com/coresight/coresight/internal/profile"
	"github.com/coresight/coresight/internal/similarity"
	"github.com/coresight/coresight/internal/storage"
	"github.com/coresight/coresight/internal/types"
)

// Kind identifies the payload of an Event.
type Kind string

const (
	KindIssue  Kind = "issue"
	KindCommit Kind = "commit"
	KindTask   Kind = "task"
)

// Event is one unit of incoming work. Exactly one payload matches Kind.
type Event struct {
	Kind   Kind          `json:"kind"`
	Issue  *types.Issue  `json:"issue,omitempty"`
	Commit *types.Commit `json:"commit,omitempty"`
	// TaskID names an existing task to assign
	TaskID string `json:"task_id,omitempty"`
}

// Validate checks that the payload matches the kind.
func (e Event) Validate() error {
	switch e.Kind {
	case KindIssue:
		if e.Issue == nil {
			return fmt.Errorf("issue event has no issue")
		}
	case KindCommit:
		if e.Commit == nil {
			return fmt.Errorf("commit event has no commit")
		}
	case KindTask:
		if e.TaskID == "" {
			return fmt.Errorf("task event has no task_id")
		}
	default:
		return fmt.Errorf("unknown event kind: %q", e.Kind)
	}
	return nil
}

// Result holds the outcome of whichever engine handled the event.
type Result struct {
	Issue      *dedup.Outcome
	Commit     *profile.Result
	Assignment *matching.Result
}

// Resolver handles issue events; *dedup.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, issue *types.Issue) (*dedup.Outcome, error)
}

// CommitProcessor handles commit events; *profile.Engine satisfies it.
type CommitProcessor interface {
	ProcessCommit(ctx context.Context, commit *types.Commit) (*profile.Result, error)
}

// TaskAssigner handles task events; *matching.Engine satisfies it.
type TaskAssigner interface {
	AssignByID(ctx context.Context, taskID string) (*matching.Result, error)
}

// Config holds dispatcher configuration
type Config struct {
	// MaxConcurrent bounds events in flight.
	// Default: 8
	MaxConcurrent int `yaml:"max_concurrent"`

	// MaxAttempts is how many times an event runs before it fails.
	// Default: 3
	MaxAttempts int `yaml:"max_attempts"`

	// RetryBackoff is the pause before the second attempt, doubled after
	// each further failure.
	// Default: 500ms
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// DefaultConfig returns the default dispatcher configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 8,
		MaxAttempts:   3,
		RetryBackoff:  500 * time.Millisecond,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max_concurrent must be positive (got %d)", c.MaxConcurrent)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be positive (got %d)", c.MaxAttempts)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry_backoff cannot be negative (got %v)", c.RetryBackoff)
	}
	return nil
}

// Handle tracks one submitted event.
type Handle struct {
	Event Event

	cancel context.CancelFunc
	done   chan struct{}

	// written before done is closed
	result   Result
	err      error
	attempts int
}

// Wait blocks until the event finishes and returns its result.
func (h *Handle) Wait() (Result, error) {
	<-h.done
	return h.result, h.err
}

// Done is closed when the event finishes.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel stops the event. A decision already written stays written.
func (h *Handle) Cancel() {
	h.cancel()
}

// Attempts reports how many times the event ran. Only valid after Done.
func (h *Handle) Attempts() int {
	<-h.done
	return h.attempts
}

// Dispatcher routes events to the engines.
type Dispatcher struct {
	resolver  Resolver
	commits   CommitProcessor
	assigner  TaskAssigner
	cfg       Config
	sem       *semaphore.Weighted
	wg        sync.WaitGroup
	logger    *zap.Logger
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates a dispatcher. A nil engine makes events of its
// kind fail.
func NewDispatcher(resolver Resolver, commits CommitProcessor, assigner TaskAssigner, cfg Config, logger *zap.Logger) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		resolver:  resolver,
		commits:   commits,
		assigner:  assigner,
		cfg:       cfg,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger:    logger.Named("pipeline"),
		sleepFunc: sleep,
	}, nil
}

// Submit starts ev in its own goroutine and returns immediately.
func (d *Dispatcher) Submit(ctx context.Context, ev Event) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{Event: ev, cancel: cancel, done: make(chan struct{})}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(h.done)
		defer cancel()
		h.result, h.attempts, h.err = d.run(ctx, ev)
	}()
	return h
}

// Wait blocks until every submitted event has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, ev Event) (Result, int, error) {
	if err := ev.Validate(); err != nil {
		return Result{}, 0, err
	}
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return Result{}, 0, fmt.Errorf("%s event not started: %w", ev.Kind, err)
	}
	defer d.sem.Release(1)

	backoff := d.cfg.RetryBackoff
	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		result, err := d.handle(ctx, ev)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err
		if !Retryable(err) || attempt == d.cfg.MaxAttempts {
			d.logger.Error("event failed",
				zap.String("kind", string(ev.Kind)), zap.Int("attempt", attempt), zap.Error(err))
			return result, attempt, err
		}

		d.logger.Warn("event failed, retrying",
			zap.String("kind", string(ev.Kind)), zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff), zap.Error(err))
		if err := d.sleepFunc(ctx, backoff); err != nil {
			return result, attempt, fmt.Errorf("%w (retry abandoned: %v)", lastErr, err)
		}
		backoff *= 2
	}
	return Result{}, d.cfg.MaxAttempts, lastErr
}

func (d *Dispatcher) handle(ctx context.Context, ev Event) (Result, error) {
	switch ev.Kind {
	case KindIssue:
		if d.resolver == nil {
			return Result{}, errNoHandler(ev.Kind)
		}
		out, err := d.resolver.Resolve(ctx, ev.Issue)
		return Result{Issue: out}, err
	case KindCommit:
		if d.commits == nil {
			return Result{}, errNoHandler(ev.Kind)
		}
		out, err := d.commits.ProcessCommit(ctx, ev.Commit)
		return Result{Commit: out}, err
	case KindTask:
		if d.assigner == nil {
			return Result{}, errNoHandler(ev.Kind)
		}
		out, err := d.assigner.AssignByID(ctx, ev.TaskID)
		return Result{Assignment: out}, err
	}
	return Result{}, fmt.Errorf("unknown event kind: %q", ev.Kind)
}

// ErrNoHandler is returned for events whose engine is not configured.
var ErrNoHandler = errors.New("no handler configured")

func errNoHandler(k Kind) error {
	return fmt.Errorf("%s event: %w", k, ErrNoHandler)
}

// Retryable reports whether an event that failed with err may be run
// again. Dimension mismatches, cancellation and errors that re-running
// cannot fix are permanent.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, similarity.ErrDimensionMismatch),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, storage.ErrTaskClosed),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, ErrNoHandler):
		return false
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
