package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/coresight/coresight/internal/dedup"
	"github.com/coresight/coresight/internal/matching"
	"github.com/coresight/coresight/internal/profile"
	"github.com/coresight/coresight/internal/similarity"
	"github.com/coresight/coresight/internal/storage"
	"github.com/coresight/coresight/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedResolver fails with the queued errors, then succeeds.
type scriptedResolver struct {
	mu    sync.Mutex
	errs  []error
	calls int
	block chan struct{}
}

func (s *scriptedResolver) Resolve(ctx context.Context, issue *types.Issue) (*dedup.Outcome, error) {
	s.mu.Lock()
	s.calls++
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	block := s.block
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &dedup.Outcome{Issue: issue, Resolution: types.ResolutionCreated}, nil
}

type commitFunc func(ctx context.Context, c *types.Commit) (*profile.Result, error)

func (f commitFunc) ProcessCommit(ctx context.Context, c *types.Commit) (*profile.Result, error) {
	return f(ctx, c)
}

type assignFunc func(ctx context.Context, id string) (*matching.Result, error)

func (f assignFunc) AssignByID(ctx context.Context, id string) (*matching.Result, error) {
	return f(ctx, id)
}

func newDispatcher(t *testing.T, r Resolver, c CommitProcessor, a TaskAssigner, cfg Config) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(r, c, a, cfg, nil)
	require.NoError(t, err)
	d.sleepFunc = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return d
}

func issueEvent(title string) Event {
	return Event{Kind: KindIssue, Issue: &types.Issue{Title: title}}
}

func TestRoutesEventsByKind(t *testing.T) {
	commits := commitFunc(func(_ context.Context, c *types.Commit) (*profile.Result, error) {
		return &profile.Result{Commit: c}, nil
	})
	assign := assignFunc(func(_ context.Context, id string) (*matching.Result, error) {
		return &matching.Result{Task: &types.Task{ID: id}}, nil
	})
	d := newDispatcher(t, &scriptedResolver{}, commits, assign, DefaultConfig())

	hIssue := d.Submit(context.Background(), issueEvent("login broken"))
	hCommit := d.Submit(context.Background(), Event{Kind: KindCommit, Commit: &types.Commit{Hash: "abc"}})
	hTask := d.Submit(context.Background(), Event{Kind: KindTask, TaskID: "t1"})
	d.Wait()

	r, err := hIssue.Wait()
	require.NoError(t, err)
	assert.Equal(t, types.ResolutionCreated, r.Issue.Resolution)

	r, err = hCommit.Wait()
	require.NoError(t, err)
	assert.Equal(t, "abc", r.Commit.Commit.Hash)

	r, err = hTask.Wait()
	require.NoError(t, err)
	assert.Equal(t, "t1", r.Assignment.Task.ID)
}

func TestRetriesTransientFailures(t *testing.T) {
	r := &scriptedResolver{errs: []error{errors.New("database is locked"), errors.New("database is locked")}}
	d := newDispatcher(t, r, nil, nil, DefaultConfig())

	h := d.Submit(context.Background(), issueEvent("login broken"))
	_, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, 3, h.Attempts())
	assert.Equal(t, 3, r.calls)
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	boom := errors.New("boom")
	r := &scriptedResolver{errs: []error{boom, boom, boom, boom}}
	d := newDispatcher(t, r, nil, nil, DefaultConfig())

	_, err := d.Submit(context.Background(), issueEvent("x")).Wait()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, r.calls)
}

func TestPermanentErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"dimension mismatch", fmt.Errorf("duplicate search: %w", &similarity.DimensionMismatchError{ID: "t1", Want: 768, Got: 384})},
		{"closed task", fmt.Errorf("task t1: %w", storage.ErrTaskClosed)},
		{"missing task", fmt.Errorf("task t1: %w", storage.ErrNotFound)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &scriptedResolver{errs: []error{tt.err}}
			d := newDispatcher(t, r, nil, nil, DefaultConfig())

			h := d.Submit(context.Background(), issueEvent("x"))
			_, err := h.Wait()
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1, h.Attempts())
			assert.False(t, Retryable(err))
		})
	}
}

func TestCancelStopsEvent(t *testing.T) {
	r := &scriptedResolver{block: make(chan struct{})}
	d := newDispatcher(t, r, nil, nil, DefaultConfig())

	h := d.Submit(context.Background(), issueEvent("x"))
	h.Cancel()
	_, err := h.Wait()
	assert.ErrorIs(t, err, context.Canceled)
	d.Wait()
}

func TestConcurrencyIsBounded(t *testing.T) {
	var inFlight, peak atomic.Int32
	release := make(chan struct{})
	assign := assignFunc(func(ctx context.Context, id string) (*matching.Result, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		return &matching.Result{}, nil
	})
	cfg := DefaultConfig()
	cfg.MaxConcurrent = 2
	d := newDispatcher(t, nil, nil, assign, cfg)

	var handles []*Handle
	for i := range 6 {
		handles = append(handles, d.Submit(context.Background(), Event{Kind: KindTask, TaskID: fmt.Sprintf("t%d", i)}))
	}
	require.Eventually(t, func() bool { return inFlight.Load() == 2 }, time.Second, time.Millisecond)
	close(release)
	d.Wait()

	for _, h := range handles {
		_, err := h.Wait()
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(2), peak.Load())
}

func TestInvalidEvents(t *testing.T) {
	d := newDispatcher(t, nil, nil, nil, DefaultConfig())

	_, err := d.Submit(context.Background(), Event{Kind: "deploy"}).Wait()
	assert.Error(t, err)

	_, err = d.Submit(context.Background(), Event{Kind: KindIssue}).Wait()
	assert.Error(t, err)

	_, err = d.Submit(context.Background(), Event{Kind: KindTask, TaskID: "t1"}).Wait()
	assert.ErrorIs(t, err, ErrNoHandler)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"zero concurrency", Config{MaxConcurrent: 0, MaxAttempts: 3}, true},
		{"zero attempts", Config{MaxConcurrent: 1, MaxAttempts: 0}, true},
		{"negative backoff", Config{MaxConcurrent: 1, MaxAttempts: 1, RetryBackoff: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
