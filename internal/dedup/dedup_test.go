package dedup

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coresight/coresight/internal/ai"
	"github.com/coresight/coresight/internal/ai/aitest"
	"github.com/coresight/coresight/internal/jobs"
	"github.com/coresight/coresight/internal/matching"
	"github.com/coresight/coresight/internal/storage"
	"github.com/coresight/coresight/internal/storage/memory"
	"github.com/coresight/coresight/internal/types"
)

func unit(c float64) []float32 {
	return []float32{float32(c), float32(math.Sqrt(1 - c*c))}
}

type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) types.Embedding {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.vectors[text]; ok {
		return types.Embedding{Values: v}
	}
	return types.Embedding{Values: make([]float32, 2), Fallback: true}
}

func (f *fakeEmbedder) EmbedSkills(ctx context.Context, skills []string) types.Embedding {
	return f.Embed(ctx, types.SkillText(skills))
}

type fakeAssigner struct {
	mu    sync.Mutex
	tasks []string
}

func (f *fakeAssigner) Assign(_ context.Context, task *types.Task) (*matching.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task.ID)
	return &matching.Result{Task: task, Reason: matching.ErrNoCandidates}, nil
}

// conflictStore fails the first n merges as if another writer won.
type conflictStore struct {
	*memory.Store
	mu        sync.Mutex
	conflicts int
	merges    int
}

func (c *conflictStore) MergeIssueIntoTask(ctx context.Context, issue *types.Issue, id string, expected int64, m storage.TaskMerge) (*types.Task, error) {
	c.mu.Lock()
	c.merges++
	fail := c.conflicts > 0
	if fail {
		c.conflicts--
	}
	c.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("task %s: %w", id, storage.ErrConcurrentUpdate)
	}
	return c.Store.MergeIssueIntoTask(ctx, issue, id, expected, m)
}

// flakyMergeStore fails the first merge write outright, as a lost
// database connection would.
type flakyMergeStore struct {
	*memory.Store
	failed bool
}

func (f *flakyMergeStore) MergeIssueIntoTask(ctx context.Context, issue *types.Issue, id string, expected int64, m storage.TaskMerge) (*types.Task, error) {
	if !f.failed {
		f.failed = true
		return nil, errors.New("database is locked")
	}
	return f.Store.MergeIssueIntoTask(ctx, issue, id, expected, m)
}

const issueText = "Login broken. Users cannot sign in with Google"

type fixture struct {
	store     storage.Storage
	completer *aitest.Completer
	embedder  *fakeEmbedder
	assigner  *fakeAssigner
	resolver  *Resolver
}

func newFixture(t *testing.T, store storage.Storage) *fixture {
	t.Helper()
	f := &fixture{
		store:     store,
		completer: aitest.New(),
		embedder:  &fakeEmbedder{vectors: map[string][]float32{issueText: {1, 0}}},
		assigner:  &fakeAssigner{},
	}
	r, err := NewResolver(store, f.embedder, ai.NewGateway(f.completer, time.Second, nil), f.assigner, DefaultConfig(), nil)
	require.NoError(t, err)
	f.resolver = r
	return f
}

func (f *fixture) addTask(t *testing.T, title string, vec []float32) *types.Task {
	t.Helper()
	task := &types.Task{
		Title:                title,
		RequiredSkills:       []string{"Go"},
		DescriptionEmbedding: types.Embedding{Values: vec},
	}
	require.NoError(t, f.store.CreateTask(context.Background(), task))
	return task
}

func newIssue() *types.Issue {
	return &types.Issue{Title: "Login broken", Description: "Users cannot sign in with Google", Priority: types.PriorityHigh}
}

func TestBelowThresholdNeverReasons(t *testing.T) {
	f := newFixture(t, memory.New())
	f.addTask(t, "Unrelated", unit(0.65))

	out, err := f.resolver.Resolve(context.Background(), newIssue())
	require.NoError(t, err)
	assert.Equal(t, types.ResolutionCreated, out.Resolution)
	assert.Empty(t, out.Candidates)
	assert.Nil(t, out.Decision)
	assert.Equal(t, 0, f.completer.Calls(ai.OpDuplicateCheck))
	assert.Equal(t, []Stage{StageReceived, StageEmbedded, StageSearched, StageCreated}, out.Trace)

	// Skill extraction fell back to keywords; the task went to matching
	assert.Equal(t, []string{ai.GeneralSkill}, out.Task.RequiredSkills)
	assert.Equal(t, []string{out.Task.ID}, f.assigner.tasks)

	stored, err := f.store.GetIssue(context.Background(), out.Issue.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ResolutionCreated, stored.Resolution)
	assert.Equal(t, out.Task.ID, stored.TaskID)
}

type recordingNotifier struct {
	mu       sync.Mutex
	requests []jobs.JobPostingRequest
}

func (r *recordingNotifier) NotifyJobPosting(_ context.Context, req jobs.JobPostingRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
}

func TestCreatedTaskWithNoCandidatesRequestsJobPosting(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	completer := aitest.New()
	embedder := &fakeEmbedder{vectors: map[string][]float32{issueText: {1, 0}}}
	reasoner := ai.NewGateway(completer, time.Second, nil)
	notifier := &recordingNotifier{}

	engine, err := matching.NewEngine(store, embedder, reasoner, notifier, matching.DefaultConfig(), nil)
	require.NoError(t, err)
	resolver, err := NewResolver(store, embedder, reasoner, engine, DefaultConfig(), nil)
	require.NoError(t, err)

	issue := newIssue()
	out, err := resolver.Resolve(ctx, issue)
	require.NoError(t, err)
	require.Equal(t, types.ResolutionCreated, out.Resolution)
	require.NotNil(t, out.Assignment)
	assert.True(t, out.Assignment.RequiresJobPosting)
	assert.False(t, out.Assignment.Assigned)
	assert.ErrorIs(t, out.Assignment.Reason, matching.ErrNoCandidates)
	assert.Equal(t, 0, completer.Calls(ai.OpAssignment))

	stored, err := store.GetTask(ctx, out.Task.ID)
	require.NoError(t, err)
	assert.True(t, stored.RequiresJobPosting)
	assert.Empty(t, stored.AssigneeIDs)

	require.Len(t, notifier.requests, 1)
	assert.Equal(t, out.Task.ID, notifier.requests[0].TaskID)
	assert.Equal(t, out.Task.RequiredSkills, notifier.requests[0].RequiredSkills)
	assert.Zero(t, notifier.requests[0].CandidatesSeen)

	// A re-run of the same event does not post twice
	again, err := resolver.Resolve(ctx, issue)
	require.NoError(t, err)
	assert.True(t, again.AlreadyResolved)
	assert.Len(t, notifier.requests, 1)
}

func TestMergeIntoPrimaryCandidate(t *testing.T) {
	f := newFixture(t, memory.New())
	parent := f.addTask(t, "Fix Google login", unit(0.9))
	f.embedder.vectors["Go, OAuth"] = []float32{0, 1}
	f.completer.On(ai.OpDuplicateCheck, fmt.Sprintf(`{
		"is_duplicate": true,
		"confidence": 0.85,
		"parent_task_id": %q,
		"priority_change": "increased",
		"new_required_skills": ["OAuth", "go"],
		"reasoning": "same login failure"
	}`, parent.ID))

	out, err := f.resolver.Resolve(context.Background(), newIssue())
	require.NoError(t, err)
	assert.Equal(t, types.ResolutionMerged, out.Resolution)
	assert.Equal(t, []Stage{StageReceived, StageEmbedded, StageSearched, StageReasoned, StageMerged}, out.Trace)
	assert.False(t, out.DecisionFallback)

	got, err := f.store.GetTask(context.Background(), parent.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PriorityHigh, got.Priority)
	assert.Equal(t, []string{"Go", "OAuth"}, got.RequiredSkills)
	assert.Equal(t, []float32{0, 1}, got.SkillEmbedding.Values)
	require.Len(t, got.ActivityLog, 1)
	assert.Equal(t, types.ActivityMerged, got.ActivityLog[0].Kind)
	assert.Equal(t, out.Issue.ID, got.ActivityLog[0].SourceID)

	assert.True(t, out.Issue.IsDuplicate)
	assert.Equal(t, parent.ID, out.Issue.ParentTaskID)
	assert.InDelta(t, 0.85, out.Issue.Confidence, 1e-9)
	assert.Empty(t, f.assigner.tasks)

	n, err := f.store.CountTasks(context.Background(), storage.TaskFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMergeWithoutNewSkillsKeepsSkillEmbedding(t *testing.T) {
	f := newFixture(t, memory.New())
	parent := f.addTask(t, "Fix Google login", unit(0.9))
	f.completer.On(ai.OpDuplicateCheck, fmt.Sprintf(
		`{"is_duplicate": true, "confidence": 0.7, "parent_task_id": %q, "priority_change": null, "new_required_skills": []}`, parent.ID))

	out, err := f.resolver.Resolve(context.Background(), newIssue())
	require.NoError(t, err)
	require.Equal(t, types.ResolutionMerged, out.Resolution)

	got, err := f.store.GetTask(context.Background(), parent.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PriorityMedium, got.Priority)
	assert.Equal(t, []string{"Go"}, got.RequiredSkills)
	assert.True(t, got.SkillEmbedding.IsZero())
}

func TestLowConfidenceCreates(t *testing.T) {
	f := newFixture(t, memory.New())
	parent := f.addTask(t, "Fix Google login", unit(0.9))
	f.completer.
		On(ai.OpDuplicateCheck, fmt.Sprintf(`{"is_duplicate": true, "confidence": 0.6, "parent_task_id": %q}`, parent.ID)).
		On(ai.OpSkillExtraction, `{"required_skills": ["OAuth", "Go"]}`)

	out, err := f.resolver.Resolve(context.Background(), newIssue())
	require.NoError(t, err)
	assert.Equal(t, types.ResolutionCreated, out.Resolution)
	assert.NotEqual(t, parent.ID, out.Task.ID)
	assert.Equal(t, []string{"OAuth", "Go"}, out.Task.RequiredSkills)
	assert.Equal(t, types.PriorityHigh, out.Task.Priority)
	assert.Contains(t, out.Trace, StageReasoned)
}

func TestReasoningFailureCreates(t *testing.T) {
	f := newFixture(t, memory.New())
	f.addTask(t, "Fix Google login", unit(0.9))

	out, err := f.resolver.Resolve(context.Background(), newIssue())
	require.NoError(t, err)
	assert.Equal(t, types.ResolutionCreated, out.Resolution)
	assert.True(t, out.DecisionFallback)
	assert.False(t, out.Decision.IsDuplicate)
}

func TestFallbackEmbeddingSkipsSearch(t *testing.T) {
	f := newFixture(t, memory.New())
	f.addTask(t, "Fix Google login", unit(0.9))

	issue := &types.Issue{Title: "Something unseen", Description: "No fixed vector for this"}
	out, err := f.resolver.Resolve(context.Background(), issue)
	require.NoError(t, err)
	assert.Equal(t, types.ResolutionCreated, out.Resolution)
	assert.Equal(t, []Stage{StageReceived, StageEmbedded, StageCreated}, out.Trace)
	assert.Equal(t, 0, f.completer.Calls(ai.OpDuplicateCheck))
}

func TestSecondaryCandidatesAreContextOnly(t *testing.T) {
	f := newFixture(t, memory.New())
	second := f.addTask(t, "Auth refactor", unit(0.8))
	primary := f.addTask(t, "Fix Google login", unit(0.95))
	f.completer.On(ai.OpDuplicateCheck, fmt.Sprintf(
		`{"is_duplicate": true, "confidence": 0.9, "parent_task_id": %q}`, second.ID))

	out, err := f.resolver.Resolve(context.Background(), newIssue())
	require.NoError(t, err)
	require.Len(t, out.Candidates, 2)
	assert.Equal(t, primary.ID, out.Candidates[0].ID)

	prompt := f.completer.Prompts(ai.OpDuplicateCheck)[0]
	primaryAt := strings.Index(prompt, "\nPRIMARY TASK\n")
	otherAt := strings.Index(prompt, "\nOTHER SIMILAR TASKS")
	require.True(t, primaryAt >= 0 && otherAt > primaryAt)
	assert.Contains(t, prompt[primaryAt:otherAt], primary.ID)
	assert.Contains(t, prompt[otherAt:], second.ID)

	// A verdict naming a secondary candidate is not auto-selected
	assert.Equal(t, types.ResolutionCreated, out.Resolution)
	got, err := f.store.GetTask(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ActivityLog)
}

func TestMergeRetriesOnConflict(t *testing.T) {
	store := &conflictStore{Store: memory.New(), conflicts: 1}
	f := newFixture(t, store)
	parent := f.addTask(t, "Fix Google login", unit(0.9))
	f.completer.On(ai.OpDuplicateCheck, fmt.Sprintf(
		`{"is_duplicate": true, "confidence": 0.9, "parent_task_id": %q}`, parent.ID))

	out, err := f.resolver.Resolve(context.Background(), newIssue())
	require.NoError(t, err)
	assert.Equal(t, types.ResolutionMerged, out.Resolution)
	assert.Equal(t, 2, store.merges)
}

func TestMergeGivesUpAfterRepeatedConflicts(t *testing.T) {
	store := &conflictStore{Store: memory.New(), conflicts: 5}
	f := newFixture(t, store)
	parent := f.addTask(t, "Fix Google login", unit(0.9))
	f.completer.On(ai.OpDuplicateCheck, fmt.Sprintf(
		`{"is_duplicate": true, "confidence": 0.9, "parent_task_id": %q}`, parent.ID))

	_, err := f.resolver.Resolve(context.Background(), newIssue())
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrConcurrentUpdate)
	assert.Equal(t, DefaultConfig().MaxMergeAttempts, store.merges)
}

func TestResolveIsIdempotent(t *testing.T) {
	f := newFixture(t, memory.New())
	issue := newIssue()

	first, err := f.resolver.Resolve(context.Background(), issue)
	require.NoError(t, err)
	require.Equal(t, types.ResolutionCreated, first.Resolution)

	second, err := f.resolver.Resolve(context.Background(), issue)
	require.NoError(t, err)
	assert.True(t, second.AlreadyResolved)
	assert.Equal(t, first.Task.ID, second.Task.ID)

	n, err := f.store.CountTasks(context.Background(), storage.TaskFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMergeRerunAfterFailedWriteAppliesOnce(t *testing.T) {
	ctx := context.Background()
	store := &flakyMergeStore{Store: memory.New()}
	f := newFixture(t, store)
	parent := f.addTask(t, "Fix Google login", unit(0.9))
	verdict := fmt.Sprintf(`{"is_duplicate": true, "confidence": 0.9, "parent_task_id": %q, "priority_change": "increased"}`, parent.ID)
	f.completer.On(ai.OpDuplicateCheck, verdict, verdict)

	issue := newIssue()
	_, err := f.resolver.Resolve(ctx, issue)
	require.Error(t, err)

	// Nothing from the failed merge is visible
	got, err := f.store.GetTask(ctx, parent.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ActivityLog)
	assert.Equal(t, types.PriorityMedium, got.Priority)
	pending, err := f.store.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ResolutionPending, pending.Resolution)

	// The dispatcher re-runs the event from the top
	out, err := f.resolver.Resolve(ctx, issue)
	require.NoError(t, err)
	assert.Equal(t, types.ResolutionMerged, out.Resolution)

	got, err = f.store.GetTask(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, got.ActivityLog, 1)
	assert.Equal(t, types.PriorityHigh, got.Priority)

	stored, err := f.store.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ResolutionMerged, stored.Resolution)
	assert.Equal(t, parent.ID, stored.ParentTaskID)
	assert.True(t, stored.IsDuplicate)

	// A third run only reports the recorded merge
	again, err := f.resolver.Resolve(ctx, issue)
	require.NoError(t, err)
	assert.True(t, again.AlreadyResolved)
	got, err = f.store.GetTask(ctx, parent.ID)
	require.NoError(t, err)
	assert.Len(t, got.ActivityLog, 1)
}

func TestDimensionMismatchIsFatal(t *testing.T) {
	f := newFixture(t, memory.New())
	f.addTask(t, "Three dims", []float32{1, 0, 0})

	_, err := f.resolver.Resolve(context.Background(), newIssue())
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"min score above one", Config{SearchMinScore: 1.1, TopK: 5, MergeConfidence: 0.7, MaxMergeAttempts: 2}, true},
		{"negative confidence", Config{SearchMinScore: 0.7, TopK: 5, MergeConfidence: -0.1, MaxMergeAttempts: 2}, true},
		{"zero top k", Config{SearchMinScore: 0.7, TopK: 0, MergeConfidence: 0.7, MaxMergeAttempts: 2}, true},
		{"zero attempts", Config{SearchMinScore: 0.7, TopK: 5, MergeConfidence: 0.7, MaxMergeAttempts: 0}, true},
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
