package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coresight/coresight/internal/storage"
	"github.com/coresight/coresight/internal/types"
)

func newUser(t *testing.T, s *Store, email string) *types.User {
	t.Helper()
	u := &types.User{Name: "Dev " + email, Email: email, Skills: []string{"Go"}, HourlyRate: 50}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func TestUserRoundTripIsolated(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := newUser(t, s, "a@example.com")
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, int64(1), u.Version)

	// Mutating the caller's copy must not leak into the store
	u.Skills[0] = "Rust"
	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Go"}, got.Skills)

	byEmail, err := s.GetUserByEmail(ctx, "A@EXAMPLE.COM")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, u.ID, byEmail.ID)

	missing, err := s.GetUser(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)

	err = s.CreateUser(ctx, &types.User{Name: "Dup", Email: "a@example.com"})
	assert.Error(t, err)
}

func TestUpdateUserProfileCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := newUser(t, s, "cas@example.com")

	update := storage.ProfileUpdate{
		Skills:          []string{"Go", "SQL"},
		WorkProfileText: "backend",
		SkillEmbedding:  types.Embedding{Values: []float32{1, 0}},
	}
	updated, err := s.UpdateUserProfile(ctx, u.ID, u.Version, update)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, []string{"Go", "SQL"}, updated.Skills)

	// Stale version loses
	_, err = s.UpdateUserProfile(ctx, u.ID, u.Version, update)
	assert.ErrorIs(t, err, storage.ErrConcurrentUpdate)

	_, err = s.UpdateUserProfile(ctx, "missing", 1, update)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTaskMergeAndFilters(t *testing.T) {
	ctx := context.Background()
	s := New()

	task := &types.Task{Title: "Fix login", RequiredSkills: []string{"Go"}}
	require.NoError(t, s.CreateTask(ctx, task))
	assert.Equal(t, types.StatusTodo, task.Status)
	assert.Equal(t, types.PriorityMedium, task.Priority)

	_, err := s.MergeIssueIntoTask(ctx, &types.Issue{}, task.ID, task.Version, storage.TaskMerge{
		Activity: types.ActivityEntry{Kind: types.ActivityMerged, Message: "bad issue"},
	})
	require.Error(t, err)
	untouched, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, untouched.ActivityLog)

	issue := &types.Issue{Title: "Google login fails"}
	emb := types.Embedding{Values: []float32{0.5, 0.5}}
	merged, err := s.MergeIssueIntoTask(ctx, issue, task.ID, task.Version, storage.TaskMerge{
		Activity:       types.ActivityEntry{Kind: types.ActivityMerged, Message: "dup", SourceID: "issue-1"},
		Priority:       types.PriorityHigh,
		RequiredSkills: []string{"Go", "OAuth"},
		SkillEmbedding: &emb,
	})
	require.NoError(t, err)
	assert.Equal(t, types.PriorityHigh, merged.Priority)
	assert.Equal(t, []string{"Go", "OAuth"}, merged.RequiredSkills)
	require.Len(t, merged.ActivityLog, 1)
	assert.False(t, merged.ActivityLog[0].Timestamp.IsZero())

	storedIssue, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	require.NotNil(t, storedIssue)
	assert.Equal(t, types.ResolutionMerged, storedIssue.Resolution)
	assert.Equal(t, task.ID, storedIssue.TaskID)

	_, err = s.MergeIssueIntoTask(ctx, &types.Issue{Title: "Late duplicate"}, task.ID, task.Version, storage.TaskMerge{})
	assert.ErrorIs(t, err, storage.ErrConcurrentUpdate)

	done := &types.Task{Title: "Old", Status: types.StatusDone}
	require.NoError(t, s.CreateTask(ctx, done))

	open, err := s.ListTasks(ctx, storage.TaskFilter{OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, task.ID, open[0].ID)

	n, err := s.CountTasks(ctx, storage.TaskFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestAssignTaskOpensSession(t *testing.T) {
	ctx := context.Background()
	s := New()
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return start })

	u := newUser(t, s, "assign@example.com")
	task := &types.Task{Title: "Build API"}
	require.NoError(t, s.CreateTask(ctx, task))
	require.NoError(t, s.MarkRequiresJobPosting(ctx, task.ID, "no match"))

	got, err := s.AssignTask(ctx, task.ID, u.ID, &types.WorkSession{})
	require.NoError(t, err)
	assert.Equal(t, []string{u.ID}, got.AssigneeIDs)
	assert.Equal(t, types.StatusInProgress, got.Status)
	assert.False(t, got.RequiresJobPosting)

	// Assigning twice keeps a single assignee entry
	got, err = s.AssignTask(ctx, task.ID, u.ID, nil)
	require.NoError(t, err)
	assert.Len(t, got.AssigneeIDs, 1)

	sessions, err := s.ListWorkSessions(ctx, storage.SessionFilter{UserID: u.ID})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, start, sessions[0].StartTime)
	assert.False(t, sessions[0].IsClosed())

	require.NoError(t, s.CloseWorkSession(ctx, sessions[0].ID, start.Add(2*time.Hour)))
	assert.Error(t, s.CloseWorkSession(ctx, sessions[0].ID, start.Add(3*time.Hour)))

	counts, err := s.OpenAssignmentCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[u.ID])

	require.NoError(t, s.UpdateTaskStatus(ctx, task.ID, types.StatusDone))
	_, err = s.AssignTask(ctx, task.ID, u.ID, nil)
	assert.ErrorIs(t, err, storage.ErrTaskClosed)

	_, err = s.AssignTask(ctx, task.ID+"x", u.ID, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateTaskFromIssue(t *testing.T) {
	ctx := context.Background()
	s := New()

	issue := &types.Issue{Title: "Crash on save", Priority: types.PriorityHigh}
	require.NoError(t, s.SaveIssue(ctx, issue))
	assert.Equal(t, types.ResolutionPending, issue.Resolution)

	task := &types.Task{Title: issue.Title, Priority: issue.Priority}
	require.NoError(t, s.CreateTaskFromIssue(ctx, issue, task))

	stored, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, stored.TaskID)
	assert.Equal(t, types.ResolutionCreated, stored.Resolution)

	created, err := s.ListIssues(ctx, storage.IssueFilter{Resolution: types.ResolutionCreated})
	require.NoError(t, err)
	assert.Len(t, created, 1)
}

func TestListCommitsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, hash := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveCommit(ctx, &types.Commit{
			Hash:      hash,
			UserID:    "u1",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	commits, err := s.ListCommits(ctx, storage.CommitFilter{UserID: "u1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "c", commits[0].Hash)
	assert.Equal(t, "b", commits[1].Hash)

	since := base.Add(90 * time.Minute)
	commits, err = s.ListCommits(ctx, storage.CommitFilter{Since: &since})
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "c", commits[0].Hash)
}

func TestJobRequisitionsAndEmbeddingCache(t *testing.T) {
	ctx := context.Background()
	s := New()

	req := &types.JobRequisition{TaskID: "t1", SuggestedTitle: "Rust Developer"}
	require.NoError(t, s.CreateJobRequisition(ctx, req))
	assert.Equal(t, types.RequisitionPending, req.Status)
	require.NoError(t, s.UpdateJobRequisitionStatus(ctx, req.ID, types.RequisitionPosted))

	posted, err := s.ListJobRequisitions(ctx, storage.RequisitionFilter{Status: types.RequisitionPosted})
	require.NoError(t, err)
	assert.Len(t, posted, 1)
	assert.ErrorIs(t, s.UpdateJobRequisitionStatus(ctx, "nope", types.RequisitionClosed), storage.ErrNotFound)

	vec, err := s.GetCachedEmbedding(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, vec)

	require.NoError(t, s.PutCachedEmbedding(ctx, "k", "model", []float32{1, 2}))
	vec, err = s.GetCachedEmbedding(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
}
