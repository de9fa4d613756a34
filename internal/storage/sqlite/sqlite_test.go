package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coresight/coresight/internal/storage"
	"github.com/coresight/coresight/internal/storage/migrations"
	"github.com/coresight/coresight/internal/types"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewAppliesSchema(t *testing.T) {
	store := setupTestStore(t)
	version, err := migrations.CurrentVersion(context.Background(), store.DB())
	require.NoError(t, err)
	assert.Equal(t, Schema().Latest(), version)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "reopen.db")

	store, err := New(ctx, path)
	require.NoError(t, err)
	u := &types.User{Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, store.CreateUser(ctx, u))
	require.NoError(t, store.Close())

	store, err = New(ctx, path)
	require.NoError(t, err)
	defer store.Close()
	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ada", got.Name)
}

func TestUserEmbeddingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	u := &types.User{
		Name:             "Grace",
		Email:            "grace@example.com",
		Skills:           []string{"Go", "SQL"},
		HourlyRate:       80,
		ProfileEmbedding: types.Embedding{Values: []float32{0.1, 0.2, 0.3}},
		SkillEmbedding:   types.Embedding{Values: []float32{1, 0, 0}, Fallback: true},
	}
	require.NoError(t, store.CreateUser(ctx, u))

	got, err := store.GetUserByEmail(ctx, "GRACE@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.Skills, got.Skills)
	assert.Equal(t, u.ProfileEmbedding, got.ProfileEmbedding)
	assert.True(t, got.SkillEmbedding.Fallback)
	assert.Equal(t, int64(1), got.Version)

	missing, err := store.GetUser(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.Error(t, store.CreateUser(ctx, &types.User{Name: "Dup", Email: "grace@EXAMPLE.com"}))
}

func TestUpdateUserProfileCompareAndSet(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	u := &types.User{Name: "Linus", Email: "linus@example.com"}
	require.NoError(t, store.CreateUser(ctx, u))

	update := storage.ProfileUpdate{Skills: []string{"C"}, WorkProfileText: "kernel"}
	updated, err := store.UpdateUserProfile(ctx, u.ID, 1, update)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, "kernel", updated.WorkProfileText)
	assert.True(t, updated.ProfileEmbedding.IsZero())

	_, err = store.UpdateUserProfile(ctx, u.ID, 1, update)
	assert.ErrorIs(t, err, storage.ErrConcurrentUpdate)

	_, err = store.UpdateUserProfile(ctx, "ghost", 1, update)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// A commit that cannot be saved rolls the profile write back
	bad := update
	bad.WorkProfileText = "drivers"
	bad.Commit = &types.Commit{LinesAdded: -1, Hash: "bad"}
	_, err = store.UpdateUserProfile(ctx, u.ID, 2, bad)
	require.Error(t, err)
	same, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), same.Version)
	assert.Equal(t, "kernel", same.WorkProfileText)

	withCommit := update
	withCommit.Commit = &types.Commit{Hash: "c0ffee", AuthorEmail: u.Email, TriggeredProfileUpdate: true}
	_, err = store.UpdateUserProfile(ctx, u.ID, 2, withCommit)
	require.NoError(t, err)
	recorded, err := store.GetCommit(ctx, withCommit.Commit.ID)
	require.NoError(t, err)
	require.NotNil(t, recorded)
	assert.True(t, recorded.TriggeredProfileUpdate)
}

func TestTaskLifecycle(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return start })

	dev := &types.User{Name: "Dev", Email: "dev@example.com"}
	require.NoError(t, store.CreateUser(ctx, dev))

	task := &types.Task{
		Title:                "Add OAuth",
		Description:          "Google login",
		RequiredSkills:       []string{"Go", "OAuth"},
		DescriptionEmbedding: types.Embedding{Values: []float32{0.6, 0.8}},
	}
	require.NoError(t, store.CreateTask(ctx, task))

	// An issue that cannot be saved rolls the task write back
	_, err := store.MergeIssueIntoTask(ctx, &types.Issue{}, task.ID, 1, storage.TaskMerge{
		Activity: types.ActivityEntry{Kind: types.ActivityMerged, Message: "bad issue"},
		Priority: types.PriorityCritical,
	})
	require.Error(t, err)
	untouched, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), untouched.Version)
	assert.Empty(t, untouched.ActivityLog)

	issue := &types.Issue{ID: "i1", Title: "Google login fails"}
	require.NoError(t, store.SaveIssue(ctx, issue))

	emb := types.Embedding{Values: []float32{0, 1}}
	merged, err := store.MergeIssueIntoTask(ctx, issue, task.ID, 1, storage.TaskMerge{
		Activity:       types.ActivityEntry{Kind: types.ActivityMerged, Message: "merged issue", SourceID: "i1"},
		Priority:       types.PriorityHigh,
		SkillEmbedding: &emb,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), merged.Version)
	assert.Equal(t, types.PriorityHigh, merged.Priority)
	assert.Equal(t, []string{"Go", "OAuth"}, merged.RequiredSkills)
	assert.Equal(t, types.ResolutionMerged, issue.Resolution)

	storedIssue, err := store.GetIssue(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, types.ResolutionMerged, storedIssue.Resolution)
	assert.Equal(t, task.ID, storedIssue.ParentTaskID)
	assert.True(t, storedIssue.IsDuplicate)

	_, err = store.MergeIssueIntoTask(ctx, &types.Issue{Title: "Late duplicate"}, task.ID, 1, storage.TaskMerge{})
	assert.ErrorIs(t, err, storage.ErrConcurrentUpdate)

	assigned, err := store.AssignTask(ctx, task.ID, dev.ID, &types.WorkSession{})
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, assigned.Status)
	assert.Equal(t, []string{dev.ID}, assigned.AssigneeIDs)

	stored, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, stored.ActivityLog, 2)
	assert.Equal(t, types.ActivityMerged, stored.ActivityLog[0].Kind)
	assert.Equal(t, types.ActivityAssigned, stored.ActivityLog[1].Kind)
	assert.Equal(t, emb, stored.SkillEmbedding)

	mine, err := store.ListTasks(ctx, storage.TaskFilter{AssigneeID: dev.ID})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	counts, err := store.OpenAssignmentCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{dev.ID: 1}, counts)

	sessions, err := store.ListWorkSessions(ctx, storage.SessionFilter{TaskID: task.ID})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].StartTime.Equal(start))
	require.NoError(t, store.CloseWorkSession(ctx, sessions[0].ID, start.Add(90*time.Minute)))

	closed, err := store.ListWorkSessions(ctx, storage.SessionFilter{ClosedOnly: true})
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.InDelta(t, 90.0, closed[0].DurationMinutes(), 0.001)

	require.NoError(t, store.UpdateTaskStatus(ctx, task.ID, types.StatusDone))
	_, err = store.AssignTask(ctx, task.ID, dev.ID, nil)
	assert.ErrorIs(t, err, storage.ErrTaskClosed)

	counts, err = store.OpenAssignmentCounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestRequiresJobPostingFilter(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	a := &types.Task{Title: "Needs Rust"}
	b := &types.Task{Title: "Needs Go"}
	require.NoError(t, store.CreateTask(ctx, a))
	require.NoError(t, store.CreateTask(ctx, b))
	require.NoError(t, store.MarkRequiresJobPosting(ctx, a.ID, "nobody knows Rust"))

	yes := true
	flagged, err := store.ListTasks(ctx, storage.TaskFilter{RequiresJobPosting: &yes})
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, a.ID, flagged[0].ID)

	n, err := store.CountTasks(ctx, storage.TaskFilter{OpenOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.ErrorIs(t, store.MarkRequiresJobPosting(ctx, "ghost", "x"), storage.ErrNotFound)
}

func TestCreateTaskFromIssue(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	issue := &types.Issue{Title: "Export CSV", Description: "Users want CSV export", Priority: types.PriorityLow}
	require.NoError(t, store.SaveIssue(ctx, issue))
	created := issue.CreatedAt

	task := &types.Task{Title: issue.Title, Description: issue.Description, Priority: issue.Priority}
	require.NoError(t, store.CreateTaskFromIssue(ctx, issue, task))

	got, err := store.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ResolutionCreated, got.Resolution)
	assert.Equal(t, task.ID, got.TaskID)
	assert.True(t, got.CreatedAt.Equal(created))

	pending, err := store.ListIssues(ctx, storage.IssueFilter{Resolution: types.ResolutionPending})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCommitsOrderingAndFilters(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	base := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

	for i, hash := range []string{"aaa", "bbb", "ccc"} {
		c := &types.Commit{
			Hash:            hash,
			UserID:          "u1",
			LinesAdded:      10 * (i + 1),
			ExtractedSkills: []string{"Go"},
			Impact:          types.ImpactModerate,
			Timestamp:       base.Add(time.Duration(i) * 24 * time.Hour),
		}
		if i == 2 {
			c.LinkedTaskID = "t1"
		}
		require.NoError(t, store.SaveCommit(ctx, c))
	}

	all, err := store.ListCommits(ctx, storage.CommitFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "ccc", all[0].Hash)
	assert.Equal(t, []string{"Go"}, all[0].ExtractedSkills)

	until := base.Add(24 * time.Hour)
	early, err := store.ListCommits(ctx, storage.CommitFilter{Until: &until})
	require.NoError(t, err)
	require.Len(t, early, 1)
	assert.Equal(t, "aaa", early[0].Hash)

	linked, err := store.ListCommits(ctx, storage.CommitFilter{TaskID: "t1"})
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.False(t, linked[0].IsUntracked())
}

func TestJobRequisitions(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	req := &types.JobRequisition{
		TaskID:         "t1",
		SuggestedTitle: "Developer - Rust",
		RequiredSkills: []string{"Rust"},
		MissingSkills:  []string{"Rust"},
	}
	require.NoError(t, store.CreateJobRequisition(ctx, req))
	require.NoError(t, store.UpdateJobRequisitionStatus(ctx, req.ID, types.RequisitionReady))

	got, err := store.ListJobRequisitions(ctx, storage.RequisitionFilter{TaskID: "t1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.RequisitionReady, got[0].Status)
	assert.Equal(t, []string{"Rust"}, got[0].MissingSkills)

	assert.ErrorIs(t, store.UpdateJobRequisitionStatus(ctx, "ghost", types.RequisitionClosed), storage.ErrNotFound)
}

func TestEmbeddingCache(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	miss, err := store.GetCachedEmbedding(ctx, "key")
	require.NoError(t, err)
	assert.Nil(t, miss)

	vec := []float32{0.25, -1.5, 3}
	require.NoError(t, store.PutCachedEmbedding(ctx, "key", "gemini-embedding-001", vec))
	got, err := store.GetCachedEmbedding(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

// Concurrent merges against the same task must serialize: every merge
// either lands or reports a stale version, and the version advances once
// per landed merge.
func TestConcurrentMerges(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	task := &types.Task{Title: "Shared parent"}
	require.NoError(t, store.CreateTask(ctx, task))

	const workers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		landed int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.MergeIssueIntoTask(ctx, &types.Issue{Title: "dup"}, task.ID, 1, storage.TaskMerge{
				Activity: types.ActivityEntry{Kind: types.ActivityMerged, Message: "dup"},
			})
			if err == nil {
				mu.Lock()
				landed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, landed)
	got, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Len(t, got.ActivityLog, 1)
}
