// Package memory is an in-process storage backend for tests and dry runs.
// Every value crossing the boundary is deep-copied so callers can never
// mutate stored state without going through a write method.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coresight/coresight/internal/storage"
	"github.com/coresight/coresight/internal/types"
)

var _ storage.Storage = (*Store)(nil)

// Store implements storage.Storage in memory
type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	users    map[string]*types.User
	projects map[string]*types.Project
	tasks    map[string]*types.Task
	issues   map[string]*types.Issue
	commits  map[string]*types.Commit
	sessions map[string]*types.WorkSession
	jobs     map[string]*types.JobRequisition
	vectors  map[string][]float32

	// insertion order keeps listings deterministic
	userOrder, projectOrder, taskOrder, issueOrder []string
	commitOrder, sessionOrder, jobOrder            []string
}

// New creates an empty store
func New() *Store {
	return &Store{
		now:      func() time.Time { return time.Now().UTC() },
		users:    make(map[string]*types.User),
		projects: make(map[string]*types.Project),
		tasks:    make(map[string]*types.Task),
		issues:   make(map[string]*types.Issue),
		commits:  make(map[string]*types.Commit),
		sessions: make(map[string]*types.WorkSession),
		jobs:     make(map[string]*types.JobRequisition),
		vectors:  make(map[string][]float32),
	}
}

// SetClock replaces the timestamp source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

// CreateUser stores a new user
func (s *Store) CreateUser(ctx context.Context, user *types.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("invalid user: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ensureID(&user.ID)
	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("user %s already exists", user.ID)
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("user with email %s already exists", user.Email)
		}
	}
	now := s.now()
	user.CreatedAt, user.UpdatedAt = now, now
	if user.Version == 0 {
		user.Version = 1
	}
	s.users[user.ID] = cloneUser(user)
	s.userOrder = append(s.userOrder, user.ID)
	return nil
}

// GetUser returns nil, nil when the user does not exist
func (s *Store) GetUser(ctx context.Context, id string) (*types.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, nil
}

// GetUserByEmail matches case-insensitively
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.userOrder {
		if u := s.users[id]; strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

// ListUsers returns users in creation order
func (s *Store) ListUsers(ctx context.Context) ([]*types.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.User, 0, len(s.userOrder))
	for _, id := range s.userOrder {
		out = append(out, cloneUser(s.users[id]))
	}
	return out, nil
}

// UpdateUserProfile is a compare-and-set on the user's version
func (s *Store) UpdateUserProfile(ctx context.Context, id string, expectedVersion int64, update storage.ProfileUpdate) (*types.User, error) {
	if update.Commit != nil {
		if err := update.Commit.Validate(); err != nil {
			return nil, fmt.Errorf("invalid commit: %w", err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	if u.Version != expectedVersion {
		return nil, fmt.Errorf("user %s at version %d, expected %d: %w", id, u.Version, expectedVersion, storage.ErrConcurrentUpdate)
	}
	u.Skills = append([]string(nil), update.Skills...)
	u.WorkProfileText = update.WorkProfileText
	u.ProfileEmbedding = update.ProfileEmbedding.Clone()
	u.SkillEmbedding = update.SkillEmbedding.Clone()
	u.Version++
	u.UpdatedAt = s.now()
	if update.Commit != nil {
		s.saveCommitLocked(update.Commit)
	}
	return cloneUser(u), nil
}

// CreateProject stores a new project
func (s *Store) CreateProject(ctx context.Context, project *types.Project) error {
	if err := project.Validate(); err != nil {
		return fmt.Errorf("invalid project: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ensureID(&project.ID)
	if _, ok := s.projects[project.ID]; ok {
		return fmt.Errorf("project %s already exists", project.ID)
	}
	project.CreatedAt = s.now()
	s.projects[project.ID] = cloneProject(project)
	s.projectOrder = append(s.projectOrder, project.ID)
	return nil
}

// GetProject returns nil, nil when the project does not exist
func (s *Store) GetProject(ctx context.Context, id string) (*types.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.projects[id]; ok {
		return cloneProject(p), nil
	}
	return nil, nil
}

// ListProjects returns projects in creation order
func (s *Store) ListProjects(ctx context.Context) ([]*types.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Project, 0, len(s.projectOrder))
	for _, id := range s.projectOrder {
		out = append(out, cloneProject(s.projects[id]))
	}
	return out, nil
}

// CreateTask stores a new task
func (s *Store) CreateTask(ctx context.Context, task *types.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createTaskLocked(task)
}

func (s *Store) createTaskLocked(task *types.Task) error {
	if task.Status == "" {
		task.Status = types.StatusTodo
	}
	if task.Priority == "" {
		task.Priority = types.PriorityMedium
	}
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	ensureID(&task.ID)
	if _, ok := s.tasks[task.ID]; ok {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	now := s.now()
	task.CreatedAt, task.UpdatedAt = now, now
	task.Version = 1
	s.tasks[task.ID] = cloneTask(task)
	s.taskOrder = append(s.taskOrder, task.ID)
	return nil
}

// GetTask returns nil, nil when the task does not exist
func (s *Store) GetTask(ctx context.Context, id string) (*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tasks[id]; ok {
		return cloneTask(t), nil
	}
	return nil, nil
}

// ListTasks returns matching tasks in creation order
func (s *Store) ListTasks(ctx context.Context, filter storage.TaskFilter) ([]*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Task
	for _, id := range s.taskOrder {
		t := s.tasks[id]
		if !filter.Matches(t) {
			continue
		}
		out = append(out, cloneTask(t))
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// CountTasks counts matching tasks
func (s *Store) CountTasks(ctx context.Context, filter storage.TaskFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.tasks {
		if filter.Matches(t) {
			n++
		}
	}
	return n, nil
}

// UpdateTaskStatus sets the status and logs the change
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status types.Status) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid status: %s", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, storage.ErrNotFound)
	}
	now := s.now()
	t.ActivityLog = append(t.ActivityLog, types.ActivityEntry{
		Timestamp: now,
		Kind:      types.ActivityStatus,
		Message:   fmt.Sprintf("status changed from %s to %s", t.Status, status),
	})
	t.Status = status
	t.Version++
	t.UpdatedAt = now
	return nil
}

// MergeIssueIntoTask applies a duplicate merge as a compare-and-set and
// records the issue under the same lock
func (s *Store) MergeIssueIntoTask(ctx context.Context, issue *types.Issue, taskID string, expectedVersion int64, merge storage.TaskMerge) (*types.Task, error) {
	merged := storage.MarkMerged(issue, taskID)
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("invalid issue: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, storage.ErrNotFound)
	}
	if t.Version != expectedVersion {
		return nil, fmt.Errorf("task %s at version %d, expected %d: %w", taskID, t.Version, expectedVersion, storage.ErrConcurrentUpdate)
	}

	now := s.now()
	merge.Apply(t, now)
	t.Version++
	t.UpdatedAt = now
	s.saveIssueLocked(merged)
	*issue = *merged
	return cloneTask(t), nil
}

// AssignTask adds the assignee and opens the session atomically
func (s *Store) AssignTask(ctx context.Context, taskID, userID string, session *types.WorkSession) (*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, storage.ErrNotFound)
	}
	if t.Status == types.StatusDone {
		return nil, fmt.Errorf("task %s: %w", taskID, storage.ErrTaskClosed)
	}
	if _, ok := s.users[userID]; !ok {
		return nil, fmt.Errorf("user %s: %w", userID, storage.ErrNotFound)
	}

	if session != nil {
		session.TaskID, session.UserID = taskID, userID
		if session.StartTime.IsZero() {
			session.StartTime = s.now()
		}
		if err := session.Validate(); err != nil {
			return nil, fmt.Errorf("invalid work session: %w", err)
		}
		ensureID(&session.ID)
	}

	now := s.now()
	if !t.HasAssignee(userID) {
		t.AssigneeIDs = append(t.AssigneeIDs, userID)
	}
	if t.Status == types.StatusTodo {
		t.Status = types.StatusInProgress
	}
	t.RequiresJobPosting = false
	t.ActivityLog = append(t.ActivityLog, types.ActivityEntry{
		Timestamp: now,
		Kind:      types.ActivityAssigned,
		Message:   "assigned to " + userID,
		SourceID:  userID,
	})
	t.Version++
	t.UpdatedAt = now

	if session != nil {
		s.sessions[session.ID] = cloneSession(session)
		s.sessionOrder = append(s.sessionOrder, session.ID)
	}
	return cloneTask(t), nil
}

// MarkRequiresJobPosting flags a task nobody could take
func (s *Store) MarkRequiresJobPosting(ctx context.Context, taskID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, storage.ErrNotFound)
	}
	now := s.now()
	t.RequiresJobPosting = true
	t.ActivityLog = append(t.ActivityLog, types.ActivityEntry{
		Timestamp: now,
		Kind:      types.ActivityJobPosted,
		Message:   reason,
	})
	t.Version++
	t.UpdatedAt = now
	return nil
}

// OpenAssignmentCounts counts open tasks per assignee
func (s *Store) OpenAssignmentCounts(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, t := range s.tasks {
		if !t.Status.IsOpen() {
			continue
		}
		for _, id := range t.AssigneeIDs {
			counts[id]++
		}
	}
	return counts, nil
}

// SaveIssue inserts or replaces an issue
func (s *Store) SaveIssue(ctx context.Context, issue *types.Issue) error {
	if issue.Resolution == "" {
		issue.Resolution = types.ResolutionPending
	}
	if err := issue.Validate(); err != nil {
		return fmt.Errorf("invalid issue: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveIssueLocked(issue)
	return nil
}

func (s *Store) saveIssueLocked(issue *types.Issue) {
	ensureID(&issue.ID)
	now := s.now()
	if existing, ok := s.issues[issue.ID]; ok {
		issue.CreatedAt = existing.CreatedAt
	} else {
		issue.CreatedAt = now
		s.issueOrder = append(s.issueOrder, issue.ID)
	}
	issue.UpdatedAt = now
	s.issues[issue.ID] = cloneIssue(issue)
}

// GetIssue returns nil, nil when the issue does not exist
func (s *Store) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i, ok := s.issues[id]; ok {
		return cloneIssue(i), nil
	}
	return nil, nil
}

// ListIssues returns matching issues in creation order
func (s *Store) ListIssues(ctx context.Context, filter storage.IssueFilter) ([]*types.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Issue
	for _, id := range s.issueOrder {
		i := s.issues[id]
		if filter.Resolution != "" && i.Resolution != filter.Resolution {
			continue
		}
		out = append(out, cloneIssue(i))
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// CreateTaskFromIssue inserts the task and records it on the issue
func (s *Store) CreateTaskFromIssue(ctx context.Context, issue *types.Issue, task *types.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.createTaskLocked(task); err != nil {
		return err
	}
	issue.TaskID = task.ID
	issue.Resolution = types.ResolutionCreated
	s.saveIssueLocked(issue)
	return nil
}

// SaveCommit inserts or replaces a commit
func (s *Store) SaveCommit(ctx context.Context, commit *types.Commit) error {
	if err := commit.Validate(); err != nil {
		return fmt.Errorf("invalid commit: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCommitLocked(commit)
	return nil
}

func (s *Store) saveCommitLocked(commit *types.Commit) {
	ensureID(&commit.ID)
	if commit.Timestamp.IsZero() {
		commit.Timestamp = s.now()
	}
	if _, ok := s.commits[commit.ID]; !ok {
		s.commitOrder = append(s.commitOrder, commit.ID)
	}
	s.commits[commit.ID] = cloneCommit(commit)
}

// GetCommit returns nil, nil when the commit does not exist
func (s *Store) GetCommit(ctx context.Context, id string) (*types.Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.commits[id]; ok {
		return cloneCommit(c), nil
	}
	return nil, nil
}

// ListCommits returns matching commits, newest first
func (s *Store) ListCommits(ctx context.Context, filter storage.CommitFilter) ([]*types.Commit, error) {
	s.mu.RLock()
	var out []*types.Commit
	for _, id := range s.commitOrder {
		if c := s.commits[id]; filter.Matches(c) {
			out = append(out, cloneCommit(c))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// CreateWorkSession stores a session
func (s *Store) CreateWorkSession(ctx context.Context, session *types.WorkSession) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("invalid work session: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ensureID(&session.ID)
	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("work session %s already exists", session.ID)
	}
	s.sessions[session.ID] = cloneSession(session)
	s.sessionOrder = append(s.sessionOrder, session.ID)
	return nil
}

// CloseWorkSession sets the end time of an open session
func (s *Store) CloseWorkSession(ctx context.Context, id string, end time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("work session %s: %w", id, storage.ErrNotFound)
	}
	if ws.EndTime != nil {
		return fmt.Errorf("work session %s is already closed", id)
	}
	if !end.After(ws.StartTime) {
		return fmt.Errorf("end time must be after start time for session %s", id)
	}
	end = end.UTC()
	ws.EndTime = &end
	return nil
}

// ListWorkSessions returns matching sessions ordered by start time
func (s *Store) ListWorkSessions(ctx context.Context, filter storage.SessionFilter) ([]*types.WorkSession, error) {
	s.mu.RLock()
	var out []*types.WorkSession
	for _, id := range s.sessionOrder {
		if ws := s.sessions[id]; filter.Matches(ws) {
			out = append(out, cloneSession(ws))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

// CreateJobRequisition stores a requisition
func (s *Store) CreateJobRequisition(ctx context.Context, req *types.JobRequisition) error {
	if req.Status == "" {
		req.Status = types.RequisitionPending
	}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid job requisition: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ensureID(&req.ID)
	now := s.now()
	req.CreatedAt, req.UpdatedAt = now, now
	s.jobs[req.ID] = cloneJob(req)
	s.jobOrder = append(s.jobOrder, req.ID)
	return nil
}

// ListJobRequisitions returns matching requisitions in creation order
func (s *Store) ListJobRequisitions(ctx context.Context, filter storage.RequisitionFilter) ([]*types.JobRequisition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.JobRequisition
	for _, id := range s.jobOrder {
		j := s.jobs[id]
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if filter.TaskID != "" && j.TaskID != filter.TaskID {
			continue
		}
		out = append(out, cloneJob(j))
	}
	return out, nil
}

// UpdateJobRequisitionStatus moves a requisition through hiring
func (s *Store) UpdateJobRequisitionStatus(ctx context.Context, id string, status types.RequisitionStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid status: %s", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job requisition %s: %w", id, storage.ErrNotFound)
	}
	j.Status = status
	j.UpdatedAt = s.now()
	return nil
}

// GetCachedEmbedding returns nil, nil on a miss
func (s *Store) GetCachedEmbedding(ctx context.Context, key string) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.vectors[key]; ok {
		return append([]float32(nil), v...), nil
	}
	return nil, nil
}

// PutCachedEmbedding stores a vector
func (s *Store) PutCachedEmbedding(ctx context.Context, key, model string, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors[key] = append([]float32(nil), vector...)
	return nil
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}
