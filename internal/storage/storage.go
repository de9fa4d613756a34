// Package storage defines the persistence collaborator shared by the
// engines. Backends live in the sqlite and memory subpackages.
//
// Get methods return (nil, nil) when the entity does not exist; weak
// references that point at deleted rows read as unlinked rather than as
// errors. Tasks and users carry a version that every write bumps, which
// backs the compare-and-set operations.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/coresight/coresight/internal/types"
)

var (
	// ErrNotFound is returned by writes that target a missing row.
	ErrNotFound = errors.New("not found")
	// ErrConcurrentUpdate is returned when a compare-and-set write observes
	// a version other than the one the caller read.
	ErrConcurrentUpdate = errors.New("concurrent update")
	// ErrTaskClosed is returned when assigning a task that is already done.
	ErrTaskClosed = errors.New("task is closed")
)

// Storage is the persistence interface used by the engines and the CLI
type Storage interface {
	// Users
	CreateUser(ctx context.Context, user *types.User) error
	GetUser(ctx context.Context, id string) (*types.User, error)
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)
	ListUsers(ctx context.Context) ([]*types.User, error)
	// UpdateUserProfile replaces profile fields iff the stored version
	// equals expectedVersion.
	UpdateUserProfile(ctx context.Context, id string, expectedVersion int64, update ProfileUpdate) (*types.User, error)

	// Projects
	CreateProject(ctx context.Context, project *types.Project) error
	GetProject(ctx context.Context, id string) (*types.Project, error)
	ListProjects(ctx context.Context) ([]*types.Project, error)

	// Tasks
	CreateTask(ctx context.Context, task *types.Task) error
	GetTask(ctx context.Context, id string) (*types.Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]*types.Task, error)
	CountTasks(ctx context.Context, filter TaskFilter) (int, error)
	UpdateTaskStatus(ctx context.Context, id string, status types.Status) error
	// MergeIssueIntoTask applies a duplicate merge iff the stored task
	// version equals expectedVersion, and records issue as merged into the
	// task in the same write. On error neither record changes.
	MergeIssueIntoTask(ctx context.Context, issue *types.Issue, taskID string, expectedVersion int64, merge TaskMerge) (*types.Task, error)
	// AssignTask adds the assignee, moves todo to in_progress and opens the
	// work session in one transaction.
	AssignTask(ctx context.Context, taskID, userID string, session *types.WorkSession) (*types.Task, error)
	MarkRequiresJobPosting(ctx context.Context, taskID, reason string) error
	// OpenAssignmentCounts maps user id to the number of open tasks they hold.
	OpenAssignmentCounts(ctx context.Context) (map[string]int, error)

	// Issues
	SaveIssue(ctx context.Context, issue *types.Issue) error
	GetIssue(ctx context.Context, id string) (*types.Issue, error)
	ListIssues(ctx context.Context, filter IssueFilter) ([]*types.Issue, error)
	// CreateTaskFromIssue inserts task and records it on issue atomically.
	CreateTaskFromIssue(ctx context.Context, issue *types.Issue, task *types.Task) error

	// Commits
	SaveCommit(ctx context.Context, commit *types.Commit) error
	GetCommit(ctx context.Context, id string) (*types.Commit, error)
	ListCommits(ctx context.Context, filter CommitFilter) ([]*types.Commit, error)

	// Work sessions
	CreateWorkSession(ctx context.Context, session *types.WorkSession) error
	CloseWorkSession(ctx context.Context, id string, end time.Time) error
	ListWorkSessions(ctx context.Context, filter SessionFilter) ([]*types.WorkSession, error)

	// Job requisitions
	CreateJobRequisition(ctx context.Context, req *types.JobRequisition) error
	ListJobRequisitions(ctx context.Context, filter RequisitionFilter) ([]*types.JobRequisition, error)
	UpdateJobRequisitionStatus(ctx context.Context, id string, status types.RequisitionStatus) error

	// Embedding cache
	GetCachedEmbedding(ctx context.Context, key string) ([]float32, error)
	PutCachedEmbedding(ctx context.Context, key, model string, vector []float32) error

	// Lifecycle
	Close() error
}

// ProfileUpdate carries the replacement profile fields for a user.
type ProfileUpdate struct {
	Skills           []string
	WorkProfileText  string
	ProfileEmbedding types.Embedding
	SkillEmbedding   types.Embedding
	// Commit, when set, is saved in the same write as the profile
	Commit *types.Commit
}

// TaskMerge describes a duplicate merged into a parent task. Zero-valued
// fields leave the stored value untouched.
type TaskMerge struct {
	Activity       types.ActivityEntry
	Priority       types.Priority
	RequiredSkills []string
	SkillEmbedding *types.Embedding
}

// Apply folds the merge into t. Version and UpdatedAt are left to the
// backend.
func (m TaskMerge) Apply(t *types.Task, now time.Time) {
	entry := m.Activity
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	t.ActivityLog = append(t.ActivityLog, entry)
	if m.Priority != "" {
		t.Priority = m.Priority
	}
	if m.RequiredSkills != nil {
		t.RequiredSkills = append([]string(nil), m.RequiredSkills...)
	}
	if m.SkillEmbedding != nil {
		t.SkillEmbedding = m.SkillEmbedding.Clone()
	}
}

// MarkMerged returns a copy of issue resolved as a duplicate of taskID.
func MarkMerged(issue *types.Issue, taskID string) *types.Issue {
	merged := *issue
	merged.IsDuplicate = true
	merged.ParentTaskID = taskID
	merged.TaskID = taskID
	merged.Resolution = types.ResolutionMerged
	return &merged
}

// TaskFilter selects tasks. Zero fields do not filter.
type TaskFilter struct {
	Status             types.Status
	OpenOnly           bool
	ProjectID          string
	AssigneeID         string
	RequiresJobPosting *bool
	Limit              int
}

// Matches reports whether task passes the filter (ignores Limit).
func (f TaskFilter) Matches(task *types.Task) bool {
	if f.Status != "" && task.Status != f.Status {
		return false
	}
	if f.OpenOnly && !task.Status.IsOpen() {
		return false
	}
	if f.ProjectID != "" && task.ProjectID != f.ProjectID {
		return false
	}
	if f.AssigneeID != "" && !task.HasAssignee(f.AssigneeID) {
		return false
	}
	if f.RequiresJobPosting != nil && task.RequiresJobPosting != *f.RequiresJobPosting {
		return false
	}
	return true
}

// IssueFilter selects issues.
type IssueFilter struct {
	Resolution types.Resolution
	Limit      int
}

// CommitFilter selects commits. Results are newest first.
type CommitFilter struct {
	UserID string
	TaskID string
	Since  *time.Time
	Until  *time.Time
	Limit  int
}

// Matches reports whether commit passes the filter (ignores Limit).
func (f CommitFilter) Matches(c *types.Commit) bool {
	if f.UserID != "" && c.UserID != f.UserID {
		return false
	}
	if f.TaskID != "" && c.LinkedTaskID != f.TaskID {
		return false
	}
	if f.Since != nil && c.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && !c.Timestamp.Before(*f.Until) {
		return false
	}
	return true
}

// SessionFilter selects work sessions by start time. Results are oldest first.
type SessionFilter struct {
	UserID     string
	TaskID     string
	Since      *time.Time
	Until      *time.Time
	ClosedOnly bool
}

// Matches reports whether session passes the filter.
func (f SessionFilter) Matches(s *types.WorkSession) bool {
	if f.UserID != "" && s.UserID != f.UserID {
		return false
	}
	if f.TaskID != "" && s.TaskID != f.TaskID {
		return false
	}
	if f.Since != nil && s.StartTime.Before(*f.Since) {
		return false
	}
	if f.Until != nil && !s.StartTime.Before(*f.Until) {
		return false
	}
	if f.ClosedOnly && !s.IsClosed() {
		return false
	}
	return true
}

// RequisitionFilter selects job requisitions.
type RequisitionFilter struct {
	Status types.RequisitionStatus
	TaskID string
}

// Config holds database configuration
type Config struct {
	// Backend is sqlite or memory
	Backend string `yaml:"backend"`
	// Path is the SQLite database file path
	Path string `yaml:"path"`
}

// Backend names
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Backend: BackendSQLite,
		Path:    DefaultDatabasePath,
	}
}
