package types

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a task
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
)

// IsValid checks if the status value is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone, StatusBlocked:
		return true
	}
	return false
}

// IsOpen reports whether work on the task is still outstanding.
func (s Status) IsOpen() bool {
	return s != StatusDone
}

// Priority ranks the urgency of a task or issue
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var priorityOrder = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// IsValid checks if the priority value is valid
func (p Priority) IsValid() bool {
	return p.rank() >= 0
}

func (p Priority) rank() int {
	for i, candidate := range priorityOrder {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Escalate returns the next higher priority. Critical stays critical.
func (p Priority) Escalate() Priority {
	r := p.rank()
	if r < 0 {
		return PriorityMedium
	}
	if r == len(priorityOrder)-1 {
		return p
	}
	return priorityOrder[r+1]
}

// Deescalate returns the next lower priority. Low stays low.
func (p Priority) Deescalate() Priority {
	r := p.rank()
	if r <= 0 {
		return PriorityLow
	}
	return priorityOrder[r-1]
}

// ActivityEntry is one line in a task's activity log.
type ActivityEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	SourceID  string    `json:"source_id,omitempty"`
}

// Activity kinds recorded on tasks
const (
	ActivityCreated   = "created"
	ActivityMerged    = "duplicate_merged"
	ActivityAssigned  = "assigned"
	ActivityJobPosted = "job_posting_required"
	ActivityStatus    = "status_changed"
)

// Task is a unit of work that can be matched to developers.
type Task struct {
	ID                   string          `json:"id" yaml:"id"`
	ExternalID           string          `json:"external_id,omitempty" yaml:"external_id"`
	ProjectID            string          `json:"project_id,omitempty" yaml:"project_id"`
	SprintID             string          `json:"sprint_id,omitempty" yaml:"sprint_id"`
	Title                string          `json:"title" yaml:"title"`
	Description          string          `json:"description" yaml:"description"`
	DescriptionEmbedding Embedding       `json:"description_embedding" yaml:"-"`
	RequiredSkills       []string        `json:"required_skills" yaml:"required_skills"`
	SkillEmbedding       Embedding       `json:"skill_embedding" yaml:"-"`
	Status               Status          `json:"status" yaml:"status"`
	Priority             Priority        `json:"priority" yaml:"priority"`
	AssigneeIDs          []string        `json:"assignee_ids,omitempty" yaml:"assignee_ids"`
	RequiresJobPosting   bool            `json:"requires_job_posting" yaml:"-"`
	ActivityLog          []ActivityEntry `json:"activity_log,omitempty" yaml:"-"`
	// Version guards optimistic writes from concurrent duplicate merges.
	Version   int64     `json:"version" yaml:"-"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Validate checks if the task has valid field values
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(t.Title))
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", t.Status)
	}
	if !t.Priority.IsValid() {
		return fmt.Errorf("invalid priority: %s", t.Priority)
	}
	return nil
}

// EmbeddingText is the text embedded into the description embedding.
func (t *Task) EmbeddingText() string {
	return DescriptionText(t.Title, t.Description)
}

// HasAssignee reports whether userID is already assigned.
func (t *Task) HasAssignee(userID string) bool {
	for _, id := range t.AssigneeIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// DescriptionText joins a title and description into embedding input.
func DescriptionText(title, description string) string {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	switch {
	case title == "":
		return description
	case description == "":
		return title
	}
	return title + ". " + description
}

// Resolution records what the duplicate engine did with an issue
type Resolution string

const (
	ResolutionPending Resolution = "pending"
	ResolutionMerged  Resolution = "merged"
	ResolutionCreated Resolution = "created"
)

// IsValid checks if the resolution value is valid
func (r Resolution) IsValid() bool {
	switch r {
	case ResolutionPending, ResolutionMerged, ResolutionCreated:
		return true
	}
	return false
}

// Issue is an incoming request for work that may duplicate an existing task.
type Issue struct {
	ID                   string     `json:"id"`
	ExternalID           string     `json:"external_id,omitempty"`
	Source               string     `json:"source,omitempty"`
	ProjectID            string     `json:"project_id,omitempty"`
	Title                string     `json:"title"`
	Description          string     `json:"description"`
	DescriptionEmbedding Embedding  `json:"description_embedding"`
	RequiredSkills       []string   `json:"required_skills,omitempty"`
	SkillEmbedding       Embedding  `json:"skill_embedding"`
	Priority             Priority   `json:"priority"`
	IsDuplicate          bool       `json:"is_duplicate"`
	ParentTaskID         string     `json:"parent_task_id,omitempty"`
	TaskID               string     `json:"task_id,omitempty"`
	Resolution           Resolution `json:"resolution"`
	Confidence           float64    `json:"confidence"`
	Reasoning            string     `json:"reasoning,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Validate checks if the issue has valid field values
func (i *Issue) Validate() error {
	if strings.TrimSpace(i.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if i.Priority != "" && !i.Priority.IsValid() {
		return fmt.Errorf("invalid priority: %s", i.Priority)
	}
	if i.Resolution != "" && !i.Resolution.IsValid() {
		return fmt.Errorf("invalid resolution: %s", i.Resolution)
	}
	if i.Confidence < 0 || i.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.2f)", i.Confidence)
	}
	return nil
}

// EmbeddingText is the text embedded into the description embedding.
func (i *Issue) EmbeddingText() string {
	return DescriptionText(i.Title, i.Description)
}
