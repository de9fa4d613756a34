package types

import (
	"fmt"
	"strings"
	"time"
)

// Impact is the reasoning-assessed significance of a commit
type Impact string

const (
	ImpactMinor       Impact = "minor"
	ImpactModerate    Impact = "moderate"
	ImpactSignificant Impact = "significant"
)

// IsValid checks if the impact value is valid
func (i Impact) IsValid() bool {
	switch i {
	case ImpactMinor, ImpactModerate, ImpactSignificant:
		return true
	}
	return false
}

// Commit is a processed code change attributed to a developer.
type Commit struct {
	ID          string `json:"id"`
	Hash        string `json:"hash"`
	Message     string `json:"message"`
	DiffSummary string `json:"diff_summary,omitempty"`
	Repository  string `json:"repository,omitempty"`
	Branch      string `json:"branch,omitempty"`
	AuthorEmail string `json:"author_email"`
	AuthorName  string `json:"author_name,omitempty"`
	// UserID is a weak reference; an unknown author leaves it empty.
	UserID        string `json:"user_id,omitempty"`
	FilesChanged  int    `json:"files_changed"`
	LinesAdded    int    `json:"lines_added"`
	LinesDeleted  int    `json:"lines_deleted"`
	LinesModified int    `json:"lines_modified"`

	Summary          string    `json:"summary,omitempty"`
	ExtractedSkills  []string  `json:"extracted_skills,omitempty"`
	Impact           Impact    `json:"impact,omitempty"`
	SummaryEmbedding Embedding `json:"summary_embedding"`
	// LinkedTaskID is empty for untracked work.
	LinkedTaskID           string    `json:"linked_task_id,omitempty"`
	TriggeredProfileUpdate bool      `json:"triggered_profile_update"`
	Timestamp              time.Time `json:"timestamp"`
}

// Validate checks if the commit has valid field values
func (c *Commit) Validate() error {
	if strings.TrimSpace(c.Hash) == "" {
		return fmt.Errorf("hash is required")
	}
	if c.LinesAdded < 0 || c.LinesDeleted < 0 || c.LinesModified < 0 {
		return fmt.Errorf("line counts cannot be negative (added=%d deleted=%d modified=%d)",
			c.LinesAdded, c.LinesDeleted, c.LinesModified)
	}
	if c.FilesChanged < 0 {
		return fmt.Errorf("files_changed cannot be negative (got %d)", c.FilesChanged)
	}
	if c.Impact != "" && !c.Impact.IsValid() {
		return fmt.Errorf("invalid impact: %s", c.Impact)
	}
	return nil
}

// TotalLines is added + deleted + modified.
func (c *Commit) TotalLines() int {
	return c.LinesAdded + c.LinesDeleted + c.LinesModified
}

// IsUntracked reports whether the commit could not be linked to a task.
func (c *Commit) IsUntracked() bool {
	return c.LinkedTaskID == ""
}
