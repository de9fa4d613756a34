package types

import (
	"fmt"
	"strings"
	"time"
)

// Embedding is a fixed-length vector owned by a single entity.
// It is always replaced as a whole value, never mutated in place.
type Embedding struct {
	Values []float32 `json:"values,omitempty"`
	// Fallback marks vectors derived from the deterministic hash fallback
	// rather than from the embedding provider.
	Fallback bool `json:"fallback,omitempty"`
}

// IsZero reports whether the embedding carries no vector at all.
func (e Embedding) IsZero() bool {
	return len(e.Values) == 0
}

// Usable reports whether the embedding came from the provider and can be
// trusted for similarity search.
func (e Embedding) Usable() bool {
	return !e.IsZero() && !e.Fallback
}

// Dimensions returns the vector length.
func (e Embedding) Dimensions() int {
	return len(e.Values)
}

// Clone returns a deep copy so callers can hand the value to another entity.
func (e Embedding) Clone() Embedding {
	if e.Values == nil {
		return Embedding{Fallback: e.Fallback}
	}
	values := make([]float32, len(e.Values))
	copy(values, e.Values)
	return Embedding{Values: values, Fallback: e.Fallback}
}

// User is a developer whose skills and work profile drive matching.
type User struct {
	ID               string    `json:"id" yaml:"id"`
	Name             string    `json:"name" yaml:"name"`
	Email            string    `json:"email" yaml:"email"`
	Skills           []string  `json:"skills" yaml:"skills"`
	HourlyRate       float64   `json:"hourly_rate" yaml:"hourly_rate"`
	WorkProfileText  string    `json:"work_profile_text,omitempty" yaml:"work_profile_text"`
	ProfileEmbedding Embedding `json:"profile_embedding" yaml:"-"`
	SkillEmbedding   Embedding `json:"skill_embedding" yaml:"-"`
	// Version is bumped by every profile write and guards compare-and-set updates.
	Version   int64     `json:"version" yaml:"-"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Validate checks if the user has valid field values
func (u *User) Validate() error {
	if strings.TrimSpace(u.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(u.Email) == "" {
		return fmt.Errorf("email is required")
	}
	if !strings.Contains(u.Email, "@") {
		return fmt.Errorf("invalid email: %s", u.Email)
	}
	if u.HourlyRate < 0 {
		return fmt.Errorf("hourly_rate cannot be negative (got %.2f)", u.HourlyRate)
	}
	return nil
}

// SkillText is the canonical text used to embed a skill list.
func SkillText(skills []string) string {
	return strings.Join(skills, ", ")
}

// ProfileText is the text embedded into a user's profile embedding.
func (u *User) ProfileText() string {
	text := strings.TrimSpace(u.WorkProfileText)
	if len(u.Skills) == 0 {
		return text
	}
	skills := "Skills: " + SkillText(u.Skills)
	if text == "" {
		return skills
	}
	return text + "\n" + skills
}

// Project groups tasks under a shared budget.
type Project struct {
	ID             string    `json:"id" yaml:"id"`
	Name           string    `json:"name" yaml:"name"`
	Description    string    `json:"description,omitempty" yaml:"description"`
	TotalBudget    float64   `json:"total_budget" yaml:"total_budget"`
	ContributorIDs []string  `json:"contributor_ids,omitempty" yaml:"contributor_ids"`
	CreatedAt      time.Time `json:"created_at" yaml:"-"`
}

// Validate checks if the project has valid field values
func (p *Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if p.TotalBudget < 0 {
		return fmt.Errorf("total_budget cannot be negative (got %.2f)", p.TotalBudget)
	}
	return nil
}

// MergeSkills returns the case-insensitive union of existing and added,
// preserving the order of existing entries and then the order of additions.
func MergeSkills(existing, added []string) []string {
	seen := make(map[string]bool, len(existing)+len(added))
	merged := make([]string, 0, len(existing)+len(added))
	for _, list := range [][]string{existing, added} {
		for _, skill := range list {
			skill = strings.TrimSpace(skill)
			if skill == "" {
				continue
			}
			key := strings.ToLower(skill)
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, skill)
		}
	}
	return merged
}
