package ai

import (
	"fmt"
	"strings"

	"github.com/coresight/coresight/internal/types"
)

// Operation names used for logging and cost attribution
const (
	OpDuplicateCheck  = "duplicate_check"
	OpSkillExtraction = "skill_extraction"
	OpAssignment      = "assignment_validation"
	OpCommitAnalysis  = "commit_analysis"
	OpProfileUpdate   = "profile_update"
	OpNoMatchReport   = "no_match_report"
)

// maxDiffChars bounds how much of a diff is sent for commit analysis.
const maxDiffChars = 2000

// Priority change values in a duplicate decision
const (
	PriorityIncreased = "increased"
	PriorityDecreased = "decreased"
)

// DuplicateDecision is the model's verdict on an incoming issue.
type DuplicateDecision struct {
	IsDuplicate       bool     `json:"is_duplicate"`
	Confidence        float64  `json:"confidence"`
	ParentTaskID      string   `json:"parent_task_id"`
	PriorityChange    string   `json:"priority_change"`
	NewRequiredSkills []string `json:"new_required_skills"`
	Reasoning         string   `json:"reasoning"`
}

// Validate normalizes the decision and rejects out-of-range values.
func (d *DuplicateDecision) Validate() error {
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.2f)", d.Confidence)
	}
	switch strings.ToLower(strings.TrimSpace(d.PriorityChange)) {
	case PriorityIncreased:
		d.PriorityChange = PriorityIncreased
	case PriorityDecreased:
		d.PriorityChange = PriorityDecreased
	case "", "none", "null", "unchanged":
		d.PriorityChange = ""
	default:
		return fmt.Errorf("invalid priority_change: %q", d.PriorityChange)
	}
	if d.IsDuplicate && strings.TrimSpace(d.ParentTaskID) == "" {
		return fmt.Errorf("parent_task_id is required when is_duplicate is true")
	}
	d.NewRequiredSkills = cleanList(d.NewRequiredSkills)
	return nil
}

// DuplicateCandidate is an existing task offered to the model for comparison.
type DuplicateCandidate struct {
	Task  *types.Task
	Score float64
}

const duplicateSchema = `{
  "is_duplicate": boolean,
  "confidence": number between 0 and 1,
  "parent_task_id": string (the primary task id when is_duplicate is true, else ""),
  "priority_change": "increased" | "decreased" | null,
  "new_required_skills": [string] (skills the issue needs that the parent task lacks),
  "reasoning": string
}`

// DuplicateCheckRequest asks whether issue duplicates the primary task.
// Secondary candidates are context only.
func DuplicateCheckRequest(issue *types.Issue, primary DuplicateCandidate, secondary []DuplicateCandidate) Request[DuplicateDecision] {
	var b strings.Builder
	b.WriteString("You are triaging incoming work for an engineering team. Decide whether the NEW ISSUE describes the same work as the PRIMARY TASK.\n\n")
	fmt.Fprintf(&b, "NEW ISSUE\nTitle: %s\nDescription: %s\nPriority: %s\n", issue.Title, issue.Description, orDefault(string(issue.Priority), "unspecified"))
	if len(issue.RequiredSkills) > 0 {
		fmt.Fprintf(&b, "Skills: %s\n", types.SkillText(issue.RequiredSkills))
	}
	b.WriteString("\nPRIMARY TASK\n")
	writeTask(&b, primary)
	if len(secondary) > 0 {
		b.WriteString("\nOTHER SIMILAR TASKS (context only, never the merge target)\n")
		for _, c := range secondary {
			writeTask(&b, c)
		}
	}
	b.WriteString(`
Guidelines:
- Only mark as duplicate if the new issue asks for the same outcome as the primary task.
- Related work in the same area is NOT a duplicate.
- Use "increased" for priority_change when the new issue signals more urgency than the primary task.
- List only skills the primary task does not already require in new_required_skills.
`)

	return Request[DuplicateDecision]{
		Operation: OpDuplicateCheck,
		Prompt:    b.String(),
		Schema:    duplicateSchema,
		Default:   DuplicateDecision{IsDuplicate: false, Confidence: 0},
		Validate:  (*DuplicateDecision).Validate,
	}
}

func writeTask(b *strings.Builder, c DuplicateCandidate) {
	fmt.Fprintf(b, "ID: %s (similarity %.2f)\nTitle: %s\nDescription: %s\nPriority: %s\nStatus: %s\n",
		c.Task.ID, c.Score, c.Task.Title, truncate(c.Task.Description, 1000), c.Task.Priority, c.Task.Status)
	if len(c.Task.RequiredSkills) > 0 {
		fmt.Fprintf(b, "Required skills: %s\n", types.SkillText(c.Task.RequiredSkills))
	}
	b.WriteString("\n")
}

// SkillExtraction lists the skills a task needs.
type SkillExtraction struct {
	RequiredSkills []string `json:"required_skills"`
}

// SkillExtractionRequest asks for the skills needed by a task. The default
// is the keyword extraction of the same text.
func SkillExtractionRequest(title, description string) Request[SkillExtraction] {
	prompt := fmt.Sprintf(`Identify the technical skills needed to complete this task.

Title: %s
Description: %s

Return between 1 and %d concise skill names (for example "Python", "React", "REST API").`,
		title, description, maxExtractedSkills)

	return Request[SkillExtraction]{
		Operation: OpSkillExtraction,
		Prompt:    prompt,
		Schema:    `{"required_skills": [string]}`,
		Default:   SkillExtraction{RequiredSkills: KeywordSkills(title + " " + description)},
		Validate: func(s *SkillExtraction) error {
			s.RequiredSkills = cleanList(s.RequiredSkills)
			if len(s.RequiredSkills) == 0 {
				return fmt.Errorf("required_skills is empty")
			}
			if len(s.RequiredSkills) > maxExtractedSkills {
				s.RequiredSkills = s.RequiredSkills[:maxExtractedSkills]
			}
			return nil
		},
	}
}

// AssignmentValidation is the model's judgement of one candidate.
type AssignmentValidation struct {
	CanDo           bool     `json:"can_do"`
	Confidence      float64  `json:"confidence"`
	Reasoning       string   `json:"reasoning"`
	Recommendations []string `json:"recommendations"`
}

// AssignmentValidationRequest asks whether user can take task.
func AssignmentValidationRequest(task *types.Task, user *types.User, score float64) Request[AssignmentValidation] {
	prompt := fmt.Sprintf(`Decide whether this developer can successfully complete this task.

TASK
Title: %s
Description: %s
Required skills: %s
Priority: %s

DEVELOPER
Name: %s
Skills: %s
Work profile: %s
Embedding match score: %.2f

Be conservative: answer can_do=true only if the developer's demonstrated skills cover the task's core requirements.`,
		task.Title, truncate(task.Description, 1500), types.SkillText(task.RequiredSkills), task.Priority,
		user.Name, types.SkillText(user.Skills), orDefault(truncate(user.WorkProfileText, 1500), "(none)"), score)

	return Request[AssignmentValidation]{
		Operation: OpAssignment,
		Prompt:    prompt,
		Schema:    `{"can_do": boolean, "confidence": number between 0 and 1, "reasoning": string, "recommendations": [string]}`,
		Default:   AssignmentValidation{CanDo: false, Confidence: 0},
		Validate: func(v *AssignmentValidation) error {
			if v.Confidence < 0 || v.Confidence > 1 {
				return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.2f)", v.Confidence)
			}
			return nil
		},
	}
}

// CommitAnalysis summarizes a commit.
type CommitAnalysis struct {
	Summary         string   `json:"summary"`
	ExtractedSkills []string `json:"extracted_skills"`
	Impact          string   `json:"impact"`
}

// CommitAnalysisRequest asks for a summary, skills and impact of a commit.
// The diff is truncated before sending.
func CommitAnalysisRequest(commit *types.Commit) Request[CommitAnalysis] {
	prompt := fmt.Sprintf(`Analyze this code commit.

Repository: %s
Message: %s
Files changed: %d (+%d -%d ~%d lines)
Diff:
%s

Summarize what the change does in one or two sentences, list the technical skills it demonstrates, and rate its impact as minor, moderate or significant.`,
		orDefault(commit.Repository, "unknown"), commit.Message, commit.FilesChanged,
		commit.LinesAdded, commit.LinesDeleted, commit.LinesModified,
		orDefault(truncate(commit.DiffSummary, maxDiffChars), "(not available)"))

	return Request[CommitAnalysis]{
		Operation: OpCommitAnalysis,
		Prompt:    prompt,
		Schema:    `{"summary": string, "extracted_skills": [string], "impact": "minor" | "moderate" | "significant"}`,
		Default: CommitAnalysis{
			Summary:         commit.Message,
			ExtractedSkills: []string{},
			Impact:          string(types.ImpactMinor),
		},
		Validate: func(a *CommitAnalysis) error {
			a.Impact = strings.ToLower(strings.TrimSpace(a.Impact))
			if !types.Impact(a.Impact).IsValid() {
				return fmt.Errorf("invalid impact: %q", a.Impact)
			}
			a.ExtractedSkills = cleanList(a.ExtractedSkills)
			if strings.TrimSpace(a.Summary) == "" {
				a.Summary = commit.Message
			}
			return nil
		},
	}
}

// ProfileUpdate is the model's decision on evolving a developer profile.
type ProfileUpdate struct {
	ShouldUpdate       bool     `json:"should_update"`
	UpdatedProfileText string   `json:"updated_profile_text"`
	NewSkills          []string `json:"new_skills"`
	Reasoning          string   `json:"reasoning"`
}

// ProfileUpdateRequest asks whether a commit shows skills or experience
// not yet captured in the user's profile.
func ProfileUpdateRequest(user *types.User, commit *types.Commit, analysis CommitAnalysis) Request[ProfileUpdate] {
	prompt := fmt.Sprintf(`Decide whether this developer's profile should be updated based on their latest commit.

CURRENT PROFILE
Skills: %s
Work profile: %s

COMMIT
Message: %s
Summary: %s
Skills demonstrated: %s
Impact: %s

Only update when the commit demonstrates new skills or meaningfully new experience. When updating, return the complete rewritten profile text, not a diff.`,
		orDefault(types.SkillText(user.Skills), "(none)"), orDefault(user.WorkProfileText, "(none)"),
		commit.Message, analysis.Summary, orDefault(types.SkillText(analysis.ExtractedSkills), "(none)"), analysis.Impact)

	return Request[ProfileUpdate]{
		Operation: OpProfileUpdate,
		Prompt:    prompt,
		Schema:    `{"should_update": boolean, "updated_profile_text": string, "new_skills": [string], "reasoning": string}`,
		Default:   ProfileUpdate{ShouldUpdate: false},
		Validate: func(p *ProfileUpdate) error {
			p.NewSkills = cleanList(p.NewSkills)
			p.UpdatedProfileText = strings.TrimSpace(p.UpdatedProfileText)
			return nil
		},
	}
}

// NoMatchReport explains why nobody could take a task and drafts a job
// posting.
type NoMatchReport struct {
	Severity                string   `json:"severity"`
	Message                 string   `json:"message"`
	MissingSkills           []string `json:"missing_skills"`
	Recommendations         []string `json:"recommendations"`
	ShouldPostJob           bool     `json:"should_post_job"`
	SuggestedJobTitle       string   `json:"suggested_job_title"`
	SuggestedJobDescription string   `json:"suggested_job_description"`
	RequiredExperienceYears int      `json:"required_experience_years"`
}

// DefaultJobTitle builds a title from the first three skills.
func DefaultJobTitle(skills []string) string {
	if len(skills) == 0 {
		return "Software Developer"
	}
	if len(skills) > 3 {
		skills = skills[:3]
	}
	return "Developer - " + strings.Join(skills, ", ")
}

// NoMatchReportRequest asks for a gap analysis and job posting draft.
func NoMatchReportRequest(title, description string, requiredSkills []string, candidatesSeen int) Request[NoMatchReport] {
	prompt := fmt.Sprintf(`No developer on the team could be matched to this task.

Title: %s
Description: %s
Required skills: %s
Candidates evaluated: %d

Explain the gap, list missing skills, and draft a job posting for a hire who could do this work.`,
		title, truncate(description, 1500), orDefault(types.SkillText(requiredSkills), "(none)"), candidatesSeen)

	def := NoMatchReport{
		Severity:                "high",
		Message:                 fmt.Sprintf("No team member matches the skills required for %q.", title),
		MissingSkills:           append([]string(nil), requiredSkills...),
		ShouldPostJob:           true,
		SuggestedJobTitle:       DefaultJobTitle(requiredSkills),
		SuggestedJobDescription: fmt.Sprintf("We are looking for a developer to work on: %s\n\n%s", title, description),
		RequiredExperienceYears: 2,
	}

	return Request[NoMatchReport]{
		Operation: OpNoMatchReport,
		Prompt:    prompt,
		Schema: `{"severity": "low" | "medium" | "high", "message": string, "missing_skills": [string], "recommendations": [string],
 "should_post_job": boolean, "suggested_job_title": string, "suggested_job_description": string, "required_experience_years": integer}`,
		Default: def,
		Validate: func(r *NoMatchReport) error {
			if strings.TrimSpace(r.SuggestedJobTitle) == "" {
				r.SuggestedJobTitle = def.SuggestedJobTitle
			}
			if r.RequiredExperienceYears < 0 {
				return fmt.Errorf("required_experience_years cannot be negative (got %d)", r.RequiredExperienceYears)
			}
			r.MissingSkills = cleanList(r.MissingSkills)
			return nil
		},
	}
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
