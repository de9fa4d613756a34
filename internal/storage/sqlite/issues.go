package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coresight/coresight/internal/storage"
	"github.com/coresight/coresight/internal/types"
)

const issueColumns = `id, external_id, source, project_id, title, description,
	description_embedding, required_skills, skill_embedding, priority, is_duplicate,
	parent_task_id, task_id, resolution, confidence, reasoning, created_at, updated_at`

// SaveIssue inserts or replaces an issue
func (s *Store) SaveIssue(ctx context.Context, issue *types.Issue) error {
	return upsertIssue(ctx, s.db, issue, s.now())
}

func upsertIssue(ctx context.Context, q queryer, issue *types.Issue, now time.Time) error {
	if issue.Resolution == "" {
		issue.Resolution = types.ResolutionPending
	}
	if err := issue.Validate(); err != nil {
		return fmt.Errorf("invalid issue: %w", err)
	}
	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = now
	}
	issue.UpdatedAt = now

	descEmb, err := encodeEmbedding(issue.DescriptionEmbedding)
	if err != nil {
		return err
	}
	skillEmb, err := encodeEmbedding(issue.SkillEmbedding)
	if err != nil {
		return err
	}
	skills, err := encodeStrings(issue.RequiredSkills)
	if err != nil {
		return err
	}

	// created_at is preserved on conflict
	_, err = q.ExecContext(ctx, `
		INSERT INTO issues (`+issueColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			external_id = excluded.external_id,
			source = excluded.source,
			project_id = excluded.project_id,
			title = excluded.title,
			description = excluded.description,
			description_embedding = excluded.description_embedding,
			required_skills = excluded.required_skills,
			skill_embedding = excluded.skill_embedding,
			priority = excluded.priority,
			is_duplicate = excluded.is_duplicate,
			parent_task_id = excluded.parent_task_id,
			task_id = excluded.task_id,
			resolution = excluded.resolution,
			confidence = excluded.confidence,
			reasoning = excluded.reasoning,
			updated_at = excluded.updated_at
	`, issue.ID, issue.ExternalID, issue.Source, issue.ProjectID, issue.Title, issue.Description,
		descEmb, skills, skillEmb, string(issue.Priority), boolInt(issue.IsDuplicate),
		issue.ParentTaskID, issue.TaskID, string(issue.Resolution), issue.Confidence, issue.Reasoning,
		toNanos(issue.CreatedAt), toNanos(issue.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save issue: %w", err)
	}
	return nil
}

// GetIssue returns nil, nil when the issue does not exist
func (s *Store) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+issueColumns+" FROM issues WHERE id = ?", id)
	i, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}
	return i, nil
}

// ListIssues returns matching issues in creation order
func (s *Store) ListIssues(ctx context.Context, filter storage.IssueFilter) ([]*types.Issue, error) {
	query := "SELECT " + issueColumns + " FROM issues"
	var args []any
	if filter.Resolution != "" {
		query += " WHERE resolution = ?"
		args = append(args, string(filter.Resolution))
	}
	query += " ORDER BY created_at, rowid"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer rows.Close()

	var issues []*types.Issue
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		issues = append(issues, i)
	}
	return issues, rows.Err()
}

// CreateTaskFromIssue inserts the task and records it on the issue
func (s *Store) CreateTaskFromIssue(ctx context.Context, issue *types.Issue, task *types.Task) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		if err := insertTask(ctx, tx, task, now); err != nil {
			return err
		}
		issue.TaskID = task.ID
		issue.Resolution = types.ResolutionCreated
		return upsertIssue(ctx, tx, issue, now)
	})
}

func scanIssue(row rowScanner) (*types.Issue, error) {
	var (
		i                    types.Issue
		descEmb, skillEmb    sql.NullString
		skills               sql.NullString
		priority, resolution string
		isDuplicate          int
		createdAt, updatedAt int64
	)
	if err := row.Scan(&i.ID, &i.ExternalID, &i.Source, &i.ProjectID, &i.Title, &i.Description,
		&descEmb, &skills, &skillEmb, &priority, &isDuplicate,
		&i.ParentTaskID, &i.TaskID, &resolution, &i.Confidence, &i.Reasoning, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	i.Priority = types.Priority(priority)
	i.Resolution = types.Resolution(resolution)
	i.IsDuplicate = isDuplicate != 0
	if err := decodeJSON(descEmb, &i.DescriptionEmbedding); err != nil {
		return nil, err
	}
	if err := decodeJSON(skillEmb, &i.SkillEmbedding); err != nil {
		return nil, err
	}
	if err := decodeJSON(skills, &i.RequiredSkills); err != nil {
		return nil, err
	}
	i.CreatedAt = fromNanos(createdAt)
	i.UpdatedAt = fromNanos(updatedAt)
	return &i, nil
}
