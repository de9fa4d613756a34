package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coresight/coresight/internal/storage"
	"github.com/coresight/coresight/internal/types"
)

const commitColumns = `id, hash, message, diff_summary, repository, branch, author_email,
	author_name, user_id, files_changed, lines_added, lines_deleted, lines_modified,
	summary, extracted_skills, impact, summary_embedding, linked_task_id,
	triggered_profile_update, timestamp`

// SaveCommit inserts or replaces a commit
func (s *Store) SaveCommit(ctx context.Context, commit *types.Commit) error {
	return saveCommit(ctx, s.db, commit, s.now())
}

func saveCommit(ctx context.Context, q queryer, commit *types.Commit, now time.Time) error {
	if err := commit.Validate(); err != nil {
		return fmt.Errorf("invalid commit: %w", err)
	}
	if commit.ID == "" {
		commit.ID = uuid.NewString()
	}
	if commit.Timestamp.IsZero() {
		commit.Timestamp = now
	}

	skills, err := encodeStrings(commit.ExtractedSkills)
	if err != nil {
		return err
	}
	emb, err := encodeEmbedding(commit.SummaryEmbedding)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT OR REPLACE INTO commits (`+commitColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, commit.ID, commit.Hash, commit.Message, commit.DiffSummary, commit.Repository, commit.Branch,
		commit.AuthorEmail, commit.AuthorName, commit.UserID, commit.FilesChanged,
		commit.LinesAdded, commit.LinesDeleted, commit.LinesModified,
		commit.Summary, skills, string(commit.Impact), emb, commit.LinkedTaskID,
		boolInt(commit.TriggeredProfileUpdate), toNanos(commit.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to save commit: %w", err)
	}
	return nil
}

// GetCommit returns nil, nil when the commit does not exist
func (s *Store) GetCommit(ctx context.Context, id string) (*types.Commit, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+commitColumns+" FROM commits WHERE id = ?", id)
	c, err := scanCommit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}
	return c, nil
}

// ListCommits returns matching commits, newest first
func (s *Store) ListCommits(ctx context.Context, filter storage.CommitFilter) ([]*types.Commit, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.TaskID != "" {
		clauses = append(clauses, "linked_task_id = ?")
		args = append(args, filter.TaskID)
	}
	if filter.Since != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, toNanos(*filter.Since))
	}
	if filter.Until != nil {
		clauses = append(clauses, "timestamp < ?")
		args = append(args, toNanos(*filter.Until))
	}

	query := "SELECT " + commitColumns + " FROM commits"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY timestamp DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list commits: %w", err)
	}
	defer rows.Close()

	var commits []*types.Commit
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan commit: %w", err)
		}
		commits = append(commits, c)
	}
	return commits, rows.Err()
}

func scanCommit(row rowScanner) (*types.Commit, error) {
	var (
		c              types.Commit
		skills, emb    sql.NullString
		impact         string
		triggered      int
		timestampNanos int64
	)
	if err := row.Scan(&c.ID, &c.Hash, &c.Message, &c.DiffSummary, &c.Repository, &c.Branch,
		&c.AuthorEmail, &c.AuthorName, &c.UserID, &c.FilesChanged,
		&c.LinesAdded, &c.LinesDeleted, &c.LinesModified,
		&c.Summary, &skills, &impact, &emb, &c.LinkedTaskID,
		&triggered, &timestampNanos); err != nil {
		return nil, err
	}
	c.Impact = types.Impact(impact)
	c.TriggeredProfileUpdate = triggered != 0
	if err := decodeJSON(skills, &c.ExtractedSkills); err != nil {
		return nil, err
	}
	if err := decodeJSON(emb, &c.SummaryEmbedding); err != nil {
		return nil, err
	}
	c.Timestamp = fromNanos(timestampNanos)
	return &c, nil
}
