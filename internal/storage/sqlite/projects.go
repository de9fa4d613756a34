package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/coresight/coresight/internal/types"
)

// CreateProject inserts a new project
func (s *Store) CreateProject(ctx context.Context, project *types.Project) error {
	if err := project.Validate(); err != nil {
		return fmt.Errorf("invalid project: %w", err)
	}
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	project.CreatedAt = s.now()

	contributors, err := encodeStrings(project.ContributorIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, total_budget, contributor_ids, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, project.ID, project.Name, project.Description, project.TotalBudget, contributors, toNanos(project.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

// GetProject returns nil, nil when the project does not exist
func (s *Store) GetProject(ctx context.Context, id string) (*types.Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, total_budget, contributor_ids, created_at
		FROM projects WHERE id = ?
	`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// ListProjects returns projects in creation order
func (s *Store) ListProjects(ctx context.Context) ([]*types.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, total_budget, contributor_ids, created_at
		FROM projects ORDER BY created_at, rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*types.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func scanProject(row rowScanner) (*types.Project, error) {
	var (
		p            types.Project
		contributors sql.NullString
		createdAt    int64
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.TotalBudget, &contributors, &createdAt); err != nil {
		return nil, err
	}
	if err := decodeJSON(contributors, &p.ContributorIDs); err != nil {
		return nil, err
	}
	p.CreatedAt = fromNanos(createdAt)
	return &p, nil
}
