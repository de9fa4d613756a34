package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/coresight/coresight/internal/storage"
	"github.com/coresight/coresight/internal/types"
)

// CreateJobRequisition stores a requisition
func (s *Store) CreateJobRequisition(ctx context.Context, req *types.JobRequisition) error {
	if req.Status == "" {
		req.Status = types.RequisitionPending
	}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid job requisition: %w", err)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := s.now()
	req.CreatedAt, req.UpdatedAt = now, now

	required, err := encodeStrings(req.RequiredSkills)
	if err != nil {
		return err
	}
	missing, err := encodeStrings(req.MissingSkills)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO job_requisitions (id, task_id, suggested_title, description, required_skills,
			missing_skills, required_experience_years, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, req.ID, req.TaskID, req.SuggestedTitle, req.Description, required, missing,
		req.RequiredExperienceYears, string(req.Status), toNanos(now), toNanos(now))
	if err != nil {
		return fmt.Errorf("failed to insert job requisition: %w", err)
	}
	return nil
}

// ListJobRequisitions returns matching requisitions in creation order
func (s *Store) ListJobRequisitions(ctx context.Context, filter storage.RequisitionFilter) ([]*types.JobRequisition, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.TaskID != "" {
		clauses = append(clauses, "task_id = ?")
		args = append(args, filter.TaskID)
	}
	query := `SELECT id, task_id, suggested_title, description, required_skills, missing_skills,
		required_experience_years, status, created_at, updated_at FROM job_requisitions`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list job requisitions: %w", err)
	}
	defer rows.Close()

	var reqs []*types.JobRequisition
	for rows.Next() {
		var (
			j                    types.JobRequisition
			required, missing    sql.NullString
			status               string
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&j.ID, &j.TaskID, &j.SuggestedTitle, &j.Description, &required, &missing,
			&j.RequiredExperienceYears, &status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job requisition: %w", err)
		}
		if err := decodeJSON(required, &j.RequiredSkills); err != nil {
			return nil, err
		}
		if err := decodeJSON(missing, &j.MissingSkills); err != nil {
			return nil, err
		}
		j.Status = types.RequisitionStatus(status)
		j.CreatedAt = fromNanos(createdAt)
		j.UpdatedAt = fromNanos(updatedAt)
		reqs = append(reqs, &j)
	}
	return reqs, rows.Err()
}

// UpdateJobRequisitionStatus moves a requisition through hiring
func (s *Store) UpdateJobRequisitionStatus(ctx context.Context, id string, status types.RequisitionStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid status: %s", status)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE job_requisitions SET status = ?, updated_at = ? WHERE id = ?",
		string(status), toNanos(s.now()), id)
	if err != nil {
		return fmt.Errorf("failed to update job requisition: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job requisition %s: %w", id, storage.ErrNotFound)
	}
	return nil
}
