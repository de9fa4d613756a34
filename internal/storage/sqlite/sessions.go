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

// CreateWorkSession stores a session
func (s *Store) CreateWorkSession(ctx context.Context, session *types.WorkSession) error {
	return insertSession(ctx, s.db, session)
}

func insertSession(ctx context.Context, q queryer, session *types.WorkSession) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("invalid work session: %w", err)
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO work_sessions (id, task_id, user_id, start_time, end_time)
		VALUES (?, ?, ?, ?, ?)
	`, session.ID, session.TaskID, session.UserID, toNanos(session.StartTime), nullNanos(session.EndTime))
	if err != nil {
		return fmt.Errorf("failed to insert work session: %w", err)
	}
	return nil
}

// CloseWorkSession sets the end time of an open session
func (s *Store) CloseWorkSession(ctx context.Context, id string, end time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			start  int64
			ending sql.NullInt64
		)
		err := tx.QueryRowContext(ctx, "SELECT start_time, end_time FROM work_sessions WHERE id = ?", id).Scan(&start, &ending)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("work session %s: %w", id, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to read work session: %w", err)
		}
		if ending.Valid {
			return fmt.Errorf("work session %s is already closed", id)
		}
		if !end.After(fromNanos(start)) {
			return fmt.Errorf("end time must be after start time for session %s", id)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE work_sessions SET end_time = ? WHERE id = ?", toNanos(end), id); err != nil {
			return fmt.Errorf("failed to close work session: %w", err)
		}
		return nil
	})
}

// ListWorkSessions returns matching sessions ordered by start time
func (s *Store) ListWorkSessions(ctx context.Context, filter storage.SessionFilter) ([]*types.WorkSession, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.TaskID != "" {
		clauses = append(clauses, "task_id = ?")
		args = append(args, filter.TaskID)
	}
	if filter.Since != nil {
		clauses = append(clauses, "start_time >= ?")
		args = append(args, toNanos(*filter.Since))
	}
	if filter.Until != nil {
		clauses = append(clauses, "start_time < ?")
		args = append(args, toNanos(*filter.Until))
	}
	if filter.ClosedOnly {
		clauses = append(clauses, "end_time IS NOT NULL")
	}

	query := "SELECT id, task_id, user_id, start_time, end_time FROM work_sessions"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY start_time, rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list work sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.WorkSession
	for rows.Next() {
		var (
			ws    types.WorkSession
			start int64
			end   sql.NullInt64
		)
		if err := rows.Scan(&ws.ID, &ws.TaskID, &ws.UserID, &start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan work session: %w", err)
		}
		ws.StartTime = fromNanos(start)
		ws.EndTime = fromNullNanos(end)
		sessions = append(sessions, &ws)
	}
	return sessions, rows.Err()
}
