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

const taskColumns = `id, external_id, project_id, sprint_id, title, description,
	description_embedding, required_skills, skill_embedding, status, priority,
	assignee_ids, requires_job_posting, activity_log, version, created_at, updated_at`

// CreateTask inserts a new task
func (s *Store) CreateTask(ctx context.Context, task *types.Task) error {
	return insertTask(ctx, s.db, task, s.now())
}

func insertTask(ctx context.Context, q queryer, task *types.Task, now time.Time) error {
	if task.Status == "" {
		task.Status = types.StatusTodo
	}
	if task.Priority == "" {
		task.Priority = types.PriorityMedium
	}
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	task.Version = 1
	task.CreatedAt, task.UpdatedAt = now, now

	args, err := taskArgs(task)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, append(args, toNanos(now), toNanos(now))...)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// taskArgs returns every column except the two timestamps.
func taskArgs(task *types.Task) ([]any, error) {
	descEmb, err := encodeEmbedding(task.DescriptionEmbedding)
	if err != nil {
		return nil, err
	}
	skillEmb, err := encodeEmbedding(task.SkillEmbedding)
	if err != nil {
		return nil, err
	}
	skills, err := encodeStrings(task.RequiredSkills)
	if err != nil {
		return nil, err
	}
	assignees, err := encodeStrings(task.AssigneeIDs)
	if err != nil {
		return nil, err
	}
	log := task.ActivityLog
	if log == nil {
		log = []types.ActivityEntry{}
	}
	activity, err := encodeJSON(log)
	if err != nil {
		return nil, err
	}
	return []any{
		task.ID, task.ExternalID, task.ProjectID, task.SprintID, task.Title, task.Description,
		descEmb, skills, skillEmb, string(task.Status), string(task.Priority),
		assignees, boolInt(task.RequiresJobPosting), activity, task.Version,
	}, nil
}

// writeTask persists every mutable column iff the stored version equals
// expected, bumping the version.
func (s *Store) writeTask(ctx context.Context, tx *sql.Tx, task *types.Task, expected int64) error {
	task.Version = expected + 1
	task.UpdatedAt = s.now()
	args, err := taskArgs(task)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE tasks SET
			description_embedding = ?, required_skills = ?, skill_embedding = ?,
			status = ?, priority = ?, assignee_ids = ?, requires_job_posting = ?,
			activity_log = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`, args[6], args[7], args[8], args[9], args[10], args[11], args[12], args[13],
		task.Version, toNanos(task.UpdatedAt), task.ID, expected)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFoundOrConflict(ctx, tx, "tasks", task.ID, expected)
	}
	return nil
}

// GetTask returns nil, nil when the task does not exist
func (s *Store) GetTask(ctx context.Context, id string) (*types.Task, error) {
	return getTask(ctx, s.db, id)
}

func getTask(ctx context.Context, q queryer, id string) (*types.Task, error) {
	row := q.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

func taskWhere(filter storage.TaskFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.OpenOnly {
		clauses = append(clauses, "status != ?")
		args = append(args, string(types.StatusDone))
	}
	if filter.ProjectID != "" {
		clauses = append(clauses, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.AssigneeID != "" {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM json_each(tasks.assignee_ids) WHERE value = ?)")
		args = append(args, filter.AssigneeID)
	}
	if filter.RequiresJobPosting != nil {
		clauses = append(clauses, "requires_job_posting = ?")
		args = append(args, boolInt(*filter.RequiresJobPosting))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListTasks returns matching tasks in creation order
func (s *Store) ListTasks(ctx context.Context, filter storage.TaskFilter) ([]*types.Task, error) {
	where, args := taskWhere(filter)
	query := "SELECT " + taskColumns + " FROM tasks" + where + " ORDER BY created_at, rowid"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CountTasks counts matching tasks
func (s *Store) CountTasks(ctx context.Context, filter storage.TaskFilter) (int, error) {
	where, args := taskWhere(filter)
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return n, nil
}

// mutateTask runs fn against the current row inside a write transaction.
func (s *Store) mutateTask(ctx context.Context, id string, fn func(t *types.Task) error) (*types.Task, error) {
	var out *types.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := s.mutateTaskTx(ctx, tx, id, fn)
		out = t
		return err
	})
	return out, err
}

func (s *Store) mutateTaskTx(ctx context.Context, tx *sql.Tx, id string, fn func(t *types.Task) error) (*types.Task, error) {
	t, err := getTask(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("task %s: %w", id, storage.ErrNotFound)
	}
	expected := t.Version
	if err := fn(t); err != nil {
		return nil, err
	}
	if err := s.writeTask(ctx, tx, t, expected); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateTaskStatus sets the status and logs the change
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status types.Status) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid status: %s", status)
	}
	_, err := s.mutateTask(ctx, id, func(t *types.Task) error {
		t.ActivityLog = append(t.ActivityLog, types.ActivityEntry{
			Timestamp: s.now(),
			Kind:      types.ActivityStatus,
			Message:   fmt.Sprintf("status changed from %s to %s", t.Status, status),
		})
		t.Status = status
		return nil
	})
	return err
}

// MergeIssueIntoTask applies a duplicate merge as a compare-and-set and
// records the issue in the same transaction
func (s *Store) MergeIssueIntoTask(ctx context.Context, issue *types.Issue, taskID string, expectedVersion int64, merge storage.TaskMerge) (*types.Task, error) {
	merged := storage.MarkMerged(issue, taskID)
	var out *types.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		t, err := s.mutateTaskTx(ctx, tx, taskID, func(t *types.Task) error {
			if t.Version != expectedVersion {
				return fmt.Errorf("task %s at version %d, expected %d: %w", taskID, t.Version, expectedVersion, storage.ErrConcurrentUpdate)
			}
			merge.Apply(t, now)
			return nil
		})
		if err != nil {
			return err
		}
		if err := upsertIssue(ctx, tx, merged, now); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	*issue = *merged
	return out, nil
}

// AssignTask adds the assignee and opens the session atomically
func (s *Store) AssignTask(ctx context.Context, taskID, userID string, session *types.WorkSession) (*types.Task, error) {
	var out *types.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := getTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if t == nil {
			return fmt.Errorf("task %s: %w", taskID, storage.ErrNotFound)
		}
		if t.Status == types.StatusDone {
			return fmt.Errorf("task %s: %w", taskID, storage.ErrTaskClosed)
		}
		u, err := getUser(ctx, tx, "id = ?", userID)
		if err != nil {
			return err
		}
		if u == nil {
			return fmt.Errorf("user %s: %w", userID, storage.ErrNotFound)
		}

		now := s.now()
		expected := t.Version
		if !t.HasAssignee(userID) {
			t.AssigneeIDs = append(t.AssigneeIDs, userID)
		}
		if t.Status == types.StatusTodo {
			t.Status = types.StatusInProgress
		}
		t.RequiresJobPosting = false
		t.ActivityLog = append(t.ActivityLog, types.ActivityEntry{
			Timestamp: now,
			Kind:      types.ActivityAssigned,
			Message:   "assigned to " + userID,
			SourceID:  userID,
		})
		if err := s.writeTask(ctx, tx, t, expected); err != nil {
			return err
		}

		if session != nil {
			session.TaskID, session.UserID = taskID, userID
			if session.StartTime.IsZero() {
				session.StartTime = now
			}
			if err := insertSession(ctx, tx, session); err != nil {
				return err
			}
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRequiresJobPosting flags a task nobody could take
func (s *Store) MarkRequiresJobPosting(ctx context.Context, taskID, reason string) error {
	_, err := s.mutateTask(ctx, taskID, func(t *types.Task) error {
		t.RequiresJobPosting = true
		t.ActivityLog = append(t.ActivityLog, types.ActivityEntry{
			Timestamp: s.now(),
			Kind:      types.ActivityJobPosted,
			Message:   reason,
		})
		return nil
	})
	return err
}

// OpenAssignmentCounts counts open tasks per assignee
func (s *Store) OpenAssignmentCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.value, COUNT(*)
		FROM tasks, json_each(tasks.assignee_ids) AS a
		WHERE tasks.status != ?
		GROUP BY a.value
	`, string(types.StatusDone))
	if err != nil {
		return nil, fmt.Errorf("failed to count assignments: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			userID string
			n      int
		)
		if err := rows.Scan(&userID, &n); err != nil {
			return nil, fmt.Errorf("failed to scan assignment count: %w", err)
		}
		counts[userID] = n
	}
	return counts, rows.Err()
}

func scanTask(row rowScanner) (*types.Task, error) {
	var (
		t                    types.Task
		descEmb, skillEmb    sql.NullString
		skills, assignees    sql.NullString
		activity             sql.NullString
		status, priority     string
		requiresJob          int
		createdAt, updatedAt int64
	)
	if err := row.Scan(&t.ID, &t.ExternalID, &t.ProjectID, &t.SprintID, &t.Title, &t.Description,
		&descEmb, &skills, &skillEmb, &status, &priority,
		&assignees, &requiresJob, &activity, &t.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.Status = types.Status(status)
	t.Priority = types.Priority(priority)
	t.RequiresJobPosting = requiresJob != 0
	for _, d := range []struct {
		raw sql.NullString
		dst any
	}{
		{descEmb, &t.DescriptionEmbedding},
		{skillEmb, &t.SkillEmbedding},
		{skills, &t.RequiredSkills},
		{assignees, &t.AssigneeIDs},
		{activity, &t.ActivityLog},
	} {
		if err := decodeJSON(d.raw, d.dst); err != nil {
			return nil, err
		}
	}
	if len(t.AssigneeIDs) == 0 {
		t.AssigneeIDs = nil
	}
	if len(t.ActivityLog) == 0 {
		t.ActivityLog = nil
	}
	t.CreatedAt = fromNanos(createdAt)
	t.UpdatedAt = fromNanos(updatedAt)
	return &t, nil
}
