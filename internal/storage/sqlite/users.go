package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/coresight/coresight/internal/storage"
	"github.com/coresight/coresight/internal/types"
)

const userColumns = `id, name, email, skills, hourly_rate, work_profile_text,
	profile_embedding, skill_embedding, version, created_at, updated_at`

// CreateUser inserts a new user
func (s *Store) CreateUser(ctx context.Context, user *types.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("invalid user: %w", err)
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := s.now()
	user.CreatedAt, user.UpdatedAt = now, now
	if user.Version == 0 {
		user.Version = 1
	}

	skills, err := encodeStrings(user.Skills)
	if err != nil {
		return err
	}
	profileEmb, err := encodeEmbedding(user.ProfileEmbedding)
	if err != nil {
		return err
	}
	skillEmb, err := encodeEmbedding(user.SkillEmbedding)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, user.ID, user.Name, user.Email, skills, user.HourlyRate, user.WorkProfileText,
		profileEmb, skillEmb, user.Version, toNanos(now), toNanos(now))
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUser returns nil, nil when the user does not exist
func (s *Store) GetUser(ctx context.Context, id string) (*types.User, error) {
	return getUser(ctx, s.db, "id = ?", id)
}

// GetUserByEmail matches case-insensitively
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	return getUser(ctx, s.db, "email = ?", strings.TrimSpace(email))
}

func getUser(ctx context.Context, q queryer, where string, arg any) (*types.User, error) {
	row := q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// ListUsers returns users in creation order
func (s *Store) ListUsers(ctx context.Context) ([]*types.User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at, rowid")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*types.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUserProfile is a compare-and-set on the user's version
func (s *Store) UpdateUserProfile(ctx context.Context, id string, expectedVersion int64, update storage.ProfileUpdate) (*types.User, error) {
	skills, err := encodeStrings(update.Skills)
	if err != nil {
		return nil, err
	}
	profileEmb, err := encodeEmbedding(update.ProfileEmbedding)
	if err != nil {
		return nil, err
	}
	skillEmb, err := encodeEmbedding(update.SkillEmbedding)
	if err != nil {
		return nil, err
	}

	var updated *types.User
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE users
			SET skills = ?, work_profile_text = ?, profile_embedding = ?, skill_embedding = ?,
				version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?
		`, skills, update.WorkProfileText, profileEmb, skillEmb, toNanos(s.now()), id, expectedVersion)
		if err != nil {
			return fmt.Errorf("failed to update user profile: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFoundOrConflict(ctx, tx, "users", id, expectedVersion)
		}
		if update.Commit != nil {
			if err := saveCommit(ctx, tx, update.Commit, s.now()); err != nil {
				return err
			}
		}
		updated, err = getUser(ctx, tx, "id = ?", id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func scanUser(row rowScanner) (*types.User, error) {
	var (
		u                    types.User
		skills               sql.NullString
		profileEmb, skillEmb sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &skills, &u.HourlyRate, &u.WorkProfileText,
		&profileEmb, &skillEmb, &u.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := decodeJSON(skills, &u.Skills); err != nil {
		return nil, err
	}
	if err := decodeJSON(profileEmb, &u.ProfileEmbedding); err != nil {
		return nil, err
	}
	if err := decodeJSON(skillEmb, &u.SkillEmbedding); err != nil {
		return nil, err
	}
	u.CreatedAt = fromNanos(createdAt)
	u.UpdatedAt = fromNanos(updatedAt)
	return &u, nil
}
