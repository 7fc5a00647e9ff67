package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brazeiro63/vovo-achados-portal/types"
	"github.com/google/uuid"
)

// UserRepository persists identities, their sessions and single-use link tokens.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, email_confirmed_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (types.User, error) {
	var user types.User
	var confirmed sql.NullTime
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&confirmed,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	if confirmed.Valid {
		t := confirmed.Time
		user.EmailConfirmedAt = &t
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email))))
}

// Create inserts the user and its profile in one transaction. The profile
// always starts with the "user" role.
func (r *UserRepository) Create(ctx context.Context, user types.User, profile types.Profile) (types.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.User{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const insertUser = `
		INSERT INTO users (id, email, password_hash, email_confirmed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.ExecContext(ctx, insertUser,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.EmailConfirmedAt,
		user.CreatedAt,
		user.UpdatedAt,
	); err != nil {
		return types.User{}, mapWriteError(err)
	}

	const insertProfile = `
		INSERT INTO profiles (id, username, full_name, avatar_url, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.ExecContext(ctx, insertProfile,
		user.ID,
		nullString(profile.Username),
		nullString(profile.FullName),
		nullString(profile.AvatarURL),
		types.RoleUser,
		now,
		now,
	); err != nil {
		return types.User{}, fmt.Errorf("create profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const query = `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`
	return execOne(ctx, r.db, query, passwordHash, time.Now(), id)
}

func (r *UserRepository) ConfirmEmail(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE users
		SET email_confirmed_at = COALESCE(email_confirmed_at, $1),
			updated_at = $1
		WHERE id = $2`
	return execOne(ctx, r.db, query, at, id)
}

// Delete removes the user; profile, sessions and tokens cascade.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	return execOne(ctx, r.db, `DELETE FROM users WHERE id = $1`, id)
}

func (r *UserRepository) CreateSession(ctx context.Context, session types.SessionRecord) error {
	const query = `
		INSERT INTO auth_sessions (id, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, query, session.ID, session.UserID, session.CreatedAt, session.ExpiresAt)
	return err
}

func (r *UserRepository) GetSession(ctx context.Context, id string) (types.SessionRecord, error) {
	const query = `SELECT id, user_id, created_at, expires_at FROM auth_sessions WHERE id = $1`
	var session types.SessionRecord
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID,
		&session.UserID,
		&session.CreatedAt,
		&session.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.SessionRecord{}, ErrNotFound
		}
		return types.SessionRecord{}, err
	}
	return session, nil
}

func (r *UserRepository) DeleteSession(ctx context.Context, id string) error {
	return execOne(ctx, r.db, `DELETE FROM auth_sessions WHERE id = $1`, id)
}

// DeleteUserSessions removes every session of the user and returns their ids.
func (r *UserRepository) DeleteUserSessions(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `DELETE FROM auth_sessions WHERE user_id = $1 RETURNING id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *UserRepository) CreateToken(ctx context.Context, token types.AuthToken) error {
	const query = `
		INSERT INTO auth_tokens (token_hash, kind, user_id, expires_at)
		VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, query, token.Hash, string(token.Kind), token.UserID, token.ExpiresAt)
	return mapWriteError(err)
}

// ConsumeToken marks an unused, unexpired token as used and returns its user.
func (r *UserRepository) ConsumeToken(ctx context.Context, hash string, kind types.TokenKind, now time.Time) (string, error) {
	const query = `
		UPDATE auth_tokens
		SET used_at = $1
		WHERE token_hash = $2 AND kind = $3 AND used_at IS NULL AND expires_at > $1
		RETURNING user_id`
	var userID string
	if err := r.db.QueryRowContext(ctx, query, now, hash, string(kind)).Scan(&userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return userID, nil
}

// PurgeExpired deletes expired sessions and expired or used link tokens.
func (r *UserRepository) PurgeExpired(ctx context.Context, now time.Time) (sessions, tokens int64, err error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, 0, fmt.Errorf("purge sessions: %w", err)
	}
	if sessions, err = result.RowsAffected(); err != nil {
		return 0, 0, err
	}

	result, err = r.db.ExecContext(ctx, `DELETE FROM auth_tokens WHERE expires_at <= $1 OR used_at IS NOT NULL`, now)
	if err != nil {
		return sessions, 0, fmt.Errorf("purge tokens: %w", err)
	}
	tokens, err = result.RowsAffected()
	return sessions, tokens, err
}

func execOne(ctx context.Context, db *sql.DB, query string, args ...any) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
