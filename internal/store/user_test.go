package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brazeiro63/vovo-achados-portal/types"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_Create_InsertsUserAndProfile(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs(sqlmock.AnyArg(), "vovo@example.com", "hash", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO profiles")).
		WithArgs(sqlmock.AnyArg(), "vovo", nil, nil, types.RoleUser, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	user, err := NewUserRepository(db).Create(context.Background(),
		types.User{Email: "  Vovo@Example.com ", PasswordHash: "hash"},
		types.Profile{Username: "vovo", Role: types.RoleAdmin},
	)
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "vovo@example.com", user.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Create_DuplicateEmail(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err := NewUserRepository(db).Create(context.Background(), types.User{Email: "a@b.c"}, types.Profile{})
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByEmail(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
		WithArgs("vovo@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "email_confirmed_at", "created_at", "updated_at"}).
			AddRow("u1", "vovo@example.com", "hash", now, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)

	repo := NewUserRepository(db)
	user, err := repo.GetByEmail(context.Background(), "VOVO@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.True(t, user.Confirmed())

	_, err = repo.GetByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepository_DeleteUserSessions(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM auth_sessions WHERE user_id = $1 RETURNING id")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s1").AddRow("s2"))

	ids, err := NewUserRepository(db).DeleteUserSessions(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, ids)
}

func TestUserRepository_ConsumeToken(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE auth_tokens")).
		WithArgs(now, "hash-1", "recovery").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1"))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE auth_tokens")).
		WithArgs(now, "hash-1", "recovery").
		WillReturnError(sql.ErrNoRows)

	repo := NewUserRepository(db)
	userID, err := repo.ConsumeToken(context.Background(), "hash-1", types.TokenRecovery, now)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	_, err = repo.ConsumeToken(context.Background(), "hash-1", types.TokenRecovery, now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepository_GetSession_Error(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM auth_sessions WHERE id = $1")).
		WillReturnError(errors.New("connection reset"))

	_, err := NewUserRepository(db).GetSession(context.Background(), "s1")
	assert.EqualError(t, err, "connection reset")
}

func TestUserRepository_PurgeExpired(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM auth_sessions WHERE expires_at <= $1")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM auth_tokens")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 2))

	sessions, tokens, err := NewUserRepository(db).PurgeExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), sessions)
	assert.Equal(t, int64(2), tokens)
	assert.NoError(t, mock.ExpectationsWereMet())
}
