// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listkeep/listkeep/internal/auth"
	"github.com/listkeep/listkeep/pkg/errutil"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func testUser() *auth.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &auth.User{
		ID:           ulid.Make(),
		Username:     "alice",
		PasswordHash: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		Items:        []auth.Item{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

var (
	userCols = []string{"id", "username", "password_hash", "version", "created_at", "updated_at"}
	itemCols = []string{"id", "name", "created_at"}
)

func TestUserRepository_Create(t *testing.T) {
	t.Run("inserts user and items", func(t *testing.T) {
		mock := newMock(t)
		user := testUser()
		item := auth.Item{ID: ulid.Make(), Name: "milk", CreatedAt: user.CreatedAt}
		user.Items = []auth.Item{item}

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(user.ID.String(), "alice", user.PasswordHash, int64(0), user.CreatedAt, user.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`INSERT INTO items`).
			WithArgs(item.ID.String(), user.ID.String(), "milk", item.CreatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		require.NoError(t, NewUserRepository(mock).Create(context.Background(), user))
	})

	t.Run("duplicate username", func(t *testing.T) {
		mock := newMock(t)
		user := testUser()

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO users`).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
		mock.ExpectRollback()

		err := NewUserRepository(mock).Create(context.Background(), user)
		require.ErrorIs(t, err, auth.ErrDuplicateUsername)
		errutil.AssertErrorCode(t, err, auth.CodeDuplicateUsername)
	})

	t.Run("other database error", func(t *testing.T) {
		mock := newMock(t)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO users`).WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		err := NewUserRepository(mock).Create(context.Background(), testUser())
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrDuplicateUsername)
		errutil.AssertErrorCode(t, err, auth.CodePersistence)
	})
}

func TestUserRepository_GetByUsername(t *testing.T) {
	t.Run("loads user with items in id order", func(t *testing.T) {
		mock := newMock(t)
		user := testUser()
		first, second := ulid.Make(), ulid.Make()

		mock.ExpectQuery(`SELECT .+ FROM users WHERE username = \$1`).
			WithArgs("alice").
			WillReturnRows(pgxmock.NewRows(userCols).
				AddRow(user.ID.String(), "alice", user.PasswordHash, int64(4), user.CreatedAt, user.UpdatedAt))
		mock.ExpectQuery(`SELECT id, name, created_at FROM items`).
			WithArgs(user.ID.String()).
			WillReturnRows(pgxmock.NewRows(itemCols).
				AddRow(first.String(), "milk", user.CreatedAt).
				AddRow(second.String(), "eggs", user.CreatedAt))

		got, err := NewUserRepository(mock).GetByUsername(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.Equal(t, int64(4), got.Version)
		require.Len(t, got.Items, 2)
		assert.Equal(t, first, got.Items[0].ID)
		assert.Equal(t, "eggs", got.Items[1].Name)
	})

	t.Run("not found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM users WHERE username`).
			WithArgs("nobody").
			WillReturnRows(pgxmock.NewRows(userCols))

		_, err := NewUserRepository(mock).GetByUsername(context.Background(), "nobody")
		require.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, auth.CodeUserNotFound)
	})

	t.Run("query failure is not a miss", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM users WHERE username`).
			WithArgs("alice").
			WillReturnError(errors.New("timeout"))

		_, err := NewUserRepository(mock).GetByUsername(context.Background(), "alice")
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, auth.CodePersistence)
	})
}

func TestUserRepository_GetByID_NoItems(t *testing.T) {
	mock := newMock(t)
	user := testUser()

	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs(user.ID.String()).
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow(user.ID.String(), "alice", user.PasswordHash, int64(0), user.CreatedAt, user.UpdatedAt))
	mock.ExpectQuery(`FROM items`).
		WithArgs(user.ID.String()).
		WillReturnRows(pgxmock.NewRows(itemCols))

	got, err := NewUserRepository(mock).GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.Items)
	assert.Empty(t, got.Items)
}

func TestUserRepository_Save(t *testing.T) {
	t.Run("rewrites items and bumps version", func(t *testing.T) {
		mock := newMock(t)
		user := testUser()
		user.Version = 2
		item := auth.Item{ID: ulid.Make(), Name: "bread", CreatedAt: user.CreatedAt}
		user.Items = []auth.Item{item}

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE users`).
			WithArgs(user.ID.String(), "alice", user.PasswordHash, pgxmock.AnyArg(), int64(2)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`DELETE FROM items WHERE user_id`).
			WithArgs(user.ID.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 3))
		mock.ExpectExec(`INSERT INTO items`).
			WithArgs(item.ID.String(), user.ID.String(), "bread", item.CreatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		require.NoError(t, NewUserRepository(mock).Save(context.Background(), user))
		assert.Equal(t, int64(3), user.Version)
	})

	t.Run("stale version", func(t *testing.T) {
		mock := newMock(t)
		user := testUser()
		user.Version = 1

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE users`).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT version FROM users`).
			WithArgs(user.ID.String()).
			WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(5)))
		mock.ExpectRollback()

		err := NewUserRepository(mock).Save(context.Background(), user)
		require.ErrorIs(t, err, auth.ErrConflict)
		errutil.AssertErrorCode(t, err, auth.CodeVersionConflict)
		assert.Equal(t, int64(1), user.Version)
	})

	t.Run("deleted user", func(t *testing.T) {
		mock := newMock(t)
		user := testUser()

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE users`).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT version FROM users`).
			WithArgs(user.ID.String()).
			WillReturnRows(pgxmock.NewRows([]string{"version"}))
		mock.ExpectRollback()

		err := NewUserRepository(mock).Save(context.Background(), user)
		require.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestUserRepository_Delete(t *testing.T) {
	mock := newMock(t)
	id := ulid.Make()

	mock.ExpectExec(`DELETE FROM users`).WithArgs(id.String()).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM users`).WithArgs(id.String()).WillReturnResult(pgxmock.NewResult("DELETE", 0))

	repo := NewUserRepository(mock)
	require.NoError(t, repo.Delete(context.Background(), id))
	require.ErrorIs(t, repo.Delete(context.Background(), id), auth.ErrNotFound)
}

func TestUserRepository_AppendItem(t *testing.T) {
	userID := ulid.Make()
	item := auth.Item{ID: ulid.Make(), Name: "milk", CreatedAt: time.Now().UTC()}

	tests := []struct {
		name     string
		setup    func(pgxmock.PgxPoolIface)
		wantErr  error
		wantCode string
	}{
		{
			name: "appends",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO items`).
					WithArgs(item.ID.String(), userID.String(), "milk", item.CreatedAt, pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "missing user",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO items`).WillReturnResult(pgxmock.NewResult("INSERT", 0))
			},
			wantErr:  auth.ErrNotFound,
			wantCode: auth.CodeUserNotFound,
		},
		{
			name: "database error",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO items`).WillReturnError(errors.New("disk full"))
			},
			wantCode: auth.CodePersistence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			tt.setup(mock)

			err := NewUserRepository(mock).AppendItem(context.Background(), userID, item)
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.wantCode)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestUserRepository_RemoveItem(t *testing.T) {
	userID, itemID := ulid.Make(), ulid.Make()

	t.Run("removes owned item", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`DELETE FROM items WHERE id = \$1 AND user_id = \$2`).
			WithArgs(itemID.String(), userID.String(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		removed, err := NewUserRepository(mock).RemoveItem(context.Background(), userID, itemID)
		require.NoError(t, err)
		assert.True(t, removed)
	})

	t.Run("foreign or unknown item is a no-op", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`DELETE FROM items`).
			WithArgs(itemID.String(), userID.String(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		removed, err := NewUserRepository(mock).RemoveItem(context.Background(), userID, itemID)
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("database error", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`DELETE FROM items`).WillReturnError(errors.New("gone"))

		_, err := NewUserRepository(mock).RemoveItem(context.Background(), userID, itemID)
		errutil.AssertErrorCode(t, err, auth.CodePersistence)
	})
}
