// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/listkeep/listkeep/internal/auth"
	"github.com/listkeep/listkeep/internal/items"
)

const userColumns = `id, username, password_hash, version, created_at, updated_at`

// UserRepository implements auth.UserRepository and items.Store using PostgreSQL.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create stores a new user and any items it already holds.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return oops.Code(auth.CodePersistence).With("operation", "begin create user").Wrap(err)
	}
	defer rollback(ctx, tx)

	_, err = tx.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		user.ID.String(),
		user.Username,
		user.PasswordHash,
		user.Version,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code(auth.CodeDuplicateUsername).
				With("username", user.Username).
				Wrap(auth.ErrDuplicateUsername)
		}
		return oops.Code(auth.CodePersistence).
			With("operation", "insert user").
			With("username", user.Username).
			Wrap(err)
	}

	if err := insertItems(ctx, tx, user.ID, user.Items); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code(auth.CodePersistence).With("operation", "commit create user").Wrap(err)
	}
	return nil
}

// GetByID retrieves a user and its items.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code(auth.CodePersistence).
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}

	if user.Items, err = r.loadItems(ctx, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

// GetByUsername retrieves a user by exact, case-sensitive username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(auth.CodeUserNotFound).
			With("username", username).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code(auth.CodePersistence).
			With("operation", "get user by username").
			With("username", username).
			Wrap(err)
	}

	if user.Items, err = r.loadItems(ctx, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

// Save rewrites the user row and its item collection in one transaction,
// guarded by the version the caller read.
func (r *UserRepository) Save(ctx context.Context, user *auth.User) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return oops.Code(auth.CodePersistence).With("operation", "begin save user").Wrap(err)
	}
	defer rollback(ctx, tx)

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx, `
		UPDATE users
		SET username = $2, password_hash = $3, version = version + 1, updated_at = $4
		WHERE id = $1 AND version = $5
	`, user.ID.String(), user.Username, user.PasswordHash, now, user.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code(auth.CodeDuplicateUsername).
				With("username", user.Username).
				Wrap(auth.ErrDuplicateUsername)
		}
		return oops.Code(auth.CodePersistence).
			With("operation", "update user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return r.saveMissReason(ctx, tx, user)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM items WHERE user_id = $1`, user.ID.String()); err != nil {
		return oops.Code(auth.CodePersistence).
			With("operation", "clear items").
			With("id", user.ID.String()).
			Wrap(err)
	}
	if err := insertItems(ctx, tx, user.ID, user.Items); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code(auth.CodePersistence).With("operation", "commit save user").Wrap(err)
	}

	user.Version++
	user.UpdatedAt = now
	return nil
}

// saveMissReason distinguishes a deleted user from a stale version.
func (r *UserRepository) saveMissReason(ctx context.Context, tx pgx.Tx, user *auth.User) error {
	var current int64
	err := tx.QueryRow(ctx, `SELECT version FROM users WHERE id = $1`, user.ID.String()).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code(auth.CodeUserNotFound).
			With("id", user.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return oops.Code(auth.CodePersistence).
			With("operation", "read user version").
			With("id", user.ID.String()).
			Wrap(err)
	}
	return oops.Code(auth.CodeVersionConflict).
		With("id", user.ID.String()).
		With("expected_version", user.Version).
		With("actual_version", current).
		Wrap(auth.ErrConflict)
}

// Delete removes a user. Items and sessions go with it via ON DELETE CASCADE.
func (r *UserRepository) Delete(ctx context.Context, id ulid.ULID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code(auth.CodePersistence).
			With("operation", "delete user").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// AppendItem inserts item for userID and bumps the user's version in a
// single statement. A missing user inserts nothing.
func (r *UserRepository) AppendItem(ctx context.Context, userID ulid.ULID, item auth.Item) error {
	tag, err := r.db.Exec(ctx, `
		WITH owner AS (
			UPDATE users SET version = version + 1, updated_at = $5
			WHERE id = $2
			RETURNING id
		)
		INSERT INTO items (id, user_id, name, created_at)
		SELECT $1, owner.id, $3, $4 FROM owner
	`, item.ID.String(), userID.String(), item.Name, item.CreatedAt, time.Now().UTC())
	if err != nil {
		return oops.Code(auth.CodePersistence).
			With("operation", "append item").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code(auth.CodeUserNotFound).
			With("user_id", userID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// RemoveItem deletes itemID only when it belongs to userID.
func (r *UserRepository) RemoveItem(ctx context.Context, userID, itemID ulid.ULID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		WITH removed AS (
			DELETE FROM items WHERE id = $1 AND user_id = $2
			RETURNING user_id
		)
		UPDATE users SET version = version + 1, updated_at = $3
		WHERE id IN (SELECT user_id FROM removed)
	`, itemID.String(), userID.String(), time.Now().UTC())
	if err != nil {
		return false, oops.Code(auth.CodePersistence).
			With("operation", "remove item").
			With("user_id", userID.String()).
			With("item_id", itemID.String()).
			Wrap(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *UserRepository) loadItems(ctx context.Context, userID ulid.ULID) ([]auth.Item, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, created_at FROM items
		WHERE user_id = $1
		ORDER BY id
	`, userID.String())
	if err != nil {
		return nil, oops.Code(auth.CodePersistence).
			With("operation", "query items").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

	list := []auth.Item{}
	for rows.Next() {
		var (
			idStr string
			item  auth.Item
		)
		if err := rows.Scan(&idStr, &item.Name, &item.CreatedAt); err != nil {
			return nil, oops.Code(auth.CodePersistence).
				With("operation", "scan item row").
				Wrap(err)
		}
		if item.ID, err = ulid.Parse(idStr); err != nil {
			return nil, oops.Code("ITEM_INVALID_ID").
				With("item_id", idStr).
				Wrap(err)
		}
		list = append(list, item)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code(auth.CodePersistence).
			With("operation", "iterate item rows").
			Wrap(err)
	}
	return list, nil
}

func insertItems(ctx context.Context, tx pgx.Tx, userID ulid.ULID, list []auth.Item) error {
	for _, item := range list {
		_, err := tx.Exec(ctx, `
			INSERT INTO items (id, user_id, name, created_at)
			VALUES ($1, $2, $3, $4)
		`, item.ID.String(), userID.String(), item.Name, item.CreatedAt)
		if err != nil {
			return oops.Code(auth.CodePersistence).
				With("operation", "insert item").
				With("user_id", userID.String()).
				With("item_id", item.ID.String()).
				Wrap(err)
		}
	}
	return nil
}

// scanUser scans a single user row. pgx.ErrNoRows is returned unchanged.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr string
		user  auth.User
	)
	err := row.Scan(&idStr, &user.Username, &user.PasswordHash, &user.Version, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context-specific info
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").With("id", idStr).Wrap(err)
	}
	user.ID = id
	return &user, nil
}

// Compile-time interface checks.
var (
	_ auth.UserRepository = (*UserRepository)(nil)
	_ items.Store         = (*UserRepository)(nil)
)
