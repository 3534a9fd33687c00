// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

// Package memory provides in-process implementations of the auth and item
// repositories. State lives for the life of the process.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/listkeep/listkeep/internal/auth"
	"github.com/listkeep/listkeep/internal/items"
)

// UserRepository implements auth.UserRepository and items.Store in memory.
// Records are copied on the way in and out so callers never share state.
type UserRepository struct {
	mu         sync.RWMutex
	byID       map[ulid.ULID]*auth.User
	byUsername map[string]ulid.ULID
	onDelete   func(ctx context.Context, id ulid.ULID) error
}

// NewUserRepository creates an empty UserRepository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:       make(map[ulid.ULID]*auth.User),
		byUsername: make(map[string]ulid.ULID),
	}
}

// CascadeSessions makes Delete also drop the user's sessions, mirroring the
// foreign key cascade of the Postgres schema.
func (r *UserRepository) CascadeSessions(sessions *SessionRepository) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDelete = sessions.DeleteByUser
}

// Create stores a new user.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byUsername[user.Username]; exists {
		return oops.Code(auth.CodeDuplicateUsername).
			With("username", user.Username).
			Wrap(auth.ErrDuplicateUsername)
	}
	if _, exists := r.byID[user.ID]; exists {
		return oops.Code("USER_CREATE_FAILED").
			With("id", user.ID.String()).
			Errorf("user id already exists")
	}

	stored := user.Clone()
	if stored.Items == nil {
		stored.Items = []auth.Item{}
	}
	r.byID[user.ID] = stored
	r.byUsername[user.Username] = user.ID
	return nil
}

// GetByID retrieves a user and its items.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return user.Clone(), nil
}

// GetByUsername retrieves a user by exact username.
func (r *UserRepository) GetByUsername(_ context.Context, username string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[username]
	if !ok {
		return nil, oops.Code(auth.CodeUserNotFound).
			With("username", username).
			Wrap(auth.ErrNotFound)
	}
	return r.byID[id].Clone(), nil
}

// Save persists the whole record if the stored version still matches.
func (r *UserRepository) Save(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[user.ID]
	if !ok {
		return oops.Code(auth.CodeUserNotFound).
			With("id", user.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	if stored.Version != user.Version {
		return oops.Code(auth.CodeVersionConflict).
			With("id", user.ID.String()).
			With("expected_version", user.Version).
			With("actual_version", stored.Version).
			Wrap(auth.ErrConflict)
	}
	if stored.Username != user.Username {
		if _, taken := r.byUsername[user.Username]; taken {
			return oops.Code(auth.CodeDuplicateUsername).
				With("username", user.Username).
				Wrap(auth.ErrDuplicateUsername)
		}
		delete(r.byUsername, stored.Username)
		r.byUsername[user.Username] = user.ID
	}

	user.Version++
	user.UpdatedAt = time.Now().UTC()
	r.byID[user.ID] = user.Clone()
	return nil
}

// Delete removes a user and, when cascading is configured, its sessions.
func (r *UserRepository) Delete(ctx context.Context, id ulid.ULID) error {
	r.mu.Lock()
	user, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
		delete(r.byUsername, user.Username)
	}
	onDelete := r.onDelete
	r.mu.Unlock()

	if !ok {
		return oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if onDelete != nil {
		return onDelete(ctx, id)
	}
	return nil
}

// AppendItem adds item to the end of the user's collection.
func (r *UserRepository) AppendItem(_ context.Context, userID ulid.ULID, item auth.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[userID]
	if !ok {
		return oops.Code(auth.CodeUserNotFound).
			With("user_id", userID.String()).
			Wrap(auth.ErrNotFound)
	}
	user.Items = append(user.Items, item)
	user.Version++
	user.UpdatedAt = time.Now().UTC()
	return nil
}

// RemoveItem deletes the item only if it belongs to userID. An unknown
// user owns nothing, so the call removes nothing.
func (r *UserRepository) RemoveItem(_ context.Context, userID, itemID ulid.ULID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[userID]
	if !ok {
		return false, nil
	}

	before := len(user.Items)
	user.Items = slices.DeleteFunc(user.Items, func(it auth.Item) bool { return it.ID == itemID })
	if len(user.Items) == before {
		return false, nil
	}
	user.Version++
	user.UpdatedAt = time.Now().UTC()
	return true, nil
}

// Compile-time interface checks.
var (
	_ auth.UserRepository = (*UserRepository)(nil)
	_ items.Store         = (*UserRepository)(nil)
)
