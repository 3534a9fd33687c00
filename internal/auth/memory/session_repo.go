// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/listkeep/listkeep/internal/auth"
)

// SessionRepository implements auth.SessionRepository in memory, keyed by
// token hash.
type SessionRepository struct {
	mu     sync.RWMutex
	byHash map[string]auth.Session
}

// NewSessionRepository creates an empty SessionRepository.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{byHash: make(map[string]auth.Session)}
}

// Create stores a new session.
func (r *SessionRepository) Create(_ context.Context, session *auth.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byHash[session.TokenHash]; exists {
		return oops.Code("SESSION_CREATE_FAILED").Errorf("token hash already exists")
	}
	r.byHash[session.TokenHash] = *session
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byHash[tokenHash]
	if !ok {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return &s, nil
}

// UpdateLastSeen updates the LastSeenAt timestamp for a session.
func (r *SessionRepository) UpdateLastSeen(_ context.Context, id ulid.ULID, lastSeen time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for hash, s := range r.byHash {
		if s.ID == id {
			s.LastSeenAt = lastSeen
			r.byHash[hash] = s
			return nil
		}
	}
	return oops.Code("SESSION_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
}

// DeleteByTokenHash removes the session with the given token hash.
func (r *SessionRepository) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byHash[tokenHash]; !ok {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	delete(r.byHash, tokenHash)
	return nil
}

// DeleteByUser removes all sessions for a user.
func (r *SessionRepository) DeleteByUser(_ context.Context, userID ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for hash, s := range r.byHash {
		if s.UserID == userID {
			delete(r.byHash, hash)
		}
	}
	return nil
}

// DeleteExpired removes all sessions expired as of now.
func (r *SessionRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for hash, s := range r.byHash {
		if s.IsExpiredAt(now) {
			delete(r.byHash, hash)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions.
func (r *SessionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byHash)
}

var _ auth.SessionRepository = (*SessionRepository)(nil)
