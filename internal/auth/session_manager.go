// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionManager issues session tokens and resolves them back to principals.
// Identity always comes from server-held session rows; the client token is
// only a lookup key.
type SessionManager struct {
	sessions SessionRepository
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithSessionTTL overrides DefaultSessionTTL.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(m *SessionManager) { m.ttl = ttl }
}

// WithSessionLogger sets the logger used for best-effort failures.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(m *SessionManager) { m.logger = logger }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) { m.now = now }
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(sessions SessionRepository, opts ...SessionOption) (*SessionManager, error) {
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("sessions repository is required")
	}
	m := &SessionManager{
		sessions: sessions,
		ttl:      DefaultSessionTTL,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.ttl <= 0 {
		return nil, oops.Code("AUTH_INVALID_CONFIG").With("ttl", m.ttl.String()).Errorf("session TTL must be positive")
	}
	if m.logger == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("logger is required")
	}
	return m, nil
}

// TTL returns the fixed session lifetime.
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Create stores a new session for principal and returns the plaintext token.
func (m *SessionManager) Create(ctx context.Context, principal Principal, client ClientInfo) (string, *Session, error) {
	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return "", nil, oops.Code("SESSION_CREATE_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	session, err := NewSession(principal, tokenHash, client, m.now().UTC().Add(m.ttl))
	if err != nil {
		return "", nil, oops.Code("SESSION_CREATE_FAILED").
			With("operation", "build session").
			Wrap(err)
	}

	if err := m.sessions.Create(ctx, session); err != nil {
		return "", nil, oops.Code("SESSION_CREATE_FAILED").
			With("operation", "persist session").
			With("user_id", principal.UserID.String()).
			Wrap(err)
	}

	return token, session, nil
}

func invalidSession(reason string) error {
	return oops.Code(CodeSessionInvalid).With("reason", reason).Wrap(ErrSessionInvalid)
}

// Resolve returns the principal bound to token. Missing, malformed, unknown
// and expired tokens all yield ErrSessionInvalid.
func (m *SessionManager) Resolve(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, invalidSession("empty")
	}
	if !WellFormedSessionToken(token) {
		return Principal{}, invalidSession("malformed")
	}

	tokenHash := HashSessionToken(token)
	session, err := m.sessions.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, invalidSession("unknown")
		}
		return Principal{}, oops.Code(CodePersistence).
			With("operation", "get session by token hash").
			Wrap(err)
	}

	now := m.now()
	if session.IsExpiredAt(now) {
		if delErr := m.sessions.DeleteByTokenHash(ctx, tokenHash); delErr != nil && !errors.Is(delErr, ErrNotFound) {
			m.logger.WarnContext(ctx, "failed to delete expired session",
				"session_id", session.ID.String(), "error", delErr)
		}
		return Principal{}, invalidSession("expired")
	}

	if err := m.sessions.UpdateLastSeen(ctx, session.ID, now.UTC()); err != nil {
		m.logger.WarnContext(ctx, "failed to update session last seen",
			"session_id", session.ID.String(), "error", err)
	}

	return session.Principal(), nil
}

// Invalidate removes the session for token. Unknown tokens are not an error.
func (m *SessionManager) Invalidate(ctx context.Context, token string) error {
	if !WellFormedSessionToken(token) {
		return nil
	}
	err := m.sessions.DeleteByTokenHash(ctx, HashSessionToken(token))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("SESSION_INVALIDATE_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	return nil
}

// InvalidateUser removes every session belonging to userID.
func (m *SessionManager) InvalidateUser(ctx context.Context, userID ulid.ULID) error {
	if err := m.sessions.DeleteByUser(ctx, userID); err != nil {
		return oops.Code("SESSION_INVALIDATE_FAILED").
			With("operation", "delete sessions by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// PruneExpired deletes all expired sessions and returns how many were removed.
func (m *SessionManager) PruneExpired(ctx context.Context) (int64, error) {
	n, err := m.sessions.DeleteExpired(ctx, m.now().UTC())
	if err != nil {
		return 0, oops.Code("SESSION_PRUNE_FAILED").Wrap(err)
	}
	return n, nil
}
