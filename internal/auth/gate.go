// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
)

// Gate resolves a request's session token to the owning user record. Every
// item read or write goes through Authorize first.
type Gate struct {
	sessions *SessionManager
	users    UserRepository
	logger   *slog.Logger
}

// NewGate creates a Gate.
func NewGate(sessions *SessionManager, users UserRepository, logger *slog.Logger) (*Gate, error) {
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("session manager is required")
	}
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("users repository is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{sessions: sessions, users: users, logger: logger}, nil
}

func unauthenticated(reason string) error {
	return oops.Code(CodeUnauthenticated).With("reason", reason).Wrap(ErrUnauthenticated)
}

// Authorize returns the user owning the session behind token.
// It fails with ErrUnauthenticated when the token is absent or invalid, or
// when the user it names no longer exists.
func (g *Gate) Authorize(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, unauthenticated("no session")
	}

	principal, err := g.sessions.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionInvalid) {
			return nil, unauthenticated("invalid session")
		}
		return nil, oops.With("operation", "resolve session").Wrap(err)
	}

	user, err := g.users.GetByID(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			g.logger.InfoContext(ctx, "session refers to missing user, invalidating",
				"user_id", principal.UserID.String())
			if invErr := g.sessions.Invalidate(ctx, token); invErr != nil {
				g.logger.WarnContext(ctx, "failed to invalidate orphaned session", "error", invErr)
			}
			return nil, unauthenticated("user gone")
		}
		return nil, oops.Code(CodePersistence).
			With("operation", "get user by id").
			With("user_id", principal.UserID.String()).
			Wrap(err)
	}

	return user, nil
}
