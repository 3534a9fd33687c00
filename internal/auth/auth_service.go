// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package auth

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// Service coordinates registration, login and logout.
type Service struct {
	users         UserRepository
	hasher        PasswordHasher
	authenticator *Authenticator
	sessions      *SessionManager
	logger        *slog.Logger
}

// NewAuthService creates a new Service using the default logger.
func NewAuthService(users UserRepository, sessions *SessionManager, hasher PasswordHasher) (*Service, error) {
	return NewAuthServiceWithLogger(users, sessions, hasher, slog.Default())
}

// NewAuthServiceWithLogger creates a new Service with an explicit logger.
func NewAuthServiceWithLogger(users UserRepository, sessions *SessionManager, hasher PasswordHasher, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("session manager is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("logger is required")
	}

	authenticator, err := NewAuthenticator(users, hasher, logger)
	if err != nil {
		return nil, err
	}

	return &Service{
		users:         users,
		hasher:        hasher,
		authenticator: authenticator,
		sessions:      sessions,
		logger:        logger,
	}, nil
}

// Register creates a user with a hashed password and opens a session for it.
// Returns the new user, the plaintext session token and the session.
func (s *Service) Register(ctx context.Context, username, password string, client ClientInfo) (*User, string, *Session, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, "", nil, err
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return nil, "", nil, oops.With("operation", "hash password").Wrap(err)
	}

	user, err := NewUser(username, hash)
	if err != nil {
		return nil, "", nil, oops.With("operation", "build user").Wrap(err)
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", nil, oops.With("operation", "create user").
			With("username", username).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user registered",
		"user_id", user.ID.String(), "username", user.Username)

	token, session, err := s.sessions.Create(ctx, user.Principal(), client)
	if err != nil {
		return nil, "", nil, err
	}
	return user, token, session, nil
}

// Login authenticates the credentials and opens a session.
// Returns the session and its plaintext token.
func (s *Service) Login(ctx context.Context, username, password string, client ClientInfo) (*Session, string, error) {
	principal, err := s.authenticator.Authenticate(ctx, username, password)
	if err != nil {
		return nil, "", err
	}

	token, session, err := s.sessions.Create(ctx, principal, client)
	if err != nil {
		return nil, "", err
	}

	s.logger.InfoContext(ctx, "user logged in",
		"user_id", principal.UserID.String(), "session_id", session.ID.String())
	return session, token, nil
}

// Logout invalidates the session behind token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Invalidate(ctx, token)
}
