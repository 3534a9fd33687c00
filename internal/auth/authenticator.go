// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/listkeep/listkeep/pkg/errutil"
)

// dummyPasswordHash is verified against when the username is unknown so
// that both failure paths do the same amount of work.
//
//nolint:gosec // G101: intentionally fake hash, never matches any password.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Authenticator checks a username/password pair against the user store.
type Authenticator struct {
	users  UserRepository
	hasher PasswordHasher
	logger *slog.Logger
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(users UserRepository, hasher PasswordHasher, logger *slog.Logger) (*Authenticator, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("users repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{users: users, hasher: hasher, logger: logger}, nil
}

// invalidCredentials is the only error shape a caller sees for a bad
// username or a bad password.
func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Wrap(ErrInvalidCredentials)
}

// Authenticate verifies the credentials and returns the principal.
// Unknown usernames, usernames no account could have and wrong passwords
// all produce ErrInvalidCredentials.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (Principal, error) {
	if ValidateUsername(username) != nil {
		// Never sent to the store; verified against the dummy hash so the
		// rejection costs the same as an unknown user.
		_, _ = a.hasher.Verify(ctx, password, dummyPasswordHash)
		return Principal{}, invalidCredentials()
	}

	user, lookupErr := a.users.GetByUsername(ctx, username)

	targetHash := dummyPasswordHash
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
	case errors.Is(lookupErr, ErrNotFound):
		user = nil
	default:
		return Principal{}, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by username").
			Wrap(lookupErr)
	}

	valid, verifyErr := a.hasher.Verify(ctx, password, targetHash)
	if verifyErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Principal{}, oops.Code("AUTH_LOGIN_FAILED").Wrap(ctxErr)
		}
		if user != nil {
			errutil.LogError(a.logger, "stored password hash is unreadable",
				oops.With("user_id", user.ID.String()).Wrap(verifyErr))
		}
		return Principal{}, invalidCredentials()
	}

	if user == nil || !valid {
		return Principal{}, invalidCredentials()
	}

	if a.hasher.NeedsUpgrade(user.PasswordHash) {
		a.upgradeHash(ctx, user, password)
	}

	return user.Principal(), nil
}

// upgradeHash rehashes a legacy hash with argon2id. Failures are logged and
// do not fail the login.
func (a *Authenticator) upgradeHash(ctx context.Context, user *User, password string) {
	newHash, err := a.hasher.Hash(ctx, password)
	if err != nil {
		a.logger.WarnContext(ctx, "password hash upgrade failed",
			"user_id", user.ID.String(), "stage", "hash", "error", err)
		return
	}
	user.PasswordHash = newHash
	if err := a.users.Save(ctx, user); err != nil {
		a.logger.WarnContext(ctx, "password hash upgrade failed",
			"user_id", user.ID.String(), "stage", "save", "error", err)
		return
	}
	a.logger.InfoContext(ctx, "upgraded password hash", "user_id", user.ID.String())
}
