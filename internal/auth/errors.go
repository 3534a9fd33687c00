// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package auth

import (
	"errors"

	"github.com/listkeep/listkeep/pkg/errutil"
)

// Sentinel errors. Repositories and services wrap these with oops so that
// callers can classify failures with errors.Is across layers.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateUsername is returned when a username is already taken.
	ErrDuplicateUsername = errors.New("username already exists")

	// ErrConflict is returned when a save loses an optimistic version check.
	ErrConflict = errors.New("version conflict")

	// ErrInvalidCredentials is returned for any failed login attempt.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrUnauthenticated is returned when a request carries no valid session.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrSessionInvalid is returned when a session token cannot be resolved.
	ErrSessionInvalid = errors.New("invalid session")
)

// Error codes attached via oops.Code.
const (
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeDuplicateUsername  = "AUTH_DUPLICATE_USERNAME"
	CodeUnauthenticated    = "AUTH_UNAUTHENTICATED"
	CodeInvalidUsername    = "AUTH_INVALID_USERNAME"
	CodeInvalidInput       = "AUTH_INVALID_INPUT"
	CodeInvalidHash        = "AUTH_INVALID_HASH"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeVersionConflict    = "USER_VERSION_CONFLICT"
	CodePersistence        = "PERSISTENCE_FAILED"
	CodeSessionInvalid     = "SESSION_INVALID"
)

// IsInvalidInput reports whether err rejects caller-supplied input such as
// a malformed username or an empty password.
func IsInvalidInput(err error) bool {
	switch errutil.Code(err) {
	case CodeInvalidUsername, CodeInvalidInput:
		return true
	default:
		return false
	}
}
