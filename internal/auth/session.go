// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/listkeep/listkeep/internal/idgen"
)

// Session token configuration.
const (
	SessionTokenBytes     = 32             // 32 bytes = 64 hex chars
	DefaultSessionTTL     = 24 * time.Hour // fixed, non-sliding lifetime
	sessionTokenHexLength = SessionTokenBytes * 2
)

// Session maps a hashed token to the principal it authenticates.
type Session struct {
	ID         ulid.ULID
	UserID     ulid.ULID
	Username   string
	TokenHash  string
	UserAgent  string
	IPAddress  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	LastSeenAt time.Time
}

// ClientInfo is request metadata recorded alongside a session.
type ClientInfo struct {
	UserAgent string
	IPAddress string
}

// NewSession creates a validated Session instance.
// UserAgent and IPAddress are optional and may be empty; both are passed
// through SanitizeText.
func NewSession(principal Principal, tokenHash string, client ClientInfo, expiresAt time.Time) (*Session, error) {
	if principal.IsZero() {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if principal.Username == "" {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("username cannot be empty")
	}
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	now := time.Now().UTC()
	return &Session{
		ID:         idgen.New(),
		UserID:     principal.UserID,
		Username:   principal.Username,
		TokenHash:  tokenHash,
		UserAgent:  SanitizeText(client.UserAgent),
		IPAddress:  SanitizeText(client.IPAddress),
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
		LastSeenAt: now,
	}, nil
}

// Principal returns the identity the session was issued for.
func (s *Session) Principal() Principal {
	return Principal{UserID: s.UserID, Username: s.Username}
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return s.IsExpiredAt(time.Now())
}

// IsExpiredAt returns true if the session would be expired at the given time.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// GenerateSessionToken creates a secure random token and its hash.
// The plaintext token is sent to the client; only the hash is stored.
func GenerateSessionToken() (token, hash string, err error) {
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashSessionToken(token), nil
}

// HashSessionToken computes the SHA256 hash of a session token.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// WellFormedSessionToken reports whether token has the shape produced by
// GenerateSessionToken. Malformed tokens are rejected without a lookup.
func WellFormedSessionToken(token string) bool {
	if len(token) != sessionTokenHexLength {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByTokenHash retrieves a session by its token hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// UpdateLastSeen updates the LastSeenAt timestamp for a session.
	UpdateLastSeen(ctx context.Context, id ulid.ULID, lastSeen time.Time) error

	// DeleteByTokenHash removes the session with the given token hash.
	// Returns ErrNotFound if no such session exists.
	DeleteByTokenHash(ctx context.Context, tokenHash string) error

	// DeleteByUser removes all sessions for a user.
	DeleteByUser(ctx context.Context, userID ulid.ULID) error

	// DeleteExpired removes all sessions expired as of now and returns the
	// count of deleted records.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
