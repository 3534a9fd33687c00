// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package auth

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/listkeep/listkeep/internal/idgen"
)

// MaxUsernameLength bounds usernames in runes.
const MaxUsernameLength = 64

// User is an account together with its owned item collection.
type User struct {
	ID           ulid.ULID
	Username     string
	PasswordHash string
	Items        []Item
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Item is a named entry in a user's list.
type Item struct {
	ID        ulid.ULID
	Name      string
	CreatedAt time.Time
}

// Principal is the minimal identity carried by a session.
type Principal struct {
	UserID   ulid.ULID
	Username string
}

// Principal returns the session identity for u.
func (u *User) Principal() Principal {
	return Principal{UserID: u.ID, Username: u.Username}
}

// IsZero reports whether p carries no identity.
func (p Principal) IsZero() bool {
	return p.UserID.Compare(ulid.ULID{}) == 0
}

// Clone returns a copy of u that shares no item storage with it.
func (u *User) Clone() *User {
	c := *u
	c.Items = append([]Item(nil), u.Items...)
	return &c
}

// ValidateUsername checks the username rules. Usernames are case-sensitive
// and otherwise free-form: non-empty, valid UTF-8, no control characters,
// no surrounding whitespace, at most MaxUsernameLength runes.
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code(CodeInvalidUsername).Errorf("username cannot be empty")
	}
	if !utf8.ValidString(username) {
		return oops.Code(CodeInvalidUsername).Errorf("username must be valid UTF-8")
	}
	if strings.TrimSpace(username) != username {
		return oops.Code(CodeInvalidUsername).Errorf("username cannot start or end with whitespace")
	}
	if strings.IndexFunc(username, unicode.IsControl) >= 0 {
		return oops.Code(CodeInvalidUsername).Errorf("username cannot contain control characters")
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return oops.Code(CodeInvalidUsername).
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	return nil
}

// SanitizeText makes free text storable as a Postgres text value: invalid
// UTF-8 sequences become U+FFFD and NUL bytes are dropped.
func SanitizeText(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	return strings.ReplaceAll(s, "\x00", "")
}

// NewUser creates a validated User with an empty item collection.
func NewUser(username, passwordHash string) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("password hash cannot be empty")
	}
	now := time.Now().UTC()
	return &User{
		ID:           idgen.New(),
		Username:     username,
		PasswordHash: passwordHash,
		Items:        []Item{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NewItem creates an Item with a fresh identity. Any name is accepted;
// it is passed through SanitizeText.
func NewItem(name string) Item {
	return Item{
		ID:        idgen.New(),
		Name:      SanitizeText(name),
		CreatedAt: time.Now().UTC(),
	}
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. Returns ErrDuplicateUsername if the
	// username is taken (exact, case-sensitive match).
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user and its items.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByUsername retrieves a user by exact username.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// Save persists the user's username, password hash and item collection.
	// The write only succeeds if the stored version equals user.Version;
	// otherwise ErrConflict is returned. On success user.Version is bumped.
	Save(ctx context.Context, user *User) error

	// Delete removes a user, its items and its sessions.
	Delete(ctx context.Context, id ulid.ULID) error
}
