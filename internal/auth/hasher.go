// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes

	maxArgon2Memory = 1024 * 1024 // 1 GB upper bound accepted from stored hashes
)

// MaxPasswordLength bounds the plaintext accepted by Hash and Verify.
const MaxPasswordLength = 1024

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces an argon2id hash of the password.
	Hash(ctx context.Context, password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(ctx context.Context, password, hash string) (bool, error)

	// NeedsUpgrade returns true if the hash should be upgraded to argon2id.
	NeedsUpgrade(hash string) bool
}

// Argon2idHasher implements PasswordHasher using argon2id.
// Legacy bcrypt hashes are still accepted by Verify.
type Argon2idHasher struct{}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

func checkPassword(password string) error {
	if password == "" {
		return oops.Code(CodeInvalidInput).Errorf("password cannot be empty")
	}
	if len(password) > MaxPasswordLength {
		return oops.Code(CodeInvalidInput).
			With("max", MaxPasswordLength).
			Errorf("password must be at most %d bytes", MaxPasswordLength)
	}
	return nil
}

// Hash produces an argon2id hash of the password.
func (h *Argon2idHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := checkPassword(password); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", oops.Code("AUTH_HASH_CANCELED").Wrap(err)
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks if the password matches the hash.
func (h *Argon2idHasher) Verify(ctx context.Context, password, encodedHash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, oops.Code("AUTH_HASH_CANCELED").Wrap(err)
	}
	if isBcryptHash(encodedHash) {
		return verifyBcrypt(password, encodedHash)
	}

	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false, oops.Code(CodeInvalidHash).Errorf("invalid hash format")
	}

	if parts[1] != "argon2id" {
		return false, oops.Code(CodeInvalidHash).Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, oops.Code(CodeInvalidHash).Wrap(err)
	}
	if version != argon2.Version {
		return false, oops.Code(CodeInvalidHash).Errorf("unsupported argon2 version: %d", version)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, oops.Code(CodeInvalidHash).Wrap(err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, oops.Code(CodeInvalidHash).Wrap(err)
	}

	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, oops.Code(CodeInvalidHash).Wrap(err)
	}

	if threads == 0 || threads > 255 {
		return false, oops.Code(CodeInvalidHash).Errorf("threads value %d out of range", threads)
	}
	if time == 0 {
		return false, oops.Code(CodeInvalidHash).Errorf("time parameter cannot be zero")
	}
	if memory == 0 || memory > maxArgon2Memory {
		return false, oops.Code(CodeInvalidHash).Errorf("memory parameter %d out of range", memory)
	}

	keyLen := len(expected)
	if keyLen <= 0 || keyLen > 1<<10 {
		return false, oops.Code(CodeInvalidHash).Errorf("invalid hash key length: %d", keyLen)
	}

	if len(password) > MaxPasswordLength {
		return false, nil
	}

	computed := argon2.IDKey([]byte(password), salt, time, memory, uint8(threads), uint32(keyLen))

	// Constant-time comparison
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// NeedsUpgrade returns true if the hash is not argon2id (e.g., bcrypt).
func (h *Argon2idHasher) NeedsUpgrade(hash string) bool {
	return !strings.HasPrefix(hash, "$argon2id$")
}

func isBcryptHash(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") ||
		strings.HasPrefix(hash, "$2b$") ||
		strings.HasPrefix(hash, "$2y$")
}

func verifyBcrypt(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	case errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, oops.Code(CodeInvalidHash).With("algorithm", "bcrypt").Wrap(err)
	}
}
