// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package auth

import (
	"context"
	"runtime"

	"github.com/samber/oops"
	"golang.org/x/sync/semaphore"
)

// BoundedHasher runs hashing work off the calling goroutine and caps how
// many argon2 computations run at once. Each call blocks only its caller,
// and a canceled context releases the caller immediately; the computation
// itself finishes in the background and then frees its slot.
type BoundedHasher struct {
	inner PasswordHasher
	sem   *semaphore.Weighted
}

// NewBoundedHasher wraps inner. A non-positive limit defaults to runtime.NumCPU().
func NewBoundedHasher(inner PasswordHasher, limit int) (*BoundedHasher, error) {
	if inner == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	return &BoundedHasher{
		inner: inner,
		sem:   semaphore.NewWeighted(int64(limit)),
	}, nil
}

type hashResult struct {
	hash string
	ok   bool
	err  error
}

func (b *BoundedHasher) run(ctx context.Context, fn func(ctx context.Context) hashResult) hashResult {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return hashResult{err: oops.Code("AUTH_HASH_CANCELED").Wrap(err)}
	}

	// Detach from cancellation so the inner hasher never aborts half way;
	// the caller stops waiting on ctx.Done instead.
	workCtx := context.WithoutCancel(ctx)
	done := make(chan hashResult, 1)
	go func() {
		defer b.sem.Release(1)
		done <- fn(workCtx)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return hashResult{err: oops.Code("AUTH_HASH_CANCELED").Wrap(ctx.Err())}
	}
}

// Hash hashes password on a worker goroutine.
func (b *BoundedHasher) Hash(ctx context.Context, password string) (string, error) {
	res := b.run(ctx, func(ctx context.Context) hashResult {
		h, err := b.inner.Hash(ctx, password)
		return hashResult{hash: h, err: err}
	})
	return res.hash, res.err
}

// Verify verifies password on a worker goroutine.
func (b *BoundedHasher) Verify(ctx context.Context, password, hash string) (bool, error) {
	res := b.run(ctx, func(ctx context.Context) hashResult {
		ok, err := b.inner.Verify(ctx, password, hash)
		return hashResult{ok: ok, err: err}
	})
	return res.ok, res.err
}

// NeedsUpgrade is cheap and runs inline.
func (b *BoundedHasher) NeedsUpgrade(hash string) bool {
	return b.inner.NeedsUpgrade(hash)
}

// Compile-time interface checks.
var (
	_ PasswordHasher = (*Argon2idHasher)(nil)
	_ PasswordHasher = (*BoundedHasher)(nil)
)
