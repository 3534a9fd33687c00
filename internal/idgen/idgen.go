// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

// Package idgen issues the ULIDs used as record identities.
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// New returns a ULID that sorts after every ULID previously issued by this
// process, so ordering by id preserves creation order.
func New() ulid.ULID {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
}

// Parse parses a ULID string.
func Parse(s string) (ulid.ULID, error) {
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return ulid.ULID{}, oops.Code("INVALID_ID").With("id", s).Wrap(err)
	}
	return id, nil
}

// IsZero reports whether id is the zero ULID.
func IsZero(id ulid.ULID) bool {
	return id.Compare(ulid.ULID{}) == 0
}
