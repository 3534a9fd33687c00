// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

// Package items manages a user's owned item list.
package items

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/listkeep/listkeep/internal/auth"
	"github.com/listkeep/listkeep/internal/idgen"
)

// Store provides atomic, user-scoped mutations of an item collection.
// Each call is a single write keyed by user id, so concurrent requests from
// the same user cannot lose each other's updates.
type Store interface {
	// AppendItem adds item to the end of the user's collection.
	// Returns auth.ErrNotFound if the user does not exist.
	AppendItem(ctx context.Context, userID ulid.ULID, item auth.Item) error

	// RemoveItem deletes the item only if it belongs to userID and reports
	// whether anything was removed.
	RemoveItem(ctx context.Context, userID, itemID ulid.ULID) (bool, error)
}

// Service adds and removes items on behalf of an authorized user.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a Service.
func NewService(store Store, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, oops.Code("ITEMS_INVALID_CONFIG").Errorf("item store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}, nil
}

// AddItem appends a new item named name to user's collection and returns
// its id. Names are not validated or deduplicated.
func (s *Service) AddItem(ctx context.Context, user *auth.User, name string) (ulid.ULID, error) {
	if user == nil {
		return ulid.ULID{}, oops.Code("ITEM_ADD_FAILED").Errorf("user is required")
	}

	item := auth.NewItem(name)
	if err := s.store.AppendItem(ctx, user.ID, item); err != nil {
		return ulid.ULID{}, oops.Code("ITEM_ADD_FAILED").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	user.Items = append(user.Items, item)

	s.logger.DebugContext(ctx, "item added",
		"user_id", user.ID.String(), "item_id", item.ID.String())
	return item.ID, nil
}

// RemoveItem removes itemID from user's collection. An id that is absent,
// including one owned by a different user, is a no-op.
func (s *Service) RemoveItem(ctx context.Context, user *auth.User, itemID ulid.ULID) error {
	if user == nil {
		return oops.Code("ITEM_REMOVE_FAILED").Errorf("user is required")
	}

	removed, err := s.store.RemoveItem(ctx, user.ID, itemID)
	if err != nil {
		return oops.Code("ITEM_REMOVE_FAILED").
			With("user_id", user.ID.String()).
			With("item_id", itemID.String()).
			Wrap(err)
	}
	if !removed {
		return nil
	}

	kept := user.Items[:0]
	for _, it := range user.Items {
		if it.ID != itemID {
			kept = append(kept, it)
		}
	}
	user.Items = kept

	s.logger.DebugContext(ctx, "item removed",
		"user_id", user.ID.String(), "item_id", itemID.String())
	return nil
}

// List returns a copy of user's items in insertion order.
func (s *Service) List(user *auth.User) []auth.Item {
	if user == nil {
		return nil
	}
	return append([]auth.Item{}, user.Items...)
}

// ParseItemID parses a submitted item id. A malformed id reports false and
// should be treated like an id that does not exist.
func ParseItemID(raw string) (ulid.ULID, bool) {
	id, err := idgen.Parse(raw)
	if err != nil || idgen.IsZero(id) {
		return ulid.ULID{}, false
	}
	return id, true
}
