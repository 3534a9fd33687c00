// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/listkeep/listkeep/internal/auth"
)

// MockSessionRepository is a mock of auth.SessionRepository.
type MockSessionRepository struct {
	mock.Mock
}

// NewMockSessionRepository creates a mock that asserts its expectations on cleanup.
func NewMockSessionRepository(t TestingT) *MockSessionRepository {
	m := &MockSessionRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Create mocks SessionRepository.Create.
func (m *MockSessionRepository) Create(ctx context.Context, session *auth.Session) error {
	return m.Called(ctx, session).Error(0)
}

// GetByTokenHash mocks SessionRepository.GetByTokenHash.
func (m *MockSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	ret := m.Called(ctx, tokenHash)
	var session *auth.Session
	if v := ret.Get(0); v != nil {
		session = v.(*auth.Session)
	}
	return session, ret.Error(1)
}

// UpdateLastSeen mocks SessionRepository.UpdateLastSeen.
func (m *MockSessionRepository) UpdateLastSeen(ctx context.Context, id ulid.ULID, lastSeen time.Time) error {
	return m.Called(ctx, id, lastSeen).Error(0)
}

// DeleteByTokenHash mocks SessionRepository.DeleteByTokenHash.
func (m *MockSessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	return m.Called(ctx, tokenHash).Error(0)
}

// DeleteByUser mocks SessionRepository.DeleteByUser.
func (m *MockSessionRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	return m.Called(ctx, userID).Error(0)
}

// DeleteExpired mocks SessionRepository.DeleteExpired.
func (m *MockSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ret := m.Called(ctx, now)
	var n int64
	if v := ret.Get(0); v != nil {
		n = v.(int64)
	}
	return n, ret.Error(1)
}

var _ auth.SessionRepository = (*MockSessionRepository)(nil)
