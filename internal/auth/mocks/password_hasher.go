// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/listkeep/listkeep/internal/auth"
)

// MockPasswordHasher is a mock of auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a mock that asserts its expectations on cleanup.
func NewMockPasswordHasher(t TestingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash mocks PasswordHasher.Hash.
func (m *MockPasswordHasher) Hash(ctx context.Context, password string) (string, error) {
	ret := m.Called(ctx, password)
	return ret.String(0), ret.Error(1)
}

// Verify mocks PasswordHasher.Verify.
func (m *MockPasswordHasher) Verify(ctx context.Context, password, hash string) (bool, error) {
	ret := m.Called(ctx, password, hash)
	return ret.Bool(0), ret.Error(1)
}

// NeedsUpgrade mocks PasswordHasher.NeedsUpgrade.
func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	return m.Called(hash).Bool(0)
}

var _ auth.PasswordHasher = (*MockPasswordHasher)(nil)
