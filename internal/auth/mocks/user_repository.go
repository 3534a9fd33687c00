// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

// Package mocks provides testify mocks for the auth interfaces.
package mocks

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/listkeep/listkeep/internal/auth"
)

// TestingT is the subset of *testing.T the constructors need.
type TestingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockUserRepository is a mock of auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository creates a mock that asserts its expectations on cleanup.
func NewMockUserRepository(t TestingT) *MockUserRepository {
	m := &MockUserRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockUserRepository) userResult(ret mock.Arguments) (*auth.User, error) {
	var user *auth.User
	if v := ret.Get(0); v != nil {
		user = v.(*auth.User)
	}
	return user, ret.Error(1)
}

// Create mocks UserRepository.Create.
func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

// GetByID mocks UserRepository.GetByID.
func (m *MockUserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	return m.userResult(m.Called(ctx, id))
}

// GetByUsername mocks UserRepository.GetByUsername.
func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	return m.userResult(m.Called(ctx, username))
}

// Save mocks UserRepository.Save.
func (m *MockUserRepository) Save(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

// Delete mocks UserRepository.Delete.
func (m *MockUserRepository) Delete(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

var _ auth.UserRepository = (*MockUserRepository)(nil)
