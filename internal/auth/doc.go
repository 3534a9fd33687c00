// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

// Package auth provides authentication and per-user ownership primitives.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewUser - creates a User with a validated username and password hash
//   - NewItem - creates an Item with a fresh identity
//   - NewSession - creates a Session bound to a Principal with an expiry
//
// A Principal (user id + username) is all a session carries. The password
// hash never leaves the UserRepository boundary except to the hasher.
//
// # Services
//
//   - Authenticator - verifies credentials without revealing which part failed
//   - SessionManager - issues, resolves and invalidates session tokens
//   - Gate - resolves a request's token to the owning User record
//   - Service - registration, login and logout built on the above
//
// Constructors validate their dependencies and return an error on nil.
package auth
