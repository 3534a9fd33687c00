// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

//go:build tools

// Package main pins tool and test dependencies to go.mod.
// See https://go.dev/wiki/Modules#how-can-i-track-tool-dependencies-for-a-module
package main

import (
	// Suite runner for the ginkgo specs in internal/web and internal/store.
	_ "github.com/onsi/ginkgo/v2/ginkgo"
)
