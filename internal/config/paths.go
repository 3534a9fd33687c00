// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package config

import (
	"os"
	"path/filepath"
)

const appName = "listkeep"

// Dir returns the XDG config directory for listkeep.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func Dir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appName)
}

// DefaultPath returns Dir()/config.yaml if that file exists, or "".
func DefaultPath() string {
	dir := Dir()
	if dir == "" {
		return ""
	}
	path := filepath.Join(dir, "config.yaml")
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return ""
	}
	return path
}
