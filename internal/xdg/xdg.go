// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

// Package xdg provides XDG Base Directory paths for the nfive process.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "nfive"

// StateDir returns the XDG state directory for nfive.
// Checks XDG_STATE_HOME first, falls back to ~/.local/state.
func StateDir() (string, error) {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", oops.Code("XDG_HOME_UNKNOWN").Wrapf(err, "resolve home directory")
		}
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, appName), nil
}

// RuntimeDir returns the XDG runtime directory for nfive, where the
// control socket lives. Checks XDG_RUNTIME_DIR first, falls back to
// StateDir()/run.
func RuntimeDir() (string, error) {
	base := os.Getenv("XDG_RUNTIME_DIR")
	if base == "" {
		state, err := StateDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(state, "run"), nil
	}
	return filepath.Join(base, appName), nil
}

// EnsureDir creates a directory and all parent directories if they don't exist.
// Directories are created with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.With("path", path).Wrapf(err, "create directory")
	}
	return nil
}
