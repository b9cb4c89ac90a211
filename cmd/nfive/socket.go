// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package main

import (
	"github.com/nfive/server/internal/control"
)

// resolveSocket returns the --socket flag or the default control socket path.
func resolveSocket(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	return control.SocketPath()
}
