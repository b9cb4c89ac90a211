// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var socketPath string

// NewRootCmd creates the root command for the NFive CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nfive",
		Short: "NFive - plugin server for FiveM",
		Long: `NFive boots a game server from its lock file: it loads every locked
plugin, applies their database migrations and constructs their controllers.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&socketPath, "socket", "", "control socket path (default: XDG_RUNTIME_DIR/nfive/nfive.sock)")

	cmd.AddCommand(NewStartCmd())
	cmd.AddCommand(NewRconCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}
