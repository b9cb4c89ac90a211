// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package main

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"

	"github.com/nfive/server/internal/control"
)

// rconConfig holds configuration for the rcon command.
type rconConfig struct {
	retries uint64
	timeout time.Duration
}

// RconClient wraps the methods used from control.Client.
type RconClient interface {
	Rcon(ctx context.Context, command string, args ...string) (bool, error)
}

// NewRconCmd creates the rcon subcommand.
func NewRconCmd() *cobra.Command {
	cfg := &rconConfig{}

	cmd := &cobra.Command{
		Use:   "rcon <command> [args...]",
		Short: "Send a console command to the running server",
		Long: `Send a console command to the running server over its control socket.

  nfive rcon reload              reload every controller
  nfive rcon reload 'acme/*'     reload controllers of matching plugins`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveSocket(socketPath)
			if err != nil {
				return err
			}
			return runRcon(cmd, cfg, control.NewClient(path), args)
		},
	}

	cmd.Flags().Uint64Var(&cfg.retries, "retries", 3, "retries while the control socket is unreachable")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 10*time.Second, "overall timeout")

	return cmd
}

// runRcon sends args to client, retrying while the server is unreachable.
func runRcon(cmd *cobra.Command, cfg *rconConfig, client RconClient, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	backoff := retry.WithMaxRetries(cfg.retries, retry.NewExponential(100*time.Millisecond))

	var handled bool
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		handled, err = client.Rcon(ctx, args[0], args[1:]...)
		if err != nil {
			if isUnreachable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return oops.With("command", args[0]).Wrapf(err, "send console command")
	}

	if handled {
		cmd.Println("ok")
	} else {
		cmd.Println("command not handled")
	}
	return nil
}

func isUnreachable(err error) bool {
	oopsErr, ok := oops.AsOops(err)
	return ok && oopsErr.Code() == "CONTROL_UNREACHABLE"
}
