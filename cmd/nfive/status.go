// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/nfive/server/internal/boot"
	"github.com/nfive/server/internal/control"
)

// ServerStatus is what the status command reports.
type ServerStatus struct {
	Running       bool              `json:"running"`
	Health        string            `json:"health,omitempty"`
	Checks        map[string]string `json:"checks,omitempty"`
	PID           int               `json:"pid,omitempty"`
	UptimeSeconds int64             `json:"uptime_seconds,omitempty"`
	Boot          *boot.Status      `json:"boot,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// StatusClient wraps the methods used from control.Client.
type StatusClient interface {
	Health(ctx context.Context) (control.HealthResponse, error)
	Status(ctx context.Context) (control.StatusResponse, error)
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of the running server",
		Long:  `Show health, boot state, loaded plugins and registered controllers of the running server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := resolveSocket(socketPath)
			if err != nil {
				return err
			}
			var client StatusClient
			if _, statErr := os.Stat(path); statErr == nil {
				client = control.NewClient(path)
			}
			return runStatus(cmd, cfg, client)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

// runStatus queries client and prints the result. A nil client means no socket.
func runStatus(cmd *cobra.Command, cfg *statusConfig, client StatusClient) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := queryStatus(ctx, client)

	if cfg.jsonOutput {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return oops.Wrapf(err, "marshal status")
		}
		cmd.Println(string(data))
		return nil
	}
	cmd.Print(formatStatusTable(status))
	return nil
}

func queryStatus(ctx context.Context, client StatusClient) ServerStatus {
	if client == nil {
		return ServerStatus{Error: "socket not found"}
	}

	health, err := client.Health(ctx)
	if err != nil {
		return ServerStatus{Error: fmt.Sprintf("failed to connect: %v", err)}
	}
	status := ServerStatus{Running: true, Health: health.Status, Checks: health.Checks}

	st, err := client.Status(ctx)
	if err != nil {
		// Health answered, so the process is up.
		return status
	}
	status.Running = st.Running
	status.PID = st.PID
	status.UptimeSeconds = st.UptimeSeconds
	status.Boot = &st.Boot
	return status
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(status ServerStatus) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !status.Running {
		reason := "not running"
		if status.Error != "" {
			reason = status.Error
		}
		_, _ = fmt.Fprintf(w, "STATUS\tstopped (%s)\n", reason)
		_ = w.Flush()
		return buf.String()
	}

	_, _ = fmt.Fprintf(w, "STATUS\trunning\n")
	_, _ = fmt.Fprintf(w, "HEALTH\t%s\n", status.Health)
	_, _ = fmt.Fprintf(w, "PID\t%d\n", status.PID)
	_, _ = fmt.Fprintf(w, "UPTIME\t%s\n", formatUptime(status.UptimeSeconds))
	for _, name := range slices.Sorted(maps.Keys(status.Checks)) {
		_, _ = fmt.Fprintf(w, "CHECK %s\t%s\n", name, status.Checks[name])
	}
	if status.Boot != nil {
		_, _ = fmt.Fprintf(w, "BOOT\t%s (%s)\n", status.Boot.State, status.Boot.BootID)
		for _, p := range status.Boot.Plugins {
			_, _ = fmt.Fprintf(w, "PLUGIN\t%s\n", p)
		}
		for _, c := range status.Boot.Controllers {
			_, _ = fmt.Fprintf(w, "CONTROLLER\t%s\t%s\n", c.Plugin, c.Controller)
		}
	}

	_ = w.Flush()
	return buf.String()
}

// formatUptime formats seconds into a human-readable duration.
func formatUptime(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
