// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/nfive/server/internal/boot"
	"github.com/nfive/server/internal/config"
	"github.com/nfive/server/internal/control"
	"github.com/nfive/server/internal/controller"
	"github.com/nfive/server/internal/host"
	"github.com/nfive/server/internal/logging"
	"github.com/nfive/server/internal/observability"
)

// startConfig holds configuration for the start command.
type startConfig struct {
	root        string
	metricsAddr string
	logFormat   string
}

// Validate checks that the configuration is valid.
func (cfg *startConfig) Validate() error {
	if cfg.root == "" {
		return oops.Code("INVALID_FLAGS").Errorf("root is required")
	}
	if cfg.logFormat != "json" && cfg.logFormat != "text" {
		return oops.Code("INVALID_FLAGS").
			With("log_format", cfg.logFormat).
			Errorf("log-format must be 'json' or 'text', got %q", cfg.logFormat)
	}
	return nil
}

// Default values for start command flags.
const (
	defaultRoot        = "."
	defaultMetricsAddr = "127.0.0.1:9100"
	defaultLogFormat   = "json"
	shutdownTimeout    = 5 * time.Second
)

// ControlServer wraps the methods used from control.Server.
type ControlServer interface {
	Start() error
	Stop(ctx context.Context) error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
	SetReadiness(fn observability.ReadinessChecker)
}

// StartDeps contains injectable dependencies for the start command.
// All fields with nil values will use their default implementations.
type StartDeps struct {
	// BootDeps is merged into the sequencer's dependencies before defaults apply.
	BootDeps boot.Deps

	// ControlServerFactory creates the control socket server.
	// Default: control.NewServer
	ControlServerFactory func(socketPath string, deps control.Deps) ControlServer

	// ObservabilityServerFactory creates the metrics server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, logger *slog.Logger, state func() string) ObservabilityServer

	// SocketPathGetter returns the control socket path.
	// Default: the --socket flag or control.SocketPath
	SocketPathGetter func() (string, error)

	// Started, if set, is called once boot finishes and the server is waiting.
	Started func(seq *boot.Sequencer)
}

// NewStartCmd creates the start subcommand.
func NewStartCmd() *cobra.Command {
	cfg := &startConfig{}
	defaults := config.DefaultCore()

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Boot the server and run until signalled",
		Long: `Boot the server from the resource root: load nfive.yml, construct the
core controllers, then load, migrate and construct every plugin in nfive.lock.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStartWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	cmd.Flags().StringVar(&cfg.root, "root", defaultRoot, "resource root holding nfive.yml, nfive.lock, plugins/ and config/")
	cmd.Flags().StringVar(&cfg.metricsAddr, "metrics-addr", defaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().StringVar(&cfg.logFormat, "log-format", defaultLogFormat, "log format (json or text)")

	// Named after configuration keys; only flags the user sets override nfive.yml.
	cmd.Flags().String("log.level", defaults.Log.Level, "minimum log level")
	cmd.Flags().String("display.map", defaults.Display.Map, "map name shown to players")
	cmd.Flags().Bool("automatic_migrations", defaults.AutomaticMigrations, "apply pending plugin migrations during boot")

	return cmd
}

// runStartWithDeps boots the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runStartWithDeps(ctx context.Context, cfg *startConfig, cmd *cobra.Command, deps *StartDeps) error {
	if deps == nil {
		deps = &StartDeps{}
	}
	if deps.ControlServerFactory == nil {
		deps.ControlServerFactory = func(path string, d control.Deps) ControlServer {
			return control.NewServer(path, d)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, logger *slog.Logger, state func() string) ObservabilityServer {
			return observability.NewServer(addr, nil,
				observability.WithLogger(logger),
				observability.WithState(state),
			)
		}
	}
	if deps.SocketPathGetter == nil {
		deps.SocketPathGetter = func() (string, error) { return resolveSocket(socketPath) }
	}

	if err := cfg.Validate(); err != nil {
		return oops.Wrapf(err, "invalid configuration")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	level := new(slog.LevelVar)
	logger := deps.BootDeps.Logger
	if logger == nil {
		logger = logging.SetDefault(logging.Options{
			Service: "nfive",
			Version: version,
			Format:  cfg.logFormat,
			Level:   level,
		})
	}

	local := host.NewLocal(cfg.root, host.WithLogger(logger))
	bootDeps := deps.BootDeps
	if bootDeps.Host == nil {
		bootDeps.Host = local
	}
	bootDeps.Logger = logger
	if bootDeps.LogLevel == nil {
		bootDeps.LogLevel = level
	}
	bootDeps.ConfigOptions = append(bootDeps.ConfigOptions, config.WithFlags(cmd.Flags()))

	var seq *boot.Sequencer
	state := func() string { return seq.State().String() }

	var obsServer ObservabilityServer
	if cfg.metricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.metricsAddr, logger, state)
		if bootDeps.Metrics == nil {
			bootDeps.Metrics = obsServer.Metrics()
		}
	}

	seq = boot.New(bootDeps)

	shutdownCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	}

	if obsServer != nil {
		obsServer.SetReadiness(seq.Ready)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrapf(err, "start observability server")
		}
		go monitorServerErrors(ctx, stop, obsErrCh, "observability", logger)
		logger.Info("observability server started", "addr", obsServer.Addr())
		defer func() {
			sctx, cancel := shutdownCtx()
			defer cancel()
			if err := obsServer.Stop(sctx); err != nil {
				logger.Warn("error stopping observability server", "error", err)
			}
		}()
	}

	local.Start(ctx)
	defer local.Stop()

	path, err := deps.SocketPathGetter()
	if err != nil {
		return err
	}
	ctrl := deps.ControlServerFactory(path, control.Deps{
		Boot:     seq,
		Host:     local,
		Checkers: func() []control.HealthChecker { return healthCheckers(seq.Registry()) },
		Shutdown: stop,
		Logger:   logger,
	})
	if err := ctrl.Start(); err != nil {
		return err
	}
	defer func() {
		sctx, cancel := shutdownCtx()
		defer cancel()
		if err := ctrl.Stop(sctx); err != nil {
			logger.Warn("error stopping control server", "error", err)
		}
	}()
	defer closeControllers(seq.Registry(), logger)

	if err := seq.Boot(ctx); err != nil {
		return err
	}

	cmd.Println("NFive server started")
	if deps.Started != nil {
		deps.Started(seq)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// healthCheckers returns every registered controller that can report its health.
func healthCheckers(reg *controller.Registry) []control.HealthChecker {
	var out []control.HealthChecker
	for _, name := range reg.Names() {
		insts, _ := reg.Get(name)
		for _, inst := range insts {
			if hc, ok := inst.Controller.(control.HealthChecker); ok {
				out = append(out, hc)
			}
		}
	}
	return out
}

// closeControllers releases controllers holding resources, newest first.
func closeControllers(reg *controller.Registry, logger *slog.Logger) {
	type closer interface{ Close() }

	names := reg.Names()
	for i := len(names) - 1; i >= 0; i-- {
		insts, _ := reg.Get(names[i])
		for j := len(insts) - 1; j >= 0; j-- {
			if c, ok := insts[j].Controller.(closer); ok {
				c.Close()
				logger.Debug("controller closed", "plugin", names[i].String())
			}
		}
	}
}

// monitorServerErrors cancels the process on the first server error.
// It exits when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
