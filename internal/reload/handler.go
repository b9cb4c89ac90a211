// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

// Package reload serves the "reload" admin command, which reloads the
// controllers of some or all registered plugins in place.
package reload

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/nfive/server/internal/controller"
	"github.com/nfive/server/pkg/errutil"
	"github.com/nfive/server/pkg/sdk"
)

// Event is the raw host event carrying admin commands.
const Event = "rconCommand"

// Command is the admin command this package handles.
const Command = "reload"

// Reload outcomes reported to the Recorder.
const (
	OutcomeOK      = "ok"
	OutcomeFault   = "fault"
	OutcomeIgnored = "ignored"
)

// Recorder observes reload invocations.
type Recorder interface {
	ReloadCompleted(outcome string)
}

// Deps holds the Handler's collaborators.
type Deps struct {
	Registry *controller.Registry
	Binder   controller.Binder
	// Ready reports whether boot has finished. Reloads before then are ignored.
	Ready   func() bool
	Logger  *slog.Logger
	Metrics Recorder
}

// Handler reloads controllers on request.
type Handler struct {
	deps Deps
}

// New creates a reload handler.
func New(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Ready == nil {
		deps.Ready = func() bool { return true }
	}
	return &Handler{deps: deps}
}

// Handle is the raw event handler for Event. The first argument is the
// command name and the rest are plugin names or glob patterns. Any reload
// command is cancelled once handled, faults included; other commands are
// left untouched.
func (h *Handler) Handle(ctx context.Context, ev *sdk.RawEvent) {
	cmd, args, ok := parseCommand(ev.Args)
	if !ok || !strings.EqualFold(cmd, Command) {
		return
	}
	defer ev.Cancel()

	if !h.deps.Ready() {
		h.deps.Logger.Debug("reload ignored before boot completes", "source", ev.Source)
		h.record(OutcomeIgnored)
		return
	}

	if err := h.run(ctx, args); err != nil {
		errutil.LogErrorLevel(h.deps.Logger, slog.LevelDebug, "reload fault discarded", err)
		h.record(OutcomeFault)
		return
	}
	h.record(OutcomeOK)
}

// run reloads every target, stopping at the first fault.
func (h *Handler) run(ctx context.Context, args []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = oops.Code("RELOAD_PANIC").With("panic", r).Errorf("reload panicked: %v", r)
		}
	}()

	targets, err := h.Targets(args)
	if err != nil {
		return err
	}
	reloaded := 0
	for _, name := range targets {
		insts, ok := h.deps.Registry.Get(name)
		if !ok {
			continue
		}
		for _, inst := range insts {
			if err := h.reloadInstance(ctx, inst); err != nil {
				return err
			}
			reloaded++
		}
	}
	h.deps.Logger.Info("controllers reloaded", "plugins", len(targets), "controllers", reloaded)
	return nil
}

// Targets resolves command arguments to registered plugin names. No
// arguments means every registered plugin. Names that are not registered
// are dropped.
func (h *Handler) Targets(args []string) ([]sdk.Name, error) {
	names := h.deps.Registry.Names()
	if len(args) == 0 {
		return names, nil
	}

	registered := make(map[sdk.Name]struct{}, len(names))
	for _, n := range names {
		registered[n] = struct{}{}
	}

	var targets []sdk.Name
	seen := make(map[sdk.Name]struct{})
	add := func(n sdk.Name) {
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		targets = append(targets, n)
	}

	for _, arg := range args {
		if isPattern(arg) {
			g, err := glob.Compile(arg, '/')
			if err != nil {
				return nil, oops.Code("RELOAD_PATTERN_INVALID").With("pattern", arg).Wrap(err)
			}
			for _, n := range names {
				if g.Match(n.String()) {
					add(n)
				}
			}
			continue
		}
		n, err := sdk.ParseName(arg)
		if err != nil {
			continue
		}
		if _, ok := registered[n]; ok {
			add(n)
		}
	}
	return targets, nil
}

func (h *Handler) reloadInstance(ctx context.Context, inst controller.Instance) error {
	errb := oops.With("plugin", inst.Plugin.String())
	if inst.Constructor == nil {
		if err := inst.Controller.Reload(ctx); err != nil {
			return errb.Wrap(err)
		}
		return nil
	}

	errb = errb.With("controller", inst.Constructor.ControllerName())
	var cfg any
	if t := inst.Constructor.ConfigType(); t != nil {
		if h.deps.Binder == nil {
			return errb.Errorf("no configuration binder for %s", t)
		}
		bound, err := h.deps.Binder.Bind(inst.Plugin, t, inst.Constructor.DefaultConfig())
		if err != nil {
			return errb.Wrap(err)
		}
		cfg = bound
	}
	if err := inst.Constructor.Reconfigure(ctx, inst.Controller, cfg); err != nil {
		return errb.Wrap(err)
	}
	h.deps.Logger.Debug("controller reloaded",
		"plugin", inst.Plugin.String(),
		"controller", inst.Constructor.ControllerName(),
	)
	return nil
}

func (h *Handler) record(outcome string) {
	if h.deps.Metrics != nil {
		h.deps.Metrics.ReloadCompleted(outcome)
	}
}

func isPattern(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

func parseCommand(args []any) (string, []string, bool) {
	if len(args) == 0 {
		return "", nil, false
	}
	cmd, ok := args[0].(string)
	if !ok {
		return "", nil, false
	}
	rest := make([]string, 0, len(args)-1)
	for _, a := range args[1:] {
		if s, ok := a.(string); ok {
			rest = append(rest, s)
			continue
		}
		rest = append(rest, fmt.Sprint(a))
	}
	return cmd, rest, true
}
