// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

// Package plugin loads plugin binaries and sorts their exports.
package plugin

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"

	"github.com/nfive/server/internal/lockfile"
	"github.com/nfive/server/pkg/sdk"
)

// Dir is the plugin directory under the resource root.
const Dir = "plugins"

// LoadedModule is a main module whose exports are ready to classify.
type LoadedModule struct {
	Name    string
	Path    string
	Exports []any
}

// Loader opens the binaries a lock definition lists.
type Loader struct {
	dir     string
	opener  Opener
	logger  *slog.Logger
	version *semver.Version
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the loader's logger.
func WithLogger(l *slog.Logger) LoaderOption {
	return func(ld *Loader) {
		ld.logger = l
	}
}

// WithSDKVersion overrides the SDK version modules are checked against.
func WithSDKVersion(v *semver.Version) LoaderOption {
	return func(ld *Loader) {
		ld.version = v
	}
}

// NewLoader creates a loader reading binaries below dir.
func NewLoader(dir string, opener Opener, opts ...LoaderOption) *Loader {
	l := &Loader{
		dir:     dir,
		opener:  opener,
		logger:  slog.Default(),
		version: semver.MustParse(sdk.Version),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IncludePath returns where an include module of plugin is read from.
func (l *Loader) IncludePath(plugin sdk.Name, module string) string {
	return filepath.Join(l.dir, plugin.Vendor, plugin.Project, module+".so")
}

// MainPath returns where a main module of plugin is read from.
func (l *Loader) MainPath(plugin sdk.Name, module string) string {
	return filepath.Join(l.dir, plugin.Vendor, plugin.Project, module+".main.so")
}

// LoadIncludes opens every include of def in list order. Includes are
// never unloaded.
func (l *Loader) LoadIncludes(ctx context.Context, def lockfile.Definition) error {
	for _, name := range def.Include {
		if err := ctx.Err(); err != nil {
			return oops.Wrap(err)
		}
		ref := ModuleRef{Plugin: def.Name, Name: name, Role: RoleInclude, Path: l.IncludePath(def.Name, name)}
		m, err := l.opener.Open(ref)
		if err != nil {
			return oops.With("definition", def.FullName()).Wrap(err)
		}
		if m != nil {
			if err := l.checkCompatible(ref, m); err != nil {
				return err
			}
		}
		l.logger.Debug("include loaded", "plugin", def.FullName(), "module", name)
	}
	return nil
}

// LoadMain opens the main module name of def. Callers open the includes
// first and process each main before loading the next.
func (l *Loader) LoadMain(ctx context.Context, def lockfile.Definition, name string) (LoadedModule, error) {
	if err := ctx.Err(); err != nil {
		return LoadedModule{}, oops.Wrap(err)
	}
	ref := ModuleRef{Plugin: def.Name, Name: name, Role: RoleMain, Path: l.MainPath(def.Name, name)}
	m, err := l.opener.Open(ref)
	if err != nil {
		return LoadedModule{}, oops.With("definition", def.FullName()).Wrap(err)
	}
	if m == nil {
		return LoadedModule{}, oops.Code("MODULE_SYMBOL_INVALID").
			With("plugin", def.FullName()).
			With("module", name).
			Errorf("main module %s has no manifest", name)
	}
	if err := l.checkCompatible(ref, m); err != nil {
		return LoadedModule{}, err
	}
	l.logger.Debug("main loaded", "plugin", def.FullName(), "module", name, "exports", len(m.Exports))
	return LoadedModule{
		Name:    name,
		Path:    ref.Path,
		Exports: append([]any(nil), m.Exports...),
	}, nil
}

func (l *Loader) checkCompatible(ref ModuleRef, m *sdk.Module) error {
	if m.Requires == "" {
		return nil
	}
	c, err := semver.NewConstraint(m.Requires)
	if err != nil {
		return oops.Code("MODULE_INCOMPATIBLE").
			With("plugin", ref.Plugin.String()).
			With("module", ref.Name).
			Wrapf(err, "invalid SDK constraint %q", m.Requires)
	}
	if !c.Check(l.version) {
		return oops.Code("MODULE_INCOMPATIBLE").
			With("plugin", ref.Plugin.String()).
			With("module", ref.Name).
			With("requires", m.Requires).
			With("sdk", l.version.String()).
			Errorf("module %s requires SDK %s", ref.Name, m.Requires)
	}
	return nil
}
