// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package plugin

import (
	"errors"
	"os"
	stdplugin "plugin"

	"github.com/samber/oops"

	"github.com/nfive/server/pkg/sdk"
)

// ErrModuleNotFound is wrapped when a plugin binary does not exist.
var ErrModuleNotFound = errors.New("plugin module not found")

// ModuleRole distinguishes shared include modules from main modules.
type ModuleRole int

// Module roles.
const (
	RoleInclude ModuleRole = iota
	RoleMain
)

func (r ModuleRole) String() string {
	if r == RoleInclude {
		return "include"
	}
	return "main"
}

// ModuleRef identifies one binary of a plugin.
type ModuleRef struct {
	Plugin sdk.Name
	Name   string
	Role   ModuleRole
	Path   string
}

// Opener loads a plugin binary into the running process.
//
// For includes the returned module may be nil: an include only has to
// bring its types into the process. For mains it must be the binary's
// exported module manifest.
type Opener interface {
	Open(ref ModuleRef) (*sdk.Module, error)
}

// NativeOpener opens shared objects built with -buildmode=plugin.
type NativeOpener struct{}

// Open implements Opener.
func (NativeOpener) Open(ref ModuleRef) (*sdk.Module, error) {
	if _, err := os.Stat(ref.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFound(ref, ErrModuleNotFound)
		}
		return nil, oops.Code("MODULE_OPEN_FAILED").
			With("plugin", ref.Plugin.String()).
			With("path", ref.Path).
			Wrap(err)
	}

	p, err := stdplugin.Open(ref.Path)
	if err != nil {
		return nil, oops.Code("MODULE_OPEN_FAILED").
			With("plugin", ref.Plugin.String()).
			With("path", ref.Path).
			Wrapf(err, "open %s module %s", ref.Role, ref.Name)
	}
	if ref.Role == RoleInclude {
		return nil, nil
	}

	sym, err := p.Lookup(sdk.ModuleSymbol)
	if err != nil {
		return nil, oops.Code("MODULE_SYMBOL_INVALID").
			With("plugin", ref.Plugin.String()).
			With("path", ref.Path).
			Wrapf(err, "module %s does not export %s", ref.Name, sdk.ModuleSymbol)
	}
	switch m := sym.(type) {
	case *sdk.Module:
		return m, nil
	case **sdk.Module:
		if *m != nil {
			return *m, nil
		}
	}
	return nil, oops.Code("MODULE_SYMBOL_INVALID").
		With("plugin", ref.Plugin.String()).
		With("path", ref.Path).
		Errorf("symbol %s has type %T, want *sdk.Module", sdk.ModuleSymbol, sym)
}

// StaticOpener resolves modules compiled into the host binary from a
// registration table.
type StaticOpener struct {
	Table *sdk.Table
}

// Open implements Opener.
func (o StaticOpener) Open(ref ModuleRef) (*sdk.Module, error) {
	table := o.Table
	if table == nil {
		table = sdk.DefaultTable
	}
	m, ok := table.Lookup(ref.Plugin, ref.Name)
	if !ok {
		return nil, notFound(ref, ErrModuleNotFound)
	}
	return m, nil
}

func notFound(ref ModuleRef, err error) error {
	return oops.Code("MODULE_NOT_FOUND").
		With("plugin", ref.Plugin.String()).
		With("module", ref.Name).
		With("path", ref.Path).
		Wrapf(err, "%s module %s", ref.Role, ref.Name)
}
