// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

// Package lockfile reads nfive.lock, the dependency-ordered list of plugins
// the server loads at boot.
package lockfile

import (
	"os"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"

	"github.com/nfive/server/pkg/sdk"
)

// FileName is the lock file name under the resource root.
const FileName = "nfive.lock"

// File is the on-disk shape of nfive.lock.
type File struct {
	Plugins []Entry `json:"plugins" yaml:"plugins" jsonschema:"description=Plugins in load order"`
}

// Entry is one locked plugin.
type Entry struct {
	Name    string `json:"name" yaml:"name" jsonschema:"required,pattern=^[^/\\s]+/[^/\\s]+$,description=vendor/project"`
	Version string `json:"version" yaml:"version" jsonschema:"required,minLength=1"`
	Server  Server `json:"server,omitempty" yaml:"server,omitempty"`
}

// Server lists the server-side binaries of a plugin.
type Server struct {
	Include []string `json:"include,omitempty" yaml:"include,omitempty" jsonschema:"description=Shared modules opened before any main"`
	Main    []string `json:"main,omitempty" yaml:"main,omitempty" jsonschema:"description=Modules whose exports are registered"`
}

// Definition is a validated lock entry.
type Definition struct {
	Name    sdk.Name
	Version *semver.Version
	Include []string
	Main    []string
}

// FullName returns vendor/project@version.
func (d Definition) FullName() string {
	return d.Name.String() + "@" + d.Version.Original()
}

var moduleName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Load reads and validates the lock file at path.
func Load(path string) ([]Definition, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is under the resource root
	if err != nil {
		return nil, oops.Code("LOCKFILE_INVALID").
			With("path", path).
			Wrapf(err, "read lock file")
	}
	defs, err := Parse(data)
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return defs, nil
}

// Parse validates lock file data and returns the definitions in file order.
func Parse(data []byte) ([]Definition, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, oops.Code("LOCKFILE_INVALID").Wrap(err)
	}

	root, err := decode(data)
	if err != nil {
		return nil, oops.Code("LOCKFILE_INVALID").Wrap(err)
	}
	var f File
	if err := root.Decode(&f); err != nil {
		return nil, oops.Code("LOCKFILE_INVALID").Wrapf(err, "invalid YAML")
	}

	defs := make([]Definition, 0, len(f.Plugins))
	seen := make(map[sdk.Name]struct{}, len(f.Plugins))
	for i, e := range f.Plugins {
		def, err := e.definition()
		if err != nil {
			return nil, oops.Code("LOCKFILE_INVALID").
				With("index", i).
				With("plugin", e.Name).
				Wrap(err)
		}
		if _, dup := seen[def.Name]; dup {
			return nil, oops.Code("LOCKFILE_INVALID").
				With("index", i).
				With("plugin", e.Name).
				Errorf("plugin %s is locked more than once", def.Name)
		}
		seen[def.Name] = struct{}{}
		defs = append(defs, def)
	}
	return defs, nil
}

func (e Entry) definition() (Definition, error) {
	name, err := sdk.ParseName(e.Name)
	if err != nil {
		return Definition{}, oops.Errorf("invalid plugin name %q", e.Name)
	}
	version, err := semver.NewVersion(e.Version)
	if err != nil {
		return Definition{}, oops.Wrapf(err, "invalid version %q", e.Version)
	}
	for _, list := range [][]string{e.Server.Include, e.Server.Main} {
		for _, m := range list {
			if !moduleName.MatchString(m) {
				return Definition{}, oops.Errorf("invalid module name %q", m)
			}
		}
	}
	return Definition{
		Name:    name,
		Version: version,
		Include: append([]string(nil), e.Server.Include...),
		Main:    append([]string(nil), e.Server.Main...),
	}, nil
}
