// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/nfive/server/pkg/sdk"
)

// PluginDir is the directory plugin configuration lives under.
const PluginDir = "config"

// Binder binds configuration files to controller configuration types.
//
// Core controllers read {root}/{file}.yml; plugin controllers read
// {root}/config/{vendor}/{project}/{file}.yml. A missing file is created
// from the constructor's defaults.
type Binder struct {
	root   string
	logger *slog.Logger
}

// BinderOption configures a Binder.
type BinderOption func(*Binder)

// WithBinderLogger sets the logger used when default files are written.
func WithBinderLogger(l *slog.Logger) BinderOption {
	return func(b *Binder) {
		b.logger = l
	}
}

// NewBinder creates a binder rooted at the resource root.
func NewBinder(root string, opts ...BinderOption) *Binder {
	b := &Binder{root: root, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// FileName returns the configuration file name for t, without extension.
func FileName(t reflect.Type) string {
	if filer, ok := reflect.Zero(t).Interface().(sdk.ConfigFiler); ok {
		return filer.ConfigFile()
	}
	if t.Kind() != reflect.Pointer {
		if filer, ok := reflect.New(t).Interface().(sdk.ConfigFiler); ok {
			return filer.ConfigFile()
		}
	}

	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	if idx := strings.IndexByte(name, '['); idx >= 0 {
		name = name[:idx]
	}
	for _, suffix := range []string{"Configuration", "Config"} {
		if trimmed := strings.TrimSuffix(name, suffix); trimmed != name && trimmed != "" {
			name = trimmed
			break
		}
	}
	return strings.ToLower(name)
}

// Path returns where the configuration of type t for plugin lives.
func (b *Binder) Path(plugin sdk.Name, t reflect.Type) string {
	fileName := FileName(t) + ".yml"
	if plugin == sdk.CoreName {
		return filepath.Join(b.root, fileName)
	}
	return filepath.Join(b.root, PluginDir, plugin.Vendor, plugin.Project, fileName)
}

// Bind returns a value of exactly type t read from the plugin's
// configuration file. Keys missing from the file keep the values in
// defaults. If the file does not exist it is created from defaults.
func (b *Binder) Bind(plugin sdk.Name, t reflect.Type, defaults any) (any, error) {
	if t == nil {
		return nil, oops.Code("CONFIGURATION_INVALID").
			With("plugin", plugin.String()).
			Wrapf(ErrInvalid, "no configuration type declared")
	}
	path := b.Path(plugin, t)

	target := reflect.New(t)
	if defaults != nil {
		dv := reflect.ValueOf(defaults)
		if !dv.Type().AssignableTo(t) {
			return nil, oops.Code("CONFIGURATION_INVALID").
				With("plugin", plugin.String()).
				With("type", t.String()).
				Wrapf(ErrInvalid, "defaults of type %s do not match %s", dv.Type(), t)
		}
		target.Elem().Set(dv)
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := b.writeDefaults(path, target.Interface()); err != nil {
			return nil, oops.Code("CONFIGURATION_INVALID").
				With("plugin", plugin.String()).
				With("path", path).
				Wrapf(errors.Join(ErrInvalid, err), "write default configuration")
		}
		b.logger.Info("created default configuration",
			"plugin", plugin.String(),
			"path", path,
		)
		return target.Elem().Interface(), nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, oops.Code("CONFIGURATION_INVALID").
			With("plugin", plugin.String()).
			With("path", path).
			Wrapf(errors.Join(ErrInvalid, err), "load plugin configuration")
	}
	if err := k.UnmarshalWithConf("", target.Interface(), koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, oops.Code("CONFIGURATION_INVALID").
			With("plugin", plugin.String()).
			With("path", path).
			With("type", t.String()).
			Wrapf(errors.Join(ErrInvalid, err), "bind plugin configuration")
	}
	return target.Elem().Interface(), nil
}

func (b *Binder) writeDefaults(path string, value any) error {
	data, err := yamlv3.Marshal(value)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
