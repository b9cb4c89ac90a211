// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

// Package config loads the core server configuration and binds plugin
// configuration files to controller configuration types.
package config

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/nfive/server/internal/logging"
)

// CoreFile is the core configuration file name under the resource root.
const CoreFile = "nfive.yml"

// ErrInvalid is the sentinel wrapped by every configuration failure.
var ErrInvalid = errors.New("invalid configuration")

// Core is the server's own configuration.
type Core struct {
	Log     LogConfig     `koanf:"log"`
	Display DisplayConfig `koanf:"display"`
	// AutomaticMigrations lets boot apply pending plugin migrations instead
	// of refusing to start.
	AutomaticMigrations bool `koanf:"automatic_migrations" env:"NFIVE_AUTOMATIC_MIGRATIONS"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `koanf:"level" env:"NFIVE_LOG_LEVEL"`
}

// DisplayConfig holds what the host shows to players.
type DisplayConfig struct {
	Map string `koanf:"map" env:"NFIVE_DISPLAY_MAP"`
}

// DefaultCore returns the configuration used for keys absent from the file.
func DefaultCore() Core {
	return Core{
		Log:     LogConfig{Level: "info"},
		Display: DisplayConfig{Map: "NFive"},
	}
}

// Validate checks that the configuration is usable.
func (c *Core) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid(err, "log.level")
	}
	if strings.TrimSpace(c.Display.Map) == "" {
		return oops.Code("CONFIGURATION_INVALID").
			With("key", "display.map").
			Wrapf(ErrInvalid, "display.map must not be empty")
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c *Core) SlogLevel() slog.Level {
	level, _ := logging.ParseLevel(c.Log.Level) //nolint:errcheck // Validate rejects bad levels
	return level
}

// LoadOption configures LoadCore.
type LoadOption func(*loadOptions)

type loadOptions struct {
	flags  *pflag.FlagSet
	useEnv bool
}

// WithFlags overlays flags named after configuration keys (for example
// "log.level") on top of the file. Only flags the user changed take effect.
func WithFlags(fs *pflag.FlagSet) LoadOption {
	return func(o *loadOptions) {
		o.flags = fs
	}
}

// WithoutEnv disables environment variable overrides.
func WithoutEnv() LoadOption {
	return func(o *loadOptions) {
		o.useEnv = false
	}
}

// LoadCore reads the core configuration from path. Keys missing from the
// file keep their defaults. Environment variables override the file and
// changed flags override both.
func LoadCore(path string, opts ...LoadOption) (*Core, error) {
	o := loadOptions{useEnv: true}
	for _, opt := range opts {
		opt(&o)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, oops.Code("CONFIGURATION_INVALID").
			With("path", path).
			Wrapf(errors.Join(ErrInvalid, err), "load core configuration")
	}

	cfg := DefaultCore()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIGURATION_INVALID").
			With("path", path).
			Wrapf(errors.Join(ErrInvalid, err), "bind core configuration")
	}
	if o.useEnv {
		if err := env.Parse(&cfg); err != nil {
			return nil, oops.Code("CONFIGURATION_INVALID").
				With("source", "env").
				Wrapf(errors.Join(ErrInvalid, err), "parse environment overrides")
		}
	}
	if o.flags != nil {
		if err := applyFlags(o.flags, &cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return &cfg, nil
}

// applyFlags overlays only the flags the user set.
func applyFlags(fs *pflag.FlagSet, cfg *Core) error {
	fk := koanf.New(".")
	changed := func(f *pflag.Flag) (string, any) {
		if !f.Changed {
			return "", nil
		}
		return f.Name, posflag.FlagVal(fs, f)
	}
	if err := fk.Load(posflag.ProviderWithFlag(fs, ".", nil, changed), nil); err != nil {
		return oops.Code("CONFIGURATION_INVALID").
			With("source", "flags").
			Wrapf(errors.Join(ErrInvalid, err), "load flag overrides")
	}
	if err := fk.Unmarshal("", cfg); err != nil {
		return oops.Code("CONFIGURATION_INVALID").
			With("source", "flags").
			Wrapf(errors.Join(ErrInvalid, err), "bind flag overrides")
	}
	return nil
}

// invalid flattens err so the configuration code is the one reported.
func invalid(err error, key string) error {
	return oops.Code("CONFIGURATION_INVALID").
		With("key", key).
		Wrapf(ErrInvalid, "%s: %s", key, err.Error())
}
