// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package plugin

import (
	"fmt"
	"log/slog"

	"github.com/nfive/server/pkg/sdk"
)

// Kind is the category of a module export.
type Kind int

// Export kinds.
const (
	KindUnknown Kind = iota
	KindMigration
	KindPlainController
	KindConfigurableController
)

func (k Kind) String() string {
	switch k {
	case KindMigration:
		return "migration"
	case KindPlainController:
		return "controller"
	case KindConfigurableController:
		return "configurable-controller"
	default:
		return "unknown"
	}
}

// KindOf returns the category of a single export.
func KindOf(export any) Kind {
	switch v := export.(type) {
	case sdk.MigrationSource:
		return KindMigration
	case sdk.ControllerConstructor:
		if v.ConfigType() != nil {
			return KindConfigurableController
		}
		return KindPlainController
	default:
		return KindUnknown
	}
}

// Classification holds a module's exports sorted by kind, each bucket in
// export order.
type Classification struct {
	Migrations  []sdk.MigrationSource
	Controllers []sdk.ControllerConstructor
}

// Classify sorts exports into migrations and controller constructors.
// Exports of any other type are dropped.
func Classify(exports []any) Classification {
	return ClassifyWithLogger(exports, nil)
}

// ClassifyWithLogger is Classify, logging dropped exports at debug level.
func ClassifyWithLogger(exports []any, logger *slog.Logger) Classification {
	var c Classification
	for _, export := range exports {
		switch KindOf(export) {
		case KindMigration:
			c.Migrations = append(c.Migrations, export.(sdk.MigrationSource))
		case KindPlainController, KindConfigurableController:
			c.Controllers = append(c.Controllers, export.(sdk.ControllerConstructor))
		default:
			if logger != nil {
				logger.Debug("ignoring export", "type", fmt.Sprintf("%T", export))
			}
		}
	}
	return c
}
