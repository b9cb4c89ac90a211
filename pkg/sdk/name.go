// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

// Package sdk is the contract between the NFive server and its plugins.
//
// A plugin's main binary exposes a Module listing its exports. Exports are
// classified by type: MigrationSource values describe schema migrations,
// ControllerConstructor values build long-lived controllers. Anything else
// in the export list is ignored by the server.
//
//	var Module = sdk.NewModule("economy",
//		sdk.Migrations("accounts", migrationsFS, "migrations"),
//		sdk.Plain("Bank", NewBank),
//		sdk.Configurable("Shop", NewShop).WithDefaults(DefaultShopConfig),
//	)
package sdk

import (
	"strings"

	"github.com/samber/oops"
)

// Version is the SDK version modules are checked against.
const Version = "1.0.0"

// CoreName is the reserved name the server registers its own controllers under.
var CoreName = Name{Vendor: "NFive", Project: "Server"}

// Name identifies a plugin by vendor and project.
type Name struct {
	Vendor  string
	Project string
}

// ParseName parses a "vendor/project" string.
func ParseName(s string) (Name, error) {
	vendor, project, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || vendor == "" || project == "" || strings.Contains(project, "/") {
		return Name{}, oops.Code("INVALID_PLUGIN_NAME").
			With("name", s).
			Errorf("plugin name %q must be in vendor/project form", s)
	}
	return Name{Vendor: vendor, Project: project}, nil
}

// MustParseName is like ParseName but panics on error.
func MustParseName(s string) Name {
	n, err := ParseName(s)
	if err != nil {
		panic(err)
	}
	return n
}

func (n Name) String() string {
	return n.Vendor + "/" + n.Project
}

// IsZero reports whether n is the zero Name.
func (n Name) IsZero() bool {
	return n.Vendor == "" && n.Project == ""
}
