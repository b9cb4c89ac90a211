// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package migration

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"

	"github.com/nfive/server/pkg/sdk"
)

// Step is one migration of a source.
type Step struct {
	Version    uint
	Identifier string
}

func (s Step) String() string {
	return fmt.Sprintf("%d_%s", s.Version, s.Identifier)
}

// Steps lists the up migrations of src in version order.
func Steps(src sdk.MigrationSource) ([]Step, error) {
	fsys, dir := src.Migrations()
	drv, err := iofs.New(fsys, dir)
	if err != nil {
		return nil, oops.Code("MIGRATION_OPEN_FAILED").
			With("model", src.Model()).
			Wrapf(err, "read migration source")
	}
	defer drv.Close() //nolint:errcheck // read-only source

	return listSteps(drv)
}

// listSteps walks drv from its first version.
func listSteps(drv source.Driver) ([]Step, error) {
	var steps []Step
	v, err := drv.First()
	for err == nil {
		step, rerr := readStep(drv, v)
		if rerr != nil {
			return nil, rerr
		}
		steps = append(steps, step)
		v, err = drv.Next(v)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, oops.Code("MIGRATION_OPEN_FAILED").Wrapf(err, "walk migration source")
	}
	return steps, nil
}

func readStep(drv source.Driver, v uint) (Step, error) {
	r, identifier, err := drv.ReadUp(v)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Step{Version: v}, nil
		}
		return Step{}, oops.Code("MIGRATION_OPEN_FAILED").With("version", v).Wrap(err)
	}
	_ = r.Close() //nolint:errcheck // only the identifier is needed
	return Step{Version: v, Identifier: identifier}, nil
}

// StepsAfter returns the steps newer than version.
func StepsAfter(steps []Step, version uint, applied bool) []string {
	var pending []string
	for _, s := range steps {
		if applied && s.Version <= version {
			continue
		}
		pending = append(pending, s.String())
	}
	return pending
}
