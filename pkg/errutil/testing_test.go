// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package errutil_test

import (
	"errors"
	"testing"

	"github.com/samber/oops"

	"github.com/nfive/server/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("MIGRATIONS_PENDING").Errorf("pending")
	errutil.AssertErrorCode(t, err, "MIGRATIONS_PENDING")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("plugin", "acme/economy").Errorf("pending")
	errutil.AssertErrorContext(t, err, "plugin", "acme/economy")
}

func TestAssertErrorCodeIs_WrappedSentinel(t *testing.T) {
	sentinel := errors.New("module not found")
	err := oops.Code("MODULE_NOT_FOUND").With("plugin", "acme/bank").Wrapf(sentinel, "main module bank")
	errutil.AssertErrorCodeIs(t, err, "MODULE_NOT_FOUND", sentinel)
}
