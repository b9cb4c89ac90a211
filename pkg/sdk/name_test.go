// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package sdk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfive/server/pkg/errutil"
	"github.com/nfive/server/pkg/sdk"
)

func TestParseName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    sdk.Name
		wantErr bool
	}{
		{name: "vendor and project", input: "NFive/Server", want: sdk.Name{Vendor: "NFive", Project: "Server"}},
		{name: "surrounding whitespace", input: "  acme/economy ", want: sdk.Name{Vendor: "acme", Project: "economy"}},
		{name: "missing separator", input: "acme", wantErr: true},
		{name: "empty vendor", input: "/economy", wantErr: true},
		{name: "empty project", input: "acme/", wantErr: true},
		{name: "too many segments", input: "acme/economy/extra", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sdk.ParseName(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "INVALID_PLUGIN_NAME")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestName_EqualityByValue(t *testing.T) {
	a := sdk.MustParseName("acme/economy")
	b := sdk.Name{Vendor: "acme", Project: "economy"}

	assert.Equal(t, a, b)
	m := map[sdk.Name]int{a: 1}
	assert.Equal(t, 1, m[b])
	assert.Equal(t, "acme/economy", b.String())
	assert.False(t, b.IsZero())
	assert.True(t, sdk.Name{}.IsZero())
}

func TestMustParseName_Panics(t *testing.T) {
	assert.Panics(t, func() { sdk.MustParseName("bogus") })
}
