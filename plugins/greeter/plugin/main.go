// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

// Command plugin builds the greeter module for -buildmode=plugin.
package main

import (
	"github.com/nfive/server/pkg/sdk"
	"github.com/nfive/server/plugins/greeter"
)

// Module is the manifest symbol the server looks up.
var Module = greeter.NewModule()

var _ *sdk.Module = Module

func main() {}
