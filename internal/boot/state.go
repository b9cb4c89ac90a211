// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package boot

// State is the boot sequencer's lifecycle state.
type State int32

// Boot states. A sequencer moves Uninitialized → Booting → Ready or Failed
// and never leaves Ready or Failed.
const (
	StateUninitialized State = iota
	StateBooting
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBooting:
		return "booting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// stateNames lists every state name, for metrics.
var stateNames = []string{
	StateUninitialized.String(),
	StateBooting.String(),
	StateReady.String(),
	StateFailed.String(),
}
