// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package boot

import "fmt"

// Status is a point-in-time view of the boot and its registrations.
type Status struct {
	BootID      string             `json:"boot_id"`
	State       string             `json:"state"`
	Plugins     []string           `json:"plugins"`
	Controllers []ControllerStatus `json:"controllers"`
}

// ControllerStatus describes one registered controller.
type ControllerStatus struct {
	Plugin     string `json:"plugin"`
	Controller string `json:"controller"`
}

// Status returns the current status.
func (s *Sequencer) Status() Status {
	st := Status{
		BootID:  s.id.String(),
		State:   s.State().String(),
		Plugins: s.Plugins(),
	}
	for _, name := range s.registry.Names() {
		insts, _ := s.registry.Get(name)
		for _, inst := range insts {
			ctrl := fmt.Sprintf("%T", inst.Controller)
			if inst.Constructor != nil {
				ctrl = inst.Constructor.ControllerName()
			}
			st.Controllers = append(st.Controllers, ControllerStatus{Plugin: name.String(), Controller: ctrl})
		}
	}
	return st
}
