// Package status derives machine state from the hypervisor and defines the
// transitions the engine applies between states.
package status

import (
	"fmt"

	"github.com/digitalocean/go-libvirt"
)

// DomainState is the coarse state of a machine. It is always derived from a
// fresh hypervisor query and never cached.
type DomainState string

const (
	// StateAbsent means no domain is defined.
	StateAbsent DomainState = "absent"
	// StateStopped means the domain is defined but not running.
	StateStopped DomainState = "stopped"
	// StateRunning means the domain is running.
	StateRunning DomainState = "running"
)

// FromLibvirt maps a libvirt domain state to a DomainState. Only running and
// blocked domains count as running; paused, suspended, and crashed domains
// are defined but not running.
func FromLibvirt(state int32) DomainState {
	switch libvirt.DomainState(state) {
	case libvirt.DomainRunning, libvirt.DomainBlocked:
		return StateRunning
	default:
		return StateStopped
	}
}

// Describe converts a libvirt domain state to its virsh name.
func Describe(state int32) string {
	switch libvirt.DomainState(state) {
	case libvirt.DomainNostate:
		return "no state"
	case libvirt.DomainRunning:
		return "running"
	case libvirt.DomainBlocked:
		return "blocked"
	case libvirt.DomainPaused:
		return "paused"
	case libvirt.DomainShutdown:
		return "shutdown"
	case libvirt.DomainShutoff:
		return "shutoff"
	case libvirt.DomainCrashed:
		return "crashed"
	case libvirt.DomainPmsuspended:
		return "pmsuspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// Defined reports whether a domain exists in this state.
func (s DomainState) Defined() bool {
	return s == StateStopped || s == StateRunning
}

// Active reports whether a libvirt domain state has a live QEMU process
// that has to be destroyed before the domain can be removed.
func Active(state int32) bool {
	switch libvirt.DomainState(state) {
	case libvirt.DomainNostate, libvirt.DomainShutoff, libvirt.DomainCrashed:
		return false
	default:
		return true
	}
}
