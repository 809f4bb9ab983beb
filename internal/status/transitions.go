package status

import "fmt"

// Operation is a convergence step applied to one machine.
type Operation string

const (
	OpCreate Operation = "create"
	OpStart  Operation = "start"
	OpStop   Operation = "stop"
	OpRemove Operation = "remove"
)

// Transition returns the state op leads to from current, and whether the
// hypervisor has to be changed to get there. Operations already satisfied
// by current are no-ops, which is what makes repeated runs idempotent.
func Transition(current DomainState, op Operation) (next DomainState, act bool, err error) {
	switch op {
	case OpCreate:
		if current == StateAbsent {
			return StateStopped, true, nil
		}
		return current, false, nil
	case OpStart:
		switch current {
		case StateAbsent:
			return current, false, fmt.Errorf("cannot start: machine is not created")
		case StateStopped:
			return StateRunning, true, nil
		}
		return current, false, nil
	case OpStop:
		if current == StateRunning {
			return StateStopped, true, nil
		}
		return current, false, nil
	case OpRemove:
		if current.Defined() {
			return StateAbsent, true, nil
		}
		return current, false, nil
	default:
		return current, false, fmt.Errorf("unknown operation %q", op)
	}
}
