// Package vm converges declared machines to libvirt state.
//
// An Engine holds one manifest and the collaborators it drives: libvirt,
// the storage pool, the image builder, and the action executor. Every
// operation queries domain state fresh from libvirt and only changes what
// differs from the declaration, so repeating an operation is a no-op.
//
// Machine lifecycle:
//
//	absent --create--> stopped --start--> running
//	   ^                  ^                  |
//	   |                  +-------stop-------+
//	   +------remove------(any defined state)
//
// A machine's actions run once, on the create that defines its domain:
// the domain is started, the actions run, and the domain is stopped
// again. If anything fails after resources were created, the engine
// removes what it created and joins any cleanup errors with the original
// one.
//
// Operations run machines one after another on the caller's goroutine.
// Cancelling the context aborts the current step and the batch is
// reported as interrupted.
package vm
