package admin

import (
	"errors"
	"fmt"
)

// ErrPreconditionNotMet matches every failure raised by a guard before the
// call reaches the device.
var ErrPreconditionNotMet = errors.New("precondition not met")

var (
	// ErrPINRequired means neither a per-call nor a session PIN was set.
	ErrPINRequired = errors.New("this operation requires a pin")
	// ErrSSLRequired means the connection is not TLS-protected.
	ErrSSLRequired = errors.New("this operation requires ssl")
)

// PreconditionError is returned by guards. It matches both its cause and
// ErrPreconditionNotMet.
type PreconditionError struct {
	Op  string
	Err error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PreconditionError) Unwrap() []error {
	return []error{e.Err, ErrPreconditionNotMet}
}
