package operations

import (
	"errors"
	"fmt"

	"github.com/chenchongli/kinetic-go/internal/protocol"
)

// Operation is the encode/decode behavior of one command.
type Operation[T any] interface {
	// Name identifies the command in logs, audit entries and errors.
	Name() string
	// Build returns the request command and its value.
	Build() (*protocol.Command, []byte, error)
	// Parse decodes a response whose status is SUCCESS.
	Parse(cmd *protocol.Command, value []byte) (T, error)
	// OnError turns any failure of the call into the caller-visible outcome.
	// It must not panic.
	OnError(err error) (T, error)
}

// ErrInvalidArgument is returned by Build when the call arguments cannot
// form a valid request.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrMalformedResponse means a SUCCESS response lacked the expected body.
var ErrMalformedResponse = errors.New("malformed response")

// OperationError is the failure shape every operation returns from OnError.
type OperationError struct {
	Op     string
	Detail string
	Err    error
}

func (e *OperationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Detail, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// none is the result of commands that only report success or failure.
type none = struct{}

// statusOnly is embedded by operations whose successful response carries
// nothing beyond the status.
type statusOnly struct {
	name string
}

func (s statusOnly) Name() string { return s.name }

func (s statusOnly) Parse(*protocol.Command, []byte) (none, error) {
	return none{}, nil
}

func (s statusOnly) OnError(err error) (none, error) {
	return none{}, &OperationError{Op: s.name, Err: err}
}
