package call

import (
	"errors"
	"fmt"
)

var (
	ErrCallInProgress = errors.New("a call is already in progress")
	ErrNoSession      = errors.New("no active call session")
	ErrInvalidState   = errors.New("operation not valid in current state")
)

// Error wraps an operation name around a sentinel or underlying error.
type Error struct {
	Op    string
	State State
	Err   error
}

func (e *Error) Error() string {
	if e.State != StateIdle {
		return fmt.Sprintf("%s: %v (state %s)", e.Op, e.Err, e.State)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, state State, err error) *Error {
	return &Error{Op: op, State: state, Err: err}
}
