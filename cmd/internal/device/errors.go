package device

import (
	"errors"
	"fmt"
)

// Sentinel error kinds.
var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")
	ErrCapacity     = errors.New("device_capacity")
	ErrInvalidState = errors.New("invalid_state")
)

// OpError carries the failing operation alongside a sentinel kind.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

// CapacityError is returned by Approve when the user already holds
// MaxApproved approved devices.
type CapacityError struct {
	UserID   string
	Approved int
}

func (e CapacityError) Error() string {
	return fmt.Sprintf("device.Approve: %v: user already has %d approved devices", ErrCapacity, e.Approved)
}

func (e CapacityError) Unwrap() error { return ErrCapacity }

// StateError reports a transition not allowed from the current status.
type StateError struct {
	Op   string
	From Status
}

func (e StateError) Error() string {
	return fmt.Sprintf("%s: %v: from %s", e.Op, ErrInvalidState, e.From)
}

func (e StateError) Unwrap() error { return ErrInvalidState }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func notFound(op string) error { return OpError{Op: op, Kind: ErrNotFound, Msg: "device"} }
