package mgmt

import (
	"errors"
	"fmt"

	"github.com/smp-protocol/smp-go/pkg/wire"
)

var (
	// ErrGroupExists indicates a group ID is already registered.
	ErrGroupExists = errors.New("management group already registered")

	// ErrOverflow indicates the response map ran out of room or entries.
	ErrOverflow = errors.New("response map overflow")

	// ErrMapState indicates the map was used out of order (not open, or
	// already closed).
	ErrMapState = errors.New("response map not open")
)

// Error is a handler failure with a management status and optional reason.
type Error struct {
	Status wire.Status
	Reason string
}

// NewError creates an Error.
func NewError(status wire.Status, reason string) *Error {
	return &Error{Status: status, Reason: reason}
}

// Errorf creates an Error with a formatted reason.
func Errorf(status wire.Status, format string, args ...any) *Error {
	return &Error{Status: status, Reason: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("mgmt: %s", e.Status)
	}
	return fmt.Sprintf("mgmt: %s: %s", e.Status, e.Reason)
}

// StatusOf extracts the status and reason carried by err.
// A nil error is StatusOK; an error that is not an *Error is StatusUnknown
// with the error text as reason.
func StatusOf(err error) (wire.Status, string) {
	if err == nil {
		return wire.StatusOK, ""
	}
	var me *Error
	if errors.As(err, &me) {
		return me.Status, me.Reason
	}
	return wire.StatusUnknown, err.Error()
}
