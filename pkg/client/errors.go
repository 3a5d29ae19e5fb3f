package client

import (
	"fmt"

	"github.com/smp-protocol/smp-go/pkg/wire"
)

// StatusError is a failure reported by the server, either as an "rc"
// status or as an SMP v2 group error.
type StatusError struct {
	Status wire.Status
	Reason string

	// Group and GroupRC are set for group errors. GroupRC is
	// group-specific and zero otherwise.
	Group   wire.Group
	GroupRC uint16
}

func (e *StatusError) Error() string {
	if e.GroupRC != 0 {
		return fmt.Sprintf("group %s error %d", e.Group, e.GroupRC)
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Status, e.Reason)
	}
	return e.Status.String()
}

// IsGroupError reports whether the error came from a group "err" entry.
func (e *StatusError) IsGroupError() bool {
	return e.GroupRC != 0
}

// statusBody picks the status fields out of any response map.
type statusBody struct {
	RC     *wire.Status     `cbor:"rc"`
	Reason string           `cbor:"rsn"`
	Err    *wire.GroupError `cbor:"err"`
}

// checkStatus returns a *StatusError when payload reports a failure.
func checkStatus(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var body statusBody
	if err := wire.Unmarshal(payload, &body); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedReply, err)
	}
	if body.Err != nil && body.Err.RC != 0 {
		return &StatusError{Group: body.Err.Group, GroupRC: body.Err.RC}
	}
	if body.RC != nil && *body.RC != wire.StatusOK {
		return &StatusError{Status: *body.RC, Reason: body.Reason}
	}
	return nil
}
