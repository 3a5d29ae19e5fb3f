package wire

// Status is a management return code, sent as "rc" in response bodies.
type Status int32

const (
	// StatusOK indicates success.
	StatusOK Status = 0

	// StatusUnknown is returned for errors that have no better code.
	StatusUnknown Status = 1

	// StatusNoMem indicates the device ran out of buffers or memory.
	StatusNoMem Status = 2

	// StatusInvalid indicates an invalid argument or operation.
	StatusInvalid Status = 3

	// StatusTimeout indicates the operation timed out.
	StatusTimeout Status = 4

	// StatusNoEntry indicates the requested item does not exist.
	StatusNoEntry Status = 5

	// StatusBadState indicates the device is in the wrong state for the request.
	StatusBadState Status = 6

	// StatusMsgSize indicates the response did not fit in the buffer.
	StatusMsgSize Status = 7

	// StatusNotSupported indicates no handler serves the group/command.
	StatusNotSupported Status = 8

	// StatusCorrupt indicates a malformed request.
	StatusCorrupt Status = 9

	// StatusBusy indicates the device is busy; try again later.
	StatusBusy Status = 10

	// StatusAccessDenied indicates the request was refused.
	StatusAccessDenied Status = 11

	// StatusTooOld indicates the client protocol version is too old.
	StatusTooOld Status = 12

	// StatusTooNew indicates the client protocol version is too new.
	StatusTooNew Status = 13

	// StatusPerUser is the first code available to application groups.
	StatusPerUser Status = 256
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusUnknown:
		return "UNKNOWN"
	case StatusNoMem:
		return "NO_MEM"
	case StatusInvalid:
		return "INVALID"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusNoEntry:
		return "NO_ENTRY"
	case StatusBadState:
		return "BAD_STATE"
	case StatusMsgSize:
		return "MSG_SIZE"
	case StatusNotSupported:
		return "NOT_SUPPORTED"
	case StatusCorrupt:
		return "CORRUPT"
	case StatusBusy:
		return "BUSY"
	case StatusAccessDenied:
		return "ACCESS_DENIED"
	case StatusTooOld:
		return "TOO_OLD"
	case StatusTooNew:
		return "TOO_NEW"
	default:
		if s >= StatusPerUser {
			return "PER_USER"
		}
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusOK
}

// IsError returns true if the status indicates an error.
func (s Status) IsError() bool {
	return s != StatusOK
}
