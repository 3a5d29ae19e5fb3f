package smp

import (
	"errors"

	"github.com/smp-protocol/smp-go/pkg/mgmt"
	"github.com/smp-protocol/smp-go/pkg/wire"
)

var (
	// ErrCorrupt indicates a short header or a declared length that does
	// not fit the bytes available.
	ErrCorrupt = errors.New("smp: corrupt request")

	// ErrNotSupported indicates no handler is registered for the command,
	// or a response opcode arrived at the server.
	ErrNotSupported = errors.New("smp: command not supported")

	// ErrNoMem indicates the buffer pool is exhausted.
	ErrNoMem = errors.New("smp: out of buffers")

	// ErrNoSpace indicates a declared message size larger than a pool buffer.
	ErrNoSpace = errors.New("smp: message larger than buffer")

	// ErrOverflow indicates a fragment would push a message past its
	// declared length.
	ErrOverflow = errors.New("smp: fragment overflows message")

	// ErrNoData indicates reassembly is incomplete, or a first fragment too
	// short to hold a header.
	ErrNoData = errors.New("smp: not enough data")

	// ErrInvalid indicates an operation on an idle reassembly context, an
	// unknown opcode, or a bad argument.
	ErrInvalid = errors.New("smp: invalid argument")

	// ErrMsgSize indicates the response did not fit its buffer.
	ErrMsgSize = errors.New("smp: response too large")

	// ErrTransport wraps a Backend send failure.
	ErrTransport = errors.New("smp: transport send failed")
)

// statusFor maps an error to the status and reason sent in an error response.
func statusFor(err error) (wire.Status, string) {
	switch {
	case err == nil:
		return wire.StatusOK, ""
	case errors.Is(err, ErrCorrupt):
		return wire.StatusCorrupt, err.Error()
	case errors.Is(err, ErrNotSupported):
		return wire.StatusNotSupported, err.Error()
	case errors.Is(err, ErrNoMem):
		return wire.StatusNoMem, err.Error()
	case errors.Is(err, ErrInvalid):
		return wire.StatusInvalid, err.Error()
	case errors.Is(err, ErrMsgSize), errors.Is(err, mgmt.ErrOverflow):
		return wire.StatusMsgSize, err.Error()
	}
	return mgmt.StatusOf(err)
}
