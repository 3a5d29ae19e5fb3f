package mgmt

import (
	"fmt"

	"github.com/smp-protocol/smp-go/pkg/netbuf"
	"github.com/smp-protocol/smp-go/pkg/wire"
)

// DefaultMaxEntries bounds the number of entries in a response map.
const DefaultMaxEntries = 15

// MapEncoder writes an indefinite-length CBOR map straight into a buffer.
//
// The first failure latches: every later call returns the same error, and
// Close fails too, so a handler that ignores an Encode error still produces
// an overflow instead of a truncated map.
type MapEncoder struct {
	buf        *netbuf.Buf
	maxEntries int
	entries    int
	open       bool
	closed     bool
	err        error
	scratch    []byte
}

// NewMapEncoder creates an encoder writing to buf. maxEntries <= 0 selects
// DefaultMaxEntries.
func NewMapEncoder(buf *netbuf.Buf, maxEntries int) *MapEncoder {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MapEncoder{buf: buf, maxEntries: maxEntries}
}

// Open writes the map start marker.
func (e *MapEncoder) Open() error {
	if e.err != nil {
		return e.err
	}
	if e.open || e.closed {
		return e.fail(fmt.Errorf("%w: already opened", ErrMapState))
	}
	if err := e.buf.Append([]byte{wire.MapStartIndef}); err != nil {
		return e.fail(fmt.Errorf("%w: %v", ErrOverflow, err))
	}
	e.open = true
	return nil
}

// Encode appends one key/value entry.
func (e *MapEncoder) Encode(key string, value any) error {
	if e.err != nil {
		return e.err
	}
	if !e.open {
		return e.fail(ErrMapState)
	}
	if e.entries >= e.maxEntries {
		return e.fail(fmt.Errorf("%w: more than %d entries", ErrOverflow, e.maxEntries))
	}

	entry, err := wire.AppendEntry(e.scratch[:0], key, value)
	if err != nil {
		return e.fail(err)
	}
	e.scratch = entry
	if err := e.buf.Append(entry); err != nil {
		return e.fail(fmt.Errorf("%w: %v", ErrOverflow, err))
	}
	e.entries++
	return nil
}

// Close writes the break marker ending the map.
func (e *MapEncoder) Close() error {
	if e.err != nil {
		return e.err
	}
	if !e.open {
		return e.fail(ErrMapState)
	}
	if err := e.buf.Append([]byte{wire.Break}); err != nil {
		return e.fail(fmt.Errorf("%w: %v", ErrOverflow, err))
	}
	e.open = false
	e.closed = true
	return nil
}

// Err returns the latched error, if any.
func (e *MapEncoder) Err() error {
	return e.err
}

// Entries returns the number of entries written so far.
func (e *MapEncoder) Entries() int {
	return e.entries
}

func (e *MapEncoder) fail(err error) error {
	e.err = err
	return err
}
