package smp

import (
	"fmt"

	"github.com/smp-protocol/smp-go/pkg/netbuf"
	"github.com/smp-protocol/smp-go/pkg/wire"
)

// Reassembler accumulates fragments into one packet buffer until the length
// declared by the SMP header is reached, then hands the buffer to its
// Transport's FIFO.
//
// State is Idle (current == nil) or Collecting. expected is the number of
// bytes still needed and is zero while idle. A Reassembler is not safe for
// concurrent use.
type Reassembler struct {
	t        *Transport
	current  *netbuf.Buf
	expected int
}

// NewReassembler creates a reassembler delivering to t. Every Transport has
// one; transports multiplexing several peers over one Transport create one
// per peer.
func NewReassembler(t *Transport) *Reassembler {
	return &Reassembler{t: t}
}

// Collect appends frag and returns the number of bytes still needed.
//
// The first fragment of a message must hold the whole header: shorter ones
// fail with ErrNoData. A declared size larger than a pool buffer fails with
// ErrNoSpace before anything is allocated. A fragment running past the
// declared size fails with ErrOverflow and leaves the state unchanged.
func (r *Reassembler) Collect(frag []byte) (int, error) {
	if r.current == nil {
		length, err := wire.PeekLength(frag)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrNoData, err)
		}
		total := int(length) + wire.HeaderSize
		if size := r.t.Pool().BufSize(); total > size {
			return 0, fmt.Errorf("%w: %d > %d", ErrNoSpace, total, size)
		}
		if len(frag) > total {
			return 0, fmt.Errorf("%w: fragment %d, message %d", ErrOverflow, len(frag), total)
		}
		buf, err := r.t.AllocPacket()
		if err != nil {
			return 0, err
		}
		r.current = buf
		r.expected = total
	} else if len(frag) > r.expected {
		return r.expected, fmt.Errorf("%w: fragment %d, expected %d", ErrOverflow, len(frag), r.expected)
	}

	if err := r.current.Append(frag); err != nil {
		return r.expected, fmt.Errorf("%w: %v", ErrOverflow, err)
	}
	r.expected -= len(frag)
	return r.expected, nil
}

// Expected returns the number of bytes still needed.
func (r *Reassembler) Expected() (int, error) {
	if r.current == nil {
		return 0, ErrInvalid
	}
	return r.expected, nil
}

// Complete passes the message to the transport FIFO and returns to Idle.
// It returns the bytes that were still outstanding: zero normally, non-zero
// when force flushes a truncated message, which the engine then rejects
// as corrupt.
func (r *Reassembler) Complete(force bool) (int, error) {
	if r.current == nil {
		return 0, ErrInvalid
	}
	if r.expected != 0 && !force {
		return r.expected, fmt.Errorf("%w: %d bytes outstanding", ErrNoData, r.expected)
	}

	buf, outstanding := r.current, r.expected
	r.current, r.expected = nil, 0
	r.t.RxReq(buf)
	return outstanding, nil
}

// Drop frees the message in progress and returns to Idle.
func (r *Reassembler) Drop() error {
	if r.current == nil {
		return ErrInvalid
	}
	buf := r.current
	r.current, r.expected = nil, 0
	r.t.freeBuf(buf)
	return nil
}

// UserData returns the user-data region of the buffer being filled, or nil
// when idle.
func (r *Reassembler) UserData() []byte {
	if r.current == nil {
		return nil
	}
	return r.current.UserData()
}
