package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// HeaderSize is the size of the SMP header in bytes.
const HeaderSize = 8

// MaxPayloadLen is the largest payload the 16-bit length field can describe.
const MaxPayloadLen = math.MaxUint16

// MaxUnitSize is the largest unit on the wire, header included.
const MaxUnitSize = HeaderSize + MaxPayloadLen

// Protocol versions carried in bits 3-4 of header byte 0.
const (
	// Version1 is the original protocol; errors are reported only via "rc".
	Version1 uint8 = 0

	// Version2 adds group errors ({"err": {"group", "rc"}}) to success maps.
	Version2 uint8 = 1
)

const (
	versionShift = 3
	versionMask  = 0x03
)

// ErrHeaderShort indicates fewer than HeaderSize bytes were available.
var ErrHeaderShort = errors.New("smp header truncated")

// Header is a decoded SMP header.
type Header struct {
	Op      Op
	Version uint8
	Flags   uint8

	// Len is the payload length, excluding the header.
	Len   uint16
	Group Group
	Seq   uint8
	ID    uint8
}

// ReadHeader decodes the header at the start of b.
func ReadHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d < %d", ErrHeaderShort, len(b), HeaderSize)
	}
	return Header{
		Op:      Op(b[0] & opMask),
		Version: (b[0] >> versionShift) & versionMask,
		Flags:   b[1],
		Len:     binary.BigEndian.Uint16(b[2:4]),
		Group:   Group(binary.BigEndian.Uint16(b[4:6])),
		Seq:     b[6],
		ID:      b[7],
	}, nil
}

// PeekLength returns the payload length declared by the header at the start
// of b without decoding the rest of it.
func PeekLength(b []byte) (uint16, error) {
	if len(b) < HeaderSize {
		return 0, fmt.Errorf("%w: %d < %d", ErrHeaderShort, len(b), HeaderSize)
	}
	return binary.BigEndian.Uint16(b[2:4]), nil
}

// Put encodes h into the first HeaderSize bytes of b.
// It panics if b is too short.
func (h Header) Put(b []byte) {
	_ = b[HeaderSize-1]
	b[0] = byte(h.Op)&opMask | (h.Version&versionMask)<<versionShift
	b[1] = h.Flags
	binary.BigEndian.PutUint16(b[2:4], h.Len)
	binary.BigEndian.PutUint16(b[4:6], uint16(h.Group))
	b[6] = h.Seq
	b[7] = h.ID
}

// Bytes returns the encoded header.
func (h Header) Bytes() []byte {
	b := make([]byte, HeaderSize)
	h.Put(b)
	return b
}

// Response returns the header answering h with a payload of payloadLen bytes.
// Version, group, sequence and command ID are copied; flags are cleared.
func (h Header) Response(payloadLen int) Header {
	return Header{
		Op:      h.Op.Response(),
		Version: h.Version,
		Len:     uint16(payloadLen),
		Group:   h.Group,
		Seq:     h.Seq,
		ID:      h.ID,
	}
}

// String returns a compact description for logs.
func (h Header) String() string {
	return fmt.Sprintf("op=%s v=%d group=%d id=%d seq=%d len=%d",
		h.Op, h.Version, h.Group, h.ID, h.Seq, h.Len)
}
