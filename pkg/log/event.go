package log

import (
	"time"

	"github.com/smp-protocol/smp-go/pkg/wire"
)

// Event is a protocol event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// TransportID identifies the transport instance or connection.
	TransportID string `cbor:"2,keyasint"`

	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	// Transport is the transport kind ("udp", "tcp", "dummy").
	Transport string `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address, when the transport has one.
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is raw bytes as seen by a transport.
	LayerTransport Layer = 0
	// LayerSMP is decoded SMP headers as seen by the engine.
	LayerSMP Layer = 1
	// LayerMgmt is handler and callback activity.
	LayerMgmt Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerSMP:
		return "SMP"
	case LayerMgmt:
		return "MGMT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event.
type Category uint8

const (
	CategoryMessage Category = 0
	CategoryState   Category = 2
	CategoryError   Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw bytes at the transport layer.
type FrameEvent struct {
	// Size is the number of bytes received or sent.
	Size int `cbor:"1,keyasint"`

	// Data is the raw bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MaxFrameDataSize caps the bytes copied into a FrameEvent.
const MaxFrameDataSize = 1024

// NewFrameEvent copies up to MaxFrameDataSize bytes of data.
func NewFrameEvent(data []byte) *FrameEvent {
	f := &FrameEvent{Size: len(data)}
	if len(data) > MaxFrameDataSize {
		data = data[:MaxFrameDataSize]
		f.Truncated = true
	}
	f.Data = append([]byte(nil), data...)
	return f
}

// MessageEvent captures one SMP header at the engine.
type MessageEvent struct {
	Op      wire.Op    `cbor:"1,keyasint"`
	Version uint8      `cbor:"2,keyasint,omitempty"`
	Flags   uint8      `cbor:"3,keyasint,omitempty"`
	Length  uint16     `cbor:"4,keyasint"`
	Group   wire.Group `cbor:"5,keyasint"`
	Seq     uint8      `cbor:"6,keyasint"`
	ID      uint8      `cbor:"7,keyasint"`

	// Status is set on error responses.
	Status *wire.Status `cbor:"8,keyasint,omitempty"`

	// Reason accompanies Status when verbose errors are enabled.
	Reason string `cbor:"9,keyasint,omitempty"`

	// ProcessingTime is the time from header read to response sent.
	ProcessingTime *time.Duration `cbor:"10,keyasint,omitempty"`
}

// NewMessageEvent builds a MessageEvent from a header.
func NewMessageEvent(h wire.Header) *MessageEvent {
	return &MessageEvent{
		Op:      h.Op,
		Version: h.Version,
		Flags:   h.Flags,
		Length:  h.Len,
		Group:   h.Group,
		Seq:     h.Seq,
		ID:      h.ID,
	}
}

// StateChangeEvent captures connection and reassembly lifecycle events.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	StateEntityConnection StateEntity = 0
	StateEntityReassembly StateEntity = 1
	StateEntityTransport  StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityReassembly:
		return "REASSEMBLY"
	case StateEntityTransport:
		return "TRANSPORT"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures an error at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Code is the management status, if one applies.
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what was being done.
	Context string `cbor:"4,keyasint,omitempty"`
}
