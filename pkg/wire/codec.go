package wire

import (
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// CBOR initial bytes used to frame indefinite-length response maps.
const (
	MapStartIndef byte = 0xbf
	Break         byte = 0xff
)

// Response body keys.
const (
	KeyRC     = "rc"
	KeyReason = "rsn"
	KeyErr    = "err"
	KeyGroup  = "group"
)

// encMode is the CBOR encoder mode for SMP payload items.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for SMP payloads.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Peers built on zcbor emit indefinite-length maps; accept them.
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
		DefaultMapType:    reflect.TypeOf(map[string]any(nil)),
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Marshal encodes a value to CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into a value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder creates a new CBOR encoder that writes to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder creates a new CBOR decoder that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// AppendEntry appends one encoded key/value pair to dst.
func AppendEntry(dst []byte, key string, value any) ([]byte, error) {
	k, err := encMode.Marshal(key)
	if err != nil {
		return dst, fmt.Errorf("failed to encode key %q: %w", key, err)
	}
	v, err := encMode.Marshal(value)
	if err != nil {
		return dst, fmt.Errorf("failed to encode value for %q: %w", key, err)
	}
	dst = append(dst, k...)
	return append(dst, v...), nil
}

// ErrorBody is the payload of an error response.
type ErrorBody struct {
	RC     Status `cbor:"rc"`
	Reason string `cbor:"rsn,omitempty"`
}

// GroupError is the SMP v2 group-scoped error carried under "err".
type GroupError struct {
	Group Group  `cbor:"group"`
	RC    uint16 `cbor:"rc"`
}

// EncodeErrorBody encodes an error response body as an indefinite-length map.
// The reason is omitted when empty.
func EncodeErrorBody(status Status, reason string) ([]byte, error) {
	out := []byte{MapStartIndef}
	out, err := AppendEntry(out, KeyRC, int32(status))
	if err != nil {
		return nil, err
	}
	if reason != "" {
		out, err = AppendEntry(out, KeyReason, reason)
		if err != nil {
			return nil, err
		}
	}
	return append(out, Break), nil
}

// DecodeErrorBody decodes an error response body.
func DecodeErrorBody(data []byte) (*ErrorBody, error) {
	var body ErrorBody
	if err := Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("failed to decode error body: %w", err)
	}
	return &body, nil
}

// DecodeMap decodes a payload into a generic map.
func DecodeMap(data []byte) (map[string]any, error) {
	m := make(map[string]any)
	if len(data) == 0 {
		return m, nil
	}
	if err := Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return m, nil
}

// Packet returns header h followed by payload, with h.Len set to the
// payload length.
func Packet(h Header, payload []byte) []byte {
	h.Len = uint16(len(payload))
	out := make([]byte, HeaderSize, HeaderSize+len(payload))
	h.Put(out)
	return append(out, payload...)
}
