package mgmt

import (
	"github.com/smp-protocol/smp-go/pkg/wire"
)

// Streamer is what a handler sees of one request: the header, a decoder
// over the request payload, and the open response map.
type Streamer struct {
	hdr     wire.Header
	payload []byte
	enc     *MapEncoder
}

// NewStreamer binds a request header and payload to a response encoder.
// The payload slice must stay valid for the duration of the handler.
func NewStreamer(hdr wire.Header, payload []byte, enc *MapEncoder) *Streamer {
	return &Streamer{hdr: hdr, payload: payload, enc: enc}
}

// Header returns the request header.
func (s *Streamer) Header() wire.Header {
	return s.hdr
}

// Payload returns the raw request payload.
func (s *Streamer) Payload() []byte {
	return s.payload
}

// Decode decodes the request payload into v. An empty payload leaves v
// untouched. Decoding failures are reported as StatusInvalid.
func (s *Streamer) Decode(v any) error {
	if len(s.payload) == 0 {
		return nil
	}
	if err := wire.Unmarshal(s.payload, v); err != nil {
		return Errorf(wire.StatusInvalid, "decode: %v", err)
	}
	return nil
}

// DecodeMap decodes the request payload into a generic map.
func (s *Streamer) DecodeMap() (map[string]any, error) {
	m, err := wire.DecodeMap(s.payload)
	if err != nil {
		return nil, NewError(wire.StatusInvalid, err.Error())
	}
	return m, nil
}

// Encode adds one entry to the response map.
func (s *Streamer) Encode(key string, value any) error {
	return s.enc.Encode(key, value)
}

// EncodeGroupError adds the SMP v2 {"err": {"group", "rc"}} entry.
func (s *Streamer) EncodeGroupError(group wire.Group, rc uint16) error {
	return s.enc.Encode(wire.KeyErr, wire.GroupError{Group: group, RC: rc})
}
