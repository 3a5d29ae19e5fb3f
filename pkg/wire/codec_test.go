package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeErrorBodyBytes(t *testing.T) {
	// Matches what zcbor-based devices put on the wire for rc=256.
	want := []byte{0xbf, 0x62, 0x72, 0x63, 0x19, 0x01, 0x00, 0xff}

	got, err := EncodeErrorBody(StatusPerUser, "")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestErrorBodyRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		reason string
	}{
		{"no reason", StatusCorrupt, ""},
		{"with reason", StatusInvalid, "bad arg"},
		{"per-user code", StatusPerUser + 5, "custom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeErrorBody(tt.status, tt.reason)
			require.NoError(t, err)
			assert.Equal(t, MapStartIndef, data[0])
			assert.Equal(t, Break, data[len(data)-1])

			body, err := DecodeErrorBody(data)
			require.NoError(t, err)
			assert.Equal(t, tt.status, body.RC)
			assert.Equal(t, tt.reason, body.Reason)

			m, err := DecodeMap(data)
			require.NoError(t, err)
			if tt.reason == "" {
				assert.NotContains(t, m, KeyReason)
			} else {
				assert.Equal(t, tt.reason, m[KeyReason])
			}
		})
	}
}

func TestDecodeMapEmpty(t *testing.T) {
	m, err := DecodeMap(nil)
	require.NoError(t, err)
	assert.Empty(t, m)

	m, err = DecodeMap([]byte{MapStartIndef, Break})
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestDecodeMapRejectsGarbage(t *testing.T) {
	_, err := DecodeMap([]byte{0xbf, 0x62, 0x72})
	assert.Error(t, err)
}

func TestAppendEntry(t *testing.T) {
	out, err := AppendEntry(nil, "d", "hi")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x61, 'd', 0x62, 'h', 'i'}, out)
}

func TestPacket(t *testing.T) {
	payload := []byte{0xbf, 0xff}
	pkt := Packet(Header{Op: OpWrite, Len: 99, Group: GroupOS, Seq: 3}, payload)

	require.Len(t, pkt, HeaderSize+len(payload))
	h, err := ReadHeader(pkt)
	require.NoError(t, err)
	assert.Equal(t, uint16(len(payload)), h.Len)
	assert.True(t, bytes.Equal(payload, pkt[HeaderSize:]))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "OK", StatusOK.String())
	assert.Equal(t, "CORRUPT", StatusCorrupt.String())
	assert.Equal(t, "PER_USER", (StatusPerUser + 1).String())
	assert.Equal(t, "UNKNOWN", Status(99).String())
	assert.True(t, StatusOK.IsSuccess())
	assert.True(t, StatusBusy.IsError())
}
