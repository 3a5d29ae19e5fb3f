package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		hdr  Header
		want []byte
	}{
		{
			name: "os echo write",
			hdr:  Header{Op: OpWrite, Len: 10, Group: GroupOS, Seq: 1, ID: 0},
			want: []byte{0x02, 0x00, 0x00, 0x0a, 0x00, 0x00, 0x01, 0x00},
		},
		{
			name: "settings read v2",
			hdr:  Header{Op: OpRead, Version: Version2, Len: 0x0102, Group: GroupSettings, Seq: 0xfe, ID: 3},
			want: []byte{0x08, 0x00, 0x01, 0x02, 0x00, 0x03, 0xfe, 0x03},
		},
		{
			name: "per-user group with flags",
			hdr:  Header{Op: OpWriteRsp, Flags: 0x5a, Len: 0xffff, Group: 0x1234, Seq: 7, ID: 0x80},
			want: []byte{0x03, 0x5a, 0xff, 0xff, 0x12, 0x34, 0x07, 0x80},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.hdr.Bytes()
			if !bytes.Equal(got, tt.want) {
				t.Fatalf("Bytes() = % x, want % x", got, tt.want)
			}

			decoded, err := ReadHeader(got)
			if err != nil {
				t.Fatalf("ReadHeader failed: %v", err)
			}
			if decoded != tt.hdr {
				t.Errorf("ReadHeader = %+v, want %+v", decoded, tt.hdr)
			}
		})
	}
}

func TestReadHeaderShort(t *testing.T) {
	for n := 0; n < HeaderSize; n++ {
		_, err := ReadHeader(make([]byte, n))
		if !errors.Is(err, ErrHeaderShort) {
			t.Errorf("len %d: expected ErrHeaderShort, got %v", n, err)
		}
	}
}

func TestReadHeaderIgnoresReservedBits(t *testing.T) {
	h, err := ReadHeader([]byte{0xe2, 0, 0, 0, 0, 0, 0, 0})
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if h.Op != OpWrite {
		t.Errorf("Op = %s, want Write", h.Op)
	}
	if h.Version != Version1 {
		t.Errorf("Version = %d, want 0", h.Version)
	}
}

func TestPeekLength(t *testing.T) {
	n, err := PeekLength([]byte{0, 0, 0x01, 0x2c, 0, 0, 0, 0})
	if err != nil {
		t.Fatalf("PeekLength failed: %v", err)
	}
	if n != 300 {
		t.Errorf("PeekLength = %d, want 300", n)
	}

	if _, err := PeekLength([]byte{0, 0, 1}); !errors.Is(err, ErrHeaderShort) {
		t.Errorf("expected ErrHeaderShort, got %v", err)
	}
}

func TestHeaderResponse(t *testing.T) {
	req := Header{Op: OpRead, Version: Version2, Flags: 0x01, Len: 4, Group: GroupStat, Seq: 42, ID: 1}
	rsp := req.Response(17)

	if rsp.Op != OpReadRsp {
		t.Errorf("Op = %s, want ReadRsp", rsp.Op)
	}
	if rsp.Len != 17 {
		t.Errorf("Len = %d, want 17", rsp.Len)
	}
	if rsp.Flags != 0 {
		t.Errorf("Flags = %d, want 0", rsp.Flags)
	}
	if rsp.Group != req.Group || rsp.Seq != req.Seq || rsp.ID != req.ID || rsp.Version != req.Version {
		t.Errorf("response %+v does not address request %+v", rsp, req)
	}
}

func TestOpClassification(t *testing.T) {
	tests := []struct {
		op       Op
		request  bool
		response bool
		name     string
	}{
		{OpRead, true, false, "Read"},
		{OpReadRsp, false, true, "ReadRsp"},
		{OpWrite, true, false, "Write"},
		{OpWriteRsp, false, true, "WriteRsp"},
		{Op(5), false, false, "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.op.IsRequest(); got != tt.request {
			t.Errorf("%d.IsRequest() = %v, want %v", tt.op, got, tt.request)
		}
		if got := tt.op.IsResponse(); got != tt.response {
			t.Errorf("%d.IsResponse() = %v, want %v", tt.op, got, tt.response)
		}
		if got := tt.op.String(); got != tt.name {
			t.Errorf("%d.String() = %q, want %q", tt.op, got, tt.name)
		}
	}
}
