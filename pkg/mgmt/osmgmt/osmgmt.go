// Package osmgmt provides the OS management group commands served by smpd:
// echo and buffer parameters.
package osmgmt

import (
	"context"

	"github.com/smp-protocol/smp-go/pkg/mgmt"
	"github.com/smp-protocol/smp-go/pkg/netbuf"
	"github.com/smp-protocol/smp-go/pkg/wire"
)

// Command IDs within wire.GroupOS.
const (
	IDEcho   uint8 = 0
	IDParams uint8 = 6
)

// New returns the OS group. Params reports the geometry of pool.
func New(pool *netbuf.Pool) *mgmt.Group {
	return &mgmt.Group{
		ID:   wire.GroupOS,
		Name: "os",
		Handlers: map[uint8]mgmt.Handler{
			IDEcho:   {Write: echo},
			IDParams: {Read: params(pool)},
		},
	}
}

// echo answers {"d": text} with {"r": text}.
func echo(_ context.Context, s *mgmt.Streamer) error {
	var req struct {
		D *string `cbor:"d"`
	}
	if err := s.Decode(&req); err != nil {
		return err
	}
	if req.D == nil {
		return mgmt.NewError(wire.StatusInvalid, "missing \"d\"")
	}
	return s.Encode("r", *req.D)
}

func params(pool *netbuf.Pool) mgmt.HandlerFunc {
	return func(_ context.Context, s *mgmt.Streamer) error {
		if err := s.Encode("buf_size", pool.BufSize()); err != nil {
			return err
		}
		return s.Encode("buf_count", pool.Count())
	}
}
