package transport_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smp-protocol/smp-go/pkg/mgmt"
	"github.com/smp-protocol/smp-go/pkg/netbuf"
	"github.com/smp-protocol/smp-go/pkg/smp"
	"github.com/smp-protocol/smp-go/pkg/wire"
)

const testTimeout = 2 * time.Second

// newScheduler returns a running scheduler with an echo handler at
// group 0 id 0.
func newScheduler(t *testing.T) (*smp.Scheduler, *netbuf.Pool) {
	t.Helper()

	pool, err := netbuf.NewPool(8, netbuf.DefaultSize, netbuf.DefaultUserDataSize)
	require.NoError(t, err)

	reg := mgmt.NewRegistry()
	require.NoError(t, reg.Register(&mgmt.Group{
		ID: wire.GroupOS,
		Handlers: map[uint8]mgmt.Handler{
			0: {Write: func(_ context.Context, s *mgmt.Streamer) error {
				var req struct {
					D string `cbor:"d"`
				}
				if err := s.Decode(&req); err != nil {
					return err
				}
				return s.Encode("r", req.D)
			}},
		},
	}))

	engine, err := smp.NewEngine(pool, reg)
	require.NoError(t, err)
	sched := smp.NewScheduler(engine)
	require.NoError(t, sched.Start(context.Background()))
	t.Cleanup(sched.Stop)
	return sched, pool
}

func echoRequest(t *testing.T, seq uint8, text string) []byte {
	t.Helper()
	payload, err := wire.Marshal(map[string]string{"d": text})
	require.NoError(t, err)
	return wire.Packet(wire.Header{Op: wire.OpWrite, Group: wire.GroupOS, Seq: seq}, payload)
}

// echoReply checks rsp answers an echo request and returns the text.
func echoReply(t *testing.T, rsp []byte, seq uint8) string {
	t.Helper()
	hdr, err := wire.ReadHeader(rsp)
	require.NoError(t, err)
	require.Equal(t, wire.OpWriteRsp, hdr.Op)
	require.Equal(t, seq, hdr.Seq)
	body, err := wire.DecodeMap(rsp[wire.HeaderSize:])
	require.NoError(t, err)
	text, _ := body["r"].(string)
	return text
}

func waitIdle(t *testing.T, pool *netbuf.Pool) {
	t.Helper()
	require.Eventually(t, func() bool { return pool.Outstanding() == 0 }, testTimeout, 5*time.Millisecond)
}
