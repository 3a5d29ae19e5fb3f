package smp

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/smp-protocol/smp-go/pkg/mgmt"
	"github.com/smp-protocol/smp-go/pkg/netbuf"
	"github.com/smp-protocol/smp-go/pkg/wire"
)

// mockBackend records every sent response. Send results come from the
// testify expectations; IsStale matches the first user-data byte against a
// byte tag.
type mockBackend struct {
	mock.Mock
	BaseBackend

	mu   sync.Mutex
	sent [][]byte
}

func newMockBackend() *mockBackend {
	m := &mockBackend{}
	m.On("Send", mock.Anything).Return(nil).Maybe()
	return m
}

func (m *mockBackend) Send(_ context.Context, buf *netbuf.Buf) error {
	m.mu.Lock()
	m.sent = append(m.sent, bytes.Clone(buf.Bytes()))
	m.mu.Unlock()
	return m.Called(buf.Len()).Error(0)
}

func (m *mockBackend) MTU() int { return 256 }

func (m *mockBackend) IsStale(ud []byte, arg any) bool {
	tag, ok := arg.(byte)
	return ok && len(ud) > 0 && ud[0] == tag
}

func (m *mockBackend) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.sent...)
}

type fixture struct {
	pool    *netbuf.Pool
	reg     *mgmt.Registry
	engine  *Engine
	sched   *Scheduler
	tr      *Transport
	backend *mockBackend
}

func newFixture(t *testing.T, count int, opts ...Option) *fixture {
	t.Helper()
	return newSizedFixture(t, count, 256, opts...)
}

func newSizedFixture(t *testing.T, count, size int, opts ...Option) *fixture {
	t.Helper()

	pool, err := netbuf.NewPool(count, size, 8)
	require.NoError(t, err)

	reg := mgmt.NewRegistry()
	require.NoError(t, reg.Register(&mgmt.Group{
		ID:   wire.GroupOS,
		Name: "os",
		Handlers: map[uint8]mgmt.Handler{
			0: {Write: echoWrite},
			6: {Read: paramsRead},
		},
	}))

	engine, err := NewEngine(pool, reg, opts...)
	require.NoError(t, err)

	sched := NewScheduler(engine)
	backend := newMockBackend()
	tr, err := NewTransport(sched, backend, WithName("test"))
	require.NoError(t, err)

	return &fixture{pool: pool, reg: reg, engine: engine, sched: sched, tr: tr, backend: backend}
}

// process copies data into a pool buffer and runs it through the engine.
func (f *fixture) process(t *testing.T, data []byte) error {
	t.Helper()
	buf, err := f.pool.Alloc()
	require.NoError(t, err)
	require.NoError(t, buf.Append(data))
	return f.engine.ProcessRequestPacket(context.Background(), f.tr, buf)
}

func echoWrite(_ context.Context, s *mgmt.Streamer) error {
	var req struct {
		D string `cbor:"d"`
	}
	if err := s.Decode(&req); err != nil {
		return err
	}
	return s.Encode("r", req.D)
}

func paramsRead(_ context.Context, s *mgmt.Streamer) error {
	if err := s.Encode("buf_size", 256); err != nil {
		return err
	}
	return s.Encode("buf_count", 4)
}

func echoRequest(t *testing.T, seq uint8, text string) []byte {
	t.Helper()
	payload, err := wire.Marshal(map[string]string{"d": text})
	require.NoError(t, err)
	return wire.Packet(wire.Header{Op: wire.OpWrite, Group: wire.GroupOS, Seq: seq, ID: 0}, payload)
}

// splitResponse returns the header and decoded body of a sent response.
func splitResponse(t *testing.T, pkt []byte) (wire.Header, map[string]any) {
	t.Helper()
	hdr, err := wire.ReadHeader(pkt)
	require.NoError(t, err)
	require.Equal(t, int(hdr.Len), len(pkt)-wire.HeaderSize)
	body, err := wire.DecodeMap(pkt[wire.HeaderSize:])
	require.NoError(t, err)
	return hdr, body
}

// errorStatus decodes the rc of an error response.
func errorStatus(t *testing.T, pkt []byte) (wire.Header, *wire.ErrorBody) {
	t.Helper()
	hdr, err := wire.ReadHeader(pkt)
	require.NoError(t, err)
	body, err := wire.DecodeErrorBody(pkt[wire.HeaderSize:])
	require.NoError(t, err)
	return hdr, body
}
