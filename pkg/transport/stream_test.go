package transport_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smp-protocol/smp-go/pkg/transport"
	"github.com/smp-protocol/smp-go/pkg/wire"
)

func startStream(t *testing.T, config transport.StreamConfig) (*transport.StreamServer, func() int) {
	t.Helper()
	sched, pool := newScheduler(t)
	config.Address = "127.0.0.1:0"
	server, err := transport.NewStreamServer(sched, config)
	require.NoError(t, err)
	require.NoError(t, server.Start(context.Background()))
	t.Cleanup(func() { server.Stop() })
	return server, pool.Outstanding
}

func TestStreamServerEcho(t *testing.T) {
	server, outstanding := startStream(t, transport.StreamConfig{ReadChunk: 5})

	client, err := transport.Dial(context.Background(), "tcp", server.Addr().String(), transport.ClientConfig{})
	require.NoError(t, err)
	defer client.Close()

	pkt := append(echoRequest(t, 1, "alpha"), echoRequest(t, 2, "beta")...)
	require.NoError(t, client.Send(pkt))
	require.NoError(t, client.Send(echoRequest(t, 3, "gamma")))

	for i, want := range []string{"alpha", "beta", "gamma"} {
		rsp, err := client.Receive(testTimeout)
		require.NoError(t, err)
		assert.Equal(t, want, echoReply(t, rsp, uint8(i+1)))
	}
	require.Eventually(t, func() bool { return outstanding() == 0 }, testTimeout, 5*time.Millisecond)
}

func TestStreamServerSlowWriter(t *testing.T) {
	server, _ := startStream(t, transport.StreamConfig{})

	conn, err := net.Dial("tcp", server.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	pkt := echoRequest(t, 7, "drip")
	for _, b := range pkt {
		_, err := conn.Write([]byte{b})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	r := transport.NewUnitReader(conn, 0)
	conn.SetReadDeadline(time.Now().Add(testTimeout))
	rsp, err := r.ReadUnit()
	require.NoError(t, err)
	assert.Equal(t, "drip", echoReply(t, rsp, 7))
}

func TestStreamServerConnectionsAreIndependent(t *testing.T) {
	server, _ := startStream(t, transport.StreamConfig{})

	a, err := net.Dial("tcp", server.Addr().String())
	require.NoError(t, err)
	defer a.Close()
	b, err := net.Dial("tcp", server.Addr().String())
	require.NoError(t, err)
	defer b.Close()

	pa := echoRequest(t, 1, "from a")
	pb := echoRequest(t, 2, "from b")

	// Interleave partial messages on both connections.
	_, err = a.Write(pa[:10])
	require.NoError(t, err)
	_, err = b.Write(pb[:4])
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = b.Write(pb[4:])
	require.NoError(t, err)
	_, err = a.Write(pa[10:])
	require.NoError(t, err)

	for conn, want := range map[net.Conn]struct {
		seq  uint8
		text string
	}{a: {1, "from a"}, b: {2, "from b"}} {
		conn.SetReadDeadline(time.Now().Add(testTimeout))
		rsp, err := transport.NewUnitReader(conn, 0).ReadUnit()
		require.NoError(t, err)
		assert.Equal(t, want.text, echoReply(t, rsp, want.seq))
	}
}

func TestStreamServerDisconnectDiscardsPartial(t *testing.T) {
	disconnected := make(chan struct{}, 1)
	server, outstanding := startStream(t, transport.StreamConfig{
		OnDisconnect: func(*transport.ServerConn) { disconnected <- struct{}{} },
	})

	conn, err := net.Dial("tcp", server.Addr().String())
	require.NoError(t, err)

	pkt := echoRequest(t, 1, "never finished")
	_, err = conn.Write(pkt[:12])
	require.NoError(t, err)
	require.Eventually(t, func() bool { return outstanding() == 1 }, testTimeout, 5*time.Millisecond)

	conn.Close()
	select {
	case <-disconnected:
	case <-time.After(testTimeout):
		t.Fatal("disconnect not observed")
	}
	assert.Equal(t, 0, outstanding())
	assert.Equal(t, 0, server.ConnectionCount())
}

func TestStreamServerClosesOnOversized(t *testing.T) {
	server, outstanding := startStream(t, transport.StreamConfig{})

	conn, err := net.Dial("tcp", server.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	hdr := wire.Header{Op: wire.OpWrite, Len: 4000}
	_, err = conn.Write(hdr.Bytes())
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(testTimeout))
	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err, "server closes the connection")
	assert.Equal(t, 0, outstanding())
}
