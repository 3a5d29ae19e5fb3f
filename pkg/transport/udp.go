package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/smp-protocol/smp-go/pkg/log"
	"github.com/smp-protocol/smp-go/pkg/netbuf"
	"github.com/smp-protocol/smp-go/pkg/smp"
)

// UDP transport defaults.
const (
	DefaultUDPAddress = ":1337"
	DefaultUDPMTU     = 1024
)

// ErrBadPeer indicates user data that does not hold a peer address.
var ErrBadPeer = errors.New("no peer address in user data")

// UDPConfig configures a UDPServer.
type UDPConfig struct {
	// Address to listen on (e.g., ":1337" or "127.0.0.1:0").
	Address string

	// MTU is reported to the engine (default: 1024).
	MTU int

	// Logger for protocol logging (optional).
	Logger log.Logger

	// Log is the operational logger (default: slog.Default()).
	Log *slog.Logger
}

// UDPServer serves SMP over UDP. Each datagram is one complete packet.
type UDPServer struct {
	config    UDPConfig
	log       *slog.Logger
	transport *smp.Transport
	conn      *net.UDPConn

	running atomic.Bool
	dropped atomic.Uint64
	wg      sync.WaitGroup
}

// NewUDPServer creates a UDP server whose packets are processed by sched.
func NewUDPServer(sched *smp.Scheduler, config UDPConfig) (*UDPServer, error) {
	if config.Address == "" {
		config.Address = DefaultUDPAddress
	}
	if config.MTU <= 0 {
		config.MTU = DefaultUDPMTU
	}
	if config.Logger == nil {
		config.Logger = log.NoopLogger{}
	}
	if config.Log == nil {
		config.Log = slog.Default()
	}
	if ud := sched.Engine().Pool().UserDataSize(); ud < 1+netip.IPv6Unspecified().BitLen()/8+2 {
		return nil, fmt.Errorf("user data size %d cannot hold a peer address", ud)
	}

	s := &UDPServer{
		config: config,
		log:    config.Log.With("transport", "udp"),
	}
	t, err := smp.NewTransport(sched, &udpBackend{server: s}, smp.WithName("udp"))
	if err != nil {
		return nil, err
	}
	s.transport = t
	return s, nil
}

// Start binds the socket and starts the read loop.
func (s *UDPServer) Start(ctx context.Context) error {
	if s.running.Load() {
		return ErrServerRunning
	}

	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.conn = pc.(*net.UDPConn)
	s.running.Store(true)

	s.config.Logger.Log(stateEvent("udp", "udp", s.conn.LocalAddr().String(), log.StateEntityTransport, "", "LISTENING", ""))
	s.log.Info("listening", "address", s.conn.LocalAddr().String())

	s.wg.Add(1)
	go s.readLoop()
	return nil
}

// Stop closes the socket and detaches the transport.
func (s *UDPServer) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	s.conn.Close()
	s.wg.Wait()
	s.transport.Close()
	s.config.Logger.Log(stateEvent("udp", "udp", "", log.StateEntityTransport, "LISTENING", "STOPPED", ""))
	return nil
}

// Addr returns the bound address.
func (s *UDPServer) Addr() net.Addr {
	if s.conn != nil {
		return s.conn.LocalAddr()
	}
	return nil
}

// Dropped returns the number of datagrams discarded before processing.
func (s *UDPServer) Dropped() uint64 {
	return s.dropped.Load()
}

// Transport returns the server's smp.Transport.
func (s *UDPServer) Transport() *smp.Transport {
	return s.transport
}

// Forget discards queued packets from peer. It returns how many were freed.
func (s *UDPServer) Forget(peer netip.AddrPort) int {
	return s.transport.RemoveInvalid(peer)
}

func (s *UDPServer) readLoop() {
	defer s.wg.Done()

	// One spare byte detects datagrams too large for a pool buffer.
	scratch := make([]byte, s.transport.Pool().BufSize()+1)
	for {
		n, peer, err := s.conn.ReadFromUDPAddrPort(scratch)
		if err != nil {
			if !s.running.Load() {
				return
			}
			s.log.Warn("read failed", "error", err)
			continue
		}
		s.config.Logger.Log(frameEvent("udp", "udp", peer.String(), log.DirectionIn, scratch[:n]))

		if err := s.deliver(scratch[:n], peer); err != nil {
			s.dropped.Add(1)
			s.log.Warn("dropping datagram", "peer", peer, "size", n, "error", err)
		}
	}
}

func (s *UDPServer) deliver(data []byte, peer netip.AddrPort) error {
	if len(data) > s.transport.Pool().BufSize() {
		return fmt.Errorf("%w: datagram exceeds %d bytes", smp.ErrNoSpace, s.transport.Pool().BufSize())
	}
	buf, err := s.transport.AllocPacket()
	if err != nil {
		return err
	}
	if err := putPeer(buf.UserData(), peer); err != nil {
		s.transport.FreePacket(buf)
		return err
	}
	if err := buf.Append(data); err != nil {
		s.transport.FreePacket(buf)
		return err
	}
	s.transport.RxReq(buf)
	return nil
}

// putPeer stores peer in ud as a length byte followed by its binary form.
func putPeer(ud []byte, peer netip.AddrPort) error {
	b, err := peer.MarshalBinary()
	if err != nil {
		return err
	}
	if 1+len(b) > len(ud) {
		return fmt.Errorf("%w: %d byte address", ErrBadPeer, len(b))
	}
	ud[0] = byte(len(b))
	copy(ud[1:], b)
	return nil
}

// getPeer reads the address stored by putPeer.
func getPeer(ud []byte) (netip.AddrPort, error) {
	if len(ud) == 0 || ud[0] == 0 || int(ud[0]) >= len(ud) {
		return netip.AddrPort{}, ErrBadPeer
	}
	var peer netip.AddrPort
	if err := peer.UnmarshalBinary(ud[1 : 1+int(ud[0])]); err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %v", ErrBadPeer, err)
	}
	return peer, nil
}

// udpBackend sends responses to the address in the user data.
type udpBackend struct {
	smp.BaseBackend
	server *UDPServer
}

func (b *udpBackend) Send(_ context.Context, buf *netbuf.Buf) error {
	peer, err := getPeer(buf.UserData())
	if err != nil {
		return err
	}
	if _, err := b.server.conn.WriteToUDPAddrPort(buf.Bytes(), peer); err != nil {
		return err
	}
	b.server.config.Logger.Log(frameEvent("udp", "udp", peer.String(), log.DirectionOut, buf.Bytes()))
	return nil
}

func (b *udpBackend) MTU() int {
	return b.server.config.MTU
}

func (b *udpBackend) IsStale(ud []byte, arg any) bool {
	target, ok := arg.(netip.AddrPort)
	if !ok {
		return false
	}
	peer, err := getPeer(ud)
	return err == nil && peer == target
}

var _ smp.Backend = (*udpBackend)(nil)
