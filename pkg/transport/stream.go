package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/smp-protocol/smp-go/pkg/log"
	"github.com/smp-protocol/smp-go/pkg/netbuf"
	"github.com/smp-protocol/smp-go/pkg/smp"
)

// Stream transport defaults.
const (
	DefaultStreamAddress = ":1338"
	DefaultReadChunk     = 128
)

// Stream errors.
var (
	// ErrConnectionClosed indicates the response's connection is gone.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrServerRunning is returned by Start on a running server.
	ErrServerRunning = errors.New("server already running")
)

// StreamConfig configures a StreamServer.
type StreamConfig struct {
	// Address to listen on (e.g., ":1338" or "127.0.0.1:0").
	Address string

	// ReadChunk is the socket read size. Small values exercise reassembly
	// the way a low-MTU link would.
	ReadChunk int

	// Logger for protocol logging (optional).
	Logger log.Logger

	// Log is the operational logger (default: slog.Default()).
	Log *slog.Logger

	// OnConnect is called when a new connection is established.
	OnConnect func(conn *ServerConn)

	// OnDisconnect is called when a connection is closed.
	OnDisconnect func(conn *ServerConn)
}

// StreamServer serves SMP over TCP. All connections share one
// smp.Transport; each has its own reassembler, and the connection UUID in
// the buffer user data routes responses back.
type StreamServer struct {
	config    StreamConfig
	log       *slog.Logger
	transport *smp.Transport
	listener  net.Listener

	// Active connections
	conns   map[uuid.UUID]*ServerConn
	connsMu sync.RWMutex

	// State
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewStreamServer creates a TCP server whose packets are processed by sched.
func NewStreamServer(sched *smp.Scheduler, config StreamConfig) (*StreamServer, error) {
	if config.Address == "" {
		config.Address = DefaultStreamAddress
	}
	if config.ReadChunk <= 0 {
		config.ReadChunk = DefaultReadChunk
	}
	if config.Logger == nil {
		config.Logger = log.NoopLogger{}
	}
	if config.Log == nil {
		config.Log = slog.Default()
	}

	s := &StreamServer{
		config: config,
		log:    config.Log.With("transport", "tcp"),
		conns:  make(map[uuid.UUID]*ServerConn),
	}
	if ud := sched.Engine().Pool().UserDataSize(); ud < len(uuid.UUID{}) {
		return nil, fmt.Errorf("user data size %d cannot hold a connection ID", ud)
	}

	t, err := smp.NewTransport(sched, &streamBackend{server: s}, smp.WithName("tcp"))
	if err != nil {
		return nil, err
	}
	s.transport = t
	return s, nil
}

// Start starts the server and begins accepting connections.
func (s *StreamServer) Start(ctx context.Context) error {
	if s.running.Load() {
		return ErrServerRunning
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)

	s.config.Logger.Log(stateEvent("tcp", "tcp", listener.Addr().String(), log.StateEntityTransport, "", "LISTENING", ""))
	s.log.Info("listening", "address", listener.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop stops the server, closes all connections and detaches the transport.
func (s *StreamServer) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.connsMu.Lock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	s.transport.Close()
	s.config.Logger.Log(stateEvent("tcp", "tcp", "", log.StateEntityTransport, "LISTENING", "STOPPED", ""))
	return nil
}

// Addr returns the server's listen address.
func (s *StreamServer) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of active connections.
func (s *StreamServer) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

// Transport returns the shared smp.Transport.
func (s *StreamServer) Transport() *smp.Transport {
	return s.transport
}

func (s *StreamServer) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() {
				s.log.Warn("accept failed", "error", err)
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection runs one connection until it closes, then discards
// everything it left behind.
func (s *StreamServer) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	connID := uuid.New()
	sconn := &ServerConn{
		conn:       conn,
		server:     s,
		connID:     connID,
		remoteAddr: conn.RemoteAddr(),
		writer:     NewUnitWriter(conn),
		closeCh:    make(chan struct{}),
	}
	sconn.writer.SetLogger(s.config.Logger, connID.String())
	sconn.rx = smp.NewReassembler(s.transport)
	sconn.feeder = NewFeeder(sconn.rx, func(ud []byte) {
		copy(ud, connID[:])
	})

	s.config.Logger.Log(stateEvent(connID.String(), "tcp", sconn.remoteAddr.String(),
		log.StateEntityConnection, "", "CONNECTED", ""))
	s.log.Debug("connection opened", "conn", connID, "remote", sconn.remoteAddr)

	s.connsMu.Lock()
	s.conns[connID] = sconn
	s.connsMu.Unlock()

	if s.config.OnConnect != nil {
		s.config.OnConnect(sconn)
	}

	reason := sconn.readLoop()

	s.connsMu.Lock()
	delete(s.conns, connID)
	s.connsMu.Unlock()

	// The reassembler is only touched by the read loop, which has exited.
	sconn.feeder.Reset()
	removed := s.transport.RemoveInvalid(connID)
	sconn.Close()

	s.config.Logger.Log(stateEvent(connID.String(), "tcp", sconn.remoteAddr.String(),
		log.StateEntityConnection, "CONNECTED", "DISCONNECTED", reason))
	s.log.Debug("connection closed", "conn", connID, "reason", reason, "discarded", removed)

	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(sconn)
	}
}

func (s *StreamServer) lookup(id uuid.UUID) *ServerConn {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return s.conns[id]
}

// ServerConn is one client connection to a StreamServer.
type ServerConn struct {
	conn       net.Conn
	server     *StreamServer
	connID     uuid.UUID
	remoteAddr net.Addr
	writer     *UnitWriter
	rx         *smp.Reassembler
	feeder     *Feeder
	closeCh    chan struct{}
	closeOnce  sync.Once
}

// ConnID returns the unique connection identifier.
func (c *ServerConn) ConnID() uuid.UUID {
	return c.connID
}

// RemoteAddr returns the remote address of the client.
func (c *ServerConn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// Send writes raw bytes to the client.
func (c *ServerConn) Send(data []byte) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}
	return c.writer.WriteUnit(data)
}

// Close closes the connection.
func (c *ServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

// readLoop feeds socket reads into the reassembler until the connection
// fails. It returns why it stopped.
func (c *ServerConn) readLoop() string {
	chunk := make([]byte, c.server.config.ReadChunk)
	id := c.connID.String()
	remote := c.remoteAddr.String()

	for {
		n, err := c.conn.Read(chunk)
		if n > 0 {
			c.server.config.Logger.Log(frameEvent(id, "tcp", remote, log.DirectionIn, chunk[:n]))
			if ferr := c.feeder.Feed(chunk[:n]); ferr != nil {
				c.server.log.Warn("dropping connection", "conn", c.connID, "error", ferr)
				c.server.config.Logger.Log(log.Event{
					Timestamp:   time.Now(),
					TransportID: id,
					Layer:       log.LayerTransport,
					Category:    log.CategoryError,
					Transport:   "tcp",
					RemoteAddr:  remote,
					Error: &log.ErrorEventData{
						Layer:   log.LayerTransport,
						Message: ferr.Error(),
						Context: "reassembly",
					},
				})
				return "reassembly error"
			}
		}
		if err != nil {
			select {
			case <-c.closeCh:
				return "closed"
			default:
			}
			return err.Error()
		}
	}
}

// streamBackend routes responses to the connection named in the user data.
type streamBackend struct {
	smp.BaseBackend
	server *StreamServer
}

func (b *streamBackend) Send(_ context.Context, buf *netbuf.Buf) error {
	id, err := uuid.FromBytes(buf.UserData()[:len(uuid.UUID{})])
	if err != nil {
		return err
	}
	conn := b.server.lookup(id)
	if conn == nil {
		return fmt.Errorf("%w: %s", ErrConnectionClosed, id)
	}
	return conn.Send(buf.Bytes())
}

func (b *streamBackend) MTU() int {
	return b.server.transport.Pool().BufSize()
}

func (b *streamBackend) IsStale(ud []byte, arg any) bool {
	id, ok := arg.(uuid.UUID)
	if !ok || len(ud) < len(id) {
		return false
	}
	return uuid.UUID(ud[:len(id)]) == id
}

// Compile-time interface satisfaction checks.
var _ smp.Backend = (*streamBackend)(nil)
