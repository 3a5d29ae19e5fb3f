package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/smp-protocol/smp-go/pkg/log"
)

// ClientConfig configures a client connection.
type ClientConfig struct {
	// MaxUnitSize bounds responses read from a stream (default: 4096).
	MaxUnitSize int

	// ConnectTimeout is the connection timeout (default: 10s).
	ConnectTimeout time.Duration

	// Logger for protocol logging (optional).
	Logger log.Logger
}

// ClientConn is a client connection to an SMP server over "udp" or "tcp".
type ClientConn struct {
	conn    net.Conn
	network string
	reader  *UnitReader
	writer  *UnitWriter
	config  ClientConfig
	closeCh chan struct{}

	closeOnce sync.Once
	readMu    sync.Mutex
}

// Dial connects to address. network is "udp" or "tcp" (or a 4/6 variant).
func Dial(ctx context.Context, network, address string, config ClientConfig) (*ClientConn, error) {
	if config.MaxUnitSize <= 0 {
		config.MaxUnitSize = DefaultMaxUnitSize
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.NoopLogger{}
	}

	// Apply timeout from config if context doesn't have one
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.ConnectTimeout)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	c := &ClientConn{
		conn:    conn,
		network: conn.LocalAddr().Network(),
		config:  config,
		closeCh: make(chan struct{}),
	}
	if c.network == "tcp" {
		c.reader = NewUnitReader(conn, config.MaxUnitSize)
		c.writer = NewUnitWriter(conn)
		c.reader.SetLogger(config.Logger, conn.LocalAddr().String())
		c.writer.SetLogger(config.Logger, conn.LocalAddr().String())
	}
	return c, nil
}

// LocalAddr returns the local network address.
func (c *ClientConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *ClientConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send writes one request packet. Over UDP it is one datagram.
func (c *ClientConn) Send(pkt []byte) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}

	if c.writer != nil {
		return c.writer.WriteUnit(pkt)
	}
	if _, err := c.conn.Write(pkt); err != nil {
		return err
	}
	c.config.Logger.Log(frameEvent(c.conn.LocalAddr().String(), "udp", c.conn.RemoteAddr().String(), log.DirectionOut, pkt))
	return nil
}

// Receive reads one response with timeout (0 waits forever).
func (c *ClientConn) Receive(timeout time.Duration) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	select {
	case <-c.closeCh:
		return nil, ErrConnectionClosed
	default:
	}

	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}

	pkt, err := c.receive()
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return pkt, err
}

func (c *ClientConn) receive() ([]byte, error) {
	if c.reader != nil {
		return c.reader.ReadUnit()
	}
	buf := make([]byte, c.config.MaxUnitSize)
	n, err := c.conn.Read(buf)
	if err != nil {
		return nil, err
	}
	c.config.Logger.Log(frameEvent(c.conn.LocalAddr().String(), "udp", c.conn.RemoteAddr().String(), log.DirectionIn, buf[:n]))
	return buf[:n], nil
}

// Close closes the connection.
func (c *ClientConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}
