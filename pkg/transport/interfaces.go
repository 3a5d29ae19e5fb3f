package transport

import (
	"context"
	"net"
	"time"
)

// Conn is a client-side packet connection.
// Implemented by ClientConn and Dummy.
type Conn interface {
	// Send sends one request packet.
	Send(pkt []byte) error

	// Receive returns the next response packet, waiting up to timeout.
	Receive(timeout time.Duration) ([]byte, error)

	// Close closes the connection.
	Close() error
}

// Server is a network transport serving SMP.
// Implemented by UDPServer and StreamServer.
type Server interface {
	// Start begins serving.
	Start(ctx context.Context) error

	// Stop stops serving and releases the transport.
	Stop() error

	// Addr returns the bound address.
	Addr() net.Addr
}

// Compile-time interface satisfaction checks.
var (
	_ Conn   = (*ClientConn)(nil)
	_ Conn   = (*Dummy)(nil)
	_ Server = (*UDPServer)(nil)
	_ Server = (*StreamServer)(nil)
)
