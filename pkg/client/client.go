package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smp-protocol/smp-go/pkg/transport"
	"github.com/smp-protocol/smp-go/pkg/wire"
)

// Client errors.
var (
	ErrRequestTimeout  = errors.New("request timed out")
	ErrClientClosed    = errors.New("client is closed")
	ErrUnexpectedReply = errors.New("unexpected reply")
	ErrBusy            = errors.New("all sequence numbers in use")
)

// DefaultTimeout bounds a request when the context has no deadline.
const DefaultTimeout = 5 * time.Second

// pollInterval is how long the read loop blocks in Receive before checking
// for Close.
const pollInterval = 100 * time.Millisecond

// Response is a decoded SMP response.
type Response struct {
	Header  wire.Header
	Payload []byte
}

// Map decodes the payload into a generic map.
func (r *Response) Map() (map[string]any, error) {
	return wire.DecodeMap(r.Payload)
}

// Decode decodes the payload into v.
func (r *Response) Decode(v any) error {
	if len(r.Payload) == 0 {
		return nil
	}
	return wire.Unmarshal(r.Payload, v)
}

// Client issues SMP requests over a transport.Conn and matches responses
// to requests by sequence number.
type Client struct {
	mu sync.RWMutex

	conn    transport.Conn
	timeout time.Duration
	version uint8

	nextSeq uint8

	// Pending requests awaiting responses, keyed by sequence number.
	pending   map[uint8]chan *Response
	pendingMu sync.Mutex

	// Responses nobody waits for.
	unmatched func(*Response)

	closed chan struct{}
	done   chan struct{}
	once   sync.Once
	err    error
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithVersion sets the header version written into requests.
func WithVersion(v uint8) Option {
	return func(c *Client) { c.version = v }
}

// WithUnmatchedHandler is called for responses that answer no pending
// request, for example replies that arrive after a timeout.
func WithUnmatchedHandler(fn func(*Response)) Option {
	return func(c *Client) { c.unmatched = fn }
}

// New creates a client reading responses from conn. The client owns conn
// and closes it on Close.
func New(conn transport.Conn, opts ...Option) *Client {
	c := &Client{
		conn:    conn,
		timeout: DefaultTimeout,
		version: wire.Version2,
		pending: make(map[uint8]chan *Response),
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c
}

// SetTimeout sets the request timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// Close stops the read loop, fails pending requests and closes the
// connection.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		err = c.conn.Close()
		<-c.done
	})
	return err
}

// Do sends one request. body is CBOR-encoded as the payload; nil sends an
// empty payload. A non-zero "rc" or a group error in the response is
// returned as a *StatusError together with the response.
func (c *Client) Do(ctx context.Context, op wire.Op, group wire.Group, id uint8, body any) (*Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = wire.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	c.mu.RLock()
	version := c.version
	c.mu.RUnlock()

	hdr := wire.Header{Op: op, Version: version, Group: group, ID: id}
	resp, err := c.roundTrip(ctx, hdr, payload)
	if err != nil {
		return nil, err
	}
	if resp.Header.Group != group || resp.Header.ID != id || resp.Header.Op != op.Response() {
		return resp, fmt.Errorf("%w: %s", ErrUnexpectedReply, resp.Header)
	}
	if err := checkStatus(resp.Payload); err != nil {
		return resp, err
	}
	return resp, nil
}

// Raw sends pkt unchanged except for its sequence number and returns the
// matching response packet, header included.
func (c *Client) Raw(ctx context.Context, pkt []byte) ([]byte, error) {
	hdr, err := wire.ReadHeader(pkt)
	if err != nil {
		return nil, err
	}
	resp, err := c.roundTrip(ctx, hdr, pkt[wire.HeaderSize:])
	if err != nil {
		return nil, err
	}
	resp.Header.Len = uint16(len(resp.Payload))
	return wire.Packet(resp.Header, resp.Payload), nil
}

func (c *Client) roundTrip(ctx context.Context, hdr wire.Header, payload []byte) (*Response, error) {
	select {
	case <-c.closed:
		return nil, ErrClientClosed
	default:
	}

	c.mu.RLock()
	timeout := c.timeout
	c.mu.RUnlock()

	respCh := make(chan *Response, 1)
	seq, err := c.register(respCh)
	if err != nil {
		return nil, err
	}
	defer c.unregister(seq)

	hdr.Seq = seq
	if err := c.conn.Send(wire.Packet(hdr, payload)); err != nil {
		return nil, err
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-expired:
		return nil, ErrRequestTimeout
	case resp, ok := <-respCh:
		if !ok {
			return nil, c.closeErr()
		}
		return resp, nil
	}
}

// register reserves the next free sequence number for ch.
func (c *Client) register(ch chan *Response) (uint8, error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	if c.pending == nil {
		return 0, c.closeErrLocked()
	}
	for range 256 {
		seq := c.nextSeq
		c.nextSeq++
		if _, busy := c.pending[seq]; !busy {
			c.pending[seq] = ch
			return seq, nil
		}
	}
	return 0, ErrBusy
}

func (c *Client) unregister(seq uint8) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if c.pending != nil {
		delete(c.pending, seq)
	}
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		select {
		case <-c.closed:
			c.fail(ErrClientClosed)
			return
		default:
		}

		pkt, err := c.conn.Receive(pollInterval)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				continue
			}
			c.fail(err)
			return
		}
		c.handlePacket(pkt)
	}
}

// handlePacket delivers one response packet to its waiter.
func (c *Client) handlePacket(pkt []byte) {
	hdr, err := wire.ReadHeader(pkt)
	if err != nil {
		return
	}
	payload := pkt[wire.HeaderSize:]
	if int(hdr.Len) < len(payload) {
		payload = payload[:hdr.Len]
	}
	resp := &Response{Header: hdr, Payload: payload}

	var ch chan *Response
	if hdr.Op.IsResponse() {
		c.pendingMu.Lock()
		ch = c.pending[hdr.Seq]
		delete(c.pending, hdr.Seq)
		c.pendingMu.Unlock()
	}

	if ch == nil {
		if c.unmatched != nil {
			c.unmatched(resp)
		}
		return
	}
	ch <- resp
}

// fail closes every pending channel and refuses new requests.
func (c *Client) fail(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	c.err = err
	for _, ch := range c.pending {
		close(ch)
	}
	c.pending = nil
}

func (c *Client) closeErr() error {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return c.closeErrLocked()
}

func (c *Client) closeErrLocked() error {
	if c.err == nil || errors.Is(c.err, ErrClientClosed) {
		return ErrClientClosed
	}
	return fmt.Errorf("%w: %v", ErrClientClosed, c.err)
}
