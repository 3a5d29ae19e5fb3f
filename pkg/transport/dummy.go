package transport

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smp-protocol/smp-go/pkg/log"
	"github.com/smp-protocol/smp-go/pkg/netbuf"
	"github.com/smp-protocol/smp-go/pkg/smp"
)

// ErrTimeout indicates no data arrived in time.
var ErrTimeout = errors.New("timed out waiting for data")

// DummyConfig configures a Dummy transport.
type DummyConfig struct {
	// MTU is the fragment size Send uses. 0 injects whole packets.
	MTU int

	// Logger for protocol logging (optional).
	Logger log.Logger
}

// Dummy is an in-memory transport. Packets written with Send or Inject go
// through reassembly into the engine; responses are read with Receive.
type Dummy struct {
	config    DummyConfig
	transport *smp.Transport

	mu     sync.Mutex
	feeder *Feeder

	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

// NewDummy creates a dummy transport served by sched.
func NewDummy(sched *smp.Scheduler, config DummyConfig) (*Dummy, error) {
	if config.Logger == nil {
		config.Logger = log.NoopLogger{}
	}
	d := &Dummy{
		config: config,
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
	t, err := smp.NewTransport(sched, &dummyBackend{d: d}, smp.WithName("dummy"))
	if err != nil {
		return nil, err
	}
	d.transport = t
	d.feeder = NewFeeder(t, nil)
	return d, nil
}

// Transport returns the dummy's smp.Transport.
func (d *Dummy) Transport() *smp.Transport {
	return d.transport
}

// Inject feeds pkt through reassembly in fragments of at most fragSize
// bytes (fragSize <= 0 sends it whole).
func (d *Dummy) Inject(pkt []byte, fragSize int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	select {
	case <-d.closed:
		return ErrConnectionClosed
	default:
	}

	d.config.Logger.Log(frameEvent("dummy", "dummy", "", log.DirectionIn, pkt))
	if fragSize <= 0 {
		fragSize = len(pkt)
	}
	for len(pkt) > 0 {
		n := min(fragSize, len(pkt))
		if err := d.feeder.Feed(pkt[:n]); err != nil {
			return err
		}
		pkt = pkt[n:]
	}
	return nil
}

// Flush forces a partially reassembled packet into the engine.
func (d *Dummy) Flush() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.feeder.Flush()
}

// Send injects pkt using the configured MTU.
func (d *Dummy) Send(pkt []byte) error {
	return d.Inject(pkt, d.config.MTU)
}

// Receive returns the next response, waiting up to timeout (0 waits
// forever).
func (d *Dummy) Receive(timeout time.Duration) ([]byte, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case pkt := <-d.out:
		return pkt, nil
	case <-d.closed:
		return nil, ErrConnectionClosed
	case <-expired:
		return nil, ErrTimeout
	}
}

// Close detaches the transport and discards anything queued.
func (d *Dummy) Close() error {
	d.once.Do(func() {
		close(d.closed)
		d.mu.Lock()
		d.feeder.Reset()
		d.mu.Unlock()
		d.transport.Close()
	})
	return nil
}

type dummyBackend struct {
	smp.BaseBackend
	d *Dummy
}

func (b *dummyBackend) Send(ctx context.Context, buf *netbuf.Buf) error {
	pkt := bytes.Clone(buf.Bytes())
	b.d.config.Logger.Log(frameEvent("dummy", "dummy", "", log.DirectionOut, pkt))

	select {
	case b.d.out <- pkt:
		return nil
	case <-b.d.closed:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *dummyBackend) MTU() int {
	if b.d.config.MTU > 0 {
		return b.d.config.MTU
	}
	return b.d.transport.Pool().BufSize()
}

var _ smp.Backend = (*dummyBackend)(nil)
