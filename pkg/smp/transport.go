package smp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/smp-protocol/smp-go/pkg/netbuf"
)

// Backend is the capability set a concrete transport provides.
type Backend interface {
	// Send transmits one response. The buffer is freed when Send returns,
	// so implementations must not retain it.
	Send(ctx context.Context, buf *netbuf.Buf) error

	// MTU returns the largest packet the transport can carry.
	MTU() int

	// CloneUserData copies transport metadata from a request buffer into
	// the response buffer allocated for it.
	CloneUserData(dst, src []byte) error

	// DropUserData releases anything referenced by a buffer's user data.
	// It is called before every buffer owned by the transport is freed.
	DropUserData(ud []byte)

	// IsStale reports whether a queued packet belongs to arg, the entity
	// being torn down (a connection, a peer address).
	IsStale(ud []byte, arg any) bool
}

// BaseBackend provides defaults for the optional Backend methods. Embed it
// and implement Send and MTU.
type BaseBackend struct{}

// CloneUserData copies src into dst.
func (BaseBackend) CloneUserData(dst, src []byte) error {
	copy(dst, src)
	return nil
}

// DropUserData does nothing.
func (BaseBackend) DropUserData([]byte) {}

// IsStale reports every packet as current.
func (BaseBackend) IsStale([]byte, any) bool { return false }

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithName sets the name used in logs and capture events.
func WithName(name string) TransportOption {
	return func(t *Transport) {
		t.name = name
	}
}

// Transport is the per-channel context: reassembly state, the inbound FIFO
// of complete packets, and the Backend used to send responses.
//
// RxReq and RemoveInvalid are safe for concurrent use. The reassembly
// methods are not; the owning transport serialises its own calls.
type Transport struct {
	sched   *Scheduler
	backend Backend
	name    string
	logger  *slog.Logger

	rx *Reassembler

	mu     sync.Mutex
	fifo   []*netbuf.Buf
	closed bool

	// queued is guarded by sched.mu.
	queued bool
}

// NewTransport creates a transport served by sched.
func NewTransport(sched *Scheduler, backend Backend, opts ...TransportOption) (*Transport, error) {
	if sched == nil || backend == nil {
		return nil, fmt.Errorf("%w: scheduler and backend are required", ErrInvalid)
	}
	t := &Transport{
		sched:   sched,
		backend: backend,
		name:    "smp",
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = sched.logger.With("transport", t.name)
	t.rx = NewReassembler(t)
	sched.register(t)
	return t, nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return t.name
}

// MTU returns the backend's MTU.
func (t *Transport) MTU() int {
	return t.backend.MTU()
}

// Pool returns the buffer pool packets are allocated from.
func (t *Transport) Pool() *netbuf.Pool {
	return t.sched.engine.pool
}

// AllocPacket takes an empty buffer from the pool. Transports that receive
// whole packets fill it and pass it to RxReq.
func (t *Transport) AllocPacket() (*netbuf.Buf, error) {
	buf, err := t.Pool().Alloc()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoMem, err)
	}
	return buf, nil
}

// FreePacket releases a buffer the transport allocated but did not pass
// to RxReq.
func (t *Transport) FreePacket(buf *netbuf.Buf) {
	t.freeBuf(buf)
}

// RxReq queues a complete packet and schedules the worker. Ownership of
// buf passes to the transport. It never blocks on processing.
func (t *Transport) RxReq(buf *netbuf.Buf) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.freeBuf(buf)
		return
	}
	t.fifo = append(t.fifo, buf)
	t.mu.Unlock()

	t.sched.Schedule(t)
}

// Pending returns the number of queued packets.
func (t *Transport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.fifo)
}

// RemoveInvalid cancels pending work, frees every queued packet the
// backend reports stale for arg and keeps the rest in order. The worker is
// rescheduled if anything remains. It returns the number of packets freed.
func (t *Transport) RemoveInvalid(arg any) int {
	t.sched.cancel(t)

	t.mu.Lock()
	var stale []*netbuf.Buf
	kept := t.fifo[:0]
	for _, buf := range t.fifo {
		if t.backend.IsStale(buf.UserData(), arg) {
			stale = append(stale, buf)
		} else {
			kept = append(kept, buf)
		}
	}
	clear(t.fifo[len(kept):])
	t.fifo = kept
	remaining := len(kept)
	t.mu.Unlock()

	for _, buf := range stale {
		t.freeBuf(buf)
	}
	if remaining > 0 {
		t.sched.Schedule(t)
	}
	if len(stale) > 0 {
		t.logger.Debug("removed stale packets", "removed", len(stale), "remaining", remaining)
	}
	return len(stale)
}

// Close drops any in-progress reassembly, frees every queued packet and
// detaches the transport from its scheduler. Later RxReq calls free their
// buffer immediately.
func (t *Transport) Close() {
	t.sched.cancel(t)
	t.sched.unregister(t)
	t.rx.Drop()

	t.mu.Lock()
	t.closed = true
	fifo := t.fifo
	t.fifo = nil
	t.mu.Unlock()

	for _, buf := range fifo {
		t.freeBuf(buf)
	}
}

// Collect appends a fragment to the message being reassembled.
// See Reassembler.Collect.
func (t *Transport) Collect(frag []byte) (int, error) {
	return t.rx.Collect(frag)
}

// Expected returns the bytes still needed by the message in progress.
func (t *Transport) Expected() (int, error) {
	return t.rx.Expected()
}

// Complete passes the reassembled message to the FIFO.
// See Reassembler.Complete.
func (t *Transport) Complete(force bool) (int, error) {
	return t.rx.Complete(force)
}

// Drop discards the message in progress.
func (t *Transport) Drop() error {
	return t.rx.Drop()
}

// UserData returns the user-data region of the message in progress, or nil
// when idle.
func (t *Transport) UserData() []byte {
	return t.rx.UserData()
}

// pop takes the next queued packet, or nil when the FIFO is empty.
func (t *Transport) pop() *netbuf.Buf {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.fifo) == 0 {
		return nil
	}
	buf := t.fifo[0]
	t.fifo[0] = nil
	t.fifo = t.fifo[1:]
	return buf
}

// drain feeds queued packets to the engine until the FIFO is empty or ctx
// is done.
func (t *Transport) drain(ctx context.Context, e *Engine) {
	for ctx.Err() == nil {
		buf := t.pop()
		if buf == nil {
			return
		}
		if err := e.ProcessRequestPacket(ctx, t, buf); err != nil {
			t.logger.Debug("request packet failed", "error", err)
		}
	}
}

// output sends a response and frees it once the backend returns.
func (t *Transport) output(ctx context.Context, buf *netbuf.Buf) error {
	defer t.freeBuf(buf)
	if err := t.backend.Send(ctx, buf); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

func (t *Transport) cloneUserData(dst, src *netbuf.Buf) error {
	return t.backend.CloneUserData(dst.UserData(), src.UserData())
}

func (t *Transport) freeBuf(buf *netbuf.Buf) {
	if buf == nil {
		return
	}
	t.backend.DropUserData(buf.UserData())
	buf.Free()
}
