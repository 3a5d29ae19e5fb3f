package smp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/smp-protocol/smp-go/pkg/log"
	"github.com/smp-protocol/smp-go/pkg/mgmt"
	"github.com/smp-protocol/smp-go/pkg/netbuf"
	"github.com/smp-protocol/smp-go/pkg/wire"
)

// Option configures an Engine.
type Option func(*Engine)

// WithCallbacks sets the management callbacks notified per command.
func WithCallbacks(cb *mgmt.Callbacks) Option {
	return func(e *Engine) {
		e.callbacks = cb
	}
}

// WithVerboseErrors adds the "rsn" text to error responses.
func WithVerboseErrors(verbose bool) Option {
	return func(e *Engine) {
		e.verbose = verbose
	}
}

// WithMaxEntries bounds the number of entries in a response map.
func WithMaxEntries(n int) Option {
	return func(e *Engine) {
		e.maxEntries = n
	}
}

// WithLogger sets the operational logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithProtocolLogger captures every request header and response.
func WithProtocolLogger(logger log.Logger) Option {
	return func(e *Engine) {
		e.plog = logger
	}
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Engine processes request packets: it splits them into header+payload
// units, dispatches each to its handler and sends the responses.
type Engine struct {
	pool       *netbuf.Pool
	registry   *mgmt.Registry
	callbacks  *mgmt.Callbacks
	verbose    bool
	maxEntries int
	logger     *slog.Logger
	plog       log.Logger
	metrics    *Metrics
}

// NewEngine creates an engine allocating responses from pool and looking up
// handlers in registry.
func NewEngine(pool *netbuf.Pool, registry *mgmt.Registry, opts ...Option) (*Engine, error) {
	if pool == nil || registry == nil {
		return nil, fmt.Errorf("%w: pool and registry are required", ErrInvalid)
	}
	e := &Engine{
		pool:       pool,
		registry:   registry,
		maxEntries: mgmt.DefaultMaxEntries,
		logger:     slog.Default(),
		plog:       log.NoopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Pool returns the engine's buffer pool.
func (e *Engine) Pool() *netbuf.Pool {
	return e.pool
}

// ProcessRequestPacket handles every request unit in req, sending one
// response per unit. The first failure stops the packet; an error response
// is sent when a header was read for the failing unit. req and any response
// buffer are freed before it returns. An empty packet is a no-op.
func (e *Engine) ProcessRequestPacket(ctx context.Context, t *Transport, req *netbuf.Buf) error {
	var (
		rsp          *netbuf.Buf
		hdr          wire.Header
		validHdr     bool
		handlerFound bool
		start        time.Time
		err          error
	)

	e.metrics.RecordPacket()

	for req.Len() > 0 {
		validHdr = false
		handlerFound = false

		hdr, err = wire.ReadHeader(req.Bytes())
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrCorrupt, err)
			break
		}
		validHdr = true
		start = time.Now()
		req.Pull(wire.HeaderSize)
		e.logHeader(t, hdr, log.DirectionIn, nil, "", nil)
		e.metrics.RecordRequest(hdr)

		if int(hdr.Len) > req.Len() {
			err = fmt.Errorf("%w: declared length %d, %d bytes left", ErrCorrupt, hdr.Len, req.Len())
			break
		}

		if hdr.Op.IsResponse() {
			err = fmt.Errorf("%w: %s received by server", ErrNotSupported, hdr.Op)
			break
		}

		rsp, err = e.allocResponse(t, req)
		if err != nil {
			break
		}

		handlerFound, err = e.handleSingleReq(ctx, hdr, req.Bytes()[:hdr.Len], rsp)
		if err != nil {
			break
		}

		if rsp.Len()-wire.HeaderSize > wire.MaxPayloadLen {
			err = fmt.Errorf("%w: %d byte payload", ErrMsgSize, rsp.Len()-wire.HeaderSize)
			break
		}
		rspHdr := hdr.Response(rsp.Len() - wire.HeaderSize)
		rspHdr.Put(rsp.Bytes())
		elapsed := time.Since(start)
		e.logHeader(t, rspHdr, log.DirectionOut, nil, "", &elapsed)

		err = t.output(ctx, rsp)
		rsp = nil
		if err != nil {
			break
		}
		e.metrics.RecordResponse(wire.StatusOK, elapsed)

		req.Pull(int(hdr.Len))
		e.callbacks.Notify(mgmt.EventCmdDone, mgmt.CmdArg{
			Group: hdr.Group,
			ID:    hdr.ID,
			Op:    hdr.Op,
			Err:   wire.StatusOK,
		})
	}

	if err != nil && validHdr {
		status, reason := statusFor(err)
		if rsp == nil {
			rsp, req = req, nil
		}
		e.sendError(ctx, t, rsp, hdr, status, reason, start)
		rsp = nil

		if handlerFound {
			e.callbacks.Notify(mgmt.EventCmdDone, mgmt.CmdArg{
				Group: hdr.Group,
				ID:    hdr.ID,
				Op:    hdr.Op,
				Err:   status,
			})
		}
	}

	t.freeBuf(rsp)
	t.freeBuf(req)
	e.metrics.ObservePool(e.pool.Stats())

	if err != nil {
		e.logger.Debug("request failed",
			"transport", t.Name(),
			"group", hdr.Group,
			"id", hdr.ID,
			"seq", hdr.Seq,
			"error", err)
	}
	return err
}

// allocResponse takes a response buffer, copies the transport user data from
// req and reserves room for the header.
func (e *Engine) allocResponse(t *Transport, req *netbuf.Buf) (*netbuf.Buf, error) {
	rsp, err := e.pool.Alloc()
	if err != nil {
		return nil, fmt.Errorf("%w: response: %v", ErrNoMem, err)
	}
	if err := t.cloneUserData(rsp, req); err != nil {
		rsp.Free()
		return nil, fmt.Errorf("%w: user data: %v", ErrNoMem, err)
	}
	if _, err := rsp.Extend(wire.HeaderSize); err != nil {
		t.freeBuf(rsp)
		return nil, fmt.Errorf("%w: %v", ErrMsgSize, err)
	}
	return rsp, nil
}

// handleSingleReq runs the handler for one request, encoding its response
// map into rsp after the reserved header. handlerFound reports whether a
// handler function was selected.
func (e *Engine) handleSingleReq(ctx context.Context, hdr wire.Header, payload []byte, rsp *netbuf.Buf) (handlerFound bool, err error) {
	if !hdr.Op.IsRequest() {
		return false, fmt.Errorf("%w: op %d", ErrInvalid, hdr.Op)
	}
	handler := e.registry.Lookup(hdr.Group, hdr.ID)
	if handler == nil {
		return false, fmt.Errorf("%w: group %d id %d", ErrNotSupported, hdr.Group, hdr.ID)
	}

	fn := handler.Func(hdr.Op)
	if fn == nil {
		return false, fmt.Errorf("%w: %s on group %d id %d", ErrNotSupported, hdr.Op, hdr.Group, hdr.ID)
	}

	enc := mgmt.NewMapEncoder(rsp, e.maxEntries)
	if err := enc.Open(); err != nil {
		return true, fmt.Errorf("%w: %v", ErrMsgSize, err)
	}

	result := e.callbacks.Notify(mgmt.EventCmdRecv, mgmt.CmdArg{
		Group: hdr.Group,
		ID:    hdr.ID,
		Op:    hdr.Op,
	})
	switch {
	case result.IsErrorRC():
		return true, mgmt.NewError(result.RC, "rejected")
	case result.IsErrorGroup():
		err = enc.Encode(wire.KeyErr, wire.GroupError{Group: result.Group, RC: uint16(result.RC)})
	default:
		err = fn(ctx, mgmt.NewStreamer(hdr, payload, enc))
	}
	if err != nil {
		if errors.Is(err, mgmt.ErrOverflow) {
			return true, fmt.Errorf("%w: %v", ErrMsgSize, err)
		}
		return true, err
	}

	if err := enc.Close(); err != nil {
		if errors.Is(err, mgmt.ErrOverflow) {
			return true, fmt.Errorf("%w: %v", ErrMsgSize, err)
		}
		return true, err
	}
	return true, nil
}

// sendError builds {"rc": status[, "rsn": reason]} into buf, addressed from
// hdr, and sends it. buf is always consumed.
func (e *Engine) sendError(ctx context.Context, t *Transport, buf *netbuf.Buf, hdr wire.Header, status wire.Status, reason string, start time.Time) {
	if !e.verbose {
		reason = ""
	}
	if err := buildErrRsp(buf, hdr, status, reason); err != nil {
		e.logger.Warn("failed to build error response", "transport", t.Name(), "status", status, "error", err)
		t.freeBuf(buf)
		return
	}

	rspHdr, _ := wire.ReadHeader(buf.Bytes())
	elapsed := time.Since(start)
	e.logHeader(t, rspHdr, log.DirectionOut, &status, reason, &elapsed)
	e.metrics.RecordResponse(status, elapsed)

	if err := t.output(ctx, buf); err != nil {
		e.logger.Warn("failed to send error response", "transport", t.Name(), "status", status, "error", err)
	}
}

// buildErrRsp resets buf, keeping its user data, and writes a complete error
// response to it.
func buildErrRsp(buf *netbuf.Buf, hdr wire.Header, status wire.Status, reason string) error {
	body, err := wire.EncodeErrorBody(status, reason)
	if err != nil {
		return err
	}
	buf.Reset()
	h, err := buf.Extend(wire.HeaderSize)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMsgSize, err)
	}
	hdr.Response(len(body)).Put(h)
	if err := buf.Append(body); err != nil {
		return fmt.Errorf("%w: %v", ErrMsgSize, err)
	}
	return nil
}

func (e *Engine) logHeader(t *Transport, h wire.Header, dir log.Direction, status *wire.Status, reason string, elapsed *time.Duration) {
	msg := log.NewMessageEvent(h)
	msg.Status = status
	msg.Reason = reason
	msg.ProcessingTime = elapsed

	category := log.CategoryMessage
	if status != nil {
		category = log.CategoryError
	}
	e.plog.Log(log.Event{
		Timestamp:   time.Now(),
		TransportID: t.Name(),
		Direction:   dir,
		Layer:       log.LayerSMP,
		Category:    category,
		Message:     msg,
	})
}
