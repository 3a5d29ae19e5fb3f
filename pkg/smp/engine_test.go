package smp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/smp-protocol/smp-go/pkg/log"
	"github.com/smp-protocol/smp-go/pkg/mgmt"
	"github.com/smp-protocol/smp-go/pkg/wire"
)

func TestNewEngineRequiresPoolAndRegistry(t *testing.T) {
	_, err := NewEngine(nil, mgmt.NewRegistry())
	assert.True(t, errors.Is(err, ErrInvalid))

	f := newFixture(t, 1)
	_, err = NewEngine(f.pool, nil)
	assert.True(t, errors.Is(err, ErrInvalid))

	_, err = NewTransport(nil, f.backend)
	assert.True(t, errors.Is(err, ErrInvalid))
	_, err = NewTransport(f.sched, nil)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestProcessSingleRequest(t *testing.T) {
	f := newFixture(t, 4)

	req := echoRequest(t, 42, "hello")
	require.NoError(t, f.process(t, req))

	sent := f.backend.Sent()
	require.Len(t, sent, 1)

	hdr, body := splitResponse(t, sent[0])
	assert.Equal(t, wire.OpWriteRsp, hdr.Op)
	assert.Equal(t, wire.GroupOS, hdr.Group)
	assert.Equal(t, uint8(42), hdr.Seq)
	assert.Equal(t, uint8(0), hdr.ID)
	assert.Equal(t, uint8(0), hdr.Flags)
	assert.Equal(t, "hello", body["r"])

	// Indefinite-length map on the wire.
	assert.Equal(t, byte(wire.MapStartIndef), sent[0][wire.HeaderSize])
	assert.Equal(t, byte(wire.Break), sent[0][len(sent[0])-1])

	assert.Equal(t, 0, f.pool.Outstanding())
	f.backend.AssertNumberOfCalls(t, "Send", 1)
}

func TestProcessReadRequest(t *testing.T) {
	f := newFixture(t, 4)

	req := wire.Packet(wire.Header{Op: wire.OpRead, Version: wire.Version2, Group: wire.GroupOS, Seq: 3, ID: 6}, nil)
	require.NoError(t, f.process(t, req))

	sent := f.backend.Sent()
	require.Len(t, sent, 1)
	hdr, body := splitResponse(t, sent[0])
	assert.Equal(t, wire.OpReadRsp, hdr.Op)
	assert.Equal(t, wire.Version2, hdr.Version)
	assert.EqualValues(t, 256, body["buf_size"])
	assert.EqualValues(t, 4, body["buf_count"])
}

func TestProcessConcatenatedRequests(t *testing.T) {
	f := newFixture(t, 4)

	pkt := append(echoRequest(t, 1, "first"), echoRequest(t, 2, "second")...)
	require.NoError(t, f.process(t, pkt))

	sent := f.backend.Sent()
	require.Len(t, sent, 2)

	for i, want := range []string{"first", "second"} {
		hdr, body := splitResponse(t, sent[i])
		assert.Equal(t, uint8(i+1), hdr.Seq)
		assert.Equal(t, want, body["r"])
	}
	assert.Equal(t, 0, f.pool.Outstanding())
}

func TestProcessEmptyPacket(t *testing.T) {
	f := newFixture(t, 4)
	require.NoError(t, f.process(t, nil))
	assert.Empty(t, f.backend.Sent())
	assert.Equal(t, 0, f.pool.Outstanding())
}

func TestProcessCorrupt(t *testing.T) {
	t.Run("declared length exceeds packet", func(t *testing.T) {
		f := newFixture(t, 4)
		req := echoRequest(t, 9, "x")
		err := f.process(t, req[:len(req)-1])
		assert.True(t, errors.Is(err, ErrCorrupt))

		sent := f.backend.Sent()
		require.Len(t, sent, 1)
		hdr, body := errorStatus(t, sent[0])
		assert.Equal(t, wire.StatusCorrupt, body.RC)
		assert.Equal(t, uint8(9), hdr.Seq)
		assert.Equal(t, 0, f.pool.Outstanding())
	})

	t.Run("short header sends nothing", func(t *testing.T) {
		f := newFixture(t, 4)
		err := f.process(t, []byte{0x02, 0x00, 0x00})
		assert.True(t, errors.Is(err, ErrCorrupt))
		assert.Empty(t, f.backend.Sent())
		assert.Equal(t, 0, f.pool.Outstanding())
	})

	t.Run("trailing short header after valid unit", func(t *testing.T) {
		f := newFixture(t, 4)
		pkt := append(echoRequest(t, 1, "ok"), 0x02, 0x00)
		err := f.process(t, pkt)
		assert.True(t, errors.Is(err, ErrCorrupt))

		sent := f.backend.Sent()
		require.Len(t, sent, 1, "only the first unit is answered")
		_, body := splitResponse(t, sent[0])
		assert.Equal(t, "ok", body["r"])
		assert.Equal(t, 0, f.pool.Outstanding())
	})
}

func TestProcessStopsAtFirstFailure(t *testing.T) {
	f := newFixture(t, 4)

	bad := wire.Packet(wire.Header{Op: wire.OpWrite, Group: wire.GroupImage, Seq: 2}, nil)
	pkt := append(echoRequest(t, 1, "a"), bad...)
	pkt = append(pkt, echoRequest(t, 3, "c")...)

	err := f.process(t, pkt)
	assert.True(t, errors.Is(err, ErrNotSupported))

	sent := f.backend.Sent()
	require.Len(t, sent, 2)

	hdr, body := splitResponse(t, sent[0])
	assert.Equal(t, uint8(1), hdr.Seq)
	assert.Equal(t, "a", body["r"])

	hdr, errBody := errorStatus(t, sent[1])
	assert.Equal(t, uint8(2), hdr.Seq)
	assert.Equal(t, wire.GroupImage, hdr.Group)
	assert.Equal(t, wire.StatusNotSupported, errBody.RC)
	assert.Equal(t, 0, f.pool.Outstanding())
}

func TestProcessDispatchErrors(t *testing.T) {
	tests := []struct {
		name    string
		hdr     wire.Header
		wantErr error
		status  wire.Status
	}{
		{"unknown group", wire.Header{Op: wire.OpRead, Group: wire.GroupStat}, ErrNotSupported, wire.StatusNotSupported},
		{"unknown id", wire.Header{Op: wire.OpRead, Group: wire.GroupOS, ID: 99}, ErrNotSupported, wire.StatusNotSupported},
		{"missing read func", wire.Header{Op: wire.OpRead, Group: wire.GroupOS, ID: 0}, ErrNotSupported, wire.StatusNotSupported},
		{"missing write func", wire.Header{Op: wire.OpWrite, Group: wire.GroupOS, ID: 6}, ErrNotSupported, wire.StatusNotSupported},
		{"response op", wire.Header{Op: wire.OpReadRsp, Group: wire.GroupOS, ID: 6}, ErrNotSupported, wire.StatusNotSupported},
		{"unknown op", wire.Header{Op: wire.Op(5), Group: wire.GroupOS, ID: 6}, ErrInvalid, wire.StatusInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 4)
			tt.hdr.Seq = 77

			err := f.process(t, wire.Packet(tt.hdr, nil))
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

			sent := f.backend.Sent()
			require.Len(t, sent, 1)
			hdr, body := errorStatus(t, sent[0])
			assert.Equal(t, tt.status, body.RC)
			assert.Equal(t, uint8(77), hdr.Seq)
			assert.Equal(t, tt.hdr.Op.Response(), hdr.Op)
			assert.Equal(t, 0, f.pool.Outstanding())
		})
	}
}

func TestErrorResponseReason(t *testing.T) {
	register := func(t *testing.T, f *fixture) {
		require.NoError(t, f.reg.Register(&mgmt.Group{
			ID: wire.GroupPerUser,
			Handlers: map[uint8]mgmt.Handler{
				1: {Write: func(context.Context, *mgmt.Streamer) error {
					return mgmt.NewError(wire.StatusInvalid, "bad arg")
				}},
				2: {Write: func(context.Context, *mgmt.Streamer) error {
					return fmt.Errorf("disk on fire")
				}},
			},
		}))
	}

	t.Run("verbose", func(t *testing.T) {
		f := newFixture(t, 4, WithVerboseErrors(true))
		register(t, f)

		err := f.process(t, wire.Packet(wire.Header{Op: wire.OpWrite, Group: wire.GroupPerUser, ID: 1}, nil))
		require.Error(t, err)

		sent := f.backend.Sent()
		require.Len(t, sent, 1)
		m, derr := wire.DecodeMap(sent[0][wire.HeaderSize:])
		require.NoError(t, derr)
		assert.Len(t, m, 2)
		assert.EqualValues(t, wire.StatusInvalid, m["rc"])
		assert.Equal(t, "bad arg", m["rsn"])
	})

	t.Run("plain error is unknown", func(t *testing.T) {
		f := newFixture(t, 4, WithVerboseErrors(true))
		register(t, f)

		require.Error(t, f.process(t, wire.Packet(wire.Header{Op: wire.OpWrite, Group: wire.GroupPerUser, ID: 2}, nil)))
		_, body := errorStatus(t, f.backend.Sent()[0])
		assert.Equal(t, wire.StatusUnknown, body.RC)
		assert.Equal(t, "disk on fire", body.Reason)
	})

	t.Run("terse", func(t *testing.T) {
		f := newFixture(t, 4)
		register(t, f)

		require.Error(t, f.process(t, wire.Packet(wire.Header{Op: wire.OpWrite, Group: wire.GroupPerUser, ID: 1}, nil)))
		_, body := errorStatus(t, f.backend.Sent()[0])
		assert.Equal(t, wire.StatusInvalid, body.RC)
		assert.Empty(t, body.Reason)
	})
}

func TestProcessResponseTooLarge(t *testing.T) {
	t.Run("entry limit", func(t *testing.T) {
		f := newFixture(t, 4, WithMaxEntries(1))
		req := wire.Packet(wire.Header{Op: wire.OpRead, Group: wire.GroupOS, ID: 6}, nil)

		err := f.process(t, req)
		assert.True(t, errors.Is(err, ErrMsgSize))

		_, body := errorStatus(t, f.backend.Sent()[0])
		assert.Equal(t, wire.StatusMsgSize, body.RC)
		assert.Equal(t, 0, f.pool.Outstanding())
	})

	t.Run("handler ignores overflow", func(t *testing.T) {
		f := newFixture(t, 4)
		require.NoError(t, f.reg.Register(&mgmt.Group{
			ID: wire.GroupPerUser,
			Handlers: map[uint8]mgmt.Handler{
				0: {Read: func(_ context.Context, s *mgmt.Streamer) error {
					_ = s.Encode("blob", strings.Repeat("x", 300))
					return nil
				}},
			},
		}))

		err := f.process(t, wire.Packet(wire.Header{Op: wire.OpRead, Group: wire.GroupPerUser}, nil))
		assert.True(t, errors.Is(err, ErrMsgSize))
		_, body := errorStatus(t, f.backend.Sent()[0])
		assert.Equal(t, wire.StatusMsgSize, body.RC)
	})
}

func TestProcessLargestResponse(t *testing.T) {
	register := func(t *testing.T, f *fixture, n int) {
		require.NoError(t, f.reg.Register(&mgmt.Group{
			ID: wire.GroupPerUser,
			Handlers: map[uint8]mgmt.Handler{
				0: {Read: func(_ context.Context, s *mgmt.Streamer) error {
					return s.Encode("b", strings.Repeat("x", n))
				}},
			},
		}))
	}
	req := wire.Packet(wire.Header{Op: wire.OpRead, Group: wire.GroupPerUser}, nil)

	t.Run("fills the length field", func(t *testing.T) {
		f := newSizedFixture(t, 2, wire.MaxUnitSize)
		// bf 61 'b' 79 <len16> ... ff
		register(t, f, wire.MaxPayloadLen-7)

		require.NoError(t, f.process(t, req))
		sent := f.backend.Sent()
		require.Len(t, sent, 1)
		hdr, err := wire.ReadHeader(sent[0])
		require.NoError(t, err)
		assert.Equal(t, uint16(wire.MaxPayloadLen), hdr.Len)
		assert.Equal(t, len(sent[0])-wire.HeaderSize, int(hdr.Len))
		assert.Equal(t, 0, f.pool.Outstanding())
	})

	t.Run("past the length field", func(t *testing.T) {
		f := newSizedFixture(t, 2, wire.MaxUnitSize)
		register(t, f, 70000)

		err := f.process(t, req)
		assert.True(t, errors.Is(err, ErrMsgSize), "got %v", err)
		sent := f.backend.Sent()
		require.Len(t, sent, 1)
		hdr, body := errorStatus(t, sent[0])
		assert.Equal(t, wire.StatusMsgSize, body.RC)
		assert.Equal(t, len(sent[0])-wire.HeaderSize, int(hdr.Len))
		assert.Equal(t, 0, f.pool.Outstanding())
	})
}

func TestProcessEncodeFailureIsNotMsgSize(t *testing.T) {
	tests := []struct {
		name   string
		handle mgmt.HandlerFunc
	}{
		{"returned", func(_ context.Context, s *mgmt.Streamer) error {
			return s.Encode("c", make(chan int))
		}},
		{"ignored", func(_ context.Context, s *mgmt.Streamer) error {
			_ = s.Encode("c", make(chan int))
			return nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 4)
			require.NoError(t, f.reg.Register(&mgmt.Group{
				ID:       wire.GroupPerUser,
				Handlers: map[uint8]mgmt.Handler{0: {Read: tt.handle}},
			}))

			err := f.process(t, wire.Packet(wire.Header{Op: wire.OpRead, Group: wire.GroupPerUser}, nil))
			require.Error(t, err)
			assert.False(t, errors.Is(err, ErrMsgSize), "got %v", err)

			_, body := errorStatus(t, f.backend.Sent()[0])
			assert.Equal(t, wire.StatusUnknown, body.RC)
			assert.Equal(t, 0, f.pool.Outstanding())
		})
	}
}

func TestProcessResponseAllocFailure(t *testing.T) {
	f := newFixture(t, 1)

	err := f.process(t, echoRequest(t, 5, "x"))
	assert.True(t, errors.Is(err, ErrNoMem))

	// The error response reuses the request buffer.
	sent := f.backend.Sent()
	require.Len(t, sent, 1)
	hdr, body := errorStatus(t, sent[0])
	assert.Equal(t, wire.StatusNoMem, body.RC)
	assert.Equal(t, uint8(5), hdr.Seq)
	assert.Equal(t, 0, f.pool.Outstanding())
}

func TestProcessSendFailure(t *testing.T) {
	f := newFixture(t, 4)
	f.backend.ExpectedCalls = nil
	f.backend.On("Send", mock.Anything).Return(errors.New("link down"))

	err := f.process(t, echoRequest(t, 1, "x"))
	assert.True(t, errors.Is(err, ErrTransport))

	// The response and then the error response were both attempted.
	assert.Len(t, f.backend.Sent(), 2)
	assert.Equal(t, 0, f.pool.Outstanding())
}

func TestCallbacks(t *testing.T) {
	type seen struct {
		evt mgmt.Event
		arg mgmt.CmdArg
	}

	newCallbacks := func(result mgmt.CallbackResult) (*mgmt.Callbacks, *[]seen) {
		var mu sync.Mutex
		events := &[]seen{}
		cbs := mgmt.NewCallbacks()
		cbs.Register(&mgmt.Callback{
			Events: mgmt.EventAll,
			Fn: func(evt mgmt.Event, arg mgmt.CmdArg) mgmt.CallbackResult {
				mu.Lock()
				defer mu.Unlock()
				*events = append(*events, seen{evt, arg})
				if evt == mgmt.EventCmdRecv {
					return result
				}
				return mgmt.CallbackOK
			},
		})
		return cbs, events
	}

	t.Run("ok", func(t *testing.T) {
		cbs, events := newCallbacks(mgmt.CallbackOK)
		f := newFixture(t, 4, WithCallbacks(cbs))

		require.NoError(t, f.process(t, echoRequest(t, 1, "x")))
		require.Len(t, *events, 2)
		assert.Equal(t, mgmt.EventCmdRecv, (*events)[0].evt)
		assert.Equal(t, mgmt.EventCmdDone, (*events)[1].evt)
		assert.Equal(t, wire.StatusOK, (*events)[1].arg.Err)
		assert.Equal(t, wire.OpWrite, (*events)[1].arg.Op)
	})

	t.Run("veto", func(t *testing.T) {
		cbs, events := newCallbacks(mgmt.CallbackErrorRC(wire.StatusAccessDenied))
		f := newFixture(t, 4, WithCallbacks(cbs))

		require.Error(t, f.process(t, echoRequest(t, 1, "x")))
		_, body := errorStatus(t, f.backend.Sent()[0])
		assert.Equal(t, wire.StatusAccessDenied, body.RC)

		require.Len(t, *events, 2)
		assert.Equal(t, mgmt.EventCmdDone, (*events)[1].evt)
		assert.Equal(t, wire.StatusAccessDenied, (*events)[1].arg.Err)
	})

	t.Run("group error", func(t *testing.T) {
		cbs, _ := newCallbacks(mgmt.CallbackErrorGroup(wire.GroupOS, 4))
		f := newFixture(t, 4, WithCallbacks(cbs))

		require.NoError(t, f.process(t, echoRequest(t, 1, "x")))
		_, body := splitResponse(t, f.backend.Sent()[0])
		errEntry, ok := body["err"].(map[string]any)
		require.True(t, ok, "err entry: %v", body)
		assert.EqualValues(t, 0, errEntry["group"])
		assert.EqualValues(t, 4, errEntry["rc"])
		assert.NotContains(t, body, "r", "handler is skipped")
	})

	t.Run("no done event without handler", func(t *testing.T) {
		cbs, events := newCallbacks(mgmt.CallbackOK)
		f := newFixture(t, 4, WithCallbacks(cbs))

		require.Error(t, f.process(t, wire.Packet(wire.Header{Op: wire.OpRead, Group: wire.GroupStat}, nil)))
		assert.Empty(t, *events)
	})
}

type recordingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (r *recordingLogger) Log(e log.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestProtocolLogging(t *testing.T) {
	plog := &recordingLogger{}
	f := newFixture(t, 4, WithProtocolLogger(plog), WithVerboseErrors(true))

	pkt := append(echoRequest(t, 1, "x"), wire.Packet(wire.Header{Op: wire.OpRead, Group: wire.GroupStat, Seq: 2}, nil)...)
	require.Error(t, f.process(t, pkt))

	require.Len(t, plog.events, 4)
	dirs := []log.Direction{log.DirectionIn, log.DirectionOut, log.DirectionIn, log.DirectionOut}
	for i, e := range plog.events {
		assert.Equal(t, "test", e.TransportID)
		assert.Equal(t, log.LayerSMP, e.Layer)
		assert.Equal(t, dirs[i], e.Direction)
		require.NotNil(t, e.Message)
	}

	last := plog.events[3]
	assert.Equal(t, log.CategoryError, last.Category)
	require.NotNil(t, last.Message.Status)
	assert.Equal(t, wire.StatusNotSupported, *last.Message.Status)
	assert.NotEmpty(t, last.Message.Reason)
	assert.NotNil(t, last.Message.ProcessingTime)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	f := newFixture(t, 4, WithMetrics(metrics))

	require.NoError(t, f.process(t, echoRequest(t, 1, "x")))
	require.Error(t, f.process(t, wire.Packet(wire.Header{Op: wire.OpRead, Group: wire.GroupStat}, nil)))

	families, err := reg.Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[mf.GetName()] = m.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, float64(2), values["smp_packets_total"])
	assert.Equal(t, float64(2), values["smp_requests_total"])
	assert.Equal(t, float64(2), values["smp_responses_total"])
	assert.Equal(t, float64(0), values["smp_buffers_outstanding"])
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordPacket()
	m.RecordRequest(wire.Header{})
	m.RecordResponse(wire.StatusOK, 0)
}
