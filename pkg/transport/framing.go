package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/smp-protocol/smp-go/pkg/log"
	"github.com/smp-protocol/smp-go/pkg/wire"
)

// DefaultMaxUnitSize bounds units read by a UnitReader.
const DefaultMaxUnitSize = 4096

// Framing errors.
var (
	// ErrUnitTooLarge indicates a declared unit size above the limit.
	ErrUnitTooLarge = errors.New("smp unit too large")

	// ErrUnitTruncated indicates the stream ended inside a unit.
	ErrUnitTruncated = errors.New("smp unit truncated")

	// ErrUnitEmpty indicates an attempt to write nothing.
	ErrUnitEmpty = errors.New("smp unit is empty")
)

// Assembler is the reassembly API a Feeder drives. Both *smp.Transport and
// *smp.Reassembler implement it.
type Assembler interface {
	Collect(frag []byte) (int, error)
	Expected() (int, error)
	Complete(force bool) (int, error)
	Drop() error
	UserData() []byte
}

// Feeder splits a byte stream into SMP units and hands each one to an
// Assembler. A header split across reads is staged until it is whole, so
// chunk boundaries never matter.
type Feeder struct {
	rx         Assembler
	onStart    func(ud []byte)
	hdr        [wire.HeaderSize]byte
	staged     int
	collecting bool
}

// NewFeeder creates a feeder. onStart, if set, is called with the user-data
// region of every new message so the caller can tag it.
func NewFeeder(rx Assembler, onStart func(ud []byte)) *Feeder {
	return &Feeder{rx: rx, onStart: onStart}
}

// Feed consumes data. On error the message in progress is dropped and the
// stream can no longer be trusted.
func (f *Feeder) Feed(data []byte) error {
	for len(data) > 0 {
		if !f.collecting {
			n := copy(f.hdr[f.staged:], data)
			f.staged += n
			data = data[n:]
			if f.staged < wire.HeaderSize {
				return nil
			}
			f.staged = 0

			remaining, err := f.rx.Collect(f.hdr[:])
			if err != nil {
				return err
			}
			f.collecting = true
			if f.onStart != nil {
				f.onStart(f.rx.UserData())
			}
			if remaining == 0 {
				if err := f.complete(); err != nil {
					return err
				}
			}
			continue
		}

		expected, err := f.rx.Expected()
		if err != nil {
			f.collecting = false
			return err
		}
		n := min(expected, len(data))
		remaining, err := f.rx.Collect(data[:n])
		if err != nil {
			f.Reset()
			return err
		}
		data = data[n:]
		if remaining == 0 {
			if err := f.complete(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush forces the message in progress through, truncated. It returns the
// number of bytes that were missing, or 0 when nothing was in progress.
func (f *Feeder) Flush() (int, error) {
	f.staged = 0
	if !f.collecting {
		return 0, nil
	}
	f.collecting = false
	return f.rx.Complete(true)
}

// Reset discards staged header bytes and the message in progress.
func (f *Feeder) Reset() {
	f.staged = 0
	if f.collecting {
		f.collecting = false
		_ = f.rx.Drop()
	}
}

func (f *Feeder) complete() error {
	f.collecting = false
	_, err := f.rx.Complete(false)
	return err
}

// UnitReader reads whole SMP units from a byte stream.
type UnitReader struct {
	r       io.Reader
	maxSize int
	hdr     [wire.HeaderSize]byte

	// Logging support (optional)
	logger log.Logger
	connID string
}

// NewUnitReader creates a reader rejecting units larger than maxSize bytes,
// header included. maxSize <= 0 selects DefaultMaxUnitSize.
func NewUnitReader(r io.Reader, maxSize int) *UnitReader {
	if maxSize <= 0 {
		maxSize = DefaultMaxUnitSize
	}
	return &UnitReader{r: r, maxSize: maxSize}
}

// SetLogger configures logging for this reader.
// Pass nil to disable logging.
func (ur *UnitReader) SetLogger(logger log.Logger, connID string) {
	ur.logger = logger
	ur.connID = connID
}

// ReadUnit reads one header and its payload, returned together.
func (ur *UnitReader) ReadUnit() ([]byte, error) {
	if _, err := io.ReadFull(ur.r, ur.hdr[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrUnitTruncated
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	length, _ := wire.PeekLength(ur.hdr[:])
	total := wire.HeaderSize + int(length)
	if total > ur.maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrUnitTooLarge, total, ur.maxSize)
	}

	unit := make([]byte, total)
	copy(unit, ur.hdr[:])
	if _, err := io.ReadFull(ur.r, unit[wire.HeaderSize:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
			return nil, ErrUnitTruncated
		}
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	if ur.logger != nil {
		ur.logger.Log(frameEvent(ur.connID, "tcp", "", log.DirectionIn, unit))
	}
	return unit, nil
}

// UnitWriter writes SMP units to a byte stream.
// Thread-safe: can be called from multiple goroutines.
type UnitWriter struct {
	w  io.Writer
	mu sync.Mutex

	// Logging support (optional)
	logger log.Logger
	connID string
}

// NewUnitWriter creates a unit writer.
func NewUnitWriter(w io.Writer) *UnitWriter {
	return &UnitWriter{w: w}
}

// SetLogger configures logging for this writer.
// Pass nil to disable logging.
func (uw *UnitWriter) SetLogger(logger log.Logger, connID string) {
	uw.logger = logger
	uw.connID = connID
}

// WriteUnit writes data, which holds one or more complete units.
func (uw *UnitWriter) WriteUnit(data []byte) error {
	if len(data) == 0 {
		return ErrUnitEmpty
	}

	uw.mu.Lock()
	defer uw.mu.Unlock()

	if _, err := uw.w.Write(data); err != nil {
		return fmt.Errorf("failed to write unit: %w", err)
	}

	if uw.logger != nil {
		uw.logger.Log(frameEvent(uw.connID, "tcp", "", log.DirectionOut, data))
	}
	return nil
}

// frameEvent creates a transport-layer log event for raw bytes.
func frameEvent(id, kind, remote string, direction log.Direction, data []byte) log.Event {
	return log.Event{
		Timestamp:   time.Now(),
		TransportID: id,
		Direction:   direction,
		Layer:       log.LayerTransport,
		Category:    log.CategoryMessage,
		Transport:   kind,
		RemoteAddr:  remote,
		Frame:       log.NewFrameEvent(data),
	}
}

// stateEvent creates a transport-layer state change event.
func stateEvent(id, kind, remote string, entity log.StateEntity, oldState, newState, reason string) log.Event {
	return log.Event{
		Timestamp:   time.Now(),
		TransportID: id,
		Layer:       log.LayerTransport,
		Category:    log.CategoryState,
		Transport:   kind,
		RemoteAddr:  remote,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	}
}
