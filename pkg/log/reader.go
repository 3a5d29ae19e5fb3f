package log

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/smp-protocol/smp-go/pkg/wire"
)

// Filter selects events. Zero-valued fields match everything.
type Filter struct {
	TransportID string
	Direction   *Direction
	Layer       *Layer
	Category    *Category

	// Group matches message events for one management group.
	Group *wire.Group

	// ErrorsOnly keeps error events and error responses.
	ErrorsOnly bool

	TimeStart *time.Time
	TimeEnd   *time.Time
}

// Matches reports whether the event passes the filter.
func (f *Filter) Matches(event Event) bool {
	if f.TransportID != "" && event.TransportID != f.TransportID {
		return false
	}
	if f.Direction != nil && event.Direction != *f.Direction {
		return false
	}
	if f.Layer != nil && event.Layer != *f.Layer {
		return false
	}
	if f.Category != nil && event.Category != *f.Category {
		return false
	}
	if f.Group != nil && (event.Message == nil || event.Message.Group != *f.Group) {
		return false
	}
	if f.ErrorsOnly && event.Error == nil && (event.Message == nil || event.Message.Status == nil) {
		return false
	}
	if f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	return true
}

// Reader streams events from a capture file.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader opens a capture file and reads every event.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens a capture file and reads events matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{
		file:    f,
		decoder: NewDecoder(f),
		filter:  filter,
	}, nil
}

// Next returns the next matching event, or io.EOF at the end of the file.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.decoder.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		if r.filter.Matches(event) {
			return event, nil
		}
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
