package commands

import (
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/smp-protocol/smp-go/pkg/log"
	"github.com/smp-protocol/smp-go/pkg/wire"
)

// readEvents returns every event in a capture file.
func readEvents(t *testing.T, path string) []log.Event {
	t.Helper()
	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer reader.Close()

	var events []log.Event
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		if err != nil {
			t.Fatalf("failed to read event: %v", err)
		}
		events = append(events, event)
	}
}

func TestFilterByTransportID(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, TransportID: "tp-1", Category: log.CategoryMessage},
		{Timestamp: ts, TransportID: "tp-2", Category: log.CategoryMessage},
		{Timestamp: ts, TransportID: "tp-1", Category: log.CategoryMessage},
	}

	path := createTestLogFile(t, events)
	outPath := filepath.Join(t.TempDir(), "filtered.smplog")

	n, err := RunFilter(path, FilterOptions{Output: outPath, TransportID: "tp-1"})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 events written, got %d", n)
	}

	for _, event := range readEvents(t, outPath) {
		if event.TransportID != "tp-1" {
			t.Errorf("expected tp-1, got %s", event.TransportID)
		}
	}
}

func TestFilterByTimeRange(t *testing.T) {
	base := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: base, Category: log.CategoryMessage},
		{Timestamp: base.Add(time.Minute), Category: log.CategoryMessage},
		{Timestamp: base.Add(2 * time.Minute), Category: log.CategoryMessage},
	}

	path := createTestLogFile(t, events)
	outPath := filepath.Join(t.TempDir(), "filtered.smplog")

	_, err := RunFilter(path, FilterOptions{
		Output:    outPath,
		TimeStart: base.Add(30 * time.Second).Format(time.RFC3339),
		TimeEnd:   base.Add(90 * time.Second).Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}

	got := readEvents(t, outPath)
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if !got[0].Timestamp.Equal(base.Add(time.Minute)) {
		t.Errorf("unexpected timestamp %s", got[0].Timestamp)
	}
}

func TestFilterByGroupAndErrors(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	bad := wire.StatusNotSupported
	events := []log.Event{
		{Timestamp: ts, Layer: log.LayerSMP, Message: &log.MessageEvent{Op: wire.OpRead, Group: wire.GroupOS}},
		{Timestamp: ts, Layer: log.LayerSMP, Message: &log.MessageEvent{Op: wire.OpReadRsp, Group: wire.GroupOS, Status: &bad}},
		{Timestamp: ts, Layer: log.LayerSMP, Message: &log.MessageEvent{Op: wire.OpRead, Group: wire.GroupImage}},
		{Timestamp: ts, Layer: log.LayerTransport, Category: log.CategoryError, Error: &log.ErrorEventData{Message: "send failed"}},
	}

	path := createTestLogFile(t, events)

	byGroup := filepath.Join(t.TempDir(), "group.smplog")
	n, err := RunFilter(path, FilterOptions{Output: byGroup, Group: "os"})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 OS events, got %d", n)
	}

	errorsOnly := filepath.Join(t.TempDir(), "errors.smplog")
	n, err = RunFilter(path, FilterOptions{Output: errorsOnly, ErrorsOnly: true})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 error events, got %d", n)
	}
}

func TestFilterCommandByLayer(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, Layer: log.LayerTransport},
		{Timestamp: ts, Layer: log.LayerSMP},
		{Timestamp: ts, Layer: log.LayerMgmt},
	}

	path := createTestLogFile(t, events)
	outPath := filepath.Join(t.TempDir(), "filtered.smplog")

	if _, err := RunFilter(path, FilterOptions{Output: outPath, Layer: "smp"}); err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}

	got := readEvents(t, outPath)
	if len(got) != 1 || got[0].Layer != log.LayerSMP {
		t.Errorf("expected one SMP event, got %+v", got)
	}
}

func TestFilterRejectsBadOptions(t *testing.T) {
	path := createTestLogFile(t, nil)
	out := filepath.Join(t.TempDir(), "out.smplog")

	tests := []FilterOptions{
		{Output: out, Layer: "wire"},
		{Output: out, Direction: "sideways"},
		{Output: out, Category: "control"},
		{Output: out, Group: "nope"},
		{Output: out, TimeStart: "yesterday"},
		{Output: out, TimeEnd: "tomorrow"},
	}
	for _, opts := range tests {
		if _, err := RunFilter(path, opts); err == nil {
			t.Errorf("expected error for %+v", opts)
		}
	}
}
