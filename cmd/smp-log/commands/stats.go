package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/smp-protocol/smp-go/pkg/log"
	"github.com/smp-protocol/smp-go/pkg/wire"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Transports        map[string]*TransportStats
	RequestsByGroup   map[wire.Group]int
	ResponsesByStatus map[wire.Status]int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// TransportStats holds statistics for a single transport or connection.
type TransportStats struct {
	Transport  string
	RemoteAddr string
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	BytesIn    int
	BytesOut   int
}

func newStats() *Stats {
	return &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Transports:        make(map[string]*TransportStats),
		RequestsByGroup:   make(map[wire.Group]int),
		ResponsesByStatus: make(map[wire.Status]int),
	}
}

// add folds one event into the statistics.
func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	ts, ok := s.Transports[event.TransportID]
	if !ok {
		ts = &TransportStats{
			Transport: event.Transport,
			FirstSeen: event.Timestamp,
			LastSeen:  event.Timestamp,
		}
		s.Transports[event.TransportID] = ts
	}
	ts.Events++
	if event.Timestamp.After(ts.LastSeen) {
		ts.LastSeen = event.Timestamp
	}
	if event.RemoteAddr != "" && ts.RemoteAddr == "" {
		ts.RemoteAddr = event.RemoteAddr
	}
	if event.Frame != nil {
		if event.Direction == log.DirectionIn {
			ts.BytesIn += event.Frame.Size
		} else {
			ts.BytesOut += event.Frame.Size
		}
	}

	if m := event.Message; m != nil {
		if m.Op.IsRequest() {
			s.RequestsByGroup[m.Group]++
		} else {
			status := wire.StatusOK
			if m.Status != nil {
				status = *m.Status
			}
			s.ResponsesByStatus[status]++
		}
	}

	if event.Error != nil {
		s.Errors++
	}
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := newStats()
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== SMP Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerSMP, log.LayerMgmt} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.RequestsByGroup) > 0 {
		fmt.Fprintln(w, "Requests by Group:")
		groups := make([]wire.Group, 0, len(stats.RequestsByGroup))
		for g := range stats.RequestsByGroup {
			groups = append(groups, g)
		}
		sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })
		for _, g := range groups {
			fmt.Fprintf(w, "  %-12s %d\n", fmt.Sprintf("%s(%d):", g, uint16(g)), stats.RequestsByGroup[g])
		}
		fmt.Fprintln(w)
	}

	if len(stats.ResponsesByStatus) > 0 {
		fmt.Fprintln(w, "Responses by Status:")
		statuses := make([]wire.Status, 0, len(stats.ResponsesByStatus))
		for s := range stats.ResponsesByStatus {
			statuses = append(statuses, s)
		}
		sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
		for _, s := range statuses {
			fmt.Fprintf(w, "  %-12s %d\n", s.String()+":", stats.ResponsesByStatus[s])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Transports: %d\n", len(stats.Transports))
	if len(stats.Transports) > 0 {
		type transportInfo struct {
			id    string
			stats *TransportStats
		}
		list := make([]transportInfo, 0, len(stats.Transports))
		for id, ts := range stats.Transports {
			list = append(list, transportInfo{id, ts})
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].stats.FirstSeen.Equal(list[j].stats.FirstSeen) {
				return list[i].id < list[j].id
			}
			return list[i].stats.FirstSeen.Before(list[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, t := range list {
			duration := t.stats.LastSeen.Sub(t.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s:%s] %d events, duration %s\n",
				t.stats.Transport, shortenID(t.id), t.stats.Events, duration)
			if t.stats.RemoteAddr != "" {
				fmt.Fprintf(w, "           Peer: %s\n", t.stats.RemoteAddr)
			}
			if t.stats.BytesIn > 0 || t.stats.BytesOut > 0 {
				fmt.Fprintf(w, "           Bytes: %d in, %d out\n", t.stats.BytesIn, t.stats.BytesOut)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
