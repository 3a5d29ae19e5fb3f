package smp

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrSchedulerRunning is returned by Start on a running scheduler.
var ErrSchedulerRunning = errors.New("smp: scheduler already running")

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets the operational logger.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// Scheduler owns the single worker goroutine that drains every transport.
// Schedule is a non-blocking signal; a transport already pending is not
// queued twice.
type Scheduler struct {
	engine *Engine
	logger *slog.Logger

	mu         sync.Mutex
	pending    []*Transport
	transports map[*Transport]struct{}
	signal     chan struct{}

	cancelFn context.CancelFunc
	done     chan struct{}
}

// NewScheduler creates a scheduler feeding packets to engine.
func NewScheduler(engine *Engine, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		engine:     engine,
		logger:     slog.Default(),
		transports: make(map[*Transport]struct{}),
		signal:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the engine packets are fed to.
func (s *Scheduler) Engine() *Engine {
	return s.engine
}

// Start launches the worker. It stops when ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return ErrSchedulerRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFn = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
	return nil
}

// Stop stops the worker, waits for the packet in progress to finish and
// frees every packet still queued on any transport.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancelFn, s.done
	s.cancelFn, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	s.mu.Lock()
	for _, t := range s.pending {
		t.queued = false
	}
	s.pending = nil
	transports := make([]*Transport, 0, len(s.transports))
	for t := range s.transports {
		transports = append(transports, t)
	}
	s.mu.Unlock()

	for _, t := range transports {
		for buf := t.pop(); buf != nil; buf = t.pop() {
			t.freeBuf(buf)
		}
	}
	s.logger.Debug("scheduler stopped")
}

// Schedule marks t as having work and wakes the worker.
func (s *Scheduler) Schedule(t *Transport) {
	s.mu.Lock()
	if !t.queued {
		t.queued = true
		s.pending = append(s.pending, t)
	}
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.signal:
		}
		for t := s.next(); t != nil; t = s.next() {
			t.drain(ctx, s.engine)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (s *Scheduler) next() *Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	t := s.pending[0]
	s.pending[0] = nil
	s.pending = s.pending[1:]
	t.queued = false
	return t
}

// cancel removes t from the pending list.
func (s *Scheduler) cancel(t *Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !t.queued {
		return
	}
	for i, p := range s.pending {
		if p == t {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	t.queued = false
}

func (s *Scheduler) register(t *Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transports[t] = struct{}{}
}

func (s *Scheduler) unregister(t *Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transports, t)
}
