package mgmt

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/smp-protocol/smp-go/pkg/wire"
)

// HandlerFunc runs one management command.
type HandlerFunc func(ctx context.Context, s *Streamer) error

// Handler is the pair of functions serving one command ID.
// Either may be nil when the command does not support that operation.
type Handler struct {
	Read  HandlerFunc
	Write HandlerFunc
}

// Func returns the function serving op, or nil.
func (h *Handler) Func(op wire.Op) HandlerFunc {
	switch op {
	case wire.OpRead:
		return h.Read
	case wire.OpWrite:
		return h.Write
	default:
		return nil
	}
}

// Group is a set of command handlers sharing a group ID.
type Group struct {
	ID       wire.Group
	Name     string
	Handlers map[uint8]Handler
}

// Registry maps (group, command ID) to handlers.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	groups map[wire.Group]*Group
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{groups: make(map[wire.Group]*Group)}
}

// Register adds a group. Registering the same group ID twice fails.
func (r *Registry) Register(g *Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.groups[g.ID]; exists {
		return fmt.Errorf("%w: %d", ErrGroupExists, g.ID)
	}
	r.groups[g.ID] = g
	return nil
}

// Unregister removes a group. Unknown IDs are ignored.
func (r *Registry) Unregister(id wire.Group) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.groups, id)
}

// Lookup returns the handler for a group and command ID, or nil.
func (r *Registry) Lookup(group wire.Group, id uint8) *Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[group]
	if !ok {
		return nil
	}
	h, ok := g.Handlers[id]
	if !ok {
		return nil
	}
	return &h
}

// Groups returns the registered group IDs in ascending order.
func (r *Registry) Groups() []wire.Group {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]wire.Group, 0, len(r.groups))
	for id := range r.groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
