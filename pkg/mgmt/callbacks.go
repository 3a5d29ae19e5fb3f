package mgmt

import (
	"sync"

	"github.com/smp-protocol/smp-go/pkg/wire"
)

// Event identifies a point in request processing. Events are bit flags so
// a Callback can subscribe to several.
type Event uint8

const (
	// EventCmdRecv fires after the handler is found and before it runs.
	// A callback may veto the command.
	EventCmdRecv Event = 1 << iota

	// EventCmdDone fires after each request, with its final status.
	EventCmdDone

	// EventAll subscribes to every event.
	EventAll = EventCmdRecv | EventCmdDone
)

// String returns the event name.
func (e Event) String() string {
	switch e {
	case EventCmdRecv:
		return "CMD_RECV"
	case EventCmdDone:
		return "CMD_DONE"
	default:
		return "UNKNOWN"
	}
}

// CmdArg describes the command an event refers to.
type CmdArg struct {
	Group wire.Group
	ID    uint8
	Op    wire.Op
	Err   wire.Status
}

type resultKind uint8

const (
	resultOK resultKind = iota
	resultErrorRC
	resultErrorGroup
)

// CallbackResult is a callback's verdict on an EventCmdRecv.
type CallbackResult struct {
	kind  resultKind
	RC    wire.Status
	Group wire.Group
}

// CallbackOK lets processing continue.
var CallbackOK = CallbackResult{}

// CallbackErrorRC fails the request with rc; the peer gets an error response.
func CallbackErrorRC(rc wire.Status) CallbackResult {
	return CallbackResult{kind: resultErrorRC, RC: rc}
}

// CallbackErrorGroup skips the handler but answers with a success response
// carrying a group error entry.
func CallbackErrorGroup(group wire.Group, rc uint16) CallbackResult {
	return CallbackResult{kind: resultErrorGroup, RC: wire.Status(rc), Group: group}
}

// IsOK reports whether processing should continue.
func (r CallbackResult) IsOK() bool { return r.kind == resultOK }

// IsErrorRC reports whether the request should fail with r.RC.
func (r CallbackResult) IsErrorRC() bool { return r.kind == resultErrorRC }

// IsErrorGroup reports whether a group error should be encoded.
func (r CallbackResult) IsErrorGroup() bool { return r.kind == resultErrorGroup }

// CallbackFunc receives management events.
type CallbackFunc func(evt Event, arg CmdArg) CallbackResult

// Callback subscribes Fn to the events in Events.
type Callback struct {
	Events Event
	Fn     CallbackFunc
}

// Callbacks is the list of registered callbacks. A nil *Callbacks has no
// subscribers.
type Callbacks struct {
	mu   sync.RWMutex
	list []*Callback
}

// NewCallbacks creates an empty callback list.
func NewCallbacks() *Callbacks {
	return &Callbacks{}
}

// Register adds cb.
func (c *Callbacks) Register(cb *Callback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = append(c.list, cb)
}

// Unregister removes cb.
func (c *Callbacks) Unregister(cb *Callback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.list {
		if existing == cb {
			c.list = append(c.list[:i], c.list[i+1:]...)
			return
		}
	}
}

// Notify calls every callback subscribed to evt. All subscribers run; the
// first non-OK result is returned.
func (c *Callbacks) Notify(evt Event, arg CmdArg) CallbackResult {
	if c == nil {
		return CallbackOK
	}

	c.mu.RLock()
	list := make([]*Callback, len(c.list))
	copy(list, c.list)
	c.mu.RUnlock()

	result := CallbackOK
	for _, cb := range list {
		if cb.Events&evt == 0 {
			continue
		}
		r := cb.Fn(evt, arg)
		if result.IsOK() && !r.IsOK() {
			result = r
		}
	}
	return result
}
