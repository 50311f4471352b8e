package eventrpc

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/gluster/changelog/internal/bitset"
)

// ConnState is the per-connection lifecycle described in spec.md §4.8.
type ConnState int

const (
	StatePending ConnState = iota
	StateWait
	StateActive
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateWait:
		return "WAIT"
	case StateActive:
		return "ACTIVE"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Callback is invoked once per sub-event delivered to a registered
// consumer (spec.md §4.8: "invokes the user-supplied callback once per
// contained sub-event").
type Callback func(ev *Event)

// Connection is one ReverseConnection on the consumer side: a filter
// bitmask, delivery discipline, and reorder buffer (spec.md §3
// ReverseConnection / §4.8).
type Connection struct {
	mu       sync.Mutex
	id       string
	state    ConnState
	refs     int
	filter   bitset.TinyBitset
	reorder  *reorderBuffer
	callback Callback
	log      *zap.SugaredLogger
}

func (c *Connection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// accepts reports whether the connection's filter selects et (spec.md
// §4.6: "Per-client event filtering is performed on the server side...
// events whose type is not selected are skipped"; §4.8 "per-event filter
// re-check as a safety net").
func (c *Connection) accepts(et EventType) bool {
	if c.filter.Count() == 0 {
		return true
	}
	var found bool
	c.filter.Traverse(func(v uint32) bool {
		if EventType(v) == et {
			found = true
			return false
		}
		return true
	})
	return found
}

// ref/unref implement the disconnect-then-drain-then-free lifecycle: the
// connection object stays allocated until every holder (the delivery loop,
// inflight callbacks) has released it (spec.md §4.8 state machine).
func (c *Connection) ref() {
	c.mu.Lock()
	c.refs++
	c.mu.Unlock()
}

func (c *Connection) unref() {
	c.mu.Lock()
	c.refs--
	done := c.refs <= 0 && c.state == StateDisconnected
	c.mu.Unlock()
	if done {
		c.log.Debugw("connection freed", "client", c.id)
	}
}

// Endpoint is the reverse-RPC server bound to the per-brick UNIX socket
// the producer dials (spec.md §4.8 C8).
type Endpoint struct {
	UnimplementedEventServiceServer

	mu    sync.Mutex
	conns map[string]*Connection
	log   *zap.SugaredLogger
}

func NewEndpoint(log *zap.SugaredLogger) *Endpoint {
	return &Endpoint{conns: make(map[string]*Connection), log: log}
}

// Register installs a connection for clientID with the filter it is given
// and moves it from WAIT straight to ACTIVE (spec.md §4.7 register()); no
// ProbeFilterService.InstallFilter round trip precedes it.
func (e *Endpoint) Register(clientID string, filter bitset.TinyBitset, ordered bool, startSeq int64, cb Callback) *Connection {
	e.mu.Lock()
	defer e.mu.Unlock()

	c := &Connection{
		id:       clientID,
		state:    StateWait,
		filter:   filter,
		reorder:  newReorderBuffer(ordered, startSeq),
		callback: cb,
		log:      e.log,
		refs:     1,
	}
	c.state = StateActive
	e.conns[clientID] = c
	return c
}

// Disconnect marks a connection DISCONNECTED and releases the registry's
// reference; the object is freed once every other holder also unrefs.
func (e *Endpoint) Disconnect(clientID string) {
	e.mu.Lock()
	c, ok := e.conns[clientID]
	if ok {
		delete(e.conns, clientID)
	}
	e.mu.Unlock()
	if !ok {
		return
	}
	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()
	c.unref()
}

// Deliver implements EventServiceServer: it decodes the batch, pushes each
// record into every registered connection's reorder buffer, and invokes
// callbacks for whatever becomes deliverable (spec.md §4.8 EVENT
// procedure).
func (e *Endpoint) Deliver(ctx context.Context, in *EventEnvelope) (*EventAck, error) {
	e.mu.Lock()
	conns := make([]*Connection, 0, len(e.conns))
	for _, c := range e.conns {
		conns = append(conns, c)
	}
	e.mu.Unlock()

	var lastAck int64
	for _, c := range conns {
		c.ref()
		ack := e.deliverToConn(c, in)
		c.unref()
		lastAck = ack
	}
	return &EventAck{NextExpectedSeq: lastAck}, nil
}

func (e *Endpoint) deliverToConn(c *Connection, in *EventEnvelope) int64 {
	c.mu.Lock()
	if c.state != StateActive {
		next := c.reorder.nextExpected
		c.mu.Unlock()
		return next
	}
	for i, rec := range in.Records {
		c.reorder.push(in.SeqStart+int64(i), rec)
	}
	deliverable := c.reorder.drain()
	next := c.reorder.nextExpected
	cb := c.callback
	filterFn := c.accepts
	c.mu.Unlock()

	for _, rec := range deliverable {
		ev, err := DecodeEvent(rec)
		if err != nil {
			e.log.Warnw("dropping malformed event record", "error", err)
			continue
		}
		if !filterFn(ev.Type) {
			continue
		}
		if cb != nil {
			cb(ev)
		}
	}
	return next
}
