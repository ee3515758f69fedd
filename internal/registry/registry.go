// internal/registry/registry.go
package registry

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Meta is the identity a connection acquires once it issues a create or
// join command. Fields are empty until then.
type Meta struct {
	UserID  string
	MatchID string
}

// Conn is one registered websocket connection. The registry owns the
// identity association; the transport itself belongs to the network layer,
// which drains Out() through a write pump and calls Remove on disconnect.
type Conn struct {
	ID uuid.UUID

	mu     sync.Mutex
	meta   Meta
	out    chan []byte
	closed bool
}

// Meta returns a copy of the connection's current identity.
func (c *Conn) Meta() Meta {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta
}

// Out is the serialized-message queue drained by the write pump. It is
// closed exactly once, when the connection is removed from the registry.
func (c *Conn) Out() <-chan []byte {
	return c.out
}

// Send pushes pre-serialized bytes onto the out queue without blocking.
// It reports false when the connection is no longer writable (removed, or
// the queue is full); callers skip such connections instead of stalling.
func (c *Conn) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.out <- data:
		return true
	default:
		return false
	}
}

// outQueueSize bounds how far a slow reader may fall behind before events
// are dropped for it.
const outQueueSize = 16

// Registry tracks every live connection keyed by an opaque id assigned at
// accept time. One instance lives for the whole server; handlers receive
// it explicitly.
type Registry struct {
	mu    sync.Mutex
	conns map[uuid.UUID]*Conn
	log   *logrus.Logger
}

// New returns an empty registry.
func New(log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.New()
	}
	return &Registry{
		conns: make(map[uuid.UUID]*Conn),
		log:   log,
	}
}

// Register adds a new connection with empty identity and returns it.
func (r *Registry) Register() *Conn {
	conn := &Conn{
		ID:  uuid.New(),
		out: make(chan []byte, outQueueSize),
	}
	r.mu.Lock()
	r.conns[conn.ID] = conn
	r.mu.Unlock()
	r.log.Debugf("registry: connection %s registered", conn.ID)
	return conn
}

// SetMeta merges the non-empty fields of partial into the connection's
// identity. Unknown connections are a no-op.
func (r *Registry) SetMeta(id uuid.UUID, partial Meta) {
	r.mu.Lock()
	conn, ok := r.conns[id]
	r.mu.Unlock()
	if !ok {
		return
	}
	conn.mu.Lock()
	if partial.UserID != "" {
		conn.meta.UserID = partial.UserID
	}
	if partial.MatchID != "" {
		conn.meta.MatchID = partial.MatchID
	}
	conn.mu.Unlock()
}

// Remove deletes the connection and closes its out queue. Idempotent;
// removal is driven only by the network layer's disconnect notification.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	conn, ok := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()
	if !ok {
		return
	}
	conn.mu.Lock()
	if !conn.closed {
		conn.closed = true
		close(conn.out)
	}
	conn.mu.Unlock()
	r.log.Debugf("registry: connection %s removed", id)
}

// Get returns the connection for id, if registered.
func (r *Registry) Get(id uuid.UUID) (*Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// ListByMatch returns a snapshot of every connection whose meta associates
// it with matchID. Order is unspecified.
func (r *Registry) ListByMatch(matchID string) []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Conn
	for _, conn := range r.conns {
		conn.mu.Lock()
		match := conn.meta.MatchID == matchID
		conn.mu.Unlock()
		if match {
			out = append(out, conn)
		}
	}
	return out
}

// Len reports the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
