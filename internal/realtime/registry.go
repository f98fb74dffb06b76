package realtime

import "sync"

// Conn is the server-side handle for one live connection. Events are pushed
// through a buffered channel; the stop channel closes when the connection is
// replaced by a newer one for the same key.
type Conn struct {
	ch       chan Event
	stop     chan struct{}
	stopOnce sync.Once
}

func newConn(buffer int) *Conn {
	return &Conn{
		ch:   make(chan Event, buffer),
		stop: make(chan struct{}),
	}
}

// Events is the stream the connection task reads from.
func (c *Conn) Events() <-chan Event { return c.ch }

// Done closes when this connection has been replaced and should shut down.
func (c *Conn) Done() <-chan struct{} { return c.stop }

func (c *Conn) deliver(ev Event) {
	select {
	case c.ch <- ev:
	default:
		// Drop for slow consumers; delivery is best-effort, the client can
		// discover current state on next read.
	}
}

func (c *Conn) close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Registry holds the live connection-key -> connection mappings for this
// process. It is not persisted; a restart drops all presence state.
type Registry struct {
	mu     sync.RWMutex
	buffer int
	conns  map[string]*Conn
}

func NewRegistry(buffer int) *Registry {
	if buffer < 1 {
		buffer = 1
	}
	return &Registry{buffer: buffer, conns: map[string]*Conn{}}
}

// Connect registers a fresh connection for key. The newest connect wins: any
// prior connection for the same key is stopped and unmapped, never delivered
// to again.
func (r *Registry) Connect(key string) *Conn {
	c := newConn(r.buffer)
	r.mu.Lock()
	prev := r.conns[key]
	r.conns[key] = c
	r.mu.Unlock()
	if prev != nil {
		prev.close()
	}
	return c
}

// Disconnect removes the mapping for key, but only if c is still the
// registered connection. A disconnect racing a replacement is a no-op.
func (r *Registry) Disconnect(key string, c *Conn) {
	r.mu.Lock()
	if r.conns[key] == c {
		delete(r.conns, key)
	}
	r.mu.Unlock()
	c.close()
}

// Lookup returns the live connection for key, if any. Read-only.
func (r *Registry) Lookup(key string) (*Conn, bool) {
	r.mu.RLock()
	c, ok := r.conns[key]
	r.mu.RUnlock()
	return c, ok
}
