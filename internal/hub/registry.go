package hub

import (
	"sync"
)

// Registry exclusively owns connection objects. Other components reference
// connections by identifier and resolve them through Lookup; once a
// connection is unregistered its identifier resolves to absent, never to a
// stale object.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	groups *GroupIndex
}

func NewRegistry(groups *GroupIndex) *Registry {
	return &Registry{
		conns:  make(map[string]*Conn),
		groups: groups,
	}
}

// Register adds a connection and returns its identifier.
func (r *Registry) Register(c *Conn) string {
	r.mu.Lock()
	r.conns[c.id] = c
	r.mu.Unlock()
	return c.id
}

// Lookup resolves an identifier to a live connection.
func (r *Registry) Lookup(id string) (*Conn, bool) {
	r.mu.RLock()
	c, ok := r.conns[id]
	r.mu.RUnlock()
	return c, ok
}

// Unregister removes a connection. Group membership is removed synchronously
// before the registry entry is deleted, so the bidirectional membership
// invariant holds even on abrupt disconnects.
func (r *Registry) Unregister(id string) {
	r.groups.RemoveConn(id)

	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	n := len(r.conns)
	r.mu.RUnlock()
	return n
}

// IDs returns a snapshot of all registered connection identifiers.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	return ids
}
