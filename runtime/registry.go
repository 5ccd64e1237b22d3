package runtime

import (
	"chat-core/contract"
	"sync"
)

type connSet map[string]contract.Connection

// Registry tracks the live connections of every connected user.
// A user with several devices owns several entries.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]connSet // map user -> connection id -> connection
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]connSet)}
}

// Register adds the connection under its user. Registering the same
// connection twice keeps a single entry.
func (r *Registry) Register(conn contract.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.sessions[conn.UserID()]
	if !ok {
		conns = make(connSet)
		r.sessions[conn.UserID()] = conns
	}
	conns[conn.ID()] = conn
}

// Unregister removes the connection. Unknown connections are ignored and
// users left without any connection are dropped from the map.
func (r *Registry) Unregister(conn contract.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.sessions[conn.UserID()]
	if !ok {
		return
	}
	delete(conns, conn.ID())
	if len(conns) == 0 {
		delete(r.sessions, conn.UserID())
	}
}

// ConnectionsOf returns a snapshot of the connections owned by the given users.
// Offline users contribute nothing.
func (r *Registry) ConnectionsOf(userIDs []string) []contract.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []contract.Connection
	for _, userID := range userIDs {
		for _, conn := range r.sessions[userID] {
			active = append(active, conn)
		}
	}
	return active
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, conns := range r.sessions {
		n += len(conns)
	}
	return n
}
