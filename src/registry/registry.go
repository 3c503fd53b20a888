package registry

import (
	"sync"

	"github.com/espe-chat/relay/src/types"
	"github.com/rs/zerolog"
)

// Entry is one (connection, session) pair from a registry snapshot.
type Entry struct {
	Conn    types.Conn
	Session types.Session
}

// Registry is the single source of truth for live connections and their
// session bindings. All operations are linearizable behind one mutex and
// never touch I/O; sends happen outside the registry, on snapshots.
//
// Invariant: every connection with a session is also active. A connection
// that is active but has no session is connected-but-not-joined.
type Registry struct {
	mu       sync.RWMutex
	active   map[string]types.Conn    // conn identifier -> conn
	sessions map[string]types.Session // conn identifier -> session
	logger   zerolog.Logger
}

// New creates an empty Registry.
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		active:   make(map[string]types.Conn),
		sessions: make(map[string]types.Session),
		logger:   logger.With().Str("component", "registry").Logger(),
	}
}

// Register adds a connection to the active set. Registering the same
// connection twice is a no-op.
func (r *Registry) Register(conn types.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.Identifier()
	if _, ok := r.active[id]; ok {
		return
	}
	r.active[id] = conn
	r.logger.Debug().Str("conn_id", id).Msg("connection registered")
}

// Bind associates a connection with a session. Rebinding an already
// bound connection overwrites the previous session: last write wins.
// The connection is added to the active set if it is not there yet, so
// a session can never exist for an inactive connection.
func (r *Registry) Bind(conn types.Conn, sess types.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.Identifier()
	r.active[id] = conn
	r.sessions[id] = sess
	r.logger.Debug().Str("conn_id", id).Str("user_id", sess.UserID).Msg("session bound")
}

// Unbind removes both the session binding and the active membership of
// a connection in one critical section. It returns the removed session
// and whether one existed, so callers can react to identity loss.
func (r *Registry) Unbind(conn types.Conn) (types.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.Identifier()
	sess, bound := r.sessions[id]
	delete(r.sessions, id)
	delete(r.active, id)
	if bound {
		r.logger.Debug().Str("conn_id", id).Str("user_id", sess.UserID).Msg("session unbound")
	}
	return sess, bound
}

// SessionFor returns the session bound to a connection, if any.
func (r *Registry) SessionFor(conn types.Conn) (types.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[conn.Identifier()]
	return sess, ok
}

// FindByConnectionID returns every active connection whose session
// carries the given session id. In correct operation that is at most
// one connection, but the contract tolerates zero (stale target) or
// several (duplicate ids upstream) matches.
func (r *Registry) FindByConnectionID(id string) []types.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []types.Conn
	for connID, sess := range r.sessions {
		if sess.ConnectionID != id {
			continue
		}
		if conn, ok := r.active[connID]; ok {
			conns = append(conns, conn)
		}
	}
	return conns
}

// Snapshot returns a point-in-time copy of all (connection, session)
// pairs. The slice is safe to iterate while the registry keeps mutating.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.sessions))
	for connID, sess := range r.sessions {
		conn, ok := r.active[connID]
		if !ok {
			continue
		}
		entries = append(entries, Entry{Conn: conn, Session: sess})
	}
	return entries
}

// ActiveConns returns a point-in-time copy of every active connection,
// joined or not. Public broadcasts fan out over this set.
func (r *Registry) ActiveConns() []types.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]types.Conn, 0, len(r.active))
	for _, conn := range r.active {
		conns = append(conns, conn)
	}
	return conns
}

// IsOpen reports whether the connection's transport is still open.
func (r *Registry) IsOpen(conn types.Conn) bool {
	return conn.IsOpen()
}

// ConnCount returns the number of active connections.
func (r *Registry) ConnCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// SessionCount returns the number of joined sessions.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
