package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/espe-chat/relay/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockConn implements types.Conn without a real socket.
type mockConn struct {
	id   string
	open bool
}

func (m *mockConn) Identifier() string    { return m.id }
func (m *mockConn) IsOpen() bool          { return m.open }
func (m *mockConn) SendText(string) error { return nil }

func newMockConn(id string) *mockConn { return &mockConn{id: id, open: true} }

func newTestRegistry() *Registry {
	return New(zerolog.Nop())
}

// checkInvariant asserts that every session belongs to an active connection.
func checkInvariant(t *testing.T, r *Registry) {
	t.Helper()
	r.mu.RLock()
	defer r.mu.RUnlock()
	for connID := range r.sessions {
		_, ok := r.active[connID]
		assert.True(t, ok, "session for %s has no active connection", connID)
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	conn := newMockConn("c1")

	r.Register(conn)
	r.Register(conn)

	assert.Equal(t, 1, r.ConnCount())
	checkInvariant(t, r)
}

func TestBindOverwriteLastWriteWins(t *testing.T) {
	r := newTestRegistry()
	conn := newMockConn("c1")
	r.Register(conn)

	r.Bind(conn, types.Session{ConnectionID: "c1", UserID: "u1"})
	r.Bind(conn, types.Session{ConnectionID: "c1", UserID: "u2"})

	sess, ok := r.SessionFor(conn)
	require.True(t, ok)
	assert.Equal(t, "u2", sess.UserID)
	assert.Equal(t, 1, r.SessionCount())
	checkInvariant(t, r)
}

func TestBindRegistersUnknownConnection(t *testing.T) {
	r := newTestRegistry()
	conn := newMockConn("c1")

	// Bind without a prior Register must not break the subset invariant.
	r.Bind(conn, types.Session{ConnectionID: "c1", UserID: "u1"})

	assert.Equal(t, 1, r.ConnCount())
	assert.Equal(t, 1, r.SessionCount())
	checkInvariant(t, r)
}

func TestUnbindReturnsRemovedSession(t *testing.T) {
	r := newTestRegistry()
	conn := newMockConn("c1")
	r.Register(conn)
	r.Bind(conn, types.Session{ConnectionID: "c1", UserID: "u1"})

	sess, ok := r.Unbind(conn)
	require.True(t, ok)
	assert.Equal(t, "u1", sess.UserID)
	assert.Equal(t, 0, r.ConnCount())
	assert.Equal(t, 0, r.SessionCount())
	checkInvariant(t, r)
}

func TestUnbindNeverJoined(t *testing.T) {
	r := newTestRegistry()
	conn := newMockConn("c1")
	r.Register(conn)

	_, ok := r.Unbind(conn)
	assert.False(t, ok)
	assert.Equal(t, 0, r.ConnCount())
	checkInvariant(t, r)
}

func TestInvariantHoldsAcrossSequences(t *testing.T) {
	r := newTestRegistry()
	conns := make([]*mockConn, 3)
	for i := range conns {
		conns[i] = newMockConn(fmt.Sprintf("c%d", i))
	}

	r.Register(conns[0])
	checkInvariant(t, r)
	r.Bind(conns[0], types.Session{ConnectionID: "c0", UserID: "u0"})
	checkInvariant(t, r)
	r.Register(conns[1])
	checkInvariant(t, r)
	r.Unbind(conns[0])
	checkInvariant(t, r)
	r.Bind(conns[2], types.Session{ConnectionID: "c2", UserID: "u2"})
	checkInvariant(t, r)
	r.Unbind(conns[1])
	checkInvariant(t, r)
	r.Unbind(conns[2])
	checkInvariant(t, r)
}

func TestFindByConnectionID(t *testing.T) {
	r := newTestRegistry()
	c1 := newMockConn("c1")
	c2 := newMockConn("c2")
	r.Bind(c1, types.Session{ConnectionID: "c1", UserID: "u1"})
	r.Bind(c2, types.Session{ConnectionID: "c2", UserID: "u2"})

	matches := r.FindByConnectionID("c1")
	require.Len(t, matches, 1)
	assert.Equal(t, "c1", matches[0].Identifier())

	// Unknown or stale target resolves to an empty set, not an error.
	assert.Empty(t, r.FindByConnectionID("gone"))
}

func TestSnapshotIsPointInTime(t *testing.T) {
	r := newTestRegistry()
	c1 := newMockConn("c1")
	c2 := newMockConn("c2")
	r.Bind(c1, types.Session{ConnectionID: "c1", UserID: "u1"})
	r.Bind(c2, types.Session{ConnectionID: "c2", UserID: "u2"})

	snap := r.Snapshot()
	require.Len(t, snap, 2)

	// Mutations after the snapshot must not show up in it.
	r.Unbind(c1)
	assert.Len(t, snap, 2)
	assert.Len(t, r.Snapshot(), 1)
}

func TestConcurrentAccess(t *testing.T) {
	r := newTestRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			conn := newMockConn(fmt.Sprintf("c%d", n))
			r.Register(conn)
			r.Bind(conn, types.Session{ConnectionID: conn.id, UserID: fmt.Sprintf("u%d", n)})
			r.Snapshot()
			r.FindByConnectionID(conn.id)
			if n%2 == 0 {
				r.Unbind(conn)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 16, r.SessionCount())
	assert.Equal(t, 16, r.ConnCount())
	checkInvariant(t, r)
}
