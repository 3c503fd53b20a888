package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/espe-chat/relay/src/registry"
	"github.com/espe-chat/relay/src/router"
	"github.com/espe-chat/relay/src/store"
	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSocket implements Socket without a network.
type mockSocket struct {
	mu      sync.Mutex
	inbound chan []byte
	written [][]byte
	closed  bool
}

func newMockSocket() *mockSocket {
	return &mockSocket{inbound: make(chan []byte, 16)}
}

func (m *mockSocket) ReadMessage() (int, []byte, error) {
	data, ok := <-m.inbound
	if !ok {
		return 0, nil, errors.New("socket closed")
	}
	return websocket.TextMessage, data, nil
}

func (m *mockSocket) WriteMessage(_ int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, data)
	return nil
}

func (m *mockSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.inbound)
	}
	return nil
}

func (m *mockSocket) writtenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.written)
}

func newTestRouter() (*router.Router, *registry.Registry) {
	reg := registry.New(zerolog.Nop())
	return router.New(reg, store.NewMemory(), zerolog.Nop()), reg
}

func TestSendTextAfterCloseFails(t *testing.T) {
	rt, _ := newTestRouter()
	c := NewClient("c1", newMockSocket(), rt, 4, zerolog.Nop())

	require.True(t, c.IsOpen())
	c.Close()
	assert.False(t, c.IsOpen())
	assert.ErrorIs(t, c.SendText("late"), ErrConnClosed)
}

func TestSendTextFullBuffer(t *testing.T) {
	rt, _ := newTestRouter()
	c := NewClient("c1", newMockSocket(), rt, 1, zerolog.Nop())

	// No write pump draining, so the second send overflows.
	require.NoError(t, c.SendText("one"))
	assert.ErrorIs(t, c.SendText("two"), ErrBufferFull)
}

func TestWritePumpDrainsSendBuffer(t *testing.T) {
	rt, _ := newTestRouter()
	sock := newMockSocket()
	c := NewClient("c1", sock, rt, 4, zerolog.Nop())

	require.NoError(t, c.SendText("a"))
	require.NoError(t, c.SendText("b"))
	go c.WritePump()

	assert.Eventually(t, func() bool { return sock.writtenCount() == 2 },
		time.Second, 10*time.Millisecond)
	c.Close()
}

func TestReadPumpDispatchesAndCleansUp(t *testing.T) {
	rt, reg := newTestRouter()
	sock := newMockSocket()
	c := NewClient("c1", sock, rt, 16, zerolog.Nop())
	rt.Connect(c)
	require.Equal(t, 1, reg.ConnCount())

	done := make(chan struct{})
	go func() {
		c.ReadPump(context.Background())
		close(done)
	}()

	sock.inbound <- []byte(`{"type":"JOIN","username":"bob"}`)

	assert.Eventually(t, func() bool { return reg.SessionCount() == 1 },
		time.Second, 10*time.Millisecond)

	// Socket close drives the disconnect path exactly once.
	sock.Close()
	<-done
	assert.Equal(t, 0, reg.ConnCount())
	assert.Equal(t, 0, reg.SessionCount())
	assert.False(t, c.IsOpen())
}
