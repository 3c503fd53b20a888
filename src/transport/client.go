package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/espe-chat/relay/src/router"
	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"
)

var (
	// ErrConnClosed is returned when sending on a closed connection.
	ErrConnClosed = errors.New("connection closed")
	// ErrBufferFull is returned when the client's send buffer is full.
	// The slow client loses the payload; nobody else waits for it.
	ErrBufferFull = errors.New("send buffer full")
)

// Socket is the subset of the WebSocket connection the client uses,
// abstracted for testability.
type Socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client wraps one WebSocket connection. The read pump feeds inbound
// payloads to the router; the write pump drains the send buffer back to
// the socket. Separating the two keeps a slow reader from blocking
// writes and vice versa.
type Client struct {
	id     string
	sock   Socket
	router *router.Router
	send   chan []byte
	done   chan struct{}
	mu     sync.Mutex
	closed bool
	logger zerolog.Logger
}

// NewClient creates a client wrapper around an open socket.
func NewClient(id string, sock Socket, rt *router.Router, sendBuffer int, logger zerolog.Logger) *Client {
	return &Client{
		id:     id,
		sock:   sock,
		router: rt,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "transport").Str("conn_id", id).Logger(),
	}
}

// Identifier returns the transport-assigned connection id.
func (c *Client) Identifier() string { return c.id }

// IsOpen reports whether the connection is still usable for sends.
func (c *Client) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// SendText enqueues a text payload for the write pump. It never blocks:
// a full buffer is a transport error for this one connection.
func (c *Client) SendText(payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- []byte(payload):
		return nil
	default:
		return ErrBufferFull
	}
}

// ReadPump reads inbound messages and dispatches them to the router.
// It returns when the socket closes or errors, after running the
// disconnect path exactly once.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.Close()
		c.router.Disconnect(ctx, c)
		c.sock.Close()
	}()

	for {
		messageType, data, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.router.Error(c, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.router.Dispatch(ctx, c, string(data))
	}
}

// WritePump writes queued payloads to the socket. Call in a goroutine.
func (c *Client) WritePump() {
	defer c.sock.Close()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug().Err(err).Msg("write failed")
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close marks the client closed and stops the write pump. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}
