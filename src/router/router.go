package router

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/espe-chat/relay/src/registry"
	"github.com/espe-chat/relay/src/store"
	"github.com/espe-chat/relay/src/types"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Router interprets inbound events and fans the resulting payloads out
// to the right connections. It keeps no state of its own: everything it
// needs per call comes from the registry and the store.
//
// Per connection the lifecycle is connected -> joined -> closed. Message
// flows from a connection that never joined are protocol violations and
// are dropped.
type Router struct {
	registry *registry.Registry
	store    store.Store
	validate *validator.Validate
	logger   zerolog.Logger
}

// New creates a Router over the given registry and store.
func New(reg *registry.Registry, st store.Store, logger zerolog.Logger) *Router {
	return &Router{
		registry: reg,
		store:    st,
		validate: validator.New(),
		logger:   logger.With().Str("component", "router").Logger(),
	}
}

// Connect handles a transport-level connect.
func (rt *Router) Connect(conn types.Conn) {
	rt.registry.Register(conn)
}

// Dispatch decodes one inbound payload and routes it by event type.
// Malformed or incomplete payloads are logged and dropped; they never
// take the process down.
func (rt *Router) Dispatch(ctx context.Context, conn types.Conn, raw string) {
	// Only the type field is inspected up front: a MESSAGE carries
	// arbitrary fields and is forwarded verbatim, so it must not be
	// held to the envelope's field types.
	var kind struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(raw), &kind); err != nil {
		rt.logger.Warn().Err(err).Str("conn_id", conn.Identifier()).Msg("malformed payload dropped")
		return
	}
	if kind.Type == types.EventMessage {
		rt.handleMessage(ctx, conn, raw)
		return
	}

	var env types.Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		rt.logger.Warn().Err(err).Str("conn_id", conn.Identifier()).Msg("malformed payload dropped")
		return
	}
	if err := rt.validate.Struct(env); err != nil {
		rt.logger.Warn().Err(err).
			Str("conn_id", conn.Identifier()).
			Str("type", env.Type).
			Msg("invalid payload dropped")
		return
	}

	switch env.Type {
	case types.EventJoin:
		rt.handleJoin(ctx, conn, env.Username)
	case types.EventPrivateMessage:
		rt.handlePrivateMessage(ctx, conn, env)
	}
}

// handleJoin resolves the username to a durable user, binds the
// session, replays the user's private-message history to the joining
// connection and broadcasts the updated roster. Joining an already
// joined connection simply rebinds it.
func (rt *Router) handleJoin(ctx context.Context, conn types.Conn, username string) {
	normalized := strings.ToUpper(strings.TrimSpace(username))
	if normalized == "" {
		rt.logger.Warn().Str("conn_id", conn.Identifier()).Msg("join with blank username dropped")
		return
	}

	user, err := rt.store.FindUserByUsername(ctx, normalized)
	if errors.Is(err, store.ErrNotFound) {
		user, err = rt.store.CreateUser(ctx, normalized)
		if errors.Is(err, store.ErrUserExists) {
			// Lost a create race with another connection; the record is there now.
			user, err = rt.store.FindUserByUsername(ctx, normalized)
		}
	}
	if err != nil {
		rt.logger.Error().Err(err).Str("username", normalized).Msg("join failed, user unavailable")
		rt.sendError(conn, "join failed")
		return
	}

	rt.registry.Bind(conn, types.Session{
		ConnectionID: conn.Identifier(),
		UserID:       user.ID,
	})

	rt.logger.Info().
		Str("conn_id", conn.Identifier()).
		Str("username", normalized).
		Msg("user joined")

	rt.sendHistory(ctx, conn, normalized)
	rt.broadcastRoster(ctx, normalized+" joined")
}

// handleMessage re-broadcasts the raw inbound payload verbatim to every
// open connection, sender included. Nothing is persisted.
func (rt *Router) handleMessage(_ context.Context, conn types.Conn, raw string) {
	if _, joined := rt.registry.SessionFor(conn); !joined {
		rt.logger.Warn().Str("conn_id", conn.Identifier()).Msg("message before join dropped")
		return
	}
	rt.send(rt.registry.ActiveConns(), raw)
}

// handlePrivateMessage persists the message and relays it to the
// connection(s) currently holding the target session id. A stale or
// unknown target means zero sends; the record is persisted regardless.
func (rt *Router) handlePrivateMessage(ctx context.Context, conn types.Conn, env types.Envelope) {
	if _, joined := rt.registry.SessionFor(conn); !joined {
		rt.logger.Warn().Str("conn_id", conn.Identifier()).Msg("private message before join dropped")
		return
	}

	now := time.Now()
	msg := types.PrivateMessage{
		ID:        uuid.NewString(),
		FromUser:  env.FromUsername,
		ToUser:    env.ToUsername,
		Message:   env.Message,
		Time:      now.Format(time.UnixDate),
		CreatedAt: now,
	}
	if err := rt.store.SaveMessage(ctx, msg); err != nil {
		rt.logger.Error().Err(err).
			Str("from", msg.FromUser).
			Str("to", msg.ToUser).
			Msg("private message not persisted")
		rt.sendError(conn, "message could not be delivered")
		return
	}

	payload, ok := rt.encode(types.DeliveredMessage{
		Type:         types.PayloadPrivateMessage,
		FromUsername: msg.FromUser,
		ToUsername:   msg.ToUser,
		Message:      msg.Message,
		Time:         msg.Time,
	})
	if !ok {
		return
	}
	rt.send(rt.registry.FindByConnectionID(env.ToSession), payload)
}

// Disconnect handles a transport close or error for one connection.
// If the connection had joined, the remaining clients get a roster
// update with a departure note; otherwise nothing is broadcast.
func (rt *Router) Disconnect(ctx context.Context, conn types.Conn) {
	sess, bound := rt.registry.Unbind(conn)
	if !bound {
		return
	}

	name := sess.UserID
	if user, err := rt.store.FindUserByID(ctx, sess.UserID); err == nil {
		name = user.Username
	}

	rt.logger.Info().
		Str("conn_id", conn.Identifier()).
		Str("username", name).
		Msg("user disconnected")

	rt.broadcastRoster(ctx, name+" left")
}

// Error records a transport error for one connection. The failure is
// contained there; cleanup happens on the disconnect path.
func (rt *Router) Error(conn types.Conn, err error) {
	rt.logger.Warn().Err(err).Str("conn_id", conn.Identifier()).Msg("transport error")
}
