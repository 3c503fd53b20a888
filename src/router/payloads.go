package router

import (
	"context"
	"encoding/json"

	"github.com/espe-chat/relay/src/registry"
	"github.com/espe-chat/relay/src/types"
	"github.com/samber/lo"
)

// sendHistory replays the user's full private-message history to the
// joining connection as a single payload. An empty history is still
// sent, so the client always gets a baseline.
func (rt *Router) sendHistory(ctx context.Context, conn types.Conn, username string) {
	messages, err := rt.store.FindMessagesInvolving(ctx, username)
	if err != nil {
		rt.logger.Error().Err(err).Str("username", username).Msg("history lookup failed")
		return
	}

	entries := lo.Map(messages, func(msg types.PrivateMessage, _ int) types.HistoryEntry {
		return types.HistoryEntry{
			Type:     types.PayloadHistory,
			FromUser: msg.FromUser,
			ToUser:   msg.ToUser,
			Message:  msg.Message,
			Time:     msg.Time,
		}
	})
	payload, ok := rt.encode(types.HistoryPayload{Type: types.PayloadHistory, Data: entries})
	if !ok {
		return
	}
	rt.send([]types.Conn{conn}, payload)
}

// Roster resolves the current set of joined sessions to roster entries.
// Sessions whose user record cannot be resolved are skipped rather than
// failing the whole roster.
func (rt *Router) Roster(ctx context.Context) []types.RosterEntry {
	return lo.FilterMap(rt.registry.Snapshot(), func(e registry.Entry, _ int) (types.RosterEntry, bool) {
		user, err := rt.store.FindUserByID(ctx, e.Session.UserID)
		if err != nil {
			rt.logger.Debug().Err(err).Str("user_id", e.Session.UserID).Msg("roster entry skipped")
			return types.RosterEntry{}, false
		}
		return types.RosterEntry{
			UserID:    user.ID,
			Username:  user.Username,
			SessionID: e.Session.ConnectionID,
		}, true
	})
}

// broadcastRoster sends the full current roster plus a transition note
// to every open connection.
func (rt *Router) broadcastRoster(ctx context.Context, note string) {
	payload, ok := rt.encode(types.RosterPayload{
		Type:    types.PayloadUsersUpdate,
		Users:   rt.Roster(ctx),
		Message: note,
	})
	if !ok {
		return
	}
	rt.send(rt.registry.ActiveConns(), payload)
}

// send delivers one serialized payload to each target connection.
// Targets are a snapshot taken before any send, so membership may drift
// while the loop runs. Closed connections are skipped and a failed send
// is logged without aborting the rest.
func (rt *Router) send(targets []types.Conn, payload string) {
	for _, conn := range targets {
		if !rt.registry.IsOpen(conn) {
			continue
		}
		if err := conn.SendText(payload); err != nil {
			rt.logger.Warn().Err(err).Str("conn_id", conn.Identifier()).Msg("send failed")
		}
	}
}

// sendError pushes a best-effort failure indication to one connection.
func (rt *Router) sendError(conn types.Conn, message string) {
	payload, ok := rt.encode(types.ErrorPayload{Type: types.PayloadError, Message: message})
	if !ok {
		return
	}
	rt.send([]types.Conn{conn}, payload)
}

func (rt *Router) encode(v any) (string, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		rt.logger.Error().Err(err).Msg("payload encode failed")
		return "", false
	}
	return string(data), true
}
