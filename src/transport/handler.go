package transport

import (
	"context"
	"strings"

	"github.com/espe-chat/relay/config"
	"github.com/espe-chat/relay/src/router"
	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// Handler returns a raw fasthttp handler that upgrades requests to
// WebSocket and runs the per-connection pumps. It is registered on the
// fasthttp server beside the Fiber app, since Fiber v3 does not expose
// *fasthttp.RequestCtx to its handlers.
func Handler(rt *router.Router, cfg *config.Config, logger zerolog.Logger) fasthttp.RequestHandler {
	upgrader := websocket.FastHTTPUpgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		// Any origin is accepted; lock down per deployment.
		CheckOrigin: func(*fasthttp.RequestCtx) bool { return true },
	}

	return func(ctx *fasthttp.RequestCtx) {
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
			return
		}

		clientID := uuid.New().String()

		err := upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			client := NewClient(clientID, conn, rt, cfg.SendBuffer, logger)
			rt.Connect(client)
			go client.WritePump()
			client.ReadPump(context.Background())
		})
		if err != nil {
			logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}
