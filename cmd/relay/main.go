package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/espe-chat/relay/config"
	"github.com/espe-chat/relay/src/registry"
	"github.com/espe-chat/relay/src/router"
	"github.com/espe-chat/relay/src/service"
	"github.com/espe-chat/relay/src/store"
	"github.com/espe-chat/relay/src/transport"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration invalid")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	st, err := openStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Store).Msg("store unavailable")
	}
	defer st.Close()
	logger.Info().Str("backend", cfg.Store).Msg("history store ready")

	reg := registry.New(logger)
	rt := router.New(reg, st, logger)
	svc := service.New(reg, rt, logger)

	app := fiber.New()
	svc.RegisterRoutes(app)

	// The WebSocket upgrade needs the raw fasthttp context, so the /ws
	// path is handled before the Fiber app.
	wsHandler := transport.Handler(rt, cfg, logger)
	appHandler := app.Handler()
	handler := func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == "/ws" {
			wsHandler(ctx)
			return
		}
		appHandler(ctx)
	}

	logger.Info().Str("addr", cfg.Addr).Msg("relay listening")
	if err := fasthttp.ListenAndServe(cfg.Addr, handler); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

// openStore selects and initializes the history store backend.
func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store {
	case "memory":
		return store.NewMemory(), nil
	case "badger":
		return store.OpenBadger(cfg.BadgerPath)
	case "redis":
		s := store.NewRedis(store.RedisConfigFromEnv())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
}
