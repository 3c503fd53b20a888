package service

import (
	"github.com/espe-chat/relay/src/registry"
	"github.com/espe-chat/relay/src/router"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
)

// Service is the operational HTTP surface over the relay core: liveness
// and a read-only view of connections and joined sessions.
type Service struct {
	registry *registry.Registry
	router   *router.Router
	logger   zerolog.Logger
}

// New creates a Service over the given registry and router.
func New(reg *registry.Registry, rt *router.Router, logger zerolog.Logger) *Service {
	return &Service{registry: reg, router: rt, logger: logger}
}

// RegisterRoutes registers the ops routes on a Fiber router.
func (s *Service) RegisterRoutes(app fiber.Router) {
	app.Get("/healthz", s.handleHealth)
	app.Get("/ws/info", s.handleInfo)
	app.Get("/ws/roster", s.handleRoster)
}

func (s *Service) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Service) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket":   true,
		"endpoint":    "/ws",
		"connections": s.registry.ConnCount(),
		"sessions":    s.registry.SessionCount(),
	})
}

func (s *Service) handleRoster(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"users": s.router.Roster(c.Context())})
}
