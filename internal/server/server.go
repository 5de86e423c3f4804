package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/rovobit/exchange/internal/config"
	"github.com/rovobit/exchange/internal/metrics"
	"github.com/rovobit/exchange/internal/routes"
	"github.com/rovobit/exchange/internal/settlement"
)

// Server wraps the Fiber application, the domain services and the
// liquidation sweeper.
type Server struct {
	app      *fiber.App
	cfg      config.Config
	services *routes.Services
	logger   *slog.Logger
}

// New builds the services and delegates route wiring to routes.Setup.
func New(cfg config.Config, db *pgxpool.Pool, cache redis.UniversalClient, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	deps := routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger, Metrics: metrics.New()}
	services, err := routes.NewServices(deps)
	if err != nil {
		return nil, err
	}
	if err := routes.Setup(app, deps, services); err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, services: services, logger: logger}, nil
}

// App exposes the Fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Sweeper returns the liquidation sweeper wired to the server's services.
func (s *Server) Sweeper() *settlement.Sweeper {
	return s.services.Sweeper
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
