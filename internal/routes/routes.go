package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/rovobit/exchange/internal/config"
	"github.com/rovobit/exchange/internal/funding"
	"github.com/rovobit/exchange/internal/history"
	"github.com/rovobit/exchange/internal/ledger"
	"github.com/rovobit/exchange/internal/market"
	"github.com/rovobit/exchange/internal/metrics"
	"github.com/rovobit/exchange/internal/middleware"
	"github.com/rovobit/exchange/internal/settlement"
)

// withdrawRatePerMin caps withdraw submissions per caller.
const withdrawRatePerMin = 5

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg     config.Config
	DB      *pgxpool.Pool
	Cache   redis.UniversalClient
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps, s *Services) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.Env)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.Env)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	app.Use(d.Metrics.Middleware())

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	protected := api.Group("",
		middleware.JWTAuth(d.Cfg.JWTSecret),
		middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger),
	)
	admin := protected.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))

	RegisterWalletRoutes(protected, admin, ledger.NewHandler(s.Wallets))
	RegisterSettlementRoutes(protected, admin, settlement.NewHandler(s.Settlement))
	RegisterFundingRoutes(protected, admin, funding.NewHandler(s.Funding),
		middleware.RateLimit(d.Cache, "withdraw", withdrawRatePerMin))
	RegisterMarketRoutes(protected, admin, market.NewHandler(s.Prices))
	RegisterHistoryRoutes(admin, history.NewHandler(s.History))

	return nil
}
