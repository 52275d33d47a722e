package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/druid/internal/config"
	"github.com/congo-pay/druid/internal/ledger"
	"github.com/congo-pay/druid/internal/middleware"
	"github.com/congo-pay/druid/internal/users"
	"github.com/congo-pay/druid/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes. DB and Cache
// may be nil in development, in which case in-memory stores are used and
// idempotency and rate limiting are disabled.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Tracing())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	var (
		ledgerBackend ledger.Ledger
		walletRepo    wallet.Repository
		userRepo      users.Repository
	)
	if d.DB != nil {
		ledgerBackend = ledger.NewPostgresLedger(d.DB)
		walletRepo = wallet.NewPostgresRepository(d.DB)
		userRepo = users.NewPostgresRepository(d.DB)
	} else {
		ledgerBackend = ledger.NewInMemory()
		walletRepo = wallet.NewMemoryRepository()
		userRepo = users.NewMemoryRepository()
	}

	walletSvc := wallet.NewService(walletRepo, ledgerBackend)
	userSvc := users.NewService(userRepo, walletSvc, d.Logger)

	api := app.Group("/api/v1")
	if d.Cache != nil {
		api.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	var limiter fiber.Handler
	if d.Cache != nil {
		limiter = middleware.LookupRateLimit(d.Cache, d.Cfg.LookupRateLimit, d.Logger)
	}
	RegisterUserRoutes(api, users.NewHandler(userSvc), limiter)
	RegisterWalletRoutes(api, wallet.NewHandler(walletSvc))

	return nil
}
