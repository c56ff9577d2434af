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

	"github.com/dailycoin/ubi-ledger/internal/asset"
	"github.com/dailycoin/ubi-ledger/internal/auth"
	"github.com/dailycoin/ubi-ledger/internal/calendar"
	"github.com/dailycoin/ubi-ledger/internal/config"
	"github.com/dailycoin/ubi-ledger/internal/events"
	"github.com/dailycoin/ubi-ledger/internal/identity"
	"github.com/dailycoin/ubi-ledger/internal/ledger"
	"github.com/dailycoin/ubi-ledger/internal/middleware"
	"github.com/dailycoin/ubi-ledger/internal/token"
	"github.com/dailycoin/ubi-ledger/internal/ubi"
)

// eventStreamMaxLen approximately caps the Redis event stream.
const eventStreamMaxLen = 100_000

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Clock overrides the system clock, mostly for tests.
	Clock calendar.Clock
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Cfg.IsProduction() {
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
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	var (
		store  ledger.Store
		idRepo identity.Repository
	)
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
		idRepo = identity.NewPostgresRepository(d.DB)
	} else {
		store = ledger.NewInMemory()
		idRepo = identity.NewMemoryRepository()
	}

	engine, err := newEngine(d.Cfg, d.Clock)
	if err != nil {
		return err
	}
	emitter := events.Multi{events.NewLoggerEmitter(d.Logger)}
	if d.Cache != nil {
		emitter = append(emitter, events.NewRedisEmitter(d.Cache, d.Cfg.EventStream, eventStreamMaxLen))
	}

	identitySvc := identity.NewService(idRepo)
	authSvc := auth.NewService(d.Cfg, idRepo)
	tokenSvc := token.NewService(token.Deps{
		Store:      store,
		Engine:     engine,
		Authorizer: auth.ActorAuthorizer{},
		Accounts:   identitySvc,
		Emitter:    emitter,
		Logger:     d.Logger,
		Authority:  d.Cfg.LedgerAuthority,
	})

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	tokenHandler := token.NewHandler(tokenSvc, d.Cfg.DefaultSymbol)
	RegisterAccountRoutes(api, identity.NewHandler(identitySvc))
	RegisterAuthRoutes(api, auth.NewHandler(identitySvc, authSvc), middleware.LoginRateLimit(d.Cache, 5))
	RegisterQueryRoutes(api, tokenHandler)

	// Protected routes
	protected := api.Group("", middleware.JWTAuth(authSvc))
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterSessionRoutes(protected, auth.NewHandler(identitySvc, authSvc))
	RegisterTokenRoutes(protected, tokenHandler, middleware.ClaimRateLimit(d.Cache, d.Cfg.ClaimRateLimitPerMin))

	d.Logger.Info("routes ready",
		slog.String("symbol", d.Cfg.DefaultSymbol.String()),
		slog.Bool("postgres", d.DB != nil),
		slog.Bool("redis", d.Cache != nil),
	)
	return nil
}

func newEngine(cfg config.Config, clock calendar.Clock) (*ubi.Engine, error) {
	decay, err := ubi.NewDecay(cfg.DemurrageAnnualRate)
	if err != nil {
		return nil, fmt.Errorf("demurrage rate: %w", err)
	}
	policy := ubi.Policy{
		UnitsPerDay:          asset.Unit,
		MaxPastClaimDays:     cfg.MaxPastClaimDays,
		SignupBonusCutoffDay: cfg.SignupBonusCutoffDay,
		MaxSignupBonusDays:   cfg.MaxSignupBonusDays,
	}
	return ubi.NewEngine(clock, decay, policy), nil
}
