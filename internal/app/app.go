package app

import (
	"kolo-backend/internal/chain"
	"kolo-backend/internal/circles"
	"kolo-backend/internal/collateral"
	"kolo-backend/internal/config"
	"kolo-backend/internal/credit"
	"kolo-backend/internal/health"
	"kolo-backend/internal/identity"
	"kolo-backend/internal/infrastructure/database"
	"kolo-backend/internal/middleware"
	"kolo-backend/internal/rounds"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// CreateApp builds the Fiber app with all global middleware and route
// registration. The DB connection may be nil when DATABASE_URL is unset
// (tests build services directly against sqlite).
func CreateApp(cfg *config.Config) (*fiber.App, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	// CORS (before session)
	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))

	// Session (Redis); the Redis client also feeds the health marker
	sessionCfg := middleware.SessionConfig{
		Secret:            cfg.SessionSecret,
		RedisURL:          cfg.RedisURL,
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.Env == "production",
	}
	sessionHandler, rdb, err := middleware.Session(sessionCfg)
	if err != nil {
		return nil, err
	}
	app.Use(sessionHandler)

	// Health request marker (after session)
	app.Use(middleware.HealthMarker(rdb))

	// Tracing + route logger
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		db, err = database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := database.AutoMigrate(db); err != nil {
			return nil, err
		}
	}

	// --- Routes (no auth) ---
	healthHandlers := &health.Handlers{Service: &health.Service{Rdb: rdb, DB: db}}
	app.Get("/health/json", healthHandlers.JSON)
	app.Get("/health/reset", healthHandlers.Reset)

	if db == nil || rdb == nil {
		return app, nil
	}

	var chainClient chain.Client
	if cfg.ChainRPCURL != "" {
		chainClient = &chain.HTTPClient{BaseURL: cfg.ChainRPCURL}
	}

	oracle := &collateral.GormPriceOracle{DB: db}
	collateralService := collateral.NewService(db, oracle, cfg.LTVRatio)
	creditService := &credit.Service{DB: db}
	circleService := &circles.Service{DB: db, Collateral: collateralService}
	roundService := &rounds.Service{DB: db, Collateral: collateralService, Credit: creditService}
	identityService := &identity.Service{DB: db}

	// Auth (no auth middleware)
	identityHandlers := &identity.Handlers{
		Service:     identityService,
		Redis:       rdb,
		Session:     sessionCfg,
		DevPassword: cfg.DevPassword,
	}
	authGroup := app.Group("/api/v1/auth")
	authGroup.Post("/dev", identityHandlers.DevSignIn)
	authGroup.Post("/logout", identityHandlers.Logout)

	requireIdentity := middleware.RequireIdentity()
	requireAdmin := middleware.RequireAdminKey(cfg.AdminKeyHash)

	// Identity module
	identityGroup := app.Group("/api/v1/identity", requireIdentity)
	identityGroup.Get("/me", identityHandlers.Me)
	identityGroup.Post("/wallet", identityHandlers.BindWallet)
	identityGroup.Post("/wallet/confirm", identityHandlers.ConfirmWallet)

	// Collateral module
	collateralHandlers := &collateral.Handlers{Service: collateralService}
	collateralGroup := app.Group("/api/v1/collateral", requireIdentity)
	collateralGroup.Post("/deposit", collateralHandlers.Deposit)
	collateralGroup.Post("/withdraw", collateralHandlers.Withdraw)
	collateralGroup.Get("/capacity", collateralHandlers.Capacity)
	collateralGroup.Post("/release", requireAdmin, collateralHandlers.Release)
	collateralGroup.Post("/slash", requireAdmin, collateralHandlers.Slash)
	collateralGroup.Post("/ltv", requireAdmin, collateralHandlers.SetLTV)
	collateralGroup.Post("/prices", requireAdmin, collateralHandlers.SetPrice)

	// Circles module
	circleHandlers := &circles.Handlers{
		Service: circleService,
		Chain:   chainClient,
		Nonces:  chain.NewMutexSequencer(0),
	}
	circleGroup := app.Group("/api/v1/circles", requireIdentity)
	circleGroup.Post("/", circleHandlers.Create)
	circleGroup.Get("/mine", circleHandlers.Mine)
	circleGroup.Get("/:id", circleHandlers.Get)
	circleGroup.Get("/:id/members", circleHandlers.Members)
	circleGroup.Post("/:id/join", circleHandlers.Join)
	circleGroup.Post("/:id/broadcast", circleHandlers.ConfirmBroadcast)
	circleGroup.Post("/:id/pause", requireAdmin, circleHandlers.Pause)
	circleGroup.Post("/:id/resume", requireAdmin, circleHandlers.Resume)
	circleGroup.Post("/:id/dissolve", requireAdmin, circleHandlers.Dissolve)

	// Rounds module (nested under circles)
	roundHandlers := &rounds.Handlers{Service: roundService}
	circleGroup.Post("/:id/contributions", roundHandlers.Contribute)
	circleGroup.Post("/:id/bids", roundHandlers.PlaceBid)
	circleGroup.Post("/:id/repayments", roundHandlers.Repay)
	circleGroup.Get("/:id/rounds/status", roundHandlers.Status)
	circleGroup.Get("/:id/rounds/results", roundHandlers.Results)
	circleGroup.Post("/:id/payout", requireAdmin, roundHandlers.ProcessPayout)
	circleGroup.Post("/:id/settle", requireAdmin, roundHandlers.Settle)

	// Credit module
	creditHandlers := &credit.Handlers{Service: creditService}
	creditGroup := app.Group("/api/v1/credit", requireIdentity)
	creditGroup.Get("/me", creditHandlers.Me)
	creditGroup.Get("/:identity_id", requireAdmin, creditHandlers.Lookup)

	// Chain module (reconciliation + raw reads)
	if chainClient != nil {
		chainHandlers := &chain.Handlers{Sync: &chain.SyncService{DB: db, Client: chainClient}}
		circleGroup.Post("/:id/sync", requireAdmin, chainHandlers.SyncCircle)
		app.Get("/api/v1/chain/circles/:id", requireIdentity, chainHandlers.State)
	}

	return app, nil
}
