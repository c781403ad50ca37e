package router

import (
	"github.com/redis/go-redis/v9"

	authsvc "elmzad-backend/internal/application/auth"
	bidsvc "elmzad-backend/internal/application/bidding"
	listsvc "elmzad-backend/internal/application/listings"
	"elmzad-backend/internal/config"
	"elmzad-backend/internal/infrastructure/database"
	authhandler "elmzad-backend/internal/interfaces/handlers/auth"
	bidhandler "elmzad-backend/internal/interfaces/handlers/bidding"
	healthhandler "elmzad-backend/internal/interfaces/handlers/health"
	listhandler "elmzad-backend/internal/interfaces/handlers/listings"
	"elmzad-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping() error {
	if g == nil || g.db == nil {
		return nil
	}
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))

	sessionCfg := middleware.SessionConfig{
		Secret:            cfg.SessionSecret,
		RedisURL:          cfg.RedisURL,
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.Env == "production",
	}
	sessionHandler, rdb, err := middleware.Session(sessionCfg)
	if err != nil {
		return nil, nil, nil, err
	}
	app.Use(sessionHandler)
	app.Use(middleware.HealthMarker(rdb))
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	hh := &healthhandler.Handlers{
		Rdb:            rdb,
		DB:             nil,
		HealthAdminKey: cfg.HealthAdminKey,
	}
	app.Get("/", hh.Root)
	app.Get("/reset", hh.Reset)
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		var errDB error
		db, errDB = database.Open(cfg.DatabaseURL)
		if errDB != nil {
			return nil, nil, nil, errDB
		}
		hh.DB = &gormDBPinger{db: db}
	}

	if db != nil {
		ah := &authhandler.Handlers{
			Service: &authsvc.Service{DB: db},
			Rdb:     rdb,
			Config:  sessionCfg,
		}
		authGroup := app.Group("/api/v1/auth")
		authGroup.Post("/register", ah.Register)
		authGroup.Post("/login", ah.Login)
		authGroup.Get("/me", ah.Me)
		authGroup.Delete("/logout", ah.Logout)

		lh := &listhandler.Handlers{Service: &listsvc.Service{DB: db}}
		lg := app.Group("/api/v1/listings")
		lg.Get("/browse", lh.Browse)
		lg.Get("/get-listing/:listing_id", lh.GetListingByID)
		lg.Post("/create-listing", middleware.RequireAuth(), lh.CreateListing)
		lg.Get("/my-listings", middleware.RequireAuth(), lh.MyListings)

		bh := &bidhandler.Handlers{Service: &bidsvc.Service{DB: db}}
		bg := app.Group("/api/v1/bids")
		bg.Get("/history/:listing_id", bh.History)
		bg.Post("/place-bid", middleware.RequireAuth(), bh.PlaceBid)
		bg.Post("/buy-now", middleware.RequireAuth(), bh.BuyNow)
		bg.Post("/relist", middleware.RequireAuth(), bh.Relist)
		bg.Get("/my-bids", middleware.RequireAuth(), bh.MyBids)
	}

	return app, db, rdb, nil
}
