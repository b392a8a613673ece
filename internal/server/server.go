package server

import (
	"time"

	"runstr-engine/internal/archive"
	"runstr-engine/internal/auth"
	"runstr-engine/internal/config"
	"runstr-engine/internal/pipeline"
	"runstr-engine/internal/sensor"
	"runstr-engine/internal/session"
	"runstr-engine/internal/store"
	"runstr-engine/internal/stream"
	"runstr-engine/internal/tracking"
	"runstr-engine/internal/watchdog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App        *fiber.App
	Cfg        config.Config
	DB         *pgxpool.Pool
	Redis      *redis.Client
	Stream     *stream.Hub
	Controller *session.Controller
}

// NewServer assembles the engine: the Redis-backed session store, the
// session controller with its pipeline and watchdog, and the routes.
// The Postgres pool is optional; without it the history routes report
// the archive as unavailable but live tracking is unaffected.
func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	var arch *archive.Service
	if db != nil {
		arch = archive.NewService(db)
	}

	platform := pipeline.PlatformStrict
	if cfg.SensorProfile == string(pipeline.PlatformLoose) {
		platform = pipeline.PlatformLoose
	}

	ctrl := session.New(store.New(redisClient), sensor.NewStreamProvider(), arch, session.Config{
		Platform: platform,
		Watchdog: watchdog.Config{
			Period:      time.Duration(cfg.WatchdogPeriodSec) * time.Second,
			MaxGap:      time.Duration(cfg.WatchdogMaxGapSec) * time.Second,
			MaxRestarts: cfg.WatchdogMaxRestarts,
		},
		FlushEvery: time.Duration(cfg.FlushSeconds) * time.Second,
		FlushAt:    cfg.FlushPoints,
	})

	hub := stream.NewHub(redisClient)
	ctrl.Bridge().SetBroadcaster(hub)

	s := &Server{
		App:        app,
		Cfg:        cfg,
		DB:         db,
		Redis:      redisClient,
		Stream:     hub,
		Controller: ctrl,
	}

	registerRoutes(s, arch)
	return s
}

func registerRoutes(s *Server, arch *archive.Service) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	auth.RegisterRoutes(s.App.Group("/auth"), s.Cfg.JWTSecret)
	tracking.RegisterRoutes(s.App.Group("/tracking"), s.Controller, arch, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
