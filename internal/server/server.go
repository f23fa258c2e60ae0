package server

import (
	"log"

	"memcontext-be/internal/bootstrap"
	"memcontext-be/internal/config"
	"memcontext-be/internal/pkg/serverutils"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	app       *fiber.App
	cfg       *config.Config
	container *bootstrap.Container
}

func New(cfg *config.Config, container *bootstrap.Container) *Server {
	app := fiber.New(fiber.Config{
		BodyLimit:    10 * 1024 * 1024, // 10MB
		ErrorHandler: serverutils.WriteError,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.CorsAllowedOrigins,
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Session-ID",
		AllowMethods:     "GET, POST, OPTIONS",
		ExposeHeaders:    "Content-Length, Content-Type, X-Session-ID",
	}))

	if cfg.App.OtelEnabled {
		app.Use(otelfiber.Middleware())
	}

	app.Use(serverutils.ErrorHandlerMiddleware())

	registerRoutes(app, container)

	return &Server{
		app:       app,
		cfg:       cfg,
		container: container,
	}
}

func (s *Server) GetApp() *fiber.App {
	return s.app
}

func (s *Server) Run() error {
	log.Printf("✅ Server is running on http://localhost:%s", s.cfg.App.Port)
	return s.app.Listen(":" + s.cfg.App.Port)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func registerRoutes(app *fiber.App, c *bootstrap.Container) {
	app.Get("/healthz", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"status":   "ok",
			"sessions": c.Registry.Len(),
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(c.Metrics.Registry, promhttp.HandlerOpts{})))

	api := app.Group("/api")

	c.MemoryController.RegisterRoutes(api)
	c.ChatController.RegisterRoutes(api)
	c.IngestController.RegisterRoutes(api)

	c.NotificationHandler.RegisterRoutes(api)
}
