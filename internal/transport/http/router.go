package http

import (
	"github.com/booner/backend/internal/config"
	"github.com/booner/backend/internal/core/ports"
	"github.com/booner/backend/internal/core/services"
	"github.com/booner/backend/internal/infrastructure/logger"
	"github.com/booner/backend/internal/transport/http/handlers"
	httpmw "github.com/booner/backend/internal/transport/http/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	Logger     *logger.Logger
	Config     *config.Config
	Dispatcher ports.TaskDispatcher
	Tasks      ports.TaskSource
	Snapshots  ports.SnapshotSource
	Targets    *services.TargetRegistry
	Hub        handlers.StreamHub
}

func SetupRoutes(app *fiber.App, cfg RouterConfig) {
	taskHandler := handlers.NewTaskHandler(cfg.Dispatcher, cfg.Tasks, cfg.Logger.Named("tasks"))
	systemHandler := handlers.NewSystemHandler(cfg.Snapshots)
	targetHandler := handlers.NewTargetHandler(cfg.Targets, cfg.Targets, cfg.Config.Targets.File, cfg.Logger.Named("targets"))
	streamHandler := handlers.NewStreamHandler(cfg.Hub, cfg.Logger.Named("stream"))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Streaming routes
	ws := app.Group("/ws", httpmw.AdminAuth(cfg.Config), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})
	ws.Get("/system/status", websocket.New(streamHandler.Handle(services.TopicSystemStatus)))
	ws.Get("/tasks/updates", websocket.New(streamHandler.Handle(services.TopicTaskUpdates)))

	// API v1 routes
	api := app.Group("/api/v1", httpmw.AdminAuth(cfg.Config))

	tasks := api.Group("/tasks")
	tasks.Post("/", taskHandler.SubmitTask)
	tasks.Get("/", taskHandler.GetTasks)
	tasks.Get("/:id", taskHandler.GetTask)

	api.Get("/system/status", systemHandler.GetStatus)

	targets := api.Group("/targets")
	targets.Get("/", targetHandler.GetTargets)
	targets.Post("/reload", targetHandler.ReloadTargets)
}
