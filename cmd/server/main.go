package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/booner/backend/internal/config"
	"github.com/booner/backend/internal/core/ports"
	"github.com/booner/backend/internal/core/services"
	"github.com/booner/backend/internal/infrastructure/db"
	"github.com/booner/backend/internal/infrastructure/hoststats"
	"github.com/booner/backend/internal/infrastructure/logger"
	"github.com/booner/backend/internal/infrastructure/messaging"
	"github.com/booner/backend/internal/infrastructure/remote"
	transporthttp "github.com/booner/backend/internal/transport/http"
	httpmw "github.com/booner/backend/internal/transport/http/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	configPath := os.Getenv("BOONER_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "../config/config.yaml"
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Optional persistence
	var database *gorm.DB
	var taskRepo ports.TaskRepository
	if cfg.Database.Enabled {
		database, err = db.NewPostgresConnection(cfg.Database)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		log.Info("database connection established")

		if err := db.RunMigrations(database); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		log.Info("database migrations completed")
		taskRepo = db.NewTaskRepository(database, log.Named("task_repo"))
	}

	targetList, err := services.LoadTargetsFile(cfg.Targets.File)
	if err != nil {
		log.Fatalf("failed to load deployment targets: %v", err)
	}
	targets, err := services.NewTargetRegistry(targetList, log.Named("targets"))
	if err != nil {
		log.Fatalf("invalid deployment targets: %v", err)
	}
	log.Infow("targets_loaded", "file", cfg.Targets.File, "count", len(targetList))

	registry := services.NewTaskRegistry(services.TaskRegistryConfig{
		Targets:    targets,
		Repository: taskRepo,
		Logger:     log.Named("task_registry"),
	})
	if taskRepo != nil {
		loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		records, err := taskRepo.GetAll(loadCtx)
		cancel()
		if err != nil {
			log.Fatalf("failed to load persisted tasks: %v", err)
		}
		log.Infow("tasks_restored", "count", registry.Restore(records))
	}

	hub := services.NewBroadcastHub(services.BroadcastHubConfig{
		Tasks:      registry,
		BufferSize: cfg.Hub.BufferSize,
		Logger:     log.Named("hub"),
	})

	executor, prober := buildRemote(cfg, log)

	dispatcher := services.NewDispatcher(services.DispatcherConfig{
		Targets:          targets,
		Registry:         registry,
		Executor:         executor,
		Publisher:        hub,
		Logger:           log.Named("dispatcher"),
		ExecutionTimeout: cfg.Dispatcher.ExecutionTimeout,
	})

	aggregator := services.NewStatusAggregator(services.StatusAggregatorConfig{
		Targets:      targets,
		Host:         hoststats.NewCollector(cfg.Aggregator.DiskPath),
		Prober:       prober,
		Publisher:    hub,
		Logger:       log.Named("aggregator"),
		Interval:     cfg.Aggregator.Interval,
		ProbeTimeout: cfg.Aggregator.ProbeTimeout,
		MaxParallel:  cfg.Aggregator.MaxParallel,
	})
	hub.SetSnapshotSource(aggregator)
	go aggregator.Run(ctx)

	if cfg.Dispatcher.TaskRetention > 0 {
		go registry.RunRetention(ctx, cfg.Dispatcher.PruneInterval, cfg.Dispatcher.TaskRetention)
	}

	bridgeDone := make(chan struct{})
	if cfg.NATS.Enabled {
		bridge, err := messaging.NewNATSBridge(cfg.NATS.URL, cfg.NATS.SubjectPrefix, hub, log.Named("nats"))
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		log.Infow("nats_connected", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
		go func() {
			defer close(bridgeDone)
			bridge.Run(ctx)
		}()
	} else {
		close(bridgeDone)
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		ErrorHandler:          globalErrorHandler(log),
		DisableStartupMessage: true,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	allowedOrigins := "http://localhost:3000"
	if len(cfg.Auth.AllowedOrigins) > 0 {
		allowedOrigins = strings.Join(cfg.Auth.AllowedOrigins, ",")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Admin-Token",
		AllowMethods: "GET, POST, HEAD",
	}))

	app.Use(httpmw.RequestID(cfg.Features.RequestIDHeader))
	if cfg.Features.EnableRequestLogging {
		app.Use(httpmw.AccessLog(log.Named("http")))
	}

	transporthttp.SetupRoutes(app, transporthttp.RouterConfig{
		Logger:     log,
		Config:     cfg,
		Dispatcher: dispatcher,
		Tasks:      registry,
		Snapshots:  aggregator,
		Targets:    targets,
		Hub:        hub,
	})

	go func() {
		if err := app.Listen(cfg.Server.Address()); err != nil {
			log.Fatalf("server failed to start: %v", err)
		}
	}()
	log.Infof("server started on %s (executor: %s)", cfg.Server.Address(), cfg.Executor.Mode)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Errorf("server forced to shutdown: %v", err)
	}

	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		log.Warnf("dispatcher did not drain: %v", err)
	}

	stop()
	hub.Close()
	<-bridgeDone

	if database != nil {
		if err := db.Close(database); err != nil {
			log.Errorf("failed to close database connection: %v", err)
		}
	}

	log.Info("server exited gracefully")
}

func buildRemote(cfg *config.Config, log *logger.Logger) (ports.Executor, ports.TargetProber) {
	if cfg.Executor.Mode == "dry_run" {
		log.Warn("executor in dry_run mode: no commands will reach the targets")
		return remote.NewDryRunExecutor(cfg.Executor.DryRunDelay, log.Named("executor")), remote.TCPProber{}
	}

	executor := remote.NewSSHExecutor(remote.SSHExecutorConfig{
		EncryptionKey:  cfg.Security.EncryptionKey,
		ScriptsDir:     cfg.Executor.ScriptsDir,
		ConnectTimeout: cfg.Executor.ConnectTimeout,
		MaxRetries:     cfg.Executor.MaxRetries,
		Logger:         log.Named("executor"),
	})
	return executor, remote.NewSSHProber(cfg.Security.EncryptionKey, cfg.Executor.ConnectTimeout)
}

func globalErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}

		if code < fiber.StatusInternalServerError {
			log.Warnw("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
				"request_id", httpmw.GetRequestID(c),
			)
		} else {
			log.Errorw("request error",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
				"request_id", httpmw.GetRequestID(c),
			)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
