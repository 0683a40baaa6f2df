package main

import (
	"context"
	"log"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/theoneeye/oneeye/cmd/oneeye/handlers"
	"github.com/theoneeye/oneeye/cmd/oneeye/routes"
	"github.com/theoneeye/oneeye/cmd/oneeye/stream"
	"github.com/theoneeye/oneeye/common/bootstrap"
	"github.com/theoneeye/oneeye/common/db"
	"github.com/theoneeye/oneeye/common/repository"
	"github.com/theoneeye/oneeye/common/server"
	"github.com/theoneeye/oneeye/engine"
	"github.com/theoneeye/oneeye/engine/condition"
	"github.com/theoneeye/oneeye/engine/node"
	"github.com/theoneeye/oneeye/engine/node/builtin"
	"github.com/theoneeye/oneeye/engine/pool"
)

func main() {
	ctx := context.Background()

	components, err := bootstrap.Setup(ctx, "oneeye",
		bootstrap.WithDBInitHook(func(database *db.DB) error {
			return database.Migrate(ctx)
		}),
	)
	if err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}
	defer components.Shutdown(ctx)

	cfg := components.Config
	logger := components.Logger

	// Node registry with the builtin catalog wired to the stores
	registry := node.NewRegistry()
	builtin.Register(registry, &builtin.Deps{
		Queues:     components.Queues,
		PubSub:     components.PubSub,
		Evaluator:  condition.NewEvaluator(),
		Logger:     logger,
		PopTimeout: cfg.Engine.QueuePopTimeout,
	})

	executor := pool.NewExecutor(&pool.Opts{
		Registry:         registry,
		Logger:           logger,
		WorkerPoolSize:   cfg.Engine.WorkerPoolSize,
		IsolatedPoolSize: cfg.Engine.IsolatedPoolSize,
	})

	eng := engine.New(&engine.Opts{
		Registry: registry,
		Queues:   components.Queues,
		Cache:    components.Cache,
		PubSub:   components.PubSub,
		Pool:     executor,
		Logger:   logger,
		Backoff:  cfg.Engine.IterationBackoff,
	})

	workflowRepo := repository.NewWorkflowRepository(components.DB)
	hub := stream.NewHub(eng, cfg.Engine.StreamInterval, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(echoMiddleware.Recover())

	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(503, map[string]any{"status": "unhealthy", "error": err.Error()})
		}
		return c.JSON(200, map[string]any{"status": "healthy"})
	})

	routes.RegisterWebhookRoutes(e, handlers.NewWebhookHandler(components.PubSub, logger))
	routes.RegisterWorkflowRoutes(e,
		handlers.NewWorkflowHandler(workflowRepo, eng, logger),
		handlers.NewStreamHandler(hub, logger),
	)

	srv := server.New("oneeye", cfg.Service.Port, e, logger)
	srv.OnShutdown(func(ctx context.Context) {
		eng.Shutdown(false)
	})

	if err := srv.Start(); err != nil {
		logger.Error("server exited", "error", err)
	}
}
