package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/ya-paperswithcode/agentsearch/pkg/config"
	"github.com/ya-paperswithcode/agentsearch/pkg/dependency_container"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache/channel"
	infraLogger "github.com/ya-paperswithcode/agentsearch/pkg/infra/logger"
	"github.com/ya-paperswithcode/agentsearch/pkg/server"
	"github.com/ya-paperswithcode/agentsearch/pkg/server/router"
)

// @title Papers With Code Agent Search API
// @version 1.0
// @description Multi-layer semantic search over papers and datasets.
// @BasePath /
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	logger := infraLogger.NewLogger("agentsearch")

	// Load configuration
	if err := config.Load(configPath()); err != nil {
		logger.WithError(err).Warn("using default configuration")
	}
	cfg := config.GetConfig()

	container, err := dependency_container.NewContainer(ctx, dependency_container.ContainerDI{
		Cfg:    cfg,
		Logger: logger,
	})
	if err != nil {
		logger.Fatalf("Failed to initialize container: %v", err)
	}

	if container.RedisListener != nil {
		go func() {
			logger.Info("starting listening redis events...")
			container.RedisListener.Listen(ctx, channel.IndexEvents)
		}()
	}

	srv := server.NewSearchServer(server.SearchServerDI{
		Config: cfg,
		Logger: logger,
		Routers: []router.ServerRouter{
			router.NewSearchRouter(router.SearchRouterDI{
				MiddlewareTransport:      container.MiddlewareTransport,
				AdminMiddlewareTransport: container.AdminMiddlewares,
				HandlerTransport:         container.HandlerTransport,
				SwaggerURL:               cfg.Server.SwaggerURL,
			}),
		},
	})

	go func() {
		if err := srv.Run(); err != nil {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	fmt.Println("shutting down server...")
	cancel()
	if err := srv.Shutdown(); err != nil {
		fmt.Println("error shutting down server:", err)
	}
	if err := container.Close(); err != nil {
		fmt.Println("error releasing resources:", err)
		os.Exit(1)
	}
	fmt.Println("server gracefully stopped")
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "./config"
}
