package main

import (
	"context"
	"time"

	"Gin_postgres_redis_tool_crib/app"
	"Gin_postgres_redis_tool_crib/config"
	"Gin_postgres_redis_tool_crib/routes"

	"go.uber.org/zap"
)

func main() {
	config.LoadEnv()
	cfg := app.LoadConfig()

	logger := app.InitLogger(cfg)
	defer func() { _ = logger.Sync() }()

	application := app.MustNew(cfg)
	defer application.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	app.BootstrapAdmins(ctx, cfg, application.Repo)
	cancel()

	if err := application.StartJobs(); err != nil {
		zap.S().Fatalf("start jobs: %v", err)
	}

	r := application.Router
	routes.RegisterRoutes(r, application)

	zap.S().Infof("listening on :%s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		zap.S().Errorf("server stopped: %v", err)
	}
}
