package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"pi-storefront/internal/common/config"
	"pi-storefront/internal/common/logger"
	"pi-storefront/internal/platform/redis"
	"pi-storefront/internal/platform/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	lg := logger.Init("pi-storefront-server", cfg.Debug, cfg.LogFormat)
	lg.Info().
		Bool("debug", cfg.Debug).
		Bool("gate_enabled", cfg.Gate.Enabled).
		Str("static_dir", cfg.Server.StaticDir).
		Msg("Starting storefront server")

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	checks := map[string]web.HealthChecker{}
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.Open(context.Background(), cfg)
		if err != nil {
			lg.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		checks["redis"] = redisClient
		lg.Info().Str("addr", cfg.Redis.Addr).Msg("Redis connection established")
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      web.NewRouter(cfg, lg, checks),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		lg.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		lg.Error().Err(err).Msg("Server forced to shutdown")
	}

	lg.Info().Msg("Server exited")
}
