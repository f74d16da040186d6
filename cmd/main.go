package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shortvid/config"
	croncache "shortvid/internal/delivery/cron"
	"shortvid/internal/delivery/httpapi"
	"shortvid/internal/domain"
	"shortvid/internal/infrastructure/browser"
	"shortvid/internal/infrastructure/douyin"
	"shortvid/internal/infrastructure/facebook"
	infrastructure "shortvid/internal/infrastructure/http"
	"shortvid/internal/infrastructure/tiktok"
	"shortvid/internal/infrastructure/tikwm"
	"shortvid/internal/logger"
	"shortvid/internal/repository/sqlite"
	"shortvid/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if _, err := logger.Initialize(cfg); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Close()

	logger.Info().Println("Starting shortvid server...")

	db, err := sqlite.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Error().Printf("failed to open database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	cache := sqlite.NewCacheRepository(db)
	httpClient := infrastructure.NewHTTPClient(cfg)

	mirror := tikwm.NewClient(cfg, httpClient)
	probe := browser.NewProbe(cfg)

	resolver := usecase.NewResolver(cache, map[domain.Platform]usecase.PlatformExtractor{
		domain.PlatformDouyin:   douyin.NewService(cfg, httpClient, probe, mirror),
		domain.PlatformTikTok:   tiktok.NewService(mirror),
		domain.PlatformFacebook: facebook.NewService(cfg, httpClient),
	})

	server := httpapi.NewServer(cfg, resolver, cache, httpClient)
	if err := server.Start(); err != nil {
		logger.Error().Printf("failed to start http server: %v", err)
		os.Exit(1)
	}

	scheduler := croncache.NewScheduler(cfg, cache)
	if err := scheduler.Start(); err != nil {
		logger.Error().Printf("failed to start scheduler: %v", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Println("Shutting down...")

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Printf("http server shutdown error: %v", err)
	}

	logger.Info().Println("Server stopped")
}
