package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"walkscore_service/internal/api"
	"walkscore_service/internal/config"
	"walkscore_service/internal/core"
	"walkscore_service/internal/domain/repository"
	"walkscore_service/internal/infrastructure/tileclient"
	"walkscore_service/internal/tilecount"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", os.Getenv("WALKSCORE_CONFIG"), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Инициализация репозиториев
	overpassRepo := repository.NewOverpassRepository(
		cfg.Overpass.URL,
		cfg.Overpass.Timeout,
		cfg.Overpass.MaxParallel,
		logger.Named("overpass"),
	)

	var (
		hazards  api.HazardLookup
		recorder core.ScoreRecorder
	)
	if cfg.Postgres.URL != "" {
		db, err := repository.OpenPostgres(ctx, cfg.Postgres.URL)
		if err != nil {
			logger.Fatal("postgres connect failed", zap.Error(err))
		}
		defer db.Close()

		if cfg.Postgres.Migrate {
			if err := repository.Migrate(ctx, db); err != nil {
				logger.Fatal("migrations failed", zap.Error(err))
			}
		}

		hazards = repository.NewPostGISRepository(db)
		if cfg.Scores.Record {
			recorder = repository.NewPostgresScoreRecorder(db)
		}
	} else {
		logger.Info("postgres.url not set, hazard lookups and score recording disabled")
	}

	// Сервис оценки пешеходной доступности
	cache := core.NewResultCache(cfg.Cache.Size, cfg.Cache.TTL, core.CoordinateKey(cfg.Cache.Precision))
	walkability := core.NewWalkabilityService(overpassRepo, cache, recorder, logger.Named("walkability"))

	counter := tilecount.NewCounter(logger.Named("tilecount"), cfg.Tiles.StrictFilters)

	var tiles tilecount.TileFetcher
	if cfg.Tiles.URLTemplate != "" {
		tiles = tileclient.NewHTTPTileClient(cfg.Tiles.URLTemplate, cfg.Tiles.Timeout)
	}

	handler := api.NewHandler(walkability, hazards, counter, tiles, logger.Named("api"))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("listening", zap.String("addr", cfg.HTTPAddr))

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
