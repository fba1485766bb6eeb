package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/yourorg/rental-api/internal/app"
	"github.com/yourorg/rental-api/internal/config"
	"github.com/yourorg/rental-api/internal/logger"
	"github.com/yourorg/rental-api/internal/warmer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if len(cfg.Warmer.Cities) == 0 {
		zl.Fatal("WARMER_CITIES must be provided")
	}
	if cfg.Redis.Addr == "" {
		zl.Warn("REDIS_ADDR is not set, warmed results will not be cached")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := app.Wire(rootCtx, cfg, zl)
	if err != nil {
		zl.Fatal("startup failed", zap.Error(err))
	}
	defer services.Close()

	job := &warmer.Job{
		Search: services.Search,
		Logger: zl.Named("warmer"),
		Config: warmer.Config{
			Cities:         cfg.Warmer.Cities,
			Interval:       cfg.Warmer.Interval,
			Lead:           cfg.Warmer.Lead,
			TripHours:      cfg.Warmer.TripHours,
			RequestTimeout: cfg.MyChoize.Timeout * 2,
		},
	}

	if cfg.Warmer.RunOnce {
		if err := job.RunOnce(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			zl.Error("warmer run failed", zap.Error(err))
			services.Close()
			os.Exit(1)
		}
		return
	}

	if err := job.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		zl.Error("warmer stopped with error", zap.Error(err))
	}
}
