// Command forecaster implements the parkcast forecast engine.
//
// For every configured lot the forecaster periodically:
//  1. Collects the hourly occupancy-rate history from an adapter
//  2. Cleans and aligns it into one value per step
//  3. Fits additive Holt-Winters and extrapolates the next hours
//  4. Stores a snapshot with clamped rates, timestamps and free-slot estimates
//
// It serves an HTTP API on port 8081 (configurable):
//   - GET  /forecast/current?lot=<name> - latest snapshot of a lot
//   - POST /forecast                    - one-shot forecast of a posted series
//   - GET  /healthz                     - health check
//   - GET  /metrics                     - Prometheus metrics
//
// Usage:
//
//	forecaster \
//	  -lot=north-deck \
//	  -adapter=http \
//	  -total-slots=120 \
//	  -schedule='5 * * * *'
//
//	ADAPTER_URL=http://dashboard:5000/api/occupancy/hourly?lot=north-deck
//
// Environment variables mirror the flags (LOT, ADAPTER, SEASON_LENGTH, ALPHA,
// BETA, GAMMA, HORIZON, STEP, WINDOW, SCHEDULE, TOTAL_SLOTS, ROUNDING,
// LIVE_URL, STORAGE, MEMORY_TTL, REDIS_*, LOG_LEVEL, LOG_FORMAT). ADAPTER_* variables
// configure the adapter. A .env file (ENV_FILE) is loaded first.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/HatiCode/parkcast/cmd/forecaster/config"
	"github.com/HatiCode/parkcast/cmd/forecaster/logger"
	"github.com/HatiCode/parkcast/cmd/forecaster/metrics"
	"github.com/HatiCode/parkcast/cmd/forecaster/models"
	"github.com/HatiCode/parkcast/cmd/forecaster/router"
	"github.com/HatiCode/parkcast/pkg/adapters"
	"github.com/HatiCode/parkcast/pkg/features"
	"github.com/HatiCode/parkcast/pkg/httpx"
	"github.com/HatiCode/parkcast/pkg/storage"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	log := logger.New(cfg)
	slog.SetDefault(log)

	lots, err := config.LoadLots(cfg)
	if err != nil {
		log.Error("invalid lot configuration", "error", err)
		os.Exit(1)
	}

	log.Info("starting parkcast forecaster", "version", version, "lots", len(lots))

	store, err := buildStore(cfg, log)
	if err != nil {
		log.Error("failed to create store", "error", err)
		os.Exit(1)
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				log.Error("failed to close store", "error", err)
			}
		}()
	}

	forecasters := make([]*LotForecaster, 0, len(lots))
	for _, lc := range lots {
		f, err := buildLot(lc, store, log, metrics.New(lc.Name))
		if err != nil {
			log.Error("failed to set up lot", "lot", lc.Name, "error", err)
			os.Exit(1)
		}
		forecasters = append(forecasters, f)
	}

	mux := router.SetupRoutes(store, cfg.StaleAfter, log)
	httpServer := httpx.NewServer(cfg.Listen, mux, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for _, f := range forecasters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("forecast loop failed", "lot", f.Lot(), "error", err)
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			log.Error("server failed", "error", err)
		}
	}

	log.Info("shutting down")
	cancel()

	if err := httpServer.Stop(10 * time.Second); err != nil {
		log.Error("server shutdown failed", "error", err)
	}
	wg.Wait()

	log.Info("shutdown complete")
}

func buildStore(cfg *config.Config, log *slog.Logger) (storage.Store, error) {
	switch cfg.Storage {
	case "memory":
		if cfg.MemoryTTL < 0 {
			return nil, fmt.Errorf("memory TTL cannot be negative, got %v", cfg.MemoryTTL)
		}
		log.Info("using in-memory storage", "ttl", cfg.MemoryTTL)
		if cfg.MemoryTTL == 0 {
			return storage.NewMemoryStore(), nil
		}
		return storage.NewMemoryStoreWithTTL(cfg.MemoryTTL, 0), nil
	case "redis":
		log.Info("using redis storage", "addr", cfg.RedisAddr, "db", cfg.RedisDB, "ttl", cfg.RedisTTL)
		return storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
	default:
		return nil, fmt.Errorf("unknown storage backend %q (must be memory or redis)", cfg.Storage)
	}
}

// buildLot wires the adapter, model and live feed of one lot.
func buildLot(lc config.LotConfig, store storage.Store, log *slog.Logger, m *metrics.Metrics) (*LotForecaster, error) {
	adapter, err := buildAdapter(lc, log)
	if err != nil {
		return nil, err
	}

	model, err := models.New(lc, log)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	plan := Plan{
		Step:       lc.Step,
		Window:     lc.Window,
		Schedule:   lc.Schedule,
		TotalSlots: lc.TotalSlots,
		Rounding:   lc.Rounding,
	}
	if live := buildLive(lc); live != nil {
		plan.Live = live
	}

	return NewLotForecaster(lc.Name, adapter, model, features.NewBuilder(), store, plan, log, m), nil
}

func buildAdapter(lc config.LotConfig, log *slog.Logger) (adapters.Adapter, error) {
	adapter, err := adapters.New(lc.Adapter, lc.AdapterConfig, int(lc.Step.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("adapter: %w", err)
	}
	log.Info("configured adapter", "lot", lc.Name, "adapter", adapter.Name())
	return adapter, nil
}

// buildLive returns the slot status feed of lc, or nil when none is configured.
func buildLive(lc config.LotConfig) *adapters.SlotStatusAdapter {
	if lc.LiveURL == "" {
		return nil
	}
	return &adapters.SlotStatusAdapter{
		URL:        lc.LiveURL,
		HTTPClient: httpx.NewClient(10 * time.Second),
	}
}
