package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperspot/params"
	"github.com/uhyunpark/hyperspot/pkg/api"
	"github.com/uhyunpark/hyperspot/pkg/app/core"
	"github.com/uhyunpark/hyperspot/pkg/app/core/market"
	"github.com/uhyunpark/hyperspot/pkg/app/core/matching"
	"github.com/uhyunpark/hyperspot/pkg/app/exchange"
	"github.com/uhyunpark/hyperspot/pkg/metrics"
	"github.com/uhyunpark/hyperspot/pkg/storage"
	"github.com/uhyunpark/hyperspot/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	level, err := util.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("log level: %v", err)
	}
	var logger *zap.Logger
	if cfg.Log.File != "" {
		logger, err = util.NewLoggerWithFile(cfg.Log.File, level)
	} else {
		logger, err = util.NewLogger(level)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "level", level.String(), "log_file", cfg.Log.File)

	if err := run(cfg, sugar); err != nil {
		sugar.Errorw("exchange_failed", "err", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg params.Config, sugar *zap.SugaredLogger) error {
	// ---- Storage ----
	var store *storage.PebbleStore
	var err error
	if cfg.Storage.InMemory {
		store, err = storage.NewInMemoryPebbleStore()
	} else {
		store, err = storage.NewPebbleStore(cfg.Storage.DBPath)
	}
	if err != nil {
		return err
	}
	defer store.Close()
	sugar.Infow("storage_opened", "path", cfg.Storage.DBPath, "in_memory", cfg.Storage.InMemory)

	// ---- Instruments ----
	registry, err := buildRegistry(cfg.Markets)
	if err != nil {
		return err
	}

	// ---- Metrics ----
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(promReg)
	if err != nil {
		return err
	}

	// ---- Exchange ----
	policy, err := matching.ParsePricePolicy(cfg.Engine.PricePolicy)
	if err != nil {
		return err
	}
	ex, err := exchange.New(exchange.Config{
		PricePolicy: policy,
		QueueDepth:  cfg.Engine.QueueDepth,
		Metrics:     m,
	}, registry, store, sugar)
	if err != nil {
		return err
	}
	defer ex.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- API Server ----
	apiServer := api.NewServer(ex, api.Options{
		AllowedOrigins: cfg.API.AllowedOrigins,
		Gatherer:       promReg,
		Logger:         sugar,
	})
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- apiServer.Start(cfg.API.Addr)
	}()

	// Progress logging loop
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sugar.Infow("shutdown_requested")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
			defer cancel()
			return apiServer.Shutdown(shutdownCtx)
		case err := <-serveErr:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ticker.C:
			for _, inst := range ex.Instruments() {
				snap, err := ex.BookSnapshot(inst.ID)
				if err != nil {
					continue
				}
				sugar.Infow("book_status",
					"instrument", inst.ID,
					"bids", len(snap.Bids),
					"asks", len(snap.Asks))
			}
		}
	}
}

// buildRegistry registers "<coin>-<quote>" for every configured coin
func buildRegistry(cfg params.Markets) (*market.Registry, error) {
	registry := market.NewRegistry()
	for _, coin := range cfg.Coins {
		inst, err := market.NewInstrument(coin+"-"+cfg.QuoteAsset, coin, cfg.QuoteAsset, cfg.BaseDecimals, cfg.QuoteDecimals)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(inst); err != nil {
			return nil, err
		}
	}
	if registry.Count() == 0 {
		return nil, fmt.Errorf("%w: no instruments configured", core.ErrValidation)
	}
	return registry, nil
}
