package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulsestack/pulse-insights/internal/api"
	"github.com/pulsestack/pulse-insights/internal/cache"
	"github.com/pulsestack/pulse-insights/internal/config"
	"github.com/pulsestack/pulse-insights/internal/engine"
	"github.com/pulsestack/pulse-insights/internal/metrics"
	"github.com/pulsestack/pulse-insights/internal/patterns"
	"github.com/pulsestack/pulse-insights/internal/repo"
	"github.com/pulsestack/pulse-insights/internal/services"
	"github.com/pulsestack/pulse-insights/internal/utils"
	memcache "github.com/pulsestack/pulse-insights/pkg/cache"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting pulse-insights", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	// Valkey when configured, an in-process TTL cache otherwise. Previous
	// health scores must survive between computations for trends to work.
	var cacheProvider cache.Provider = memcache.NewMemory()
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable, falling back to in-process cache", slog.Any("error", err))
		} else {
			cacheProvider = provider
		}
	}
	defer cacheProvider.Close()

	storeClient := repo.NewEventStoreClient(
		cfg.Clients.Store.BaseURL,
		cfg.Clients.Store.EventsPath,
		cfg.Clients.Store.PaymentsPath,
		cfg.Clients.Store.Timeout,
	)

	snapshotRepo := repo.NewSnapshotRepo(
		cfg.Snapshots.Endpoint,
		cfg.Snapshots.APIKey,
		cfg.Snapshots.Timeout,
		cacheProvider,
		cfg.Snapshots.ScoreTTL,
		cfg.Snapshots.SnapshotTTL,
	)

	ruleEngine, err := engine.NewRuleEngine(cfg.Rules.Path, logger)
	if err != nil {
		logger.Error("failed to load rule pack", slog.Any("error", err))
		os.Exit(1)
	}

	pipeline := engine.NewPipeline(logger, storeClient, snapshotRepo, engineParams(cfg), ruleEngine)

	miner := patterns.NewMiner(logger, nil)
	insightsService := services.NewInsightsService(logger, pipeline, snapshotRepo, miner)

	server := api.NewServer(logger, cfg.Server.Address, insightsService)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", slog.Any("error", err))
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("pulse-insights stopped")
}

func engineParams(cfg *config.Config) engine.Params {
	directions := make(map[string]engine.Direction, len(cfg.Analytics.MetricDirections))
	for metric, direction := range cfg.Analytics.MetricDirections {
		directions[metric] = engine.Direction(direction)
	}
	return engine.Params{
		WeekWindowDays:       cfg.Analytics.WeekWindowDays,
		MaxPeriods:           cfg.Analytics.MaxPeriods,
		BaselineWindowDays:   cfg.Analytics.BaselineWindowDays,
		WarnThresholdPct:     cfg.Analytics.WarnThresholdPct,
		CriticalThresholdPct: cfg.Analytics.CriticalThresholdPct,
		TrendEpsilonPct:      cfg.Analytics.TrendEpsilonPct,
		ScoreCutoffs: engine.ScoreCutoffs{
			Critical: cfg.Analytics.ScoreCutoffs.Critical,
			High:     cfg.Analytics.ScoreCutoffs.High,
			Medium:   cfg.Analytics.ScoreCutoffs.Medium,
		},
		MetricDirections: directions,
	}
}
