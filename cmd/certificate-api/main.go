package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/certgen/internal/api"
	"github.com/edvin/certgen/internal/api/handler"
	"github.com/edvin/certgen/internal/app"
	"github.com/edvin/certgen/internal/config"
	"github.com/edvin/certgen/internal/core"
	"github.com/edvin/certgen/internal/db"
	"github.com/edvin/certgen/internal/logging"
	"github.com/edvin/certgen/internal/metrics"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	migrateDirFlag := flag.String("migrate-dir", "", "Migration files directory (default: embedded migrations)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("certificate-api"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	if *migrateFlag {
		if cfg.DatabaseURL == "" {
			logger.Fatal().Msg("-migrate requires DATABASE_URL")
		}
		logger.Info().Str("dir", *migrateDirFlag).Msg("running database migrations")
		if err := db.RunMigrations(cfg.DatabaseURL, *migrateDirFlag); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps, cleanup, err := app.Build(ctx, cfg, logger, reg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize backends")
	}
	defer cleanup()

	var (
		extra    []handler.Dependency
		shutdown func(context.Context) error
		local    *core.LocalDispatcher
	)
	switch cfg.BatchDispatcher {
	case config.DispatcherTemporal:
		tc, err := temporalclient.Dial(temporalclient.Options{HostPort: cfg.TemporalAddress})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to temporal")
		}
		defer tc.Close()
		deps.Dispatcher = core.NewTemporalDispatcher(tc, cfg.TemporalTaskQueue)
		extra = append(extra, handler.Dependency{
			Name: "temporal",
			Kind: "temporal",
			Check: func(ctx context.Context) error {
				_, err := tc.CheckHealth(ctx, &temporalclient.CheckHealthRequest{})
				return err
			},
		})
	default:
		local = core.NewLocalDispatcher(cfg.BatchWorkers, cfg.BatchQueueSize, logger)
		deps.Dispatcher = local
		shutdown = local.Shutdown
	}

	services := core.NewServices(deps, cfg)
	if local != nil {
		local.Start(services.Batch)
	}

	srv := api.NewServer(logger, services, deps, reg, cfg, extra...)

	httpServer := &http.Server{
		Addr:              cfg.HTTPListenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Synchronous batches render up to 100 certificates in one request.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Str("dispatcher", cfg.BatchDispatcher).Msg("starting certificate API server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	var metricsSrv *http.Server
	if cfg.MetricsListenAddr != "" {
		metricsSrv = metrics.NewServer(cfg.MetricsListenAddr, reg)
		go func() {
			logger.Info().Str("addr", cfg.MetricsListenAddr).Msg("starting metrics server")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if shutdown != nil {
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("batch workers did not drain")
		}
	}
}
