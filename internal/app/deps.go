// Package app assembles the backends shared by the API server and the batch
// worker.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/edvin/certgen/internal/cache"
	"github.com/edvin/certgen/internal/config"
	"github.com/edvin/certgen/internal/core"
	"github.com/edvin/certgen/internal/db"
	"github.com/edvin/certgen/internal/metrics"
	"github.com/edvin/certgen/internal/render"
	"github.com/edvin/certgen/internal/storage"
)

// Build connects storage, the cache, the renderer and, when DATABASE_URL is
// set, the record store. The returned func releases what was opened. The
// dispatcher is left for the caller to choose.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger, reg prometheus.Registerer) (core.Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	rec := metrics.NewRecorder(reg)

	backend, err := storage.New(ctx, cfg)
	if err != nil {
		return core.Dependencies{}, cleanup, fmt.Errorf("storage: %w", err)
	}
	store := storage.WithRetry(backend, storage.RetryOptions{
		MaxRetries:     cfg.StorageMaxRetries,
		Base:           cfg.StorageRetryBase,
		AttemptTimeout: cfg.StorageTimeout,
		OnRetry: func(op string, attempt int, err error) {
			rec.StorageRetry(op)
			logger.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("retrying storage operation")
		},
	})
	logger.Info().Str("backend", backend.Name()).Msg("storage configured")

	c, err := cache.New(ctx, cfg)
	if err != nil {
		return core.Dependencies{}, cleanup, fmt.Errorf("cache: %w", err)
	}
	if closer, ok := c.(interface{ Close() error }); ok {
		closers = append(closers, func() { _ = closer.Close() })
	}
	logger.Info().Str("backend", c.Name()).Msg("cache configured")

	theme := render.DefaultTheme()
	if cfg.ThemeFile != "" {
		if theme, err = render.LoadTheme(cfg.ThemeFile); err != nil {
			return core.Dependencies{}, cleanup, err
		}
	}
	if theme.VerifyURL == "" {
		theme.VerifyURL = cfg.VerifyURL
	}
	renderer, err := render.NewPDF(theme)
	if err != nil {
		return core.Dependencies{}, cleanup, fmt.Errorf("renderer: %w", err)
	}

	deps := core.Dependencies{
		Storage:  store,
		Cache:    c,
		Renderer: renderer,
		Metrics:  rec,
		Logger:   logger,
	}

	pool, err := db.NewRecordPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return core.Dependencies{}, cleanup, fmt.Errorf("record store: %w", err)
	}
	if pool != nil {
		closers = append(closers, pool.Close)
		metrics.RegisterPgxPoolMetrics(reg, pool)
		deps.Records = core.NewPostgresRecordStore(pool)
		logger.Info().Msg("record store enabled")
	}

	return deps, cleanup, nil
}
