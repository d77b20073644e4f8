package core

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/certgen/internal/cache"
	"github.com/edvin/certgen/internal/config"
	"github.com/edvin/certgen/internal/metrics"
	"github.com/edvin/certgen/internal/render"
	"github.com/edvin/certgen/internal/storage"
)

// Dependencies are the backends the services run on. Records and Dispatcher
// are optional.
type Dependencies struct {
	Storage    storage.Backend
	Cache      cache.Cache
	Renderer   render.Renderer
	Records    RecordStore
	Dispatcher Dispatcher
	Metrics    *metrics.Recorder
	Logger     zerolog.Logger
}

type Services struct {
	Certificate *CertificateService
	Batch       *BatchService
}

func NewServices(deps Dependencies, cfg *config.Config) *Services {
	certs := NewCertificateService(deps.Storage, deps.Cache, deps.Renderer, Options{
		CacheTTL:       cfg.CacheTTL,
		CacheTimeout:   cfg.CacheTimeout,
		StorageTimeout: StorageDeadline(cfg),
		PresignExpiry:  cfg.PresignExpiry,
		VerifyURL:      cfg.VerifyURL,
		ServiceName:    cfg.ServiceName,
	}, deps.Logger, deps.Metrics)
	if deps.Records != nil {
		certs.WithRecordStore(deps.Records)
	}

	batch := NewBatchService(certs, deps.Cache, deps.Dispatcher, BatchOptions{
		BatchTTL:     cfg.BatchTTL,
		Parallelism:  cfg.BatchItemParallelism,
		CacheTimeout: cfg.CacheTimeout,
	}, deps.Logger, deps.Metrics)

	return &Services{Certificate: certs, Batch: batch}
}

// StorageDeadline bounds one storage operation across all of its attempts:
// every attempt may use the full per-attempt timeout, plus room for backoff.
func StorageDeadline(cfg *config.Config) time.Duration {
	if cfg.StorageTimeout <= 0 {
		return 0
	}
	attempts := time.Duration(cfg.StorageMaxRetries + 1)
	backoff := cfg.StorageRetryBase << max(cfg.StorageMaxRetries, 0)
	return cfg.StorageTimeout*attempts + backoff
}
