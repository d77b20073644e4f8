// Package cache holds short-lived certificate and batch status entries.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/edvin/certgen/internal/config"
)

// Cache is a TTL key-value store. Get reports a miss with ok=false and a nil
// error; an error means the cache itself is unavailable.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Name() string
}

// CertificateKey is the cache key of a certificate record.
func CertificateKey(id string) string { return "cert:" + id }

// BatchKey is the cache key of a batch header.
func BatchKey(id string) string { return batchPrefix + id }

// BatchItemKey is the cache key of one item of a batch.
func BatchItemKey(id string, index int) string {
	return batchPrefix + id + ":item:" + strconv.Itoa(index)
}

const batchPrefix = "batch:"

// DefaultMemorySize bounds each table of the in-process cache: certificate
// records, and batch headers with their items. A batch of n items takes
// n+1 batch entries, so at most 99 full-size batches stay observable at once;
// deployments with more concurrent batches need Redis.
const DefaultMemorySize = 10000

// New returns a Redis cache when cfg.RedisURL is set, otherwise an in-process one.
func New(ctx context.Context, cfg *config.Config) (Cache, error) {
	if cfg.RedisURL == "" {
		return NewMemory(DefaultMemorySize), nil
	}
	client, err := Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return NewRedis(client), nil
}
