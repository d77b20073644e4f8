package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backend selectors.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Batch dispatcher selectors.
const (
	DispatcherLocal    = "local"
	DispatcherTemporal = "temporal"
)

type Config struct {
	ServiceName       string
	Environment       string
	LogLevel          string
	HTTPListenAddr    string
	MetricsListenAddr string
	APIPrefix         string

	// Storage
	StorageBackend    string
	LocalStoragePath  string
	S3BucketName      string
	AWSRegion         string
	AWSAccessKeyID    string
	AWSSecretKey      string
	S3EndpointURL     string
	S3UsePathStyle    bool
	PresignExpiry     time.Duration
	StorageTimeout    time.Duration
	StorageMaxRetries int
	StorageRetryBase  time.Duration

	// Cache. An empty RedisURL selects the in-process cache.
	RedisURL     string
	CacheTTL     time.Duration
	BatchTTL     time.Duration
	CacheTimeout time.Duration

	// Batch processing
	BatchDispatcher      string
	BatchWorkers         int
	BatchQueueSize       int
	BatchItemParallelism int
	TemporalAddress      string
	TemporalTaskQueue    string

	// DatabaseURL enables the durable certificate record store when set.
	DatabaseURL string

	// Rendering
	ThemeFile string
	VerifyURL string

	// HTTP surface
	APIKey            string
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitPeriod   time.Duration
	CORSOrigins       []string
}

// Load reads configuration from the environment. A .env file (ENV_FILE,
// default ".env") is loaded first when present; variables already set in the
// process environment take precedence over the file.
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	environment := getEnv("ENVIRONMENT", "development")
	defaultVerifyURL := "https://tracks.microlearn.university/verify"
	if environment == "development" {
		defaultVerifyURL = "http://localhost:8001/verify"
	}

	var errs []string
	durationVar := func(key string, fallback time.Duration) time.Duration {
		d, err := getDuration(key, fallback)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return d
	}
	intVar := func(key string, fallback int) int {
		n, err := getInt(key, fallback)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return n
	}

	// REDIS_TTL (seconds) is honoured for compatibility; CACHE_TTL wins.
	cacheTTL := time.Duration(intVar("REDIS_TTL", 3600)) * time.Second
	cacheTTL = durationVar("CACHE_TTL", cacheTTL)

	cfg := &Config{
		ServiceName:       getEnv("SERVICE_NAME", "certificate-generation-service"),
		Environment:       environment,
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		HTTPListenAddr:    getEnv("HTTP_LISTEN_ADDR", ":8001"),
		MetricsListenAddr: getEnv("METRICS_LISTEN_ADDR", ""),
		APIPrefix:         getEnv("API_PREFIX", "/api/v1"),

		StorageBackend:    strings.ToLower(getEnv("STORAGE_BACKEND", StorageLocal)),
		LocalStoragePath:  getEnv("LOCAL_STORAGE_PATH", "/tmp/certificates"),
		S3BucketName:      getEnv("S3_BUCKET_NAME", ""),
		AWSRegion:         getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:    getSecret("AWS_ACCESS_KEY_ID"),
		AWSSecretKey:      getSecret("AWS_SECRET_ACCESS_KEY"),
		S3EndpointURL:     getEnv("S3_ENDPOINT_URL", ""),
		S3UsePathStyle:    getBool("S3_USE_PATH_STYLE", false),
		PresignExpiry:     durationVar("PRESIGN_EXPIRY", time.Hour),
		StorageTimeout:    durationVar("STORAGE_TIMEOUT", 10*time.Second),
		StorageMaxRetries: intVar("STORAGE_MAX_RETRIES", 2),
		StorageRetryBase:  durationVar("STORAGE_RETRY_BASE", 200*time.Millisecond),

		RedisURL:     getSecret("REDIS_URL"),
		CacheTTL:     cacheTTL,
		BatchTTL:     durationVar("BATCH_TTL", 24*time.Hour),
		CacheTimeout: durationVar("CACHE_TIMEOUT", 2*time.Second),

		BatchDispatcher:      strings.ToLower(getEnv("BATCH_DISPATCHER", DispatcherLocal)),
		BatchWorkers:         intVar("BATCH_WORKERS", 4),
		BatchQueueSize:       intVar("BATCH_QUEUE_SIZE", 64),
		BatchItemParallelism: intVar("BATCH_ITEM_PARALLELISM", 2),
		TemporalAddress:      getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalTaskQueue:    getEnv("TEMPORAL_TASK_QUEUE", "certificate-batches"),

		DatabaseURL: getSecret("DATABASE_URL"),

		ThemeFile: getEnv("THEME_FILE", ""),
		VerifyURL: strings.TrimRight(getEnv("CERTIFICATE_VERIFY_URL", defaultVerifyURL), "/"),

		APIKey:            getSecret("API_KEY"),
		RateLimitEnabled:  getBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: intVar("RATE_LIMIT_REQUESTS", 100),
		RateLimitPeriod:   durationVar("RATE_LIMIT_PERIOD", 60*time.Second),
		CORSOrigins:       splitList(getEnv("CORS_ORIGINS", "*")),
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// Validate checks that the settings required by the given binary are present.
// Valid roles: "certificate-api", "worker".
func (c *Config) Validate(role string) error {
	var missing []string
	var invalid []string

	switch c.StorageBackend {
	case StorageLocal:
		if c.LocalStoragePath == "" {
			missing = append(missing, "LOCAL_STORAGE_PATH")
		}
	case StorageS3:
		if c.S3BucketName == "" {
			missing = append(missing, "S3_BUCKET_NAME")
		}
	default:
		invalid = append(invalid, fmt.Sprintf("STORAGE_BACKEND %q (want local or s3)", c.StorageBackend))
	}

	switch role {
	case "certificate-api":
		if c.HTTPListenAddr == "" {
			missing = append(missing, "HTTP_LISTEN_ADDR")
		}
		switch c.BatchDispatcher {
		case DispatcherLocal:
		case DispatcherTemporal:
			if c.TemporalAddress == "" {
				missing = append(missing, "TEMPORAL_ADDRESS")
			}
			if c.RedisURL == "" {
				// Workers report progress from another process.
				missing = append(missing, "REDIS_URL")
			}
		default:
			invalid = append(invalid, fmt.Sprintf("BATCH_DISPATCHER %q (want local or temporal)", c.BatchDispatcher))
		}
	case "worker":
		if c.TemporalAddress == "" {
			missing = append(missing, "TEMPORAL_ADDRESS")
		}
		if c.RedisURL == "" {
			// The worker runs in another process; batch progress must be shared.
			missing = append(missing, "REDIS_URL")
		}
	}

	if c.BatchWorkers < 1 {
		invalid = append(invalid, "BATCH_WORKERS must be at least 1")
	}
	if c.BatchItemParallelism < 1 {
		invalid = append(invalid, "BATCH_ITEM_PARALLELISM must be at least 1")
	}
	if c.StorageMaxRetries < 0 {
		invalid = append(invalid, "STORAGE_MAX_RETRIES must not be negative")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(invalid, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getSecret resolves a secret from the file named by <key>_FILE, falling back
// to the <key> variable itself. The file wins when both are set.
func getSecret(key string) string {
	if path := os.Getenv(key + "_FILE"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return os.Getenv(key)
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}

// getDuration accepts Go duration strings ("90s", "1h") or a bare number of seconds.
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not a duration", key, v)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
