package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder owns every service metric. It is constructed once at startup and
// passed to the components that report through it. A nil *Recorder is valid
// and records nothing.
type Recorder struct {
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	generated        *prometheus.CounterVec
	failures         *prometheus.CounterVec
	generateDuration prometheus.Histogram
	cacheLookups     *prometheus.CounterVec
	cacheErrors      *prometheus.CounterVec
	storageRetries   *prometheus.CounterVec
	batchItems       *prometheus.CounterVec
	batchesAccepted  *prometheus.CounterVec
}

// NewRecorder registers the service metrics with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		generated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certificates_generated_total",
			Help: "Certificates rendered and stored successfully",
		}, []string{"certificate_type"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certificate_generation_failures_total",
			Help: "Certificate generations that ended FAILED",
		}, []string{"certificate_type", "reason"}),
		generateDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "certificate_generation_duration_seconds",
			Help:    "Time from render start to stored artifact",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certificate_cache_lookups_total",
			Help: "Certificate record cache lookups by result",
		}, []string{"result"}),
		cacheErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certificate_cache_errors_total",
			Help: "Cache and record store operations that failed",
		}, []string{"op"}),
		storageRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certificate_storage_retries_total",
			Help: "Storage operations retried after a failure",
		}, []string{"op"}),
		batchItems: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certificate_batch_items_total",
			Help: "Batch items processed by final status",
		}, []string{"status"}),
		batchesAccepted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certificate_batches_total",
			Help: "Batches accepted by processing mode",
		}, []string{"mode"}),
	}
}

func (r *Recorder) ObserveHTTP(method, path string, status int, d time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

func (r *Recorder) CertificateGenerated(certType string, d time.Duration) {
	if r == nil {
		return
	}
	r.generated.WithLabelValues(certType).Inc()
	r.generateDuration.Observe(d.Seconds())
}

func (r *Recorder) GenerationFailed(certType, reason string) {
	if r == nil {
		return
	}
	r.failures.WithLabelValues(certType, reason).Inc()
}

func (r *Recorder) CacheLookup(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

func (r *Recorder) CacheError(op string) {
	if r == nil {
		return
	}
	r.cacheErrors.WithLabelValues(op).Inc()
}

func (r *Recorder) StorageRetry(op string) {
	if r == nil {
		return
	}
	r.storageRetries.WithLabelValues(op).Inc()
}

func (r *Recorder) BatchItem(status string) {
	if r == nil {
		return
	}
	r.batchItems.WithLabelValues(status).Inc()
}

func (r *Recorder) BatchAccepted(async bool) {
	if r == nil {
		return
	}
	mode := "sync"
	if async {
		mode = "async"
	}
	r.batchesAccepted.WithLabelValues(mode).Inc()
}
