package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/certgen/internal/api/handler"
	"github.com/edvin/certgen/internal/cache"
	"github.com/edvin/certgen/internal/config"
	"github.com/edvin/certgen/internal/core"
	"github.com/edvin/certgen/internal/metrics"
	"github.com/edvin/certgen/internal/model"
	"github.com/edvin/certgen/internal/storage"
)

type pdfRenderer struct{}

func (pdfRenderer) Render(context.Context, model.CertificateRequest) ([]byte, error) {
	return []byte("%PDF-1.3 server test"), nil
}

func newTestServer(t *testing.T, mutate func(*config.Config), extra ...handler.Dependency) *Server {
	t.Helper()
	local, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	deps := core.Dependencies{
		Storage:  local,
		Cache:    cache.NewMemory(100),
		Renderer: pdfRenderer{},
		Metrics:  metrics.NewRecorder(reg),
		Logger:   zerolog.Nop(),
	}
	cfg := &config.Config{
		ServiceName:   "certificate-generation-service",
		Environment:   "test",
		APIPrefix:     "/api/v1",
		APIKey:        "secret",
		CacheTTL:      time.Hour,
		BatchTTL:      time.Hour,
		CacheTimeout:  time.Second,
		PresignExpiry: time.Hour,
		VerifyURL:     "https://certs.example.com/verify",
		CORSOrigins:   []string{"*"},

		BatchItemParallelism: 2,
	}
	if mutate != nil {
		mutate(cfg)
	}
	return NewServer(zerolog.Nop(), core.NewServices(deps, cfg), deps, reg, cfg, extra...)
}

func serve(s *Server, method, target string, body any, apiKey string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		r.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, r)
	return rec
}

func TestServer_GenerateAndFetch(t *testing.T) {
	s := newTestServer(t, nil)

	rec := serve(s, http.MethodPost, "/api/v1/certificates/generate", map[string]any{
		"certificate_id":   "CERT-1",
		"certificate_type": "course",
		"title":            "X",
	}, "secret")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(s, http.MethodGet, "/api/v1/certificates/CERT-1", nil, "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"COMPLETED"`)

	rec = serve(s, http.MethodGet, "/api/v1/certificates/CERT-1/download", nil, "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
}

func TestServer_RequiresAPIKey(t *testing.T) {
	s := newTestServer(t, nil)

	rec := serve(s, http.MethodGet, "/api/v1/certificates/CERT-1", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(s, http.MethodGet, "/api/v1/certificates/CERT-1", nil, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_OpenEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	for _, path := range []string{"/", "/health", "/healthz", "/readyz", "/docs", "/docs/openapi.json"} {
		rec := serve(s, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	var spec map[string]any
	rec := serve(s, http.MethodGet, "/docs/openapi.json", nil, "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &spec))
	assert.Equal(t, "3.0.3", spec["openapi"])
}

func TestServer_HealthReportsDependencies(t *testing.T) {
	s := newTestServer(t, nil, handler.Dependency{
		Name:  "temporal",
		Kind:  "temporal",
		Check: func(context.Context) error { return context.DeadlineExceeded },
	})

	rec := serve(s, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"storage":{"status":"healthy","backend":"local"}`)
	assert.Contains(t, body, `"cache":{"status":"healthy","backend":"memory"}`)
	assert.Contains(t, body, `"temporal":{"status":"unhealthy"`)
}

func TestServer_MetricsExposed(t *testing.T) {
	s := newTestServer(t, nil)
	serve(s, http.MethodGet, "/healthz", nil, "")

	rec := serve(s, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "http_requests_total"))
}

func TestServer_RateLimit(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.RateLimitEnabled = true
		c.RateLimitRequests = 2
		c.RateLimitPeriod = time.Minute
	})

	codes := make([]int, 3)
	for i := range codes {
		codes[i] = serve(s, http.MethodGet, "/healthz", nil, "").Code
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
