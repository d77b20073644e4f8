package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/edvin/certgen/internal/cache"
	"github.com/edvin/certgen/internal/core"
	"github.com/edvin/certgen/internal/model"
	"github.com/edvin/certgen/internal/storage"
)

// newRequest creates a new HTTP request with an optional JSON body.
func newRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")
	return r
}

// newRequestRaw creates a new HTTP request with a raw string body.
func newRequestRaw(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

// withChiURLParam adds a chi URL parameter to the request context.
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeErrorResponse parses the JSON error response body into a map.
func decodeErrorResponse(rec *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	return body
}

var testPDF = []byte("%PDF-1.3 handler test")

type stubRenderer struct {
	err error
}

func (s stubRenderer) Render(context.Context, model.CertificateRequest) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return testPDF, nil
}

// failingStorage fails every Put.
type failingStorage struct {
	storage.Backend
}

func (failingStorage) Put(context.Context, string, []byte, storage.Metadata) (string, error) {
	return "", context.DeadlineExceeded
}

type servicesOption func(*core.Dependencies)

func newTestServices(t *testing.T, opts ...servicesOption) *core.Services {
	t.Helper()
	local, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	deps := core.Dependencies{
		Storage:  local,
		Cache:    cache.NewMemory(100),
		Renderer: stubRenderer{},
		Logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	certs := core.NewCertificateService(deps.Storage, deps.Cache, deps.Renderer, core.Options{
		CacheTTL:      time.Hour,
		CacheTimeout:  time.Second,
		PresignExpiry: time.Hour,
		VerifyURL:     "https://certs.example.com/verify",
	}, deps.Logger, nil)
	batches := core.NewBatchService(certs, deps.Cache, deps.Dispatcher, core.BatchOptions{
		BatchTTL:     time.Hour,
		Parallelism:  2,
		CacheTimeout: time.Second,
	}, deps.Logger, nil)
	return &core.Services{Certificate: certs, Batch: batches}
}

const validID = "CERT-20250101-ABCDEF12"
