package api

import (
	_ "embed"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/edvin/certgen/internal/api/handler"
	mw "github.com/edvin/certgen/internal/api/middleware"
	"github.com/edvin/certgen/internal/config"
	"github.com/edvin/certgen/internal/core"
	"github.com/edvin/certgen/internal/metrics"
)

// Version is set at build time with -ldflags.
var Version = "1.0.0"

//go:embed docs/openapi.json
var openAPIJSON []byte

type Server struct {
	router   chi.Router
	logger   zerolog.Logger
	services *core.Services
	health   *handler.Health
	gatherer prometheus.Gatherer
	cfg      *config.Config
}

// NewServer wires the HTTP surface. The health endpoints probe the storage
// backend, the cache, the record store when configured, and any extra
// dependencies.
func NewServer(logger zerolog.Logger, services *core.Services, deps core.Dependencies, gatherer prometheus.Gatherer, cfg *config.Config, extra ...handler.Dependency) *Server {
	checks := []handler.Dependency{
		{Name: "storage", Kind: deps.Storage.Name(), Check: deps.Storage.Ping},
		{Name: "cache", Kind: deps.Cache.Name(), Check: deps.Cache.Ping},
	}
	if deps.Records != nil {
		checks = append(checks, handler.Dependency{Name: "records", Kind: "postgres", Check: deps.Records.Ping})
	}
	checks = append(checks, extra...)

	s := &Server{
		router:   chi.NewRouter(),
		logger:   logger,
		services: services,
		health:   handler.NewHealth(cfg.ServiceName, Version, cfg.Environment, checks),
		gatherer: gatherer,
		cfg:      cfg,
	}

	s.setupMiddleware(deps.Metrics)
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware(rec *metrics.Recorder) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics(rec))
	s.router.Use(mw.CORS(s.cfg.CORSOrigins))
	if s.cfg.RateLimitEnabled {
		s.router.Use(mw.NewRateLimiter(s.cfg.RateLimitRequests, s.cfg.RateLimitPeriod).Handler)
	}
}

func (s *Server) setupRoutes() {
	if s.gatherer != nil {
		s.router.Handle("/metrics", metrics.Handler(s.gatherer))
	}

	s.router.Get("/", s.health.Root)
	s.router.Get("/health", s.health.Report)
	s.router.Get("/healthz", s.health.Live)
	s.router.Get("/readyz", s.health.Ready)

	// API documentation (no auth required)
	s.router.Get("/docs/openapi.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(openAPIJSON)
	})
	s.router.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(scalarHTML))
	})

	s.router.Route(s.cfg.APIPrefix, func(r chi.Router) {
		r.Use(mw.APIKey(s.cfg.APIKey))

		certificate := handler.NewCertificate(s.services.Certificate)
		r.Post("/certificates/generate", certificate.Generate)
		r.Get("/certificates/{id}", certificate.Get)
		r.Get("/certificates/{id}/verify", certificate.Verify)
		r.Get("/certificates/{id}/download-url", certificate.DownloadURL)
		r.Get("/certificates/{id}/download", certificate.Download)

		batch := handler.NewBatch(s.services.Batch)
		r.Post("/certificates/batch", batch.Create)
		r.Get("/batch/{id}", batch.Get)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

const scalarHTML = `<!DOCTYPE html>
<html>
<head>
  <title>Certificate Generation API</title>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
</head>
<body>
  <script id="api-reference" data-url="/docs/openapi.json"></script>
  <script src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"></script>
</body>
</html>`
