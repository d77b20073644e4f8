package handler

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edvin/certgen/internal/api/response"
)

// Dependency is a backend the service needs to be ready.
type Dependency struct {
	Name string
	// Kind names the selected implementation, e.g. "s3" or "redis".
	Kind  string
	Check func(ctx context.Context) error
}

type Health struct {
	service     string
	version     string
	environment string
	deps        []Dependency
	timeout     time.Duration
	now         func() time.Time
}

func NewHealth(service, version, environment string, deps []Dependency) *Health {
	return &Health{
		service:     service,
		version:     version,
		environment: environment,
		deps:        deps,
		timeout:     3 * time.Second,
		now:         time.Now,
	}
}

type dependencyStatus struct {
	Status  string `json:"status"`
	Backend string `json:"backend,omitempty"`
	Error   string `json:"error,omitempty"`
}

type healthReport struct {
	Status       string                      `json:"status"`
	Service      string                      `json:"service"`
	Version      string                      `json:"version"`
	Timestamp    time.Time                   `json:"timestamp"`
	Dependencies map[string]dependencyStatus `json:"dependencies"`
}

// check pings every dependency concurrently.
func (h *Health) check(ctx context.Context) (map[string]dependencyStatus, bool) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	results := make([]dependencyStatus, len(h.deps))
	var g errgroup.Group
	for i, dep := range h.deps {
		g.Go(func() error {
			st := dependencyStatus{Status: "healthy", Backend: dep.Kind}
			if err := dep.Check(ctx); err != nil {
				st.Status = "unhealthy"
				st.Error = err.Error()
			}
			results[i] = st
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]dependencyStatus, len(h.deps))
	healthy := true
	for i, dep := range h.deps {
		out[dep.Name] = results[i]
		if results[i].Status != "healthy" {
			healthy = false
		}
	}
	return out, healthy
}

// Report answers with the aggregate health of every dependency.
func (h *Health) Report(w http.ResponseWriter, r *http.Request) {
	deps, healthy := h.check(r.Context())
	report := healthReport{
		Status:       "healthy",
		Service:      h.service,
		Version:      h.version,
		Timestamp:    h.now().UTC(),
		Dependencies: deps,
	}
	status := http.StatusOK
	if !healthy {
		report.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	response.WriteJSON(w, status, report)
}

func (h *Health) Live(w http.ResponseWriter, _ *http.Request) {
	response.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Health) Ready(w http.ResponseWriter, r *http.Request) {
	deps, healthy := h.check(r.Context())
	checks := make(map[string]string, len(deps))
	for name, st := range deps {
		checks[name] = "ok"
		if st.Error != "" {
			checks[name] = st.Error
		}
	}
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	response.WriteJSON(w, status, checks)
}

// Root describes the service.
func (h *Health) Root(w http.ResponseWriter, _ *http.Request) {
	response.WriteJSON(w, http.StatusOK, map[string]string{
		"service":     h.service,
		"version":     h.version,
		"environment": h.environment,
		"docs":        "/docs",
		"health":      "/health",
	})
}
