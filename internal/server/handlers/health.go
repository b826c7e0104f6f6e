// Package handlers implements the job control service endpoints.
package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/powdr-labs/proverd/internal/server/middleware"
)

// Healthz serves GET /healthz. It answers 200 {"status":"healthy"}
// unconditionally and touches nothing: orchestrator liveness probes hit it
// on a tight interval and must never restart the service over a dependency
// hiccup. Dependency state is reported on /health instead.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeHealthy(w)
}

func writeHealthy(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// HealthChecker reports whether one dependency of the service is usable.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthCheckerFunc adapts a function to HealthChecker.
type HealthCheckerFunc func(ctx context.Context) error

func (f HealthCheckerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

// HealthManager runs named checkers and serves the health endpoint.
type HealthManager struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
	timeout  time.Duration
}

func NewHealthManager() *HealthManager {
	return &HealthManager{
		checkers: make(map[string]HealthChecker),
		timeout:  2 * time.Second,
	}
}

func (m *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = checker
}

// HealthHandler serves GET /health, the readiness endpoint. A service whose
// checks all pass answers with exactly {"status":"healthy"}; failing checks
// produce a 503 envelope naming each check's state in the details.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	results := m.runChecks(r.Context())

	healthy := true
	for _, status := range results {
		if status != "healthy" {
			healthy = false
			break
		}
	}

	if healthy {
		writeHealthy(w)
		return
	}

	checks := make(map[string]any, len(results))
	for name, status := range results {
		checks[name] = status
	}
	middleware.WriteError(w, r, http.StatusServiceUnavailable,
		"SERVICE_UNAVAILABLE", "one or more health checks failed",
		map[string]any{"checks": checks})
}

func (m *HealthManager) runChecks(ctx context.Context) map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make(map[string]string, len(m.checkers))
	for name, checker := range m.checkers {
		cctx, cancel := context.WithTimeout(ctx, m.timeout)
		err := checker.CheckHealth(cctx)
		cancel()
		if err != nil {
			results[name] = "unhealthy"
		} else {
			results[name] = "healthy"
		}
	}
	return results
}
