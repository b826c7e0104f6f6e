package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	err error
}

func (s stubChecker) CheckHealth(ctx context.Context) error {
	return s.err
}

func TestHealthz_AlwaysHealthy(t *testing.T) {
	rec := httptest.NewRecorder()
	Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestHealthHandler_Healthy(t *testing.T) {
	manager := NewHealthManager()
	manager.RegisterChecker("jobs_dir", stubChecker{})
	manager.RegisterChecker("prove_script", stubChecker{})

	rec := httptest.NewRecorder()
	manager.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestHealthHandler_NoCheckersIsHealthy(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthManager().HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthHandler_UnhealthyChecker(t *testing.T) {
	manager := NewHealthManager()
	manager.RegisterChecker("jobs_dir", stubChecker{})
	manager.RegisterChecker("prove_script", stubChecker{err: errors.New("missing")})

	rec := httptest.NewRecorder()
	manager.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)

	checks, ok := body.Error.Details["checks"].(map[string]any)
	require.True(t, ok, "expected per-check results in details")
	assert.Equal(t, "unhealthy", checks["prove_script"])
	assert.Equal(t, "healthy", checks["jobs_dir"])
}

func TestHealthCheckerFunc(t *testing.T) {
	called := false
	fn := HealthCheckerFunc(func(ctx context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, fn.CheckHealth(context.Background()))
	assert.True(t, called)
}
