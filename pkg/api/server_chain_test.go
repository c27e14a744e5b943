package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-waternet/pkg/api/middleware"
	"github.com/dd0wney/cluso-waternet/pkg/fault"
	"github.com/dd0wney/cluso-waternet/pkg/health"
	"github.com/dd0wney/cluso-waternet/pkg/metrics"
)

func TestRespondFault(t *testing.T) {
	s, _, _ := setupTestServer(t, Options{})

	tests := []struct {
		name       string
		err        error
		status     int
		retryAfter string
		retryable  bool
	}{
		{"not found", fault.New("GetNode").Node("X").Cause(fault.ErrUnknownNode).Err(), http.StatusNotFound, "", false},
		{"validation", fault.New("AddEdge").Cause(fault.ErrSelfLoop).Err(), http.StatusBadRequest, "", false},
		{"conflict", fault.New("Advance").Cause(fault.ErrInvalidTransition).Err(), http.StatusConflict, "", false},
		{"stale", fault.New("AdvanceFrom").Cause(fault.ErrConcurrentModification).Err(), http.StatusConflict, "", true},
		{"saturated", fault.New("SubmitReading").Cause(fault.ErrQueueSaturated).Err(), http.StatusServiceUnavailable, "1", true},
		{"closed", fault.New("SubmitReading").Cause(fault.ErrClosed).Err(), http.StatusServiceUnavailable, "", true},
		{"integrity", fault.New("Sweep").Cause(fault.ErrIntegrityViolation).Err(), http.StatusConflict, "", false},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			s.respondFault(rr, httptest.NewRequest(http.MethodGet, "/", nil), "Op", tt.err)

			var resp ErrorResponse
			decode(t, rr, tt.status, &resp)
			assert.Equal(t, tt.retryAfter, rr.Header().Get("Retry-After"))
			assert.Equal(t, tt.retryable, resp.Retryable)
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, "Op failed", resp.Message)
				assert.Empty(t, resp.Kind)
			}
		})
	}
}

func TestMetricsAndHealthRoutes(t *testing.T) {
	reg := metrics.NewRegistry()
	hc := health.NewHealthChecker()
	_, e, h := setupTestServer(t, Options{Metrics: reg, Health: hc, Version: "1.2.3"})
	hc.RegisterReadinessCheck("engine", health.ReadyCheck(e.Ready))

	rr := do(t, h, http.MethodGet, "/dmas", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(middleware.RequestIDHeader))

	rr = do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `waternet_http_requests_total{method="GET",path="/dmas",status="200"} 1`)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health/live", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health/ready", nil).Code)

	var v VersionResponse
	decode(t, do(t, h, http.MethodGet, "/version", nil), http.StatusOK, &v)
	assert.Equal(t, "1.2.3", v.Version)
	assert.True(t, v.Ready)

	require.NoError(t, e.Close())
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/health/ready", nil).Code)
}

func TestRateLimit(t *testing.T) {
	cfg := middleware.DefaultRateLimitConfig()
	cfg.RequestsPerSecond = 0.001
	cfg.BurstSize = 2
	reg := metrics.NewRegistry()
	_, _, h := setupTestServer(t, Options{RateLimit: cfg, Metrics: reg})

	for range 2 {
		require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/dmas", nil).Code)
	}
	rr := do(t, h, http.MethodGet, "/dmas", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))

	body := do(t, h, http.MethodGet, "/metrics", nil).Body.String()
	assert.Contains(t, body, "waternet_http_rate_limited_total")
}

func TestBodySizeLimit(t *testing.T) {
	_, _, h := setupTestServer(t, Options{MaxBodyBytes: 64})

	big := `{"id":"Zone-B","nodes":["` + strings.Repeat("N", 200) + `"]}`
	rr := do(t, h, http.MethodPost, "/dmas", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestGraphQLRoute(t *testing.T) {
	_, _, h := setupTestServer(t, Options{})

	rr := do(t, h, http.MethodPost, "/graphql", map[string]any{"query": `{ zones { id targetNrw } }`})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"data":{"zones":[{"id":"Zone-A","targetNrw":18}]}}`, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/graphql/stream", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestNewServerRejectsBadProxies(t *testing.T) {
	_, err := NewServer(newTestEngine(t, true), Options{TrustedProxies: []string{"not-a-cidr"}})
	assert.Error(t, err)
}
