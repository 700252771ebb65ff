package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetroute/fleetroute/internal/api"
	"github.com/fleetroute/fleetroute/internal/api/middleware"
	"github.com/fleetroute/fleetroute/internal/api/models"
	"github.com/fleetroute/fleetroute/internal/planner"
)

type stubPlanner struct {
	calls int
}

func (s *stubPlanner) Optimize(_ context.Context, _ *planner.Request) (*planner.Plan, error) {
	s.calls++
	return &planner.Plan{
		ID:           "pln_stub",
		MatrixSource: "synthetic",
		Warnings:     []string{},
		Vehicles: []planner.VehicleResult{{
			ID:              1,
			Stops:           []planner.Stop{{Index: 1, Name: "Stop 1", Lat: 1, Lon: 1, Demand: 1}},
			Load:            1,
			DistanceMeters:  100,
			DurationSeconds: 10,
			Degraded:        true,
		}},
	}, nil
}

func (s *stubPlanner) Baseline(_ context.Context, _ *planner.Request) (*planner.BaselinePlan, error) {
	s.calls++
	return &planner.BaselinePlan{
		ID:              "bsl_stub",
		DistanceMeters:  200,
		DurationSeconds: 20,
		Breakdown:       []planner.VehicleBreakdown{{Vehicle: 1, DistanceMeters: 200, DurationSeconds: 20}},
		MatrixSource:    "synthetic",
	}, nil
}

const routeBody = `{"depot":{"lat":0,"lon":0},"customers":[{"lat":1,"lon":1,"demand":1}]}`

func newTestRouter(p *stubPlanner) http.Handler {
	return api.NewRouter(api.RouterConfig{
		Version:           "test",
		BuildTime:         "now",
		Logger:            zerolog.Nop(),
		Planner:           p,
		CORSAllowedOrigin: "*",
	})
}

func TestRouter_HealthCheck(t *testing.T) {
	router := newTestRouter(&stubPlanner{})

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	var health models.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Version)
}

func TestRouter_OpsEndpoints(t *testing.T) {
	router := newTestRouter(&stubPlanner{})

	for _, path := range []string{"/v1/ops/ready", "/v1/ops/status"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestRouter_PlanningEndpoints(t *testing.T) {
	tests := []struct {
		path     string
		contains string
	}{
		{path: "/v1/routes:optimize", contains: `"planId":"pln_stub"`},
		{path: "/api/optimize_routes", contains: `"planId":"pln_stub"`},
		{path: "/v1/routes:baseline", contains: `"beforeDistance":200`},
		{path: "/api/calculate_before_metrics", contains: `"beforeTime":20`},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			p := &stubPlanner{}
			router := newTestRouter(p)

			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(routeBody))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, 1, p.calls)
			assert.Contains(t, rec.Body.String(), tt.contains)
		})
	}
}

func TestRouter_InsightEndpoints(t *testing.T) {
	router := newTestRouter(&stubPlanner{})

	vehicles := `[{"id":1,"stops":[{"name":"A"}],"totalDistance":1000,"totalDuration":60}]`
	tests := []struct {
		path     string
		body     string
		contains string
	}{
		{path: "/v1/insights:explain", body: `{"vehicles":` + vehicles + `}`, contains: "Fleet Summary"},
		{path: "/api/explain_routes", body: `{"vehicles":` + vehicles + `}`, contains: "Truck 1"},
		{path: "/v1/insights:ask", body: `{"question":"distance after","vehicles":` + vehicles + `}`, contains: "1.00 km"},
		{path: "/api/ask", body: `{"question":"distance after","vehicles":` + vehicles + `}`, contains: "Distance after optimization"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), tt.contains)
		})
	}
}

func TestRouter_UnsupportedMediaType(t *testing.T) {
	p := &stubPlanner{}
	router := newTestRouter(p)

	req := httptest.NewRequest(http.MethodPost, "/v1/routes:optimize", strings.NewReader("<xml/>"))
	req.Header.Set("Content-Type", "application/xml")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, 0, p.calls)
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(&stubPlanner{})

	for _, path := range []string{"/nope", "/v1/nope", "/api/nope"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))

			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), models.ProblemTypeNotFound)
		})
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	router := newTestRouter(&stubPlanner{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/routes:optimize", http.NoBody))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Body.String(), models.ProblemTypeMethodNotAllowed)
}

func TestRouter_CORSPreflight(t *testing.T) {
	router := newTestRouter(&stubPlanner{})

	req := httptest.NewRequest(http.MethodOptions, "/api/optimize_routes", http.NoBody)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_RequireTLS(t *testing.T) {
	router := api.NewRouter(api.RouterConfig{
		Logger:     zerolog.Nop(),
		Planner:    &stubPlanner{},
		RequireTLS: true,
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	req.Header.Set("X-Forwarded-Proto", "http")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_PlanningRateLimitSharedWithAliases(t *testing.T) {
	p := &stubPlanner{}
	router := api.NewRouter(api.RouterConfig{
		Logger:            zerolog.Nop(),
		Planner:           p,
		PlanningRateLimit: middleware.RateLimitConfig{Name: "planning", RequestLimit: 1, WindowLength: time.Minute},
	})

	send := func(path string) int {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(routeBody))
		req.RemoteAddr = "192.0.2.44:5000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("/v1/routes:optimize"))
	assert.Equal(t, http.StatusTooManyRequests, send("/api/optimize_routes"))
	assert.Equal(t, 1, p.calls)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router := api.NewRouter(api.RouterConfig{
		Logger:  zerolog.Nop(),
		Planner: &stubPlanner{},
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# HELP up\n"))
		}),
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# HELP up")
}

func TestRouter_MetricsEndpointAbsentByDefault(t *testing.T) {
	router := newTestRouter(&stubPlanner{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
