package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fleetroute/fleetroute/internal/api/middleware"
)

func newRecordingMetrics(t *testing.T) (*middleware.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)
	return metrics, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func serveStatus(metrics *middleware.Metrics, method, path string, status int) {
	h := metrics.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{}`))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, path, http.NoBody))
}

func surfaces(set []attribute.Set) []string {
	var out []string
	for _, s := range set {
		if v, ok := s.Value("fleetroute.api.surface"); ok {
			out = append(out, v.AsString())
		}
	}
	return out
}

func TestMetrics_RecordsDurationPerSurface(t *testing.T) {
	metrics, reader := newRecordingMetrics(t)

	serveStatus(metrics, http.MethodPost, "/v1/routes:optimize", http.StatusOK)
	serveStatus(metrics, http.MethodPost, "/api/optimize_routes", http.StatusOK)

	got := collect(t, reader)
	require.Contains(t, got, "http.server.request.duration")
	require.Contains(t, got, "http.server.response.body.size")
	require.Contains(t, got, "http.server.active_requests")

	hist, ok := got["http.server.request.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var sets []attribute.Set
	for _, dp := range hist.DataPoints {
		sets = append(sets, dp.Attributes)
		assert.Equal(t, uint64(1), dp.Count)
	}
	assert.ElementsMatch(t, []string{middleware.SurfaceV1, middleware.SurfaceLegacy}, surfaces(sets))
}

func TestMetrics_CountsRejections(t *testing.T) {
	metrics, reader := newRecordingMetrics(t)

	serveStatus(metrics, http.MethodPost, "/v1/routes:optimize", http.StatusUnprocessableEntity)
	serveStatus(metrics, http.MethodPost, "/v1/routes:optimize", http.StatusInternalServerError)
	serveStatus(metrics, http.MethodGet, "/v1/ops/health", http.StatusOK)

	got := collect(t, reader)
	sum, ok := got["fleetroute.api.rejected"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
	status, _ := sum.DataPoints[0].Attributes.Value("http.response.status_code")
	assert.Equal(t, int64(http.StatusUnprocessableEntity), status.AsInt64())
}

func TestMetrics_PassesResponseThrough(t *testing.T) {
	metrics, _ := newRecordingMetrics(t)

	h := metrics.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("plan"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/routes:baseline", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "plan", rec.Body.String())
}

func TestSurface(t *testing.T) {
	tests := map[string]string{
		"/v1/routes:optimize":           middleware.SurfaceV1,
		"/v1/ops/health":                middleware.SurfaceV1,
		"/api/ask":                      middleware.SurfaceLegacy,
		"/api/calculate_before_metrics": middleware.SurfaceLegacy,
		"/metrics":                      middleware.SurfaceOther,
		"/":                             middleware.SurfaceOther,
	}
	for path, want := range tests {
		assert.Equal(t, want, middleware.Surface(path), path)
	}
}
