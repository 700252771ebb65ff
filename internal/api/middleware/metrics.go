package middleware

import (
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/fleetroute/fleetroute/internal/api/middleware"

// API surfaces. The legacy surface is the /api alias set kept for older map
// front ends; its share of traffic decides when it can go.
const (
	SurfaceV1     = "v1"
	SurfaceLegacy = "legacy"
	SurfaceOther  = "other"
)

// Metrics records request instruments for the API.
type Metrics struct {
	duration metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
	bodySize metric.Int64Histogram
	rejected metric.Int64Counter
}

// NewMetrics registers the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.duration, err = meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("Time to answer an API request"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.inFlight, err = meter.Int64UpDownCounter("http.server.active_requests",
		metric.WithDescription("API requests being planned or answered"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.bodySize, err = meter.Int64Histogram("http.server.response.body.size",
		metric.WithDescription("Size of API response bodies"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if m.rejected, err = meter.Int64Counter("fleetroute.api.rejected",
		metric.WithDescription("Requests answered with a 4xx problem, such as invalid or infeasible fleets"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// Surface classifies a request path.
func Surface(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/"):
		return SurfaceV1
	case strings.HasPrefix(path, "/api/"):
		return SurfaceLegacy
	default:
		return SurfaceOther
	}
}

// Middleware records each request under its chi route pattern and surface.
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			start := time.Now()
			surface := attribute.String("fleetroute.api.surface", Surface(r.URL.Path))

			m.inFlight.Add(ctx, 1, metric.WithAttributes(surface))
			defer m.inFlight.Add(ctx, -1, metric.WithAttributes(surface))

			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)

			route := routePattern(r)
			if route == "" {
				route = "unmatched"
			}
			attrs := metric.WithAttributes(
				surface,
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", route),
				attribute.Int("http.response.status_code", sw.statusCode),
			)
			m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			m.bodySize.Record(ctx, sw.written, attrs)
			if sw.statusCode >= http.StatusBadRequest && sw.statusCode < http.StatusInternalServerError {
				m.rejected.Add(ctx, 1, attrs)
			}
		})
	}
}
