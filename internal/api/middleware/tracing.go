package middleware

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/fleetroute/fleetroute/internal/api/middleware"

// Tracing opens a server span per request, continuing the caller's W3C trace
// context. Provider and solver spans started by the planner hang off it.
// Once chi has matched, the span is renamed "METHOD /route/pattern".
func Tracing() func(http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			parent := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(parent, r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(requestAttributes(r)...),
			)
			defer span.End()

			if id := GetRequestID(ctx); id != "" {
				span.SetAttributes(attribute.String("request.id", id))
			}

			sw := newStatusWriter(w)
			traced := r.WithContext(ctx)
			next.ServeHTTP(sw, traced)

			finishSpan(span, traced, sw)
		})
	}
}

func requestAttributes(r *http.Request) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.URLScheme(scheme(r)),
		semconv.URLPath(r.URL.Path),
		semconv.ServerAddress(r.Host),
		semconv.ClientAddress(r.RemoteAddr),
		attribute.String("fleetroute.api.surface", Surface(r.URL.Path)),
	}
	if ua := r.UserAgent(); ua != "" {
		attrs = append(attrs, semconv.UserAgentOriginal(ua))
	}
	if r.URL.RawQuery != "" {
		// CSV uploads carry numVehicles and capacity in the query.
		attrs = append(attrs, semconv.URLQuery(r.URL.RawQuery))
	}
	return attrs
}

func finishSpan(span trace.Span, r *http.Request, sw *statusWriter) {
	if route := routePattern(r); route != "" {
		span.SetName(r.Method + " " + route)
		span.SetAttributes(semconv.HTTPRoute(route))
	}
	span.SetAttributes(
		semconv.HTTPResponseStatusCode(sw.statusCode),
		semconv.HTTPResponseBodySize(int(sw.written)),
	)
	// 4xx answers (invalid or infeasible fleets) are the client's problem
	// and leave the span status unset.
	if sw.statusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(sw.statusCode))
	}
}

func scheme(r *http.Request) string {
	switch {
	case r.TLS != nil:
		return "https"
	case r.Header.Get("X-Forwarded-Proto") != "":
		return r.Header.Get("X-Forwarded-Proto")
	default:
		return "http"
	}
}
