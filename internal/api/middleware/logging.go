package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Logger attaches a request-scoped logger carrying the request and trace ids
// to the context, then writes one line when the request completes: error for
// 5xx, warn for 4xx, info otherwise.
func Logger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLog := scopedLogger(r.Context(), log)
			r = r.WithContext(reqLog.WithContext(r.Context()))

			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)

			completion(&reqLog, sw.statusCode).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", routePattern(r)).
				Str("surface", Surface(r.URL.Path)).
				Int("status", sw.statusCode).
				Int64("bytes", sw.written).
				Dur("duration", time.Since(start)).
				Str("client_ip", r.RemoteAddr).
				Str("user_agent", r.UserAgent()).
				Msg("request completed")
		})
	}
}

// RequestLogger returns the logger Logger placed in ctx, or fallback outside
// a logged request.
func RequestLogger(ctx context.Context, fallback zerolog.Logger) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &fallback
}

func scopedLogger(ctx context.Context, log zerolog.Logger) zerolog.Logger {
	fields := log.With().Str("request_id", GetRequestID(ctx))
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = fields.
			Str("trace_id", sc.TraceID().String()).
			Str("span_id", sc.SpanID().String())
	}
	return fields.Logger()
}

func completion(log *zerolog.Logger, status int) *zerolog.Event {
	switch {
	case status >= http.StatusInternalServerError:
		return log.Error()
	case status >= http.StatusBadRequest:
		return log.Warn()
	default:
		return log.Info()
	}
}
