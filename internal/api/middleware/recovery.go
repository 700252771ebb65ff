package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fleetroute/fleetroute/internal/api/models"
)

// Recovery turns a handler panic into a 500 problem, logs the stack and
// marks the request span as failed. http.ErrAbortHandler passes through so
// net/http still aborts the connection.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				switch v {
				case nil:
					return
				case http.ErrAbortHandler:
					panic(v)
				}

				ctx := r.Context()
				cause := fmt.Errorf("panic: %v", v)
				span := trace.SpanFromContext(ctx)
				span.RecordError(cause)
				span.SetStatus(codes.Error, "panic")

				RequestLogger(ctx, log).Error().
					Err(cause).
					Str("route", routePattern(r)).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")

				p := models.NewInternalError(GetRequestID(ctx), "an unexpected error occurred")
				p.Instance = r.URL.Path
				p.Write(w)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
