package middleware

import (
	"net/http"

	"github.com/fleetroute/fleetroute/internal/api/models"
)

// apiHeaders suit a JSON-only API whose responses are never rendered as a
// page.
var apiHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Permissions-Policy", "geolocation=(), camera=(), microphone=()"},
}

// SecurityHeaders sets apiHeaders on every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range apiHeaders {
			h.Set(kv[0], kv[1])
		}
		next.ServeHTTP(w, r)
	})
}

// RequireTLS answers 403 when a proxy reports the client connected over
// anything but https. Without X-Forwarded-Proto the request is trusted.
func RequireTLS(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			proto := r.Header.Get("X-Forwarded-Proto")
			if proto == "" || proto == "https" {
				next.ServeHTTP(w, r)
				return
			}
			p := models.NewTLSRequired(GetRequestID(r.Context()), "This endpoint requires HTTPS")
			p.Instance = r.URL.Path
			p.Write(w)
		})
	}
}

// CORS admits browser calls from the dispatch map. allowed is "*" for any
// origin or one exact origin, which is then echoed with Vary: Origin. An
// empty allowed sends no CORS headers. Preflights get 204 without reaching
// next.
func CORS(allowed string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" {
				allowCORS(w.Header(), allowed, origin)
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func allowCORS(h http.Header, allowed, origin string) {
	switch allowed {
	case "":
		return
	case "*":
		h.Set("Access-Control-Allow-Origin", "*")
	case origin:
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
	default:
		return
	}
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id, traceparent")
	h.Set("Access-Control-Expose-Headers", "X-Request-Id, Retry-After")
	h.Set("Access-Control-Max-Age", "600")
}
