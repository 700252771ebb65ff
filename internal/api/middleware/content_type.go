package middleware

import (
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/fleetroute/fleetroute/internal/api/models"
)

// ContentTypeJSON sets the Content-Type header to application/json unless a
// handler already chose one.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireMediaType rejects POST, PUT and PATCH requests whose Content-Type
// is set and not one of allowed. A missing Content-Type is treated as the
// first allowed type by the handlers.
func RequireMediaType(allowed ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
				if ct := r.Header.Get("Content-Type"); ct != "" && !mediaTypeIn(ct, allowed) {
					detail := fmt.Sprintf("Content-Type %q is not supported; use %s", ct, strings.Join(allowed, " or "))
					problem := models.NewUnsupportedMediaType(GetRequestID(r.Context()), detail)
					problem.Instance = r.URL.Path
					problem.Write(w)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireJSON is RequireMediaType("application/json").
func RequireJSON(next http.Handler) http.Handler {
	return RequireMediaType("application/json")(next)
}

func mediaTypeIn(contentType string, allowed []string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	for _, a := range allowed {
		if mediaType == a {
			return true
		}
	}
	return false
}
