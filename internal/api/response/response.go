// Package response writes JSON bodies and RFC 7807 problems for the API
// handlers, stamping each with the request id.
package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fleetroute/fleetroute/internal/api/middleware"
	"github.com/fleetroute/fleetroute/internal/api/models"
)

// DetailValidationFailed is the problem detail for requests with field errors.
const DetailValidationFailed = "request validation failed"

// JSON writes data with the given status. Plans are computed per request
// and must not be served from a cache.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		w.Header().Set(middleware.RequestIDHeader, requestID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// DecodeJSON decodes the request body into dst. On failure it writes a 400
// problem and returns false. A body cut off by http.MaxBytesReader is
// reported with its limit.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		InvalidBody(w, r, BodyTooLargeDetail(tooBig.Limit))
	} else {
		InvalidBody(w, r, "invalid JSON body")
	}
	return false
}

// BodyTooLargeDetail is the problem detail for an oversized body.
func BodyTooLargeDetail(limit int64) string {
	return fmt.Sprintf("request body exceeds %d bytes", limit)
}

// InvalidBody writes a 400 problem for a body that could not be read.
func InvalidBody(w http.ResponseWriter, r *http.Request, detail string) {
	write(w, r, models.NewBadRequest(traceID(r), detail, nil))
}

// ValidationFailed writes a 400 problem listing the offending fields.
func ValidationFailed(w http.ResponseWriter, r *http.Request, errs []models.FieldError) {
	write(w, r, models.NewBadRequest(traceID(r), DetailValidationFailed, errs))
}

// Infeasible writes a 422 problem for a routing request that fleet size and
// capacity cannot satisfy.
func Infeasible(w http.ResponseWriter, r *http.Request, reason string) {
	write(w, r, models.NewInfeasible(traceID(r), reason))
}

// NotFound writes a 404 problem.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	write(w, r, models.NewNotFound(traceID(r), detail))
}

// MethodNotAllowed writes a 405 problem.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request, detail string) {
	write(w, r, models.NewMethodNotAllowed(traceID(r), detail))
}

// InternalError writes a 500 problem. detail must not leak internals.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	write(w, r, models.NewInternalError(traceID(r), detail))
}

func write(w http.ResponseWriter, r *http.Request, p *models.Problem) {
	p.Instance = r.URL.Path
	p.Write(w)
}

func traceID(r *http.Request) string {
	return middleware.GetRequestID(r.Context())
}
