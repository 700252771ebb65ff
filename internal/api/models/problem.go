package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 error body, served as application/problem+json.
// TraceID carries the request id so a caller can quote it back.
type Problem struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail,omitempty"`
	Instance string       `json:"instance,omitempty"`
	TraceID  string       `json:"traceId"`
	Errors   []FieldError `json:"errors,omitempty"`
}

// FieldError points at one invalid field of a routing request, using the
// JSON path of the field (customers[2].demand).
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Problem type URIs.
const (
	ProblemTypeValidation           = "https://fleetroute.dev/problems/validation-error"
	ProblemTypeInfeasible           = "https://fleetroute.dev/problems/infeasible"
	ProblemTypeNotFound             = "https://fleetroute.dev/problems/not-found"
	ProblemTypeMethodNotAllowed     = "https://fleetroute.dev/problems/method-not-allowed"
	ProblemTypeUnsupportedMediaType = "https://fleetroute.dev/problems/unsupported-media-type"
	ProblemTypeTLSRequired          = "https://fleetroute.dev/problems/tls-required"
	ProblemTypeTooManyRequests      = "https://fleetroute.dev/problems/too-many-requests"
	ProblemTypeInternal             = "https://fleetroute.dev/problems/internal-error"
)

type problemKind struct {
	uri    string
	title  string
	status int
}

var (
	kindValidation       = problemKind{ProblemTypeValidation, "Validation error", http.StatusBadRequest}
	kindInfeasible       = problemKind{ProblemTypeInfeasible, "Infeasible routing problem", http.StatusUnprocessableEntity}
	kindNotFound         = problemKind{ProblemTypeNotFound, "Not found", http.StatusNotFound}
	kindMethodNotAllowed = problemKind{ProblemTypeMethodNotAllowed, "Method not allowed", http.StatusMethodNotAllowed}
	kindMediaType        = problemKind{ProblemTypeUnsupportedMediaType, "Unsupported media type", http.StatusUnsupportedMediaType}
	kindTLSRequired      = problemKind{ProblemTypeTLSRequired, "TLS required", http.StatusForbidden}
	kindTooManyRequests  = problemKind{ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests}
	kindInternal         = problemKind{ProblemTypeInternal, "Internal server error", http.StatusInternalServerError}
)

func (k problemKind) new(traceID, detail string) *Problem {
	return &Problem{
		Type:    k.uri,
		Title:   k.title,
		Status:  k.status,
		Detail:  detail,
		TraceID: traceID,
	}
}

// NewProblem builds a Problem of an arbitrary type with no detail.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return problemKind{problemType, title, status}.new(traceID, "")
}

// Write sends the problem with its status. The request id header is repeated
// so clients that only read headers still get it.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		w.Header().Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest is a 400 for a malformed or invalid routing request.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	p := kindValidation.new(traceID, detail)
	p.Errors = errors
	return p
}

// NewInfeasible is a 422 for a request that no assignment of customers to
// vehicles can satisfy.
func NewInfeasible(traceID, detail string) *Problem {
	return kindInfeasible.new(traceID, detail)
}

func NewNotFound(traceID, detail string) *Problem {
	return kindNotFound.new(traceID, detail)
}

func NewMethodNotAllowed(traceID, detail string) *Problem {
	return kindMethodNotAllowed.new(traceID, detail)
}

func NewUnsupportedMediaType(traceID, detail string) *Problem {
	return kindMediaType.new(traceID, detail)
}

// NewTLSRequired is a 403 for a plain-http request behind a TLS proxy.
func NewTLSRequired(traceID, detail string) *Problem {
	return kindTLSRequired.new(traceID, detail)
}

func NewTooManyRequests(traceID, detail string) *Problem {
	return kindTooManyRequests.new(traceID, detail)
}

// NewInternalError is a 500. detail is shown to the client and must not
// carry solver or provider internals.
func NewInternalError(traceID, detail string) *Problem {
	return kindInternal.new(traceID, detail)
}
