package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fleetroute/fleetroute/internal/api/middleware"
	"github.com/fleetroute/fleetroute/internal/api/models"
	"github.com/fleetroute/fleetroute/internal/api/response"
)

// requestWithID runs req through the RequestID middleware so its context
// carries a request id, and returns the processed request.
func requestWithID(t *testing.T, req *http.Request) *http.Request {
	t.Helper()
	var processed *http.Request
	middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		processed = r
	})).ServeHTTP(httptest.NewRecorder(), req)
	return processed
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("expected problem+json content type, got %q", ct)
	}
	var problem models.Problem
	if err := json.NewDecoder(rec.Body).Decode(&problem); err != nil {
		t.Fatalf("failed to decode Problem response: %v", err)
	}
	return problem
}

func TestJSON_HeadersAndBody(t *testing.T) {
	req := requestWithID(t, httptest.NewRequest(http.MethodPost, "/v1/routes:baseline", http.NoBody))
	rec := httptest.NewRecorder()

	response.JSON(rec, req, http.StatusOK, map[string]int{"beforeDistance": 9000})

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("expected Cache-Control no-store, got %q", got)
	}
	if got := rec.Header().Get(middleware.RequestIDHeader); got != middleware.GetRequestID(req.Context()) {
		t.Errorf("expected request id %q, got %q", middleware.GetRequestID(req.Context()), got)
	}
	if !strings.Contains(rec.Body.String(), `"beforeDistance":9000`) {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestJSON_WithoutRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	response.JSON(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody), http.StatusOK, nil)

	if got := rec.Header().Get(middleware.RequestIDHeader); got != "" {
		t.Errorf("expected no request id header, got %q", got)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body for nil data, got %q", rec.Body.String())
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		limit      int64
		wantOK     bool
		wantDetail string
	}{
		{name: "valid", body: `{"question":"how much fuel?"}`, limit: 1024, wantOK: true},
		{name: "malformed", body: `{"question":`, limit: 1024, wantDetail: "invalid JSON body"},
		{name: "wrong type", body: `{"question":7}`, limit: 1024, wantDetail: "invalid JSON body"},
		{name: "too large", body: `{"question":"` + strings.Repeat("x", 64) + `"}`, limit: 16, wantDetail: "request body exceeds 16 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := requestWithID(t, httptest.NewRequest(http.MethodPost, "/v1/insights:ask", strings.NewReader(tt.body)))
			req.Body = http.MaxBytesReader(rec, req.Body, tt.limit)

			var dst models.AskRequest
			ok := response.DecodeJSON(rec, req, &dst)

			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v", tt.wantOK, ok)
			}
			if tt.wantOK {
				if dst.Question != "how much fuel?" {
					t.Errorf("unexpected question %q", dst.Question)
				}
				return
			}
			problem := decodeProblem(t, rec)
			if problem.Status != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", problem.Status)
			}
			if problem.Detail != tt.wantDetail {
				t.Errorf("expected detail %q, got %q", tt.wantDetail, problem.Detail)
			}
		})
	}
}

func TestValidationFailed_ListsFields(t *testing.T) {
	req := requestWithID(t, httptest.NewRequest(http.MethodPost, "/v1/routes:optimize", http.NoBody))
	rec := httptest.NewRecorder()

	response.ValidationFailed(rec, req, []models.FieldError{{Field: "depot", Message: "is required"}})

	problem := decodeProblem(t, rec)
	if rec.Code != http.StatusBadRequest || problem.Type != models.ProblemTypeValidation {
		t.Errorf("expected 400 validation problem, got %d %q", rec.Code, problem.Type)
	}
	if problem.Detail != response.DetailValidationFailed {
		t.Errorf("unexpected detail %q", problem.Detail)
	}
	if len(problem.Errors) != 1 || problem.Errors[0].Field != "depot" {
		t.Errorf("unexpected field errors %+v", problem.Errors)
	}
	if problem.TraceID == "" || problem.TraceID != rec.Header().Get(middleware.RequestIDHeader) {
		t.Errorf("expected traceId to match the request id header, got %q", problem.TraceID)
	}
	if problem.Instance != "/v1/routes:optimize" {
		t.Errorf("expected instance /v1/routes:optimize, got %q", problem.Instance)
	}
}

func TestProblemWriters(t *testing.T) {
	tests := []struct {
		name       string
		write      func(http.ResponseWriter, *http.Request)
		wantStatus int
		wantType   string
	}{
		{
			name:       "infeasible",
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   models.ProblemTypeInfeasible,
			write: func(w http.ResponseWriter, r *http.Request) {
				response.Infeasible(w, r, "customer 3 demand 50 exceeds vehicle capacity 40")
			},
		},
		{
			name:       "invalid body",
			wantStatus: http.StatusBadRequest,
			wantType:   models.ProblemTypeValidation,
			write: func(w http.ResponseWriter, r *http.Request) {
				response.InvalidBody(w, r, "invalid JSON body")
			},
		},
		{
			name:       "not found",
			wantStatus: http.StatusNotFound,
			wantType:   models.ProblemTypeNotFound,
			write: func(w http.ResponseWriter, r *http.Request) {
				response.NotFound(w, r, "no route for /v1/unknown")
			},
		},
		{
			name:       "method not allowed",
			wantStatus: http.StatusMethodNotAllowed,
			wantType:   models.ProblemTypeMethodNotAllowed,
			write: func(w http.ResponseWriter, r *http.Request) {
				response.MethodNotAllowed(w, r, "GET is not supported")
			},
		},
		{
			name:       "internal",
			wantStatus: http.StatusInternalServerError,
			wantType:   models.ProblemTypeInternal,
			write: func(w http.ResponseWriter, r *http.Request) {
				response.InternalError(w, r, "route planning failed")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := requestWithID(t, httptest.NewRequest(http.MethodPost, "/v1/routes:optimize", http.NoBody))
			rec := httptest.NewRecorder()

			tt.write(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			problem := decodeProblem(t, rec)
			if problem.Status != tt.wantStatus || problem.Type != tt.wantType {
				t.Errorf("expected %d %q, got %d %q", tt.wantStatus, tt.wantType, problem.Status, problem.Type)
			}
			if problem.TraceID == "" {
				t.Error("expected traceId to be set")
			}
		})
	}
}

func TestRequestIDPropagation(t *testing.T) {
	in := httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody)
	in.Header.Set(middleware.RequestIDHeader, "client-request-123")
	req := requestWithID(t, in)

	rec := httptest.NewRecorder()
	response.JSON(rec, req, http.StatusOK, map[string]string{"status": "OK"})

	if got := rec.Header().Get(middleware.RequestIDHeader); got != "client-request-123" {
		t.Errorf("expected response X-Request-Id to match client's, got %q", got)
	}
}
