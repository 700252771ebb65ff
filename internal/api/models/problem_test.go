package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetroute/fleetroute/internal/api/models"
)

func TestNewProblem(t *testing.T) {
	p := models.NewProblem("https://fleetroute.dev/problems/custom", "Custom", http.StatusTeapot, "req_test123")

	assert.Equal(t, "https://fleetroute.dev/problems/custom", p.Type)
	assert.Equal(t, "Custom", p.Title)
	assert.Equal(t, http.StatusTeapot, p.Status)
	assert.Equal(t, "req_test123", p.TraceID)
	assert.Empty(t, p.Detail)
	assert.Empty(t, p.Instance)
	assert.Nil(t, p.Errors)
}

func TestProblemConstructors(t *testing.T) {
	tests := []struct {
		name       string
		problem    *models.Problem
		wantType   string
		wantTitle  string
		wantStatus int
	}{
		{"bad request", models.NewBadRequest("req_1", "invalid input", nil), models.ProblemTypeValidation, "Validation error", http.StatusBadRequest},
		{"infeasible", models.NewInfeasible("req_1", "total demand 90 exceeds fleet capacity 80"), models.ProblemTypeInfeasible, "Infeasible routing problem", http.StatusUnprocessableEntity},
		{"not found", models.NewNotFound("req_1", "no route for /v1/unknown"), models.ProblemTypeNotFound, "Not found", http.StatusNotFound},
		{"method not allowed", models.NewMethodNotAllowed("req_1", "GET is not allowed"), models.ProblemTypeMethodNotAllowed, "Method not allowed", http.StatusMethodNotAllowed},
		{"media type", models.NewUnsupportedMediaType("req_1", "Content-Type must be application/json"), models.ProblemTypeUnsupportedMediaType, "Unsupported media type", http.StatusUnsupportedMediaType},
		{"tls", models.NewTLSRequired("req_1", "This endpoint requires HTTPS"), models.ProblemTypeTLSRequired, "TLS required", http.StatusForbidden},
		{"rate limited", models.NewTooManyRequests("req_1", "rate limit exceeded"), models.ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests},
		{"internal", models.NewInternalError("req_1", "route planning failed"), models.ProblemTypeInternal, "Internal server error", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.problem.Type)
			assert.Equal(t, tt.wantTitle, tt.problem.Title)
			assert.Equal(t, tt.wantStatus, tt.problem.Status)
			assert.Equal(t, "req_1", tt.problem.TraceID)
			assert.NotEmpty(t, tt.problem.Detail)
		})
	}
}

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_test123", "request validation failed", []models.FieldError{
		{Field: "vehicles[0].capacity", Message: "must be positive", Code: "OUT_OF_RANGE"},
	})
	p.Instance = "/v1/routes:optimize"

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))

	var result models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, *p, result)
}

func TestProblem_WriteWithoutTraceID(t *testing.T) {
	w := httptest.NewRecorder()
	models.NewInternalError("", "route planning failed").Write(w)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, w.Header().Get("X-Request-Id"))
	assert.Contains(t, w.Body.String(), `"traceId":""`)
}
