package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetroute/fleetroute/internal/api/handler"
	"github.com/fleetroute/fleetroute/internal/api/models"
	"github.com/fleetroute/fleetroute/internal/planner"
	"github.com/fleetroute/fleetroute/internal/routing"
	"github.com/fleetroute/fleetroute/internal/solver"
)

// fakePlanner records the last request and returns canned results.
type fakePlanner struct {
	got      *planner.Request
	plan     *planner.Plan
	baseline *planner.BaselinePlan
	err      error
}

func (f *fakePlanner) Optimize(_ context.Context, req *planner.Request) (*planner.Plan, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.plan, nil
}

func (f *fakePlanner) Baseline(_ context.Context, req *planner.Request) (*planner.BaselinePlan, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.baseline, nil
}

func samplePlan() *planner.Plan {
	return &planner.Plan{
		ID:           "pln_test",
		MatrixSource: "openrouteservice",
		Warnings:     []string{"Vehicle 2: directions unavailable (provider unavailable); using matrix estimate"},
		Vehicles: []planner.VehicleResult{
			{
				ID:              1,
				Stops:           []planner.Stop{{Index: 1, Name: "Andheri", Lat: 19.11, Lon: 72.86, Demand: 5}},
				Load:            5,
				DistanceMeters:  4200,
				DurationSeconds: 600,
				Geometry:        "_p~iF~ps|U",
				BoundingBox:     &routing.BoundingBox{MinLon: 72.8, MinLat: 19.0, MaxLon: 72.9, MaxLat: 19.2},
			},
			{
				ID:              2,
				Stops:           []planner.Stop{{Index: 2, Name: "Stop 2", Lat: 19.05, Lon: 72.83, Demand: 3}},
				Load:            3,
				DistanceMeters:  3000,
				DurationSeconds: 200,
				Degraded:        true,
			},
		},
	}
}

const optimizeBody = `{
  "depot": {"lat": 19.076, "lon": 72.8777},
  "customers": [
    {"name": "Andheri", "lat": 19.11, "lon": 72.86, "demand": 5},
    {"LocationName": "Bandra", "lat": 19.05, "lon": 72.83, "demand": 3}
  ],
  "numVehicles": 2,
  "capacity": 10
}`

func newRouteHandler(p *fakePlanner) *handler.RouteHandler {
	return handler.NewRouteHandler(p, zerolog.Nop())
}

func TestRouteHandler_Optimize(t *testing.T) {
	fp := &fakePlanner{plan: samplePlan()}
	h := newRouteHandler(fp)

	req := httptest.NewRequest(http.MethodPost, "/v1/routes:optimize", strings.NewReader(optimizeBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.Optimize(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	require.NotNil(t, fp.got)
	require.NotNil(t, fp.got.Depot)
	assert.Equal(t, 19.076, fp.got.Depot.Lat)
	require.Len(t, fp.got.Customers, 2)
	assert.Equal(t, "Andheri", fp.got.Customers[0].Name)
	assert.Equal(t, "Bandra", fp.got.Customers[1].Name)
	require.NotNil(t, fp.got.NumVehicles)
	assert.Equal(t, 2, *fp.got.NumVehicles)
	require.NotNil(t, fp.got.Capacity)
	assert.Equal(t, 10, *fp.got.Capacity)

	var resp models.OptimizeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pln_test", resp.PlanID)
	assert.Equal(t, 7200, resp.TotalDistance)
	assert.Equal(t, 800, resp.TotalDuration)
	assert.Equal(t, "openrouteservice", resp.MatrixSource)
	assert.Len(t, resp.Warnings, 1)

	require.Len(t, resp.Vehicles, 2)
	v1 := resp.Vehicles[0]
	assert.Equal(t, 1, v1.ID)
	assert.Equal(t, []models.Stop{{Name: "Andheri", Lat: 19.11, Lon: 72.86, Demand: 5}}, v1.Stops)
	assert.Equal(t, 5, v1.Load)
	require.NotNil(t, v1.Geometry)
	assert.Equal(t, "_p~iF~ps|U", *v1.Geometry)
	require.NotNil(t, v1.BBox)
	assert.Equal(t, 19.2, v1.BBox.MaxLat)
	assert.False(t, v1.Estimated)
	require.Len(t, v1.Route.Routes, 1)
	assert.Equal(t, models.RouteSummary{Distance: 4200, Duration: 600}, v1.Route.Routes[0].Summary)

	v2 := resp.Vehicles[1]
	assert.True(t, v2.Estimated)
	assert.Nil(t, v2.Geometry)
	assert.Nil(t, v2.BBox)
	require.Len(t, v2.Route.Routes, 1)
	assert.Nil(t, v2.Route.Routes[0].Geometry)
	assert.Equal(t, 3000, v2.Route.Routes[0].Summary.Distance)
}

func TestRouteHandler_Optimize_DegradedGeometryIsJSONNull(t *testing.T) {
	h := newRouteHandler(&fakePlanner{plan: samplePlan()})

	req := httptest.NewRequest(http.MethodPost, "/v1/routes:optimize", strings.NewReader(optimizeBody))
	rec := httptest.NewRecorder()
	h.Optimize(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var raw struct {
		Vehicles []map[string]json.RawMessage `json:"vehicles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.Len(t, raw.Vehicles, 2)
	_, hasGeometry := raw.Vehicles[1]["geometry"]
	assert.False(t, hasGeometry)
	assert.Contains(t, string(raw.Vehicles[1]["route"]), `"geometry":null`)
}

func TestRouteHandler_Optimize_CSV(t *testing.T) {
	fp := &fakePlanner{plan: &planner.Plan{ID: "pln_csv", Warnings: []string{}}}
	h := newRouteHandler(fp)

	sheet := "LocationName,Latitude,Longitude,Demand\nDepot,19.076,72.8777,0\nAndheri,19.11,72.86,5\n"
	req := httptest.NewRequest(http.MethodPost, "/v1/routes:optimize?numVehicles=3&capacity=15", strings.NewReader(sheet))
	req.Header.Set("Content-Type", "text/csv; charset=utf-8")
	rec := httptest.NewRecorder()

	h.Optimize(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, fp.got)
	assert.Equal(t, "Depot", fp.got.Depot.Name)
	require.Len(t, fp.got.Customers, 1)
	assert.Equal(t, "Andheri", fp.got.Customers[0].Name)
	require.NotNil(t, fp.got.NumVehicles)
	assert.Equal(t, 3, *fp.got.NumVehicles)
	require.NotNil(t, fp.got.Capacity)
	assert.Equal(t, 15, *fp.got.Capacity)

	var resp models.OptimizeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Vehicles)
	assert.NotNil(t, resp.Warnings)
}

func TestRouteHandler_Optimize_CSVBadQuery(t *testing.T) {
	fp := &fakePlanner{}
	h := newRouteHandler(fp)

	sheet := "LocationName,Latitude,Longitude,Demand\nDepot,19.076,72.8777,0\nAndheri,19.11,72.86,5\n"
	req := httptest.NewRequest(http.MethodPost, "/v1/routes:optimize?numVehicles=two", strings.NewReader(sheet))
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()

	h.Optimize(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, fp.got)

	var problem models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Len(t, problem.Errors, 1)
	assert.Equal(t, "numVehicles", problem.Errors[0].Field)
}

func TestRouteHandler_Optimize_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantType   string
	}{
		{
			name:       "malformed json",
			body:       `{"depot":`,
			wantStatus: http.StatusBadRequest,
			wantType:   models.ProblemTypeValidation,
		},
		{
			name: "validation",
			body: optimizeBody,
			err: &planner.ValidationError{Errors: []models.FieldError{
				{Field: "customers[0].lat", Message: "must be between -90 and 90"},
			}},
			wantStatus: http.StatusBadRequest,
			wantType:   models.ProblemTypeValidation,
		},
		{
			name:       "infeasible",
			body:       optimizeBody,
			err:        &solver.InfeasibleError{Reason: "customer 1 demand 50 exceeds vehicle capacity 10"},
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   models.ProblemTypeInfeasible,
		},
		{
			name:       "unexpected",
			body:       optimizeBody,
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantType:   models.ProblemTypeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRouteHandler(&fakePlanner{err: tt.err})

			req := httptest.NewRequest(http.MethodPost, "/v1/routes:optimize", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			h.Optimize(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

			var problem models.Problem
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			assert.Equal(t, tt.wantType, problem.Type)
			assert.Equal(t, "/v1/routes:optimize", problem.Instance)
			if tt.wantStatus == http.StatusUnprocessableEntity {
				assert.Contains(t, problem.Detail, "exceeds vehicle capacity")
			}
			if tt.name == "validation" {
				require.Len(t, problem.Errors, 1)
				assert.Equal(t, "customers[0].lat", problem.Errors[0].Field)
			}
			assert.NotContains(t, rec.Body.String(), "boom")
		})
	}
}

func TestRouteHandler_Optimize_BodyTooLarge(t *testing.T) {
	fp := &fakePlanner{}
	h := newRouteHandler(fp)

	body := `{"customers":[` + strings.Repeat(`{"lat":1,"lon":1,"demand":1},`, 60000) + `{"lat":1,"lon":1}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/routes:optimize", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Optimize(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, fp.got)
}

func TestRouteHandler_Baseline(t *testing.T) {
	fp := &fakePlanner{baseline: &planner.BaselinePlan{
		ID:              "bsl_test",
		DistanceMeters:  9000,
		DurationSeconds: 900,
		Breakdown: []planner.VehicleBreakdown{
			{Vehicle: 1, DistanceMeters: 6000, DurationSeconds: 600},
			{Vehicle: 2, DistanceMeters: 3000, DurationSeconds: 300},
		},
		Warnings:     []string{},
		MatrixSource: "synthetic",
	}}
	h := newRouteHandler(fp)

	body := `{"depot":{"lat":19.076,"lon":72.8777},"customers":[{"lat":19.11,"lon":72.86,"demand":5}],"numVehicles":2,"capacity":99}`
	req := httptest.NewRequest(http.MethodPost, "/v1/routes:baseline", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Baseline(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, fp.got)
	assert.Nil(t, fp.got.Capacity)
	require.NotNil(t, fp.got.NumVehicles)
	assert.Equal(t, 2, *fp.got.NumVehicles)

	var resp models.BaselineResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 9000, resp.BeforeDistance)
	assert.Equal(t, 900, resp.BeforeTime)
	assert.Equal(t, "synthetic", resp.MatrixSource)
	assert.Equal(t, []models.BaselineVehicle{
		{Vehicle: 1, Distance: 6000, Duration: 600},
		{Vehicle: 2, Distance: 3000, Duration: 300},
	}, resp.Breakdown)
	assert.NotContains(t, rec.Body.String(), `"warnings"`)
}

func TestRouteHandler_Baseline_Validation(t *testing.T) {
	h := newRouteHandler(&fakePlanner{err: &planner.ValidationError{Errors: []models.FieldError{
		{Field: "depot", Message: "is required"},
	}}})

	req := httptest.NewRequest(http.MethodPost, "/v1/routes:baseline", strings.NewReader(`{"customers":[]}`))
	rec := httptest.NewRecorder()

	h.Baseline(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"depot"`)
}
