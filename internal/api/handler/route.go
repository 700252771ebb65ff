package handler

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetroute/fleetroute/internal/api/middleware"
	"github.com/fleetroute/fleetroute/internal/api/models"
	"github.com/fleetroute/fleetroute/internal/api/response"
	"github.com/fleetroute/fleetroute/internal/planner"
	"github.com/fleetroute/fleetroute/internal/solver"
)

// maxBodyBytes caps request bodies; 200 customers fit comfortably.
const maxBodyBytes = 1 << 20

// RoutePlanner is the planning service behind the route endpoints.
type RoutePlanner interface {
	Optimize(ctx context.Context, req *planner.Request) (*planner.Plan, error)
	Baseline(ctx context.Context, req *planner.Request) (*planner.BaselinePlan, error)
}

// RouteHandler handles routing endpoints.
type RouteHandler struct {
	planner RoutePlanner
	logger  zerolog.Logger
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(p RoutePlanner, logger zerolog.Logger) *RouteHandler {
	return &RouteHandler{planner: p, logger: logger}
}

// Optimize handles POST /v1/routes:optimize. The body is either a JSON
// OptimizeRequest or a text/csv location sheet; for CSV, numVehicles and
// capacity come from the query string.
func (h *RouteHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var (
		req *planner.Request
		err error
	)
	if isCSV(r) {
		req, err = decodeCSV(r)
	} else {
		var input models.OptimizeRequest
		if !response.DecodeJSON(w, r, &input) {
			return
		}
		req = &planner.Request{
			Depot:       toLocation(input.Depot),
			Customers:   toLocations(input.Customers),
			NumVehicles: input.NumVehicles,
			Capacity:    input.Capacity,
		}
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	plan, err := h.planner.Optimize(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, toOptimizeResponse(plan))
}

// Baseline handles POST /v1/routes:baseline.
func (h *RouteHandler) Baseline(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var input models.BaselineRequest
	if !response.DecodeJSON(w, r, &input) {
		return
	}

	result, err := h.planner.Baseline(r.Context(), &planner.Request{
		Depot:       toLocation(input.Depot),
		Customers:   toLocations(input.Customers),
		NumVehicles: input.NumVehicles,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := models.BaselineResponse{
		BeforeDistance: result.DistanceMeters,
		BeforeTime:     result.DurationSeconds,
		Breakdown:      make([]models.BaselineVehicle, 0, len(result.Breakdown)),
		MatrixSource:   result.MatrixSource,
		Warnings:       result.Warnings,
	}
	for _, b := range result.Breakdown {
		resp.Breakdown = append(resp.Breakdown, models.BaselineVehicle{
			Vehicle:  b.Vehicle,
			Distance: b.DistanceMeters,
			Duration: b.DurationSeconds,
		})
	}

	response.JSON(w, r, http.StatusOK, resp)
}

// writeError maps planner errors onto problem responses.
func (h *RouteHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr   *planner.ValidationError
		infErr *solver.InfeasibleError
		tooBig *http.MaxBytesError
	)
	switch {
	case errors.As(err, &verr):
		response.ValidationFailed(w, r, verr.Errors)
	case errors.As(err, &infErr):
		response.Infeasible(w, r, infErr.Reason)
	case errors.As(err, &tooBig):
		response.InvalidBody(w, r, response.BodyTooLargeDetail(tooBig.Limit))
	case errors.Is(err, context.Canceled):
		// Client went away.
		middleware.RequestLogger(r.Context(), h.logger).Debug().Msg("request canceled")
	default:
		middleware.RequestLogger(r.Context(), h.logger).Error().
			Err(err).
			Str("path", r.URL.Path).
			Msg("route planning failed")
		response.InternalError(w, r, "route planning failed")
	}
}

func isCSV(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "text/csv"
}

// decodeCSV parses a location sheet and applies the fleet query parameters.
func decodeCSV(r *http.Request) (*planner.Request, error) {
	req, err := planner.ParseCSV(r.Body)
	if err != nil {
		return nil, err
	}

	var fieldErrs []models.FieldError
	query := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  **int
	}{
		{name: "numVehicles", dst: &req.NumVehicles},
		{name: "capacity", dst: &req.Capacity},
	} {
		raw := query.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			fieldErrs = append(fieldErrs, models.FieldError{Field: p.name, Message: "must be a whole number"})
			continue
		}
		*p.dst = &n
	}
	if len(fieldErrs) > 0 {
		return nil, &planner.ValidationError{Errors: fieldErrs}
	}
	return req, nil
}

func toLocation(in *models.LocationInput) *planner.Location {
	if in == nil {
		return nil
	}
	return &planner.Location{
		Name:   in.DisplayName(),
		Lat:    in.Lat,
		Lon:    in.Lon,
		Demand: in.Demand,
	}
}

func toLocations(in []models.LocationInput) []planner.Location {
	out := make([]planner.Location, 0, len(in))
	for i := range in {
		out = append(out, *toLocation(&in[i]))
	}
	return out
}

func toOptimizeResponse(plan *planner.Plan) models.OptimizeResponse {
	resp := models.OptimizeResponse{
		PlanID:        plan.ID,
		GeneratedAt:   models.Timestamp(time.Now().UTC()),
		Vehicles:      make([]models.VehicleRoute, 0, len(plan.Vehicles)),
		TotalDistance: plan.TotalDistance(),
		TotalDuration: plan.TotalDuration(),
		MatrixSource:  plan.MatrixSource,
		Warnings:      plan.Warnings,
	}
	if resp.Warnings == nil {
		resp.Warnings = []string{}
	}

	for _, v := range plan.Vehicles {
		vr := models.VehicleRoute{
			ID:            v.ID,
			Stops:         make([]models.Stop, 0, len(v.Stops)),
			Load:          v.Load,
			TotalDistance: v.DistanceMeters,
			TotalDuration: v.DurationSeconds,
			Estimated:     v.Degraded,
		}
		for _, s := range v.Stops {
			vr.Stops = append(vr.Stops, models.Stop{Name: s.Name, Lat: s.Lat, Lon: s.Lon, Demand: s.Demand})
		}

		var geometry *string
		if v.Geometry != "" {
			g := v.Geometry
			geometry = &g
		}
		vr.Geometry = geometry
		if bb := v.BoundingBox; bb != nil {
			vr.BBox = &models.GeoBox{MinLat: bb.MinLat, MinLon: bb.MinLon, MaxLat: bb.MaxLat, MaxLon: bb.MaxLon}
		}
		vr.Route = models.RouteEnvelope{Routes: []models.RoutedPath{{
			Summary:  models.RouteSummary{Distance: v.DistanceMeters, Duration: v.DurationSeconds},
			Geometry: geometry,
		}}}

		resp.Vehicles = append(resp.Vehicles, vr)
	}
	return resp
}
