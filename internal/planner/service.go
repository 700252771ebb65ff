// Package planner runs the optimize and baseline pipelines for one request:
// validate, fetch the matrix once, then solve and enrich or compute the
// round-robin baseline over that matrix.
package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fleetroute/fleetroute/internal/baseline"
	"github.com/fleetroute/fleetroute/internal/enrich"
	"github.com/fleetroute/fleetroute/internal/matrix"
	"github.com/fleetroute/fleetroute/internal/routing"
	"github.com/fleetroute/fleetroute/internal/solver"
	"github.com/fleetroute/fleetroute/internal/telemetry"
)

const tracerName = "github.com/fleetroute/fleetroute/internal/planner"

// Defaults.
const (
	DefaultCapacity     = 40
	DefaultMaxCustomers = 200
)

// Config configures a Service.
type Config struct {
	Matrix   *matrix.Provider
	Enricher *enrich.Enricher

	// DefaultCapacity applies when a request omits capacity.
	DefaultCapacity int

	// MaxCustomers caps request size. Negative disables the cap.
	MaxCustomers int

	SolverOptions solver.Options
	Metrics       *telemetry.OptimizerMetrics
	Logger        zerolog.Logger
}

// Service plans vehicle routes.
type Service struct {
	matrix          *matrix.Provider
	enricher        *enrich.Enricher
	defaultCapacity int
	maxCustomers    int
	solverOptions   solver.Options
	metrics         *telemetry.OptimizerMetrics
	tracer          trace.Tracer
	logger          zerolog.Logger
}

// NewService creates a planner service. A nil Matrix or Enricher is replaced
// by one without a provider, which always uses the fallback estimates.
func NewService(cfg Config) *Service {
	mp := cfg.Matrix
	if mp == nil {
		mp = matrix.NewProvider(matrix.Config{Logger: cfg.Logger})
	}
	en := cfg.Enricher
	if en == nil {
		en = enrich.NewEnricher(enrich.Config{Logger: cfg.Logger})
	}

	capacity := cfg.DefaultCapacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	maxCustomers := cfg.MaxCustomers
	if maxCustomers == 0 {
		maxCustomers = DefaultMaxCustomers
	}

	return &Service{
		matrix:          mp,
		enricher:        en,
		defaultCapacity: capacity,
		maxCustomers:    maxCustomers,
		solverOptions:   cfg.SolverOptions,
		metrics:         cfg.Metrics,
		tracer:          otel.Tracer(tracerName),
		logger:          cfg.Logger,
	}
}

// Optimize assigns customers to vehicles and returns the routed plan.
// It returns a *ValidationError for bad input and a *solver.InfeasibleError
// when capacity cannot be met. Provider failures only add warnings.
func (s *Service) Optimize(ctx context.Context, req *Request) (*Plan, error) {
	ctx, span := s.tracer.Start(ctx, "planner.Optimize")
	defer span.End()

	p, err := s.validate(req, true)
	if err != nil {
		span.SetStatus(codes.Error, "invalid input")
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("planner.customers", len(p.locations)-1),
		attribute.Int("planner.vehicles", p.vehicles),
		attribute.Int("planner.capacity", p.capacity),
	)

	plan := &Plan{ID: "pln_" + uuid.New().String(), Warnings: []string{}}

	m := s.computeMatrix(ctx, p)
	plan.MatrixSource = m.Source
	if m.Degraded {
		plan.Warnings = append(plan.Warnings, matrixWarning(m))
	}

	sol, err := s.solve(ctx, p, m)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "solve failed")
		return nil, err
	}
	plan.Cost = sol.Cost
	plan.Iterations = sol.Iterations

	routes := s.enricher.Enrich(ctx, enrich.Input{
		Locations: coordinates(p.locations),
		Routes:    sol.Routes,
		Distances: m.Distances,
		Durations: m.Durations,
	})

	loads := sol.Loads(p.demands())
	degraded := 0
	for _, vr := range routes {
		if len(vr.Stops) == 0 {
			continue
		}
		if vr.Degraded {
			degraded++
			plan.Warnings = append(plan.Warnings, vr.Warning)
		}
		plan.Vehicles = append(plan.Vehicles, VehicleResult{
			ID:              vr.Vehicle,
			Stops:           stopsFor(p.locations, vr.Stops),
			Load:            loads[vr.Vehicle-1],
			DistanceMeters:  vr.DistanceMeters,
			DurationSeconds: vr.DurationSeconds,
			Geometry:        vr.Geometry,
			BoundingBox:     vr.BoundingBox,
			Degraded:        vr.Degraded,
		})
	}

	span.SetAttributes(
		attribute.Bool("planner.matrix_degraded", m.Degraded),
		attribute.Int("planner.vehicles_used", len(plan.Vehicles)),
		attribute.Int("planner.vehicles_degraded", degraded),
		attribute.Int("planner.cost", sol.Cost),
	)

	s.logger.Info().
		Str("plan_id", plan.ID).
		Str("matrix_source", m.Source).
		Int("customers", len(p.locations)-1).
		Int("vehicles_used", len(plan.Vehicles)).
		Int("cost", sol.Cost).
		Int("construction_cost", sol.ConstructionCost).
		Int("iterations", sol.Iterations).
		Int("warnings", len(plan.Warnings)).
		Msg("routes optimized")

	return plan, nil
}

// Baseline computes the round-robin reference plan for the same input.
func (s *Service) Baseline(ctx context.Context, req *Request) (*BaselinePlan, error) {
	ctx, span := s.tracer.Start(ctx, "planner.Baseline")
	defer span.End()

	p, err := s.validate(req, false)
	if err != nil {
		span.SetStatus(codes.Error, "invalid input")
		return nil, err
	}

	m := s.computeMatrix(ctx, p)
	result := baseline.Calculate(m.Distances, m.Durations, p.vehicles)

	out := &BaselinePlan{
		ID:              "bsl_" + uuid.New().String(),
		DistanceMeters:  result.DistanceMeters,
		DurationSeconds: result.DurationSeconds,
		Breakdown:       make([]VehicleBreakdown, 0, len(result.Breakdown)),
		Warnings:        []string{},
		MatrixSource:    m.Source,
	}
	for _, vm := range result.Breakdown {
		out.Breakdown = append(out.Breakdown, VehicleBreakdown{
			Vehicle:         vm.Vehicle,
			DistanceMeters:  vm.DistanceMeters,
			DurationSeconds: vm.DurationSeconds,
		})
	}
	if m.Degraded {
		out.Warnings = append(out.Warnings, matrixWarning(m))
	}

	span.SetAttributes(
		attribute.Bool("planner.matrix_degraded", m.Degraded),
		attribute.Int("planner.baseline_distance", result.DistanceMeters),
	)

	return out, nil
}

func (s *Service) computeMatrix(ctx context.Context, p *problem) matrix.Result {
	ctx, span := s.tracer.Start(ctx, "planner.computeMatrix",
		trace.WithAttributes(attribute.Int("matrix.locations", len(p.locations))),
	)
	defer span.End()

	m := s.matrix.Compute(ctx, coordinates(p.locations))
	span.SetAttributes(
		attribute.String("matrix.source", m.Source),
		attribute.Bool("matrix.degraded", m.Degraded),
	)
	if m.Cause != nil {
		span.RecordError(m.Cause)
	}
	return m
}

func (s *Service) solve(ctx context.Context, p *problem, m matrix.Result) (*solver.Solution, error) {
	ctx, span := s.tracer.Start(ctx, "planner.solve")
	defer span.End()

	customers := len(p.locations) - 1
	start := time.Now()
	sol, err := solver.Solve(ctx, solver.Problem{
		Distances: m.Distances,
		Demands:   p.demands(),
		Capacity:  p.capacity,
		Vehicles:  p.vehicles,
		Options:   s.solverOptions,
	})
	elapsed := time.Since(start)

	if err != nil {
		outcome := "error"
		var infeasible *solver.InfeasibleError
		switch {
		case errors.As(err, &infeasible):
			outcome = "infeasible"
			s.logger.Info().
				Str("reason", infeasible.Reason).
				Bool("search_exhausted", infeasible.Exhausted).
				Int("customers", customers).
				Int("vehicles", p.vehicles).
				Int("capacity", p.capacity).
				Msg("routing problem is infeasible")
		case errors.Is(err, solver.ErrInvalidProblem):
			outcome = "invalid"
			s.logger.Error().Err(err).Msg("solver rejected validated problem")
		default:
			s.logger.Error().Err(err).Msg("solver failed")
		}
		s.metrics.RecordSolve(outcome, customers, elapsed, 0)
		span.RecordError(err)
		return nil, err
	}

	s.metrics.RecordSolve("ok", customers, elapsed, sol.Iterations)
	span.SetAttributes(
		attribute.Int("solver.cost", sol.Cost),
		attribute.Int("solver.iterations", sol.Iterations),
		attribute.Bool("solver.repaired", sol.Repaired),
	)
	return sol, nil
}

func matrixWarning(m matrix.Result) string {
	cause := "no provider configured"
	if m.Cause != nil && !errors.Is(m.Cause, matrix.ErrNoSource) {
		cause = enrich.Describe(m.Cause)
	}
	return fmt.Sprintf("Distance matrix service unavailable (%s); distances and times are straight-line estimates", cause)
}

func coordinates(locations []Location) []routing.Coordinate {
	out := make([]routing.Coordinate, len(locations))
	for i, l := range locations {
		out[i] = l.Coordinate()
	}
	return out
}

func stopsFor(locations []Location, route []int) []Stop {
	stops := make([]Stop, 0, len(route))
	for _, idx := range route {
		l := locations[idx]
		stops = append(stops, Stop{
			Index:  idx,
			Name:   l.Name,
			Lat:    l.Lat,
			Lon:    l.Lon,
			Demand: l.Demand,
		})
	}
	return stops
}
