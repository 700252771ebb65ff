// Package enrich turns solved routes into road-following paths by asking the
// directions provider for one routed path per vehicle, falling back to the
// request's matrices when the provider cannot answer.
package enrich

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/fleetroute/fleetroute/internal/matrix"
	"github.com/fleetroute/fleetroute/internal/routing"
	"github.com/fleetroute/fleetroute/internal/telemetry"
	"github.com/fleetroute/fleetroute/pkg/polyline"
)

// DefaultConcurrency bounds parallel directions calls per request.
const DefaultConcurrency = 4

// ErrNoSource is the fallback cause when no directions source is configured.
var ErrNoSource = errors.New("no directions source configured")

// Input is one request's solved routes and the data needed to enrich them.
type Input struct {
	// Locations is index-aligned with the matrices; index 0 is the depot.
	Locations []routing.Coordinate

	// Routes has one customer sequence per vehicle, depot excluded.
	Routes [][]int

	Distances matrix.Matrix
	Durations matrix.Matrix
}

// VehicleRoute is the enriched result for one vehicle.
type VehicleRoute struct {
	Vehicle         int // 1-based
	Stops           []int
	DistanceMeters  int
	DurationSeconds int

	// Geometry is an encoded polyline; empty when Degraded or idle.
	Geometry    string
	BoundingBox *routing.BoundingBox

	// Degraded is true when totals come from the matrices.
	Degraded bool
	Warning  string
	Cause    error
}

// Config configures an Enricher.
type Config struct {
	Source      routing.DirectionsSource
	Profile     routing.RouteProfile
	Concurrency int
	Metrics     *telemetry.ProviderMetrics
	Logger      zerolog.Logger
}

// Enricher requests routed paths for solved vehicle routes.
type Enricher struct {
	source      routing.DirectionsSource
	profile     routing.RouteProfile
	concurrency int
	metrics     *telemetry.ProviderMetrics
	logger      zerolog.Logger
}

// NewEnricher creates an enricher.
func NewEnricher(cfg Config) *Enricher {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Enricher{
		source:      cfg.Source,
		profile:     cfg.Profile,
		concurrency: concurrency,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
}

// Enrich returns one VehicleRoute per input route, in vehicle order.
// Vehicles are processed in parallel; a provider failure only degrades the
// affected vehicle.
func (e *Enricher) Enrich(ctx context.Context, in Input) []VehicleRoute {
	out := make([]VehicleRoute, len(in.Routes))

	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for v, stops := range in.Routes {
		out[v] = VehicleRoute{Vehicle: v + 1, Stops: stops}
		if len(stops) == 0 {
			continue
		}
		v := v
		g.Go(func() error {
			e.enrichOne(ctx, in, &out[v])
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // workers never fail; errors become warnings

	return out
}

func (e *Enricher) enrichOne(ctx context.Context, in Input, vr *VehicleRoute) {
	if e.source == nil {
		e.fallback(in, vr, ErrNoSource)
		return
	}

	waypoints := make([]routing.Coordinate, 0, len(vr.Stops)+2)
	waypoints = append(waypoints, in.Locations[0])
	for _, idx := range vr.Stops {
		waypoints = append(waypoints, in.Locations[idx])
	}
	waypoints = append(waypoints, in.Locations[0])

	resp, err := e.source.GetDirections(ctx, routing.DirectionsRequest{
		Waypoints: waypoints,
		Profile:   e.profile,
	})
	if err != nil {
		e.fallback(in, vr, err)
		return
	}
	if len(resp.Routes) == 0 {
		e.fallback(in, vr, &routing.Error{
			Provider: resp.Provider,
			Code:     "NO_ROUTES",
			Message:  "directions response contains no routes",
			Err:      routing.ErrMalformedResponse,
		})
		return
	}

	route := resp.Routes[0]
	points, err := polyline.Decode(route.GeometryPolyline)
	if err != nil || len(points) == 0 {
		e.fallback(in, vr, &routing.Error{
			Provider: resp.Provider,
			Code:     "BAD_GEOMETRY",
			Message:  "route geometry is not a valid polyline",
			Err:      routing.ErrMalformedResponse,
		})
		return
	}

	vr.DistanceMeters = route.DistanceMeters
	vr.DurationSeconds = route.DurationSeconds
	vr.Geometry = route.GeometryPolyline
	vr.BoundingBox = route.BoundingBox
	if vr.BoundingBox == nil {
		if b, ok := polyline.BoundsOf(points); ok {
			vr.BoundingBox = &routing.BoundingBox{
				MinLon: b.MinLon,
				MinLat: b.MinLat,
				MaxLon: b.MaxLon,
				MaxLat: b.MaxLat,
			}
		}
	}
}

func (e *Enricher) fallback(in Input, vr *VehicleRoute, cause error) {
	vr.Degraded = true
	vr.Cause = cause
	vr.DistanceMeters = in.Distances.Tour(vr.Stops)
	vr.DurationSeconds = in.Durations.Tour(vr.Stops)
	vr.Warning = fmt.Sprintf("Vehicle %d: directions unavailable (%s); using matrix estimate", vr.Vehicle, Describe(cause))

	e.logger.Warn().
		Err(cause).
		Int("vehicle", vr.Vehicle).
		Int("stops", len(vr.Stops)).
		Msg("directions failed, using matrix estimate")

	e.metrics.RecordFallback("directions")
}

// Describe returns a short, caller-safe description of a provider failure.
func Describe(err error) string {
	var rerr *routing.Error
	if errors.As(err, &rerr) && rerr.Message != "" {
		return rerr.Message
	}
	return err.Error()
}
