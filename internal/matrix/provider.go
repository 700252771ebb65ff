package matrix

import (
	"context"
	"errors"
	"math"

	"github.com/rs/zerolog"

	"github.com/fleetroute/fleetroute/internal/routing"
	"github.com/fleetroute/fleetroute/internal/telemetry"
)

const (
	// SourceSynthetic marks matrices estimated from straight-line distance.
	SourceSynthetic = "synthetic"

	// DefaultFallbackSpeed is the assumed travel speed in m/s for synthetic durations.
	DefaultFallbackSpeed = 15.0

	// metersPerDegree converts planar degree distance to meters.
	metersPerDegree = 111000.0
)

// ErrNoSource is the fallback cause when no matrix source is configured.
var ErrNoSource = errors.New("no matrix source configured")

// Result holds the matrices for one request and how they were obtained.
type Result struct {
	Distances Matrix // meters
	Durations Matrix // seconds

	// Degraded is true when the synthetic fallback replaced the provider.
	Degraded bool

	// Source is the provider name, or SourceSynthetic.
	Source string

	// Cause is the provider failure that triggered the fallback.
	Cause error

	// DurationsDerived is true when the provider returned distances only
	// and durations were computed from them with the fallback speed.
	DurationsDerived bool
}

// Config configures a Provider.
type Config struct {
	// Source is the routing backend (optional; nil always falls back).
	Source routing.MatrixSource

	// Profile is passed through to the source.
	Profile routing.RouteProfile

	// FallbackSpeed in m/s. Defaults to DefaultFallbackSpeed.
	FallbackSpeed float64

	// Metrics records fallbacks (optional).
	Metrics *telemetry.ProviderMetrics

	Logger zerolog.Logger
}

// Provider computes distance and duration matrices for a location list.
type Provider struct {
	source  routing.MatrixSource
	profile routing.RouteProfile
	speed   float64
	metrics *telemetry.ProviderMetrics
	logger  zerolog.Logger
}

// NewProvider creates a matrix provider.
func NewProvider(cfg Config) *Provider {
	speed := cfg.FallbackSpeed
	if speed <= 0 {
		speed = DefaultFallbackSpeed
	}
	return &Provider{
		source:  cfg.Source,
		profile: cfg.Profile,
		speed:   speed,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

// Compute returns matrices index-aligned with locations. It makes at most one
// provider call and never fails: any provider problem yields the synthetic
// estimate for the whole matrix with Degraded set.
func (p *Provider) Compute(ctx context.Context, locations []routing.Coordinate) Result {
	n := len(locations)
	if n <= 1 {
		source := SourceSynthetic
		if p.source != nil {
			source = p.source.Name()
		}
		return Result{Distances: Zero(n), Durations: Zero(n), Source: source}
	}

	if p.source == nil {
		return p.fallback(locations, ErrNoSource)
	}

	resp, err := p.source.GetMatrix(ctx, routing.MatrixRequest{
		Locations: locations,
		Profile:   p.profile,
	})
	if err != nil {
		return p.fallback(locations, err)
	}

	distances, err := roundMatrix(resp.Distances, n)
	if err != nil {
		return p.fallback(locations, err)
	}

	result := Result{
		Distances: distances,
		Source:    p.source.Name(),
	}

	if resp.Durations == nil {
		result.Durations = p.durationsFrom(distances)
		result.DurationsDerived = true
		p.logger.Warn().
			Str("source", result.Source).
			Msg("matrix response had no durations, deriving from distances")
		return result
	}

	durations, err := roundMatrix(resp.Durations, n)
	if err != nil {
		return p.fallback(locations, err)
	}
	result.Durations = durations

	return result
}

func (p *Provider) fallback(locations []routing.Coordinate, cause error) Result {
	event := p.logger.Warn()
	var rerr *routing.Error
	if errors.As(cause, &rerr) && !rerr.IsTransient() {
		event = p.logger.Error()
	}
	event.Err(cause).
		Int("locations", len(locations)).
		Float64("fallback_speed", p.speed).
		Msg("matrix provider failed, using synthetic matrix")

	p.metrics.RecordFallback("matrix")

	meters := planar(locations)
	durations := Zero(len(meters))
	for i, row := range meters {
		for j, d := range row {
			durations[i][j] = int(d / p.speed)
		}
	}
	return Result{
		Distances: truncate(meters),
		Durations: durations,
		Degraded:  true,
		Source:    SourceSynthetic,
		Cause:     cause,
	}
}

// durationsFrom derives durations from whole-meter provider distances.
func (p *Provider) durationsFrom(distances Matrix) Matrix {
	n := len(distances)
	out := Zero(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out[i][j] = int(float64(distances[i][j]) / p.speed)
		}
	}
	return out
}

// Synthetic estimates distances from planar degree distance, truncated to
// whole meters. The result is symmetric with a zero diagonal.
func Synthetic(locations []routing.Coordinate) Matrix {
	return truncate(planar(locations))
}

// planar returns the untruncated planar distances in meters. Fallback
// durations divide these, not the truncated values.
func planar(locations []routing.Coordinate) [][]float64 {
	n := len(locations)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dLat := locations[i].Lat - locations[j].Lat
			dLon := locations[i].Lon - locations[j].Lon
			d := math.Sqrt(dLat*dLat+dLon*dLon) * metersPerDegree
			out[i][j] = d
			out[j][i] = d
		}
	}
	return out
}

func truncate(meters [][]float64) Matrix {
	out := Zero(len(meters))
	for i, row := range meters {
		for j, d := range row {
			out[i][j] = int(d)
		}
	}
	return out
}

// roundMatrix converts provider values to whole units, rejecting anything
// that is not an n×n matrix of finite, non-negative numbers.
func roundMatrix(raw [][]float64, n int) (Matrix, error) {
	if len(raw) != n {
		return nil, &routing.Error{
			Code:    "MATRIX_DIMENSIONS",
			Message: "matrix has wrong number of rows",
			Err:     routing.ErrMalformedResponse,
		}
	}
	out := make(Matrix, n)
	for i, row := range raw {
		if len(row) != n {
			return nil, &routing.Error{
				Code:    "MATRIX_DIMENSIONS",
				Message: "matrix row has wrong number of columns",
				Err:     routing.ErrMalformedResponse,
			}
		}
		out[i] = make([]int, n)
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return nil, &routing.Error{
					Code:    "MATRIX_VALUE",
					Message: "matrix contains an invalid value",
					Err:     routing.ErrMalformedResponse,
				}
			}
			out[i][j] = int(math.Round(v))
		}
	}
	return out, nil
}
