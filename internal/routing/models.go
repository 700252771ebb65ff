// Package routing defines what the optimizer needs from a road network: a
// batched travel-cost matrix and a routed path through ordered stops.
package routing

import (
	"context"
	"errors"
	"fmt"
)

// Failure classes a provider wraps in *Error.
var (
	ErrProviderUnavailable = errors.New("routing provider unavailable") // down, 5xx, timeout or open circuit
	ErrNoRouteFound        = errors.New("no route found between the given points")
	ErrRateLimitExceeded   = errors.New("rate limit exceeded")
	ErrInvalidCoordinates  = errors.New("invalid coordinates")
	ErrMalformedResponse   = errors.New("malformed provider response")
)

// MatrixSource answers all-pairs travel costs in one call.
type MatrixSource interface {
	GetMatrix(ctx context.Context, req MatrixRequest) (*MatrixResponse, error)
	Name() string
}

// DirectionsSource routes one path through waypoints in the given order.
type DirectionsSource interface {
	GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error)
	Name() string
}

// Provider serves both lookups from one backend.
type Provider interface {
	MatrixSource
	DirectionsSource
}

// RouteProfile names the vehicle type the road network is routed for.
type RouteProfile string

const (
	ProfileCar RouteProfile = "driving-car" // delivery vans
	ProfileHGV RouteProfile = "driving-hgv"
)

// Coordinate is a WGS84 point in degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Validate rejects points outside [-90, 90] x [-180, 180].
func (c Coordinate) Validate() error {
	switch {
	case c.Lat < -90 || c.Lat > 90:
		return fmt.Errorf("latitude %f out of range [-90, 90]", c.Lat)
	case c.Lon < -180 || c.Lon > 180:
		return fmt.Errorf("longitude %f out of range [-180, 180]", c.Lon)
	}
	return nil
}

type MatrixRequest struct {
	Locations []Coordinate // depot first, then customers
	Profile   RouteProfile
}

// MatrixResponse is index-aligned with MatrixRequest.Locations and holds
// finite, non-negative values. Durations is nil when the provider omitted
// them.
type MatrixResponse struct {
	Distances [][]float64 // meters
	Durations [][]float64 // seconds
	Provider  string
}

type DirectionsRequest struct {
	Waypoints []Coordinate // at least two, visited in order
	Profile   RouteProfile
}

type DirectionsResponse struct {
	Routes   []Route
	Provider string
}

// Route is one routed path. Segments has one entry per consecutive
// waypoint pair.
type Route struct {
	GeometryPolyline string // precision 5
	DistanceMeters   int
	DurationSeconds  int
	BoundingBox      *BoundingBox
	Segments         []Segment
}

type Segment struct {
	DistanceMeters  int
	DurationSeconds int
}

type BoundingBox struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// Error is a provider failure. Err is one of the sentinels above, Code the
// provider's own code when it sent one.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports failures likely to clear on their own. Nothing
// retries on it; it picks log levels and warning wording.
func (e *Error) IsTransient() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}
