package planner

import (
	"fmt"

	"github.com/fleetroute/fleetroute/internal/routing"
)

// Location is a depot or customer site.
type Location struct {
	Name   string
	Lat    float64
	Lon    float64
	Demand int
}

// Coordinate returns the location's position.
func (l Location) Coordinate() routing.Coordinate {
	return routing.Coordinate{Lat: l.Lat, Lon: l.Lon}
}

// Request is the input of Optimize and Baseline.
type Request struct {
	Depot     *Location
	Customers []Location

	// NumVehicles defaults to 1 when nil.
	NumVehicles *int

	// Capacity defaults to the service's configured capacity when nil.
	// Baseline ignores it.
	Capacity *int
}

// Stop is one visited customer in a vehicle's route.
type Stop struct {
	Index  int // position in the request's location list, depot is 0
	Name   string
	Lat    float64
	Lon    float64
	Demand int
}

// VehicleResult is one vehicle's optimized route.
type VehicleResult struct {
	ID              int // 1-based vehicle number
	Stops           []Stop
	Load            int
	DistanceMeters  int
	DurationSeconds int

	// Geometry is an encoded polyline; empty when the directions
	// provider could not route this vehicle.
	Geometry    string
	BoundingBox *routing.BoundingBox
	Degraded    bool
}

// Plan is the result of Optimize.
type Plan struct {
	ID string

	// Vehicles lists vehicles with at least one stop, ordered by ID.
	Vehicles []VehicleResult

	// Warnings are caller-visible degradations. Never nil.
	Warnings []string

	// MatrixSource names the provider that produced the matrix.
	MatrixSource string

	// Cost is the solver's total distance over the matrix.
	Cost int

	// Iterations is the number of local search moves applied.
	Iterations int
}

// TotalDistance sums the vehicles' distances.
func (p *Plan) TotalDistance() int {
	total := 0
	for _, v := range p.Vehicles {
		total += v.DistanceMeters
	}
	return total
}

// TotalDuration sums the vehicles' durations.
func (p *Plan) TotalDuration() int {
	total := 0
	for _, v := range p.Vehicles {
		total += v.DurationSeconds
	}
	return total
}

// VehicleBreakdown is one vehicle's share of the baseline.
type VehicleBreakdown struct {
	Vehicle         int
	DistanceMeters  int
	DurationSeconds int
}

// BaselinePlan is the result of Baseline.
type BaselinePlan struct {
	ID              string
	DistanceMeters  int
	DurationSeconds int
	Breakdown       []VehicleBreakdown
	Warnings        []string
	MatrixSource    string
}

// stopName is the display name for the customer at location index i.
func stopName(name string, i int) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("Stop %d", i)
}
