// Package baseline computes the naive "before optimization" reference plan:
// customers dealt to vehicles round-robin in input order.
package baseline

import (
	"github.com/fleetroute/fleetroute/internal/matrix"
)

// VehicleMetrics is one vehicle's share of the baseline.
type VehicleMetrics struct {
	Vehicle         int // 1-based
	Stops           []int
	DistanceMeters  int
	DurationSeconds int
}

// Result is the baseline for the whole fleet.
type Result struct {
	DistanceMeters  int
	DurationSeconds int
	Breakdown       []VehicleMetrics
}

// Assign deals customers 1..n-1 to vehicles round-robin: customer i goes to
// vehicle (i-1) mod vehicles, keeping input order within each vehicle.
func Assign(locations, vehicles int) [][]int {
	if vehicles < 1 {
		return nil
	}
	routes := make([][]int, vehicles)
	for v := range routes {
		routes[v] = []int{}
	}
	for i := 1; i < locations; i++ {
		v := (i - 1) % vehicles
		routes[v] = append(routes[v], i)
	}
	return routes
}

// Calculate returns the round-robin baseline over the given matrices.
// Capacity is not considered. Idle vehicles report zero totals.
func Calculate(distances, durations matrix.Matrix, vehicles int) Result {
	var result Result
	for v, stops := range Assign(distances.Size(), vehicles) {
		vm := VehicleMetrics{
			Vehicle:         v + 1,
			Stops:           stops,
			DistanceMeters:  distances.Tour(stops),
			DurationSeconds: durations.Tour(stops),
		}
		result.DistanceMeters += vm.DistanceMeters
		result.DurationSeconds += vm.DurationSeconds
		result.Breakdown = append(result.Breakdown, vm)
	}
	return result
}
