package models

// LocationInput is a depot or customer in an optimize or baseline request.
// Customers may carry their display name as either "name" or
// "LocationName", the column name used by uploaded sheets.
type LocationInput struct {
	Name         string  `json:"name,omitempty"`
	LocationName string  `json:"LocationName,omitempty"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	Demand       int     `json:"demand"`
}

// DisplayName returns Name, falling back to LocationName.
func (l LocationInput) DisplayName() string {
	if l.Name != "" {
		return l.Name
	}
	return l.LocationName
}

// OptimizeRequest is the request body for POST /v1/routes:optimize.
type OptimizeRequest struct {
	Depot       *LocationInput  `json:"depot"`
	Customers   []LocationInput `json:"customers"`
	NumVehicles *int            `json:"numVehicles,omitempty"`
	Capacity    *int            `json:"capacity,omitempty"`
}

// BaselineRequest is the request body for POST /v1/routes:baseline.
type BaselineRequest struct {
	Depot       *LocationInput  `json:"depot"`
	Customers   []LocationInput `json:"customers"`
	NumVehicles *int            `json:"numVehicles,omitempty"`
}

// Stop is one customer visit in a vehicle's route.
type Stop struct {
	Name   string  `json:"name"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Demand int     `json:"demand"`
}

// RouteSummary holds a routed path's totals.
type RouteSummary struct {
	Distance int `json:"distance"`
	Duration int `json:"duration"`
}

// RoutedPath is one path in a RouteEnvelope.
type RoutedPath struct {
	Summary  RouteSummary `json:"summary"`
	Geometry *string      `json:"geometry"`
}

// RouteEnvelope mirrors the directions response shape map clients read:
// route.routes[0].summary and route.routes[0].geometry.
type RouteEnvelope struct {
	Routes []RoutedPath `json:"routes"`
}

// VehicleRoute is one vehicle's optimized route.
type VehicleRoute struct {
	ID            int           `json:"id"`
	Stops         []Stop        `json:"stops"`
	Load          int           `json:"load"`
	TotalDistance int           `json:"totalDistance"`
	TotalDuration int           `json:"totalDuration"`
	Geometry      *string       `json:"geometry,omitempty"`
	BBox          *GeoBox       `json:"bbox,omitempty"`
	Estimated     bool          `json:"estimated"`
	Route         RouteEnvelope `json:"route"`
}

// OptimizeResponse is the response for route optimization.
type OptimizeResponse struct {
	PlanID        string         `json:"planId"`
	GeneratedAt   Timestamp      `json:"generatedAt"`
	Vehicles      []VehicleRoute `json:"vehicles"`
	TotalDistance int            `json:"totalDistance"`
	TotalDuration int            `json:"totalDuration"`
	MatrixSource  string         `json:"matrixSource"`
	Warnings      []string       `json:"warnings"`
}

// BaselineVehicle is one vehicle's share of the baseline.
type BaselineVehicle struct {
	Vehicle  int `json:"vehicle"`
	Distance int `json:"distance"`
	Duration int `json:"duration"`
}

// BaselineResponse is the response for the round-robin baseline.
type BaselineResponse struct {
	BeforeDistance int               `json:"beforeDistance"`
	BeforeTime     int               `json:"beforeTime"`
	Breakdown      []BaselineVehicle `json:"breakdown"`
	MatrixSource   string            `json:"matrixSource"`
	Warnings       []string          `json:"warnings,omitempty"`
}
