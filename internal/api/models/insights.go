package models

// InsightSummary is a route summary as sent back by clients.
type InsightSummary struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
}

// InsightRoute mirrors RouteEnvelope with fractional totals allowed.
type InsightRoute struct {
	Routes []struct {
		Summary *InsightSummary `json:"summary"`
	} `json:"routes"`
}

// InsightVehicle is a vehicle from a previous optimize response. Distance
// and duration come from totalDistance/totalDuration, or from
// route.routes[0].summary when those are absent.
type InsightVehicle struct {
	ID            int           `json:"id"`
	Stops         []Stop        `json:"stops"`
	TotalDistance *float64      `json:"totalDistance,omitempty"`
	TotalDuration *float64      `json:"totalDuration,omitempty"`
	Route         *InsightRoute `json:"route,omitempty"`
}

// Distance returns the vehicle's distance in meters.
func (v InsightVehicle) Distance() float64 {
	if v.TotalDistance != nil {
		return *v.TotalDistance
	}
	if s := v.summary(); s != nil {
		return s.Distance
	}
	return 0
}

// Duration returns the vehicle's duration in seconds.
func (v InsightVehicle) Duration() float64 {
	if v.TotalDuration != nil {
		return *v.TotalDuration
	}
	if s := v.summary(); s != nil {
		return s.Duration
	}
	return 0
}

func (v InsightVehicle) summary() *InsightSummary {
	if v.Route == nil || len(v.Route.Routes) == 0 {
		return nil
	}
	return v.Route.Routes[0].Summary
}

// InsightBaseline carries optional "before" figures.
type InsightBaseline struct {
	Distance  *float64 `json:"distance,omitempty"`
	Duration  *float64 `json:"duration,omitempty"`
	FuelCost  *float64 `json:"fuel_cost,omitempty"`
	TotalCost *float64 `json:"total_cost,omitempty"`
}

// ExplainRequest is the request body for POST /v1/insights:explain.
type ExplainRequest struct {
	Vehicles []InsightVehicle `json:"vehicles"`
	Baseline *InsightBaseline `json:"baseline,omitempty"`
}

// Insight is one narrative line.
type Insight struct {
	Vehicle     string `json:"vehicle"`
	Explanation string `json:"explanation"`
}

// ExplainResponse is the response for route explanations.
type ExplainResponse struct {
	Insights []Insight `json:"insights"`
}

// AskRequest is the request body for POST /v1/insights:ask.
type AskRequest struct {
	Question string           `json:"question"`
	Vehicles []InsightVehicle `json:"vehicles"`
	Baseline *InsightBaseline `json:"baseline,omitempty"`
}

// AskResponse is the answer to a question about a plan.
type AskResponse struct {
	Answer string `json:"answer"`
}
