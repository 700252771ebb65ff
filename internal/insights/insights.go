// Package insights compares an optimized plan with its baseline and turns
// the comparison into short narratives and keyword answers.
package insights

import (
	"fmt"
	"math"
	"strings"
)

const (
	// FuelCostPerKm is the fuel cost in rupees per kilometer driven.
	FuelCostPerKm = 10.0

	// TotalCostPerKm is the all-in operating cost in rupees per kilometer.
	TotalCostPerKm = 13.0

	// Defaults applied when no baseline is supplied.
	defaultDistanceFactor        = 1.2
	defaultExplainDurationFactor = 1.1
	defaultAnswerDurationFactor  = 1.2

	// HelpAnswer is returned for questions no metric matches.
	HelpAnswer = "I can answer questions about distance, time, fuel and cost " +
		"before and after optimization, and how much was saved."
)

// Vehicle is the part of an optimized vehicle result the insights need.
type Vehicle struct {
	ID              int
	StopNames       []string
	DistanceMeters  float64
	DurationSeconds float64
}

// Baseline holds optional reference figures. Nil fields are derived from the
// optimized totals.
type Baseline struct {
	DistanceMeters  *float64
	DurationSeconds *float64
	FuelCost        *float64
	TotalCost       *float64
}

// Comparison is the optimized plan measured against the baseline.
type Comparison struct {
	OptimizedDistance float64
	OptimizedDuration float64
	BaselineDistance  float64
	BaselineDuration  float64

	// Savings in percent, rounded to two decimals.
	DistanceSavingsPct float64
	TimeSavingsPct     float64
}

// Insight is one narrative line.
type Insight struct {
	Vehicle     string
	Explanation string
}

// Compare sums the optimized vehicles and computes savings against base.
// A missing baseline distance defaults to 1.2× and duration to 1.1× the
// optimized totals.
func Compare(vehicles []Vehicle, base Baseline) Comparison {
	c := Comparison{}
	for _, v := range vehicles {
		c.OptimizedDistance += v.DistanceMeters
		c.OptimizedDuration += v.DurationSeconds
	}
	c.BaselineDistance = valueOr(base.DistanceMeters, c.OptimizedDistance*defaultDistanceFactor)
	c.BaselineDuration = valueOr(base.DurationSeconds, c.OptimizedDuration*defaultExplainDurationFactor)
	c.DistanceSavingsPct = savingsPct(c.OptimizedDistance, c.BaselineDistance)
	c.TimeSavingsPct = savingsPct(c.OptimizedDuration, c.BaselineDuration)
	return c
}

// Explain returns one line per vehicle followed by a fleet summary.
func Explain(vehicles []Vehicle, base Baseline) []Insight {
	c := Compare(vehicles, base)

	out := make([]Insight, 0, len(vehicles)+1)
	for _, v := range vehicles {
		route := "No stops assigned"
		if len(v.StopNames) > 0 {
			route = fmt.Sprintf("%s → ... → %s", nameOr(v.StopNames[0]), nameOr(v.StopNames[len(v.StopNames)-1]))
		}
		out = append(out, Insight{
			Vehicle: fmt.Sprintf("Truck %d", v.ID),
			Explanation: fmt.Sprintf("%s covers %.2f km in %.2f hrs. This contributes to overall %.2f%% fuel and %.2f%% time savings.",
				route, v.DistanceMeters/1000, v.DurationSeconds/3600, c.DistanceSavingsPct, c.TimeSavingsPct),
		})
	}

	out = append(out, Insight{
		Vehicle: "Fleet Summary",
		Explanation: fmt.Sprintf("Optimization reduced total distance by %.2f%% (%.2f km → %.2f km) and time by %.2f%% (%.2f hrs → %.2f hrs).",
			c.DistanceSavingsPct, c.BaselineDistance/1000, c.OptimizedDistance/1000,
			c.TimeSavingsPct, c.BaselineDuration/3600, c.OptimizedDuration/3600),
	})
	return out
}

type metric struct {
	name     string
	keywords []string
	before   string
	after    string
	saved    string
}

// Answer matches question against distance, time, fuel and cost keywords and
// reports the before, after or saved figure. Unmatched questions get
// HelpAnswer.
func Answer(question string, vehicles []Vehicle, base Baseline) string {
	q := strings.ToLower(strings.TrimSpace(question))

	var distAfter, timeAfter float64
	for _, v := range vehicles {
		distAfter += v.DistanceMeters
		timeAfter += v.DurationSeconds
	}
	fuelAfter := distAfter / 1000 * FuelCostPerKm
	costAfter := distAfter / 1000 * TotalCostPerKm

	distBefore := valueOr(base.DistanceMeters, distAfter*defaultDistanceFactor)
	timeBefore := valueOr(base.DurationSeconds, timeAfter*defaultAnswerDurationFactor)
	fuelBefore := valueOr(base.FuelCost, distBefore/1000*FuelCostPerKm)
	costBefore := valueOr(base.TotalCost, distBefore/1000*TotalCostPerKm)

	metrics := []metric{
		{
			name:     "Distance",
			keywords: []string{"distance", "km", "travelled", "moved"},
			before:   fmt.Sprintf("%.2f km", distBefore/1000),
			after:    fmt.Sprintf("%.2f km", distAfter/1000),
			saved:    fmt.Sprintf("%.2f km", (distBefore-distAfter)/1000),
		},
		{
			name:     "Time",
			keywords: []string{"time", "travel time", "duration", "hours", "hrs"},
			before:   fmt.Sprintf("%.2f hrs", timeBefore/3600),
			after:    fmt.Sprintf("%.2f hrs", timeAfter/3600),
			saved:    fmt.Sprintf("%.2f hrs", (timeBefore-timeAfter)/3600),
		},
		{
			name:     "Fuel",
			keywords: []string{"fuel", "fuel cost", "gas", "petrol"},
			before:   fmt.Sprintf("₹%.0f", fuelBefore),
			after:    fmt.Sprintf("₹%.0f", fuelAfter),
			saved:    fmt.Sprintf("₹%.0f", fuelBefore-fuelAfter),
		},
		{
			name:     "Cost",
			keywords: []string{"cost", "total cost", "money", "expenses"},
			before:   fmt.Sprintf("₹%.0f", costBefore),
			after:    fmt.Sprintf("₹%.0f", costAfter),
			saved:    fmt.Sprintf("₹%.0f", costBefore-costAfter),
		},
	}

	for _, m := range metrics {
		if !containsAny(q, m.keywords...) {
			continue
		}
		switch {
		case strings.Contains(q, "before"):
			return fmt.Sprintf("%s before optimization: %s", m.name, m.before)
		case containsAny(q, "after", "total", "taken"):
			return fmt.Sprintf("%s after optimization: %s", m.name, m.after)
		case containsAny(q, "saved", "difference"):
			return fmt.Sprintf("%s saved: %s", m.name, m.saved)
		default:
			return fmt.Sprintf("%s after optimization: %s", m.name, m.after)
		}
	}
	return HelpAnswer
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// savingsPct is (1 - optimized/baseline) × 100 rounded to two decimals, or 0
// when the baseline is not positive.
func savingsPct(optimized, baseline float64) float64 {
	if baseline <= 0 {
		return 0
	}
	return math.Round((1-optimized/baseline)*100*100) / 100
}

func nameOr(name string) string {
	if name == "" {
		return "Depot"
	}
	return name
}
