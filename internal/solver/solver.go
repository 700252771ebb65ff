// Package solver assigns customers to a fixed fleet of capacity-limited
// vehicles and orders each vehicle's stops to keep total distance low.
//
// Solve is deterministic for a given Problem as long as local search finishes
// within its time budget: construction breaks ties by lowest customer, then
// vehicle, then position, and local search scans moves in a fixed order.
package solver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fleetroute/fleetroute/internal/matrix"
)

const (
	// DefaultMaxIterations bounds local search rounds.
	DefaultMaxIterations = 1000

	// DefaultTimeBudget stops local search early on large instances.
	DefaultTimeBudget = 2 * time.Second
)

var (
	// ErrInvalidProblem is returned for malformed input.
	ErrInvalidProblem = errors.New("invalid routing problem")

	// ErrInfeasible is returned when no assignment satisfies capacity.
	ErrInfeasible = errors.New("no feasible routing")
)

// InfeasibleError describes why capacity cannot be satisfied.
type InfeasibleError struct {
	Reason      string
	Customer    int // offending customer index, 0 when not specific to one
	Demand      int
	Capacity    int
	TotalDemand int
	Vehicles    int

	// Exhausted is set when the partition search gave up before proving
	// that no assignment fits.
	Exhausted bool
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInfeasible.Error(), e.Reason)
}

func (e *InfeasibleError) Unwrap() error {
	return ErrInfeasible
}

// Options bounds the improvement phase.
type Options struct {
	// MaxIterations is the number of improving moves local search may apply.
	// Zero uses DefaultMaxIterations; negative disables local search.
	MaxIterations int

	// TimeBudget stops local search early. Zero uses DefaultTimeBudget.
	TimeBudget time.Duration

	// PartitionBudget bounds the exact capacity partition search run when
	// both construction heuristics fail. Zero uses DefaultPartitionBudget.
	PartitionBudget int
}

// Problem is one capacitated vehicle routing instance. Index 0 is the depot
// in both Distances and Demands.
type Problem struct {
	Distances matrix.Matrix
	Demands   []int
	Capacity  int
	Vehicles  int
	Options   Options
}

// Solution is the routing result.
type Solution struct {
	// Routes has one entry per vehicle, possibly empty. Each route lists
	// customer indices in visiting order, depot excluded.
	Routes [][]int

	// Cost is the summed depot-anchored distance of all routes.
	Cost int

	// ConstructionCost is Cost before local search.
	ConstructionCost int

	// Iterations is the number of improving moves applied.
	Iterations int

	// Repaired is true when construction needed a packing fallback.
	Repaired bool
}

// Loads returns the demand carried by each route.
func (s *Solution) Loads(demands []int) []int {
	loads := make([]int, len(s.Routes))
	for v, route := range s.Routes {
		for _, c := range route {
			loads[v] += demands[c]
		}
	}
	return loads
}

// Solve validates p, builds an initial capacity-feasible solution and
// improves it by local search. Construction tries cheapest insertion, then
// first-fit decreasing packing, then an exact partition search, so an
// *InfeasibleError without Exhausted means no assignment fits. It also
// returns ErrInvalidProblem for malformed input and the context error when
// ctx ends during the partition search.
func Solve(ctx context.Context, p Problem) (*Solution, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	if err := precheck(p); err != nil {
		return nil, err
	}

	st := newState(p)
	repaired := false
	if !st.cheapestInsertion() {
		st = newState(p)
		if !st.packFirstFitDecreasing() {
			st = newState(p)
			res, err := st.packExact(ctx, p.Options.PartitionBudget)
			if err != nil {
				return nil, err
			}
			switch res {
			case partitionNone:
				return nil, p.infeasible("no feasible partition exists", false)
			case partitionExhausted:
				return nil, p.infeasible("no feasible partition found within the search budget", true)
			}
		}
		repaired = true
	}

	constructionCost := st.cost()
	iterations := 0
	if maxIter := p.Options.maxIterations(); maxIter > 0 {
		iterations = st.improve(ctx, maxIter, time.Now().Add(p.Options.timeBudget()))
	}

	return &Solution{
		Routes:           st.routes,
		Cost:             st.cost(),
		ConstructionCost: constructionCost,
		Iterations:       iterations,
		Repaired:         repaired,
	}, nil
}

func (o Options) maxIterations() int {
	if o.MaxIterations == 0 {
		return DefaultMaxIterations
	}
	return o.MaxIterations
}

func (o Options) timeBudget() time.Duration {
	if o.TimeBudget <= 0 {
		return DefaultTimeBudget
	}
	return o.TimeBudget
}

func validate(p Problem) error {
	n := p.Distances.Size()
	if n == 0 {
		return fmt.Errorf("%w: empty distance matrix", ErrInvalidProblem)
	}
	if err := p.Distances.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProblem, err)
	}
	if len(p.Demands) != n {
		return fmt.Errorf("%w: %d demands for %d locations", ErrInvalidProblem, len(p.Demands), n)
	}
	if p.Demands[0] != 0 {
		return fmt.Errorf("%w: depot demand must be 0", ErrInvalidProblem)
	}
	for i, d := range p.Demands {
		if d < 0 {
			return fmt.Errorf("%w: negative demand %d at index %d", ErrInvalidProblem, d, i)
		}
	}
	if p.Vehicles < 1 {
		return fmt.Errorf("%w: vehicle count must be at least 1", ErrInvalidProblem)
	}
	if p.Capacity < 1 {
		return fmt.Errorf("%w: capacity must be at least 1", ErrInvalidProblem)
	}
	return nil
}

func precheck(p Problem) error {
	for c := 1; c < len(p.Demands); c++ {
		if p.Demands[c] > p.Capacity {
			return &InfeasibleError{
				Reason:   fmt.Sprintf("customer %d demand %d exceeds vehicle capacity %d", c, p.Demands[c], p.Capacity),
				Customer: c,
				Demand:   p.Demands[c],
				Capacity: p.Capacity,
				Vehicles: p.Vehicles,
			}
		}
	}
	total := sum(p.Demands)
	if total > p.Capacity*p.Vehicles {
		return &InfeasibleError{
			Reason:      fmt.Sprintf("total demand %d exceeds fleet capacity %d", total, p.Capacity*p.Vehicles),
			Capacity:    p.Capacity,
			TotalDemand: total,
			Vehicles:    p.Vehicles,
		}
	}
	return nil
}

func (p Problem) infeasible(reason string, exhausted bool) *InfeasibleError {
	return &InfeasibleError{
		Reason:      reason,
		Capacity:    p.Capacity,
		TotalDemand: sum(p.Demands),
		Vehicles:    p.Vehicles,
		Exhausted:   exhausted,
	}
}

func sum(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}
