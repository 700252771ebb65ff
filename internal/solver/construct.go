package solver

import (
	"sort"

	"github.com/fleetroute/fleetroute/internal/matrix"
)

// state is the working solution shared by construction and local search.
type state struct {
	dist     matrix.Matrix
	demands  []int
	capacity int
	routes   [][]int
	loads    []int
}

func newState(p Problem) *state {
	routes := make([][]int, p.Vehicles)
	for v := range routes {
		routes[v] = []int{}
	}
	return &state{
		dist:     p.Distances,
		demands:  p.Demands,
		capacity: p.Capacity,
		routes:   routes,
		loads:    make([]int, p.Vehicles),
	}
}

func (s *state) cost() int {
	total := 0
	for _, route := range s.routes {
		total += s.dist.Tour(route)
	}
	return total
}

// neighbors returns the stops before and after position pos of route,
// treating both ends as the depot.
func neighbors(route []int, pos int) (prev, next int) {
	if pos > 0 {
		prev = route[pos-1]
	}
	if pos < len(route) {
		next = route[pos]
	}
	return prev, next
}

// insertionCost is the added distance of placing c at pos in route.
func (s *state) insertionCost(route []int, c, pos int) int {
	prev, next := neighbors(route, pos)
	return s.dist[prev][c] + s.dist[c][next] - s.dist[prev][next]
}

// cheapestInsertion assigns every customer by repeatedly taking the
// capacity-feasible insertion with the lowest added distance. It reports
// false when some customer fits in no vehicle.
func (s *state) cheapestInsertion() bool {
	n := len(s.demands)
	assigned := make([]bool, n)
	remaining := n - 1

	for remaining > 0 {
		found := false
		var bestCost, bestC, bestV, bestPos int

		for c := 1; c < n; c++ {
			if assigned[c] {
				continue
			}
			for v, route := range s.routes {
				if s.loads[v]+s.demands[c] > s.capacity {
					continue
				}
				for pos := 0; pos <= len(route); pos++ {
					delta := s.insertionCost(route, c, pos)
					if !found || delta < bestCost {
						found = true
						bestCost, bestC, bestV, bestPos = delta, c, v, pos
					}
				}
			}
		}

		if !found {
			return false
		}

		s.routes[bestV] = insertAt(s.routes[bestV], bestC, bestPos)
		s.loads[bestV] += s.demands[bestC]
		assigned[bestC] = true
		remaining--
	}
	return true
}

// packFirstFitDecreasing partitions customers by first-fit decreasing demand
// and then orders each vehicle's customers by cheapest insertion.
func (s *state) packFirstFitDecreasing() bool {
	n := len(s.demands)
	order := make([]int, 0, n-1)
	for c := 1; c < n; c++ {
		order = append(order, c)
	}
	sort.SliceStable(order, func(a, b int) bool {
		return s.demands[order[a]] > s.demands[order[b]]
	})

	bins := make([][]int, len(s.routes))
	for _, c := range order {
		placed := false
		for v := range bins {
			if s.loads[v]+s.demands[c] <= s.capacity {
				bins[v] = append(bins[v], c)
				s.loads[v] += s.demands[c]
				placed = true
				break
			}
		}
		if !placed {
			return false
		}
	}

	for v, members := range bins {
		s.routes[v] = s.orderByInsertion(members)
	}
	return true
}

// orderByInsertion builds a single route over members by cheapest insertion,
// ignoring capacity.
func (s *state) orderByInsertion(members []int) []int {
	sorted := append([]int(nil), members...)
	sort.Ints(sorted)

	route := make([]int, 0, len(sorted))
	used := make([]bool, len(sorted))
	for range sorted {
		found := false
		var bestCost, bestIdx, bestPos int
		for idx, c := range sorted {
			if used[idx] {
				continue
			}
			for pos := 0; pos <= len(route); pos++ {
				delta := s.insertionCost(route, c, pos)
				if !found || delta < bestCost {
					found = true
					bestCost, bestIdx, bestPos = delta, idx, pos
				}
			}
		}
		route = insertAt(route, sorted[bestIdx], bestPos)
		used[bestIdx] = true
	}
	return route
}

func insertAt(route []int, c, pos int) []int {
	route = append(route, 0)
	copy(route[pos+1:], route[pos:])
	route[pos] = c
	return route
}

func removeAt(route []int, pos int) []int {
	return append(route[:pos], route[pos+1:]...)
}
