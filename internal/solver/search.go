package solver

import (
	"context"
	"time"
)

// improve applies strictly improving, capacity-feasible moves until none is
// left, maxIter moves were applied, the deadline passes or ctx is done.
// Each round takes the first improving move in a fixed scan order:
// 2-opt within a route, then relocate between routes, then swap between
// routes. It returns the number of moves applied.
func (s *state) improve(ctx context.Context, maxIter int, deadline time.Time) int {
	applied := 0
	for applied < maxIter {
		if ctx.Err() != nil || time.Now().After(deadline) {
			break
		}
		if !s.twoOpt() && !s.relocate() && !s.swap() {
			break
		}
		applied++
	}
	return applied
}

// twoOpt reverses one segment of one route when that shortens it. Deltas are
// exact for asymmetric matrices: the reversed segment is re-costed in the
// opposite direction using prefix sums.
func (s *state) twoOpt() bool {
	for v, route := range s.routes {
		m := len(route)
		if m < 2 {
			continue
		}

		ext := make([]int, 0, m+2)
		ext = append(ext, 0)
		ext = append(ext, route...)
		ext = append(ext, 0)

		fwd := make([]int, m+2)
		rev := make([]int, m+2)
		for k := 1; k < m+2; k++ {
			fwd[k] = fwd[k-1] + s.dist[ext[k-1]][ext[k]]
			rev[k] = rev[k-1] + s.dist[ext[k]][ext[k-1]]
		}

		for i := 0; i < m-1; i++ {
			for j := i + 2; j <= m; j++ {
				a, b, c, d := ext[i], ext[i+1], ext[j], ext[j+1]
				before := s.dist[a][b] + (fwd[j] - fwd[i+1]) + s.dist[c][d]
				after := s.dist[a][c] + (rev[j] - rev[i+1]) + s.dist[b][d]
				if after < before {
					reverse(s.routes[v], i, j-1)
					return true
				}
			}
		}
	}
	return false
}

// relocate moves one customer to another route when that is shorter and the
// receiving route stays within capacity.
func (s *state) relocate() bool {
	for r, from := range s.routes {
		for i, c := range from {
			gain := s.removalGain(from, i)
			for t, to := range s.routes {
				if t == r || s.loads[t]+s.demands[c] > s.capacity {
					continue
				}
				for pos := 0; pos <= len(to); pos++ {
					if s.insertionCost(to, c, pos)-gain < 0 {
						s.routes[r] = removeAt(s.routes[r], i)
						s.routes[t] = insertAt(s.routes[t], c, pos)
						s.loads[r] -= s.demands[c]
						s.loads[t] += s.demands[c]
						return true
					}
				}
			}
		}
	}
	return false
}

// swap exchanges two customers on different routes when that is shorter and
// both routes stay within capacity.
func (s *state) swap() bool {
	for r := 0; r < len(s.routes); r++ {
		for t := r + 1; t < len(s.routes); t++ {
			for i, c1 := range s.routes[r] {
				for j, c2 := range s.routes[t] {
					shift := s.demands[c2] - s.demands[c1]
					if s.loads[r]+shift > s.capacity || s.loads[t]-shift > s.capacity {
						continue
					}
					delta := s.replaceCost(s.routes[r], i, c2) + s.replaceCost(s.routes[t], j, c1)
					if delta < 0 {
						s.routes[r][i] = c2
						s.routes[t][j] = c1
						s.loads[r] += shift
						s.loads[t] -= shift
						return true
					}
				}
			}
		}
	}
	return false
}

// removalGain is the distance saved by removing the stop at pos.
func (s *state) removalGain(route []int, pos int) int {
	c := route[pos]
	prev, next := 0, 0
	if pos > 0 {
		prev = route[pos-1]
	}
	if pos+1 < len(route) {
		next = route[pos+1]
	}
	return s.dist[prev][c] + s.dist[c][next] - s.dist[prev][next]
}

// replaceCost is the change in distance when the stop at pos becomes x.
func (s *state) replaceCost(route []int, pos, x int) int {
	c := route[pos]
	prev, next := 0, 0
	if pos > 0 {
		prev = route[pos-1]
	}
	if pos+1 < len(route) {
		next = route[pos+1]
	}
	return s.dist[prev][x] + s.dist[x][next] - s.dist[prev][c] - s.dist[c][next]
}

func reverse(route []int, i, j int) {
	for i < j {
		route[i], route[j] = route[j], route[i]
		i++
		j--
	}
}
