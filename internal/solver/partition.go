package solver

import (
	"context"
	"sort"
)

// DefaultPartitionBudget bounds the exact partition search in assignments
// tried.
const DefaultPartitionBudget = 2_000_000

type partitionResult int

const (
	partitionFound partitionResult = iota
	partitionNone
	partitionExhausted
)

// partitioner searches for an assignment of customers to vehicles that
// respects capacity. Customers are placed in decreasing demand order; at
// each level vehicles holding the same load are interchangeable, so only
// the first of them is tried.
type partitioner struct {
	ctx      context.Context
	demands  []int
	capacity int
	order    []int // customers, largest demand first
	suffix   []int // suffix[i] is the demand of order[i:]
	loads    []int
	assign   []int // vehicle per position in order
	budget   int
	err      error
}

func newPartitioner(ctx context.Context, demands []int, capacity, vehicles, budget int) *partitioner {
	order := make([]int, 0, len(demands)-1)
	for c := 1; c < len(demands); c++ {
		order = append(order, c)
	}
	sort.SliceStable(order, func(a, b int) bool {
		return demands[order[a]] > demands[order[b]]
	})

	suffix := make([]int, len(order)+1)
	for i := len(order) - 1; i >= 0; i-- {
		suffix[i] = suffix[i+1] + demands[order[i]]
	}

	if budget <= 0 {
		budget = DefaultPartitionBudget
	}
	return &partitioner{
		ctx:      ctx,
		demands:  demands,
		capacity: capacity,
		order:    order,
		suffix:   suffix,
		loads:    make([]int, vehicles),
		assign:   make([]int, len(order)),
		budget:   budget,
	}
}

// run returns the customers of each vehicle when a partition exists.
func (p *partitioner) run() ([][]int, partitionResult) {
	switch p.place(0) {
	case partitionFound:
	case partitionExhausted:
		return nil, partitionExhausted
	default:
		return nil, partitionNone
	}

	bins := make([][]int, len(p.loads))
	for i, c := range p.order {
		bins[p.assign[i]] = append(bins[p.assign[i]], c)
	}
	return bins, partitionFound
}

func (p *partitioner) place(i int) partitionResult {
	if i == len(p.order) {
		return partitionFound
	}
	free := 0
	for _, load := range p.loads {
		free += p.capacity - load
	}
	if p.suffix[i] > free {
		return partitionNone
	}

	d := p.demands[p.order[i]]
	tried := make(map[int]bool, len(p.loads))
	for v, load := range p.loads {
		if load+d > p.capacity || tried[load] {
			continue
		}
		tried[load] = true

		p.budget--
		if p.budget < 0 {
			return partitionExhausted
		}
		if p.budget%4096 == 0 {
			if p.err = p.ctx.Err(); p.err != nil {
				return partitionExhausted
			}
		}

		p.loads[v] += d
		p.assign[i] = v
		res := p.place(i + 1)
		p.loads[v] -= d
		if res != partitionNone {
			return res
		}
	}
	return partitionNone
}

// packExact partitions customers with the exact search and orders each
// vehicle's customers by cheapest insertion.
func (s *state) packExact(ctx context.Context, budget int) (partitionResult, error) {
	p := newPartitioner(ctx, s.demands, s.capacity, len(s.routes), budget)
	bins, res := p.run()
	if p.err != nil {
		return res, p.err
	}
	if res != partitionFound {
		return res, nil
	}
	for v, members := range bins {
		s.routes[v] = s.orderByInsertion(members)
		s.loads[v] = 0
		for _, c := range members {
			s.loads[v] += s.demands[c]
		}
	}
	return partitionFound, nil
}
