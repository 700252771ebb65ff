// Package matrix computes the all-pairs distance and duration matrices used
// by one optimization request, falling back to a synthetic estimate when the
// routing provider cannot answer.
package matrix

import (
	"fmt"
)

// Matrix is a square, index-aligned matrix of non-negative integer costs.
// Index 0 is the depot. A Matrix is not modified after it is computed.
type Matrix [][]int

// Size returns the number of rows.
func (m Matrix) Size() int {
	return len(m)
}

// At returns the cost from i to j.
func (m Matrix) At(i, j int) int {
	return m[i][j]
}

// Tour returns the cost of depot -> seq... -> depot. An empty sequence costs 0.
func (m Matrix) Tour(seq []int) int {
	if len(seq) == 0 {
		return 0
	}
	total := m[0][seq[0]]
	for k := 1; k < len(seq); k++ {
		total += m[seq[k-1]][seq[k]]
	}
	return total + m[seq[len(seq)-1]][0]
}

// Validate checks that m is square and every entry is non-negative.
func (m Matrix) Validate() error {
	n := len(m)
	for i, row := range m {
		if len(row) != n {
			return fmt.Errorf("row %d has %d columns, want %d", i, len(row), n)
		}
		for j, v := range row {
			if v < 0 {
				return fmt.Errorf("negative cost %d from %d to %d", v, i, j)
			}
		}
	}
	return nil
}

// Zero returns an n×n matrix of zeros.
func Zero(n int) Matrix {
	m := make(Matrix, n)
	for i := range m {
		m[i] = make([]int, n)
	}
	return m
}
