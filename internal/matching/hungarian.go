// Package matching solves the square assignment problem (Kuhn–Munkres).
package matching

import (
	"errors"
	"math"
)

// Sentinel is the cost of a forbidden or padded pairing.
const Sentinel = 1e6

var (
	ErrNotSquare  = errors.New("matching: cost matrix must be square")
	ErrBadCost    = errors.New("matching: cost matrix has a non-finite cell")
	ErrNoProgress = errors.New("matching: no augmenting column found")
)

// Padded builds a max(rows, cols) square matrix. Cells outside rows x cols
// hold Sentinel; cells inside are filled by cost, with non-finite values
// replaced by Sentinel.
func Padded(rows, cols int, cost func(i, j int) float64) [][]float64 {
	n := rows
	if cols > n {
		n = cols
	}
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		for j := range m[i] {
			m[i][j] = Sentinel
			if i < rows && j < cols {
				if c := cost(i, j); !math.IsNaN(c) && !math.IsInf(c, 0) {
					m[i][j] = c
				}
			}
		}
	}
	return m
}

// Solve returns, for every row i, the column assigned to it so that the
// total cost is minimal. It runs in O(n^3) using dual potentials. Every
// cell must be finite.
func Solve(cost [][]float64) ([]int, error) {
	n := len(cost)
	for _, row := range cost {
		if len(row) != n {
			return nil, ErrNotSquare
		}
		for _, c := range row {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return nil, ErrBadCost
			}
		}
	}
	if n == 0 {
		return []int{}, nil
	}

	inf := math.Inf(1)
	// 1-indexed; column 0 is the virtual start column.
	u := make([]float64, n+1)
	v := make([]float64, n+1)
	p := make([]int, n+1)
	way := make([]int, n+1)
	minv := make([]float64, n+1)
	used := make([]bool, n+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		for j := range minv {
			minv[j] = inf
			used[j] = false
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := 0
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := cost[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			if j1 == 0 || math.IsNaN(delta) || math.IsInf(delta, 0) {
				return nil, ErrNoProgress
			}
			for j := 0; j <= n; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	assignment := make([]int, n)
	for j := 1; j <= n; j++ {
		if p[j] != 0 {
			assignment[p[j]-1] = j - 1
		}
	}
	return assignment, nil
}

// Cost sums the matrix cells selected by assignment.
func Cost(cost [][]float64, assignment []int) float64 {
	total := 0.0
	for i, j := range assignment {
		total += cost[i][j]
	}
	return total
}
