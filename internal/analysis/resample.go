package analysis

import (
	"math"

	"github.com/san-kum/stochsim/internal/sim"
)

// Grid returns 0, step, 2*step, ... up to and including tMax when it falls
// on the grid.
func Grid(tMax, step float64) []float64 {
	if step <= 0 || tMax < 0 {
		return nil
	}
	n := int(math.Floor(tMax/step+1e-9)) + 1
	grid := make([]float64, n)
	for i := range grid {
		grid[i] = float64(i) * step
	}
	return grid
}

// Resample evaluates variable idx of r as a right-continuous step function
// at each grid time. Grid times before the first sample take the first
// value; grid must be sorted.
func Resample(r *sim.Result, idx int, grid []float64) []float64 {
	out := make([]float64, len(grid))
	if r.Len() == 0 {
		return out
	}
	k := 0
	for i, g := range grid {
		for k+1 < r.Len() && r.Times[k+1] <= g {
			k++
		}
		if idx < len(r.States[k]) {
			out[i] = r.States[k][idx]
		}
	}
	return out
}

// GrowthRate is the per-capita growth rate over a sliding window of w grid
// steps: (ln x[i+w] - ln x[i]) / (w*step). Windows touching a non-positive
// value yield 0.
func GrowthRate(series []float64, step float64, w int) []float64 {
	if w < 1 || len(series) <= w {
		return nil
	}
	out := make([]float64, len(series)-w)
	span := float64(w) * step
	for i := range out {
		a, b := series[i], series[i+w]
		if a > 0 && b > 0 {
			out[i] = (math.Log(b) - math.Log(a)) / span
		}
	}
	return out
}
