package analysis

import (
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/stochsim/internal/sim"
)

// Band is the ensemble spread of one variable on a uniform grid.
type Band struct {
	Times []float64
	Mean  []float64
	Std   []float64
}

// Lower returns mean - k*std at each grid time.
func (b *Band) Lower(k float64) []float64 {
	out := make([]float64, len(b.Mean))
	for i := range out {
		out[i] = b.Mean[i] - k*b.Std[i]
	}
	return out
}

// Upper returns mean + k*std at each grid time.
func (b *Band) Upper(k float64) []float64 {
	out := make([]float64, len(b.Mean))
	for i := range out {
		out[i] = b.Mean[i] + k*b.Std[i]
	}
	return out
}

// Bands resamples variable idx of every realization onto grid and computes
// the mean and sample standard deviation at each grid time. With a single
// realization the deviation is zero.
func Bands(results []*sim.Result, idx int, grid []float64) *Band {
	b := &Band{
		Times: grid,
		Mean:  make([]float64, len(grid)),
		Std:   make([]float64, len(grid)),
	}
	if len(results) == 0 {
		return b
	}

	series := make([][]float64, len(results))
	for i, r := range results {
		series[i] = Resample(r, idx, grid)
	}

	column := make([]float64, len(results))
	for g := range grid {
		for i := range series {
			column[i] = series[i][g]
		}
		if len(column) == 1 {
			b.Mean[g] = column[0]
			continue
		}
		b.Mean[g], b.Std[g] = stat.MeanStdDev(column, nil)
	}
	return b
}
