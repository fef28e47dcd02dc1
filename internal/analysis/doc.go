// Package analysis post-processes simulated trajectories.
//
// Trajectories from the discrete engines are step functions sampled at
// irregular event times, so most tools here first place them on a uniform
// grid:
//
//   - [Resample]: step-function value of one variable at each grid time
//   - [Bands]: ensemble mean and standard deviation per grid time
//   - [GrowthRate]: short-run per-capita growth rate of a resampled series
//   - [DominantPeriod]: period of the strongest spectral peak
//   - [Downsample]: stride-based thinning for display
//   - [PhasePortrait]: two variables of one realization plotted against each other
//
// # Periodicity
//
// A seasonally forced birth rate shows up as an oscillating growth rate:
//
//	grid := analysis.Grid(tMax, 0.01)
//	n := analysis.Resample(res, 0, grid)
//	period, err := analysis.DominantPeriod(analysis.GrowthRate(n, 0.01, 5), 0.01)
package analysis
