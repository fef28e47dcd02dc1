package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/san-kum/stochsim/internal/sim"
)

const (
	// GillespieMaxIterations caps the events of one SSA realization.
	GillespieMaxIterations = 500_000
	// TimeStepMaxSteps caps the steps of one fixed-step CTMP realization.
	TimeStepMaxSteps = 5_000_000
	// SDEMaxSteps caps the steps of one Euler–Maruyama realization.
	SDEMaxSteps = 500_000

	// quiescentRate is the total propensity below which a run is absorbed.
	quiescentRate = 1e-12
	// warnProbability is the per-step event probability that triggers the
	// accuracy warning of the fixed-step engine.
	warnProbability = 0.1
	// sampleSpacing is the simulated time between periodic samples of the
	// fixed-step engine.
	sampleSpacing = 0.01

	ctxCheckMask = 1<<10 - 1
	maxPrealloc  = 1 << 16
)

// stepCount is the number of dt steps needed to reach tMax. Ratios that are
// integers up to rounding noise give exactly that integer.
func stepCount(tMax, dt float64) int {
	n := tMax / dt
	if r := math.Round(n); math.Abs(n-r) <= 1e-9*math.Max(1, r) {
		return int(r)
	}
	return int(math.Ceil(n))
}

// thinningInterval is the number of steps between periodic samples.
func thinningInterval(dt float64) int {
	k := int(math.Floor(sampleSpacing/dt + 1e-9))
	if k < 1 {
		return 1
	}
	return k
}

func stepLimit(cfg sim.Config, def int) int {
	if cfg.MaxSteps > 0 {
		return cfg.MaxSteps
	}
	return def
}

func prealloc(n int) int {
	if n > maxPrealloc {
		return maxPrealloc
	}
	return n
}

func checkDims(x0 sim.State, n int) error {
	if len(x0) != n {
		return fmt.Errorf("%w: got %d values for %d variables", sim.ErrDimensionMismatch, len(x0), n)
	}
	return nil
}

func checkCancel(ctx context.Context, step int) error {
	if step&ctxCheckMask != 0 {
		return nil
	}
	return ctx.Err()
}

// uniformOpen draws from (0, 1).
func uniformOpen(rng *rand.Rand) float64 {
	for {
		if u := rng.Float64(); u > 0 {
			return u
		}
	}
}

// choose walks the cumulative sum of weights and returns the first positive
// entry whose running total reaches r. When rounding leaves r above the last
// total the last positive entry wins. It returns -1 if no weight is positive.
func choose(weights []float64, r float64) int {
	cum := 0.0
	last := -1
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		cum += w
		last = i
		if r <= cum {
			return i
		}
	}
	return last
}
