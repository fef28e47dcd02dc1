package engine

import (
	"math"
	"math/rand"
)

// Normal returns a standard normal variate by the Box–Muller transform. Each
// call consumes two fresh uniforms; the companion variate is discarded.
func Normal(rng *rand.Rand) float64 {
	u := uniformOpen(rng)
	v := uniformOpen(rng)
	return math.Sqrt(-2*math.Log(u)) * math.Cos(2*math.Pi*v)
}
