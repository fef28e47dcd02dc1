package engine

import (
	"context"
	"math"
	"math/rand"

	"github.com/san-kum/stochsim/internal/expr"
	"github.com/san-kum/stochsim/internal/sim"
)

// EulerMaruyama integrates dX_i = f_i(X,t) dt + g_i(X,t) dW_i with a fixed
// step. Drift and diffusion of every component are evaluated at the same
// pre-step state. The state is continuous and is never clamped.
type EulerMaruyama struct {
	components []*sim.Component
	params     sim.Params
}

func NewEulerMaruyama(components []*sim.Component, params sim.Params) (*EulerMaruyama, error) {
	if len(components) == 0 {
		return nil, sim.ErrNoTransitions
	}
	return &EulerMaruyama{components: components, params: params}, nil
}

func (e *EulerMaruyama) Name() string { return "euler-maruyama" }

// Run records every step.
func (e *EulerMaruyama) Run(ctx context.Context, x0 sim.State, cfg sim.Config, rng *rand.Rand) (*sim.Result, error) {
	if err := cfg.Validate(true); err != nil {
		return nil, err
	}
	n := len(e.components)
	if err := checkDims(x0, n); err != nil {
		return nil, err
	}

	dt := cfg.Dt
	steps := stepCount(cfg.TMax, dt)
	truncated := false
	if limit := stepLimit(cfg, SDEMaxSteps); steps > limit {
		steps, truncated = limit, true
	}

	x := x0.Clone()
	env := &expr.Env{X: x, Params: e.params, Rand: rng}
	res := sim.NewResult(x, prealloc(steps+1))
	res.Truncated = truncated

	sqrtDt := math.Sqrt(dt)
	dW := make([]float64, n)
	drift := make([]float64, n)
	diff := make([]float64, n)

	for step := 0; step < steps; step++ {
		if err := checkCancel(ctx, step); err != nil {
			return nil, err
		}

		for i := range dW {
			dW[i] = Normal(rng) * sqrtDt
		}
		env.T = float64(step) * dt
		for i, c := range e.components {
			drift[i] = c.DriftAt(env)
			diff[i] = c.DiffusionAt(env)
		}
		for i := range x {
			x[i] += drift[i]*dt + diff[i]*dW[i]
		}
		res.Steps++
		res.Record(float64(step+1)*dt, x)
	}
	return res, nil
}
