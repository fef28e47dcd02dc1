package engine

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/san-kum/stochsim/internal/expr"
	"github.com/san-kum/stochsim/internal/sim"
)

// TimeStepper approximates a continuous-time Markov process whose rates may
// depend on time. Each step of length dt fires at most one transition with
// probability rate*dt.
type TimeStepper struct {
	transitions []*sim.Transition
	params      sim.Params
	dim         int
}

func NewTimeStepper(dim int, transitions []*sim.Transition, params sim.Params) (*TimeStepper, error) {
	if dim < 1 {
		return nil, sim.ErrNoVariables
	}
	if len(transitions) == 0 {
		return nil, sim.ErrNoTransitions
	}
	return &TimeStepper{transitions: transitions, params: params, dim: dim}, nil
}

func (s *TimeStepper) Name() string { return "timestep" }

// Run advances ceil(TMax/Dt) steps. A single uniform U per step decides both
// whether an event happens (U < total probability) and which one (first
// transition whose cumulative probability exceeds U). Steps with an event are
// always recorded; quiet stretches are sampled every max(1, floor(0.01/dt))
// steps. The first step whose total probability exceeds 0.1 sets a warning.
func (s *TimeStepper) Run(ctx context.Context, x0 sim.State, cfg sim.Config, rng *rand.Rand) (*sim.Result, error) {
	if err := cfg.Validate(true); err != nil {
		return nil, err
	}
	if err := checkDims(x0, s.dim); err != nil {
		return nil, err
	}

	dt := cfg.Dt
	steps := stepCount(cfg.TMax, dt)
	truncated := false
	if limit := stepLimit(cfg, TimeStepMaxSteps); steps > limit {
		steps, truncated = limit, true
	}
	interval := thinningInterval(dt)

	x := x0.Clone()
	env := &expr.Env{X: x, Params: s.params, Rand: rng}
	res := sim.NewResult(x, prealloc(steps/interval+1))
	res.Truncated = truncated
	probs := make([]float64, len(s.transitions))
	scratch := make([]float64, len(x))

	for step := 0; step < steps; step++ {
		if err := checkCancel(ctx, step); err != nil {
			return nil, err
		}

		t := float64(step) * dt
		env.T = t
		total := 0.0
		for i, tr := range s.transitions {
			probs[i] = tr.Propensity(env) * dt
			total += probs[i]
		}
		if total > warnProbability && res.Warning == "" {
			res.Warning = fmt.Sprintf("high event probability (%.2f) at t=%.2f; consider decreasing dt", total, t)
		}

		fired := false
		if u := rng.Float64(); u < total {
			if k := firstAbove(probs, u); k >= 0 {
				if err := s.transitions[k].Apply(env, scratch); err != nil {
					return nil, fmt.Errorf("timestep: %w", err)
				}
				fired = true
				res.Events++
			}
		}
		res.Steps++

		if fired || (step+1)%interval == 0 {
			res.Record(float64(step+1)*dt, x)
		}
	}
	return res, nil
}

// firstAbove returns the first index whose cumulative probability exceeds u,
// or -1.
func firstAbove(probs []float64, u float64) int {
	cum := 0.0
	for i, p := range probs {
		cum += p
		if u < cum {
			return i
		}
	}
	return -1
}
