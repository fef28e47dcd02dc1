package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/san-kum/stochsim/internal/expr"
	"github.com/san-kum/stochsim/internal/sim"
)

// Gillespie is the exact stochastic simulation algorithm. Each iteration
// draws an exponential waiting time from the total propensity and fires one
// transition chosen in proportion to its rate.
type Gillespie struct {
	transitions []*sim.Transition
	params      sim.Params
	dim         int
}

func NewGillespie(dim int, transitions []*sim.Transition, params sim.Params) (*Gillespie, error) {
	if dim < 1 {
		return nil, sim.ErrNoVariables
	}
	if len(transitions) == 0 {
		return nil, sim.ErrNoTransitions
	}
	return &Gillespie{transitions: transitions, params: params, dim: dim}, nil
}

func (g *Gillespie) Name() string { return "gillespie" }

// Run simulates until the next event would fall at or past cfg.TMax, the
// total propensity drops below 1e-12, or the iteration cap is reached. One
// sample is recorded per event; no sample is forced at the horizon.
func (g *Gillespie) Run(ctx context.Context, x0 sim.State, cfg sim.Config, rng *rand.Rand) (*sim.Result, error) {
	if err := cfg.Validate(false); err != nil {
		return nil, err
	}
	if err := checkDims(x0, g.dim); err != nil {
		return nil, err
	}

	limit := stepLimit(cfg, GillespieMaxIterations)
	x := x0.Clone()
	env := &expr.Env{X: x, Params: g.params, Rand: rng}
	res := sim.NewResult(x, 1024)
	rates := make([]float64, len(g.transitions))
	scratch := make([]float64, len(x))

	t := 0.0
	for t < cfg.TMax {
		if res.Steps >= limit {
			res.Truncated = true
			break
		}
		if err := checkCancel(ctx, res.Steps); err != nil {
			return nil, err
		}
		res.Steps++

		env.T = t
		total := 0.0
		for i, tr := range g.transitions {
			rates[i] = tr.Propensity(env)
			total += rates[i]
		}
		if total < quiescentRate {
			break
		}

		tau := -math.Log(uniformOpen(rng)) / total
		if t+tau >= cfg.TMax {
			break
		}
		t += tau

		k := choose(rates, rng.Float64()*total)
		env.T = t
		if err := g.transitions[k].Apply(env, scratch); err != nil {
			return nil, fmt.Errorf("gillespie: %w", err)
		}
		res.Events++
		res.Record(t, x)
	}
	return res, nil
}
