package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/san-kum/stochsim/internal/expr"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

type Params = expr.Params

// Engine produces a single realization starting from x0. rng is owned by the
// call and must not be shared with concurrent runs.
type Engine interface {
	Name() string
	Run(ctx context.Context, x0 State, cfg Config, rng *rand.Rand) (*Result, error)
}

// Metric summarizes an ensemble, one realization at a time.
type Metric interface {
	Name() string
	Observe(r *Result)
	Value() float64
	Reset()
}

type Config struct {
	TMax float64
	Dt   float64
	Seed int64
	// MaxSteps overrides the engine's iteration cap when positive.
	MaxSteps int
}

func DefaultConfig() Config {
	return Config{
		TMax: 10.0,
		Dt:   0.01,
	}
}

// Validate checks the controls common to all engines. needDt is set by the
// fixed-step engines.
func (c Config) Validate(needDt bool) error {
	if !(c.TMax > 0) || math.IsInf(c.TMax, 0) {
		return fmt.Errorf("%w: t_max must be a positive number, got %g", ErrInvalidConfig, c.TMax)
	}
	if needDt {
		if !(c.Dt > 0) || math.IsInf(c.Dt, 0) {
			return fmt.Errorf("%w: dt must be a positive number, got %g", ErrInvalidConfig, c.Dt)
		}
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("%w: max_steps must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Result is one realization. Times and States always have equal length and
// start with the initial state at t = 0.
type Result struct {
	Times  []float64
	States []State
	// Warning is a non-fatal numerical note, empty when there is none.
	Warning string
	// Steps counts loop iterations; Events counts applied transitions.
	Steps     int
	Events    int
	Truncated bool
}

func NewResult(x0 State, capacity int) *Result {
	if capacity < 1 {
		capacity = 1
	}
	r := &Result{
		Times:  make([]float64, 0, capacity),
		States: make([]State, 0, capacity),
	}
	r.Record(0, x0)
	return r
}

// Record appends a snapshot of x at time t.
func (r *Result) Record(t float64, x State) {
	r.Times = append(r.Times, t)
	r.States = append(r.States, x.Clone())
}

func (r *Result) Len() int { return len(r.Times) }

// Check reports the first sample holding NaN or Inf. SDE trajectories are
// never clamped and may diverge; discrete engines cannot produce one.
func (r *Result) Check() error {
	for i, x := range r.States {
		if !x.IsValid() {
			return SimError{Time: r.Times[i], Step: i, Message: "invalid state (NaN/Inf)"}
		}
	}
	return nil
}

func (r *Result) Final() (float64, State) {
	n := len(r.Times)
	if n == 0 {
		return 0, nil
	}
	return r.Times[n-1], r.States[n-1]
}

// Series extracts one variable's trajectory.
func (r *Result) Series(idx int) []float64 {
	out := make([]float64, len(r.States))
	for i, s := range r.States {
		if idx < len(s) {
			out[i] = s[idx]
		}
	}
	return out
}
