package sim

import (
	"fmt"
	"math"

	"github.com/san-kum/stochsim/internal/expr"
)

// Update yields the change vector applied when a transition fires.
type Update interface {
	// Deltas writes the change for every variable into dst, which has one
	// slot per variable, and returns it.
	Deltas(env *expr.Env, dst []float64) []float64
}

// FixedUpdate is a constant change vector. Missing trailing entries are zero.
type FixedUpdate []float64

func (u FixedUpdate) Deltas(_ *expr.Env, dst []float64) []float64 {
	for i := range dst {
		if i < len(u) {
			dst[i] = u[i]
		} else {
			dst[i] = 0
		}
	}
	return dst
}

// ExprUpdate computes each variable's change from a compiled formula
// evaluated at the pre-update state. A nil entry means no change.
type ExprUpdate []expr.Func

func (u ExprUpdate) Deltas(env *expr.Env, dst []float64) []float64 {
	for i := range dst {
		if i < len(u) && u[i] != nil {
			dst[i] = u[i](env)
		} else {
			dst[i] = 0
		}
	}
	return dst
}

// Transition is one reaction channel of a discrete-state model.
type Transition struct {
	Label  string
	Rate   expr.Func
	Update Update
	// VarNames labels update errors; optional.
	VarNames []string
}

func NewTransition(label string, rate expr.Func, update Update) *Transition {
	if rate == nil {
		rate = expr.Zero
	}
	return &Transition{Label: label, Rate: rate, Update: update}
}

// Propensity evaluates the rate at env. Negative, NaN and infinite rates and
// rates whose evaluation panics count as zero so that one bad channel does
// not stop the run. A +Inf rate therefore never fires; it does not mean
// "fire immediately".
func (tr *Transition) Propensity(env *expr.Env) (rate float64) {
	defer func() {
		if recover() != nil {
			rate = 0
		}
	}()
	r := tr.Rate(env)
	if !(r > 0) || math.IsInf(r, 1) {
		return 0
	}
	return r
}

// Apply fires the transition on env.X in place. Every component becomes
// max(0, floor(x + delta)). scratch must have len(env.X) slots.
func (tr *Transition) Apply(env *expr.Env, scratch []float64) error {
	if tr.Update == nil {
		return nil
	}
	deltas := tr.Update.Deltas(env, scratch)
	for i, d := range deltas {
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return &UpdateError{
				Transition: tr.Label,
				Variable:   tr.varName(i),
				Value:      d,
				Time:       env.T,
			}
		}
	}
	x := env.X
	for i, d := range deltas {
		x[i] = math.Max(0, math.Floor(x[i]+d))
	}
	return nil
}

func (tr *Transition) varName(i int) string {
	if i < len(tr.VarNames) {
		return tr.VarNames[i]
	}
	return fmt.Sprintf("x%d", i)
}

// Component is one dimension of an SDE system dX = f dt + g dW.
type Component struct {
	Name      string
	Drift     expr.Func
	Diffusion expr.Func
}

func NewComponent(name string, drift, diffusion expr.Func) *Component {
	if drift == nil {
		drift = expr.Zero
	}
	if diffusion == nil {
		diffusion = expr.Zero
	}
	return &Component{Name: name, Drift: drift, Diffusion: diffusion}
}

// DriftAt evaluates f. A panicking formula contributes zero.
func (c *Component) DriftAt(env *expr.Env) float64 { return safeEval(c.Drift, env) }

// DiffusionAt evaluates g. A panicking formula contributes zero.
func (c *Component) DiffusionAt(env *expr.Env) float64 { return safeEval(c.Diffusion, env) }

func safeEval(fn expr.Func, env *expr.Env) (v float64) {
	defer func() {
		if recover() != nil {
			v = 0
		}
	}()
	return fn(env)
}
