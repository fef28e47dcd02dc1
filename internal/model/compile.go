package model

import (
	"errors"
	"fmt"

	"github.com/san-kum/stochsim/internal/engine"
	"github.com/san-kum/stochsim/internal/expr"
	"github.com/san-kum/stochsim/internal/sim"
)

// Compiled is a validated model bound to its engine.
type Compiled struct {
	Kind     Kind
	Engine   sim.Engine
	X0       sim.State
	VarNames []string
	Params   sim.Params
	// Active counts enabled transitions or components.
	Active int
}

// Compile validates m and compiles every formula. It fails before any
// simulation can start; compile errors carry the row index and, for update
// formulas, the variable name.
func (m *Model) Compile() (*Compiled, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	params := make(sim.Params, len(m.Parameters))
	for _, p := range m.Parameters {
		params[p.Name] = p.Value
	}
	c := &Compiled{Kind: m.Kind, VarNames: m.VarNames(), Params: params}

	comp, err := expr.NewCompiler(c.VarNames, m.ParamNames(), m.Helpers...)
	if err != nil {
		de := &DefinitionError{Section: "helper", Err: err}
		var he *expr.HelperError
		if errors.As(err, &he) {
			de.Index, de.Field = he.Index, "body"
		}
		return nil, de
	}

	if m.Kind == KindSDE {
		return m.compileSDE(c, comp)
	}

	c.X0 = make(sim.State, len(m.Variables))
	for i, v := range m.Variables {
		c.X0[i] = v.Init
	}

	var transitions []*sim.Transition
	for i, t := range m.Transitions {
		if t.Disabled() {
			continue
		}
		tr, err := m.compileTransition(comp, i+1, t)
		if err != nil {
			return nil, err
		}
		transitions = append(transitions, tr)
	}
	c.Active = len(transitions)

	if m.Kind == KindSSA {
		c.Engine, err = engine.NewGillespie(len(c.X0), transitions, params)
	} else {
		c.Engine, err = engine.NewTimeStepper(len(c.X0), transitions, params)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (m *Model) compileTransition(comp *expr.Compiler, index int, t Transition) (*sim.Transition, error) {
	rate, err := comp.Compile(t.Rate)
	if err != nil {
		return nil, &DefinitionError{Section: "transition", Index: index, Field: "rate", Err: err}
	}

	var update sim.Update = sim.FixedUpdate(t.Change)
	if len(t.ChangeExprs) > 0 {
		fns := make(sim.ExprUpdate, len(t.ChangeExprs))
		for j, src := range t.ChangeExprs {
			if fns[j], err = comp.Compile(src); err != nil {
				return nil, &DefinitionError{Section: "transition", Index: index,
					Field: "change " + m.Variables[j].Name, Err: err}
			}
		}
		update = fns
	}

	tr := sim.NewTransition(fmt.Sprintf("transition %d", index), rate, update)
	tr.VarNames = m.VarNames()
	return tr, nil
}

func (m *Model) compileSDE(c *Compiled, comp *expr.Compiler) (*Compiled, error) {
	c.X0 = make(sim.State, len(m.Components))
	components := make([]*sim.Component, len(m.Components))
	for i, sc := range m.Components {
		c.X0[i] = sc.Init
		drift, err := comp.Compile(sc.Drift)
		if err != nil {
			return nil, &DefinitionError{Section: "component", Index: i + 1, Field: "drift", Err: err}
		}
		diffusion, err := comp.Compile(sc.Diffusion)
		if err != nil {
			return nil, &DefinitionError{Section: "component", Index: i + 1, Field: "diffusion", Err: err}
		}
		components[i] = sim.NewComponent(sc.Name, drift, diffusion)
	}
	c.Active = len(components)

	em, err := engine.NewEulerMaruyama(components, c.Params)
	if err != nil {
		return nil, err
	}
	c.Engine = em
	return c, nil
}
