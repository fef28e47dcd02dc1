// Package model holds user-facing model definitions: the variables,
// parameters, helper functions and transitions or SDE components that make
// up a simulation, together with their validation and compilation into a
// sim.Engine.
package model

import (
	"fmt"
	"strings"

	"github.com/san-kum/stochsim/internal/expr"
)

// Kind selects the engine a model runs on.
type Kind string

const (
	// KindSSA runs on the exact Gillespie engine.
	KindSSA Kind = "ssa"
	// KindCTMP runs on the fixed-step engine and may use helper functions of t.
	KindCTMP Kind = "ctmp"
	// KindSDE runs on Euler–Maruyama.
	KindSDE Kind = "sde"
)

var kindAliases = map[string]Kind{
	"ssa":            KindSSA,
	"gillespie":      KindSSA,
	"ctmp":           KindCTMP,
	"timestep":       KindCTMP,
	"ctmp-inhomo":    KindCTMP,
	"sde":            KindSDE,
	"euler-maruyama": KindSDE,
}

// ParseKind accepts a kind or one of its engine aliases, case-insensitively.
func ParseKind(s string) (Kind, error) {
	if k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return k, nil
	}
	return "", fmt.Errorf("unknown model kind %q (want ssa, ctmp or sde)", s)
}

// Discrete reports whether the kind has an integer-valued state.
func (k Kind) Discrete() bool { return k == KindSSA || k == KindCTMP }

type Variable struct {
	Name string  `yaml:"name" json:"name"`
	Init float64 `yaml:"init" json:"init"`
}

type Parameter struct {
	Name  string  `yaml:"name" json:"name"`
	Value float64 `yaml:"value" json:"value"`
}

// Transition is one row of a discrete model. Change is a fixed vector in
// variable order; ChangeExprs gives one formula per variable instead. At
// most one of the two may be set. A row with a blank rate is disabled.
type Transition struct {
	Rate        string    `yaml:"rate" json:"rate"`
	Change      []float64 `yaml:"change,omitempty" json:"change,omitempty"`
	ChangeExprs []string  `yaml:"change_exprs,omitempty" json:"change_exprs,omitempty"`
}

// Disabled reports whether the row is skipped.
func (t Transition) Disabled() bool { return strings.TrimSpace(t.Rate) == "" }

// Component is one dimension of an SDE model.
type Component struct {
	Name      string  `yaml:"name" json:"name"`
	Init      float64 `yaml:"init" json:"init"`
	Drift     string  `yaml:"drift" json:"drift"`
	Diffusion string  `yaml:"diffusion" json:"diffusion"`
}

type Model struct {
	Name        string        `yaml:"name" json:"name"`
	Kind        Kind          `yaml:"kind" json:"kind"`
	Description string        `yaml:"description,omitempty" json:"description,omitempty"`
	Variables   []Variable    `yaml:"variables,omitempty" json:"variables,omitempty"`
	Parameters  []Parameter   `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Helpers     []expr.Helper `yaml:"helpers,omitempty" json:"helpers,omitempty"`
	Transitions []Transition  `yaml:"transitions,omitempty" json:"transitions,omitempty"`
	Components  []Component   `yaml:"components,omitempty" json:"components,omitempty"`
}

// VarNames lists the state variables in state-vector order. For SDE models
// these are the component names.
func (m *Model) VarNames() []string {
	if m.Kind == KindSDE {
		names := make([]string, len(m.Components))
		for i, c := range m.Components {
			names[i] = c.Name
		}
		return names
	}
	names := make([]string, len(m.Variables))
	for i, v := range m.Variables {
		names[i] = v.Name
	}
	return names
}

// ParamNames lists the parameter names in declaration order.
func (m *Model) ParamNames() []string {
	names := make([]string, len(m.Parameters))
	for i, p := range m.Parameters {
		names[i] = p.Name
	}
	return names
}

// Clone returns a deep copy.
func (m *Model) Clone() *Model {
	c := *m
	c.Variables = append([]Variable(nil), m.Variables...)
	c.Parameters = append([]Parameter(nil), m.Parameters...)
	c.Helpers = append([]expr.Helper(nil), m.Helpers...)
	c.Components = append([]Component(nil), m.Components...)
	c.Transitions = make([]Transition, len(m.Transitions))
	for i, t := range m.Transitions {
		c.Transitions[i] = Transition{
			Rate:        t.Rate,
			Change:      append([]float64(nil), t.Change...),
			ChangeExprs: append([]string(nil), t.ChangeExprs...),
		}
	}
	if m.Transitions == nil {
		c.Transitions = nil
	}
	return &c
}

// SetParam overrides the value of an existing parameter.
func (m *Model) SetParam(name string, value float64) error {
	for i := range m.Parameters {
		if m.Parameters[i].Name == name {
			m.Parameters[i].Value = value
			return nil
		}
	}
	return fmt.Errorf("model %s has no parameter %q", m.Name, name)
}
