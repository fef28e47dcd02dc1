package model

import (
	"math"
	"regexp"
	"strings"

	"github.com/san-kum/stochsim/internal/expr"
	"github.com/san-kum/stochsim/internal/sim"
)

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the definition before anything is compiled. It reports the
// first problem found, in section order.
func (m *Model) Validate() error {
	switch m.Kind {
	case KindSSA, KindCTMP, KindSDE:
	default:
		return defErr("model", 0, "unknown kind %q", m.Kind)
	}

	seen := make(map[string]string)
	if m.Kind == KindSDE {
		if err := m.validateComponents(seen); err != nil {
			return err
		}
	} else if err := m.validateVariables(seen); err != nil {
		return err
	}

	for i, p := range m.Parameters {
		if err := checkName("parameter", i+1, p.Name, seen); err != nil {
			return err
		}
		if !finite(p.Value) {
			return defErr("parameter", i+1, "value of %s must be finite, got %v", p.Name, p.Value)
		}
	}

	if len(m.Helpers) > 0 && m.Kind != KindCTMP {
		return defErr("helper", 1, "helpers are only available to ctmp models")
	}
	for i, h := range m.Helpers {
		if err := checkName("helper", i+1, h.Name, seen); err != nil {
			return err
		}
		if strings.TrimSpace(h.Body) == "" {
			return defErr("helper", i+1, "%s has an empty body", h.Name)
		}
	}

	if m.Kind == KindSDE {
		if len(m.Transitions) > 0 {
			return defErr("transition", 1, "sde models take components, not transitions")
		}
		return nil
	}
	return m.validateTransitions()
}

func (m *Model) validateVariables(seen map[string]string) error {
	if len(m.Variables) == 0 {
		return &DefinitionError{Section: "variables", Err: sim.ErrNoVariables}
	}
	if len(m.Components) > 0 {
		return defErr("component", 1, "%s models take transitions, not components", m.Kind)
	}
	for i, v := range m.Variables {
		if err := checkName("variable", i+1, v.Name, seen); err != nil {
			return err
		}
		if !finite(v.Init) {
			return defErr("variable", i+1, "initial value of %s must be finite, got %v", v.Name, v.Init)
		}
	}
	return nil
}

func (m *Model) validateComponents(seen map[string]string) error {
	if len(m.Components) == 0 {
		return &DefinitionError{Section: "components", Msg: "no components defined", Err: sim.ErrNoTransitions}
	}
	if len(m.Variables) > 0 {
		return defErr("variable", 1, "sde models declare their state through components")
	}
	for i, c := range m.Components {
		if err := checkName("component", i+1, c.Name, seen); err != nil {
			return err
		}
		if !finite(c.Init) {
			return defErr("component", i+1, "initial value of %s must be finite, got %v", c.Name, c.Init)
		}
		if strings.TrimSpace(c.Drift) == "" {
			return &DefinitionError{Section: "component", Index: i + 1, Field: "drift", Msg: "missing drift for " + c.Name}
		}
		if strings.TrimSpace(c.Diffusion) == "" {
			return &DefinitionError{Section: "component", Index: i + 1, Field: "diffusion", Msg: "missing diffusion for " + c.Name}
		}
	}
	return nil
}

func (m *Model) validateTransitions() error {
	n := len(m.Variables)
	active := 0
	for i, t := range m.Transitions {
		if t.Disabled() {
			continue
		}
		active++
		if len(t.Change) > 0 && len(t.ChangeExprs) > 0 {
			return defErr("transition", i+1, "set either change or change_exprs, not both")
		}
		if len(t.Change) > n {
			return defErr("transition", i+1, "change has %d entries for %d variables", len(t.Change), n)
		}
		if len(t.ChangeExprs) > n {
			return defErr("transition", i+1, "change_exprs has %d entries for %d variables", len(t.ChangeExprs), n)
		}
		for j, d := range t.Change {
			if !finite(d) {
				return &DefinitionError{Section: "transition", Index: i + 1, Field: "change " + m.Variables[j].Name,
					Msg: "non-finite change", Err: sim.ErrNonFiniteUpdate}
			}
		}
	}
	if active == 0 {
		return &DefinitionError{Section: "transitions", Err: sim.ErrNoTransitions}
	}
	return nil
}

// checkName validates one declared name and records it in seen.
func checkName(section string, index int, name string, seen map[string]string) error {
	switch {
	case name == "":
		return defErr(section, index, "name is empty")
	case !namePattern.MatchString(name):
		return defErr(section, index, "name %q is not an identifier", name)
	case expr.IsReserved(name):
		return defErr(section, index, "name %q is reserved", name)
	}
	if prev, dup := seen[name]; dup {
		return defErr(section, index, "name %q already declared as a %s", name, prev)
	}
	seen[name] = section
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
