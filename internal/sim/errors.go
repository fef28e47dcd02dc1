package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig indicates run controls that no engine can honor.
	ErrInvalidConfig = errors.New("sim: invalid run configuration")

	// ErrDimensionMismatch indicates an initial state whose length does not
	// match the model.
	ErrDimensionMismatch = errors.New("sim: dimension mismatch between state and model")

	// ErrNonFiniteUpdate indicates an update delta that evaluated to NaN or Inf.
	ErrNonFiniteUpdate = errors.New("sim: non-finite update")

	// ErrNoVariables indicates a model without any state variable.
	ErrNoVariables = errors.New("sim: no variables defined")

	// ErrNoTransitions indicates an engine built without any transition or component.
	ErrNoTransitions = errors.New("sim: no transitions defined")
)

type SimError struct {
	Time    float64
	Step    int
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %s", e.Step, e.Time, e.Message)
}

// UpdateError reports a transition whose update produced a non-finite delta.
// It aborts the realization: applying it would corrupt the trajectory.
type UpdateError struct {
	Transition string
	Variable   string
	Value      float64
	Time       float64
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("%s: non-finite change %v for %q at t=%.4f", e.Transition, e.Value, e.Variable, e.Time)
}

func (e *UpdateError) Unwrap() error { return ErrNonFiniteUpdate }
