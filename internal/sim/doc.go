// Package sim holds the building blocks shared by the stochastic engines.
//
//   - [State]: state vector, one slot per variable
//   - [Transition]: a rate paired with a fixed or computed update
//   - [Component]: drift and diffusion for one SDE dimension
//   - [Engine]: produces one realization as a [Result]
//   - [Ensemble]: runs an engine for many independent realizations
//
// # Thread Safety
//
// Transitions and components are immutable once built and may be shared by
// concurrent realizations. Each realization owns its state vector, its
// [expr.Env] and its random source.
package sim
