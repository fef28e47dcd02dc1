// Package engine implements the three stochastic simulators: the exact
// Gillespie SSA, a fixed-step approximation for continuous-time Markov
// processes with time-dependent rates, and Euler–Maruyama for SDEs.
//
// Every engine satisfies sim.Engine. An engine value is immutable after
// construction and may be shared by concurrent realizations; all per-run
// state, including the random source, is owned by the Run call.
package engine
