// Package expr compiles rate, drift, diffusion and update formulas into
// numeric functions.
//
// A formula is plain arithmetic over state variables, parameters and time:
//
//	k * Prey * Pred
//	birth * Season(t) * Prey
//	-theta * (X - mu)
//
// Source text is lexed and parsed into a small syntax tree, identifiers are
// resolved against the model's symbol tables, and the tree is lowered into
// closures. Nothing is generated or evaluated as code at runtime.
//
// # Symbols
//
// Bare identifiers resolve in this order:
//
//   - constants: PI, E
//   - state variables, by position in the variable list
//   - parameters, by name
//   - the time aliases t and time
//
// Calls resolve to the math whitelist (sin, cos, tan, asin, acos, atan, exp,
// log, sqrt, abs, pow, floor, ceil, max, min, random) and then to declared
// [Helper] functions of t. Anything else is a [*CompileError].
//
// # Evaluation
//
// A compiled [Func] reads its inputs from an [Env]. An Env belongs to a single
// realization and must not be shared between goroutines; compiled functions
// themselves are immutable and safe for concurrent use.
package expr
