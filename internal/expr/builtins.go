package expr

import (
	"math"
	"math/rand"
)

var constants = map[string]float64{
	"PI": math.Pi,
	"E":  math.E,
}

// builtin describes a whitelisted math function. variadic functions accept
// minArgs or more arguments.
type builtin struct {
	minArgs  int
	variadic bool
	call     func(env *Env, args []float64) float64
	fn1      func(float64) float64 // set for plain one-argument functions
}

func unary(f func(float64) float64) builtin {
	return builtin{minArgs: 1, fn1: f, call: func(_ *Env, a []float64) float64 { return f(a[0]) }}
}

var builtins = map[string]builtin{
	"sin":   unary(math.Sin),
	"cos":   unary(math.Cos),
	"tan":   unary(math.Tan),
	"asin":  unary(math.Asin),
	"acos":  unary(math.Acos),
	"atan":  unary(math.Atan),
	"exp":   unary(math.Exp),
	"log":   unary(math.Log),
	"sqrt":  unary(math.Sqrt),
	"abs":   unary(math.Abs),
	"floor": unary(math.Floor),
	"ceil":  unary(math.Ceil),
	"pow": {minArgs: 2, call: func(_ *Env, a []float64) float64 {
		return math.Pow(a[0], a[1])
	}},
	"max": {minArgs: 1, variadic: true, call: func(_ *Env, a []float64) float64 {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Max(m, v)
		}
		return m
	}},
	"min": {minArgs: 1, variadic: true, call: func(_ *Env, a []float64) float64 {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Min(m, v)
		}
		return m
	}},
	"random": {minArgs: 0, call: func(env *Env, _ []float64) float64 {
		if env.Rand != nil {
			return env.Rand.Float64()
		}
		return rand.Float64()
	}},
}

var timeAliases = map[string]bool{"t": true, "time": true}

// IsReserved reports whether name is taken by a constant, a whitelisted
// function or a time alias and so cannot name a variable, parameter or helper.
func IsReserved(name string) bool {
	if _, ok := constants[name]; ok {
		return true
	}
	if _, ok := builtins[name]; ok {
		return true
	}
	return timeAliases[name]
}
