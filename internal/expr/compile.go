package expr

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

// Params maps parameter names to their values for one run.
type Params map[string]float64

// Env holds the inputs of one evaluation. X is indexed in the order of the
// variable names given to the compiler.
type Env struct {
	X      []float64
	T      float64
	Params Params
	// Rand backs random(). When nil the package-level source is used.
	Rand *rand.Rand
}

// Func is a compiled formula.
type Func func(env *Env) float64

// Zero is the compiled form of a blank formula.
func Zero(*Env) float64 { return 0 }

// Helper is a named function of t, declared as Name(t) = Body.
type Helper struct {
	Name string `yaml:"name" json:"name"`
	Body string `yaml:"body" json:"body"`
}

// Compiler resolves formulas against a fixed set of variables, parameters and
// helpers. It is safe to reuse for any number of formulas.
type Compiler struct {
	vars    map[string]int
	params  map[string]bool
	helpers map[string]*helperFunc
}

type helperFunc struct {
	Helper
	index     int
	fn        Func
	compiling bool
}

// NewCompiler builds a compiler for the given symbol tables. Helper bodies are
// compiled eagerly; a body may use parameters, t, math functions and other
// helpers, but not state variables.
func NewCompiler(vars, params []string, helpers ...Helper) (*Compiler, error) {
	c := &Compiler{
		vars:    make(map[string]int, len(vars)),
		params:  make(map[string]bool, len(params)),
		helpers: make(map[string]*helperFunc, len(helpers)),
	}
	for i, name := range vars {
		if name == "" {
			continue
		}
		if _, dup := c.vars[name]; !dup {
			c.vars[name] = i
		}
	}
	for _, name := range params {
		if name != "" {
			c.params[name] = true
		}
	}
	for i, h := range helpers {
		if h.Name == "" || strings.TrimSpace(h.Body) == "" {
			continue
		}
		if _, dup := c.helpers[h.Name]; dup {
			return nil, &HelperError{Name: h.Name, Index: i + 1, Err: errors.New("declared twice")}
		}
		c.helpers[h.Name] = &helperFunc{Helper: h, index: i + 1}
	}
	for _, h := range helpers {
		if hf, ok := c.helpers[h.Name]; ok {
			if err := c.compileHelper(hf); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

// Compile compiles a single formula with a one-off compiler.
func Compile(src string, vars, params []string, helpers ...Helper) (Func, error) {
	c, err := NewCompiler(vars, params, helpers...)
	if err != nil {
		return nil, err
	}
	return c.Compile(src)
}

// Compile turns src into a Func. Blank source compiles to Zero.
func (c *Compiler) Compile(src string) (Func, error) {
	if strings.TrimSpace(src) == "" {
		return Zero, nil
	}
	n, err := parse(src)
	if err != nil {
		return nil, err
	}
	return c.lower(src, n, false)
}

func (c *Compiler) compileHelper(h *helperFunc) error {
	if h.fn != nil {
		return nil
	}
	if h.compiling {
		return &HelperError{Name: h.Name, Index: h.index, Err: errors.New("recursive definition")}
	}
	h.compiling = true
	defer func() { h.compiling = false }()

	n, err := parse(h.Body)
	if err != nil {
		return &HelperError{Name: h.Name, Index: h.index, Err: err}
	}
	fn, err := c.lower(h.Body, n, true)
	if err != nil {
		// A failure inside a nested helper keeps its own location.
		var he *HelperError
		if errors.As(err, &he) {
			return err
		}
		return &HelperError{Name: h.Name, Index: h.index, Err: err}
	}
	h.fn = fn
	return nil
}

// lower converts a syntax tree to closures. Inside helper bodies state
// variables are out of scope.
func (c *Compiler) lower(src string, n node, inHelper bool) (Func, error) {
	switch n := n.(type) {
	case *numberNode:
		v := n.val
		return func(*Env) float64 { return v }, nil

	case *identNode:
		return c.lowerIdent(src, n, inHelper)

	case *unaryNode:
		x, err := c.lower(src, n.x, inHelper)
		if err != nil {
			return nil, err
		}
		if n.op == tokMinus {
			return func(e *Env) float64 { return -x(e) }, nil
		}
		return x, nil

	case *binaryNode:
		l, err := c.lower(src, n.l, inHelper)
		if err != nil {
			return nil, err
		}
		r, err := c.lower(src, n.r, inHelper)
		if err != nil {
			return nil, err
		}
		switch n.op {
		case tokPlus:
			return func(e *Env) float64 { return l(e) + r(e) }, nil
		case tokMinus:
			return func(e *Env) float64 { return l(e) - r(e) }, nil
		case tokStar:
			return func(e *Env) float64 { return l(e) * r(e) }, nil
		case tokSlash:
			return func(e *Env) float64 { return l(e) / r(e) }, nil
		}
		return nil, newError(src, n.at, "unsupported operator %s", n.op)

	case *callNode:
		return c.lowerCall(src, n, inHelper)
	}
	return nil, newError(src, n.offset(), "unsupported syntax")
}

func (c *Compiler) lowerIdent(src string, n *identNode, inHelper bool) (Func, error) {
	if v, ok := constants[n.name]; ok {
		return func(*Env) float64 { return v }, nil
	}
	if idx, ok := c.vars[n.name]; ok {
		if inHelper {
			return nil, newError(src, n.at, "state variable %s cannot be used in a time function", n.name)
		}
		return func(e *Env) float64 { return e.X[idx] }, nil
	}
	if c.params[n.name] {
		name := n.name
		return func(e *Env) float64 { return e.Params[name] }, nil
	}
	if timeAliases[n.name] {
		return func(e *Env) float64 { return e.T }, nil
	}
	if _, ok := builtins[n.name]; ok {
		return nil, newError(src, n.at, "function %s used without arguments", n.name)
	}
	if _, ok := c.helpers[n.name]; ok {
		return nil, newError(src, n.at, "time function %s used without arguments", n.name)
	}
	return nil, newError(src, n.at, "unknown symbol %s", n.name)
}

func (c *Compiler) lowerCall(src string, n *callNode, inHelper bool) (Func, error) {
	args := make([]Func, len(n.args))
	for i, a := range n.args {
		fn, err := c.lower(src, a, inHelper)
		if err != nil {
			return nil, err
		}
		args[i] = fn
	}

	if b, ok := builtins[n.name]; ok {
		if len(args) < b.minArgs || (!b.variadic && len(args) != b.minArgs) {
			want := fmt.Sprintf("%d", b.minArgs)
			if b.variadic {
				want = fmt.Sprintf("at least %d", b.minArgs)
			}
			return nil, newError(src, n.at, "%s expects %s argument(s), got %d", n.name, want, len(args))
		}
		if b.fn1 != nil {
			f, a0 := b.fn1, args[0]
			return func(e *Env) float64 { return f(a0(e)) }, nil
		}
		call := b.call
		return func(e *Env) float64 {
			var buf [4]float64
			vals := buf[:0]
			for _, a := range args {
				vals = append(vals, a(e))
			}
			return call(e, vals)
		}, nil
	}

	h, ok := c.helpers[n.name]
	if !ok {
		if _, isVar := c.vars[n.name]; isVar || c.params[n.name] {
			return nil, newError(src, n.at, "%s is not a function", n.name)
		}
		return nil, newError(src, n.at, "unknown function %s", n.name)
	}
	if len(args) != 1 {
		return nil, newError(src, n.at, "time function %s expects 1 argument, got %d", n.name, len(args))
	}
	if err := c.compileHelper(h); err != nil {
		return nil, err
	}
	body, arg := h.fn, args[0]
	return func(e *Env) float64 {
		saved := e.T
		e.T = arg(e)
		defer func() { e.T = saved }()
		return body(e)
	}, nil
}
