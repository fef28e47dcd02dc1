package expr

import (
	"errors"
	"fmt"
)

// ErrSyntax is matched by every *CompileError.
var ErrSyntax = errors.New("expr: invalid expression")

// CompileError reports a formula that could not be parsed or resolved.
type CompileError struct {
	Expr string // source text as written by the user
	Pos  int    // 1-based column of the offending token
	Msg  string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("syntax error in expression %q: %s (column %d)", e.Expr, e.Msg, e.Pos)
}

func (e *CompileError) Is(target error) bool { return target == ErrSyntax }

func newError(src string, offset int, format string, args ...any) *CompileError {
	return &CompileError{Expr: src, Pos: offset + 1, Msg: fmt.Sprintf(format, args...)}
}

// HelperError locates a time function whose body failed to compile. Index is
// the 1-based position in the helper list given to NewCompiler.
type HelperError struct {
	Name  string
	Index int
	Err   error
}

func (e *HelperError) Error() string {
	return fmt.Sprintf("helper %s: %v", e.Name, e.Err)
}

func (e *HelperError) Unwrap() error { return e.Err }

func (e *HelperError) Is(target error) bool { return target == ErrSyntax }
