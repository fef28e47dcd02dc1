package model

import (
	"errors"
	"fmt"
)

// ErrInvalidModel is matched by every *DefinitionError.
var ErrInvalidModel = errors.New("model: invalid definition")

// DefinitionError locates a problem in a model definition. Index is 1-based
// and counts disabled rows; zero means the error concerns the whole section.
type DefinitionError struct {
	Section string
	Index   int
	Field   string
	Msg     string
	Err     error
}

func (e *DefinitionError) Error() string {
	where := e.Section
	if e.Index > 0 {
		where = fmt.Sprintf("%s %d", e.Section, e.Index)
	}
	if e.Field != "" {
		where += " " + e.Field
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", where, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", where, e.Err)
	default:
		return fmt.Sprintf("%s: %s", where, e.Msg)
	}
}

func (e *DefinitionError) Unwrap() error { return e.Err }

func (e *DefinitionError) Is(target error) bool { return target == ErrInvalidModel }

func defErr(section string, index int, format string, args ...any) *DefinitionError {
	return &DefinitionError{Section: section, Index: index, Msg: fmt.Sprintf(format, args...)}
}
