package plan

import (
	"errors"
	"fmt"
)

// ErrPlanType matches every plan type-check failure.
var ErrPlanType = errors.New("plan type error")

// Reasons carried by TypeError.
var (
	ErrUnknownTable  = errors.New("unknown table")
	ErrUnknownColumn = errors.New("unknown column")
	ErrNotReference  = errors.New("column is not a reference")
	ErrTypeMismatch  = errors.New("type mismatch")
	ErrBadOperator   = errors.New("operator not applicable")
	ErrBadLimit      = errors.New("limit and offset must not be negative")
	ErrBadAggregate  = errors.New("aggregate not applicable")
)

// TypeError reports a plan that does not fit the validated schema. It
// matches both ErrPlanType and its reason under errors.Is.
type TypeError struct {
	Table  string
	Column string
	Err    error
}

func (e *TypeError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("plan: table %q: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("plan: table %q column %q: %v", e.Table, e.Column, e.Err)
}

func (e *TypeError) Unwrap() []error { return []error{ErrPlanType, e.Err} }

func typeErr(table, column string, err error) error {
	return &TypeError{Table: table, Column: column, Err: err}
}
