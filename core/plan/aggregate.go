package plan

import (
	"errors"
	"fmt"

	"github.com/artpar/scopedb/core/schema"
	"github.com/artpar/scopedb/domain/coltype"
)

// Func is an aggregate function.
type Func int

const (
	// Count counts matching rows, or the non-NULL values of Column when
	// one is given.
	Count Func = iota + 1
	// CountDistinct counts the distinct non-NULL values of Column.
	CountDistinct
	// Sum adds the non-NULL values of a numeric Column.
	Sum
	// Avg averages the non-NULL values of a numeric Column.
	Avg
	// Min and Max pick from the non-NULL values of an ordered Column.
	Min
	Max
)

// String returns the SQL name of the function.
func (f Func) String() string {
	switch f {
	case Count:
		return "COUNT"
	case CountDistinct:
		return "COUNT DISTINCT"
	case Sum:
		return "SUM"
	case Avg:
		return "AVG"
	case Min:
		return "MIN"
	case Max:
		return "MAX"
	default:
		return fmt.Sprintf("func(%d)", int(f))
	}
}

// ParseFunc parses a function name as written on the command line:
// count, count_distinct, sum, avg, min, max.
func ParseFunc(s string) (Func, error) {
	switch s {
	case "count":
		return Count, nil
	case "count_distinct":
		return CountDistinct, nil
	case "sum":
		return Sum, nil
	case "avg":
		return Avg, nil
	case "min":
		return Min, nil
	case "max":
		return Max, nil
	}
	return 0, fmt.Errorf("%w: unknown function %q", ErrBadAggregate, s)
}

// Aggregate folds the rows of one table matching Filters into one value.
// Column may be a dotted path; it is optional for Count only.
type Aggregate struct {
	Table   string
	Func    Func
	Column  string
	Filters []Filter
}

// Where appends a filter and returns the plan.
func (a Aggregate) Where(column string, op Op, value any) Aggregate {
	a.Filters = append(append([]Filter(nil), a.Filters...), Filter{Column: column, Op: op, Value: value})
	return a
}

// ResolvedAggregate is an Aggregate checked against a schema. Select holds
// the table and filters; its Columns hold the aggregated path, or nothing
// for a row count.
type ResolvedAggregate struct {
	Select *ResolvedSelect
	Func   Func

	typ coltype.Validated
}

// Type returns the type of the result. Every result but a count is
// nullable, NULL standing for "no values".
func (r *ResolvedAggregate) Type() coltype.Validated { return r.typ }

// Path returns the aggregated path. ok is false for a row count.
func (r *ResolvedAggregate) Path() (Path, bool) {
	if len(r.Select.Columns) == 0 {
		return Path{}, false
	}
	return r.Select.Columns[0], true
}

// CheckAggregate resolves the column and filters of a and checks that
// the function applies to the column's type. Sum and Avg need a numeric
// column, Min and Max an ordered one. NULL values are skipped, so nullable
// columns are accepted.
func CheckAggregate(s *schema.Validated, a Aggregate) (*ResolvedAggregate, error) {
	t, ok := s.Table(a.Table)
	if !ok {
		return nil, typeErr(a.Table, "", ErrUnknownTable)
	}

	sel, err := checkFilters(s, t, a.Filters)
	if err != nil {
		return nil, err
	}
	r := &ResolvedAggregate{Select: sel, Func: a.Func}

	if a.Column == "" {
		if a.Func != Count {
			return nil, typeErr(t.Name(), "", fmt.Errorf("%w: %s needs a column", ErrBadAggregate, a.Func))
		}
		r.typ = mustValidate(coltype.Int64())
		return r, nil
	}

	path, err := ResolvePath(s, t, a.Column)
	if err != nil {
		return nil, err
	}
	sel.Columns = []Path{path}
	base := path.Type().Base()

	switch a.Func {
	case Count:
		r.typ = mustValidate(coltype.Int64())
	case CountDistinct:
		if err := coltype.ValidateEqCapable(mustValidate(base)); err != nil {
			return nil, typeErr(t.Name(), a.Column, fmt.Errorf("%w: %s: %v", ErrBadAggregate, a.Func, err))
		}
		r.typ = mustValidate(coltype.Int64())
	case Sum:
		if base.Kind != coltype.KindInteger64 && base.Kind != coltype.KindFloat64 {
			return nil, typeErr(t.Name(), a.Column, fmt.Errorf("%w: %s on %s", ErrBadAggregate, a.Func, path.Type()))
		}
		r.typ = mustValidate(coltype.NullableOf(base))
	case Avg:
		if base.Kind != coltype.KindInteger64 && base.Kind != coltype.KindFloat64 {
			return nil, typeErr(t.Name(), a.Column, fmt.Errorf("%w: %s on %s", ErrBadAggregate, a.Func, path.Type()))
		}
		r.typ = mustValidate(coltype.NullableOf(coltype.Float64()))
	case Min, Max:
		if err := coltype.ValidateOrdered(mustValidate(base)); err != nil {
			return nil, typeErr(t.Name(), a.Column, fmt.Errorf("%w: %s: %v", ErrBadAggregate, a.Func, err))
		}
		r.typ = mustValidate(coltype.NullableOf(base))
	default:
		return nil, typeErr(t.Name(), a.Column, fmt.Errorf("%w: %s", ErrBadAggregate, a.Func))
	}
	return r, nil
}

// checkFilters resolves filters into a select with no columns.
func checkFilters(s *schema.Validated, t *schema.Table, filters []Filter) (*ResolvedSelect, error) {
	sel := &ResolvedSelect{Table: t}
	var errs []error
	for _, f := range filters {
		rf, err := checkFilter(s, t, f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		sel.Filters = append(sel.Filters, rf)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return sel, nil
}

// mustValidate validates a type built from already validated parts.
func mustValidate(t coltype.Type) coltype.Validated {
	v, err := coltype.ValidateColumnType(t)
	if err != nil {
		panic(fmt.Sprintf("plan: %s: %v", t, err))
	}
	return v
}
