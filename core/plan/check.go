package plan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/artpar/scopedb/core/schema"
	"github.com/artpar/scopedb/core/validation"
	"github.com/artpar/scopedb/domain/coltype"
)

// Path is a resolved column path.
type Path struct {
	// Name is the path as written in the plan.
	Name string
	// Hops are the reference columns walked, in order.
	Hops []*schema.Column
	// Column is the final column, nil for the key column.
	Column *schema.Column
	// Table owns the final column.
	Table *schema.Table

	typ coltype.Validated
}

// Key reports whether the path ends at the implicit key column.
func (p Path) Key() bool { return p.Column == nil }

// Type returns the type of values at the end of the path. A path walking a
// nullable reference is nullable.
func (p Path) Type() coltype.Validated { return p.typ }

// ResolvedFilter is a type-checked filter with its value normalized.
type ResolvedFilter struct {
	Path  Path
	Op    Op
	Value any
}

// ResolvedOrder is a type-checked sort key.
type ResolvedOrder struct {
	Path Path
	Desc bool
}

// ResolvedSelect is a Select checked against a schema.
type ResolvedSelect struct {
	Table   *schema.Table
	Columns []Path
	Filters []ResolvedFilter
	OrderBy []ResolvedOrder
	Limit   int
	Offset  int
}

// ResolvedWrite is an Insert, Update or Delete checked against a schema.
// Columns are in declaration order and Values are normalized.
type ResolvedWrite struct {
	Table   *schema.Table
	ID      coltype.RowID
	Columns []*schema.Column
	Values  []any
}

// CheckSelect resolves every path of p and checks each filter operator and
// value against the column type. All problems are returned joined.
func CheckSelect(s *schema.Validated, p Select) (*ResolvedSelect, error) {
	t, ok := s.Table(p.Table)
	if !ok {
		return nil, typeErr(p.Table, "", ErrUnknownTable)
	}

	var errs []error
	r := &ResolvedSelect{Table: t, Limit: p.Limit, Offset: p.Offset}

	if p.Limit < 0 || p.Offset < 0 {
		errs = append(errs, typeErr(t.Name(), "", ErrBadLimit))
	}

	if len(p.Columns) == 0 {
		for _, c := range t.Columns() {
			path, _ := ResolvePath(s, t, c.Name())
			r.Columns = append(r.Columns, path)
		}
	}
	for _, name := range p.Columns {
		path, err := ResolvePath(s, t, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r.Columns = append(r.Columns, path)
	}

	for _, f := range p.Filters {
		rf, err := checkFilter(s, t, f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r.Filters = append(r.Filters, rf)
	}

	for _, o := range p.OrderBy {
		path, err := ResolvePath(s, t, o.Column)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := coltype.ValidateOrdered(path.Type()); err != nil && !path.Key() {
			errs = append(errs, typeErr(t.Name(), o.Column, err))
			continue
		}
		r.OrderBy = append(r.OrderBy, ResolvedOrder{Path: path, Desc: o.Desc})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return r, nil
}

// ResolvePath walks a dotted column path starting at table t.
func ResolvePath(s *schema.Validated, t *schema.Table, name string) (Path, error) {
	segs := strings.Split(name, ".")
	path := Path{Name: name, Table: t}
	nullable := false

	for i, seg := range segs {
		last := i == len(segs)-1
		if seg == schema.KeyColumn && last {
			v, err := coltype.ValidateColumnType(coltype.Ref(path.Table.Name()))
			if err != nil {
				return Path{}, typeErr(t.Name(), name, err)
			}
			path.typ = v
			break
		}

		c, ok := path.Table.Column(seg)
		if !ok {
			return Path{}, typeErr(t.Name(), name,
				fmt.Errorf("%w %q in table %q", ErrUnknownColumn, seg, path.Table.Name()))
		}
		if last {
			path.Column = c
			path.typ = c.Type()
			break
		}

		target := c.Type().RefTable()
		if target == "" {
			return Path{}, typeErr(t.Name(), name, fmt.Errorf("%w: %s", ErrNotReference, c))
		}
		next, ok := s.Table(target)
		if !ok {
			return Path{}, typeErr(t.Name(), name, fmt.Errorf("%w %q", ErrUnknownTable, target))
		}
		nullable = nullable || c.Nullable()
		path.Hops = append(path.Hops, c)
		path.Table = next
	}

	if nullable && !path.typ.Nullable() {
		v, err := coltype.ValidateColumnType(coltype.NullableOf(path.typ.Type()))
		if err != nil {
			return Path{}, typeErr(t.Name(), name, err)
		}
		path.typ = v
	}
	return path, nil
}

func checkFilter(s *schema.Validated, t *schema.Table, f Filter) (ResolvedFilter, error) {
	path, err := ResolvePath(s, t, f.Column)
	if err != nil {
		return ResolvedFilter{}, err
	}
	typ := path.Type()

	switch f.Op {
	case Eq, Ne:
		if err := coltype.ValidateEqCapable(typ); err != nil {
			return ResolvedFilter{}, typeErr(t.Name(), f.Column, err)
		}
	case Lt, Le, Gt, Ge:
		if err := coltype.ValidateOrdered(typ); err != nil {
			return ResolvedFilter{}, typeErr(t.Name(), f.Column, err)
		}
	case IsNull, NotNull:
		if !typ.Nullable() {
			return ResolvedFilter{}, typeErr(t.Name(), f.Column,
				fmt.Errorf("%w: %s on non-nullable %s", ErrBadOperator, f.Op, typ))
		}
		if f.Value != nil {
			return ResolvedFilter{}, typeErr(t.Name(), f.Column,
				fmt.Errorf("%w: %s takes no value", ErrBadOperator, f.Op))
		}
		return ResolvedFilter{Path: path, Op: f.Op}, nil
	default:
		return ResolvedFilter{}, typeErr(t.Name(), f.Column, fmt.Errorf("%w: %s", ErrBadOperator, f.Op))
	}

	if f.Value == nil {
		return ResolvedFilter{}, typeErr(t.Name(), f.Column,
			fmt.Errorf("%w: %s needs a value, use IsNull", ErrTypeMismatch, f.Op))
	}
	v, err := coltype.Normalize(typ, f.Value)
	if err != nil {
		return ResolvedFilter{}, typeErr(t.Name(), f.Column, fmt.Errorf("%w: %v", ErrTypeMismatch, err))
	}
	return ResolvedFilter{Path: path, Op: f.Op, Value: v}, nil
}

// CheckInsert validates the values of an insert and orders them by column
// position.
func CheckInsert(s *schema.Validated, p Insert) (*ResolvedWrite, error) {
	t, ok := s.Table(p.Table)
	if !ok {
		return nil, typeErr(p.Table, "", ErrUnknownTable)
	}
	if err := fromResult(t, validation.ValidateInsert(t, p.Values)); err != nil {
		return nil, err
	}
	return resolveWrite(t, 0, p.Values)
}

// CheckUpdate validates the values of an update. Columns not named keep
// their stored value.
func CheckUpdate(s *schema.Validated, p Update) (*ResolvedWrite, error) {
	t, ok := s.Table(p.Table)
	if !ok {
		return nil, typeErr(p.Table, "", ErrUnknownTable)
	}
	if err := fromResult(t, validation.ValidateUpdate(t, p.Values)); err != nil {
		return nil, err
	}
	return resolveWrite(t, p.ID, p.Values)
}

// CheckDelete resolves the table of a delete.
func CheckDelete(s *schema.Validated, p Delete) (*ResolvedWrite, error) {
	t, ok := s.Table(p.Table)
	if !ok {
		return nil, typeErr(p.Table, "", ErrUnknownTable)
	}
	return &ResolvedWrite{Table: t, ID: p.ID}, nil
}

func resolveWrite(t *schema.Table, id coltype.RowID, values map[string]any) (*ResolvedWrite, error) {
	w := &ResolvedWrite{Table: t, ID: id}
	for _, c := range t.Columns() {
		value, ok := values[c.Name()]
		if !ok {
			continue
		}
		v, err := coltype.Normalize(c.Type(), value)
		if err != nil {
			return nil, typeErr(t.Name(), c.Name(), fmt.Errorf("%w: %v", ErrTypeMismatch, err))
		}
		w.Columns = append(w.Columns, c)
		w.Values = append(w.Values, v)
	}
	return w, nil
}

func fromResult(t *schema.Table, r validation.Result) error {
	if r.Valid {
		return nil
	}
	errs := make([]error, 0, len(r.Errors))
	for _, fe := range r.Errors {
		reason := ErrTypeMismatch
		switch fe.Rule {
		case validation.RuleUnknownColumn:
			reason = ErrUnknownColumn
		case validation.RuleReserved:
			reason = schema.ErrReservedColumnName
		}
		errs = append(errs, typeErr(t.Name(), fe.Column, fmt.Errorf("%w: %s", reason, fe.Message)))
	}
	return errors.Join(errs...)
}
