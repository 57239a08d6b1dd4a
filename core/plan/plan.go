// Package plan describes queries and writes against a validated schema and
// type-checks them before they reach an execution adapter.
//
// A plan names columns by path. A path is a column of the queried table or a
// dotted walk through reference columns ending at a column of the referenced
// table:
//
//	plan.Select{
//	    Table:   "track",
//	    Columns: []string{"name", "album.title", "album.artist.name"},
//	    Filters: []plan.Filter{{Column: "album.artist", Op: plan.Eq, Value: artistID}},
//	}
//
// The implicit key column "id" is addressable on every table and has the
// type ref(table).
package plan

import (
	"fmt"

	"github.com/artpar/scopedb/domain/coltype"
)

// Op is a filter comparison operator.
type Op int

const (
	Eq Op = iota + 1
	Ne
	Lt
	Le
	Gt
	Ge
	IsNull
	NotNull
)

// String returns the operator symbol.
func (o Op) String() string {
	switch o {
	case Eq:
		return "="
	case Ne:
		return "!="
	case Lt:
		return "<"
	case Le:
		return "<="
	case Gt:
		return ">"
	case Ge:
		return ">="
	case IsNull:
		return "is null"
	case NotNull:
		return "is not null"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Unary reports whether the operator takes no value.
func (o Op) Unary() bool { return o == IsNull || o == NotNull }

// Filter restricts a Select to rows where Column Op Value holds.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Order sorts a Select by a column.
type Order struct {
	Column string
	Desc   bool
}

// Select reads rows of one table. Empty Columns selects every declared
// column. Zero Limit means no limit.
type Select struct {
	Table   string
	Columns []string
	Filters []Filter
	OrderBy []Order
	Limit   int
	Offset  int
}

// Where appends a filter and returns the plan.
func (s Select) Where(column string, op Op, value any) Select {
	s.Filters = append(append([]Filter(nil), s.Filters...), Filter{Column: column, Op: op, Value: value})
	return s
}

// Insert adds one row.
type Insert struct {
	Table  string
	Values map[string]any
}

// Update changes columns of one row.
type Update struct {
	Table  string
	ID     coltype.RowID
	Values map[string]any
}

// Delete removes one row.
type Delete struct {
	Table string
	ID    coltype.RowID
}
