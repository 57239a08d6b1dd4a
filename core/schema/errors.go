package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Registry rules. SchemaError unwraps to one of these, or to a
// *coltype.TypeError / *coltype.EqError for taxonomy violations.
var (
	ErrDuplicateTableName    = errors.New("duplicate table name")
	ErrDuplicateColumnName   = errors.New("duplicate column name")
	ErrReservedColumnName    = errors.New("column name is reserved for the implicit primary key")
	ErrInvalidName           = errors.New("name is not a valid identifier")
	ErrUnknownTableReference = errors.New("unknown table reference")
	ErrReferenceForbidden    = errors.New("table does not allow references")
	ErrEmptySchema           = errors.New("schema declares no tables")
)

// SchemaError locates a registry failure at a table and, when relevant, a
// column.
type SchemaError struct {
	Table  string
	Column string
	Err    error
}

func (e *SchemaError) Error() string {
	switch {
	case e.Table == "":
		return e.Err.Error()
	case e.Column == "":
		return fmt.Sprintf("table %q: %v", e.Table, e.Err)
	default:
		return fmt.Sprintf("table %q column %q: %v", e.Table, e.Column, e.Err)
	}
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Diagnostics is the batch of every problem found in one registration pass.
type Diagnostics struct {
	Errors []error
}

func (d *Diagnostics) Error() string {
	msgs := make([]string, len(d.Errors))
	for i, e := range d.Errors {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("schema errors:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Unwrap exposes every contained error to errors.Is and errors.As.
func (d *Diagnostics) Unwrap() []error { return d.Errors }

func (d *Diagnostics) add(table, column string, err error) {
	d.Errors = append(d.Errors, &SchemaError{Table: table, Column: column, Err: err})
}

// merge flattens another batch into d.
func (d *Diagnostics) merge(err error) {
	var other *Diagnostics
	if errors.As(err, &other) {
		d.Errors = append(d.Errors, other.Errors...)
		return
	}
	d.Errors = append(d.Errors, err)
}

func (d *Diagnostics) err() error {
	if len(d.Errors) == 0 {
		return nil
	}
	return d
}
