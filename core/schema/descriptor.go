package schema

import "github.com/artpar/scopedb/domain/coltype"

// KeyColumn is the implicit integer primary key of every table.
const KeyColumn = "id"

// ColumnFlag is a bitmask of column constraints.
type ColumnFlag int

const (
	// Unique requires distinct values across rows.
	Unique ColumnFlag = 1 << iota
	// Indexed asks storage for a lookup index.
	Indexed
	// NoReference keeps a reference column typed without foreign key enforcement.
	NoReference
)

// Has reports whether all bits of o are set.
func (f ColumnFlag) Has(o ColumnFlag) bool { return f&o == o }

// TableFlag is a bitmask of table options.
type TableFlag int

const (
	// Unreferenced forbids other tables from referencing this one.
	Unreferenced TableFlag = 1 << iota
)

// Has reports whether all bits of o are set.
func (f TableFlag) Has(o TableFlag) bool { return f&o == o }

// Descriptor is an unvalidated schema, as produced by a declaration.
type Descriptor struct {
	Tables []TableDescriptor
}

// TableDescriptor declares one table.
type TableDescriptor struct {
	Name    string
	Columns []ColumnDescriptor
	Flags   TableFlag
}

// ColumnDescriptor declares one column.
type ColumnDescriptor struct {
	Name  string
	Type  coltype.Type
	Flags ColumnFlag

	// Declared is the type as written in a declaration file, kept for
	// diagnostics when it could not be parsed.
	Declared string
}
