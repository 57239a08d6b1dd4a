package schema

import "github.com/artpar/scopedb/domain/coltype"

// Builder assembles a Descriptor in code.
type Builder struct {
	desc Descriptor
}

// NewBuilder starts an empty schema declaration.
func NewBuilder() *Builder {
	return &Builder{}
}

// Table appends a table with the given columns.
func (b *Builder) Table(name string, cols ...ColumnDescriptor) *Builder {
	b.desc.Tables = append(b.desc.Tables, TableDescriptor{Name: name, Columns: cols})
	return b
}

// UnreferencedTable appends a table that no other table may reference.
func (b *Builder) UnreferencedTable(name string, cols ...ColumnDescriptor) *Builder {
	b.desc.Tables = append(b.desc.Tables, TableDescriptor{Name: name, Columns: cols, Flags: Unreferenced})
	return b
}

// Descriptor returns a copy of the declaration built so far.
func (b *Builder) Descriptor() Descriptor {
	out := Descriptor{Tables: make([]TableDescriptor, len(b.desc.Tables))}
	for i, t := range b.desc.Tables {
		t.Columns = append([]ColumnDescriptor(nil), t.Columns...)
		out.Tables[i] = t
	}
	return out
}

// Col declares a column.
func Col(name string, t coltype.Type, flags ...ColumnFlag) ColumnDescriptor {
	var f ColumnFlag
	for _, fl := range flags {
		f |= fl
	}
	return ColumnDescriptor{Name: name, Type: t, Flags: f}
}
