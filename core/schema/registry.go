package schema

import (
	"fmt"
	"strings"

	"github.com/artpar/scopedb/domain/coltype"
)

// Column is a validated column. Its type passed the taxonomy and, for unique
// or indexed columns, the equality check.
type Column struct {
	table    string
	name     string
	typ      coltype.Validated
	flags    ColumnFlag
	position int
}

func (c *Column) Table() string { return c.table }
func (c *Column) Name() string { return c.name }
func (c *Column) Type() coltype.Validated { return c.typ }
func (c *Column) Unique() bool { return c.flags.Has(Unique) }
func (c *Column) Indexed() bool { return c.flags.Has(Indexed) }
func (c *Column) NoReference() bool { return c.flags.Has(NoReference) }
func (c *Column) Position() int { return c.position }
func (c *Column) IsReference() bool { return c.typ.RefTable() != "" }
func (c *Column) Nullable() bool { return c.typ.Nullable() }
func (c *Column) String() string { return c.table + "." + c.name }

// Table is a validated table layout.
type Table struct {
	name    string
	columns []*Column
	byName  map[string]*Column
	flags   TableFlag
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Columns returns the declared columns in declaration order.
// The implicit key column is not included.
func (t *Table) Columns() []*Column {
	out := make([]*Column, len(t.columns))
	copy(out, t.columns)
	return out
}

// Column looks up a declared column by name.
func (t *Table) Column(name string) (*Column, bool) {
	c, ok := t.byName[name]
	return c, ok
}

// Unreferenced reports whether the table forbids incoming references.
func (t *Table) Unreferenced() bool { return t.flags.Has(Unreferenced) }

// RegisterTable validates a single table declaration. It reports every
// invalid column at once. References are not resolved here; RegisterSchema
// does that once all tables are known.
func RegisterTable(desc TableDescriptor) (*Table, error) {
	var diags Diagnostics

	if !isValidIdentifier(desc.Name) {
		diags.add(desc.Name, "", fmt.Errorf("%w: %q", ErrInvalidName, desc.Name))
	}

	t := &Table{
		name:   desc.Name,
		byName: make(map[string]*Column, len(desc.Columns)),
		flags:  desc.Flags,
	}

	for i, cd := range desc.Columns {
		if _, dup := t.byName[cd.Name]; dup {
			diags.add(desc.Name, cd.Name, ErrDuplicateColumnName)
			continue
		}
		if cd.Name == KeyColumn {
			diags.add(desc.Name, cd.Name, ErrReservedColumnName)
		} else if !isValidIdentifier(cd.Name) {
			diags.add(desc.Name, cd.Name, fmt.Errorf("%w: %q", ErrInvalidName, cd.Name))
		}

		col, err := registerColumn(desc.Name, cd, i)
		if err != nil {
			diags.add(desc.Name, cd.Name, err)
			// Keep the name so a later duplicate is still reported.
			t.byName[cd.Name] = nil
			continue
		}
		t.byName[cd.Name] = col
		t.columns = append(t.columns, col)
	}

	if err := diags.err(); err != nil {
		return nil, err
	}
	return t, nil
}

func registerColumn(table string, cd ColumnDescriptor, pos int) (*Column, error) {
	typ := cd.Type
	if typ.Kind == coltype.KindInvalid && cd.Declared != "" {
		return nil, &coltype.TypeError{Rule: coltype.ErrUnsupportedColumnType, Detail: fmt.Sprintf("unknown type %q", cd.Declared)}
	}

	v, err := coltype.ValidateColumnType(typ)
	if err != nil {
		return nil, err
	}

	if cd.Flags.Has(Unique) || cd.Flags.Has(Indexed) {
		if err := coltype.ValidateEqCapable(v); err != nil {
			return nil, err
		}
	}

	return &Column{table: table, name: cd.Name, typ: v, flags: cd.Flags, position: pos}, nil
}

// Validated is an immutable, fully checked schema.
type Validated struct {
	tables      []*Table
	byName      map[string]*Table
	fingerprint string
}

// Tables returns the tables in declaration order.
func (s *Validated) Tables() []*Table {
	out := make([]*Table, len(s.tables))
	copy(out, s.tables)
	return out
}

// Table looks up a table by name.
func (s *Validated) Table(name string) (*Table, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// Fingerprint identifies the schema's shape. Two schemas with the same
// tables, columns, types and flags share a fingerprint.
func (s *Validated) Fingerprint() string { return s.fingerprint }

// String renders the canonical schema text.
func (s *Validated) String() string { return canonical(s) }

// RegisterSchema validates every table, then resolves references across
// the whole schema. All problems are reported together.
func RegisterSchema(desc Descriptor) (*Validated, error) {
	var diags Diagnostics

	if len(desc.Tables) == 0 {
		diags.add("", "", ErrEmptySchema)
		return nil, diags.err()
	}

	s := &Validated{byName: make(map[string]*Table, len(desc.Tables))}
	declared := make(map[string]TableFlag, len(desc.Tables))

	for _, td := range desc.Tables {
		if _, dup := declared[td.Name]; dup {
			diags.add(td.Name, "", ErrDuplicateTableName)
			continue
		}
		declared[td.Name] = td.Flags

		t, err := RegisterTable(td)
		if err != nil {
			diags.merge(err)
			continue
		}
		s.tables = append(s.tables, t)
		s.byName[t.name] = t
	}

	// Second pass: every table name is known, so forward and self
	// references resolve here.
	for _, td := range desc.Tables {
		t, ok := s.byName[td.Name]
		if !ok {
			continue
		}
		for _, c := range t.columns {
			target := c.typ.RefTable()
			if target == "" {
				continue
			}
			flags, ok := declared[target]
			if !ok {
				diags.add(t.name, c.name, fmt.Errorf("%w %q", ErrUnknownTableReference, target))
				continue
			}
			if flags.Has(Unreferenced) {
				diags.add(t.name, c.name, fmt.Errorf("%w: %q", ErrReferenceForbidden, target))
			}
		}
	}

	if err := diags.err(); err != nil {
		return nil, err
	}

	s.fingerprint = fingerprint(canonical(s))
	return s, nil
}

// canonical renders s in a stable textual form.
func canonical(s *Validated) string {
	var b strings.Builder
	for _, t := range s.tables {
		b.WriteString("table ")
		b.WriteString(t.name)
		if t.Unreferenced() {
			b.WriteString(" no_reference")
		}
		b.WriteString("\n")
		for _, c := range t.columns {
			fmt.Fprintf(&b, "  %s %s", c.name, c.typ)
			if c.Unique() {
				b.WriteString(" unique")
			}
			if c.Indexed() {
				b.WriteString(" index")
			}
			if c.NoReference() {
				b.WriteString(" no_reference")
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
