/*
Package schema turns schema declarations into validated, immutable schema
metadata.

A schema is a set of tables. Each table has an implicit integer primary key
column named "id" and an ordered list of declared columns. Every declared
column carries a type from the closed taxonomy in domain/coltype.

# Declaration

Schemas are declared in YAML:

	tables:
	  - table: artist
	    columns:
	      - { name: name, type: text, unique: true }

	  - table: album
	    columns:
	      - { name: title,  type: text }
	      - { name: artist, type: ref(artist) }
	      - { name: year,   type: nullable(integer) }

or with the builder:

	desc := schema.NewBuilder().
		Table("artist", schema.Col("name", coltype.Text(), schema.Unique)).
		Table("album",
			schema.Col("title", coltype.Text()),
			schema.Col("artist", coltype.Ref("artist")),
		).
		Descriptor()

# Column Types

  - integer:        64-bit signed integer
  - float:          64-bit floating point
  - text:           UTF-8 string
  - blob:           byte string
  - ref(table):     reference to a row of table
  - nullable(T):    T or NULL, where T is not itself nullable

Booleans are rejected. Nullable columns cannot be unique or indexed, since
they are not equality capable.

# Registration

	validated, err := schema.RegisterSchema(desc)

Registration never stops at the first problem. The returned *Diagnostics
lists every invalid column, duplicate name and unresolved reference, and
errors.Is matches any rule it contains:

	if errors.Is(err, schema.ErrDuplicateTableName) { ... }

References are resolved after every table is registered, so a table may
reference itself or a table declared later in the same schema. A table
flagged no_reference cannot be the target of a reference. A reference
column flagged no_reference stays typed but is not enforced as a foreign
key by storage.
*/
package schema
