// Package coltype defines the closed taxonomy of column value types and the
// pure validation functions that decide which declared types are legal.
// This package has NO dependencies on I/O or external packages.
package coltype

import (
	"fmt"
	"strings"
)

// Kind identifies the variant of a Type.
type Kind int

const (
	KindInvalid Kind = iota
	KindInteger64
	KindFloat64
	KindText
	KindByteBlob
	// KindBoolean can be declared but is never a legal column type.
	KindBoolean
	KindNullable
	KindReference
)

func (k Kind) String() string {
	switch k {
	case KindInteger64:
		return "integer"
	case KindFloat64:
		return "float"
	case KindText:
		return "text"
	case KindByteBlob:
		return "blob"
	case KindBoolean:
		return "bool"
	case KindNullable:
		return "nullable"
	case KindReference:
		return "ref"
	default:
		return "invalid"
	}
}

// Type is a declared column type (tagged variant).
// Elem is set only for KindNullable, Table only for KindReference.
type Type struct {
	Kind  Kind
	Elem  *Type
	Table string
}

// RowID identifies a stored row. It is a plain value and may be kept
// beyond any query.
type RowID int64

// Int64 returns the Integer64 type.
func Int64() Type { return Type{Kind: KindInteger64} }

// Float64 returns the Float64 type.
func Float64() Type { return Type{Kind: KindFloat64} }

// Text returns the Text type.
func Text() Type { return Type{Kind: KindText} }

// Blob returns the ByteBlob type.
func Blob() Type { return Type{Kind: KindByteBlob} }

// Bool returns the Boolean type. It exists so boolean declarations can be
// represented and rejected.
func Bool() Type { return Type{Kind: KindBoolean} }

// NullableOf wraps t as nullable.
func NullableOf(t Type) Type {
	inner := t
	return Type{Kind: KindNullable, Elem: &inner}
}

// Ref returns a reference to rows of the named table.
func Ref(table string) Type { return Type{Kind: KindReference, Table: table} }

// String renders the canonical schema-file spelling.
func (t Type) String() string {
	switch t.Kind {
	case KindNullable:
		if t.Elem == nil {
			return "nullable()"
		}
		return "nullable(" + t.Elem.String() + ")"
	case KindReference:
		return "ref(" + t.Table + ")"
	default:
		return t.Kind.String()
	}
}

// Equal reports whether two types are structurally identical.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind || t.Table != o.Table {
		return false
	}
	if t.Elem == nil || o.Elem == nil {
		return t.Elem == nil && o.Elem == nil
	}
	return t.Elem.Equal(*o.Elem)
}

// ParseType parses the schema-file spelling of a type.
//
//	integer | int | int64
//	float | float64 | real
//	text | string
//	blob | bytes
//	bool | boolean
//	nullable(T) | T?
//	ref(table)
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Type{}, &TypeError{Rule: ErrUnsupportedColumnType, Detail: "empty type"}
	}

	if strings.HasSuffix(s, "?") {
		inner, err := ParseType(strings.TrimSuffix(s, "?"))
		if err != nil {
			return Type{}, err
		}
		return NullableOf(inner), nil
	}

	lower := strings.ToLower(s)
	if arg, ok := call(lower, s, "nullable"); ok {
		inner, err := ParseType(arg)
		if err != nil {
			return Type{}, err
		}
		return NullableOf(inner), nil
	}
	if arg, ok := call(lower, s, "ref"); ok {
		return Ref(strings.TrimSpace(arg)), nil
	}

	switch lower {
	case "integer", "int", "int64":
		return Int64(), nil
	case "float", "float64", "real":
		return Float64(), nil
	case "text", "string":
		return Text(), nil
	case "blob", "bytes":
		return Blob(), nil
	case "bool", "boolean":
		return Bool(), nil
	}

	return Type{}, &TypeError{Rule: ErrUnsupportedColumnType, Detail: fmt.Sprintf("unknown type %q", s)}
}

// call matches name(arg) and returns arg with its original case.
func call(lower, orig, name string) (string, bool) {
	if !strings.HasPrefix(lower, name+"(") || !strings.HasSuffix(lower, ")") {
		return "", false
	}
	return orig[len(name)+1 : len(orig)-1], true
}
