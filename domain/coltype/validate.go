package coltype

import (
	"errors"
	"fmt"
)

// Taxonomy rules. TypeError and EqError unwrap to one of these.
var (
	ErrIllegalNesting         = errors.New("illegal nesting: nullable may not wrap nullable")
	ErrUnsupportedColumnType  = errors.New("unsupported column type")
	ErrMissingReferenceTarget = errors.New("reference type must name a table")
	ErrNotEqCapable           = errors.New("type does not support equality or uniqueness")
	ErrNotOrdered             = errors.New("type does not support ordering comparisons")
)

// TypeError reports a declared type that is not a legal column type.
type TypeError struct {
	Type   Type
	Rule   error
	Detail string
}

func (e *TypeError) Error() string {
	msg := e.Rule.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Type.Kind == KindInvalid {
		return msg
	}
	return fmt.Sprintf("type %s: %s", e.Type, msg)
}

func (e *TypeError) Unwrap() error { return e.Rule }

// EqError reports a type used where equality or uniqueness is required
// but which cannot be compared.
type EqError struct {
	Type Type
	Rule error
}

func (e *EqError) Error() string {
	return fmt.Sprintf("type %s: %s", e.Type, e.Rule)
}

func (e *EqError) Unwrap() error { return e.Rule }

// Validated is proof that a Type passed ValidateColumnType. The zero value
// is not valid and is never returned alongside a nil error.
type Validated struct {
	t Type
}

// Type returns the declared type.
func (v Validated) Type() Type { return v.t }

// Nullable reports whether the column admits NULL.
func (v Validated) Nullable() bool { return v.t.Kind == KindNullable }

// Base returns the non-nullable type underneath any Nullable wrapper.
func (v Validated) Base() Type {
	if v.t.Kind == KindNullable {
		return *v.t.Elem
	}
	return v.t
}

// RefTable returns the referenced table, or "" for non-reference types.
func (v Validated) RefTable() string {
	return v.Base().Table
}

// IsZero reports whether v was never validated.
func (v Validated) IsZero() bool { return v.t.Kind == KindInvalid }

func (v Validated) String() string { return v.t.String() }

// ValidateColumnType checks t against the closed taxonomy.
func ValidateColumnType(t Type) (Validated, error) {
	switch t.Kind {
	case KindInteger64, KindFloat64, KindText, KindByteBlob:
		return Validated{t: t}, nil
	case KindReference:
		if t.Table == "" {
			return Validated{}, &TypeError{Type: t, Rule: ErrMissingReferenceTarget}
		}
		return Validated{t: t}, nil
	case KindBoolean:
		return Validated{}, &TypeError{Type: t, Rule: ErrUnsupportedColumnType, Detail: "booleans are not a column type"}
	case KindNullable:
		if t.Elem == nil {
			return Validated{}, &TypeError{Type: t, Rule: ErrUnsupportedColumnType, Detail: "nullable without inner type"}
		}
		if t.Elem.Kind == KindNullable {
			return Validated{}, &TypeError{Type: t, Rule: ErrIllegalNesting}
		}
		if _, err := ValidateColumnType(*t.Elem); err != nil {
			return Validated{}, err
		}
		return Validated{t: NullableOf(*t.Elem)}, nil
	default:
		return Validated{}, &TypeError{Type: t, Rule: ErrUnsupportedColumnType}
	}
}

// ValidateEqCapable checks that v may be used for equality or uniqueness.
// Nullable types never qualify, whatever they wrap.
func ValidateEqCapable(v Validated) error {
	switch v.t.Kind {
	case KindInteger64, KindFloat64, KindText, KindByteBlob, KindReference:
		return nil
	default:
		return &EqError{Type: v.t, Rule: ErrNotEqCapable}
	}
}

// ValidateOrdered checks that v may be used with <, <=, > and >=.
func ValidateOrdered(v Validated) error {
	switch v.t.Kind {
	case KindInteger64, KindFloat64, KindText:
		return nil
	default:
		return &EqError{Type: v.t, Rule: ErrNotOrdered}
	}
}

// Accepts reports whether value is a legal Go value for a column of type v.
func Accepts(v Validated, value any) bool {
	if value == nil {
		return v.Nullable()
	}
	switch v.Base().Kind {
	case KindInteger64:
		switch value.(type) {
		case int64, int, int32:
			return true
		}
	case KindFloat64:
		switch value.(type) {
		case float64, float32, int64, int, int32:
			return true
		}
	case KindText:
		_, ok := value.(string)
		return ok
	case KindByteBlob:
		_, ok := value.([]byte)
		return ok
	case KindReference:
		_, ok := value.(RowID)
		return ok
	}
	return false
}

// Normalize converts an accepted value to its canonical Go representation:
// int64, float64, string, []byte, RowID or nil.
func Normalize(v Validated, value any) (any, error) {
	if !Accepts(v, value) {
		return nil, fmt.Errorf("value of type %T is not valid for %s", value, v)
	}
	if value == nil {
		return nil, nil
	}
	switch v.Base().Kind {
	case KindInteger64:
		switch n := value.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		}
	case KindFloat64:
		switch n := value.(type) {
		case float32:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int32:
			return float64(n), nil
		}
	case KindByteBlob:
		b := value.([]byte)
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	}
	return value, nil
}
