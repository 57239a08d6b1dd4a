package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/artpar/scopedb/core/plan"
	"github.com/artpar/scopedb/core/schema"
	"github.com/artpar/scopedb/domain/coltype"
)

// condition is one parsed --where argument.
type condition struct {
	column string
	op     plan.Op
	raw    string
}

// Two-character operators first so "<=" is not read as "<".
var operators = []struct {
	token string
	op    plan.Op
}{
	{"!=", plan.Ne},
	{"<=", plan.Le},
	{">=", plan.Ge},
	{"=", plan.Eq},
	{"<", plan.Lt},
	{">", plan.Gt},
}

// parseCondition splits "column<op>value". The operator is the first one
// found scanning from the left.
func parseCondition(s string) (condition, error) {
	i := strings.IndexAny(s, "!<>=")
	if i <= 0 {
		return condition{}, fmt.Errorf("condition %q: want column<op>value", s)
	}
	for _, o := range operators {
		if strings.HasPrefix(s[i:], o.token) {
			return condition{
				column: strings.TrimSpace(s[:i]),
				op:     o.op,
				raw:    s[i+len(o.token):],
			}, nil
		}
	}
	return condition{}, fmt.Errorf("condition %q: unknown operator", s)
}

// parseAssignment splits "column=value".
func parseAssignment(s string) (string, string, error) {
	col, raw, ok := strings.Cut(s, "=")
	if !ok || col == "" {
		return "", "", fmt.Errorf("assignment %q: want column=value", s)
	}
	return strings.TrimSpace(col), raw, nil
}

// parseValue converts a command-line string to the Go value of typ.
// Blobs are hex, optionally prefixed with 0x.
func parseValue(typ coltype.Validated, raw string) (any, error) {
	switch typ.Base().Kind {
	case coltype.KindInteger64:
		return strconv.ParseInt(raw, 10, 64)
	case coltype.KindFloat64:
		return strconv.ParseFloat(raw, 64)
	case coltype.KindText:
		return raw, nil
	case coltype.KindByteBlob:
		return hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	case coltype.KindReference:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		return coltype.RowID(n), nil
	}
	return nil, fmt.Errorf("unsupported type %s", typ)
}

// buildFilters resolves each condition against t and returns s with the
// filters applied.
func buildFilters(s *schema.Validated, t *schema.Table, sel plan.Select, where, isNull, notNull []string) (plan.Select, error) {
	for _, w := range where {
		c, err := parseCondition(w)
		if err != nil {
			return sel, err
		}
		p, err := plan.ResolvePath(s, t, c.column)
		if err != nil {
			return sel, err
		}
		v, err := parseValue(p.Type(), c.raw)
		if err != nil {
			return sel, fmt.Errorf("condition %q: %w", w, err)
		}
		sel = sel.Where(c.column, c.op, v)
	}
	for _, col := range isNull {
		sel = sel.Where(col, plan.IsNull, nil)
	}
	for _, col := range notNull {
		sel = sel.Where(col, plan.NotNull, nil)
	}
	return sel, nil
}

// buildValues parses assignments for t. Columns in nulls are set to NULL.
func buildValues(t *schema.Table, set, nulls []string) (map[string]any, error) {
	values := make(map[string]any, len(set)+len(nulls))
	for _, a := range set {
		col, raw, err := parseAssignment(a)
		if err != nil {
			return nil, err
		}
		c, ok := t.Column(col)
		if !ok {
			return nil, fmt.Errorf("unknown column %s.%s", t.Name(), col)
		}
		v, err := parseValue(c.Type(), raw)
		if err != nil {
			return nil, fmt.Errorf("assignment %q: %w", a, err)
		}
		values[col] = v
	}
	for _, col := range nulls {
		values[col] = nil
	}
	return values, nil
}
