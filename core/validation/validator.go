// Package validation checks values written to a table against its validated
// column types. Validation is enforced before any write reaches storage.
package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/artpar/scopedb/core/schema"
	"github.com/artpar/scopedb/domain/coltype"
)

// Rules reported in FieldError.Rule.
const (
	RuleUnknownColumn = "unknown_column"
	RuleReserved      = "reserved"
	RuleRequired      = "required"
	RuleNull          = "null"
	RuleType          = "type"
)

// FieldError represents one validation failure.
type FieldError struct {
	Column  string
	Rule    string
	Value   any
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Column, e.Message)
}

// Result holds all validation errors for one write.
type Result struct {
	Valid  bool
	Errors []FieldError
}

// AddError adds a validation error.
func (r *Result) AddError(column, rule string, value any, message string) {
	r.Valid = false
	r.Errors = append(r.Errors, FieldError{
		Column:  column,
		Rule:    rule,
		Value:   value,
		Message: message,
	})
}

// Error returns a combined error message.
func (r Result) Error() string {
	if r.Valid {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateInsert validates a full row for insertion. Every non-nullable
// column must be present.
func ValidateInsert(t *schema.Table, values map[string]any) Result {
	result := Result{Valid: true}

	checkUnknown(&result, t, values)

	for _, col := range t.Columns() {
		value, ok := values[col.Name()]
		if !ok {
			if !col.Nullable() {
				result.AddError(col.Name(), RuleRequired, nil, "column is required")
			}
			continue
		}
		validateValue(&result, col, value)
	}

	return result
}

// ValidateUpdate validates a partial row. Only the provided columns are
// checked, and at least one must be provided.
func ValidateUpdate(t *schema.Table, values map[string]any) Result {
	result := Result{Valid: true}

	if len(values) == 0 {
		result.AddError("", RuleRequired, nil, "update sets no columns")
		return result
	}

	checkUnknown(&result, t, values)

	for _, name := range sortedKeys(values) {
		col, ok := t.Column(name)
		if !ok {
			continue
		}
		validateValue(&result, col, values[name])
	}

	return result
}

// ValidateValue validates a single value against its column.
func ValidateValue(col *schema.Column, value any) Result {
	result := Result{Valid: true}
	validateValue(&result, col, value)
	return result
}

func checkUnknown(result *Result, t *schema.Table, values map[string]any) {
	for _, name := range sortedKeys(values) {
		if name == schema.KeyColumn {
			result.AddError(name, RuleReserved, values[name], "the key column cannot be written")
			continue
		}
		if _, ok := t.Column(name); !ok {
			result.AddError(name, RuleUnknownColumn, name,
				fmt.Sprintf("unknown column '%s' - not defined in table %s", name, t.Name()))
		}
	}
}

func validateValue(result *Result, col *schema.Column, value any) {
	typ := col.Type()
	if value == nil {
		if !typ.Nullable() {
			result.AddError(col.Name(), RuleNull, nil, "column is not nullable")
		}
		return
	}
	if !coltype.Accepts(typ, value) {
		result.AddError(col.Name(), RuleType, value,
			fmt.Sprintf("value of type %T is not valid for %s", value, typ))
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
