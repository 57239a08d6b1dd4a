package txn

import (
	"reflect"
)

var (
	scopedTypes = map[reflect.Type]bool{
		reflect.TypeOf(Row{}):   true,
		reflect.TypeOf(Rows{}):  true,
		reflect.TypeOf(Value{}): true,
		reflect.TypeOf(Ref{}):   true,
	}
	recordType = reflect.TypeOf(Record{})
)

type visit struct {
	ptr uintptr
	n   int
	typ reflect.Type
}

// escapes reports whether a Row, Rows, Value or Ref is reachable from v.
// Funcs and channels are not inspected.
func escapes(v any) bool {
	if v == nil {
		return false
	}
	return walk(reflect.ValueOf(v), make(map[visit]bool))
}

func walk(v reflect.Value, seen map[visit]bool) bool {
	if !v.IsValid() {
		return false
	}
	t := v.Type()
	if scopedTypes[t] {
		return true
	}
	if t == recordType {
		return false
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return false
		}
		key := visit{ptr: v.Pointer(), typ: t}
		if seen[key] {
			return false
		}
		seen[key] = true
		return walk(v.Elem(), seen)
	case reflect.Interface:
		if v.IsNil() {
			return false
		}
		return walk(v.Elem(), seen)
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if walk(v.Field(i), seen) {
				return true
			}
		}
	case reflect.Slice:
		if v.IsNil() {
			return false
		}
		key := visit{v.Pointer(), v.Len(), t}
		if seen[key] {
			return false
		}
		seen[key] = true
		fallthrough
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if walk(v.Index(i), seen) {
				return true
			}
		}
	case reflect.Map:
		if v.IsNil() {
			return false
		}
		key := visit{ptr: v.Pointer(), typ: t}
		if seen[key] {
			return false
		}
		seen[key] = true
		it := v.MapRange()
		for it.Next() {
			if walk(it.Key(), seen) || walk(it.Value(), seen) {
				return true
			}
		}
	}
	return false
}
