package txn

import (
	"bytes"
	"fmt"
	"sync/atomic"

	"github.com/artpar/scopedb/core/plan"
	"github.com/artpar/scopedb/core/schema"
	"github.com/artpar/scopedb/domain/coltype"
)

// scope is the token carried by every scoped value. It dies when the
// callback (or row) it was issued for ends.
type scope struct {
	tx   *Transaction
	dead atomic.Bool
}

func (sc *scope) end() { sc.dead.Store(true) }

// check reports why sc may not be used, as a scope violation reason.
func (sc *scope) check() error {
	switch {
	case sc == nil:
		return ErrStaleRow
	case sc.tx.closed():
		return ErrTransactionClosed
	case sc.dead.Load():
		return ErrStaleRow
	}
	return nil
}

// use checks sc on behalf of op and returns a *ScopeViolation when dead.
func (sc *scope) use(op string) error {
	if err := sc.check(); err != nil {
		if sc == nil {
			return &ScopeViolation{Op: op, Reason: err}
		}
		return sc.tx.violation(op, err)
	}
	return nil
}

// newScope issues a scope that dies when the current operation ends.
func (tx *Transaction) newScope() *scope {
	sc := &scope{tx: tx}
	tx.mu.Lock()
	tx.scopes = append(tx.scopes, sc)
	tx.mu.Unlock()
	return sc
}

// fields is one decoded result row.
type fields struct {
	table  *schema.Table
	id     coltype.RowID
	paths  []plan.Path
	values []any
}

func (f *fields) index(column string) (int, error) {
	if f.table == nil {
		return 0, fmt.Errorf("%w: %s (empty record)", ErrNoColumn, column)
	}
	if column == schema.KeyColumn {
		return -1, nil
	}
	for i, p := range f.paths {
		if p.Name == column {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %s.%s", ErrNoColumn, f.table.Name(), column)
}

// lookup returns the type and value of column.
func (f *fields) lookup(column string) (coltype.Validated, any, error) {
	i, err := f.index(column)
	if err != nil {
		return coltype.Validated{}, nil, err
	}
	if i < 0 {
		v, err := coltype.ValidateColumnType(coltype.Ref(f.table.Name()))
		return v, f.id, err
	}
	return f.paths[i].Type(), f.values[i], nil
}

func (f *fields) text(column string) (string, bool, error) {
	v, err := f.typed(column, coltype.KindText)
	if err != nil || v == nil {
		return "", false, err
	}
	return v.(string), true, nil
}

func (f *fields) int64(column string) (int64, bool, error) {
	v, err := f.typed(column, coltype.KindInteger64)
	if err != nil || v == nil {
		return 0, false, err
	}
	return v.(int64), true, nil
}

func (f *fields) float64(column string) (float64, bool, error) {
	v, err := f.typed(column, coltype.KindFloat64)
	if err != nil || v == nil {
		return 0, false, err
	}
	return v.(float64), true, nil
}

func (f *fields) bytes(column string) ([]byte, bool, error) {
	v, err := f.typed(column, coltype.KindByteBlob)
	if err != nil || v == nil {
		return nil, false, err
	}
	return bytes.Clone(v.([]byte)), true, nil
}

func (f *fields) rowID(column string) (coltype.RowID, bool, error) {
	v, err := f.typed(column, coltype.KindReference)
	if err != nil || v == nil {
		return 0, false, err
	}
	return v.(coltype.RowID), true, nil
}

func (f *fields) typed(column string, want coltype.Kind) (any, error) {
	typ, v, err := f.lookup(column)
	if err != nil {
		return nil, err
	}
	if typ.Base().Kind != want {
		return nil, fmt.Errorf("%w: %s.%s is %s, not %s", ErrColumnType, f.table.Name(), column, typ, want)
	}
	return v, nil
}

func (f *fields) clone() fields {
	out := fields{table: f.table, id: f.id, paths: f.paths, values: make([]any, len(f.values))}
	for i, v := range f.values {
		if b, ok := v.([]byte); ok {
			v = bytes.Clone(b)
		}
		out.values[i] = v
	}
	return out
}

// Row is a scoped view of one result row. It is valid only while the
// callback that received it runs.
type Row struct {
	scope *scope
	f     fields
}

// Table returns the name of the queried table.
func (r *Row) Table() string { return r.f.table.Name() }

// ID returns a scoped reference to this row.
func (r *Row) ID() (Ref, error) {
	if err := r.scope.use("row.id"); err != nil {
		return Ref{}, err
	}
	return Ref{scope: r.scope, table: r.f.table.Name(), id: r.f.id}, nil
}

// Get returns a scoped handle on a selected column.
func (r *Row) Get(column string) (Value, error) {
	if err := r.scope.use("row.get"); err != nil {
		return Value{}, err
	}
	typ, v, err := r.f.lookup(column)
	if err != nil {
		return Value{}, err
	}
	return Value{scope: r.scope, typ: typ, v: v}, nil
}

// Ref returns a scoped reference held in a reference column.
func (r *Row) Ref(column string) (Ref, bool, error) {
	if err := r.scope.use("row.ref"); err != nil {
		return Ref{}, false, err
	}
	typ, _, err := r.f.lookup(column)
	if err != nil {
		return Ref{}, false, err
	}
	id, ok, err := r.f.rowID(column)
	if err != nil || !ok {
		return Ref{}, false, err
	}
	return Ref{scope: r.scope, table: typ.RefTable(), id: id}, true, nil
}

// Text returns a text column. ok is false for NULL.
func (r *Row) Text(column string) (string, bool, error) {
	if err := r.scope.use("row.text"); err != nil {
		return "", false, err
	}
	return r.f.text(column)
}

// Int64 returns an integer column. ok is false for NULL.
func (r *Row) Int64(column string) (int64, bool, error) {
	if err := r.scope.use("row.int64"); err != nil {
		return 0, false, err
	}
	return r.f.int64(column)
}

// Float64 returns a float column. ok is false for NULL.
func (r *Row) Float64(column string) (float64, bool, error) {
	if err := r.scope.use("row.float64"); err != nil {
		return 0, false, err
	}
	return r.f.float64(column)
}

// Bytes returns a copy of a blob column. ok is false for NULL.
func (r *Row) Bytes(column string) ([]byte, bool, error) {
	if err := r.scope.use("row.bytes"); err != nil {
		return nil, false, err
	}
	return r.f.bytes(column)
}

// Record materializes the row. The Record stays valid after the callback.
func (r *Row) Record() (Record, error) {
	if err := r.scope.use("row.record"); err != nil {
		return Record{}, err
	}
	return Record{f: r.f.clone()}, nil
}

// Rows iterates the rows of one query. Each row's scope ends when Next
// moves past it; all of them end when the callback returns.
type Rows struct {
	scope *scope
	tx    *Transaction
	rows  []fields
	i     int
	cur   *Row
	err   error
}

// Next advances to the next row and reports whether there is one.
func (rs *Rows) Next() bool {
	if rs.cur != nil {
		rs.cur.scope.end()
		rs.cur = nil
	}
	if rs.err != nil {
		return false
	}
	if err := rs.scope.use("rows.next"); err != nil {
		rs.err = err
		return false
	}
	if rs.i >= len(rs.rows) {
		return false
	}
	rs.cur = &Row{scope: rs.tx.newScope(), f: rs.rows[rs.i]}
	rs.i++
	return true
}

// Row returns the current row, or nil before the first Next.
func (rs *Rows) Row() *Row { return rs.cur }

// Len returns the number of rows in the result.
func (rs *Rows) Len() int { return len(rs.rows) }

// Err returns the scope violation that stopped iteration, if any.
func (rs *Rows) Err() error { return rs.err }

// Value is a scoped handle on one column value.
type Value struct {
	scope *scope
	typ   coltype.Validated
	v     any
}

// Type returns the declared type of the value.
func (v Value) Type() coltype.Validated { return v.typ }

// Get returns the value: int64, float64, string, []byte (a copy),
// coltype.RowID, or nil for NULL.
func (v Value) Get() (any, error) {
	if err := v.scope.use("value.get"); err != nil {
		return nil, err
	}
	if b, ok := v.v.([]byte); ok {
		return bytes.Clone(b), nil
	}
	return v.v, nil
}

// Ref is a scoped reference to a row.
type Ref struct {
	scope *scope
	table string
	id    coltype.RowID
}

// Table returns the referenced table.
func (r Ref) Table() string { return r.table }

// ID returns the referenced row id.
func (r Ref) ID() (coltype.RowID, error) {
	if err := r.scope.use("ref.id"); err != nil {
		return 0, err
	}
	return r.id, nil
}

// Record is a materialized row. It holds no scoped values and stays valid
// after its transaction closes.
type Record struct {
	f fields
}

// Table returns the queried table.
func (r Record) Table() string {
	if r.f.table == nil {
		return ""
	}
	return r.f.table.Name()
}

// ID returns the row id.
func (r Record) ID() coltype.RowID { return r.f.id }

// Columns returns the selected column paths in order.
func (r Record) Columns() []string {
	out := make([]string, len(r.f.paths))
	for i, p := range r.f.paths {
		out[i] = p.Name
	}
	return out
}

// Values returns the selected values in column order.
func (r Record) Values() []any {
	c := r.f.clone()
	return c.values
}

// Get returns the value of column, or an error if it was not selected.
func (r Record) Get(column string) (any, error) {
	_, v, err := r.f.lookup(column)
	if b, ok := v.([]byte); ok {
		v = bytes.Clone(b)
	}
	return v, err
}

// IsNull reports whether column holds NULL.
func (r Record) IsNull(column string) bool {
	_, v, err := r.f.lookup(column)
	return err == nil && v == nil
}

// Text returns a text column. ok is false for NULL.
func (r Record) Text(column string) (string, bool, error) { return r.f.text(column) }

// Int64 returns an integer column. ok is false for NULL.
func (r Record) Int64(column string) (int64, bool, error) { return r.f.int64(column) }

// Float64 returns a float column. ok is false for NULL.
func (r Record) Float64(column string) (float64, bool, error) { return r.f.float64(column) }

// Bytes returns a copy of a blob column. ok is false for NULL.
func (r Record) Bytes(column string) ([]byte, bool, error) { return r.f.bytes(column) }

// RowID returns a reference column, or the key for "id". ok is false for
// NULL.
func (r Record) RowID(column string) (coltype.RowID, bool, error) { return r.f.rowID(column) }
