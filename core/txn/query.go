package txn

import (
	"bytes"
	"context"
	"fmt"

	"github.com/artpar/scopedb/core/plan"
	"github.com/artpar/scopedb/domain/coltype"
	"github.com/artpar/scopedb/ports"
)

// Query runs p and calls fn with an iterator over the result. The rows, and
// every Value and Ref taken from them, are valid only until fn returns. The
// transaction is borrowed while fn runs: any operation on tx from inside fn
// fails with ErrBorrowed. A result R that contains a Row, Rows, Value or Ref
// is rejected with ErrEscaped. Funcs and chans inside R are not inspected,
// so a closure capturing a Row passes this check and fails with
// ErrStaleRow when called later.
func Query[R any](ctx context.Context, tx *Transaction, p plan.Select, fn func(*Rows) (R, error)) (R, error) {
	var zero R
	if err := tx.enter("query"); err != nil {
		return zero, err
	}
	defer tx.leave()

	rows, err := tx.selectRows(ctx, "query", p)
	if err != nil {
		return zero, err
	}

	rs := &Rows{scope: tx.newScope(), tx: tx, rows: rows}
	r, err := fn(rs)
	if err != nil {
		return zero, err
	}
	if err := rs.Err(); err != nil {
		return zero, err
	}
	if escapes(r) {
		return zero, tx.violation("query", ErrEscaped)
	}
	return r, nil
}

// ForEach runs p and calls fn once per row. Each Row is valid only for the
// call that received it. A non-nil error from fn stops iteration and is
// returned as is.
func (tx *Transaction) ForEach(ctx context.Context, p plan.Select, fn func(*Row) error) error {
	if err := tx.enter("query"); err != nil {
		return err
	}
	defer tx.leave()

	rows, err := tx.selectRows(ctx, "query", p)
	if err != nil {
		return err
	}
	for _, f := range rows {
		row := &Row{scope: tx.newScope(), f: f}
		err := fn(row)
		row.scope.end()
		if err != nil {
			return err
		}
		if tx.closed() {
			return tx.violation("query", ErrTransactionClosed)
		}
	}
	return nil
}

// QueryOne returns the first row of p as a Record. ok is false when no row
// matches. A zero Limit is treated as 1.
func (tx *Transaction) QueryOne(ctx context.Context, p plan.Select) (rec Record, ok bool, err error) {
	if err := tx.enter("query_one"); err != nil {
		return Record{}, false, err
	}
	defer tx.leave()

	if p.Limit == 0 {
		p.Limit = 1
	}
	rows, err := tx.selectRows(ctx, "query_one", p)
	if err != nil || len(rows) == 0 {
		return Record{}, false, err
	}
	return Record{f: rows[0]}, true, nil
}

// Count returns the number of rows matching p's filters. Limit and Offset
// are ignored.
func (tx *Transaction) Count(ctx context.Context, p plan.Select) (int64, error) {
	if err := tx.enter("count"); err != nil {
		return 0, err
	}
	defer tx.leave()

	q, err := tx.checkSelect("count", p)
	if err != nil {
		return 0, err
	}
	var n int64
	err = tx.exec("count", q.Table.Name(), func() (err error) {
		n, err = tx.sess.Count(ctx, q)
		return err
	})
	return n, err
}

// Aggregate folds the rows matching p's filters into one value with p.Func.
// The result is int64 for counts and nil when a non-count aggregate sees no
// non-NULL values; otherwise it has the Go type of the aggregated column,
// float64 for Avg.
func (tx *Transaction) Aggregate(ctx context.Context, p plan.Aggregate) (any, error) {
	if err := tx.enter("aggregate"); err != nil {
		return nil, err
	}
	defer tx.leave()

	filters, err := tx.bindFilters("aggregate", p.Filters)
	if err != nil {
		return nil, err
	}
	p.Filters = filters
	q, err := plan.CheckAggregate(tx.schema, p)
	if err != nil {
		return nil, err
	}
	var raw any
	err = tx.exec("aggregate", p.Table, func() (err error) {
		raw, err = tx.sess.Aggregate(ctx, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	v, err := decodeValue(q.Type(), raw)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", p.Table, err)
	}
	return v, nil
}

// Insert adds a row and returns its id.
func (tx *Transaction) Insert(ctx context.Context, p plan.Insert) (coltype.RowID, error) {
	if err := tx.enterWrite("insert"); err != nil {
		return 0, err
	}
	defer tx.leave()

	values, err := tx.bindValues("insert", p.Values)
	if err != nil {
		return 0, err
	}
	p.Values = values
	w, err := plan.CheckInsert(tx.schema, p)
	if err != nil {
		return 0, err
	}
	var id int64
	err = tx.exec("insert", p.Table, func() (err error) {
		id, err = tx.sess.Insert(ctx, w)
		return err
	})
	return coltype.RowID(id), err
}

// Update changes columns of one row.
func (tx *Transaction) Update(ctx context.Context, p plan.Update) error {
	if err := tx.enterWrite("update"); err != nil {
		return err
	}
	defer tx.leave()

	values, err := tx.bindValues("update", p.Values)
	if err != nil {
		return err
	}
	p.Values = values
	w, err := plan.CheckUpdate(tx.schema, p)
	if err != nil {
		return err
	}
	return tx.exec("update", p.Table, func() error {
		return tx.sess.Update(ctx, w)
	})
}

// Delete removes one row.
func (tx *Transaction) Delete(ctx context.Context, p plan.Delete) error {
	if err := tx.enterWrite("delete"); err != nil {
		return err
	}
	defer tx.leave()

	w, err := plan.CheckDelete(tx.schema, p)
	if err != nil {
		return err
	}
	return tx.exec("delete", p.Table, func() error {
		return tx.sess.Delete(ctx, w)
	})
}

func (tx *Transaction) enterWrite(op string) error {
	if err := tx.enter(op); err != nil {
		return err
	}
	if !tx.writable {
		tx.leave()
		return fmt.Errorf("%s: %w", op, ErrReadOnly)
	}
	return nil
}

// selectRows checks p, runs it and decodes the result.
func (tx *Transaction) selectRows(ctx context.Context, op string, p plan.Select) ([]fields, error) {
	q, err := tx.checkSelect(op, p)
	if err != nil {
		return nil, err
	}

	var raw []ports.RawRow
	err = tx.exec(op, q.Table.Name(), func() (err error) {
		raw, err = tx.sess.Select(ctx, q)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]fields, len(raw))
	for i, r := range raw {
		f, err := decodeRow(q, r)
		if err != nil {
			tx.logger.Error().Err(err).Str("table", q.Table.Name()).Msg("decode failed")
			return nil, &ExecutionError{Op: op, Table: q.Table.Name(), Err: err}
		}
		out[i] = f
	}
	return out, nil
}

func (tx *Transaction) checkSelect(op string, p plan.Select) (*plan.ResolvedSelect, error) {
	filters, err := tx.bindFilters(op, p.Filters)
	if err != nil {
		return nil, err
	}
	p.Filters = filters
	return plan.CheckSelect(tx.schema, p)
}

func (tx *Transaction) bindFilters(op string, filters []plan.Filter) ([]plan.Filter, error) {
	if len(filters) == 0 {
		return filters, nil
	}
	out := make([]plan.Filter, len(filters))
	for i, f := range filters {
		v, err := tx.bind(op, f.Value)
		if err != nil {
			return nil, err
		}
		f.Value = v
		out[i] = f
	}
	return out, nil
}

func (tx *Transaction) bindValues(op string, values map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for k, v := range values {
		b, err := tx.bind(op, v)
		if err != nil {
			return nil, err
		}
		out[k] = b
	}
	return out, nil
}

// bind replaces scoped plan arguments by the plain values they carry. A
// scoped argument must be live and issued by tx.
func (tx *Transaction) bind(op string, v any) (any, error) {
	switch x := v.(type) {
	case Ref:
		if err := tx.own(op, x.scope); err != nil {
			return nil, err
		}
		return x.id, nil
	case Value:
		if err := tx.own(op, x.scope); err != nil {
			return nil, err
		}
		if b, ok := x.v.([]byte); ok {
			return bytes.Clone(b), nil
		}
		return x.v, nil
	case *Row:
		if x == nil {
			return nil, nil
		}
		if err := tx.own(op, x.scope); err != nil {
			return nil, err
		}
		return x.f.id, nil
	case Record:
		return x.ID(), nil
	}
	return v, nil
}

func (tx *Transaction) own(op string, sc *scope) error {
	if sc != nil && sc.tx != tx {
		return tx.violation(op, ErrForeignTransaction)
	}
	if err := sc.check(); err != nil {
		return tx.violation(op, err)
	}
	return nil
}

func decodeRow(q *plan.ResolvedSelect, r ports.RawRow) (fields, error) {
	if len(r.Values) != len(q.Columns) {
		return fields{}, fmt.Errorf("%w: got %d values for %d columns", ErrDecode, len(r.Values), len(q.Columns))
	}
	f := fields{
		table:  q.Table,
		id:     coltype.RowID(r.ID),
		paths:  q.Columns,
		values: make([]any, len(r.Values)),
	}
	for i, p := range q.Columns {
		v, err := decodeValue(p.Type(), r.Values[i])
		if err != nil {
			return fields{}, fmt.Errorf("column %s: %w", p.Name, err)
		}
		f.values[i] = v
	}
	return f, nil
}

// decodeValue converts a raw storage value to the canonical Go value of
// its declared type.
func decodeValue(typ coltype.Validated, v any) (any, error) {
	if v == nil {
		if !typ.Nullable() {
			return nil, fmt.Errorf("%w: NULL in %s", ErrDecode, typ)
		}
		return nil, nil
	}
	switch typ.Base().Kind {
	case coltype.KindInteger64:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		}
	case coltype.KindFloat64:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		}
	case coltype.KindText:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
	case coltype.KindByteBlob:
		switch b := v.(type) {
		case []byte:
			return bytes.Clone(b), nil
		case string:
			return []byte(b), nil
		}
	case coltype.KindReference:
		switch n := v.(type) {
		case int64:
			return coltype.RowID(n), nil
		case coltype.RowID:
			return n, nil
		}
	}
	return nil, fmt.Errorf("%w: %T for %s", ErrDecode, v, typ)
}
