package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/artpar/scopedb/core/plan"
	"github.com/artpar/scopedb/core/schema"
	"github.com/artpar/scopedb/domain/coltype"
	"github.com/artpar/scopedb/ports"
)

// Conn is a ports.Conn pinned to one pooled SQLite connection.
type Conn struct {
	conn   *sqlx.Conn
	logger zerolog.Logger
}

// Connect takes one connection out of the pool for exclusive use.
func Connect(ctx context.Context, db *DB, logger zerolog.Logger) (*Conn, error) {
	c, err := db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", classify(err))
	}
	return &Conn{conn: c, logger: logger}, nil
}

// Begin starts a storage transaction on the pinned connection.
func (c *Conn) Begin(ctx context.Context, writable bool) (ports.Session, error) {
	tx, err := c.conn.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", classify(err))
	}
	return &session{tx: tx, logger: c.logger}, nil
}

// Close returns the connection to the pool.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Ensure interface compliance.
var _ ports.Conn = (*Conn)(nil)

type session struct {
	tx     *sqlx.Tx
	logger zerolog.Logger
}

func (s *session) Select(ctx context.Context, q *plan.ResolvedSelect) ([]ports.RawRow, error) {
	query, args := buildSelect(q, false)
	s.logger.Trace().Str("sql", query).Msg("select")

	rows, err := s.tx.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", q.Table.Name(), classify(err))
	}
	defer rows.Close()

	var result []ports.RawRow
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Table.Name(), classify(err))
		}
		id, ok := vals[0].(int64)
		if !ok {
			return nil, fmt.Errorf("scan %s: key is %T", q.Table.Name(), vals[0])
		}
		values := vals[1:]
		for i, p := range q.Columns {
			// Some driver builds hand TEXT back as bytes.
			if b, ok := values[i].([]byte); ok && p.Type().Base().Kind == coltype.KindText {
				values[i] = string(b)
			}
		}
		result = append(result, ports.RawRow{ID: id, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select %s: %w", q.Table.Name(), classify(err))
	}
	return result, nil
}

func (s *session) Count(ctx context.Context, q *plan.ResolvedSelect) (int64, error) {
	query, args := buildSelect(q, true)
	s.logger.Trace().Str("sql", query).Msg("count")

	var n int64
	if err := s.tx.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Table.Name(), classify(err))
	}
	return n, nil
}

func (s *session) Aggregate(ctx context.Context, q *plan.ResolvedAggregate) (any, error) {
	query, args := buildAggregate(q)
	s.logger.Trace().Str("sql", query).Msg("aggregate")

	var v any
	if err := s.tx.QueryRowContext(ctx, query, args...).Scan(&v); err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", q.Select.Table.Name(), classify(err))
	}
	if b, ok := v.([]byte); ok && q.Type().Base().Kind == coltype.KindText {
		v = string(b)
	}
	return v, nil
}

func (s *session) Insert(ctx context.Context, w *plan.ResolvedWrite) (int64, error) {
	var query string
	if len(w.Columns) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", quote(w.Table.Name()))
	} else {
		names := make([]string, len(w.Columns))
		marks := make([]string, len(w.Columns))
		for i, c := range w.Columns {
			names[i] = quote(c.Name())
			marks[i] = "?"
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quote(w.Table.Name()), strings.Join(names, ", "), strings.Join(marks, ", "))
	}
	s.logger.Trace().Str("sql", query).Msg("insert")

	res, err := s.tx.ExecContext(ctx, query, driverArgs(w.Values)...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", w.Table.Name(), classify(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", w.Table.Name(), classify(err))
	}
	return id, nil
}

func (s *session) Update(ctx context.Context, w *plan.ResolvedWrite) error {
	sets := make([]string, len(w.Columns))
	for i, c := range w.Columns {
		sets[i] = quote(c.Name()) + " = ?"
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		quote(w.Table.Name()), strings.Join(sets, ", "), schema.KeyColumn)
	s.logger.Trace().Str("sql", query).Msg("update")

	args := append(driverArgs(w.Values), int64(w.ID))
	res, err := s.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", w.Table.Name(), classify(err))
	}
	return expectOne(res, w)
}

func (s *session) Delete(ctx context.Context, w *plan.ResolvedWrite) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quote(w.Table.Name()), schema.KeyColumn)
	s.logger.Trace().Str("sql", query).Msg("delete")

	res, err := s.tx.ExecContext(ctx, query, int64(w.ID))
	if err != nil {
		return fmt.Errorf("delete from %s: %w", w.Table.Name(), classify(err))
	}
	return expectOne(res, w)
}

func (s *session) Commit() error {
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", classify(err))
	}
	return nil
}

func (s *session) Rollback() error {
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", classify(err))
	}
	return nil
}

func expectOne(res sql.Result, w *plan.ResolvedWrite) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", w.Table.Name(), classify(err))
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", w.Table.Name(), w.ID, ports.ErrNotFound)
	}
	return nil
}

// classify tags driver errors with the ports error classes.
func classify(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %w", ports.ErrConstraint, err)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", ports.ErrHandleLost, err)
	}
	return err
}

func driverArgs(values []any) []any {
	args := make([]any, len(values))
	for i, v := range values {
		if id, ok := v.(coltype.RowID); ok {
			args[i] = int64(id)
			continue
		}
		args[i] = v
	}
	return args
}

// buildSelect renders q. Each reference hop becomes a LEFT JOIN so rows
// whose nullable reference is NULL are kept.
func buildSelect(q *plan.ResolvedSelect, count bool) (string, []any) {
	j := joiner{aliases: map[string]string{"": "t0"}}

	var cols []string
	if !count {
		cols = append(cols, "t0."+schema.KeyColumn)
		for _, p := range q.Columns {
			cols = append(cols, j.expr(p))
		}
	}

	where, args := j.where(q.Filters)

	var order []string
	if !count {
		for _, o := range q.OrderBy {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			order = append(order, j.expr(o.Path)+" "+dir)
		}
		order = append(order, "t0."+schema.KeyColumn+" ASC")
	}

	var b strings.Builder
	if count {
		b.WriteString("SELECT COUNT(*)")
	} else {
		b.WriteString("SELECT ")
		b.WriteString(strings.Join(cols, ", "))
	}
	fmt.Fprintf(&b, " FROM %s AS t0", quote(q.Table.Name()))
	for _, join := range j.joins {
		b.WriteString(join)
	}
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	if !count {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(order, ", "))
		switch {
		case q.Limit > 0:
			fmt.Fprintf(&b, " LIMIT %d OFFSET %d", q.Limit, q.Offset)
		case q.Offset > 0:
			fmt.Fprintf(&b, " LIMIT -1 OFFSET %d", q.Offset)
		}
	}
	return b.String(), args
}

// joiner assigns one alias per distinct hop prefix.
type joiner struct {
	aliases map[string]string
	joins   []string
}

// buildAggregate renders q as a single-value SELECT sharing the joins and
// filters of buildSelect.
func buildAggregate(q *plan.ResolvedAggregate) (string, []any) {
	j := joiner{aliases: map[string]string{"": "t0"}}

	call := "COUNT(*)"
	if p, ok := q.Path(); ok {
		expr := j.expr(p)
		switch q.Func {
		case plan.CountDistinct:
			call = "COUNT(DISTINCT " + expr + ")"
		default:
			call = q.Func.String() + "(" + expr + ")"
		}
	}
	where, args := j.where(q.Select.Filters)

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s AS t0", call, quote(q.Select.Table.Name()))
	for _, join := range j.joins {
		b.WriteString(join)
	}
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	return b.String(), args
}

// where renders filters as conditions to be joined with AND.
func (j *joiner) where(filters []plan.ResolvedFilter) ([]string, []any) {
	var where []string
	var args []any
	for _, f := range filters {
		expr := j.expr(f.Path)
		switch f.Op {
		case plan.IsNull:
			where = append(where, expr+" IS NULL")
		case plan.NotNull:
			where = append(where, expr+" IS NOT NULL")
		default:
			where = append(where, fmt.Sprintf("%s %s ?", expr, f.Op))
			args = append(args, driverArgs([]any{f.Value})[0])
		}
	}
	return where, args
}

func (j *joiner) expr(p plan.Path) string {
	prefix := ""
	alias := j.aliases[prefix]
	for _, hop := range p.Hops {
		next := prefix + "." + hop.Name()
		a, ok := j.aliases[next]
		if !ok {
			a = fmt.Sprintf("t%d", len(j.aliases))
			j.aliases[next] = a
			j.joins = append(j.joins, fmt.Sprintf(" LEFT JOIN %s AS %s ON %s.%s = %s.%s",
				quote(hop.Type().RefTable()), a, a, schema.KeyColumn, alias, quote(hop.Name())))
		}
		prefix, alias = next, a
	}
	if p.Key() {
		return alias + "." + schema.KeyColumn
	}
	return alias + "." + quote(p.Column.Name())
}
