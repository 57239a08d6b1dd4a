// Package memory provides an in-memory execution adapter for testing and
// embedding. Each session works on a snapshot taken at Begin and publishes
// it on Commit.
package memory

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/artpar/scopedb/core/plan"
	"github.com/artpar/scopedb/core/schema"
	"github.com/artpar/scopedb/domain/coltype"
	"github.com/artpar/scopedb/ports"
)

// Store holds committed tables.
type Store struct {
	mu     sync.Mutex
	schema *schema.Validated
	tables map[string]*table
}

type table struct {
	next int64
	rows map[int64][]any
}

// NewStore creates an empty store for s.
func NewStore(s *schema.Validated) *Store {
	st := &Store{schema: s, tables: make(map[string]*table)}
	for _, t := range s.Tables() {
		st.tables[t.Name()] = &table{rows: make(map[int64][]any)}
	}
	return st
}

// Connect returns a new connection to the store.
func (st *Store) Connect() *Conn {
	return &Conn{store: st}
}

func (st *Store) snapshot() map[string]*table {
	st.mu.Lock()
	defer st.mu.Unlock()
	return cloneTables(st.tables)
}

func (st *Store) publish(tables map[string]*table) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.tables = cloneTables(tables)
}

func cloneTables(src map[string]*table) map[string]*table {
	out := make(map[string]*table, len(src))
	for name, t := range src {
		c := &table{next: t.next, rows: make(map[int64][]any, len(t.rows))}
		for id, row := range t.rows {
			c.rows[id] = cloneRow(row)
		}
		out[name] = c
	}
	return out
}

func cloneRow(row []any) []any {
	out := make([]any, len(row))
	for i, v := range row {
		if b, ok := v.([]byte); ok {
			v = bytes.Clone(b)
		}
		out[i] = v
	}
	return out
}

// Conn is a ports.Conn over a Store. Lose and FailNext inject failures.
type Conn struct {
	store *Store

	mu       sync.Mutex
	closed   bool
	lost     bool
	failNext error
}

// Begin starts a session on a snapshot of the committed tables.
func (c *Conn) Begin(ctx context.Context, writable bool) (ports.Session, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	return &session{conn: c, store: c.store, tables: c.store.snapshot(), writable: writable}, nil
}

// Close closes the connection. Further calls fail with ports.ErrHandleLost.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Lose makes every further call on the connection and its sessions fail
// with ports.ErrHandleLost.
func (c *Conn) Lose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lost = true
}

// FailNext makes the next call fail with err.
func (c *Conn) FailNext(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = err
}

func (c *Conn) check() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.lost:
		return fmt.Errorf("memory: connection lost: %w", ports.ErrHandleLost)
	case c.closed:
		return fmt.Errorf("memory: connection closed: %w", ports.ErrHandleLost)
	case c.failNext != nil:
		err := c.failNext
		c.failNext = nil
		return err
	}
	return nil
}

// Ensure interface compliance.
var _ ports.Conn = (*Conn)(nil)

// ErrSessionDone is returned by calls on a committed or rolled back session.
var ErrSessionDone = errors.New("memory: session already finished")

type session struct {
	conn     *Conn
	store    *Store
	tables   map[string]*table
	writable bool
	done     bool
}

func (s *session) check() error {
	if s.done {
		return ErrSessionDone
	}
	return s.conn.check()
}

func (s *session) Select(ctx context.Context, q *plan.ResolvedSelect) ([]ports.RawRow, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	ids := s.match(q)
	if len(q.OrderBy) > 0 {
		sort.SliceStable(ids, func(i, j int) bool {
			for _, o := range q.OrderBy {
				a := s.eval(q.Table, ids[i], o.Path)
				b := s.eval(q.Table, ids[j], o.Path)
				c := compareNullsFirst(a, b)
				if o.Desc {
					c = -c
				}
				if c != 0 {
					return c < 0
				}
			}
			return false
		})
	}

	if q.Offset > 0 {
		if q.Offset >= len(ids) {
			ids = nil
		} else {
			ids = ids[q.Offset:]
		}
	}
	if q.Limit > 0 && len(ids) > q.Limit {
		ids = ids[:q.Limit]
	}

	rows := make([]ports.RawRow, 0, len(ids))
	for _, id := range ids {
		values := make([]any, len(q.Columns))
		for i, p := range q.Columns {
			v := s.eval(q.Table, id, p)
			if b, ok := v.([]byte); ok {
				v = bytes.Clone(b)
			}
			values[i] = v
		}
		rows = append(rows, ports.RawRow{ID: id, Values: values})
	}
	return rows, nil
}

func (s *session) Count(ctx context.Context, q *plan.ResolvedSelect) (int64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return int64(len(s.match(q))), nil
}

func (s *session) Aggregate(ctx context.Context, q *plan.ResolvedAggregate) (any, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	ids := s.match(q.Select)
	path, ok := q.Path()
	if !ok {
		return int64(len(ids)), nil
	}

	var values []any
	for _, id := range ids {
		if v := s.eval(q.Select.Table, id, path); v != nil {
			values = append(values, v)
		}
	}
	return fold(q.Func, values)
}

// fold applies f to non-NULL storage values.
func fold(f plan.Func, values []any) (any, error) {
	switch f {
	case plan.Count:
		return int64(len(values)), nil
	case plan.CountDistinct:
		seen := make(map[any]struct{}, len(values))
		for _, v := range values {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			seen[v] = struct{}{}
		}
		return int64(len(seen)), nil
	}

	if len(values) == 0 {
		return nil, nil
	}
	switch f {
	case plan.Sum, plan.Avg:
		var isum int64
		var fsum float64
		float := f == plan.Avg
		for _, v := range values {
			switch x := v.(type) {
			case int64:
				isum += x
				fsum += float64(x)
			case float64:
				fsum += x
				float = true
			default:
				return nil, fmt.Errorf("memory: %s over %T", f, v)
			}
		}
		if f == plan.Avg {
			return fsum / float64(len(values)), nil
		}
		if float {
			return fsum, nil
		}
		return isum, nil
	case plan.Min, plan.Max:
		best := values[0]
		for _, v := range values[1:] {
			c, ok := compare(v, best)
			if !ok {
				return nil, fmt.Errorf("memory: %s over %T", f, v)
			}
			if (f == plan.Min && c < 0) || (f == plan.Max && c > 0) {
				best = v
			}
		}
		return best, nil
	}
	return nil, fmt.Errorf("memory: unknown aggregate %s", f)
}

func (s *session) Insert(ctx context.Context, w *plan.ResolvedWrite) (int64, error) {
	if err := s.checkWrite(); err != nil {
		return 0, err
	}

	t := s.tables[w.Table.Name()]
	row := make([]any, len(w.Table.Columns()))
	for i, c := range w.Columns {
		row[c.Position()] = storageValue(w.Values[i])
	}

	id := t.next + 1
	if err := s.checkConstraints(w.Table, id, row); err != nil {
		return 0, err
	}
	t.next = id
	t.rows[id] = row
	return id, nil
}

func (s *session) Update(ctx context.Context, w *plan.ResolvedWrite) error {
	if err := s.checkWrite(); err != nil {
		return err
	}

	t := s.tables[w.Table.Name()]
	old, ok := t.rows[int64(w.ID)]
	if !ok {
		return fmt.Errorf("%s %d: %w", w.Table.Name(), w.ID, ports.ErrNotFound)
	}
	row := cloneRow(old)
	for i, c := range w.Columns {
		row[c.Position()] = storageValue(w.Values[i])
	}
	if err := s.checkConstraints(w.Table, int64(w.ID), row); err != nil {
		return err
	}
	t.rows[int64(w.ID)] = row
	return nil
}

func (s *session) Delete(ctx context.Context, w *plan.ResolvedWrite) error {
	if err := s.checkWrite(); err != nil {
		return err
	}

	t := s.tables[w.Table.Name()]
	if _, ok := t.rows[int64(w.ID)]; !ok {
		return fmt.Errorf("%s %d: %w", w.Table.Name(), w.ID, ports.ErrNotFound)
	}

	for _, other := range s.store.schema.Tables() {
		for _, c := range other.Columns() {
			if c.Type().RefTable() != w.Table.Name() || c.NoReference() {
				continue
			}
			for rowID, row := range s.tables[other.Name()].rows {
				if other.Name() == w.Table.Name() && rowID == int64(w.ID) {
					continue
				}
				if row[c.Position()] == int64(w.ID) {
					return fmt.Errorf("%s %d referenced by %s: %w", w.Table.Name(), w.ID, c, ports.ErrConstraint)
				}
			}
		}
	}

	delete(t.rows, int64(w.ID))
	return nil
}

func (s *session) Commit() error {
	if err := s.check(); err != nil {
		return err
	}
	s.done = true
	if s.writable {
		s.store.publish(s.tables)
	}
	return nil
}

func (s *session) Rollback() error {
	s.done = true
	s.tables = nil
	return nil
}

func (s *session) checkWrite() error {
	if err := s.check(); err != nil {
		return err
	}
	if !s.writable {
		return errors.New("memory: write in read-only session")
	}
	return nil
}

// checkConstraints enforces unique columns and references for row id.
func (s *session) checkConstraints(t *schema.Table, id int64, row []any) error {
	rows := s.tables[t.Name()].rows
	for _, c := range t.Columns() {
		v := row[c.Position()]
		if v == nil {
			continue
		}
		if c.Unique() {
			for otherID, other := range rows {
				if otherID != id && equal(other[c.Position()], v) {
					return fmt.Errorf("unique %s: %w", c, ports.ErrConstraint)
				}
			}
		}
		if target := c.Type().RefTable(); target != "" && !c.NoReference() {
			if _, ok := s.tables[target].rows[v.(int64)]; !ok {
				return fmt.Errorf("reference %s = %d: %w", c, v, ports.ErrConstraint)
			}
		}
	}
	return nil
}

// match returns the ids of rows passing every filter, in id order.
func (s *session) match(q *plan.ResolvedSelect) []int64 {
	var ids []int64
	for id := range s.tables[q.Table.Name()].rows {
		if s.keep(q, id) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *session) keep(q *plan.ResolvedSelect, id int64) bool {
	for _, f := range q.Filters {
		v := s.eval(q.Table, id, f.Path)
		switch f.Op {
		case plan.IsNull:
			if v != nil {
				return false
			}
			continue
		case plan.NotNull:
			if v == nil {
				return false
			}
			continue
		}

		c, ok := compare(v, storageValue(f.Value))
		if !ok {
			return false
		}
		var pass bool
		switch f.Op {
		case plan.Eq:
			pass = c == 0
		case plan.Ne:
			pass = c != 0
		case plan.Lt:
			pass = c < 0
		case plan.Le:
			pass = c <= 0
		case plan.Gt:
			pass = c > 0
		case plan.Ge:
			pass = c >= 0
		}
		if !pass {
			return false
		}
	}
	return true
}

// eval walks p from row id of t. A NULL reference yields nil.
func (s *session) eval(t *schema.Table, id int64, p plan.Path) any {
	table := t.Name()
	for _, hop := range p.Hops {
		row, ok := s.tables[table].rows[id]
		if !ok {
			return nil
		}
		ref, ok := row[hop.Position()].(int64)
		if !ok {
			return nil
		}
		table, id = hop.Type().RefTable(), ref
	}
	row, ok := s.tables[table].rows[id]
	if !ok {
		return nil
	}
	if p.Key() {
		return id
	}
	return row[p.Column.Position()]
}

func storageValue(v any) any {
	if id, ok := v.(coltype.RowID); ok {
		return int64(id)
	}
	return v
}

func equal(a, b any) bool {
	c, ok := compare(a, b)
	return ok && c == 0
}

// compare orders two non-NULL storage values. ok is false when either is
// NULL or the types do not compare.
func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmp.Compare(x, y), true
		case float64:
			return cmp.Compare(float64(x), y), true
		}
	case float64:
		switch y := b.(type) {
		case float64:
			return cmp.Compare(x, y), true
		case int64:
			return cmp.Compare(x, float64(y)), true
		}
	case string:
		if y, ok := b.(string); ok {
			return cmp.Compare(x, y), true
		}
	case []byte:
		if y, ok := b.([]byte); ok {
			return bytes.Compare(x, y), true
		}
	}
	return 0, false
}

func compareNullsFirst(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	c, _ := compare(a, b)
	return c
}
