package txn_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/artpar/scopedb/adapters/idgen"
	"github.com/artpar/scopedb/adapters/memory"
	"github.com/artpar/scopedb/adapters/metrics"
	"github.com/artpar/scopedb/core/plan"
	"github.com/artpar/scopedb/core/schema"
	"github.com/artpar/scopedb/core/txn"
	"github.com/artpar/scopedb/domain/coltype"
	"github.com/artpar/scopedb/ports"
)

type fixture struct {
	store  *memory.Store
	conn   *memory.Conn
	handle *txn.Handle
	schema *schema.Validated
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := schema.RegisterSchema(schema.NewBuilder().
		Table("artist",
			schema.Col("name", coltype.Text(), schema.Unique),
			schema.Col("country", coltype.NullableOf(coltype.Text())),
		).
		Table("album",
			schema.Col("title", coltype.Text()),
			schema.Col("artist", coltype.Ref("artist")),
			schema.Col("year", coltype.NullableOf(coltype.Int64())),
			schema.Col("rating", coltype.Float64()),
			schema.Col("cover", coltype.NullableOf(coltype.Blob())),
		).
		Descriptor())
	require.NoError(t, err)

	store := memory.NewStore(s)
	conn := store.Connect()
	h := txn.NewHandle(conn)
	t.Cleanup(func() { h.Close() })
	return &fixture{store: store, conn: conn, handle: h, schema: s}
}

func (f *fixture) open(t *testing.T, writable bool) *txn.Transaction {
	t.Helper()
	tx, err := txn.Open(context.Background(), f.handle, f.schema, txn.Options{
		Writable: writable,
		IDs:      idgen.NewSequential("tx"),
	})
	require.NoError(t, err)
	return tx
}

// seed commits two artists with one album each and returns the album ids.
func (f *fixture) seed(t *testing.T) (coltype.RowID, coltype.RowID) {
	t.Helper()
	ctx := context.Background()
	tx := f.open(t, true)

	nina, err := tx.Insert(ctx, plan.Insert{Table: "artist", Values: map[string]any{"name": "Nina", "country": "US"}})
	require.NoError(t, err)
	anon, err := tx.Insert(ctx, plan.Insert{Table: "artist", Values: map[string]any{"name": "Anon", "country": nil}})
	require.NoError(t, err)

	blues, err := tx.Insert(ctx, plan.Insert{Table: "album", Values: map[string]any{
		"title": "Pastel Blues", "artist": nina, "year": 1965, "rating": 4.5, "cover": []byte{0xde, 0xad},
	}})
	require.NoError(t, err)
	untitled, err := tx.Insert(ctx, plan.Insert{Table: "album", Values: map[string]any{
		"title": "Untitled", "artist": anon, "year": nil, "rating": 3, "cover": nil,
	}})
	require.NoError(t, err)

	require.NoError(t, tx.Commit())
	return blues, untitled
}

func requireViolation(t *testing.T, err error, reason error) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, txn.ErrScopeViolation)
	require.ErrorIs(t, err, reason)
	var sv *txn.ScopeViolation
	require.ErrorAs(t, err, &sv)
}

func TestForEach_DecodesDeclaredTypes(t *testing.T) {
	f := newFixture(t)
	blues, _ := f.seed(t)
	tx := f.open(t, false)
	defer tx.Close()

	var titles []string
	err := tx.ForEach(context.Background(), plan.Select{Table: "album", OrderBy: []plan.Order{{Column: "title"}}}, func(row *txn.Row) error {
		title, ok, err := row.Text("title")
		require.NoError(t, err)
		require.True(t, ok)
		titles = append(titles, title)

		id, err := row.ID()
		require.NoError(t, err)
		rowID, err := id.ID()
		require.NoError(t, err)

		if rowID != blues {
			year, ok, err := row.Int64("year")
			require.NoError(t, err)
			require.False(t, ok)
			require.Zero(t, year)
			return nil
		}

		year, ok, err := row.Int64("year")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, int64(1965), year)

		rating, _, err := row.Float64("rating")
		require.NoError(t, err)
		require.Equal(t, 4.5, rating)

		cover, ok, err := row.Bytes("cover")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte{0xde, 0xad}, cover)

		artist, ok, err := row.Ref("artist")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "artist", artist.Table())

		v, err := row.Get("title")
		require.NoError(t, err)
		require.Equal(t, "text", v.Type().String())
		got, err := v.Get()
		require.NoError(t, err)
		require.IsType(t, "", got)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Pastel Blues", "Untitled"}, titles)
}

func TestForEach_WrongAccessor(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	tx := f.open(t, false)
	defer tx.Close()

	err := tx.ForEach(context.Background(), plan.Select{Table: "album", Columns: []string{"title"}}, func(row *txn.Row) error {
		_, _, err := row.Int64("title")
		require.ErrorIs(t, err, txn.ErrColumnType)
		_, _, err = row.Text("year")
		require.ErrorIs(t, err, txn.ErrNoColumn)
		return nil
	})
	require.NoError(t, err)
}

func TestForEach_CallbackErrorStops(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	tx := f.open(t, false)
	defer tx.Close()

	stop := errors.New("stop")
	calls := 0
	err := tx.ForEach(context.Background(), plan.Select{Table: "album"}, func(*txn.Row) error {
		calls++
		return stop
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 1, calls)
	require.Equal(t, txn.StateOpen, tx.State())
}

func TestQueryOne_Record(t *testing.T) {
	f := newFixture(t)
	blues, _ := f.seed(t)
	tx := f.open(t, false)
	defer tx.Close()
	ctx := context.Background()

	rec, ok, err := tx.QueryOne(ctx, plan.Select{
		Table:   "album",
		Columns: []string{"title", "artist.name", "artist.country", "cover"},
	}.Where("title", plan.Eq, "Pastel Blues"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "album", rec.Table())
	require.Equal(t, blues, rec.ID())
	require.Equal(t, []string{"title", "artist.name", "artist.country", "cover"}, rec.Columns())

	name, _, err := rec.Text("artist.name")
	require.NoError(t, err)
	require.Equal(t, "Nina", name)

	id, ok, err := rec.RowID("id")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, blues, id)

	cover, _, err := rec.Bytes("cover")
	require.NoError(t, err)
	cover[0] = 0
	again, _, err := rec.Bytes("cover")
	require.NoError(t, err)
	require.Equal(t, byte(0xde), again[0])

	_, ok, err = tx.QueryOne(ctx, plan.Select{Table: "album"}.Where("title", plan.Eq, "Missing"))
	require.NoError(t, err)
	require.False(t, ok)

	// The record survives its transaction.
	require.NoError(t, tx.Close())
	title, _, err := rec.Text("title")
	require.NoError(t, err)
	require.Equal(t, "Pastel Blues", title)
}

func TestQuery_RowsIterator(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	tx := f.open(t, false)
	defer tx.Close()

	titles, err := txn.Query(context.Background(), tx, plan.Select{Table: "album"}, func(rows *txn.Rows) ([]string, error) {
		var out []string
		var prev *txn.Row
		for rows.Next() {
			if prev != nil {
				_, _, err := prev.Text("title")
				requireViolation(t, err, txn.ErrStaleRow)
			}
			title, _, err := rows.Row().Text("title")
			if err != nil {
				return nil, err
			}
			out = append(out, title)
			prev = rows.Row()
		}
		return out, rows.Err()
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Pastel Blues", "Untitled"}, titles)
}

func TestQuery_RejectsEscapingResults(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	tx := f.open(t, false)
	defer tx.Close()
	ctx := context.Background()
	sel := plan.Select{Table: "album"}

	_, err := txn.Query(ctx, tx, sel, func(rows *txn.Rows) (*txn.Row, error) {
		rows.Next()
		return rows.Row(), nil
	})
	requireViolation(t, err, txn.ErrEscaped)

	_, err = txn.Query(ctx, tx, sel, func(rows *txn.Rows) (*txn.Rows, error) {
		return rows, nil
	})
	requireViolation(t, err, txn.ErrEscaped)

	_, err = txn.Query(ctx, tx, sel, func(rows *txn.Rows) (map[string][]txn.Value, error) {
		out := map[string][]txn.Value{}
		for rows.Next() {
			v, err := rows.Row().Get("title")
			if err != nil {
				return nil, err
			}
			out["titles"] = append(out["titles"], v)
		}
		return out, nil
	})
	requireViolation(t, err, txn.ErrEscaped)

	type wrapped struct {
		Name string
		ref  txn.Ref
	}
	_, err = txn.Query(ctx, tx, sel, func(rows *txn.Rows) (wrapped, error) {
		rows.Next()
		r, _, err := rows.Row().Ref("artist")
		return wrapped{Name: "x", ref: r}, err
	})
	requireViolation(t, err, txn.ErrEscaped)

	recs, err := txn.Query(ctx, tx, sel, func(rows *txn.Rows) ([]txn.Record, error) {
		var out []txn.Record
		for rows.Next() {
			rec, err := rows.Row().Record()
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
		return out, nil
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, txn.StateOpen, tx.State())
}

func TestNestedOperationIsBorrowed(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	tx := f.open(t, true)
	defer tx.Close()
	ctx := context.Background()

	err := tx.ForEach(ctx, plan.Select{Table: "album"}, func(row *txn.Row) error {
		require.Equal(t, txn.StateQuerying, tx.State())

		_, _, err := tx.QueryOne(ctx, plan.Select{Table: "artist"})
		requireViolation(t, err, txn.ErrBorrowed)

		_, err = tx.Count(ctx, plan.Select{Table: "artist"})
		requireViolation(t, err, txn.ErrBorrowed)

		_, err = tx.Insert(ctx, plan.Insert{Table: "artist", Values: map[string]any{"name": "Nested"}})
		requireViolation(t, err, txn.ErrBorrowed)

		requireViolation(t, tx.Commit(), txn.ErrBorrowed)
		requireViolation(t, tx.Close(), txn.ErrBorrowed)

		// The row is still usable after the rejected calls.
		_, _, err = row.Text("title")
		require.NoError(t, err)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, txn.StateOpen, tx.State())

	n, err := tx.Count(ctx, plan.Select{Table: "artist"})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestStaleRowAfterCallback(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	tx := f.open(t, false)
	defer tx.Close()
	ctx := context.Background()

	var (
		kept  *txn.Row
		value txn.Value
		ref   txn.Ref
	)
	err := tx.ForEach(ctx, plan.Select{Table: "album"}.Where("title", plan.Eq, "Pastel Blues"), func(row *txn.Row) error {
		kept = row
		var err error
		value, err = row.Get("title")
		if err != nil {
			return err
		}
		ref, _, err = row.Ref("artist")
		return err
	})
	require.NoError(t, err)

	_, _, err = kept.Text("title")
	requireViolation(t, err, txn.ErrStaleRow)
	_, err = value.Get()
	requireViolation(t, err, txn.ErrStaleRow)
	_, err = ref.ID()
	requireViolation(t, err, txn.ErrStaleRow)
	_, err = kept.Record()
	requireViolation(t, err, txn.ErrStaleRow)

	// Binding a dead ref as a plan argument is rejected before execution.
	_, _, err = tx.QueryOne(ctx, plan.Select{Table: "artist"}.Where("id", plan.Eq, ref))
	requireViolation(t, err, txn.ErrStaleRow)
	require.Equal(t, txn.StateOpen, tx.State())
}

func TestForeignTransaction(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	other := txn.NewHandle(f.store.Connect())
	defer other.Close()
	ctx := context.Background()

	tx1 := f.open(t, false)
	defer tx1.Close()
	tx2, err := txn.Open(ctx, other, f.schema, txn.Options{})
	require.NoError(t, err)
	defer tx2.Close()

	err = tx1.ForEach(ctx, plan.Select{Table: "album"}, func(row *txn.Row) error {
		ref, _, err := row.Ref("artist")
		require.NoError(t, err)

		_, _, err = tx2.QueryOne(ctx, plan.Select{Table: "artist"}.Where("id", plan.Eq, ref))
		requireViolation(t, err, txn.ErrForeignTransaction)

		_, err = tx2.Count(ctx, plan.Select{Table: "album"}.Where("artist", plan.Eq, row))
		requireViolation(t, err, txn.ErrForeignTransaction)
		return nil
	})
	require.NoError(t, err)

	// Plain ids carry no scope and may cross transactions.
	rec, ok, err := tx1.QueryOne(ctx, plan.Select{Table: "album"})
	require.NoError(t, err)
	require.True(t, ok)
	n, err := tx2.Count(ctx, plan.Select{Table: "album"}.Where("id", plan.Eq, rec))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestClosedTransaction(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	tx := f.open(t, false)
	ctx := context.Background()

	var kept *txn.Row
	_, err := txn.Query(ctx, tx, plan.Select{Table: "album"}, func(rows *txn.Rows) (int, error) {
		rows.Next()
		kept = rows.Row()
		return rows.Len(), nil
	})
	require.NoError(t, err)

	require.NoError(t, tx.Close())
	require.Equal(t, txn.StateClosed, tx.State())
	require.NoError(t, tx.Close(), "close is idempotent")

	_, _, err = tx.QueryOne(ctx, plan.Select{Table: "album"})
	requireViolation(t, err, txn.ErrTransactionClosed)

	_, err = txn.Query(ctx, tx, plan.Select{Table: "album"}, func(*txn.Rows) (int, error) { return 0, nil })
	requireViolation(t, err, txn.ErrTransactionClosed)

	// Closed wins over read-only.
	_, err = tx.Insert(ctx, plan.Insert{Table: "artist", Values: map[string]any{"name": "Late"}})
	requireViolation(t, err, txn.ErrTransactionClosed)
	require.NotErrorIs(t, err, txn.ErrReadOnly)

	requireViolation(t, tx.Commit(), txn.ErrTransactionClosed)

	_, _, err = kept.Text("title")
	requireViolation(t, err, txn.ErrTransactionClosed)
}

func TestReadOnlyTransactionRejectsWrites(t *testing.T) {
	f := newFixture(t)
	blues, _ := f.seed(t)
	tx := f.open(t, false)
	defer tx.Close()
	ctx := context.Background()

	_, err := tx.Insert(ctx, plan.Insert{Table: "artist", Values: map[string]any{"name": "New"}})
	require.ErrorIs(t, err, txn.ErrReadOnly)
	err = tx.Update(ctx, plan.Update{Table: "album", ID: blues, Values: map[string]any{"rating": 5.0}})
	require.ErrorIs(t, err, txn.ErrReadOnly)
	err = tx.Delete(ctx, plan.Delete{Table: "album", ID: blues})
	require.ErrorIs(t, err, txn.ErrReadOnly)
	require.Equal(t, txn.StateOpen, tx.State())
}

func TestPlanErrorsLeaveTransactionOpen(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	tx := f.open(t, true)
	defer tx.Close()
	ctx := context.Background()

	_, _, err := tx.QueryOne(ctx, plan.Select{Table: "song"})
	require.ErrorIs(t, err, plan.ErrPlanType)
	require.ErrorIs(t, err, plan.ErrUnknownTable)

	_, err = tx.Insert(ctx, plan.Insert{Table: "artist", Values: map[string]any{"name": 42}})
	require.ErrorIs(t, err, plan.ErrPlanType)
	require.ErrorIs(t, err, plan.ErrTypeMismatch)

	require.Equal(t, txn.StateOpen, tx.State())
}

func TestWritesAndCommit(t *testing.T) {
	f := newFixture(t)
	blues, untitled := f.seed(t)
	ctx := context.Background()

	tx := f.open(t, true)
	require.NoError(t, tx.Update(ctx, plan.Update{Table: "album", ID: blues, Values: map[string]any{"rating": 5}}))
	require.NoError(t, tx.Delete(ctx, plan.Delete{Table: "album", ID: untitled}))

	_, err := tx.Insert(ctx, plan.Insert{Table: "artist", Values: map[string]any{"name": "Nina"}})
	require.ErrorIs(t, err, txn.ErrExecution)
	require.ErrorIs(t, err, ports.ErrConstraint)
	require.Equal(t, txn.StateOpen, tx.State())

	err = tx.Delete(ctx, plan.Delete{Table: "album", ID: untitled})
	require.ErrorIs(t, err, ports.ErrNotFound)
	require.NoError(t, tx.Commit())
	require.Equal(t, txn.StateClosed, tx.State())

	tx = f.open(t, true)
	rec, ok, err := tx.QueryOne(ctx, plan.Select{Table: "album"}.Where("id", plan.Eq, blues))
	require.NoError(t, err)
	require.True(t, ok)
	rating, _, err := rec.Float64("rating")
	require.NoError(t, err)
	require.Equal(t, 5.0, rating)

	_, err = tx.Insert(ctx, plan.Insert{Table: "artist", Values: map[string]any{"name": "Discarded"}})
	require.NoError(t, err)
	require.NoError(t, tx.Close())

	tx = f.open(t, false)
	defer tx.Close()
	n, err := tx.Count(ctx, plan.Select{Table: "artist"})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	n, err = tx.Count(ctx, plan.Select{Table: "album"})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestExecutionFailureKeepsTransactionOpen(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	tx := f.open(t, false)
	defer tx.Close()
	ctx := context.Background()

	boom := errors.New("boom")
	f.conn.FailNext(boom)
	_, _, err := tx.QueryOne(ctx, plan.Select{Table: "album"})
	require.ErrorIs(t, err, txn.ErrExecution)
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, txn.ErrScopeViolation)
	require.Equal(t, txn.StateOpen, tx.State())

	_, ok, err := tx.QueryOne(ctx, plan.Select{Table: "album"})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestHandleLossForcesClose(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	tx := f.open(t, false)
	ctx := context.Background()

	f.conn.Lose()
	_, _, err := tx.QueryOne(ctx, plan.Select{Table: "album"})
	require.ErrorIs(t, err, txn.ErrExecution)
	require.ErrorIs(t, err, ports.ErrHandleLost)
	require.Equal(t, txn.StateClosed, tx.State())
	require.Nil(t, f.handle.Active())

	_, _, err = tx.QueryOne(ctx, plan.Select{Table: "album"})
	requireViolation(t, err, txn.ErrTransactionClosed)

	// The handle was released: a new Open reaches the lost connection
	// instead of waiting.
	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, err = txn.Open(waitCtx, f.handle, f.schema, txn.Options{})
	require.ErrorIs(t, err, txn.ErrExecution)
	require.ErrorIs(t, err, ports.ErrHandleLost)
}

func TestHandle_SequentialHandOff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tx1 := f.open(t, false)
	require.Same(t, tx1, f.handle.Active())

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err := txn.Open(waitCtx, f.handle, f.schema, txn.Options{})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	opened := make(chan *txn.Transaction, 1)
	go func() {
		tx, err := txn.Open(ctx, f.handle, f.schema, txn.Options{})
		if err != nil {
			opened <- nil
			return
		}
		opened <- tx
	}()

	select {
	case <-opened:
		t.Fatal("second transaction opened while the first was live")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, tx1.Close())
	select {
	case tx2 := <-opened:
		require.NotNil(t, tx2)
		require.Equal(t, txn.StateOpen, tx2.State())
		require.NoError(t, tx2.Close())
	case <-time.After(time.Second):
		t.Fatal("second transaction never opened")
	}
}

func TestHandle_CloseForcesTransactionClosed(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	tx := f.open(t, false)
	ctx := context.Background()

	require.NoError(t, f.handle.Close())
	require.Equal(t, txn.StateClosed, tx.State())

	_, _, err := tx.QueryOne(ctx, plan.Select{Table: "album"})
	requireViolation(t, err, txn.ErrTransactionClosed)

	_, err = txn.Open(ctx, f.handle, f.schema, txn.Options{})
	require.ErrorIs(t, err, txn.ErrHandleClosed)
	require.NoError(t, f.handle.Close())
}

func TestOpen_RequiresSchema(t *testing.T) {
	f := newFixture(t)
	_, err := txn.Open(context.Background(), f.handle, nil, txn.Options{})
	require.ErrorIs(t, err, txn.ErrNoSchema)
}

func TestTransactionIDs(t *testing.T) {
	f := newFixture(t)
	tx := f.open(t, false)
	require.Equal(t, "tx1", tx.ID())
	require.False(t, tx.Writable())
	require.Same(t, f.schema, tx.Schema())
	require.NoError(t, tx.Close())
}

func TestMetricsRecorded(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	ctx := context.Background()

	tx, err := txn.Open(ctx, f.handle, f.schema, txn.Options{Metrics: m})
	require.NoError(t, err)
	_, err = tx.Count(ctx, plan.Select{Table: "album"})
	require.NoError(t, err)
	require.NoError(t, tx.Close())
	_, err = tx.Count(ctx, plan.Select{Table: "album"})
	requireViolation(t, err, txn.ErrTransactionClosed)

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[mf.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[mf.GetName()] += metric.GetGauge().GetValue()
			}
		}
	}
	require.Equal(t, 1.0, values["scopedb_transactions_total"])
	require.Equal(t, 0.0, values["scopedb_transactions_open"])
	require.Equal(t, 1.0, values["scopedb_queries_total"])
	require.Equal(t, 1.0, values["scopedb_scope_violations_total"])
}

func TestQueryOne_NotFoundRecord(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	tx := f.open(t, false)
	defer tx.Close()

	rec, ok, err := tx.QueryOne(context.Background(), plan.Select{Table: "album"}.Where("title", plan.Eq, "Missing"))
	require.NoError(t, err)
	require.False(t, ok)

	require.Equal(t, "", rec.Table())
	require.Equal(t, coltype.RowID(0), rec.ID())
	require.Empty(t, rec.Columns())
	require.Empty(t, rec.Values())
	require.False(t, rec.IsNull("title"))

	_, err = rec.Get("title")
	require.ErrorIs(t, err, txn.ErrNoColumn)
	_, _, err = rec.Text("title")
	require.ErrorIs(t, err, txn.ErrNoColumn)
	_, _, err = rec.Int64("year")
	require.ErrorIs(t, err, txn.ErrNoColumn)
	_, _, err = rec.Float64("rating")
	require.ErrorIs(t, err, txn.ErrNoColumn)
	_, _, err = rec.Bytes("cover")
	require.ErrorIs(t, err, txn.ErrNoColumn)
	_, _, err = rec.RowID("id")
	require.ErrorIs(t, err, txn.ErrNoColumn)

	var zero txn.Record
	_, err = zero.Get("id")
	require.ErrorIs(t, err, txn.ErrNoColumn)
}

func TestAggregate(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	tx := f.open(t, false)
	defer tx.Close()
	ctx := context.Background()

	tests := []struct {
		name string
		agg  plan.Aggregate
		want any
	}{
		{"count rows", plan.Aggregate{Table: "album", Func: plan.Count}, int64(2)},
		{"count skips null", plan.Aggregate{Table: "album", Func: plan.Count, Column: "year"}, int64(1)},
		{"count distinct through reference", plan.Aggregate{Table: "album", Func: plan.CountDistinct, Column: "artist.country"}, int64(1)},
		{"count distinct references", plan.Aggregate{Table: "album", Func: plan.CountDistinct, Column: "artist"}, int64(2)},
		{"sum float", plan.Aggregate{Table: "album", Func: plan.Sum, Column: "rating"}, 7.5},
		{"sum nullable int", plan.Aggregate{Table: "album", Func: plan.Sum, Column: "year"}, int64(1965)},
		{"avg", plan.Aggregate{Table: "album", Func: plan.Avg, Column: "rating"}, 3.75},
		{"avg int", plan.Aggregate{Table: "album", Func: plan.Avg, Column: "year"}, 1965.0},
		{"min text", plan.Aggregate{Table: "album", Func: plan.Min, Column: "title"}, "Pastel Blues"},
		{"max text through reference", plan.Aggregate{Table: "album", Func: plan.Max, Column: "artist.name"}, "Nina"},
		{"max nullable", plan.Aggregate{Table: "album", Func: plan.Max, Column: "year"}, int64(1965)},
		{"filtered", plan.Aggregate{Table: "album", Func: plan.Avg, Column: "rating"}.Where("artist.name", plan.Eq, "Nina"), 4.5},
		{"only nulls", plan.Aggregate{Table: "album", Func: plan.Sum, Column: "year"}.Where("title", plan.Eq, "Untitled"), nil},
		{"no rows", plan.Aggregate{Table: "album", Func: plan.Max, Column: "rating"}.Where("title", plan.Eq, "Missing"), nil},
		{"count no rows", plan.Aggregate{Table: "album", Func: plan.Count}.Where("title", plan.Eq, "Missing"), int64(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tx.Aggregate(ctx, tt.agg)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestAggregate_Errors(t *testing.T) {
	f := newFixture(t)
	blues, _ := f.seed(t)
	tx := f.open(t, false)
	defer tx.Close()
	ctx := context.Background()

	_, err := tx.Aggregate(ctx, plan.Aggregate{Table: "album", Func: plan.Sum, Column: "title"})
	require.ErrorIs(t, err, plan.ErrPlanType)
	require.ErrorIs(t, err, plan.ErrBadAggregate)
	require.Equal(t, txn.StateOpen, tx.State())

	err = tx.ForEach(ctx, plan.Select{Table: "album"}, func(row *txn.Row) error {
		_, err := tx.Aggregate(ctx, plan.Aggregate{Table: "album", Func: plan.Count})
		requireViolation(t, err, txn.ErrBorrowed)
		return nil
	})
	require.NoError(t, err)

	// A record filter binds to its id.
	rec, ok, err := tx.QueryOne(ctx, plan.Select{Table: "album"}.Where("id", plan.Eq, blues))
	require.NoError(t, err)
	require.True(t, ok)
	n, err := tx.Aggregate(ctx, plan.Aggregate{Table: "album", Func: plan.Count}.Where("id", plan.Eq, rec))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	require.NoError(t, tx.Close())
	_, err = tx.Aggregate(ctx, plan.Aggregate{Table: "album", Func: plan.Count})
	requireViolation(t, err, txn.ErrTransactionClosed)
}
