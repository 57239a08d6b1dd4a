package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/artpar/scopedb/bootstrap"
	"github.com/artpar/scopedb/core/formatter"
	"github.com/artpar/scopedb/core/plan"
	"github.com/artpar/scopedb/core/schema"
	"github.com/artpar/scopedb/core/txn"
)

// selectFlags are the filter and shape flags shared by query and count.
type selectFlags struct {
	columns []string
	where   []string
	isNull  []string
	notNull []string
	order   []string
	limit   int
	offset  int
	output  string
}

func (f *selectFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.columns, "column", nil, "column to select; dotted paths follow references (repeatable)")
	cmd.Flags().StringArrayVarP(&f.where, "where", "w", nil, "filter as column<op>value with op one of = != < <= > >= (repeatable)")
	cmd.Flags().StringArrayVar(&f.isNull, "null", nil, "keep rows where column is NULL (repeatable)")
	cmd.Flags().StringArrayVar(&f.notNull, "not-null", nil, "keep rows where column is not NULL (repeatable)")
	cmd.Flags().StringArrayVar(&f.order, "order", nil, "sort column; prefix with - for descending (repeatable)")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "maximum rows (0 for no limit)")
	cmd.Flags().IntVar(&f.offset, "offset", 0, "rows to skip")
	cmd.Flags().StringVarP(&f.output, "output", "o", "table", "output format: "+strings.Join(formatter.List(), ", "))
}

// plan builds a Select for tableName from the flags.
func (f *selectFlags) plan(s *schema.Validated, tableName string) (plan.Select, error) {
	t, ok := s.Table(tableName)
	if !ok {
		return plan.Select{}, fmt.Errorf("%w: %s", plan.ErrUnknownTable, tableName)
	}
	sel := plan.Select{
		Table:   tableName,
		Columns: f.columns,
		Limit:   f.limit,
		Offset:  f.offset,
	}
	for _, o := range f.order {
		col, desc := strings.CutPrefix(o, "-")
		sel.OrderBy = append(sel.OrderBy, plan.Order{Column: col, Desc: desc})
	}
	return buildFilters(s, t, sel, f.where, f.isNull, f.notNull)
}

func newQueryCmd(opts *globalOptions) *cobra.Command {
	var (
		flags     selectFlags
		count     bool
		aggregate string
	)

	cmd := &cobra.Command{
		Use:   "query TABLE",
		Short: "Print the rows of a table",
		Example: `  scopedb query album --column title --column artist.name
  scopedb query album -w "year>=1970" --order -year --limit 10
  scopedb query artist --null country --count
  scopedb query album --aggregate avg:year -w "artist.name=Nina"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.openApp(cmd, false, false)
			if err != nil {
				return err
			}
			if aggregate != "" {
				err = runAggregate(commandContext(cmd), cmd.OutOrStdout(), app, args[0], &flags, aggregate)
			} else {
				err = runSelect(commandContext(cmd), cmd.OutOrStdout(), app, args[0], &flags, count)
			}
			if ferr := opts.finish(cmd, app); err == nil {
				err = ferr
			}
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&count, "count", false, "print the number of matching rows only")
	cmd.Flags().StringVar(&aggregate, "aggregate", "", "print one value as func[:column], func one of count, count_distinct, sum, avg, min, max")
	cmd.MarkFlagsMutuallyExclusive("count", "aggregate")
	return cmd
}

// runSelect runs one read-only query and renders the result to w.
func runSelect(ctx context.Context, w io.Writer, app *bootstrap.App, tableName string, flags *selectFlags, count bool) error {
	f, err := formatter.Lookup(flags.output)
	if err != nil {
		return err
	}
	sel, err := flags.plan(app.Schema, tableName)
	if err != nil {
		return err
	}

	tx, err := app.Begin(ctx, false)
	if err != nil {
		return err
	}
	defer tx.Close()

	if count {
		n, err := tx.Count(ctx, sel)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, n)
		return nil
	}

	records, err := txn.Query(ctx, tx, sel, collectRecords)
	if err != nil {
		return err
	}
	return f.Format(w, formatter.Result{
		Table:   tableName,
		Columns: headerColumns(app.Schema, sel),
		Records: records,
	}, formatter.Options{})
}

// runAggregate folds the rows matching flags with spec, written as
// func[:column], and prints the value.
func runAggregate(ctx context.Context, w io.Writer, app *bootstrap.App, tableName string, flags *selectFlags, spec string) error {
	name, column, _ := strings.Cut(spec, ":")
	fn, err := plan.ParseFunc(name)
	if err != nil {
		return err
	}
	sel, err := flags.plan(app.Schema, tableName)
	if err != nil {
		return err
	}

	tx, err := app.Begin(ctx, false)
	if err != nil {
		return err
	}
	defer tx.Close()

	v, err := tx.Aggregate(ctx, plan.Aggregate{Table: tableName, Func: fn, Column: column, Filters: sel.Filters})
	if err != nil {
		return err
	}
	if v == nil {
		v = formatter.NullText
	}
	fmt.Fprintln(w, formatter.Display(v))
	return nil
}

func collectRecords(rows *txn.Rows) ([]txn.Record, error) {
	out := make([]txn.Record, 0, rows.Len())
	for rows.Next() {
		rec, err := rows.Row().Record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func headerColumns(s *schema.Validated, sel plan.Select) []string {
	if len(sel.Columns) > 0 {
		return sel.Columns
	}
	t, _ := s.Table(sel.Table)
	var cols []string
	for _, c := range t.Columns() {
		cols = append(cols, c.Name())
	}
	return cols
}
