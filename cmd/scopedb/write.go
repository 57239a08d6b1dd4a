package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/artpar/scopedb/bootstrap"
	"github.com/artpar/scopedb/core/plan"
	"github.com/artpar/scopedb/core/txn"
	"github.com/artpar/scopedb/domain/coltype"
)

// assignFlags are the --set and --null flags of insert and update.
type assignFlags struct {
	set   []string
	nulls []string
}

func (f *assignFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.set, "set", "s", nil, "column=value to write; blobs are hex (repeatable)")
	cmd.Flags().StringArrayVar(&f.nulls, "null", nil, "column to set to NULL (repeatable)")
}

func (f *assignFlags) values(app *bootstrap.App, tableName string) (map[string]any, error) {
	t, ok := app.Schema.Table(tableName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", plan.ErrUnknownTable, tableName)
	}
	return buildValues(t, f.set, f.nulls)
}

func newInsertCmd(opts *globalOptions) *cobra.Command {
	var flags assignFlags

	cmd := &cobra.Command{
		Use:     "insert TABLE",
		Short:   "Insert a row and print its id",
		Example: `  scopedb insert album --set title=Blue --set artist=1 --null year`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.write(cmd, func(ctx context.Context, app *bootstrap.App, tx *txn.Transaction) error {
				values, err := flags.values(app, args[0])
				if err != nil {
					return err
				}
				id, err := tx.Insert(ctx, plan.Insert{Table: args[0], Values: values})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), int64(id))
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newUpdateCmd(opts *globalOptions) *cobra.Command {
	var flags assignFlags

	cmd := &cobra.Command{
		Use:     "update TABLE ID",
		Short:   "Change columns of one row",
		Example: `  scopedb update album 3 --set year=1971`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRowID(args[1])
			if err != nil {
				return err
			}
			return opts.write(cmd, func(ctx context.Context, app *bootstrap.App, tx *txn.Transaction) error {
				values, err := flags.values(app, args[0])
				if err != nil {
					return err
				}
				return tx.Update(ctx, plan.Update{Table: args[0], ID: id, Values: values})
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete TABLE ID",
		Short: "Delete one row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRowID(args[1])
			if err != nil {
				return err
			}
			return opts.write(cmd, func(ctx context.Context, app *bootstrap.App, tx *txn.Transaction) error {
				return tx.Delete(ctx, plan.Delete{Table: args[0], ID: id})
			})
		},
	}
}

// write runs fn in a writable transaction and commits it if fn succeeds.
func (o *globalOptions) write(cmd *cobra.Command, fn func(context.Context, *bootstrap.App, *txn.Transaction) error) error {
	app, err := o.openApp(cmd, false, false)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	err = func() error {
		tx, err := app.Begin(ctx, true)
		if err != nil {
			return err
		}
		defer tx.Close()
		if err := fn(ctx, app, tx); err != nil {
			return err
		}
		return tx.Commit()
	}()

	if ferr := o.finish(cmd, app); err == nil {
		err = ferr
	}
	return err
}

func parseRowID(s string) (coltype.RowID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("row id %q: %w", s, err)
	}
	return coltype.RowID(n), nil
}
