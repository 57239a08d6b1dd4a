package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the tables of the configured schema",
		Long: `Create the tables and indexes of the configured schema in a fresh
database and record the schema fingerprint.

A database that already holds the same schema is left untouched. A
database created for a different schema is rejected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.openApp(cmd, true, false)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s ready (%d tables, fingerprint %s)\n",
				checkMark, app.Config().Database.DSN, len(app.Schema.Tables()), app.Schema.Fingerprint())
			return opts.finish(cmd, app)
		},
	}
}
