package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/artpar/scopedb/bootstrap"
	"github.com/artpar/scopedb/core/schema"
)

func newInspectCmd(opts *globalOptions) *cobra.Command {
	var canonical bool

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the validated schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			s, err := bootstrap.LoadSchema(cfg.Schema.Paths)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if canonical {
				fmt.Fprint(w, s.String())
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(w)
			t.Style().Format.Header = text.FormatDefault
			t.AppendHeader(table.Row{"table", "column", "type", "flags"})
			for _, tbl := range s.Tables() {
				tableFlags := ""
				if tbl.Unreferenced() {
					tableFlags = "no_reference"
				}
				t.AppendRow(table.Row{tbl.Name(), schema.KeyColumn, "key", tableFlags})
				for _, c := range tbl.Columns() {
					t.AppendRow(table.Row{"", c.Name(), c.Type().String(), columnFlags(c)})
				}
				t.AppendSeparator()
			}
			t.Render()
			fmt.Fprintf(w, "\nFingerprint: %s\n", s.Fingerprint())
			return nil
		},
	}
	cmd.Flags().BoolVar(&canonical, "canonical", false, "print the canonical form the fingerprint is computed from")
	return cmd
}

func columnFlags(c *schema.Column) string {
	var flags []string
	if c.Unique() {
		flags = append(flags, "unique")
	}
	if c.Indexed() {
		flags = append(flags, "index")
	}
	if c.NoReference() {
		flags = append(flags, "no_reference")
	}
	return strings.Join(flags, ",")
}
