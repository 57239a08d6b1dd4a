package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/artpar/scopedb/bootstrap"
	"github.com/artpar/scopedb/core/formatter"
)

const shellHelp = `Commands:
  tables                      list declared tables
  query TABLE [COND...]       print rows; COND is column<op>value
  count TABLE [COND...]       print the number of matching rows
  help                        show this text
  quit                        leave the shell
A condition value of NULL with = or != tests for NULL.`

func newShellCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run read-only queries interactively",
		Long: `Opens the configured database and reads commands from stdin. The config
file is watched while the shell runs; log level and open timeout changes
apply without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.openApp(cmd, false, true)
			if err != nil {
				return err
			}
			err = runShell(commandContext(cmd), cmd.InOrStdin(), cmd.OutOrStdout(), app)
			if ferr := opts.finish(cmd, app); err == nil {
				err = ferr
			}
			return err
		},
	}
}

func runShell(ctx context.Context, in io.Reader, out io.Writer, app *bootstrap.App) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "scopedb> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}

		switch cmd := fields[0]; cmd {
		case "quit", "exit":
			return nil
		case "help":
			fmt.Fprintln(out, shellHelp)
		case "tables":
			for _, t := range app.Schema.Tables() {
				fmt.Fprintln(out, t.Name())
			}
		case "query", "count":
			if len(fields) < 2 {
				fmt.Fprintf(out, "usage: %s TABLE [COND...]\n", cmd)
				continue
			}
			flags := shellFilters(fields[2:])
			if err := runSelect(ctx, out, app, fields[1], &flags, cmd == "count"); err != nil {
				fmt.Fprintf(out, "%s %s\n", crossMark, err)
			}
		default:
			fmt.Fprintf(out, "unknown command %q; try help\n", cmd)
		}
	}
}

// shellFilters maps shell conditions to select flags. "col=NULL" and
// "col!=NULL" become null tests.
func shellFilters(conds []string) selectFlags {
	var f selectFlags
	for _, c := range conds {
		if col, ok := strings.CutSuffix(c, "!="+formatter.NullText); ok {
			f.notNull = append(f.notNull, col)
			continue
		}
		if col, ok := strings.CutSuffix(c, "="+formatter.NullText); ok {
			f.isNull = append(f.isNull, col)
			continue
		}
		f.where = append(f.where, c)
	}
	return f
}
