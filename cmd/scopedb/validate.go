package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/scopedb/bootstrap"
	"github.com/artpar/scopedb/core/schema"
)

func newValidateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [schema files or directories...]",
		Short: "Validate a schema declaration",
		Long: `Register a schema declaration and report every problem found.

Without arguments the schema paths of the config file are used.

Examples:
  scopedb validate schema.yaml
  scopedb validate schemas/
  scopedb validate --config /etc/scopedb/scopedb.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := args
			if len(paths) == 0 {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				paths = cfg.Schema.Paths
			}
			return runValidate(cmd, paths)
		},
	}
}

func runValidate(cmd *cobra.Command, paths []string) error {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Validating %d path(s)...\n\n", len(paths))

	s, err := bootstrap.LoadSchema(paths)
	if err != nil {
		var diags *schema.Diagnostics
		if !errors.As(err, &diags) {
			fmt.Fprintf(w, "  %s %v\n", crossMark, err)
			return fmt.Errorf("schema invalid")
		}
		for _, e := range diags.Errors {
			fmt.Fprintf(w, "  %s %v\n", crossMark, e)
		}
		return fmt.Errorf("schema invalid: %d problem(s)", len(diags.Errors))
	}

	for _, t := range s.Tables() {
		fmt.Fprintf(w, "  %s %s (%d columns)\n", checkMark, t.Name(), len(t.Columns()))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Schema is valid. Fingerprint %s\n", s.Fingerprint())
	return nil
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
