package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/scopedb/bootstrap"
	"github.com/artpar/scopedb/config"
)

// globalOptions holds the persistent flags.
type globalOptions struct {
	configPath string
	metrics    bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "scopedb",
		Short: "Typed, transaction-scoped access to a declared schema",
		Long: `scopedb checks query plans against a declared schema and runs them in
transactions that own their database handle.

Quick start:
  scopedb validate schema.yaml   # Check a schema declaration
  scopedb migrate                # Create the tables of the configured schema
  scopedb query album            # Print the rows of a table`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "config file path")
	root.PersistentFlags().BoolVar(&opts.metrics, "metrics", false, "print collected metrics after the command")

	root.AddCommand(
		newValidateCmd(opts),
		newMigrateCmd(opts),
		newInspectCmd(opts),
		newQueryCmd(opts),
		newInsertCmd(opts),
		newUpdateCmd(opts),
		newDeleteCmd(opts),
		newShellCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the config file, or the environment when the file does
// not exist.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	return config.LoadWithFallback(o.configPath)
}

// openApp wires an App for one command. Log output goes to the command's
// stderr.
func (o *globalOptions) openApp(cmd *cobra.Command, migrate, watch bool) (*bootstrap.App, error) {
	bo := bootstrap.Options{
		Migrate:   migrate,
		Watch:     watch,
		Metrics:   o.metrics,
		LogOutput: cmd.ErrOrStderr(),
	}
	if _, err := os.Stat(o.configPath); err == nil {
		bo.ConfigPath = o.configPath
	} else {
		cfg, err := o.loadConfig()
		if err != nil {
			return nil, err
		}
		bo.Config = cfg
	}
	return bootstrap.New(commandContext(cmd), bo)
}

// finish prints metrics when asked and closes app.
func (o *globalOptions) finish(cmd *cobra.Command, app *bootstrap.App) error {
	if o.metrics && app.Registry != nil {
		if err := writeMetrics(cmd.OutOrStdout(), app.Registry); err != nil {
			app.Close()
			return err
		}
	}
	return app.Close()
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
