package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quern-db/quern/ddl"
	"github.com/quern-db/quern/dialect"
	"github.com/quern-db/quern/internal/config"
)

// NewDDLCommand creates the ddl command.
func NewDDLCommand(rootOpts *RootOptions) *cobra.Command {
	var dialectName string

	cmd := &cobra.Command{
		Use:   "ddl [table...]",
		Short: "Print CREATE TABLE and constraint DDL",
		Long:  "Print CREATE TABLE statements, including check and unique constraints, for the built-in schema. Constraints the target dialect cannot express are reported as errors.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDDL(rootOpts, dialectName, args, cmd)
		},
	}

	cmd.Flags().StringVar(&dialectName, "dialect", "", "target dialect (default from config)")

	return cmd
}

func runDDL(opts *RootOptions, dialectName string, tables []string, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	if dialectName == "" {
		dialectName = cfg.Dialect
	}
	d, err := dialect.ByName(dialectName)
	if err != nil {
		return err
	}

	selected, err := selectTables(SampleRegistry(), tables)
	if err != nil {
		return err
	}

	ed := ddl.NewEditor(d)
	w := cmd.OutOrStdout()
	for i, t := range selected {
		stmts, err := ed.CreateTableSQL(t)
		if err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}
		if i > 0 {
			fmt.Fprintln(w)
		}
		for _, s := range stmts {
			fmt.Fprintf(w, "%s;\n", s)
		}
	}
	return nil
}
