// Package cli implements the quern command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quern-db/quern/internal/config"
	"github.com/quern-db/quern/schema"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the root command for the quern CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "quern",
		Short:         "Constraint DDL and live-data validation",
		Long:          "Quern renders constraint DDL for the built-in shop schema and validates stored rows against the declared constraints.",
		SilenceUsage:  true, // runtime errors are not usage errors
		SilenceErrors: true, // main prints the returned error once
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", config.DefaultPath, "path to config file")

	cmd.AddCommand(NewDDLCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))

	return cmd
}

// selectTables resolves table name arguments against the registry. No
// arguments selects every table, ordered by name.
func selectTables(reg *schema.Registry, names []string) ([]*schema.Table, error) {
	if len(names) == 0 {
		return reg.Tables(), nil
	}
	out := make([]*schema.Table, 0, len(names))
	for _, name := range names {
		t := reg.Get(name)
		if t == nil {
			return nil, fmt.Errorf("unknown table %q", name)
		}
		out = append(out, t)
	}
	return out, nil
}
