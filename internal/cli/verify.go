package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/quern-db/quern/backends/mysql"
	"github.com/quern-db/quern/backends/postgres"
	"github.com/quern-db/quern/backends/sqlite"
	"github.com/quern-db/quern/backends/stdsql"
	"github.com/quern-db/quern/constraint"
	"github.com/quern-db/quern/dialect"
	"github.com/quern-db/quern/internal/config"
)

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	var dsn string

	cmd := &cobra.Command{
		Use:   "verify [table...]",
		Short: "Validate stored rows against the declared constraints",
		Long:  "Load every row of the selected tables and validate it against the table's check and unique constraints. Exits non-zero when any row violates a constraint.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, dsn, args, cmd)
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", "", "database DSN (default from config)")

	return cmd
}

type rowIssue struct {
	pk  any
	err *constraint.ValidationError
}

type tableReport struct {
	rows   int
	issues []rowIssue
}

func runVerify(opts *RootOptions, dsn string, tables []string, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	d, err := dialect.ByName(cfg.Dialect)
	if err != nil {
		return err
	}
	if dsn == "" {
		dsn = cfg.DSN
	}

	db, err := openDB(d, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	selected, err := selectTables(SampleRegistry(), tables)
	if err != nil {
		return err
	}

	conn := stdsql.NewConn(db, d)
	reports := make([]tableReport, len(selected))

	g, gctx := errgroup.WithContext(cmd.Context())
	for i, t := range selected {
		i, t := i, t
		g.Go(func() error {
			rows, err := stdsql.QueryRows(gctx, db, d, t)
			if err != nil {
				return err
			}
			rep := tableReport{rows: len(rows)}
			pk := t.PrimaryKey().Name
			for _, row := range rows {
				err := constraint.ValidateAll(gctx, conn, t, row, constraint.Persisted())
				if err == nil {
					continue
				}
				var ve *constraint.ValidationError
				if !errors.As(err, &ve) {
					return fmt.Errorf("validate %s: %w", t.DBTable, err)
				}
				rep.issues = append(rep.issues, rowIssue{pk: row[pk], err: ve})
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	total := 0
	for i, t := range selected {
		rep := reports[i]
		if len(rep.issues) == 0 {
			fmt.Fprintf(w, "%s: %d rows, ok\n", t.DBTable, rep.rows)
			continue
		}
		n := 0
		for _, issue := range rep.issues {
			for _, msgs := range issue.err.Errors {
				n += len(msgs)
			}
		}
		total += n
		fmt.Fprintf(w, "%s: %d rows, %d violations\n", t.DBTable, rep.rows, n)
		pk := t.PrimaryKey().Name
		for _, issue := range rep.issues {
			fields := make([]string, 0, len(issue.err.Errors))
			for f := range issue.err.Errors {
				fields = append(fields, f)
			}
			sort.Strings(fields)
			for _, f := range fields {
				for _, msg := range issue.err.Errors[f] {
					if f == constraint.NonFieldErrors {
						fmt.Fprintf(w, "  %s=%v: %s\n", pk, issue.pk, msg)
						continue
					}
					fmt.Fprintf(w, "  %s=%v: %s: %s\n", pk, issue.pk, f, msg)
				}
			}
		}
	}

	if total > 0 {
		return fmt.Errorf("%d constraint violation(s)", total)
	}
	return nil
}

func openDB(d *dialect.Dialect, dsn string) (*sql.DB, error) {
	switch d.Name {
	case "postgres":
		return postgres.OpenDB(dsn)
	case "sqlite":
		return sqlite.Open(dsn)
	case "mysql":
		return mysql.Open(dsn)
	}
	return nil, fmt.Errorf("no driver for dialect %q", d.Name)
}
