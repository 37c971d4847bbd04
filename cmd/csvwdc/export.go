package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvwdc/internal/core"
	"github.com/JonMunkholm/csvwdc/internal/export"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		table       string
		replace     bool
		databaseURL string
	)

	cmd := &cobra.Command{
		Use:   "export <file|url>",
		Short: "Infer a CSV and copy it into a PostgreSQL table",
		Long: `Export creates the table from the inferred column types when it does not
exist and copies every row in one transaction. Without --table the name is
derived from the file name and EXPORT_TABLE_PREFIX.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL != "" {
				a.cfg.Database.URL = databaseURL
			}

			open := a.openSink
			if open == nil {
				open = connectSink
			}
			sink, closeSink, err := open(cmd.Context(), a, replace)
			if err != nil {
				return err
			}
			defer closeSink()

			progress := func(written int) {
				fmt.Fprintf(cmd.ErrOrStderr(), "Getting row: %d\n", written)
			}
			result, err := a.service(core.WithSink(sink)).Export(cmd.Context(), a.source(args[0]), table, progress)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), a.format, result)
		},
	}

	cmd.Flags().StringVarP(&table, "table", "t", "", "target table (default derived from the source name)")
	cmd.Flags().BoolVar(&replace, "replace", false, "truncate the table before copying")
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL URL (default DATABASE_URL)")
	return cmd
}

// connectSink opens a pool for the configured database.
func connectSink(ctx context.Context, a *app, replace bool) (core.Sink, func(), error) {
	if !a.cfg.Database.Enabled() {
		return nil, nil, core.ErrExportDisabled
	}

	pool, err := export.Connect(ctx, a.cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	a.logger.Info("connected to database", "name", export.DatabaseName(a.cfg.Database.URL))

	w := export.NewWriter(pool, a.cfg.Export, export.WithReplace(replace), export.WithLogger(a.logger))
	return w, pool.Close, nil
}
