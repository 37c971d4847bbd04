package main

import (
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvwdc/internal/core"
	"github.com/JonMunkholm/csvwdc/internal/infer"
)

type inferOutput struct {
	Schema *core.TableSchema `json:"schema" yaml:"schema"`
	Total  int               `json:"total" yaml:"total"`
	Rows   []infer.Row       `json:"rows,omitempty" yaml:"rows,omitempty"`
}

func newInferCmd(a *app) *cobra.Command {
	var (
		rows       int
		schemaOnly bool
	)

	cmd := &cobra.Command{
		Use:   "infer <file|url>",
		Short: "Print the inferred schema and rows of a CSV",
		Example: `  csvwdc infer data.csv
  csvwdc infer https://example.com/export.csv --token $TOKEN --format yaml --rows 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.service().Load(cmd.Context(), a.source(args[0]))
			if err != nil {
				return err
			}

			out := inferOutput{Schema: core.SchemaOf(res), Total: len(res.Rows)}
			if !schemaOnly {
				out.Rows = res.Rows
				if rows >= 0 && rows < len(out.Rows) {
					out.Rows = out.Rows[:rows]
				}
			}
			return writeOutput(cmd.OutOrStdout(), a.format, out)
		},
	}

	cmd.Flags().IntVarP(&rows, "rows", "n", -1, "maximum rows to print (-1 for all)")
	cmd.Flags().BoolVar(&schemaOnly, "schema-only", false, "print only the schema")
	return cmd
}
