package commands

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/bugfeat/pkg/dataset"
)

func newRunsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "runs <store.db> [run-id]",
		Short: "Inspect runs stored in a SQLite dataset",
		Long: `List the extraction runs of a SQLite dataset, newest first, or print
the rows of one run as JSON Lines.

Examples:
  bugfeat runs rows.db
  bugfeat runs rows.db 0190c2a8-...`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			store, err := dataset.OpenStore(args[0])
			if err != nil {
				return err
			}

			defer func() {
				err = errors.Join(err, store.Close())
			}()

			if len(args) == 2 {
				rows, rowsErr := store.Rows(cmd.Context(), args[1])
				if rowsErr != nil {
					return rowsErr
				}

				return writeStoredRows(cmd.OutOrStdout(), rows)
			}

			runs, err := store.Runs(cmd.Context())
			if err != nil {
				return err
			}

			writeRuns(cmd.OutOrStdout(), runs, time.Now())

			return nil
		},
	}
}

func writeRuns(w io.Writer, runs []dataset.Run, now time.Time) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.Style().Format.Header = text.FormatDefault
	tw.Style().Format.Footer = text.FormatDefault
	tw.AppendHeader(table.Row{"Run", "Created", "Mode", "Model", "Rollback", "Rows", "Columns"})

	for _, run := range runs {
		tw.AppendRow(table.Row{
			run.ID,
			humanize.RelTime(run.CreatedAt, now, "ago", "from now"),
			run.Mode,
			run.Model,
			run.Rollback,
			humanize.Comma(int64(run.Rows)),
			strings.Join(run.Columns, ","),
		})
	}

	tw.Render()
}

func writeStoredRows(w io.Writer, rows []map[string]any) error {
	encoder := json.NewEncoder(w)

	for _, row := range rows {
		err := encoder.Encode(row)
		if err != nil {
			return err
		}
	}

	return nil
}
