package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/bugfeat/internal/ndjson"
	"github.com/Sumatoshi-tech/bugfeat/pkg/models"
	"github.com/Sumatoshi-tech/bugfeat/pkg/models/accessibility"
	"github.com/Sumatoshi-tech/bugfeat/pkg/observability"
)

// label is one line of a labels file.
type label struct {
	ID    int `json:"id"`
	Class int `json:"class"`
}

func newLabelsCommand(global *globalFlags) *cobra.Command {
	var (
		bugs   string
		model  string
		output string
	)

	cmd := &cobra.Command{
		Use:   "labels",
		Short: "Derive training labels for a model",
		Long: `Label the bugs of a dump for a model and print the class counts.

Examples:
  bugfeat labels --model accessibility --bugs bugs.json.lz4 -o labels.jsonl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := startSession(global, observability.ModeCLI)
			if err != nil {
				return err
			}
			defer s.close()

			if cmd.Flags().Changed("bugs") {
				s.cfg.Sources.Bugs = bugs
			}

			return s.track(cmd.Context(), "labels", func() error {
				selected, lookupErr := models.Default(s.logger()).Lookup(model)
				if lookupErr != nil {
					return lookupErr
				}

				src, srcErr := bugSource(s.cfg)
				if srcErr != nil {
					return srcErr
				}

				classes, labelErr := selected.Labels(cmd.Context(), src)
				if labelErr != nil {
					return labelErr
				}

				if output != "" {
					writeErr := writeLabels(output, classes)
					if writeErr != nil {
						return writeErr
					}
				}

				return writeClassCounts(cmd.OutOrStdout(), classes)
			})
		},
	}

	cmd.Flags().StringVar(&bugs, "bugs", "", "bug dump (default: sources.bugs)")
	cmd.Flags().StringVarP(&model, "model", "m", accessibility.Name, "model to label for")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write labels as JSON Lines (.lz4 compresses)")

	return cmd
}

func writeLabels(path string, classes map[int]int) (err error) {
	out, err := ndjson.Create(path)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, out.Close())
	}()

	encoder := json.NewEncoder(out)

	for _, id := range slices.Sorted(maps.Keys(classes)) {
		err = encoder.Encode(label{ID: id, Class: classes[id]})
		if err != nil {
			return fmt.Errorf("write labels: %w", err)
		}
	}

	return nil
}

func writeClassCounts(w io.Writer, classes map[int]int) error {
	counts := make(map[int]int)
	for _, class := range classes {
		counts[class]++
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.Style().Format.Header = text.FormatDefault
	tw.Style().Format.Footer = text.FormatDefault
	tw.AppendHeader(table.Row{"Class", "Bugs"})

	for _, class := range slices.Sorted(maps.Keys(counts)) {
		tw.AppendRow(table.Row{class, counts[class]})
	}

	tw.AppendFooter(table.Row{"Total", len(classes)})
	tw.Render()

	return nil
}
