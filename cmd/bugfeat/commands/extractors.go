package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/bugfeat/pkg/cleanup"
	"github.com/Sumatoshi-tech/bugfeat/pkg/features"
	"github.com/Sumatoshi-tech/bugfeat/pkg/models"
)

func newExtractorsCommand() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "extractors",
		Short: "List extractors, cleanups and models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeCatalog(cmd.OutOrStdout(), features.DefaultCatalog(), features.Kind(kind))
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "only list single or pair extractors")

	return cmd
}

func writeCatalog(w io.Writer, catalog *features.Catalog, kind features.Kind) error {
	if kind != "" && kind != features.KindSingle && kind != features.KindPair {
		return fmt.Errorf("%w: %q", features.ErrInvalidKind, kind)
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.Style().Format.Header = text.FormatDefault
	tw.Style().Format.Footer = text.FormatDefault
	tw.AppendHeader(table.Row{"ID", "Feature", "Kind"})

	listed := 0

	for _, descriptor := range catalog.Descriptors() {
		if kind != "" && descriptor.Kind != kind {
			continue
		}

		tw.AppendRow(table.Row{descriptor.ID, descriptor.Name, descriptor.Kind})

		listed++
	}

	tw.AppendFooter(table.Row{"", fmt.Sprintf("%d extractors", listed), ""})
	tw.Render()

	fmt.Fprintf(w, "\nCleanups: %s\n", strings.Join(cleanup.IDs(), ", "))
	fmt.Fprintf(w, "Models:   %s\n", strings.Join(models.Default(nil).Names(), ", "))

	return nil
}
