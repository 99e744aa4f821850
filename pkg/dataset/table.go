package dataset

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Sumatoshi-tech/bugfeat/pkg/extraction"
)

// DefaultPreviewRows bounds the table preview.
const DefaultPreviewRows = 20

const (
	textPreviewWidth     = 48
	featuresPreviewWidth = 64
)

// WriteTable renders up to limit rows: text columns shortened, feature
// columns as sorted name=value lists. A limit below one renders every row.
func WriteTable(w io.Writer, frame *extraction.Frame, limit int) error {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Format.Header = text.FormatDefault
	tbl.Style().Format.Footer = text.FormatDefault

	header := table.Row{"#"}
	for _, column := range frame.Columns {
		header = append(header, column)
	}

	tbl.AppendHeader(header)

	rows := frame.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	for i, row := range rows {
		cells := table.Row{i}
		for _, column := range frame.Columns {
			cells = append(cells, previewCell(row[column]))
		}

		tbl.AppendRow(cells)
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("%d of %d rows", len(rows), frame.Len())})

	_, err := fmt.Fprintln(w, tbl.Render())
	if err != nil {
		return fmt.Errorf("write table: %w", err)
	}

	return nil
}

func previewCell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return text.Trim(strings.Join(strings.Fields(v), " "), textPreviewWidth)
	case extraction.Features:
		names := make([]string, 0, len(v))
		for name := range v {
			names = append(names, name)
		}

		slices.Sort(names)

		pairs := make([]string, len(names))
		for i, name := range names {
			pairs[i] = fmt.Sprintf("%s=%v", name, v[name])
		}

		return text.Trim(strings.Join(pairs, ", "), featuresPreviewWidth)
	default:
		return fmt.Sprintf("%v", v)
	}
}
