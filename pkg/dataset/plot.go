package dataset

import (
	"cmp"
	"fmt"
	"io"
	"slices"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Sumatoshi-tech/bugfeat/pkg/extraction"
)

const (
	topFeaturesLimit = 40
	chartWidth       = "1200px"
	chartHeight      = "900px"
)

// FeatureCount is the number of rows carrying a feature.
type FeatureCount struct {
	Name string
	Rows int
}

// TopFeatures returns the limit most frequent features, most frequent first
// and ties by name.
func TopFeatures(frame *extraction.Frame, limit int) []FeatureCount {
	coverage := frame.Coverage()

	counts := make([]FeatureCount, 0, len(coverage))
	for name, rows := range coverage {
		counts = append(counts, FeatureCount{Name: name, Rows: rows})
	}

	slices.SortFunc(counts, func(a, b FeatureCount) int {
		return cmp.Or(cmp.Compare(b.Rows, a.Rows), cmp.Compare(a.Name, b.Name))
	})

	if limit > 0 && len(counts) > limit {
		counts = counts[:limit]
	}

	return counts
}

// WritePlot renders an HTML bar chart of feature coverage.
func WritePlot(w io.Writer, frame *extraction.Frame) error {
	top := TopFeatures(frame, topFeaturesLimit)
	slices.Reverse(top)

	labels := make([]string, len(top))
	data := make([]opts.BarData, len(top))

	for i, count := range top {
		labels[i] = count.Name
		data[i] = opts.BarData{Value: count.Rows}
	}

	subtitle := fmt.Sprintf("%d rows, %d features", frame.Len(), len(frame.Coverage()))
	if len(top) == 0 {
		subtitle = "No data"
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Feature coverage", Subtitle: subtitle, Left: "center"}),
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithGridOpts(opts.Grid{Left: "30%", Right: "5%", Top: "80"}),
	)
	bar.SetXAxis(labels).AddSeries("Rows", data)
	bar.XYReversal()

	err := bar.Render(w)
	if err != nil {
		return fmt.Errorf("render plot: %w", err)
	}

	return nil
}
