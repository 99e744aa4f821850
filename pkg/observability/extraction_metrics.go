package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricRowsTotal        = "bugfeat.extraction.rows.total"
	metricRollbacksTotal   = "bugfeat.extraction.rollbacks.total"
	metricRollbackDuration = "bugfeat.extraction.rollback.duration.seconds"
	metricRunErrorsTotal   = "bugfeat.extraction.errors.total"

	attrMode = "mode"
)

// rollbackBucketBoundaries covers 100µs to 10s; a single bug rollback is
// usually well under a millisecond.
var rollbackBucketBoundaries = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 10}

// ExtractionMetrics holds OTel instruments for extraction runs.
type ExtractionMetrics struct {
	rowsTotal        metric.Int64Counter
	rollbacksTotal   metric.Int64Counter
	rollbackDuration metric.Float64Histogram
	errorsTotal      metric.Int64Counter
}

// ExtractionStats summarizes one Transform call.
type ExtractionStats struct {
	// Mode is "single" or "pair".
	Mode              string
	Rows              int64
	RollbackDurations []time.Duration
	Failed            bool
}

// NewExtractionMetrics creates extraction metric instruments from the given meter.
func NewExtractionMetrics(mt metric.Meter) (*ExtractionMetrics, error) {
	rows, err := mt.Int64Counter(metricRowsTotal,
		metric.WithDescription("Total rows produced"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRowsTotal, err)
	}

	rollbacks, err := mt.Int64Counter(metricRollbacksTotal,
		metric.WithDescription("Total bug snapshots reconstructed"),
		metric.WithUnit("{bug}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRollbacksTotal, err)
	}

	rollbackDur, err := mt.Float64Histogram(metricRollbackDuration,
		metric.WithDescription("Per-bug rollback duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(rollbackBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRollbackDuration, err)
	}

	errs, err := mt.Int64Counter(metricRunErrorsTotal,
		metric.WithDescription("Total aborted extraction runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRunErrorsTotal, err)
	}

	return &ExtractionMetrics{
		rowsTotal:        rows,
		rollbacksTotal:   rollbacks,
		rollbackDuration: rollbackDur,
		errorsTotal:      errs,
	}, nil
}

// RecordRun records statistics for a finished extraction run.
// Safe to call on a nil receiver (no-op).
func (em *ExtractionMetrics) RecordRun(ctx context.Context, stats ExtractionStats) {
	if em == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrMode, stats.Mode))

	em.rowsTotal.Add(ctx, stats.Rows, attrs)
	em.rollbacksTotal.Add(ctx, int64(len(stats.RollbackDurations)), attrs)

	for _, d := range stats.RollbackDurations {
		em.rollbackDuration.Record(ctx, d.Seconds(), attrs)
	}

	if stats.Failed {
		em.errorsTotal.Add(ctx, 1, attrs)
	}
}
