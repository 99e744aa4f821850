package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricOperationsTotal   = "bugfeat.operations.total"
	metricOperationDuration = "bugfeat.operation.duration.seconds"
	metricOperationFailures = "bugfeat.operation.failures.total"
	metricOperationsActive  = "bugfeat.operations.active"

	attrSurface   = "bugfeat.surface"
	attrOperation = "bugfeat.operation"
	attrOutcome   = "bugfeat.outcome"

	outcomeOK     = "ok"
	outcomeFailed = "failed"
)

// Surface is the entry point an operation arrived through.
type Surface string

// Surfaces bugfeat serves.
const (
	SurfaceCLI  Surface = "cli"
	SurfaceMCP  Surface = "mcp"
	SurfaceHTTP Surface = "http"
)

// Operation names one unit of user-visible work: a CLI command, an MCP
// tool call or an HTTP route.
type Operation struct {
	Surface Surface
	Name    string
}

// CLICommand is the operation for a bugfeat subcommand such as "extract".
func CLICommand(name string) Operation {
	return Operation{Surface: SurfaceCLI, Name: name}
}

// MCPTool is the operation for an MCP tool call such as "bugfeat_extract".
func MCPTool(name string) Operation {
	return Operation{Surface: SurfaceMCP, Name: name}
}

// HTTPRoute is the operation for a request to the metrics/health listener.
func HTTPRoute(method, path string) Operation {
	return Operation{Surface: SurfaceHTTP, Name: method + " " + path}
}

// String renders the operation as "surface.name".
func (op Operation) String() string {
	return string(op.Surface) + "." + op.Name
}

func (op Operation) attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(attrSurface, string(op.Surface)),
		attribute.String(attrOperation, op.Name),
	}
}

// operationBuckets covers 5ms to 300s: single-bug snapshots on the low end,
// full dump extractions on the high end.
var operationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300}

// OperationMetrics counts, times and tracks active bugfeat operations across
// the CLI, MCP and HTTP surfaces.
type OperationMetrics struct {
	total    metric.Int64Counter
	duration metric.Float64Histogram
	failures metric.Int64Counter
	active   metric.Int64UpDownCounter
}

// NewOperationMetrics creates the operation instruments on mt.
func NewOperationMetrics(mt metric.Meter) (*OperationMetrics, error) {
	total, err := mt.Int64Counter(metricOperationsTotal,
		metric.WithDescription("Completed bugfeat operations by surface, operation and outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricOperationsTotal, err)
	}

	duration, err := mt.Float64Histogram(metricOperationDuration,
		metric.WithDescription("Wall time of bugfeat operations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(operationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricOperationDuration, err)
	}

	failures, err := mt.Int64Counter(metricOperationFailures,
		metric.WithDescription("Failed bugfeat operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricOperationFailures, err)
	}

	active, err := mt.Int64UpDownCounter(metricOperationsActive,
		metric.WithDescription("Operations currently running"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricOperationsActive, err)
	}

	return &OperationMetrics{total: total, duration: duration, failures: failures, active: active}, nil
}

// Begin marks op as active and returns the function that completes it.
// Pass true to the returned function when the operation failed. Safe on a
// nil receiver.
func (m *OperationMetrics) Begin(ctx context.Context, op Operation) func(failed bool) {
	if m == nil {
		return func(bool) {}
	}

	start := time.Now()
	opAttrs := op.attributes()

	m.active.Add(ctx, 1, metric.WithAttributes(opAttrs...))

	return func(failed bool) {
		m.active.Add(ctx, -1, metric.WithAttributes(opAttrs...))

		outcome := outcomeOK
		if failed {
			outcome = outcomeFailed

			m.failures.Add(ctx, 1, metric.WithAttributes(opAttrs...))
		}

		done := metric.WithAttributes(append(opAttrs, attribute.String(attrOutcome, outcome))...)
		m.total.Add(ctx, 1, done)
		m.duration.Record(ctx, time.Since(start).Seconds(), done)
	}
}
