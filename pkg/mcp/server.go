// Package mcp exposes bugfeat extraction and snapshot reconstruction as
// Model Context Protocol tools over stdio.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/bugfeat/pkg/bugzilla"
	"github.com/Sumatoshi-tech/bugfeat/pkg/features"
	"github.com/Sumatoshi-tech/bugfeat/pkg/models"
	"github.com/Sumatoshi-tech/bugfeat/pkg/observability"
	"github.com/Sumatoshi-tech/bugfeat/pkg/version"
)

const (
	serverName = "bugfeat"
	toolCount  = 3
)

// ServerDeps holds injectable dependencies. Zero-value fields use defaults.
type ServerDeps struct {
	Logger *slog.Logger

	// Metrics records one operation per tool call. Nil disables them.
	Metrics *observability.OperationMetrics

	// Extraction records extraction run statistics. Nil disables them.
	Extraction *observability.ExtractionMetrics

	// Tracer creates a span per tool call. Nil disables tracing.
	Tracer trace.Tracer

	Models  *models.Registry
	Catalog *features.Catalog

	// MaxRecordSize bounds one line of a bug dump. Zero uses the reader default.
	MaxRecordSize int
}

// Server wraps the MCP SDK server with the bugfeat tools.
type Server struct {
	inner *mcpsdk.Server
	mu    sync.RWMutex
	tools []string
	deps  ServerDeps
}

// NewServer creates a server with every bugfeat tool registered.
func NewServer(deps ServerDeps) *Server {
	opts := &mcpsdk.ServerOptions{}
	if deps.Logger != nil {
		opts.Logger = deps.Logger
	}

	if deps.Models == nil {
		deps.Models = models.Default(deps.Logger)
	}

	if deps.Catalog == nil {
		deps.Catalog = features.DefaultCatalog()
	}

	srv := &Server{
		inner: mcpsdk.NewServer(&mcpsdk.Implementation{Name: serverName, Version: version.Version}, opts),
		tools: make([]string, 0, toolCount),
		deps:  deps,
	}

	addTool[ExtractInput](srv, ToolNameExtract, extractToolDescription, srv.handleExtract)
	addTool[SnapshotInput](srv, ToolNameSnapshot, snapshotToolDescription, srv.handleSnapshot)
	addTool[ExtractorsInput](srv, ToolNameExtractors, extractorsToolDescription, srv.handleExtractors)

	return srv
}

// ListToolNames returns the sorted names of all registered tools.
func (s *Server) ListToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := slices.Clone(s.tools)
	slices.Sort(names)

	return names
}

// Run serves on stdio until ctx is canceled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithTransport(ctx, &mcpsdk.StdioTransport{})
}

// RunWithTransport serves on transport until ctx is canceled or the
// connection closes.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	err := s.inner.Run(ctx, transport)
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

func (s *Server) source(path string) bugzilla.Source {
	if s.deps.MaxRecordSize > 0 {
		return bugzilla.NewFileSource(path, bugzilla.WithMaxRecordSize(s.deps.MaxRecordSize))
	}

	return bugzilla.NewFileSource(path)
}

func addTool[Input any](s *Server, name, description string, handler mcpsdk.ToolHandlerFor[Input, ToolOutput]) {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{Name: name, Description: description},
		withMetrics(s.deps.Metrics, name, withTracing(s.deps.Tracer, name, handler)))

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools = append(s.tools, name)
}

const traceIDMetaKey = "trace_id"

// withTracing starts a span per call and appends trace_id to sampled results.
func withTracing[Input any](
	tracer trace.Tracer, toolName string, handler mcpsdk.ToolHandlerFor[Input, ToolOutput],
) mcpsdk.ToolHandlerFor[Input, ToolOutput] {
	if tracer == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		ctx, span := tracer.Start(ctx, observability.MCPTool(toolName).String(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("mcp.tool", toolName)),
		)
		defer span.End()

		result, output, err := handler(ctx, req, input)

		sc := span.SpanContext()
		if sc.IsSampled() && result != nil {
			result.Content = append(result.Content,
				&mcpsdk.TextContent{Text: fmt.Sprintf("%s=%s", traceIDMetaKey, sc.TraceID().String())})
		}

		return result, output, err
	}
}

// withMetrics records each call as an MCP operation. Error results count
// as failures.
func withMetrics[Input any](
	metrics *observability.OperationMetrics, toolName string, handler mcpsdk.ToolHandlerFor[Input, ToolOutput],
) mcpsdk.ToolHandlerFor[Input, ToolOutput] {
	if metrics == nil {
		return handler
	}

	op := observability.MCPTool(toolName)

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		end := metrics.Begin(ctx, op)

		result, output, err := handler(ctx, req, input)
		end(err != nil || (result != nil && result.IsError))

		return result, output, err
	}
}

const (
	extractToolDescription = "Extract feature rows from a Bugzilla bug dump (newline-delimited JSON, " +
		"optionally .lz4). Select a model or extractor ids, optionally roll bugs back to how they " +
		"were filed or to a given time."

	snapshotToolDescription = "Reconstruct one bug from a dump as it was at a point in time " +
		"by undoing its change history."

	extractorsToolDescription = "List the available feature extractors, text cleanups and models."
)
