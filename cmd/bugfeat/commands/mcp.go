package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/bugfeat/pkg/features"
	"github.com/Sumatoshi-tech/bugfeat/pkg/mcp"
	"github.com/Sumatoshi-tech/bugfeat/pkg/models"
	"github.com/Sumatoshi-tech/bugfeat/pkg/observability"
)

func newMCPCommand(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the extraction tools over MCP",
		Long: `Start a Model Context Protocol server on stdio.

Tools:
  - bugfeat_extract: extract feature rows from a bug dump
  - bugfeat_snapshot: reconstruct a bug at an earlier time
  - bugfeat_extractors: list extractors, cleanups and models

Logs are written to stderr as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := startSession(global, observability.ModeMCP)
			if err != nil {
				return err
			}
			defer s.close()

			extractionMetrics, err := observability.NewExtractionMetrics(s.providers.Meter)
			if err != nil {
				return err
			}

			size, err := s.cfg.MaxRecordSize()
			if err != nil {
				return err
			}

			srv := mcp.NewServer(mcp.ServerDeps{
				Logger:        s.logger(),
				Metrics:       s.ops,
				Extraction:    extractionMetrics,
				Tracer:        s.providers.Tracer,
				Models:        models.Default(s.logger()),
				Catalog:       features.DefaultCatalog(),
				MaxRecordSize: size,
			})

			return srv.Run(cmd.Context())
		},
	}
}
