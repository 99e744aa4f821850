// Package commands implements the bugfeat CLI commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/bugfeat/pkg/config"
	"github.com/Sumatoshi-tech/bugfeat/pkg/observability"
	"github.com/Sumatoshi-tech/bugfeat/pkg/version"
)

const metricsReadHeaderTimeout = 5 * time.Second

// globalFlags are the persistent root flags.
type globalFlags struct {
	configPath string
	verbose    bool
	quiet      bool
}

// NewRootCommand builds the bugfeat command tree.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "bugfeat",
		Short: "Bugzilla feature extraction and snapshot rollback",
		Long: `bugfeat turns Bugzilla bug dumps into feature rows for classifier training.

Commands:
  extract     Extract feature rows from a bug dump
  snapshot    Show a bug as it was at an earlier time
  validate    Check a bug dump against the bug schema
  labels      Derive training labels for a model
  extractors  List extractors, cleanups and models
  runs        Inspect runs stored in a SQLite dataset
  mcp         Serve the extraction tools over MCP`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default .bugfeat.yaml in . or $HOME)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVarP(&flags.quiet, "quiet", "q", false, "only log errors")

	root.AddCommand(
		newExtractCommand(flags),
		newSnapshotCommand(flags),
		newValidateCommand(flags),
		newLabelsCommand(flags),
		newExtractorsCommand(),
		newRunsCommand(),
		newMCPCommand(flags),
		newVersionCommand(),
	)

	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get())
		},
	}
}

// session is the per-command runtime: loaded config and telemetry.
type session struct {
	cfg       *config.Config
	providers observability.Providers
	ops       *observability.OperationMetrics
	stop      func()
}

func (s *session) logger() *slog.Logger {
	return s.providers.Logger
}

// startSession loads the config and initializes telemetry. The returned
// session must be closed.
func startSession(flags *globalFlags, mode observability.AppMode) (*session, error) {
	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Mode = mode
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.Prometheus = cfg.Telemetry.MetricsAddr != ""
	obsCfg.LogLevel = observability.ParseLevel(cfg.Logging.Level)
	obsCfg.LogJSON = cfg.Logging.JSON || mode == observability.ModeMCP

	switch {
	case flags.verbose:
		obsCfg.LogLevel = slog.LevelDebug
	case flags.quiet:
		obsCfg.LogLevel = slog.LevelError
	}

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	ops, err := observability.NewOperationMetrics(providers.Meter)
	if err != nil {
		return nil, errors.Join(err, providers.Shutdown(context.Background()))
	}

	s := &session{cfg: cfg, providers: providers, ops: ops, stop: func() {}}

	if providers.MetricsHandler != nil {
		s.stop, err = serveMetrics(cfg.Telemetry.MetricsAddr, s)
		if err != nil {
			return nil, errors.Join(err, providers.Shutdown(context.Background()))
		}
	}

	return s, nil
}

// track records run as the CLI operation for command.
func (s *session) track(ctx context.Context, command string, run func() error) error {
	end := s.ops.Begin(ctx, observability.CLICommand(command))

	err := run()
	end(err != nil)

	return err
}

func (s *session) close() {
	s.stop()

	err := s.providers.Shutdown(context.Background())
	if err != nil {
		s.logger().Warn("observability shutdown failed", "error", err)
	}
}

func serveMetrics(addr string, s *session) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.HTTPMiddleware(s.providers.Tracer, s.ops, s.providers.MetricsHandler))

	server := &http.Server{Handler: mux, ReadHeaderTimeout: metricsReadHeaderTimeout}

	go func() {
		serveErr := server.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger().Error("metrics server failed", "error", serveErr)
		}
	}()

	s.logger().Info("serving metrics", "addr", listener.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsReadHeaderTimeout)
		defer cancel()

		_ = server.Shutdown(ctx)
	}, nil
}
