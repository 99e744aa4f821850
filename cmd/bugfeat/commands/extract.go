package commands

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Sumatoshi-tech/bugfeat/pkg/bugzilla"
	"github.com/Sumatoshi-tech/bugfeat/pkg/commits"
	"github.com/Sumatoshi-tech/bugfeat/pkg/config"
	"github.com/Sumatoshi-tech/bugfeat/pkg/dataset"
	"github.com/Sumatoshi-tech/bugfeat/pkg/extraction"
	"github.com/Sumatoshi-tech/bugfeat/pkg/features"
	"github.com/Sumatoshi-tech/bugfeat/pkg/models"
	"github.com/Sumatoshi-tech/bugfeat/pkg/observability"
	"github.com/Sumatoshi-tech/bugfeat/pkg/releases"
)

// ErrInvalidPair is returned for --pair values other than "ID:ID".
var ErrInvalidPair = errors.New("pair must be two bug ids joined by ':'")

// extractFlags mirror the extraction, sources and output config sections.
type extractFlags struct {
	bugs          string
	commits       string
	gitRepo       string
	releases      string
	maxRecordSize string

	model        string
	extractors   []string
	cleanups     []string
	rollback     bool
	rollbackWhen string
	workers      int
	mergeData    bool
	trimActivity bool
	commitData   bool
	pairs        []string

	format   string
	output   string
	compress bool
}

func newExtractCommand(global *globalFlags) *cobra.Command {
	flags := &extractFlags{}

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract feature rows from a bug dump",
		Long: `Extract feature rows from a newline-delimited JSON bug dump.

Bugs are processed one per row. With --pair, rows are built for the listed
couples of bugs instead.

Examples:
  bugfeat extract --bugs bugs.json.lz4 --model accessibility -o rows.jsonl
  bugfeat extract --extractors product,keywords --rollback --format table
  bugfeat extract --pair 1234:5678 --extractors is-same-product --no-merge-data`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := startSession(global, observability.ModeCLI)
			if err != nil {
				return err
			}
			defer s.close()

			err = flags.apply(cmd.Flags(), s.cfg)
			if err != nil {
				return err
			}

			return s.track(cmd.Context(), "extract", func() error {
				return runExtract(cmd, s, flags.pairs)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.bugs, "bugs", config.DefaultSourcesBugs, "bug dump (.json or .json.lz4)")
	f.StringVar(&flags.commits, "commits", "", "commit dump used for commit data")
	f.StringVar(&flags.gitRepo, "git-repo", "", "git repository read for commit data")
	f.StringVar(&flags.releases, "releases", "", "release calendar (YAML)")
	f.StringVar(&flags.maxRecordSize, "max-record-size", config.DefaultSourcesMaxRecordSize, "largest dump line accepted")
	f.StringVarP(&flags.model, "model", "m", "", "model configuration to extract for")
	f.StringSliceVarP(&flags.extractors, "extractors", "e", nil, "extractor ids (default: model set or all)")
	f.StringSliceVar(&flags.cleanups, "cleanups", nil, "text cleanup ids")
	f.BoolVar(&flags.rollback, "rollback", config.DefaultExtractionRollback, "roll bugs back before extraction")
	f.StringVar(&flags.rollbackWhen, "rollback-when", "", "rollback target (default: bug creation)")
	f.IntVarP(&flags.workers, "workers", "w", config.DefaultExtractionWorkers, "rollback workers (0 = GOMAXPROCS)")
	f.BoolVar(&flags.mergeData, "merge-data", config.DefaultExtractionMergeData, "merge pair text into one column")
	f.BoolVar(&flags.trimActivity, "trim-activity", config.DefaultExtractionTrimActivity,
		"drop comments and attachments newer than the rollback target")
	f.BoolVar(&flags.commitData, "commit-data", config.DefaultExtractionCommitData, "attach commit data")
	f.StringArrayVar(&flags.pairs, "pair", nil, "bug pair ID:ID (repeatable)")
	f.StringVarP(&flags.format, "format", "f", config.DefaultOutputFormat,
		"output format: jsonl, yaml, table, plot, sqlite")
	f.StringVarP(&flags.output, "output", "o", "", "output path (default: stdout)")
	f.BoolVar(&flags.compress, "compress", config.DefaultOutputCompress, "LZ4-compress JSON Lines output")

	return cmd
}

// apply overrides cfg with the flags set on the command line.
func (f *extractFlags) apply(set *pflag.FlagSet, cfg *config.Config) error {
	overrides := []struct {
		flag  string
		apply func()
	}{
		{"bugs", func() { cfg.Sources.Bugs = f.bugs }},
		{"commits", func() { cfg.Sources.Commits = f.commits }},
		{"git-repo", func() { cfg.Sources.GitRepo = f.gitRepo }},
		{"releases", func() { cfg.Sources.Releases = f.releases }},
		{"max-record-size", func() { cfg.Sources.MaxRecordSize = f.maxRecordSize }},
		{"model", func() { cfg.Extraction.Model = f.model }},
		{"extractors", func() { cfg.Extraction.Extractors = f.extractors }},
		{"cleanups", func() { cfg.Extraction.Cleanups = f.cleanups }},
		{"rollback", func() { cfg.Extraction.Rollback = f.rollback }},
		{"rollback-when", func() { cfg.Extraction.RollbackWhen = f.rollbackWhen }},
		{"workers", func() { cfg.Extraction.Workers = f.workers }},
		{"merge-data", func() { cfg.Extraction.MergeData = f.mergeData }},
		{"trim-activity", func() { cfg.Extraction.TrimActivity = f.trimActivity }},
		{"commit-data", func() { cfg.Extraction.CommitData = f.commitData }},
		{"format", func() { cfg.Output.Format = f.format }},
		{"output", func() { cfg.Output.Path = f.output }},
		{"compress", func() { cfg.Output.Compress = f.compress }},
	}

	for _, override := range overrides {
		if set.Changed(override.flag) {
			override.apply()
		}
	}

	if cfg.Extraction.RollbackWhen != "" {
		cfg.Extraction.Rollback = true
	}

	err := cfg.Validate()
	if err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	return nil
}

func runExtract(cmd *cobra.Command, s *session, pairArgs []string) error {
	ctx := cmd.Context()
	cfg := s.cfg

	pairs, err := parsePairs(pairArgs)
	if err != nil {
		return err
	}

	bugs, err := bugSource(cfg)
	if err != nil {
		return err
	}

	opts, err := extractionOptions(ctx, s)
	if err != nil {
		return err
	}

	extractor, err := models.Default(s.logger()).Build(models.Selection{
		Model:      cfg.Extraction.Model,
		Extractors: cfg.Extraction.Extractors,
		Cleanups:   cfg.Extraction.Cleanups,
	}, features.DefaultCatalog(), opts...)
	if err != nil {
		return err
	}

	input := extraction.Bugs(bugs)
	if len(pairs) > 0 {
		input = extraction.PairsByID(bugs, pairs)
	}

	err = extractor.Fit(ctx, input)
	if err != nil {
		return err
	}

	frame, err := extractor.Transform(ctx, input)
	if err != nil {
		return err
	}

	return saveFrame(ctx, cmd, s, frame)
}

func bugSource(cfg *config.Config) (*bugzilla.FileSource, error) {
	size, err := cfg.MaxRecordSize()
	if err != nil {
		return nil, err
	}

	return bugzilla.NewFileSource(cfg.Sources.Bugs, bugzilla.WithMaxRecordSize(size)), nil
}

func extractionOptions(ctx context.Context, s *session) ([]extraction.Option, error) {
	cfg := s.cfg

	metrics, err := observability.NewExtractionMetrics(s.providers.Meter)
	if err != nil {
		return nil, err
	}

	opts := []extraction.Option{
		extraction.WithLogger(s.logger()),
		extraction.WithTracer(s.providers.Tracer),
		extraction.WithMetrics(metrics),
		extraction.WithWorkers(cfg.Extraction.Workers),
		extraction.WithMergeData(cfg.Extraction.MergeData),
	}

	if cfg.Extraction.Rollback {
		when, whenErr := cfg.RollbackTime()
		if whenErr != nil {
			return nil, whenErr
		}

		opts = append(opts, extraction.WithRollback(when))
	}

	if cfg.Extraction.TrimActivity {
		opts = append(opts, extraction.WithActivityTrim())
	}

	if cfg.Extraction.CommitData {
		opts = append(opts, extraction.WithCommitSource(commitSource(cfg)))
	}

	if cfg.Sources.Releases != "" {
		calendar, loadErr := releases.Load(cfg.Sources.Releases)
		if loadErr != nil {
			return nil, loadErr
		}

		s.logger().DebugContext(ctx, "release calendar loaded", "releases", len(calendar.Releases()))
		opts = append(opts, extraction.WithReleases(calendar))
	}

	return opts, nil
}

// commitSource prefers a commit dump over walking a repository.
func commitSource(cfg *config.Config) commits.Source {
	if cfg.Sources.Commits != "" {
		return commits.NewFileSource(cfg.Sources.Commits)
	}

	return commits.NewGitSource(cfg.Sources.GitRepo)
}

func parsePairs(args []string) ([][2]int, error) {
	pairs := make([][2]int, 0, len(args))

	for _, arg := range args {
		first, second, ok := strings.Cut(arg, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPair, arg)
		}

		a, errA := strconv.Atoi(strings.TrimSpace(first))
		b, errB := strconv.Atoi(strings.TrimSpace(second))

		if errA != nil || errB != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPair, arg)
		}

		pairs = append(pairs, [2]int{a, b})
	}

	return pairs, nil
}

func saveFrame(ctx context.Context, cmd *cobra.Command, s *session, frame *extraction.Frame) error {
	cfg := s.cfg

	format, err := dataset.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}

	rollback := ""
	if cfg.Extraction.Rollback {
		rollback = cmp.Or(cfg.Extraction.RollbackWhen, "creation")
	}

	path, err := dataset.Save(ctx, frame, dataset.Options{
		Format:   format,
		Path:     cfg.Output.Path,
		Compress: cfg.Output.Compress,
		Run:      dataset.RunInfo{Model: cfg.Extraction.Model, Rollback: rollback},
		Stdout:   cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	if path != "" {
		s.logger().InfoContext(ctx, "dataset written",
			"path", path, "format", format, "rows", humanize.Comma(int64(frame.Len())))
	}

	return nil
}
