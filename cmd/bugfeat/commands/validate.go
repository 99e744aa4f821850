package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/bugfeat/internal/ndjson"
	"github.com/Sumatoshi-tech/bugfeat/pkg/bugzilla"
	"github.com/Sumatoshi-tech/bugfeat/pkg/observability"
)

// ErrInvalidRecords is returned when a dump holds records that fail the schema.
var ErrInvalidRecords = errors.New("dump has invalid records")

// defaultMaxReported bounds the violations printed per run.
const defaultMaxReported = 20

type validateFlags struct {
	maxReported int
	noColor     bool
	printSchema bool
}

// recordReport is the outcome of one dump line.
type recordReport struct {
	index      int
	violations []bugzilla.Violation
}

func newValidateCommand(global *globalFlags) *cobra.Command {
	flags := &validateFlags{}

	cmd := &cobra.Command{
		Use:   "validate [dump]",
		Short: "Check a bug dump against the bug schema",
		Long: `Validate every record of a bug dump against the bug JSON schema.

The dump defaults to sources.bugs. Exits non-zero when any record is invalid.

Examples:
  bugfeat validate bugs.json.lz4
  bugfeat validate --schema > bug-schema.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.printSchema {
				_, err := cmd.OutOrStdout().Write(bugzilla.SchemaJSON())

				return err
			}

			s, err := startSession(global, observability.ModeCLI)
			if err != nil {
				return err
			}
			defer s.close()

			if len(args) == 1 {
				s.cfg.Sources.Bugs = args[0]
			}

			return s.track(cmd.Context(), "validate", func() error {
				return runValidate(cmd.Context(), cmd.OutOrStdout(), s, flags)
			})
		},
	}

	cmd.Flags().IntVar(&flags.maxReported, "max-reported", defaultMaxReported, "invalid records to print")
	cmd.Flags().BoolVar(&flags.noColor, "no-color", false, "disable colored output")
	cmd.Flags().BoolVar(&flags.printSchema, "schema", false, "print the bug schema and exit")

	return cmd
}

func runValidate(ctx context.Context, w io.Writer, s *session, flags *validateFlags) error {
	size, err := s.cfg.MaxRecordSize()
	if err != nil {
		return err
	}

	path := s.cfg.Sources.Bugs
	records := ndjson.Read(ctx, path, size, func(index int, line []byte) (recordReport, error) {
		violations, validateErr := bugzilla.Validate(line)
		if validateErr != nil {
			violations = []bugzilla.Violation{{Field: "(root)", Description: validateErr.Error()}}
		}

		return recordReport{index: index, violations: violations}, nil
	})

	bad := color.New(color.FgRed)
	good := color.New(color.FgGreen)
	hint := color.New(color.FgYellow)

	if flags.noColor {
		for _, c := range []*color.Color{bad, good, hint} {
			c.DisableColor()
		}
	}

	total, invalid := 0, 0

	for report, readErr := range records {
		if readErr != nil {
			return fmt.Errorf("read %s: %w", path, readErr)
		}

		total++

		if len(report.violations) == 0 {
			continue
		}

		invalid++

		if invalid <= flags.maxReported {
			bad.Fprintf(w, "record %d:\n", report.index)

			for _, violation := range report.violations {
				fmt.Fprintf(w, "  - %s\n", violation)
			}
		}
	}

	if invalid == 0 {
		good.Fprintf(w, "%s: %s records valid\n", path, humanize.Comma(int64(total)))

		return nil
	}

	if invalid > flags.maxReported {
		hint.Fprintf(w, "... %s more invalid records not shown\n", humanize.Comma(int64(invalid-flags.maxReported)))
	}

	bad.Fprintf(w, "%s: %s of %s records invalid\n", path, humanize.Comma(int64(invalid)), humanize.Comma(int64(total)))

	return fmt.Errorf("%w: %d of %d", ErrInvalidRecords, invalid, total)
}
