package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/bugfeat/pkg/bugzilla"
	"github.com/Sumatoshi-tech/bugfeat/pkg/observability"
	"github.com/Sumatoshi-tech/bugfeat/pkg/snapshot"
)

// ErrBugNotFound is returned when the requested bug is not in the dump.
var ErrBugNotFound = errors.New("bug not found")

type snapshotFlags struct {
	bugs         string
	when         string
	trimActivity bool
	assert       bool
	asJSON       bool
	noColor      bool
}

func newSnapshotCommand(global *globalFlags) *cobra.Command {
	flags := &snapshotFlags{}

	cmd := &cobra.Command{
		Use:   "snapshot <bug-id>",
		Short: "Show a bug as it was at an earlier time",
		Long: `Reconstruct a bug by undoing its history and show what changed.

By default the bug is rolled back to how it was filed and a line diff of the
current record against the snapshot is printed.

Examples:
  bugfeat snapshot 1234 --bugs bugs.json.lz4
  bugfeat snapshot 1234 --when 2019-07-01 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("bug id %q: %w", args[0], err)
			}

			s, err := startSession(global, observability.ModeCLI)
			if err != nil {
				return err
			}
			defer s.close()

			if cmd.Flags().Changed("bugs") {
				s.cfg.Sources.Bugs = flags.bugs
			}

			return s.track(cmd.Context(), "snapshot", func() error {
				return runSnapshot(cmd, s, id, flags)
			})
		},
	}

	cmd.Flags().StringVar(&flags.bugs, "bugs", "", "bug dump (default: sources.bugs)")
	cmd.Flags().StringVar(&flags.when, "when", "", "target time (default: bug creation)")
	cmd.Flags().BoolVar(&flags.trimActivity, "trim-activity", false, "drop comments and attachments newer than the target")
	cmd.Flags().BoolVar(&flags.assert, "assert", false, "fail on history entries that contradict the record")
	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "print the snapshot instead of a diff")
	cmd.Flags().BoolVar(&flags.noColor, "no-color", false, "disable colored output")

	return cmd
}

func runSnapshot(cmd *cobra.Command, s *session, id int, flags *snapshotFlags) error {
	var opts []snapshot.Option

	if flags.when != "" {
		when, err := snapshot.ParseTime(flags.when)
		if err != nil {
			return err
		}

		opts = append(opts, snapshot.At(when))
	}

	if flags.trimActivity {
		opts = append(opts, snapshot.WithActivityTrim())
	}

	if flags.assert {
		opts = append(opts, snapshot.WithAssert())
	}

	src, err := bugSource(s.cfg)
	if err != nil {
		return err
	}

	bug, found, err := bugzilla.Find(cmd.Context(), src, id)
	if err != nil {
		return err
	}

	if !found {
		return fmt.Errorf("%w: %d in %s", ErrBugNotFound, id, src.Path())
	}

	snap, err := snapshot.Rollback(bug, opts...)
	if err != nil {
		return err
	}

	s.logger().DebugContext(cmd.Context(), "snapshot built",
		"bug", id, "undone_entries", len(bug.History)-len(snap.History))

	if flags.asJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")

		return encoder.Encode(snap)
	}

	return writeSnapshotDiff(cmd.OutOrStdout(), bug, snap, flags.noColor)
}

// writeSnapshotDiff prints a line diff from the current record to the
// snapshot: "-" lines are current values, "+" lines are restored ones.
func writeSnapshotDiff(w io.Writer, current, snap *bugzilla.Bug, noColor bool) error {
	before, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return fmt.Errorf("encode bug: %w", err)
	}

	after, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lines := dmp.DiffLinesToChars(string(before), string(after))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(beforeChars, afterChars, false), lines)

	removed := color.New(color.FgRed)
	added := color.New(color.FgGreen)

	if noColor {
		removed.DisableColor()
		added.DisableColor()
	}

	changed := false

	for _, diff := range diffs {
		for _, line := range strings.SplitAfter(diff.Text, "\n") {
			if line == "" {
				continue
			}

			line = strings.TrimSuffix(line, "\n")

			switch diff.Type {
			case diffmatchpatch.DiffDelete:
				changed = true

				removed.Fprintln(w, "- "+line)
			case diffmatchpatch.DiffInsert:
				changed = true

				added.Fprintln(w, "+ "+line)
			case diffmatchpatch.DiffEqual:
			}
		}
	}

	if !changed {
		fmt.Fprintf(w, "bug %d has no history to undo\n", current.ID)
	}

	return nil
}
