// Package dataset writes extraction frames: JSON Lines, YAML, a terminal
// table preview, an HTML feature coverage plot, or a SQLite store.
package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/bugfeat/internal/ndjson"
	"github.com/Sumatoshi-tech/bugfeat/pkg/extraction"
)

// Format names an output format.
type Format string

// Supported formats.
const (
	FormatJSONL  Format = "jsonl"
	FormatYAML   Format = "yaml"
	FormatTable  Format = "table"
	FormatPlot   Format = "plot"
	FormatSQLite Format = "sqlite"
)

var (
	// ErrUnknownFormat is returned for unsupported output formats.
	ErrUnknownFormat = errors.New("unknown output format")
	// ErrPathRequired is returned when a format cannot write to stdout.
	ErrPathRequired = errors.New("output path required")
)

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatJSONL, FormatYAML, FormatTable, FormatPlot, FormatSQLite}
}

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	format := Format(strings.ToLower(name))
	if !slices.Contains(Formats(), format) {
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}

	return format, nil
}

// Options configures Save.
type Options struct {
	Format Format
	// Path is the output file. Empty writes text formats to Stdout.
	Path string
	// Compress LZ4-compresses JSON Lines output, appending .lz4 to Path.
	Compress bool
	// Run describes the extraction for the SQLite store.
	Run RunInfo
	Stdout io.Writer
}

// Save writes frame as configured and returns the path written, if any.
func Save(ctx context.Context, frame *extraction.Frame, opts Options) (string, error) {
	if opts.Format == FormatSQLite {
		if opts.Path == "" {
			return "", fmt.Errorf("%w for %s", ErrPathRequired, opts.Format)
		}

		store, err := OpenStore(opts.Path)
		if err != nil {
			return "", err
		}

		_, err = store.Save(ctx, frame, opts.Run)

		return opts.Path, errors.Join(err, store.Close())
	}

	encode, err := encoder(opts.Format)
	if err != nil {
		return "", err
	}

	if opts.Path == "" {
		if opts.Compress {
			return "", fmt.Errorf("%w for compressed output", ErrPathRequired)
		}

		stdout := opts.Stdout
		if stdout == nil {
			stdout = os.Stdout
		}

		return "", encode(stdout, frame)
	}

	path := opts.Path
	if opts.Compress && opts.Format == FormatJSONL && !ndjson.Compressed(path) {
		path += ndjson.Extension
	}

	out, err := ndjson.Create(path)
	if err != nil {
		return "", err
	}

	err = encode(out, frame)

	return path, errors.Join(err, out.Close())
}

func encoder(format Format) (func(io.Writer, *extraction.Frame) error, error) {
	switch format {
	case FormatJSONL:
		return WriteJSONL, nil
	case FormatYAML:
		return WriteYAML, nil
	case FormatTable:
		return func(w io.Writer, frame *extraction.Frame) error {
			return WriteTable(w, frame, DefaultPreviewRows)
		}, nil
	case FormatPlot:
		return WritePlot, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// WriteJSONL writes one JSON object per row.
func WriteJSONL(w io.Writer, frame *extraction.Frame) error {
	encoder := json.NewEncoder(w)

	for i, row := range frame.Rows {
		err := encoder.Encode(row)
		if err != nil {
			return fmt.Errorf("encode row %d: %w", i, err)
		}
	}

	return nil
}

// WriteYAML writes the rows as a YAML sequence.
func WriteYAML(w io.Writer, frame *extraction.Frame) error {
	encoder := yaml.NewEncoder(w)

	err := encoder.Encode(frame.Rows)
	if err != nil {
		return fmt.Errorf("yaml encode: %w", err)
	}

	err = encoder.Close()
	if err != nil {
		return fmt.Errorf("yaml encode: %w", err)
	}

	return nil
}
