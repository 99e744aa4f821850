// Package config loads bugfeat settings from .bugfeat.yaml, BUGFEAT_*
// environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/bugfeat/pkg/snapshot"
)

// Sentinel validation errors.
var (
	ErrInvalidWorkers       = errors.New("extraction workers must not be negative")
	ErrInvalidRollbackWhen  = errors.New("invalid rollback time")
	ErrInvalidRecordSize    = errors.New("invalid max record size")
	ErrInvalidOutputFormat  = errors.New("invalid output format")
	ErrInvalidLogLevel      = errors.New("invalid log level")
	ErrCommitSourceRequired = errors.New("commit data needs sources.commits or sources.git_repo")
)

var (
	outputFormats = []string{"jsonl", "yaml", "table", "plot", "sqlite"}
	logLevels     = []string{"debug", "info", "warn", "error"}
)

// Config holds all bugfeat settings.
type Config struct {
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Sources    SourcesConfig    `mapstructure:"sources"`
	Output     OutputConfig     `mapstructure:"output"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// ExtractionConfig selects extractors, cleanups and rollback behavior.
type ExtractionConfig struct {
	// Extractors are catalog ids. Empty means the model's set, or the whole catalog.
	Extractors []string `mapstructure:"extractors"`
	Cleanups   []string `mapstructure:"cleanups"`
	Model      string   `mapstructure:"model"`
	Rollback   bool     `mapstructure:"rollback"`
	// RollbackWhen is the rollback target; empty rolls back to bug creation.
	RollbackWhen string `mapstructure:"rollback_when"`
	Workers      int    `mapstructure:"workers"`
	MergeData    bool   `mapstructure:"merge_data"`
	TrimActivity bool   `mapstructure:"trim_activity"`
	CommitData   bool   `mapstructure:"commit_data"`
}

// SourcesConfig locates input data.
type SourcesConfig struct {
	Bugs          string `mapstructure:"bugs"`
	Commits       string `mapstructure:"commits"`
	GitRepo       string `mapstructure:"git_repo"`
	Releases      string `mapstructure:"releases"`
	MaxRecordSize string `mapstructure:"max_record_size"`
}

// OutputConfig controls where rows go.
type OutputConfig struct {
	Format   string `mapstructure:"format"`
	Path     string `mapstructure:"path"`
	Compress bool   `mapstructure:"compress"`
}

// LoggingConfig controls the logger.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	// MetricsAddr serves Prometheus metrics when set, e.g. ":9464".
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Extraction.Workers < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Extraction.Workers)
	}

	_, err := c.RollbackTime()
	if err != nil {
		return err
	}

	_, err = c.MaxRecordSize()
	if err != nil {
		return err
	}

	if !slices.Contains(outputFormats, strings.ToLower(c.Output.Format)) {
		return fmt.Errorf("%w: %q", ErrInvalidOutputFormat, c.Output.Format)
	}

	if !slices.Contains(logLevels, strings.ToLower(c.Logging.Level)) {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}

	if c.Extraction.CommitData && c.Sources.Commits == "" && c.Sources.GitRepo == "" {
		return ErrCommitSourceRequired
	}

	return nil
}

// RollbackTime parses extraction.rollback_when. Nil means bug creation.
func (c *Config) RollbackTime() (*time.Time, error) {
	value := strings.TrimSpace(c.Extraction.RollbackWhen)
	if value == "" {
		return nil, nil
	}

	parsed, err := snapshot.ParseTime(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRollbackWhen, err)
	}

	return &parsed, nil
}

// MaxRecordSize parses sources.max_record_size ("64MiB", "100MB").
func (c *Config) MaxRecordSize() (int, error) {
	size, err := humanize.ParseBytes(c.Sources.MaxRecordSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidRecordSize, err)
	}

	if size == 0 || size > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidRecordSize, c.Sources.MaxRecordSize)
	}

	return int(size), nil
}
