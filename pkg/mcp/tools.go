package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool names.
const (
	ToolNameExtract    = "bugfeat_extract"
	ToolNameSnapshot   = "bugfeat_snapshot"
	ToolNameExtractors = "bugfeat_extractors"
)

// Row limits for bugfeat_extract.
const (
	DefaultRowLimit = 100
	MaxRowLimit     = 10_000
)

// Sentinel errors for tool input validation.
var (
	ErrEmptyBugsPath       = errors.New("bugs_path parameter is required and must not be empty")
	ErrBugsPathNotAbsolute = errors.New("bugs_path must be an absolute path")
	ErrBugsPathNotFound    = errors.New("bug dump does not exist")
	ErrInvalidBugID        = errors.New("bug_id must be a positive integer")
	ErrBugNotFound         = errors.New("bug not found in dump")
	ErrLimitTooLarge       = errors.New("limit exceeds maximum")
	ErrUnknownKind         = errors.New("kind must be single or pair")
)

// ExtractInput is the input schema for bugfeat_extract.
type ExtractInput struct {
	BugsPath     string   `json:"bugs_path"               jsonschema:"absolute path to a bug dump (.json or .json.lz4)"`
	Model        string   `json:"model,omitempty"         jsonschema:"model whose extractors and cleanups to use (e.g. accessibility)"`
	Extractors   []string `json:"extractors,omitempty"    jsonschema:"extractor ids; overrides the model's set (default: all)"`
	Cleanups     []string `json:"cleanups,omitempty"      jsonschema:"text cleanup ids (e.g. fileref url synonyms)"`
	Rollback     bool     `json:"rollback,omitempty"      jsonschema:"roll bugs back before extraction"`
	RollbackWhen string   `json:"rollback_when,omitempty" jsonschema:"rollback target (RFC 3339 or YYYY-MM-DD); default is bug creation"`
	TrimActivity bool     `json:"trim_activity,omitempty" jsonschema:"also drop comments and attachments newer than the rollback target"`
	BugIDs       []int    `json:"bug_ids,omitempty"       jsonschema:"only extract these bugs"`
	Limit        int      `json:"limit,omitempty"         jsonschema:"maximum number of rows (default: 100)"`
}

// SnapshotInput is the input schema for bugfeat_snapshot.
type SnapshotInput struct {
	BugsPath     string `json:"bugs_path"               jsonschema:"absolute path to a bug dump (.json or .json.lz4)"`
	BugID        int    `json:"bug_id"                  jsonschema:"id of the bug to reconstruct"`
	When         string `json:"when,omitempty"          jsonschema:"target time (RFC 3339 or YYYY-MM-DD); default is bug creation"`
	TrimActivity bool   `json:"trim_activity,omitempty" jsonschema:"also drop comments and attachments newer than the target"`
}

// ExtractorsInput is the input schema for bugfeat_extractors.
type ExtractorsInput struct {
	Kind string `json:"kind,omitempty" jsonschema:"only list single or pair extractors"`
}

// ToolOutput is the structured output of every tool.
type ToolOutput struct {
	Data any `json:"data"`
}

func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
		IsError: true,
	}, ToolOutput{}, nil
}

func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
	}, ToolOutput{Data: value}, nil
}

func validateBugsPath(path string) error {
	if path == "" {
		return ErrEmptyBugsPath
	}

	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: %s", ErrBugsPathNotAbsolute, path)
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fmt.Errorf("%w: %s", ErrBugsPathNotFound, path)
	}

	return nil
}
