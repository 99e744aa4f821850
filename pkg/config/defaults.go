package config

// Extraction defaults.
const (
	DefaultExtractionRollback     = false
	DefaultExtractionWorkers      = 0
	DefaultExtractionMergeData    = true
	DefaultExtractionTrimActivity = false
	DefaultExtractionCommitData   = false
)

// Source defaults.
const (
	DefaultSourcesBugs          = "data/bugs.json"
	DefaultSourcesMaxRecordSize = "64MiB"
)

// Output defaults.
const (
	DefaultOutputFormat   = "jsonl"
	DefaultOutputCompress = false
)

// Logging defaults.
const (
	DefaultLoggingLevel = "info"
	DefaultLoggingJSON  = false
)
