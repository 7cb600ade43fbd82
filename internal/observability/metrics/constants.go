// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Operation names passed to Recorder.
const (
	// OpChain is one MCMC chain from initialization to its last iteration.
	OpChain = "chain"
	// OpRun is a complete multi-chain fit.
	OpRun = "run"
	// OpDiagnose is the R-hat and effective size computation.
	OpDiagnose = "diagnose"
	// OpSummarize is posterior summarization.
	OpSummarize = "summarize"
	// OpArchiveSave stores a fit in the archive.
	OpArchiveSave = "archive_save"
	// OpArchiveList lists archived fits.
	OpArchiveList = "archive_list"
	// OpArchiveGet loads one archived fit.
	OpArchiveGet = "archive_get"
	// OpArchiveDelete removes one archived fit.
	OpArchiveDelete = "archive_delete"
)

// Status label values.
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms.
	BucketStart1ms = 0.001
	// BucketStart100ms is the starting bucket for 100ms histograms (100ms to ~30min range).
	BucketStart100ms = 0.1

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2

	// BucketCount12 covers 1ms to ~4s.
	BucketCount12 = 12
	// BucketCount15 covers 100ms to ~30min.
	BucketCount15 = 15
)

// ShutdownTimeout bounds the graceful shutdown of the metrics HTTP server.
const ShutdownTimeout = 5 * time.Second
