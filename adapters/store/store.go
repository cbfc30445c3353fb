// Package store is the datastore provider: a read-mostly view over the table
// that CI jobs append test executions to. The pipeline consumes it through
// the Store interface; the implementation is SQLite or in-memory.
package store

import (
	"context"
	"strings"
)

// DefaultDBPath is the default relative path for the SQLite DB.
// Resolve against cwd; Open() creates the parent dir (e.g. .verdict).
const DefaultDBPath = ".verdict/verdict.db"

// Store is the execution-record provider consumed by the batch pipeline.
// FetchExecutionRecords failing is batch-fatal; FetchHistory returns an
// empty history (not an error) for tests with no recorded runs.
type Store interface {
	// InsertExecution appends one execution row (used by ingestion).
	InsertExecution(ctx context.Context, rec *ExecutionRecord) (int64, error)
	// FetchExecutionRecords returns the build's rows in insertion order,
	// narrowed to one test when testNameFilter is non-empty.
	FetchExecutionRecords(ctx context.Context, buildTag, testNameFilter string) ([]ExecutionRecord, error)
	// FetchHistory returns the last `window` executions whose name equals or
	// ends with queryName (case-insensitive), oldest to newest.
	FetchHistory(ctx context.Context, queryName string, window int) (History, error)
	// BuildStats returns per-build outcome counts for the most recent builds,
	// oldest to newest.
	BuildStats(ctx context.Context, limit int) ([]BuildStat, error)
	Close() error
}

// normalizeStatus uppercases and trims a raw status string for comparison.
func normalizeStatus(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
