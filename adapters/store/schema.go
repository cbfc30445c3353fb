package store

// schemaVersion is the current schema version for fresh installs.
const schemaVersion = 1

// schema is the DDL for the execution-record table. CI jobs append one row
// per test execution; this tool only ever reads, except for `verdict ingest`.
var schema = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS executions (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	build_tag      TEXT NOT NULL,
	testcase_name  TEXT NOT NULL,
	test_status    TEXT NOT NULL,
	failure_reason TEXT,
	created_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_executions_build ON executions(build_tag);
CREATE INDEX IF NOT EXISTS idx_executions_name  ON executions(testcase_name);
`
