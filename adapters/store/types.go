package store

// Status is the executed outcome of one test run as recorded by the datastore.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
	StatusSkip Status = "SKIP"
)

// ParseStatus maps the datastore's free-form status strings onto the closed
// Status set. The second return is false for unknown values, which degrade
// to PASS; the caller decides whether to log the degradation.
func ParseStatus(raw string) (Status, bool) {
	switch normalizeStatus(raw) {
	case "PASS", "PASSED", "SUCCESS", "OK":
		return StatusPass, true
	case "FAIL", "FAILED", "FAILURE", "ERROR", "ERRORED":
		return StatusFail, true
	case "SKIP", "SKIPPED":
		return StatusSkip, true
	}
	return StatusPass, false
}

// ExecutionRecord is one raw test execution row fetched from the datastore.
// Immutable once fetched; the pipeline never writes it back.
type ExecutionRecord struct {
	ID            int64  `json:"id"`
	BuildTag      string `json:"build_tag"`
	TestName      string `json:"test_name"`
	Status        Status `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
	CreatedAt     string `json:"created_at"` // RFC 3339
}

// HistoryEntry is one past execution of a single test, used by the flaky and
// trend analysis. FailureReason is empty for passing entries and may be empty
// for failing entries whose row predates failure-reason capture.
type HistoryEntry struct {
	BuildTag      string `json:"build_tag"`
	Status        Status `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// History is an execution history snapshot for one test, ordered oldest to
// newest, at most the configured window length. Read-only within a batch.
type History []HistoryEntry

// BuildStat aggregates one build's outcomes for run-level trend analysis.
type BuildStat struct {
	BuildTag string `json:"build_tag"`
	Total    int    `json:"total"`
	Passed   int    `json:"passed"`
}

// PassRate returns the build's pass percentage (0 when the build is empty).
func (b BuildStat) PassRate() float64 {
	if b.Total == 0 {
		return 0
	}
	return float64(b.Passed) / float64(b.Total) * 100
}
