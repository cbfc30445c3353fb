package format

import (
	"fmt"
	"strings"
	"time"

	"verdict/internal/batch"
	"verdict/internal/history"
)

// ResultsTable renders the per-test records of one batch.
func ResultsTable(results []batch.Result, m Mode) string {
	tb := NewTable(m)
	tb.Header("Test", "Status", "Duration", "Match", "Category", "Verdict", "Root Cause", "Flaky")
	tb.Columns(
		ColumnConfig{Number: 1, MaxWidth: 60},
		ColumnConfig{Number: 3, Align: AlignRight},
		ColumnConfig{Number: 7, MaxWidth: 50},
		ColumnConfig{Number: 8, Align: AlignCenter},
	)
	for _, r := range results {
		category, verdict, rootCause := "", "", ""
		if r.Classification != nil {
			category = string(r.Classification.Level2)
			verdict = string(r.Classification.Level1)
			rootCause = Truncate(r.Classification.RootCause, 50)
		}
		duration := ""
		if r.Log != nil {
			duration = FmtDuration(time.Duration(r.Log.DurationMs) * time.Millisecond)
		}
		tb.Row(
			r.Identity.FullName,
			string(r.Status),
			duration,
			string(r.Strategy),
			category,
			verdict,
			rootCause,
			BoolMark(r.Flaky != nil),
		)
	}
	return tb.String()
}

// FlakyTable renders the flaky report, worst first.
func FlakyTable(records []history.FlakyRecord, m Mode) string {
	if len(records) == 0 {
		return "No flaky tests in the window."
	}
	tb := NewTable(m)
	tb.Header("Rank", "Test", "Failures", "Pattern", "Root Cause", "Trend")
	tb.Columns(
		ColumnConfig{Number: 1, Align: AlignRight},
		ColumnConfig{Number: 2, MaxWidth: 60},
		ColumnConfig{Number: 3, Align: AlignRight},
	)
	for _, r := range records {
		stability := string(r.RootCauseStability)
		if r.LowConfidence {
			stability += " (low confidence)"
		}
		tb.Row(
			r.SeverityRank,
			r.Identity.FullName,
			r.FailureCountInWindow,
			string(r.Pattern),
			stability,
			string(r.Trend),
		)
	}
	return tb.String()
}

// SummaryText renders the batch counters as a short block.
func SummaryText(s batch.Summary) string {
	passRate := 0.0
	if s.Total > 0 {
		passRate = float64(s.Passed) / float64(s.Total) * 100
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Build %s: %d tests (%d passed, %d failed, %d skipped, pass rate %s)\n",
		s.BuildTag, s.Total, s.Passed, s.Failed, s.Skipped, FmtPercent(passRate))
	fmt.Fprintf(&b, "Logs: %d matched, %d unmatched, %d orphan artifacts, %d duplicate rows, %d skipped files\n",
		s.MatchedLogs, s.UnmatchedLogs, s.OrphanArtifacts, s.DuplicateRows, s.SkippedArtifactFiles)
	fmt.Fprintf(&b, "Classifier: %d calls, %d cache hits, %d fallbacks\n",
		s.ClassifierCalls, s.ClassifierCacheHits, s.ClassifierFallbacks)
	fmt.Fprintf(&b, "Flaky tests: %d, run trend: %s\n", s.FlakyTests, s.RunTrend)
	return b.String()
}
