package format_test

import (
	"strings"
	"testing"
	"time"

	"verdict/adapters/artifacts"
	"verdict/adapters/store"
	"verdict/internal/batch"
	"verdict/internal/classify"
	"verdict/internal/format"
	"verdict/internal/history"
	"verdict/internal/identity"
)

func TestASCII_BasicTable(t *testing.T) {
	tb := format.NewTable(format.ASCII)
	tb.Header("Test", "Status", "Failures")
	tb.Row("suites.api.Cls.testPay", "FAIL", 4)
	tb.Row("suites.api.Cls.testList", "PASS", 0)
	out := tb.String()

	if !strings.Contains(out, "Test") {
		t.Errorf("expected header 'Test' in output:\n%s", out)
	}
	if !strings.Contains(out, "suites.api.Cls.testPay") {
		t.Errorf("expected test name in output:\n%s", out)
	}
	// ASCII mode uses StyleLight box-drawing characters.
	if !strings.Contains(out, "───") {
		t.Errorf("expected box-drawing characters in ASCII output:\n%s", out)
	}
}

func TestMarkdown_BasicTable(t *testing.T) {
	tb := format.NewTable(format.Markdown)
	tb.Header("Rank", "Test")
	tb.Row(1, "suites.api.Cls.testPay")
	out := tb.String()

	if !strings.Contains(out, "| Rank") {
		t.Errorf("expected markdown header with '| Rank':\n%s", out)
	}
	if !strings.Contains(out, "---") {
		t.Errorf("expected markdown separator '---':\n%s", out)
	}
}

func TestResultsTable(t *testing.T) {
	cls := classify.Classification{
		Level1: classify.ProductBug, Level2: classify.AssertionFailure,
		Confidence: classify.High, RootCause: "expected ACTIVE but actual FROZEN",
		Source: classify.SourceAI,
	}
	results := []batch.Result{
		{
			Identity:       identity.Normalize("suites.api.Cls.testPay"),
			Status:         store.StatusFail,
			Strategy:       "EXACT",
			Log:            &artifacts.Artifact{DurationMs: 4200},
			Classification: &cls,
			Flaky:          &history.FlakyRecord{},
		},
		{
			Identity: identity.Normalize("suites.api.Cls.testList"),
			Status:   store.StatusPass,
			Strategy: "UNMATCHED",
		},
	}
	out := format.ResultsTable(results, format.ASCII)
	for _, want := range []string{
		"suites.api.Cls.testPay", "FAIL", "4s", "ASSERTION_FAILURE", "PRODUCT_BUG", "✓",
		"suites.api.Cls.testList", "PASS", "✗",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("results table missing %q:\n%s", want, out)
		}
	}
}

func TestFlakyTable(t *testing.T) {
	records := []history.FlakyRecord{
		{
			Identity:             identity.Normalize("suites.api.Cls.testPay"),
			FailureCountInWindow: 6,
			Pattern:              history.Continuous,
			RootCauseStability:   history.VaryingCause,
			LowConfidence:        true,
			Trend:                history.Declining,
			SeverityRank:         1,
		},
	}
	out := format.FlakyTable(records, format.ASCII)
	for _, want := range []string{"CONTINUOUS", "VARYING", "low confidence", "DECLINING"} {
		if !strings.Contains(out, want) {
			t.Errorf("flaky table missing %q:\n%s", want, out)
		}
	}

	if got := format.FlakyTable(nil, format.ASCII); !strings.Contains(got, "No flaky tests") {
		t.Errorf("empty report = %q", got)
	}
}

func TestSummaryText(t *testing.T) {
	out := format.SummaryText(batch.Summary{
		BuildTag: "Regression-41", Total: 10, Passed: 7, Failed: 2, Skipped: 1,
		MatchedLogs: 8, UnmatchedLogs: 2, FlakyTests: 1, RunTrend: history.Stable,
	})
	for _, want := range []string{"Regression-41", "10 tests", "2 failed", "pass rate 70.0%", "run trend: STABLE"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestHelpers(t *testing.T) {
	if got := format.FmtDuration(95 * time.Second); got != "1m 35s" {
		t.Errorf("FmtDuration = %q", got)
	}
	if got := format.FmtPercent(93.25); got != "93.2%" {
		t.Errorf("FmtPercent = %q", got)
	}
	if got := format.Truncate("abcdefgh", 6); got != "abc..." {
		t.Errorf("Truncate = %q", got)
	}
}
