// Package history computes windowed stability analysis over a test's
// recent executions: flaky detection, failure pattern, root-cause
// stability and trend direction. Input histories come from the datastore
// ordered oldest to newest; everything here is pure computation.
package history

import (
	"sort"

	"verdict/adapters/store"
	"verdict/internal/classify"
	"verdict/internal/identity"
)

// Trend is the direction a test (or run) is moving across the window.
type Trend string

const (
	Improving Trend = "IMPROVING"
	Declining Trend = "DECLINING"
	Stable    Trend = "STABLE"
)

// Pattern describes how failures distribute inside the window.
type Pattern string

const (
	// Continuous means the failing executions form one contiguous block.
	Continuous Pattern = "CONTINUOUS"
	// Intermittent means passes interleave the failures.
	Intermittent Pattern = "INTERMITTENT"
)

// Stability describes whether the failures share one root cause.
type Stability string

const (
	SameCause    Stability = "SAME"
	VaryingCause Stability = "VARYING"
)

// Assessment is the per-test analysis outcome.
type Assessment struct {
	FailureCount int       `json:"failure_count"`
	Flaky        bool      `json:"flaky"`
	Pattern      Pattern   `json:"pattern"`
	Stability    Stability `json:"stability"`
	// LowConfidence is set when failing entries lack a failure reason, so
	// the stability verdict rests on incomplete data.
	LowConfidence bool  `json:"low_confidence,omitempty"`
	Trend         Trend `json:"trend"`
}

// FlakyRecord is one entry of the flaky report.
type FlakyRecord struct {
	Identity             identity.Identity `json:"identity"`
	FailureCountInWindow int               `json:"failure_count_in_window"`
	Pattern              Pattern           `json:"pattern"`
	RootCauseStability   Stability         `json:"root_cause_stability"`
	LowConfidence        bool              `json:"low_confidence,omitempty"`
	Trend                Trend             `json:"trend"`
	// SeverityRank is 1-based after SortBySeverity.
	SeverityRank int `json:"severity_rank"`
}

// Analyzer holds the window parameters. Threshold is the minimum failure
// count within the window before a test is flagged flaky.
type Analyzer struct {
	Window    int
	Threshold int
}

// Analyze assesses one test's history. Histories longer than the window
// are cut to the most recent Window entries first.
func (a Analyzer) Analyze(hist store.History) Assessment {
	if a.Window > 0 && len(hist) > a.Window {
		hist = hist[len(hist)-a.Window:]
	}

	as := Assessment{Pattern: Continuous, Stability: SameCause, Trend: Stable}

	var failIdx []int
	sigs := make(map[string]struct{})
	for i, e := range hist {
		if e.Status != store.StatusFail {
			continue
		}
		failIdx = append(failIdx, i)
		if e.FailureReason == "" {
			as.LowConfidence = true
			continue
		}
		sigs[classify.Signature(e.FailureReason, "")] = struct{}{}
	}
	as.FailureCount = len(failIdx)
	as.Flaky = a.Threshold > 0 && as.FailureCount >= a.Threshold

	if len(failIdx) > 0 && failIdx[len(failIdx)-1]-failIdx[0]+1 != len(failIdx) {
		as.Pattern = Intermittent
	}
	if len(sigs) > 1 {
		as.Stability = VaryingCause
	}
	as.Trend = trendOf(hist)
	return as
}

// trendOf compares the failure density of the older half against the
// newer half; the older half takes the extra entry on odd windows.
func trendOf(hist store.History) Trend {
	if len(hist) < 2 {
		return Stable
	}
	cut := (len(hist) + 1) / 2
	older, newer := hist[:cut], hist[cut:]
	or := failRate(older)
	nr := failRate(newer)
	switch {
	case nr < or:
		return Improving
	case nr > or:
		return Declining
	default:
		return Stable
	}
}

func failRate(hist store.History) float64 {
	if len(hist) == 0 {
		return 0
	}
	fails := 0
	for _, e := range hist {
		if e.Status == store.StatusFail {
			fails++
		}
	}
	return float64(fails) / float64(len(hist))
}

// SortBySeverity orders flaky records worst first: failure count
// descending, CONTINUOUS before INTERMITTENT, then name ascending for a
// stable total order. SeverityRank is assigned 1-based.
func SortBySeverity(records []FlakyRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.FailureCountInWindow != b.FailureCountInWindow {
			return a.FailureCountInWindow > b.FailureCountInWindow
		}
		if a.Pattern != b.Pattern {
			return a.Pattern == Continuous
		}
		return a.Identity.FullName < b.Identity.FullName
	})
	for i := range records {
		records[i].SeverityRank = i + 1
	}
}

// runTrendBand is the pass-rate band (in percentage points) inside which a
// run-level movement counts as noise.
const runTrendBand = 5.0

// RunTrend derives the run-level trend from per-build pass rates, oldest
// to newest. Movement within the band is STABLE.
func RunTrend(stats []store.BuildStat) Trend {
	if len(stats) < 2 {
		return Stable
	}
	cut := (len(stats) + 1) / 2
	older := avgPassRate(stats[:cut])
	newer := avgPassRate(stats[cut:])
	switch {
	case newer > older+runTrendBand:
		return Improving
	case newer < older-runTrendBand:
		return Declining
	default:
		return Stable
	}
}

func avgPassRate(stats []store.BuildStat) float64 {
	if len(stats) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range stats {
		sum += s.PassRate()
	}
	return sum / float64(len(stats))
}
