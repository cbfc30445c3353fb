// Package batch orchestrates one analysis run: fetch execution records,
// parse log artifacts, reconcile identities, classify failures, analyze
// history, assemble the report. One bounded batch per invocation; a batch
// either completes or fails before any output is produced. Per-record
// problems degrade the record, never the batch.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"verdict/adapters/artifacts"
	"verdict/adapters/store"
	"verdict/internal/classify"
	"verdict/internal/history"
	"verdict/internal/identity"
	"verdict/internal/logging"
	"verdict/internal/merge"
)

// Result is the final unified per-test record.
type Result struct {
	Identity       identity.Identity        `json:"identity"`
	Status         store.Status             `json:"status"`
	Strategy       merge.MatchStrategy      `json:"match_strategy"`
	Log            *artifacts.Artifact      `json:"-"`
	Classification *classify.Classification `json:"classification,omitempty"`
	History        store.History            `json:"history,omitempty"`
	Assessment     history.Assessment       `json:"assessment"`
	Flaky          *history.FlakyRecord     `json:"flaky,omitempty"`
}

// Summary carries the batch counters for logging and the report footer.
type Summary struct {
	BuildTag             string        `json:"build_tag"`
	Total                int           `json:"total"`
	Passed               int           `json:"passed"`
	Failed               int           `json:"failed"`
	Skipped              int           `json:"skipped"`
	MatchedLogs          int           `json:"matched_logs"`
	UnmatchedLogs        int           `json:"unmatched_logs"`
	OrphanArtifacts      int           `json:"orphan_artifacts"`
	DuplicateRows        int           `json:"duplicate_rows"`
	SkippedArtifactFiles int           `json:"skipped_artifact_files"`
	ClassifierCalls      int           `json:"classifier_calls"`
	ClassifierCacheHits  int           `json:"classifier_cache_hits"`
	ClassifierFallbacks  int           `json:"classifier_fallbacks"`
	FlakyTests           int           `json:"flaky_tests"`
	RunTrend             history.Trend `json:"run_trend"`
}

// Outcome is the assembled output of one batch.
type Outcome struct {
	results []Result
	flaky   []history.FlakyRecord
	summary Summary
}

// Results returns the per-test records sorted by full name.
func (o *Outcome) Results() []Result { return o.results }

// FlakyReport returns the flaky records sorted worst first.
func (o *Outcome) FlakyReport() []history.FlakyRecord { return o.flaky }

// Summary returns the batch counters.
func (o *Outcome) Summary() Summary { return o.summary }

// Deps wires the pipeline's collaborators. Parser and Refiner may be nil:
// a nil Parser skips artifact parsing, a nil Refiner skips classification
// (the flaky-only command does both).
type Deps struct {
	Store       store.Store
	Parser      *artifacts.Parser
	Refiner     *classify.Refiner
	Analyzer    history.Analyzer
	Concurrency int
	Logger      *slog.Logger
}

// Pipeline runs batches. Construct with New.
type Pipeline struct {
	deps Deps
	log  *slog.Logger
}

func New(deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = logging.New("batch")
	}
	if deps.Concurrency <= 0 {
		deps.Concurrency = 1
	}
	return &Pipeline{deps: deps, log: deps.Logger}
}

// Run executes one batch for a build, optionally narrowed to one test by
// testFilter. A datastore fetch failure or an unreadable report directory
// is batch-fatal; everything downstream degrades locally.
func (p *Pipeline) Run(ctx context.Context, buildTag, reportDir, testFilter string) (*Outcome, error) {
	records, err := p.deps.Store.FetchExecutionRecords(ctx, buildTag, testFilter)
	if err != nil {
		return nil, fmt.Errorf("fetch execution records for %s: %w", buildTag, err)
	}
	p.log.Info("fetched execution records", "build", buildTag, "rows", len(records))

	rep := &artifacts.Report{}
	if p.deps.Parser != nil && reportDir != "" {
		rep, err = p.deps.Parser.ParseReportDir(reportDir)
		if err != nil {
			return nil, fmt.Errorf("parse report dir: %w", err)
		}
	}

	res := merge.Resolve(records, rep.Artifacts, p.log)

	classifications, stats, err := p.classifyFailures(ctx, res.Results)
	if err != nil {
		return nil, err
	}

	histories, err := p.fetchHistories(ctx, res.Results)
	if err != nil {
		return nil, err
	}

	out := &Outcome{summary: Summary{
		BuildTag:             buildTag,
		Total:                len(res.Results),
		MatchedLogs:          res.Matched,
		UnmatchedLogs:        res.Unmatched,
		OrphanArtifacts:      res.OrphanArtifacts,
		DuplicateRows:        res.DuplicateRows,
		SkippedArtifactFiles: rep.SkippedFiles,
		ClassifierCalls:      stats.Calls,
		ClassifierCacheHits:  stats.CacheHits,
		ClassifierFallbacks:  stats.Fallbacks,
		RunTrend:             history.Stable,
	}}

	for i, r := range res.Results {
		result := Result{
			Identity: r.Identity,
			Status:   r.Status,
			Strategy: r.Strategy,
			Log:      r.Log,
			History:  histories[i],
		}
		result.Assessment = p.deps.Analyzer.Analyze(result.History)
		if cls, ok := classifications[r.Identity.FullName]; ok {
			c := cls
			result.Classification = &c
		}
		if result.Assessment.Flaky {
			result.Flaky = &history.FlakyRecord{
				Identity:             r.Identity,
				FailureCountInWindow: result.Assessment.FailureCount,
				Pattern:              result.Assessment.Pattern,
				RootCauseStability:   result.Assessment.Stability,
				LowConfidence:        result.Assessment.LowConfidence,
				Trend:                result.Assessment.Trend,
			}
			out.flaky = append(out.flaky, *result.Flaky)
		}
		switch r.Status {
		case store.StatusPass:
			out.summary.Passed++
		case store.StatusFail:
			out.summary.Failed++
		case store.StatusSkip:
			out.summary.Skipped++
		}
		out.results = append(out.results, result)
	}

	sort.Slice(out.results, func(i, j int) bool {
		return out.results[i].Identity.FullName < out.results[j].Identity.FullName
	})
	history.SortBySeverity(out.flaky)
	out.summary.FlakyTests = len(out.flaky)

	if bs, err := p.deps.Store.BuildStats(ctx, p.deps.Analyzer.Window); err != nil {
		p.log.Warn("build stats unavailable, run trend defaults to stable", "error", err)
	} else {
		out.summary.RunTrend = history.RunTrend(bs)
	}

	p.log.Info("batch complete",
		"build", buildTag, "tests", out.summary.Total,
		"failed", out.summary.Failed, "flaky", out.summary.FlakyTests,
		"run_trend", out.summary.RunTrend)
	return out, nil
}

// classifyFailures runs the refiner over the failing results. With no
// refiner wired the batch skips classification entirely.
func (p *Pipeline) classifyFailures(ctx context.Context, results []merge.TestResult) (map[string]classify.Classification, classify.Stats, error) {
	if p.deps.Refiner == nil {
		return nil, classify.Stats{}, nil
	}
	var reqs []classify.Request
	for _, r := range results {
		if r.Status != store.StatusFail {
			continue
		}
		req := classify.Request{Key: r.Identity.FullName}
		if r.Log != nil {
			req.LogText = r.Log.LogText
			req.StackTrace = r.Log.StackTrace
		}
		reqs = append(reqs, req)
	}
	if len(reqs) == 0 {
		return nil, classify.Stats{}, nil
	}
	out, stats, err := p.deps.Refiner.ClassifyBatch(ctx, reqs)
	if err != nil {
		return nil, stats, fmt.Errorf("classify failures: %w", err)
	}
	return out, stats, nil
}

// fetchHistories loads each result's execution history concurrently,
// reassembled by index so output order never depends on completion order.
// A failed fetch degrades that record to an empty history.
func (p *Pipeline) fetchHistories(ctx context.Context, results []merge.TestResult) ([]store.History, error) {
	histories := make([]store.History, len(results))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.deps.Concurrency)
	for i, r := range results {
		g.Go(func() error {
			query := identity.LastTwo(r.Identity.FullName)
			h, err := p.deps.Store.FetchHistory(gctx, query, p.deps.Analyzer.Window)
			if err != nil {
				p.log.Warn("history unavailable", "test", r.Identity.FullName, "error", err)
				return nil
			}
			histories[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return histories, nil
}
