// Package merge is the identity resolver: it joins datastore execution
// records with HTML log artifacts into one TestResult per distinct test.
// Datastore records are authoritative for existence and status; artifacts
// only enrich. A record that matches no artifact is kept, unmatched.
package merge

import (
	"log/slog"
	"strings"

	"verdict/adapters/artifacts"
	"verdict/adapters/store"
	"verdict/internal/identity"
	"verdict/internal/logging"
)

// MatchStrategy records which lookup linked a record to its artifact.
type MatchStrategy string

const (
	MatchExact      MatchStrategy = "EXACT"
	MatchLastTwo    MatchStrategy = "LAST_TWO"
	MatchCollapsed  MatchStrategy = "COLLAPSED"
	MatchMethodOnly MatchStrategy = "METHOD_ONLY"
	MatchNone       MatchStrategy = "UNMATCHED"
)

// TestResult is the unified per-test record the rest of the pipeline
// consumes. Log is nil when no artifact matched.
type TestResult struct {
	Identity  identity.Identity
	Status    store.Status
	BuildTag  string
	CreatedAt string
	Log       *artifacts.Artifact
	Strategy  MatchStrategy
}

// Resolution is the outcome of one merge pass.
type Resolution struct {
	Results []TestResult
	// Matched counts results that gained a log artifact.
	Matched int
	// Unmatched counts results with no artifact; they stay in Results.
	Unmatched int
	// OrphanArtifacts counts artifacts no record claimed.
	OrphanArtifacts int
	// DuplicateRows counts datastore rows discarded by name dedup.
	DuplicateRows int
}

// artifactIndex holds first-encounter-wins lookup maps over artifact names,
// one per strategy. Earlier artifacts win key collisions, so artifact
// encounter order breaks ties deterministically.
type artifactIndex struct {
	exact      map[string]int
	lastTwo    map[string]int
	collapsed  map[string]int
	methodOnly map[string]int
	claimed    []bool
	arts       []artifacts.Artifact
}

func buildIndex(arts []artifacts.Artifact) *artifactIndex {
	idx := &artifactIndex{
		exact:      make(map[string]int, len(arts)),
		lastTwo:    make(map[string]int, len(arts)),
		collapsed:  make(map[string]int, len(arts)),
		methodOnly: make(map[string]int, len(arts)),
		claimed:    make([]bool, len(arts)),
		arts:       arts,
	}
	put := func(m map[string]int, key string, i int) {
		if key == "" {
			return
		}
		if _, ok := m[key]; !ok {
			m[key] = i
		}
	}
	for i, a := range arts {
		id := identity.Normalize(a.TestName)
		put(idx.exact, a.TestName, i)
		put(idx.lastTwo, identity.LastTwo(a.TestName), i)
		if id.CleanedClassName != "" {
			put(idx.collapsed, id.CleanedClassName+"."+id.MethodName, i)
		}
		put(idx.methodOnly, strings.ToLower(id.MethodName), i)
	}
	return idx
}

// lookup probes the strategies in fixed priority order for the record's
// identity and returns the first artifact hit.
func (idx *artifactIndex) lookup(rawName string, id identity.Identity) (*artifacts.Artifact, MatchStrategy) {
	probes := []struct {
		m        map[string]int
		key      string
		strategy MatchStrategy
	}{
		{idx.exact, rawName, MatchExact},
		{idx.lastTwo, identity.LastTwo(rawName), MatchLastTwo},
		{idx.collapsed, cleanedKey(id), MatchCollapsed},
		{idx.methodOnly, strings.ToLower(id.MethodName), MatchMethodOnly},
	}
	for _, p := range probes {
		if p.key == "" {
			continue
		}
		if i, ok := p.m[p.key]; ok {
			idx.claimed[i] = true
			return &idx.arts[i], p.strategy
		}
	}
	return nil, MatchNone
}

func cleanedKey(id identity.Identity) string {
	if id.CleanedClassName == "" {
		return ""
	}
	return id.CleanedClassName + "." + id.MethodName
}

// Resolve merges records with artifacts. Deterministic and idempotent:
// identical inputs produce identical output, results in first-encounter
// record order.
func Resolve(records []store.ExecutionRecord, arts []artifacts.Artifact, logger *slog.Logger) *Resolution {
	if logger == nil {
		logger = logging.New("merge")
	}

	// Dedup datastore rows by raw name. A FAIL row replaces a PASS row for
	// the same test (re-runs record both); otherwise the first row wins.
	byName := make(map[string]int, len(records))
	var order []store.ExecutionRecord
	dupes := 0
	for _, rec := range records {
		if rec.TestName == "" {
			continue
		}
		if i, ok := byName[rec.TestName]; ok {
			dupes++
			if rec.Status == store.StatusFail && order[i].Status == store.StatusPass {
				order[i] = rec
			}
			continue
		}
		byName[rec.TestName] = len(order)
		order = append(order, rec)
	}

	idx := buildIndex(arts)
	res := &Resolution{DuplicateRows: dupes}
	for _, rec := range order {
		id := identity.Normalize(rec.TestName)
		art, strategy := idx.lookup(rec.TestName, id)
		if art != nil {
			res.Matched++
		} else {
			res.Unmatched++
		}
		res.Results = append(res.Results, TestResult{
			Identity:  id,
			Status:    rec.Status,
			BuildTag:  rec.BuildTag,
			CreatedAt: rec.CreatedAt,
			Log:       art,
			Strategy:  strategy,
		})
	}
	for _, c := range idx.claimed {
		if !c {
			res.OrphanArtifacts++
		}
	}

	logger.Info("merged records with artifacts",
		"records", len(records), "unique", len(order),
		"matched", res.Matched, "unmatched", res.Unmatched,
		"orphans", res.OrphanArtifacts)
	return res
}
