package classify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"verdict/internal/logging"
)

// Classifier is the external AI stage. Implementations return an error
// that exposes Transient() bool when the call is worth retrying.
type Classifier interface {
	Classify(ctx context.Context, logText, stackTrace string) (Classification, error)
}

// Request is one failing test to classify, keyed by its identity.
type Request struct {
	Key        string
	LogText    string
	StackTrace string
}

// Stats counts classifier usage for the batch summary.
type Stats struct {
	// Calls is the number of unique signatures dispatched to the classifier.
	Calls int
	// CacheHits is the number of requests served by signature dedup.
	CacheHits int
	// Fallbacks is the number of signatures that ended in the fallback
	// classification.
	Fallbacks int
}

// Options bound the refiner's classifier usage.
type Options struct {
	Retries     int
	BackoffBase time.Duration
	Concurrency int
}

// Refiner runs the two-stage classification: AI proposal, rule refinement.
// A nil classifier puts the refiner in degraded mode where every failure
// gets the fallback classification, rules still applied.
type Refiner struct {
	classifier Classifier
	opts       Options
	log        *slog.Logger
}

func NewRefiner(c Classifier, opts Options, logger *slog.Logger) *Refiner {
	if logger == nil {
		logger = logging.New("classify")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 500 * time.Millisecond
	}
	return &Refiner{classifier: c, opts: opts, log: logger}
}

// ClassifyBatch classifies every request, one classifier call per unique
// signature, concurrency bounded by Options.Concurrency. The returned map
// is keyed by Request.Key; its content does not depend on completion order.
// Classifier failures never fail the batch: they degrade to Fallback().
func (r *Refiner) ClassifyBatch(ctx context.Context, reqs []Request) (map[string]Classification, Stats, error) {
	type sigWork struct {
		logText    string
		stackTrace string
	}

	sigs := make(map[string]sigWork, len(reqs))
	sigByKey := make(map[string]string, len(reqs))
	for _, req := range reqs {
		sig := Signature(req.LogText, req.StackTrace)
		sigByKey[req.Key] = sig
		if _, ok := sigs[sig]; !ok {
			sigs[sig] = sigWork{logText: req.LogText, stackTrace: req.StackTrace}
		}
	}

	stats := Stats{Calls: len(sigs), CacheHits: len(reqs) - len(sigs)}

	var mu sync.Mutex
	bySig := make(map[string]Classification, len(sigs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for sig, work := range sigs {
		g.Go(func() error {
			cls, fellBack := r.classifyOne(gctx, work.logText, work.stackTrace)
			mu.Lock()
			bySig[sig] = cls
			if fellBack {
				stats.Fallbacks++
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}

	out := make(map[string]Classification, len(reqs))
	for _, req := range reqs {
		cls := bySig[sigByKey[req.Key]]
		out[req.Key] = ApplyRules(cls, req.LogText+"\n"+req.StackTrace)
	}
	r.log.Info("classified failures",
		"requests", len(reqs), "calls", stats.Calls,
		"cache_hits", stats.CacheHits, "fallbacks", stats.Fallbacks)
	return out, stats, nil
}

// classifyOne calls the classifier with the retry budget. Transient errors
// back off multiplicatively; permanent errors and budget exhaustion yield
// the fallback.
func (r *Refiner) classifyOne(ctx context.Context, logText, stackTrace string) (Classification, bool) {
	if r.classifier == nil {
		return Fallback(), true
	}
	backoff := r.opts.BackoffBase
	for attempt := 0; ; attempt++ {
		cls, err := r.classifier.Classify(ctx, logText, stackTrace)
		if err == nil {
			cls.Source = SourceAI
			return cls, false
		}
		if !IsTransient(err) || attempt >= r.opts.Retries {
			r.log.Warn("classifier failed, using fallback",
				"attempts", attempt+1, "error", err)
			return Fallback(), true
		}
		r.log.Debug("classifier transient failure, retrying",
			"attempt", attempt+1, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return Fallback(), true
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
