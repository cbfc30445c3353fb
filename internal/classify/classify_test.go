package classify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeClassifier struct {
	calls  atomic.Int64
	result Classification
	errs   []error // consumed per call before result is returned
}

func (f *fakeClassifier) Classify(_ context.Context, _, _ string) (Classification, error) {
	n := f.calls.Add(1)
	if int(n) <= len(f.errs) {
		return Classification{}, f.errs[n-1]
	}
	return f.result, nil
}

type transientErr struct{ msg string }

func (e transientErr) Error() string   { return e.msg }
func (e transientErr) Transient() bool { return true }

func opts() Options {
	return Options{Retries: 2, BackoffBase: time.Millisecond, Concurrency: 4}
}

func TestSignaturePlaceholders(t *testing.T) {
	cases := []struct {
		name string
		a, b string
	}{
		{"urls", "GET https://api.host-a.example/v1 failed", "GET https://other.example:8443/v2 failed"},
		{"uuids", "entity 9e89361b-578b-4773-a66b-4d656ee2e98e missing", "entity 11111111-2222-3333-4444-555555555555 missing"},
		{"durations", "not loaded even after 40.431 seconds", "not loaded even after 12 seconds"},
		{"numeric ids", "account 1234567890 rejected", "account 9988776655 rejected"},
		{"emails", "user alice@example.com not found", "user bob@corp.example.org not found"},
		{"times", "deadline passed at 22:45:43", "deadline passed at 09:01"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sa, sb := Signature(tc.a, ""), Signature(tc.b, "")
			if sa != sb {
				t.Errorf("signatures differ:\n a: %q\n b: %q", sa, sb)
			}
		})
	}
}

func TestSignatureMissingKeysCanonical(t *testing.T) {
	a := Signature("API Name: GetAmlSearch, Missing Keys: [uuid, reason, decision]", "")
	b := Signature("Actual JSON doesn't contain all expected keys. Expected has: '[other, keys]'", "")
	if a != b {
		t.Errorf("missing-keys variants not grouped:\n a: %q\n b: %q", a, b)
	}
}

func TestSignatureCapped(t *testing.T) {
	long := make([]byte, 0, 2048)
	for i := 0; i < 2048; i++ {
		long = append(long, 'x')
	}
	if got := len(Signature(string(long), "")); got > signatureMaxLen {
		t.Errorf("signature length = %d, want <= %d", got, signatureMaxLen)
	}
}

func TestClassifyBatchDedup(t *testing.T) {
	fc := &fakeClassifier{result: Classification{
		Level1: AutomationIssue, Level2: Timeout, Confidence: High,
		RootCause: "'LoginPage' NOT loaded even after 40 seconds",
	}}
	r := NewRefiner(fc, opts(), nil)

	// Two failures whose logs differ only in dynamic values share one call.
	reqs := []Request{
		{Key: "a.Cls.t1", LogText: "'LoginPage' not loaded even after 40.1 seconds"},
		{Key: "a.Cls.t2", LogText: "'LoginPage' not loaded even after 39.7 seconds"},
	}
	out, stats, err := r.ClassifyBatch(context.Background(), reqs)
	if err != nil {
		t.Fatalf("ClassifyBatch: %v", err)
	}
	if fc.calls.Load() != 1 {
		t.Errorf("classifier calls = %d, want 1", fc.calls.Load())
	}
	if stats.Calls != 1 || stats.CacheHits != 1 {
		t.Errorf("stats = %+v, want 1 call 1 cache hit", stats)
	}
	if diff := cmp.Diff(out["a.Cls.t1"], out["a.Cls.t2"]); diff != "" {
		t.Errorf("deduped results differ:\n%s", diff)
	}
}

func TestClassifyBatchRetriesTransient(t *testing.T) {
	fc := &fakeClassifier{
		errs:   []error{transientErr{"503"}, transientErr{"503 again"}},
		result: Classification{Level1: ProductBug, Level2: AssertionFailure, Confidence: High},
	}
	r := NewRefiner(fc, opts(), nil)
	out, stats, err := r.ClassifyBatch(context.Background(),
		[]Request{{Key: "k", LogText: "expected [201] but actual [500]"}})
	if err != nil {
		t.Fatalf("ClassifyBatch: %v", err)
	}
	if fc.calls.Load() != 3 {
		t.Errorf("calls = %d, want 3 (two retries)", fc.calls.Load())
	}
	if stats.Fallbacks != 0 {
		t.Errorf("fallbacks = %d, want 0", stats.Fallbacks)
	}
	if out["k"].Level2 != AssertionFailure {
		t.Errorf("level2 = %s, want ASSERTION_FAILURE", out["k"].Level2)
	}
}

func TestClassifyBatchPermanentErrorFallsBack(t *testing.T) {
	fc := &fakeClassifier{errs: []error{errors.New("400 bad request")}}
	r := NewRefiner(fc, opts(), nil)
	out, stats, err := r.ClassifyBatch(context.Background(),
		[]Request{{Key: "k", LogText: "boom"}})
	if err != nil {
		t.Fatalf("ClassifyBatch: %v", err)
	}
	if fc.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on permanent)", fc.calls.Load())
	}
	if stats.Fallbacks != 1 {
		t.Errorf("fallbacks = %d, want 1", stats.Fallbacks)
	}
	got := out["k"]
	if got.Level1 != AutomationIssue || got.Level2 != Other || got.Confidence != Low {
		t.Errorf("fallback = %+v", got)
	}
}

func TestClassifyBatchNilClassifierDegrades(t *testing.T) {
	r := NewRefiner(nil, opts(), nil)
	out, stats, err := r.ClassifyBatch(context.Background(),
		[]Request{{Key: "k", LogText: "anything"}})
	if err != nil {
		t.Fatalf("ClassifyBatch: %v", err)
	}
	if stats.Fallbacks != 1 {
		t.Errorf("fallbacks = %d, want 1", stats.Fallbacks)
	}
	if out["k"].Level2 != Other {
		t.Errorf("level2 = %s, want OTHER", out["k"].Level2)
	}
}

func TestApplyRulesAssertionInvariant(t *testing.T) {
	// Whatever Level1 the classifier proposed, a surviving
	// ASSERTION_FAILURE category forces PRODUCT_BUG.
	in := Classification{
		Level1: AutomationIssue, Level2: AssertionFailure, Confidence: High,
		RootCause: "Expected 'ACTIVE' was :-'FROZEN'. But actual is 'CLOSED'",
		Source:    SourceAI,
	}
	got := ApplyRules(in, "expected ACTIVE but actual CLOSED")
	if got.Level1 != ProductBug {
		t.Errorf("level1 = %s, want PRODUCT_BUG", got.Level1)
	}
	if got.Level2 != AssertionFailure {
		t.Errorf("level2 = %s, want ASSERTION_FAILURE kept", got.Level2)
	}
}

func TestApplyRulesTable(t *testing.T) {
	cases := []struct {
		name     string
		in       Classification
		logText  string
		want     Level2
		override bool
	}{
		{
			name:     "click intercepted beats AI label",
			in:       Classification{Level1: AutomationIssue, Level2: Other, Source: SourceAI},
			logText:  "org.openqa.selenium.ElementClickInterceptedException: element click intercepted",
			want:     ElementNotFound,
			override: true,
		},
		{
			name:     "page load timeout",
			in:       Classification{Level1: AutomationIssue, Level2: Other, Source: SourceAI},
			logText:  "'DashReviewPage' NOT loaded even after :- 40.071 seconds",
			want:     Timeout,
			override: true,
		},
		{
			name:     "stale element is a locator failure",
			in:       Classification{Level1: AutomationIssue, Level2: Other, Source: SourceAI},
			logText:  "StaleElementReferenceException: stale element reference",
			want:     ElementNotFound,
			override: true,
		},
		{
			name:     "illegal argument",
			in:       Classification{Level1: AutomationIssue, Level2: Other, Source: SourceAI},
			logText:  "java.lang.IllegalArgumentException: bound must be positive",
			want:     ElementNotFound,
			override: true,
		},
		{
			name:     "timeout without page pattern filtered to OTHER",
			in:       Classification{Level1: AutomationIssue, Level2: Timeout, Source: SourceAI},
			logText:  "socket read timed out after handshake",
			want:     Other,
			override: true,
		},
		{
			name:     "assertion without assertion text filtered to OTHER",
			in:       Classification{Level1: ProductBug, Level2: AssertionFailure, Source: SourceAI},
			logText:  "process exited unexpectedly",
			want:     Other,
			override: true,
		},
		{
			name:     "network issue folded into environment",
			in:       Classification{Level1: AutomationIssue, Level2: Level2("NETWORK_ISSUE"), Source: SourceAI},
			logText:  "connection refused by gateway host",
			want:     EnvironmentIssue,
			override: false,
		},
		{
			name:     "clean classification untouched",
			in:       Classification{Level1: ProductBug, Level2: AssertionFailure, Source: SourceAI},
			logText:  "expected balance 100 but actual balance 90",
			want:     AssertionFailure,
			override: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ApplyRules(tc.in, tc.logText)
			if got.Level2 != tc.want {
				t.Errorf("level2 = %s, want %s", got.Level2, tc.want)
			}
			wantSource := SourceAI
			if tc.override {
				wantSource = SourceRuleOverride
			}
			if got.Source != wantSource {
				t.Errorf("source = %s, want %s", got.Source, wantSource)
			}
		})
	}
}
