package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s Store, buildTag, name string, status Status, reason string) {
	t.Helper()
	_, err := s.InsertExecution(context.Background(), &ExecutionRecord{
		BuildTag:      buildTag,
		TestName:      name,
		Status:        status,
		FailureReason: reason,
	})
	require.NoError(t, err)
}

// storeUnderTest runs the same assertions against SqlStore and MemStore.
func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	sqls, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqls.Close() })
	return map[string]Store{
		"sqlite": sqls,
		"mem":    NewMemStore(),
	}
}

func TestFetchExecutionRecords_ByBuild(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s, "Regression-Growth-41", "pkg.Cls.testA", StatusPass, "")
			seed(t, s, "Regression-Growth-41", "pkg.Cls.testB", StatusFail, "boom")
			seed(t, s, "Regression-Growth-42", "pkg.Cls.testA", StatusFail, "later build")

			recs, err := s.FetchExecutionRecords(context.Background(), "Regression-Growth-41", "")
			require.NoError(t, err)
			require.Len(t, recs, 2)
			assert.Equal(t, "pkg.Cls.testA", recs[0].TestName)
			assert.Equal(t, StatusFail, recs[1].Status)
			assert.Equal(t, "boom", recs[1].FailureReason)
		})
	}
}

func TestFetchExecutionRecords_NameFilter(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s, "b1", "pkg.Cls.testA", StatusPass, "")
			seed(t, s, "b1", "pkg.Cls.testB", StatusFail, "boom")

			recs, err := s.FetchExecutionRecords(context.Background(), "b1", "pkg.Cls.testB")
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, "pkg.Cls.testB", recs[0].TestName)
		})
	}
}

func TestFetchHistory_SuffixMatchAndOrder(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			// Stored under the full package path; queried by Class.method.
			seed(t, s, "b1", "suites.api.Cls.testX", StatusFail, "first")
			seed(t, s, "b2", "suites.api.Cls.testX", StatusPass, "")
			seed(t, s, "b3", "suites.api.Cls.testX", StatusFail, "third")
			seed(t, s, "b3", "suites.api.Cls.testOther", StatusFail, "unrelated")

			hist, err := s.FetchHistory(context.Background(), "Cls.testX", 10)
			require.NoError(t, err)
			require.Len(t, hist, 3)
			// Oldest to newest.
			assert.Equal(t, "b1", hist[0].BuildTag)
			assert.Equal(t, "b3", hist[2].BuildTag)
			assert.Equal(t, StatusPass, hist[1].Status)
		})
	}
}

func TestFetchHistory_WindowBound(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 15; i++ {
				status := StatusPass
				if i >= 12 {
					status = StatusFail
				}
				seed(t, s, "b", "Cls.testY", status, "")
			}
			hist, err := s.FetchHistory(context.Background(), "Cls.testY", 10)
			require.NoError(t, err)
			require.Len(t, hist, 10)
			// The 3 newest entries are failures and must be last.
			assert.Equal(t, StatusFail, hist[9].Status)
			assert.Equal(t, StatusFail, hist[8].Status)
			assert.Equal(t, StatusFail, hist[7].Status)
			assert.Equal(t, StatusPass, hist[6].Status)
		})
	}
}

func TestFetchHistory_UnderscoreMatchesLiterally(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			// "_" in a method name must not act as a single-character
			// wildcard and pull in near-collision names.
			seed(t, s, "b1", "suites.api.Cls.test_pay", StatusFail, "real")
			seed(t, s, "b2", "suites.api.Cls.testXpay", StatusFail, "collision")

			hist, err := s.FetchHistory(context.Background(), "Cls.test_pay", 10)
			require.NoError(t, err)
			require.Len(t, hist, 1)
			assert.Equal(t, "real", hist[0].FailureReason)
		})
	}
}

func TestFetchHistory_CaseInsensitive(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s, "b", "suites.Cls.TestMixed", StatusFail, "")
			hist, err := s.FetchHistory(context.Background(), "cls.testmixed", 10)
			require.NoError(t, err)
			assert.Len(t, hist, 1)
		})
	}
}

func TestBuildStats_OrderAndRates(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s, "build-1", "a.t1", StatusPass, "")
			seed(t, s, "build-1", "a.t2", StatusFail, "x")
			seed(t, s, "build-2", "a.t1", StatusPass, "")
			seed(t, s, "build-2", "a.t2", StatusPass, "")

			stats, err := s.BuildStats(context.Background(), 10)
			require.NoError(t, err)
			require.Len(t, stats, 2)
			assert.Equal(t, "build-1", stats[0].BuildTag)
			assert.Equal(t, "build-2", stats[1].BuildTag)
			assert.InDelta(t, 50.0, stats[0].PassRate(), 0.01)
			assert.InDelta(t, 100.0, stats[1].PassRate(), 0.01)
		})
	}
}

func TestParseStatus(t *testing.T) {
	cases := []struct {
		in    string
		want  Status
		known bool
	}{
		{"PASS", StatusPass, true},
		{"passed ", StatusPass, true},
		{"SUCCESS", StatusPass, true},
		{"FAIL", StatusFail, true},
		{"Failed", StatusFail, true},
		{"ERROR", StatusFail, true},
		{"skipped", StatusSkip, true},
		{"wibble", StatusPass, false},
	}
	for _, tc := range cases {
		got, known := ParseStatus(tc.in)
		assert.Equal(t, tc.want, got, "ParseStatus(%q)", tc.in)
		assert.Equal(t, tc.known, known, "ParseStatus(%q) known flag", tc.in)
	}
}
