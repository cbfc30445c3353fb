package store

import (
	"context"
	"strings"
	"sync"
)

// MemStore is an in-memory Store used by tests and the batch pipeline's
// unit fixtures. Behaviour mirrors SqlStore, including suffix matching in
// FetchHistory and newest-first build ordering in BuildStats.
type MemStore struct {
	mu     sync.Mutex
	nextID int64
	rows   []ExecutionRecord
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{nextID: 1}
}

func (m *MemStore) Close() error { return nil }

func (m *MemStore) InsertExecution(_ context.Context, rec *ExecutionRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := *rec
	r.ID = m.nextID
	if r.CreatedAt == "" {
		r.CreatedAt = nowUTC()
	}
	m.nextID++
	m.rows = append(m.rows, r)
	return r.ID, nil
}

func (m *MemStore) FetchExecutionRecords(_ context.Context, buildTag, testNameFilter string) ([]ExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []ExecutionRecord
	for _, r := range m.rows {
		if r.BuildTag != buildTag {
			continue
		}
		if testNameFilter != "" && r.TestName != testNameFilter {
			continue
		}
		list = append(list, r)
	}
	return list, nil
}

func (m *MemStore) FetchHistory(_ context.Context, queryName string, window int) (History, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lower := strings.ToLower(queryName)

	var matched []ExecutionRecord
	for _, r := range m.rows {
		name := strings.ToLower(r.TestName)
		if name == lower || strings.HasSuffix(name, "."+lower) {
			matched = append(matched, r)
		}
	}
	if len(matched) > window {
		matched = matched[len(matched)-window:]
	}

	hist := make(History, 0, len(matched))
	for _, r := range matched {
		hist = append(hist, HistoryEntry{
			BuildTag:      r.BuildTag,
			Status:        r.Status,
			FailureReason: r.FailureReason,
			CreatedAt:     r.CreatedAt,
		})
	}
	return hist, nil
}

func (m *MemStore) BuildStats(_ context.Context, limit int) ([]BuildStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byTag := make(map[string]*BuildStat)
	var order []string // by last-seen row, oldest first
	for _, r := range m.rows {
		if r.BuildTag == "" {
			continue
		}
		stat, ok := byTag[r.BuildTag]
		if !ok {
			stat = &BuildStat{BuildTag: r.BuildTag}
			byTag[r.BuildTag] = stat
		} else {
			// re-append so order reflects the newest row per tag
			for i, tag := range order {
				if tag == r.BuildTag {
					order = append(order[:i], order[i+1:]...)
					break
				}
			}
		}
		order = append(order, r.BuildTag)
		stat.Total++
		if r.Status == StatusPass {
			stat.Passed++
		}
	}

	if len(order) > limit {
		order = order[len(order)-limit:]
	}
	stats := make([]BuildStat, 0, len(order))
	for _, tag := range order {
		stats = append(stats, *byTag[tag])
	}
	return stats, nil
}
