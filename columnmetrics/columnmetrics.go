// Package columnmetrics implements the column-width metrics artifact named
// in spec.md's persisted-state layout: a column → max display chars map,
// computed once per project and cached alongside the other persisted
// artifacts (spec.md "Persisted state layout").
package columnmetrics

import (
	"sync"

	"github.com/rowtriage/rowquery/cellvalue"
	"github.com/rowtriage/rowquery/table"
)

// Compute derives project's column-width metrics: each column starts at
// its own header's rune length, then widens to the display length of the
// widest cell in that column. Mirrors compute_column_max_chars in
// storage.rs.
func Compute(tbl table.Table) map[string]int {
	cols := tbl.ColumnNames()
	n := tbl.RowCount()
	out := make(map[string]int, len(cols))
	for _, col := range cols {
		out[col] = len([]rune(col))
	}
	for _, col := range cols {
		for row := 0; row < n; row++ {
			value, ok := tbl.CellValue(col, row)
			if !ok {
				continue
			}
			if d := cellvalue.DisplayLength(value); d > out[col] {
				out[col] = d
			}
		}
	}
	return out
}

// Backend persists a project's column metrics wholesale; the JSON-file and
// SQLite backends in package persist implement it.
type Backend interface {
	LoadMetrics(project string) (map[string]int, bool, error)
	SaveMetrics(project string, metrics map[string]int) error
}

// memoryBackend is the default in-process Backend.
type memoryBackend struct {
	mu      sync.Mutex
	metrics map[string]map[string]int
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{metrics: make(map[string]map[string]int)}
}

func (b *memoryBackend) LoadMetrics(project string) (map[string]int, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.metrics[project]
	if !ok {
		return nil, false, nil
	}
	return cloneMetrics(m), true, nil
}

func (b *memoryBackend) SaveMetrics(project string, metrics map[string]int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics[project] = cloneMetrics(metrics)
	return nil
}

func cloneMetrics(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store is a per-project column-metrics cache backed by Backend.
type Store struct {
	mu      sync.Mutex
	backend Backend
	metrics map[string]map[string]int
}

// NewStore builds a Store backed by backend. A nil backend uses an
// in-memory default.
func NewStore(backend Backend) *Store {
	if backend == nil {
		backend = newMemoryBackend()
	}
	return &Store{backend: backend, metrics: make(map[string]map[string]int)}
}

// EnsureComputed returns project's column metrics, loading them from the
// backend if already persisted. If the backend has nothing yet, or the
// persisted map is missing a column tbl currently has (e.g. the table
// widened since the metrics were written), it recomputes from tbl and
// persists the result, mirroring the load-or-compute-and-save step in
// commands.rs's row-loading path.
func (s *Store) EnsureComputed(project string, tbl table.Table) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	metrics, ok := s.metrics[project]
	if !ok {
		loaded, exists, err := s.backend.LoadMetrics(project)
		if err != nil {
			return nil, err
		}
		if exists {
			metrics = loaded
		}
	}

	if metrics == nil || !coversColumns(metrics, tbl.ColumnNames()) {
		metrics = Compute(tbl)
		if err := s.backend.SaveMetrics(project, metrics); err != nil {
			return nil, err
		}
	}

	s.metrics[project] = metrics
	return cloneMetrics(metrics), nil
}

// Get returns project's cached column metrics without touching the
// backend or recomputing, or ok=false if EnsureComputed hasn't run yet.
func (s *Store) Get(project string) (map[string]int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.metrics[project]
	if !ok {
		return nil, false
	}
	return cloneMetrics(m), true
}

func coversColumns(metrics map[string]int, columns []string) bool {
	for _, col := range columns {
		if _, ok := metrics[col]; !ok {
			return false
		}
	}
	return true
}
