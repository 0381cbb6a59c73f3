// Package ioc implements the Indicator-of-Compromise rule store: the
// normalised rule shape, CSV import/export, and an in-process store
// replaced wholesale on save/import (spec §3, §4.H naming conventions
// extended to IOC rules).
package ioc

import (
	"sort"
	"strings"
	"sync"

	"github.com/rowtriage/rowquery/flagkind"
)

// Rule is a single IOC rule: rows matching Query are flagged Flag, and Tag
// (if non-empty) is appended to the row's memo as "[tag]" on match.
type Rule struct {
	Flag  flagkind.Kind
	Tag   string
	Query string
}

// Normalize trims Tag/Query, normalises Flag, drops rules whose Query trims
// to empty, and stably sorts the remainder by Tag. This mirrors
// prepare_ioc_entries in the original implementation.
func Normalize(rules []Rule) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		r.Flag = flagkind.Normalize(string(r.Flag))
		r.Tag = strings.TrimSpace(r.Tag)
		r.Query = strings.TrimSpace(r.Query)
		if r.Query == "" {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Tag < out[j].Tag
	})
	return out
}

// BySeverityDesc returns a copy of rules sorted by descending severity
// rank, ties broken by original order (spec §4.F step 7).
func BySeverityDesc(rules []Rule) []Rule {
	out := append([]Rule(nil), rules...)
	sort.SliceStable(out, func(i, j int) bool {
		return flagkind.Rank(out[i].Flag) > flagkind.Rank(out[j].Flag)
	})
	return out
}

// Backend persists a project's rule set wholesale; the JSON-file and
// SQLite backends in package persist implement it.
type Backend interface {
	LoadRules(project string) ([]Rule, error)
	SaveRules(project string, rules []Rule) error
}

// memoryBackend is the default in-process Backend, used when a project has
// no durable backend configured.
type memoryBackend struct {
	mu    sync.Mutex
	rules map[string][]Rule
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{rules: make(map[string][]Rule)}
}

func (b *memoryBackend) LoadRules(project string) ([]Rule, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Rule(nil), b.rules[project]...), nil
}

func (b *memoryBackend) SaveRules(project string, rules []Rule) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rules[project] = append([]Rule(nil), rules...)
	return nil
}

// Store is a per-project IOC rule store. Concurrent access is serialised by
// a single mutex, matching flagstore.Store and spec §4.H's concurrency note.
type Store struct {
	mu      sync.Mutex
	backend Backend
	rules   map[string][]Rule
}

// NewStore builds a Store backed by backend. A nil backend uses an
// in-memory default.
func NewStore(backend Backend) *Store {
	if backend == nil {
		backend = newMemoryBackend()
	}
	return &Store{backend: backend, rules: make(map[string][]Rule)}
}

// Load returns the normalised rule set for project, loading from the
// backend on first access.
func (s *Store) Load(project string) ([]Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rules, ok := s.rules[project]; ok {
		return append([]Rule(nil), rules...), nil
	}
	rules, err := s.backend.LoadRules(project)
	if err != nil {
		return nil, err
	}
	rules = Normalize(rules)
	s.rules[project] = rules
	return append([]Rule(nil), rules...), nil
}

// Save replaces project's rule set wholesale, normalising first.
func (s *Store) Save(project string, rules []Rule) error {
	normalized := Normalize(rules)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.SaveRules(project, normalized); err != nil {
		return err
	}
	s.rules[project] = normalized
	return nil
}
