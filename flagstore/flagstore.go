// Package flagstore implements the per-project {flag, memo} map (spec
// §4.H): load-all, save-all, upsert, remove, count-flagged, serialised per
// project by a single mutex.
package flagstore

import (
	"strings"
	"sync"

	"github.com/rowtriage/rowquery/flagkind"
)

// Entry is one row's manual classification. An empty Memo means "no memo".
type Entry struct {
	Flag flagkind.Kind
	Memo string
}

// isBlank reports whether e has neither a set flag nor a non-blank memo,
// i.e. whether it should be removed from the store rather than stored.
func (e Entry) isBlank() bool {
	return !e.Flag.IsSet() && strings.TrimSpace(e.Memo) == ""
}

// Backend persists a project's flag map wholesale; the JSON-file and SQLite
// backends in package persist implement it.
type Backend interface {
	LoadFlags(project string) (map[int]Entry, error)
	SaveFlags(project string, flags map[int]Entry) error
}

type memoryBackend struct {
	mu    sync.Mutex
	flags map[string]map[int]Entry
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{flags: make(map[string]map[int]Entry)}
}

func (b *memoryBackend) LoadFlags(project string) (map[int]Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneEntries(b.flags[project]), nil
}

func (b *memoryBackend) SaveFlags(project string, flags map[int]Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flags[project] = cloneEntries(flags)
	return nil
}

func cloneEntries(m map[int]Entry) map[int]Entry {
	if m == nil {
		return nil
	}
	out := make(map[int]Entry, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store is a per-project row-position -> Entry map. Each project's state is
// guarded by its own mutex so one project's mutation never blocks another,
// matching spec §4.H and §5.
type Store struct {
	mu       sync.Mutex
	backend  Backend
	projects map[string]*projectFlags
}

type projectFlags struct {
	mu      sync.Mutex
	entries map[int]Entry
	loaded  bool
}

// NewStore builds a Store backed by backend. A nil backend uses an
// in-memory default.
func NewStore(backend Backend) *Store {
	if backend == nil {
		backend = newMemoryBackend()
	}
	return &Store{backend: backend, projects: make(map[string]*projectFlags)}
}

func (s *Store) projectState(project string) *projectFlags {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[project]
	if !ok {
		p = &projectFlags{}
		s.projects[project] = p
	}
	return p
}

func (s *Store) ensureLoaded(p *projectFlags, project string) error {
	if p.loaded {
		return nil
	}
	entries, err := s.backend.LoadFlags(project)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = make(map[int]Entry)
	}
	p.entries = entries
	p.loaded = true
	return nil
}

// LoadAll returns a copy of project's full flag map.
func (s *Store) LoadAll(project string) (map[int]Entry, error) {
	p := s.projectState(project)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := s.ensureLoaded(p, project); err != nil {
		return nil, err
	}
	return cloneEntries(p.entries), nil
}

// SaveAll replaces project's flag map wholesale.
func (s *Store) SaveAll(project string, entries map[int]Entry) error {
	p := s.projectState(project)
	p.mu.Lock()
	defer p.mu.Unlock()
	normalized := make(map[int]Entry, len(entries))
	for row, e := range entries {
		e.Flag = flagkind.Normalize(string(e.Flag))
		e.Memo = strings.TrimSpace(e.Memo)
		if e.isBlank() {
			continue
		}
		normalized[row] = e
	}
	if err := s.backend.SaveFlags(project, normalized); err != nil {
		return err
	}
	p.entries = normalized
	p.loaded = true
	return nil
}

// Upsert sets row's entry to {flag, memo} after normalising and trimming,
// or removes it if both are blank. It returns the stored entry (zero value
// if removed).
func (s *Store) Upsert(project string, row int, flag flagkind.Kind, memo string) (Entry, error) {
	p := s.projectState(project)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := s.ensureLoaded(p, project); err != nil {
		return Entry{}, err
	}
	entry := Entry{Flag: flagkind.Normalize(string(flag)), Memo: strings.TrimSpace(memo)}
	if entry.isBlank() {
		delete(p.entries, row)
		entry = Entry{}
	} else {
		p.entries[row] = entry
	}
	if err := s.backend.SaveFlags(project, p.entries); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Remove deletes row's entry, if any.
func (s *Store) Remove(project string, row int) error {
	p := s.projectState(project)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := s.ensureLoaded(p, project); err != nil {
		return err
	}
	delete(p.entries, row)
	return s.backend.SaveFlags(project, p.entries)
}

// Get returns row's entry and whether one exists.
func (s *Store) Get(project string, row int) (Entry, bool, error) {
	p := s.projectState(project)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := s.ensureLoaded(p, project); err != nil {
		return Entry{}, false, err
	}
	e, ok := p.entries[row]
	return e, ok, nil
}

// CountFlagged returns the number of rows with a non-None flag.
func (s *Store) CountFlagged(project string) (int, error) {
	p := s.projectState(project)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := s.ensureLoaded(p, project); err != nil {
		return 0, err
	}
	count := 0
	for _, e := range p.entries {
		if e.Flag.IsSet() {
			count++
		}
	}
	return count, nil
}
