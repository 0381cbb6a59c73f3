// Package rowcache implements the two per-project caches the row-query
// engine rebuilds lazily and invalidates coarsely (spec §4.G): the
// lowercase row-text vector and the resolved IOC flag vector. Both are
// guarded by their own mutex and validated purely by length against the
// table's row count; there is no incremental recomputation.
package rowcache

import (
	"sync"

	"github.com/rowtriage/rowquery/flagkind"
)

// RowTextBackend optionally persists the row-text cache so a process
// restart can skip the rebuild; a nil backend keeps the cache purely
// in-memory, which spec §4.G calls equally valid.
type RowTextBackend interface {
	LoadRowText(project string) ([]string, bool, error)
	SaveRowText(project string, vec []string) error
}

// RowTextCache holds one lowercase row-text vector per project.
type RowTextCache struct {
	mu      sync.Mutex
	backend RowTextBackend
	vectors map[string][]string
}

// NewRowTextCache builds a RowTextCache. A nil backend disables
// persistence.
func NewRowTextCache(backend RowTextBackend) *RowTextCache {
	return &RowTextCache{backend: backend, vectors: make(map[string][]string)}
}

// Get returns project's cached vector if it is valid for n rows (length
// equals n and the vector is non-trivial), else ok=false.
func (c *RowTextCache) Get(project string, n int) (vec []string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vec, found := c.vectors[project]
	if found && len(vec) == n && n > 0 {
		return vec, true
	}
	if !found && c.backend != nil {
		loaded, exists, err := c.backend.LoadRowText(project)
		if err == nil && exists && len(loaded) == n && n > 0 {
			c.vectors[project] = loaded
			return loaded, true
		}
	}
	return nil, false
}

// Put installs vec as project's cached row-text vector, persisting it if a
// backend is configured.
func (c *RowTextCache) Put(project string, vec []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vectors[project] = vec
	if c.backend != nil {
		_ = c.backend.SaveRowText(project, vec)
	}
}

// Invalidate drops project's cached row-text vector (hidden-columns change
// or project deletion).
func (c *RowTextCache) Invalidate(project string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.vectors, project)
	if c.backend != nil {
		// Overwrite the persisted copy so Get cannot reload the stale vector.
		_ = c.backend.SaveRowText(project, nil)
	}
}

// IocFlagBackend optionally persists the IOC flag cache.
type IocFlagBackend interface {
	LoadIocFlags(project string) ([]flagkind.Kind, bool, error)
	SaveIocFlags(project string, vec []flagkind.Kind) error
}

// IocFlagCache holds one resolved IOC flag vector per project.
type IocFlagCache struct {
	mu      sync.Mutex
	backend IocFlagBackend
	vectors map[string][]flagkind.Kind
}

// NewIocFlagCache builds an IocFlagCache. A nil backend disables
// persistence.
func NewIocFlagCache(backend IocFlagBackend) *IocFlagCache {
	return &IocFlagCache{backend: backend, vectors: make(map[string][]flagkind.Kind)}
}

// Get returns project's cached vector if it is valid for n rows (length
// equals n), else ok=false.
func (c *IocFlagCache) Get(project string, n int) (vec []flagkind.Kind, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vec, found := c.vectors[project]
	if found && len(vec) == n {
		return vec, true
	}
	if !found && c.backend != nil {
		loaded, exists, err := c.backend.LoadIocFlags(project)
		if err == nil && exists && len(loaded) == n {
			c.vectors[project] = loaded
			return loaded, true
		}
	}
	return nil, false
}

// Put installs vec as project's cached IOC flag vector.
func (c *IocFlagCache) Put(project string, vec []flagkind.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vectors[project] = vec
	if c.backend != nil {
		_ = c.backend.SaveIocFlags(project, vec)
	}
}

// Invalidate drops project's cached IOC flag vector (any IOC rule mutation
// or project deletion).
func (c *IocFlagCache) Invalidate(project string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.vectors, project)
	if c.backend != nil {
		// Overwrite the persisted copy so Get cannot reload the stale vector.
		_ = c.backend.SaveIocFlags(project, nil)
	}
}
