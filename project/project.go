// Package project implements the project registry (spec §4.F component I,
// SPEC_FULL §4.I): the in-process container mapping a project id to its
// table handle, stores, caches, and derived metadata counters.
package project

import (
	"sync"

	"github.com/rowtriage/rowquery/columnmetrics"
	"github.com/rowtriage/rowquery/flagstore"
	"github.com/rowtriage/rowquery/ioc"
	"github.com/rowtriage/rowquery/rowcache"
	"github.com/rowtriage/rowquery/rowengine"
	"github.com/rowtriage/rowquery/table"
)

// State is one project's bound-together dependencies and metadata.
type State struct {
	ID            string
	Table         table.Table
	Flags         *flagstore.Store
	Iocs          *ioc.Store
	RowText       *rowcache.RowTextCache
	IocFlags      *rowcache.IocFlagCache
	ColumnMetrics *columnmetrics.Store
	ColumnWidths  map[string]int
	HiddenColumns []string
	Counters      rowengine.Counters
}

// View builds the rowengine.View this state currently describes.
func (s *State) View() rowengine.View {
	return rowengine.View{
		ID:            s.ID,
		Table:         s.Table,
		Flags:         s.Flags,
		Iocs:          s.Iocs,
		RowText:       s.RowText,
		IocFlags:      s.IocFlags,
		HiddenColumns: s.HiddenColumns,
	}
}

// Registry holds one *State per project id behind a mutex-guarded map, so
// different projects never contend on each other's access (spec §5).
type Registry struct {
	mu       sync.RWMutex
	projects map[string]*State
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{projects: make(map[string]*State)}
}

// Register binds a project id to a table handle, creating fresh stores and
// caches unless shared ones are supplied. Migration-on-load (SPEC_FULL
// §10.2): if the flag store already has non-empty flagged rows for this id
// (e.g. restored from a JSON export) but flaggedRecords was reported as 0,
// the counter is recomputed once from the store instead of trusting the
// stale value.
//
// metrics supplies the column-width metrics store (spec.md's persisted
// "column-width metrics" artifact); a nil value uses an in-memory default.
// Register computes and persists the metrics immediately if they are not
// already present, mirroring commands.rs's load-or-compute-and-save step
// for column_max_chars.
func (r *Registry) Register(id string, tbl table.Table, flags *flagstore.Store, iocs *ioc.Store, metrics *columnmetrics.Store, flaggedRecords int) (*State, error) {
	if flags == nil {
		flags = flagstore.NewStore(nil)
	}
	if iocs == nil {
		iocs = ioc.NewStore(nil)
	}
	if metrics == nil {
		metrics = columnmetrics.NewStore(nil)
	}

	columnWidths, err := metrics.EnsureComputed(id, tbl)
	if err != nil {
		return nil, err
	}

	state := &State{
		ID:            id,
		Table:         tbl,
		Flags:         flags,
		Iocs:          iocs,
		RowText:       rowcache.NewRowTextCache(nil),
		IocFlags:      rowcache.NewIocFlagCache(nil),
		ColumnMetrics: metrics,
		ColumnWidths:  columnWidths,
		Counters:      rowengine.Counters{FlaggedRecords: flaggedRecords},
	}

	if flaggedRecords == 0 {
		count, err := flags.CountFlagged(id)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			state.Counters.FlaggedRecords = count
		}
	}

	r.mu.Lock()
	r.projects[id] = state
	r.mu.Unlock()
	return state, nil
}

// Get returns project id's state, or ok=false if it isn't registered.
func (r *Registry) Get(id string) (*State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.projects[id]
	return s, ok
}

// Remove drops project id's state, invalidating its caches first so no
// stale vector outlives the project (spec §4.G, "invalidated by ... project
// deletion").
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.projects[id]; ok {
		s.RowText.Invalidate(id)
		s.IocFlags.Invalidate(id)
	}
	delete(r.projects, id)
}

// SetHiddenColumns updates project id's hidden-column scope under the
// registry's metadata lock.
func (r *Registry) SetHiddenColumns(id string, hidden []string) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.projects[id]
	if !ok {
		return nil, false
	}
	s.HiddenColumns = append([]string(nil), hidden...)
	return s, true
}

// SetCounters updates project id's derived metadata counters under the
// registry's metadata lock.
func (r *Registry) SetCounters(id string, counters rowengine.Counters) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.projects[id]; ok {
		s.Counters = counters
	}
}
