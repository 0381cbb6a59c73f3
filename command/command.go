// Package command implements the typed request/response layer for the six
// shell-facing commands (spec §6): validation via struct tags and a
// Dispatcher that wires a project.Registry to a rowengine.Engine. This is
// the boundary a CLI, RPC bridge, or HTTP handler calls directly, analogous
// to the teacher's clientserver/protocol message dispatch but synchronous
// and in-process.
package command

import (
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/rowtriage/rowquery/flagkind"
	"github.com/rowtriage/rowquery/ioc"
	"github.com/rowtriage/rowquery/project"
	"github.com/rowtriage/rowquery/rowengine"
)

var validate = validator.New()

// QueryRowsRequest is the query_rows command input (spec §6).
type QueryRowsRequest struct {
	Project       string   `validate:"required"`
	Search        string
	SearchColumns []string
	FlagFilter    string `validate:"omitempty,oneof=all none priority safe suspicious critical"`
	SortKey       string
	SortDesc      bool
	Offset        int  `validate:"gte=0"`
	// Limit is nil when omitted; an explicit value (including 0) is
	// validated but left to rowengine to floor at 1 rather than default to
	// 250 (spec.md §6).
	Limit *int `validate:"omitempty,gte=0"`
}

func (r QueryRowsRequest) Validate() error {
	return validate.Struct(r)
}

// UpdateFlagRequest is the update_flag command input (spec §6).
type UpdateFlagRequest struct {
	Project string `validate:"required"`
	Row     int    `validate:"gte=0"`
	Flag    string `validate:"omitempty,oneof=safe suspicious critical"`
	Memo    string
}

func (r UpdateFlagRequest) Validate() error {
	return validate.Struct(r)
}

// SaveIOCsRequest is the save_iocs command input (spec §6).
type SaveIOCsRequest struct {
	Project string `validate:"required"`
	Entries []ioc.Rule
}

func (r SaveIOCsRequest) Validate() error {
	return validate.Struct(r)
}

// ImportIOCsRequest is the import_iocs command input (spec §6).
type ImportIOCsRequest struct {
	Project string
	Source  io.Reader
}

func (r ImportIOCsRequest) Validate() error {
	if r.Project == "" {
		return errors.New("project is required")
	}
	if r.Source == nil {
		return errors.New("source is required")
	}
	return nil
}

// ExportIOCsRequest is the export_iocs command input (spec §6).
type ExportIOCsRequest struct {
	Project     string
	Destination io.Writer
}

func (r ExportIOCsRequest) Validate() error {
	if r.Project == "" {
		return errors.New("project is required")
	}
	if r.Destination == nil {
		return errors.New("destination is required")
	}
	return nil
}

// SetHiddenColumnsRequest is the set_hidden_columns command input (spec §6).
type SetHiddenColumnsRequest struct {
	Project       string `validate:"required"`
	HiddenColumns []string
}

func (r SetHiddenColumnsRequest) Validate() error {
	return validate.Struct(r)
}

// Dispatcher wires a project.Registry and a rowengine.Engine into one
// method per command, each validating its request before touching either.
type Dispatcher struct {
	registry *project.Registry
	engine   *rowengine.Engine
}

// NewDispatcher builds a Dispatcher over registry and engine.
func NewDispatcher(registry *project.Registry, engine *rowengine.Engine) *Dispatcher {
	return &Dispatcher{registry: registry, engine: engine}
}

func (d *Dispatcher) lookup(id string) (*project.State, error) {
	state, ok := d.registry.Get(id)
	if !ok {
		return nil, errors.Errorf("unknown project %q", id)
	}
	return state, nil
}

// QueryRows validates req and runs the query pipeline.
func (d *Dispatcher) QueryRows(req QueryRowsRequest) (rowengine.Response, error) {
	if err := req.Validate(); err != nil {
		return rowengine.Response{}, err
	}
	state, err := d.lookup(req.Project)
	if err != nil {
		return rowengine.Response{}, err
	}
	return d.engine.QueryRows(state.View(), rowengine.Request{
		Search:        req.Search,
		SearchColumns: req.SearchColumns,
		FlagFilter:    req.FlagFilter,
		SortKey:       req.SortKey,
		SortDesc:      req.SortDesc,
		Offset:        req.Offset,
		Limit:         req.Limit,
	})
}

// UpdateFlag validates req and applies a manual flag/memo change.
func (d *Dispatcher) UpdateFlag(req UpdateFlagRequest) (rowengine.Record, error) {
	if err := req.Validate(); err != nil {
		return rowengine.Record{}, err
	}
	state, err := d.lookup(req.Project)
	if err != nil {
		return rowengine.Record{}, err
	}
	record, counters, err := d.engine.UpdateFlag(state.View(), req.Row, flagkind.Normalize(req.Flag), req.Memo)
	if err != nil {
		return rowengine.Record{}, err
	}
	d.registry.SetCounters(req.Project, counters)
	return record, nil
}

// SaveIOCs validates req and replaces the project's IOC rule set.
func (d *Dispatcher) SaveIOCs(req SaveIOCsRequest) ([]ioc.Rule, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	state, err := d.lookup(req.Project)
	if err != nil {
		return nil, err
	}
	rules, counters, err := d.engine.SaveIOCs(state.View(), req.Entries)
	if err != nil {
		return nil, err
	}
	d.registry.SetCounters(req.Project, counters)
	return rules, nil
}

// ImportIOCs validates req, reads CSV rules from its source, and saves them.
func (d *Dispatcher) ImportIOCs(req ImportIOCsRequest) ([]ioc.Rule, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	state, err := d.lookup(req.Project)
	if err != nil {
		return nil, err
	}
	rules, counters, err := d.engine.ImportIOCs(state.View(), req.Source)
	if err != nil {
		return nil, err
	}
	d.registry.SetCounters(req.Project, counters)
	return rules, nil
}

// ExportIOCs validates req and writes the project's IOC rules as CSV.
func (d *Dispatcher) ExportIOCs(req ExportIOCsRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	state, err := d.lookup(req.Project)
	if err != nil {
		return err
	}
	return d.engine.ExportIOCs(state.View(), req.Destination)
}

// SetHiddenColumns validates req and narrows the project's default search
// scope, invalidating the row-text cache.
func (d *Dispatcher) SetHiddenColumns(req SetHiddenColumnsRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	state, ok := d.registry.SetHiddenColumns(req.Project, req.HiddenColumns)
	if !ok {
		return errors.Errorf("unknown project %q", req.Project)
	}
	d.engine.SetHiddenColumns(state.View())
	return nil
}
