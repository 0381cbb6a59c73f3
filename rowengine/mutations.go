package rowengine

import (
	"io"

	"github.com/rowtriage/rowquery/flagkind"
	"github.com/rowtriage/rowquery/ioc"
)

// Counters mirrors the external project metadata registry's derived
// fields, recomputed after every mutation (SPEC_FULL §10.1).
type Counters struct {
	FlaggedRecords    int
	IocAppliedRecords int
}

func (e *Engine) recomputeCounters(view View) (Counters, error) {
	flagsMap, err := view.Flags.LoadAll(view.ID)
	if err != nil {
		return Counters{}, err
	}
	flagged, err := view.Flags.CountFlagged(view.ID)
	if err != nil {
		return Counters{}, err
	}
	rules, err := view.Iocs.Load(view.ID)
	if err != nil {
		return Counters{}, err
	}
	return Counters{
		FlaggedRecords:    flagged,
		IocAppliedRecords: countIocApplied(view.Table, rules, flagsMap),
	}, nil
}

// UpdateFlag upserts (or, if both flag and memo are blank, removes) row's
// manual classification, then returns the row's updated record and the
// project's recomputed counters (spec §4.F, "Mutations"). The IOC flag
// cache is not invalidated: a user flag change never changes which rows
// would match an IOC rule, only how the final flag resolves (spec §9 Open
// Questions).
func (e *Engine) UpdateFlag(view View, row int, flag flagkind.Kind, memo string) (Record, Counters, error) {
	entry, err := view.Flags.Upsert(view.ID, row, flag, memo)
	if err != nil {
		return Record{}, Counters{}, err
	}

	rules, err := view.Iocs.Load(view.ID)
	if err != nil {
		return Record{}, Counters{}, err
	}
	sortedRules := ioc.BySeverityDesc(rules)

	finalFlag := entry.Flag
	if !finalFlag.IsSet() {
		n := view.Table.RowCount()
		if iocFlags, hit := view.IocFlags.Get(view.ID, n); hit && row >= 0 && row < len(iocFlags) {
			finalFlag = iocFlags[row]
		} else {
			for _, rule := range sortedRules {
				if rowContainsQuery(view.Table, row, rule.Query) {
					finalFlag = flagkind.Normalize(string(rule.Flag))
					break
				}
			}
		}
	}

	record := buildRecord(view.Table, row, finalFlag, entry, sortedRules)
	counters, err := e.recomputeCounters(view)
	if err != nil {
		return Record{}, Counters{}, err
	}
	return record, counters, nil
}

// SaveIOCs normalises and persists rules as project's rule set, invalidates
// the IOC flag cache, and recomputes ioc_applied_records.
func (e *Engine) SaveIOCs(view View, rules []ioc.Rule) ([]ioc.Rule, Counters, error) {
	if err := view.Iocs.Save(view.ID, rules); err != nil {
		return nil, Counters{}, err
	}
	view.IocFlags.Invalidate(view.ID)
	normalized, err := view.Iocs.Load(view.ID)
	if err != nil {
		return nil, Counters{}, err
	}
	counters, err := e.recomputeCounters(view)
	if err != nil {
		return nil, Counters{}, err
	}
	return normalized, counters, nil
}

// ImportIOCs reads IOC rules from r in CSV form and saves them, exactly
// like SaveIOCs but sourced from a file.
func (e *Engine) ImportIOCs(view View, r io.Reader) ([]ioc.Rule, Counters, error) {
	rules, err := ioc.ReadCSV(r)
	if err != nil {
		return nil, Counters{}, err
	}
	return e.SaveIOCs(view, rules)
}

// ExportIOCs writes project's current IOC rule set to w in CSV form.
func (e *Engine) ExportIOCs(view View, w io.Writer) error {
	rules, err := view.Iocs.Load(view.ID)
	if err != nil {
		return err
	}
	return ioc.WriteCSV(w, rules)
}

// SetHiddenColumns invalidates view's row-text cache after its hidden-column
// scope changed. The scope itself is held by the caller (see
// project.Registry.SetHiddenColumns) and arrives here in view.
func (e *Engine) SetHiddenColumns(view View) {
	view.RowText.Invalidate(view.ID)
}
