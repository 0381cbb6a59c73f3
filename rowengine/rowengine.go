// Package rowengine implements the row-query engine (spec §4.F): the
// central query_rows pipeline plus the mutation entry points that
// invalidate caches and recompute project metadata counters.
package rowengine

import (
	"strings"
	"time"

	"github.com/rowtriage/rowquery/cellvalue"
	"github.com/rowtriage/rowquery/flagkind"
	"github.com/rowtriage/rowquery/flagstore"
	"github.com/rowtriage/rowquery/ioc"
	"github.com/rowtriage/rowquery/metrics"
	"github.com/rowtriage/rowquery/rowcache"
	"github.com/rowtriage/rowquery/search"
	"github.com/rowtriage/rowquery/table"
)

// View bundles the per-project dependencies one query_rows or mutation
// call needs. The project package's Registry constructs one of these per
// request from its State map; the engine itself holds no per-project
// state of its own (spec §9: "no global mutable state").
type View struct {
	ID       string
	Table    table.Table
	Flags    *flagstore.Store
	Iocs     *ioc.Store
	RowText  *rowcache.RowTextCache
	IocFlags *rowcache.IocFlagCache
	// HiddenColumns are excluded from the row-text cache's search scope
	// when Request.SearchColumns is nil.
	HiddenColumns []string
}

func (v View) visibleColumns() []string {
	hidden := make(map[string]bool, len(v.HiddenColumns))
	for _, c := range v.HiddenColumns {
		hidden[c] = true
	}
	all := v.Table.ColumnNames()
	out := make([]string, 0, len(all))
	for _, c := range all {
		if !hidden[c] {
			out = append(out, c)
		}
	}
	return out
}

// Engine runs the query pipeline and mutation operations. It carries no
// per-project state; metrics is the only injected dependency and a nil
// value is a valid no-op.
type Engine struct {
	metrics *metrics.Registry
}

// New builds an Engine. metricsReg may be nil.
func New(metricsReg *metrics.Registry) *Engine {
	return &Engine{metrics: metricsReg}
}

// Request is the query_rows input (spec §6).
type Request struct {
	Search        string
	SearchColumns []string
	FlagFilter    string
	SortKey       string
	SortDesc      bool
	Offset        int
	// Limit is the page size. nil means "omitted" and defaults to
	// defaultLimit; an explicit value (including 0 or negative) floors to 1
	// rather than falling back to the default (spec.md §6, rows.rs:96
	// `payload.limit.unwrap_or(DEFAULT_PAGE_SIZE).max(1)`).
	Limit *int
}

// Record is one row of a query_rows response (spec §6, "Row JSON shape").
type Record struct {
	RowIndex int
	Data     map[string]any
	Flag     string
	Memo     string
}

// Response is the query_rows output (spec §6).
type Response struct {
	Rows              []Record
	TotalFlagged      int
	TotalRows         int
	TotalFilteredRows int
	Offset            int
}

const defaultLimit = 250

// QueryRows runs the full pipeline described in spec §4.F: loads inputs,
// builds or reuses caches, tokenises and evaluates the search, resolves
// the IOC overlay, sorts, filters, paginates and renders the page.
func (e *Engine) QueryRows(view View, req Request) (Response, error) {
	start := time.Now()
	defer func() {
		e.metrics.ObserveQueryDuration(view.ID, time.Since(start))
	}()

	n := view.Table.RowCount()

	searchCols := req.SearchColumns
	if searchCols == nil {
		searchCols = view.visibleColumns()
	}

	rowText, hit := view.RowText.Get(view.ID, n)
	if hit {
		e.metrics.RecordCacheResult("row_text", metrics.CacheHit)
	} else {
		e.metrics.RecordCacheResult("row_text", metrics.CacheMiss)
		rowText = buildRowText(view.Table, searchCols, n)
		view.RowText.Put(view.ID, rowText)
		e.metrics.RecordCacheResult("row_text", metrics.CacheRebuild)
	}

	rules, err := view.Iocs.Load(view.ID)
	if err != nil {
		return Response{}, err
	}
	e.metrics.SetIocRuleCount(view.ID, len(rules))
	sortedRules := ioc.BySeverityDesc(rules)

	trimmedSearch := strings.TrimSpace(req.Search)
	var mainTokens []search.Token
	if trimmedSearch != "" {
		mainTokens = search.Tokenize(trimmedSearch)
	}

	referenced := make(map[string]bool)
	for _, c := range search.ReferencedColumns(mainTokens) {
		referenced[c] = true
	}
	for _, rule := range sortedRules {
		for _, c := range search.ReferencedColumns(search.Tokenize(rule.Query)) {
			referenced[c] = true
		}
	}
	perColumn := make(search.ColumnText, len(referenced))
	for col := range referenced {
		perColumn[col] = buildColumnText(view.Table, col, n)
	}

	// A search that tokenises to no operand terms (only operators, or only
	// whitespace after trimming) behaves as no search at all: admit every
	// row rather than reading an empty mask as "admit nothing".
	var searchMask []bool
	if mainTerms := search.CollectTerms(mainTokens); len(mainTerms) > 0 {
		rpn := search.ToRPN(mainTokens)
		searchMask = search.EvaluateMask(rpn, mainTerms, rowText, perColumn)
	}

	flagsMap, err := view.Flags.LoadAll(view.ID)
	if err != nil {
		return Response{}, err
	}
	userFlags := make([]flagkind.Kind, n)
	for row := range userFlags {
		userFlags[row] = flagsMap[row].Flag
	}

	iocFlags, hit := view.IocFlags.Get(view.ID, n)
	if hit {
		e.metrics.RecordCacheResult("ioc_flag", metrics.CacheHit)
	} else {
		e.metrics.RecordCacheResult("ioc_flag", metrics.CacheMiss)
		iocFlags = buildIocFlagVector(sortedRules, userFlags, rowText, perColumn)
		view.IocFlags.Put(view.ID, iocFlags)
		e.metrics.RecordCacheResult("ioc_flag", metrics.CacheRebuild)
	}

	finalFlags := make([]flagkind.Kind, n)
	for row := range finalFlags {
		if userFlags[row].IsSet() {
			finalFlags[row] = userFlags[row]
		} else {
			finalFlags[row] = iocFlags[row]
		}
	}

	indices := sortIndices(view.Table, n, req.SortKey, req.SortDesc)

	filtered := make([]int, 0, n)
	for _, idx := range indices {
		if searchMask != nil && !searchMask[idx] {
			continue
		}
		if !passesFlagFilter(finalFlags[idx], req.FlagFilter) {
			continue
		}
		filtered = append(filtered, idx)
	}

	totalFlagged := 0
	for _, idx := range filtered {
		if finalFlags[idx].IsSet() {
			totalFlagged++
		}
	}

	offset := req.Offset
	if offset < 0 {
		offset = 0
	}
	limit := defaultLimit
	if req.Limit != nil {
		limit = *req.Limit
		if limit < 1 {
			limit = 1
		}
	}
	end := offset + limit
	if end > len(filtered) {
		end = len(filtered)
	}
	start2 := offset
	if start2 > len(filtered) {
		start2 = len(filtered)
	}

	page := filtered[start2:end]
	rows := make([]Record, 0, len(page))
	for _, idx := range page {
		rows = append(rows, buildRecord(view.Table, idx, finalFlags[idx], flagsMap[idx], sortedRules))
	}

	return Response{
		Rows:              rows,
		TotalFlagged:      totalFlagged,
		TotalRows:         n,
		TotalFilteredRows: len(filtered),
		Offset:            offset,
	}, nil
}

func buildRecord(tbl table.Table, row int, flag flagkind.Kind, userEntry flagstore.Entry, rules []ioc.Rule) Record {
	cols := tbl.ColumnNames()
	data := make(map[string]any, len(cols))
	for _, col := range cols {
		if col == table.RowIDColumn {
			continue
		}
		value, ok := tbl.CellValue(col, row)
		if !ok {
			continue
		}
		data[col] = cellvalue.ToJSON(value)
	}
	return Record{
		RowIndex: row,
		Data:     data,
		Flag:     flag.String(),
		Memo:     composeMemo(tbl, row, userEntry, rules),
	}
}

func passesFlagFilter(flag flagkind.Kind, filter string) bool {
	switch filter {
	case "none":
		return flag == flagkind.None
	case "priority":
		return flag == flagkind.Suspicious || flag == flagkind.Critical
	case "safe":
		return flag == flagkind.Safe
	case "suspicious":
		return flag == flagkind.Suspicious
	case "critical":
		return flag == flagkind.Critical
	default:
		return true
	}
}

func buildRowText(tbl table.Table, cols []string, n int) []string {
	out := make([]string, n)
	for row := 0; row < n; row++ {
		var b strings.Builder
		for _, col := range cols {
			value, ok := tbl.CellValue(col, row)
			if !ok {
				continue
			}
			text, present := cellvalue.ToSearchString(value)
			if !present {
				continue
			}
			lower := strings.ToLower(text)
			if lower == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(lower)
		}
		out[row] = b.String()
	}
	return out
}

func buildColumnText(tbl table.Table, col string, n int) []string {
	out := make([]string, n)
	for row := 0; row < n; row++ {
		value, ok := tbl.CellValue(col, row)
		if !ok {
			continue
		}
		text, present := cellvalue.ToSearchString(value)
		if !present {
			continue
		}
		out[row] = strings.ToLower(text)
	}
	return out
}
