package rowengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowtriage/rowquery/flagkind"
	"github.com/rowtriage/rowquery/flagstore"
	"github.com/rowtriage/rowquery/ioc"
	"github.com/rowtriage/rowquery/rowcache"
	"github.com/rowtriage/rowquery/table"
)

func intPtr(n int) *int { return &n }

func newView(id string, tbl table.Table) View {
	return View{
		ID:       id,
		Table:    tbl,
		Flags:    flagstore.NewStore(nil),
		Iocs:     ioc.NewStore(nil),
		RowText:  rowcache.NewRowTextCache(nil),
		IocFlags: rowcache.NewIocFlagCache(nil),
	}
}

func hostUserEventTable() *table.InMemory {
	return table.NewInMemory([]string{"host", "user", "event"}, map[string][]any{
		"host":  {"WS01", "WS02"},
		"user":  {"alice", "bob"},
		"event": {"login", "logout"},
	})
}

func TestQueryRowsScenario1UnknownColumnMatchesNothing(t *testing.T) {
	engine := New(nil)
	view := newView("p1", hostUserEventTable())

	resp, err := engine.QueryRows(view, Request{Search: "com:WS01|WS02"})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.TotalFilteredRows)
	assert.Equal(t, 2, resp.TotalRows)
}

func TestQueryRowsScenario2ColumnCarryOverBothRowsPass(t *testing.T) {
	engine := New(nil)
	view := newView("p2", hostUserEventTable())

	resp, err := engine.QueryRows(view, Request{Search: "host:WS01|WS02"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.TotalFilteredRows)
}

func malwareCleanTable() *table.InMemory {
	return table.NewInMemory([]string{"host", "user", "event"}, map[string][]any{
		"host":  {"A", "B"},
		"user":  {"x", "y"},
		"event": {"malware", "clean"},
	})
}

func TestQueryRowsScenario3IocFlagsAndMemoTag(t *testing.T) {
	engine := New(nil)
	view := newView("p3", malwareCleanTable())
	_, _, err := engine.SaveIOCs(view, []ioc.Rule{{Flag: flagkind.Critical, Tag: "mal", Query: "malware"}})
	require.NoError(t, err)

	resp, err := engine.QueryRows(view, Request{})
	require.NoError(t, err)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "critical", resp.Rows[0].Flag)
	assert.Equal(t, "[mal]", resp.Rows[0].Memo)
	assert.Equal(t, "", resp.Rows[1].Flag)
	assert.Equal(t, "", resp.Rows[1].Memo)
	assert.Equal(t, 1, resp.TotalFlagged)
}

func TestQueryRowsScenario4UserFlagWinsNoTagAppended(t *testing.T) {
	engine := New(nil)
	view := newView("p4", malwareCleanTable())
	_, _, err := engine.SaveIOCs(view, []ioc.Rule{{Flag: flagkind.Critical, Tag: "mal", Query: "malware"}})
	require.NoError(t, err)
	_, _, err = engine.UpdateFlag(view, 0, flagkind.Suspicious, "benign")
	require.NoError(t, err)

	resp, err := engine.QueryRows(view, Request{})
	require.NoError(t, err)
	assert.Equal(t, "suspicious", resp.Rows[0].Flag)
	assert.Equal(t, "benign", resp.Rows[0].Memo)
	assert.Equal(t, "", resp.Rows[1].Flag)
}

func TestQueryRowsScenario5NumericSortStripsThousandsSeparator(t *testing.T) {
	engine := New(nil)
	tbl := table.NewInMemory([]string{"id", "score"}, map[string][]any{
		"id":    {"big", "mid", "small"},
		"score": {"1,000", "200", "30"},
	})
	view := newView("p5", tbl)

	resp, err := engine.QueryRows(view, Request{SortKey: "score"})
	require.NoError(t, err)
	ids := make([]string, len(resp.Rows))
	for i, r := range resp.Rows {
		ids[i] = r.Data["id"].(string)
	}
	assert.Equal(t, []string{"small", "mid", "big"}, ids)
}

func TestQueryRowsScenario6NotAndImplicitAnd(t *testing.T) {
	engine := New(nil)
	tbl := table.NewInMemory([]string{"event"}, map[string][]any{
		"event": {"malware", "clean", "clean malware"},
	})
	view := newView("p6", tbl)

	resp, err := engine.QueryRows(view, Request{Search: "-malware clean"})
	require.NoError(t, err)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "clean", resp.Rows[0].Data["event"])
}

func TestQueryRowsEmptySearchAdmitsAllRows(t *testing.T) {
	engine := New(nil)
	view := newView("p7", hostUserEventTable())
	resp, err := engine.QueryRows(view, Request{})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.TotalFilteredRows)
}

func TestQueryRowsOnlyOperatorsBehavesAsEmptySearch(t *testing.T) {
	engine := New(nil)
	view := newView("p8", hostUserEventTable())
	resp, err := engine.QueryRows(view, Request{Search: "|||"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.TotalFilteredRows)

	resp, err = engine.QueryRows(view, Request{Search: "   "})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.TotalFilteredRows)
}

func TestQueryRowsLimitClampsWithoutError(t *testing.T) {
	engine := New(nil)
	view := newView("p9", hostUserEventTable())
	resp, err := engine.QueryRows(view, Request{Limit: intPtr(1000)})
	require.NoError(t, err)
	assert.Len(t, resp.Rows, 2)
}

func TestQueryRowsOmittedLimitDefaultsTo250(t *testing.T) {
	engine := New(nil)
	view := newView("p9b", hostUserEventTable())
	resp, err := engine.QueryRows(view, Request{})
	require.NoError(t, err)
	assert.Len(t, resp.Rows, 2)
}

func TestQueryRowsExplicitZeroLimitFloorsToOne(t *testing.T) {
	engine := New(nil)
	view := newView("p9c", hostUserEventTable())
	resp, err := engine.QueryRows(view, Request{Limit: intPtr(0)})
	require.NoError(t, err)
	assert.Len(t, resp.Rows, 1)
}

func TestQueryRowsPagingConcatenatesToFullFilteredList(t *testing.T) {
	engine := New(nil)
	tbl := table.NewInMemory([]string{"id"}, map[string][]any{
		"id": {"a", "b", "c", "d", "e"},
	})
	view := newView("p10", tbl)

	var all []int
	for offset := 0; offset < 5; offset += 2 {
		resp, err := engine.QueryRows(view, Request{Offset: offset, Limit: intPtr(2)})
		require.NoError(t, err)
		for _, r := range resp.Rows {
			all = append(all, r.RowIndex)
		}
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, all)
}

func TestQueryRowsRemovingIocRulesMatchesUserFlagCount(t *testing.T) {
	engine := New(nil)
	view := newView("p11", malwareCleanTable())
	_, _, err := engine.SaveIOCs(view, []ioc.Rule{{Flag: flagkind.Critical, Tag: "mal", Query: "malware"}})
	require.NoError(t, err)
	_, _, err = engine.UpdateFlag(view, 1, flagkind.Safe, "")
	require.NoError(t, err)

	_, _, err = engine.SaveIOCs(view, nil)
	require.NoError(t, err)

	resp, err := engine.QueryRows(view, Request{})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.TotalFlagged)
}

func TestQueryRowsPriorityFilterExcludesSafe(t *testing.T) {
	engine := New(nil)
	tbl := table.NewInMemory([]string{"id"}, map[string][]any{"id": {"a", "b", "c"}})
	view := newView("p12", tbl)
	_, _, _ = engine.UpdateFlag(view, 0, flagkind.Safe, "")
	_, _, _ = engine.UpdateFlag(view, 1, flagkind.Suspicious, "")
	_, _, _ = engine.UpdateFlag(view, 2, flagkind.Critical, "")

	resp, err := engine.QueryRows(view, Request{FlagFilter: "priority"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.TotalFilteredRows)
}

func TestUpdateFlagClearingBothFieldsRemovesEntry(t *testing.T) {
	engine := New(nil)
	view := newView("p13", hostUserEventTable())
	_, _, err := engine.UpdateFlag(view, 0, flagkind.Critical, "note")
	require.NoError(t, err)

	record, counters, err := engine.UpdateFlag(view, 0, flagkind.None, "")
	require.NoError(t, err)
	assert.Equal(t, "", record.Flag)
	assert.Equal(t, 0, counters.FlaggedRecords)
}

func TestIocFlagCacheRebuildIsDeterministic(t *testing.T) {
	engine := New(nil)
	view := newView("p14", malwareCleanTable())
	_, _, err := engine.SaveIOCs(view, []ioc.Rule{{Flag: flagkind.Critical, Tag: "mal", Query: "malware"}})
	require.NoError(t, err)

	first, err := engine.QueryRows(view, Request{})
	require.NoError(t, err)

	view.IocFlags.Invalidate(view.ID)
	second, err := engine.QueryRows(view, Request{})
	require.NoError(t, err)

	assert.Equal(t, first.Rows[0].Flag, second.Rows[0].Flag)
	assert.Equal(t, first.Rows[1].Flag, second.Rows[1].Flag)
}

func TestSetHiddenColumnsInvalidatesRowTextCache(t *testing.T) {
	engine := New(nil)
	view := newView("p15", hostUserEventTable())
	_, err := engine.QueryRows(view, Request{})
	require.NoError(t, err)
	_, ok := view.RowText.Get(view.ID, 2)
	assert.True(t, ok)

	view.HiddenColumns = []string{"user"}
	engine.SetHiddenColumns(view)

	_, ok = view.RowText.Get(view.ID, 2)
	assert.False(t, ok)
}

func TestHiddenColumnsNarrowDefaultSearchScope(t *testing.T) {
	engine := New(nil)
	view := newView("p16", hostUserEventTable())
	view.HiddenColumns = []string{"user"}

	resp, err := engine.QueryRows(view, Request{Search: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.TotalFilteredRows)
}
