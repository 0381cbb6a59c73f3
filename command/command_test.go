package command

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowtriage/rowquery/flagkind"
	"github.com/rowtriage/rowquery/ioc"
	"github.com/rowtriage/rowquery/project"
	"github.com/rowtriage/rowquery/rowengine"
	"github.com/rowtriage/rowquery/table"
)

func newDispatcher(t *testing.T) (*Dispatcher, string) {
	t.Helper()
	registry := project.NewRegistry()
	tbl := table.NewInMemory([]string{"host", "event"}, map[string][]any{
		"host":  {"A", "B"},
		"event": {"malware", "clean"},
	})
	_, err := registry.Register("proj1", tbl, nil, nil, nil, 0)
	require.NoError(t, err)
	return NewDispatcher(registry, rowengine.New(nil)), "proj1"
}

func TestQueryRowsRejectsMissingProject(t *testing.T) {
	d, _ := newDispatcher(t)
	_, err := d.QueryRows(QueryRowsRequest{})
	assert.Error(t, err)
}

func TestQueryRowsRejectsUnknownFlagFilter(t *testing.T) {
	d, id := newDispatcher(t)
	_, err := d.QueryRows(QueryRowsRequest{Project: id, FlagFilter: "bogus"})
	assert.Error(t, err)
}

func TestQueryRowsRejectsUnknownProject(t *testing.T) {
	d, _ := newDispatcher(t)
	_, err := d.QueryRows(QueryRowsRequest{Project: "missing"})
	assert.Error(t, err)
}

func TestQueryRowsReturnsRows(t *testing.T) {
	d, id := newDispatcher(t)
	resp, err := d.QueryRows(QueryRowsRequest{Project: id})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.TotalRows)
}

func TestUpdateFlagAppliesAndUpdatesCounters(t *testing.T) {
	d, id := newDispatcher(t)
	record, err := d.UpdateFlag(UpdateFlagRequest{Project: id, Row: 0, Flag: "critical", Memo: "bad"})
	require.NoError(t, err)
	assert.Equal(t, "critical", record.Flag)

	state, _ := d.registry.Get(id)
	assert.Equal(t, 1, state.Counters.FlaggedRecords)
}

func TestUpdateFlagRejectsInvalidFlag(t *testing.T) {
	d, id := newDispatcher(t)
	_, err := d.UpdateFlag(UpdateFlagRequest{Project: id, Row: 0, Flag: "bogus"})
	assert.Error(t, err)
}

func TestSaveIOCsNormalizesAndUpdatesCounters(t *testing.T) {
	d, id := newDispatcher(t)
	rules, err := d.SaveIOCs(SaveIOCsRequest{Project: id, Entries: []ioc.Rule{
		{Flag: flagkind.Critical, Tag: "mal", Query: "malware"},
	}})
	require.NoError(t, err)
	require.Len(t, rules, 1)

	state, _ := d.registry.Get(id)
	assert.Equal(t, 1, state.Counters.IocAppliedRecords)
}

func TestImportThenExportIOCsRoundTrips(t *testing.T) {
	d, id := newDispatcher(t)
	source := strings.NewReader("flag,tag,query\ncritical,mal,malware\n")
	_, err := d.ImportIOCs(ImportIOCsRequest{Project: id, Source: source})
	require.NoError(t, err)

	var out bytes.Buffer
	err = d.ExportIOCs(ExportIOCsRequest{Project: id, Destination: &out})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "malware")
}

func TestExportIOCsRejectsNilDestination(t *testing.T) {
	d, id := newDispatcher(t)
	err := d.ExportIOCs(ExportIOCsRequest{Project: id, Destination: nil})
	assert.Error(t, err)
}

func TestSetHiddenColumnsNarrowsScope(t *testing.T) {
	d, id := newDispatcher(t)
	err := d.SetHiddenColumns(SetHiddenColumnsRequest{Project: id, HiddenColumns: []string{"event"}})
	require.NoError(t, err)

	resp, err := d.QueryRows(QueryRowsRequest{Project: id, Search: "malware"})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.TotalFilteredRows)
}

func TestSetHiddenColumnsRejectsUnknownProject(t *testing.T) {
	d, _ := newDispatcher(t)
	err := d.SetHiddenColumns(SetHiddenColumnsRequest{Project: "missing"})
	assert.Error(t, err)
}
