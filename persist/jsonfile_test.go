package persist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowtriage/rowquery/flagkind"
	"github.com/rowtriage/rowquery/flagstore"
	"github.com/rowtriage/rowquery/ioc"
)

func TestJSONFileBackendFlagsRoundTrip(t *testing.T) {
	b := NewJSONFileBackend(t.TempDir())
	entries := map[int]flagstore.Entry{
		0: {Flag: flagkind.Critical, Memo: "bad"},
		2: {Flag: flagkind.Safe, Memo: ""},
	}
	require.NoError(t, b.SaveFlags("p1", entries))

	loaded, err := b.LoadFlags("p1")
	require.NoError(t, err)
	assert.Equal(t, entries, loaded)
}

func TestJSONFileBackendLoadFlagsMissingProjectIsNilNoError(t *testing.T) {
	b := NewJSONFileBackend(t.TempDir())
	loaded, err := b.LoadFlags("missing")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestJSONFileBackendRulesRoundTrip(t *testing.T) {
	b := NewJSONFileBackend(t.TempDir())
	rules := []ioc.Rule{{Flag: flagkind.Critical, Tag: "mal", Query: "malware"}}
	require.NoError(t, b.SaveRules("p2", rules))

	loaded, err := b.LoadRules("p2")
	require.NoError(t, err)
	assert.Equal(t, rules, loaded)
}

func TestJSONFileBackendRowTextRoundTrip(t *testing.T) {
	b := NewJSONFileBackend(t.TempDir())
	require.NoError(t, b.SaveRowText("p3", []string{"a", "b"}))

	loaded, exists, err := b.LoadRowText("p3")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, []string{"a", "b"}, loaded)
}

func TestJSONFileBackendIocFlagsRoundTrip(t *testing.T) {
	b := NewJSONFileBackend(t.TempDir())
	vec := []flagkind.Kind{flagkind.Critical, flagkind.None, flagkind.Safe}
	require.NoError(t, b.SaveIocFlags("p4", vec))

	loaded, exists, err := b.LoadIocFlags("p4")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, vec, loaded)
}

func TestJSONFileBackendColumnMetricsRoundTrip(t *testing.T) {
	b := NewJSONFileBackend(t.TempDir())
	metrics := map[string]int{"host": 25, "event": 6}
	require.NoError(t, b.SaveMetrics("p5", metrics))

	loaded, exists, err := b.LoadMetrics("p5")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, metrics, loaded)
}

func TestJSONFileBackendLoadMetricsMissingProjectIsNotFound(t *testing.T) {
	b := NewJSONFileBackend(t.TempDir())
	_, exists, err := b.LoadMetrics("missing")
	require.NoError(t, err)
	assert.False(t, exists)
}
