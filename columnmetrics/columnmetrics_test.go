package columnmetrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowtriage/rowquery/table"
)

func sampleTable() *table.InMemory {
	return table.NewInMemory([]string{"host", "event"}, map[string][]any{
		"host":  {"WS01", "a-very-long-hostname-here"},
		"event": {"login", "logout"},
	})
}

func TestComputeFloorsAtHeaderLength(t *testing.T) {
	tbl := table.NewInMemory([]string{"id"}, map[string][]any{"id": {"1", "2"}})
	metrics := Compute(tbl)
	assert.Equal(t, 2, metrics["id"])
}

func TestComputeWidensToLongestCell(t *testing.T) {
	metrics := Compute(sampleTable())
	assert.Equal(t, len("a-very-long-hostname-here"), metrics["host"])
	assert.Equal(t, len("logout"), metrics["event"])
}

func TestEnsureComputedPersistsOnFirstCall(t *testing.T) {
	backend := newMemoryBackend()
	store := NewStore(backend)
	tbl := sampleTable()

	metrics, err := store.EnsureComputed("p1", tbl)
	require.NoError(t, err)
	assert.Equal(t, len("a-very-long-hostname-here"), metrics["host"])

	persisted, exists, err := backend.LoadMetrics("p1")
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, metrics, persisted)

	cached, ok := store.Get("p1")
	require.True(t, ok)
	assert.Equal(t, metrics, cached)
}

func TestEnsureComputedReusesBackendValueWithoutRecompute(t *testing.T) {
	backend := newMemoryBackend()
	require.NoError(t, backend.SaveMetrics("p2", map[string]int{"host": 999, "event": 5}))

	store := NewStore(backend)
	metrics, err := store.EnsureComputed("p2", sampleTable())
	require.NoError(t, err)
	assert.Equal(t, 999, metrics["host"])
}

func TestEnsureComputedRecomputesWhenColumnMissing(t *testing.T) {
	backend := newMemoryBackend()
	require.NoError(t, backend.SaveMetrics("p3", map[string]int{"host": 999}))

	store := NewStore(backend)
	metrics, err := store.EnsureComputed("p3", sampleTable())
	require.NoError(t, err)
	assert.Contains(t, metrics, "event")
	assert.Equal(t, len("a-very-long-hostname-here"), metrics["host"])
}

func TestGetUnknownProjectIsNotFound(t *testing.T) {
	store := NewStore(nil)
	_, ok := store.Get("missing")
	assert.False(t, ok)
}
