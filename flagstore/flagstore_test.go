package flagstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rowtriage/rowquery/flagkind"
)

func TestUpsertThenRemoveAllBlankLeavesNoEntry(t *testing.T) {
	store := NewStore(nil)
	_, err := store.Upsert("proj", 3, flagkind.Critical, "needs review")
	assert.NoError(t, err)

	entry, ok, err := store.Get("proj", 3)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, flagkind.Critical, entry.Flag)

	stored, err := store.Upsert("proj", 3, flagkind.None, "  ")
	assert.NoError(t, err)
	assert.Equal(t, Entry{}, stored)

	_, ok, err = store.Get("proj", 3)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestCountFlaggedIgnoresBlankEntries(t *testing.T) {
	store := NewStore(nil)
	_, _ = store.Upsert("proj", 0, flagkind.Safe, "")
	_, _ = store.Upsert("proj", 1, flagkind.None, "just a memo")
	_, _ = store.Upsert("proj", 2, flagkind.Critical, "")

	count, err := store.CountFlagged("proj")
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSaveAllReplacesWholesaleAndDropsBlankEntries(t *testing.T) {
	store := NewStore(nil)
	_, _ = store.Upsert("proj", 5, flagkind.Suspicious, "old")

	err := store.SaveAll("proj", map[int]Entry{
		0: {Flag: flagkind.Critical, Memo: "fresh"},
		1: {Flag: flagkind.None, Memo: "   "},
	})
	assert.NoError(t, err)

	all, err := store.LoadAll("proj")
	assert.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, "fresh", all[0].Memo)
	_, ok := all[5]
	assert.False(t, ok)
}

func TestLoadAllReturnsIndependentCopy(t *testing.T) {
	store := NewStore(nil)
	_, _ = store.Upsert("proj", 0, flagkind.Safe, "")

	all, err := store.LoadAll("proj")
	assert.NoError(t, err)
	all[0] = Entry{Flag: flagkind.Critical}

	again, _ := store.LoadAll("proj")
	assert.Equal(t, flagkind.Safe, again[0].Flag)
}

func TestProjectsAreIndependent(t *testing.T) {
	store := NewStore(nil)
	_, _ = store.Upsert("proj-a", 0, flagkind.Critical, "")
	_, _ = store.Upsert("proj-b", 0, flagkind.Safe, "")

	countA, _ := store.CountFlagged("proj-a")
	countB, _ := store.CountFlagged("proj-b")
	assert.Equal(t, 1, countA)
	assert.Equal(t, 1, countB)

	a, _, _ := store.Get("proj-a", 0)
	b, _, _ := store.Get("proj-b", 0)
	assert.Equal(t, flagkind.Critical, a.Flag)
	assert.Equal(t, flagkind.Safe, b.Flag)
}
