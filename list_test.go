package diskarc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listEntry(path, subVol string) *Entry {
	return &Entry{PathName: path, SubVolName: subVol, Kind: RecordFile, DataLen: 0, RsrcLen: ForkAbsent}
}

func TestEntryListOrdering(t *testing.T) {
	l := NewEntryList()
	l.Append(
		listEntry("B", ""),
		listEntry("A:SUB:FILE", ""),
		listEntry("A", ""),
		listEntry("HELLO", "254"),
	)

	assert.Equal(t, 4, l.Len())

	var names []string
	l.Ascend(func(e *Entry) bool {
		names = append(names, e.DisplayName())
		return true
	})
	assert.Equal(t, []string{"254:HELLO", "A", "A:SUB:FILE", "B"}, names)

	names = names[:0]
	l.Descend(func(e *Entry) bool {
		names = append(names, e.DisplayName())
		return true
	})
	assert.Equal(t, []string{"B", "A:SUB:FILE", "A", "254:HELLO"}, names)
}

func TestEntryListDescendVisitsChildrenBeforeDirectory(t *testing.T) {
	l := NewEntryList()
	l.Append(
		listEntry("DIR", ""),
		listEntry("DIR:INNER", ""),
		listEntry("DIR:INNER:LEAF", ""),
	)

	var names []string
	l.Descend(func(e *Entry) bool {
		names = append(names, e.DisplayName())
		return true
	})
	assert.Equal(t, []string{"DIR:INNER:LEAF", "DIR:INNER", "DIR"}, names)
}

func TestEntryListCountDescendants(t *testing.T) {
	l := NewEntryList()
	l.Append(
		listEntry("DIR", ""),
		listEntry("DIR:A", ""),
		listEntry("DIR:B", ""),
		listEntry("DIRT", ""),
		listEntry("OTHER", ""),
	)

	assert.Equal(t, 2, l.CountDescendants("DIR"))
	assert.Equal(t, 0, l.CountDescendants("OTHER"))
	assert.Equal(t, 0, l.CountDescendants("MISSING"))
}

func TestEntryListDuplicateNames(t *testing.T) {
	// DOS catalogs can legally hold several files with the same name;
	// all of them must stay visible.
	l := NewEntryList()
	first := listEntry("HELLO", "254")
	second := listEntry("HELLO", "254")
	l.Append(first, listEntry("WORLD", "254"), second)

	assert.Equal(t, 3, l.Len())

	var seen []*Entry
	l.Ascend(func(e *Entry) bool {
		if e.DisplayName() == "254:HELLO" {
			seen = append(seen, e)
		}
		return true
	})
	require.Len(t, seen, 2)
	assert.Same(t, first, seen[0], "load order preserved between duplicates")
	assert.Same(t, second, seen[1])

	assert.Same(t, first, l.Get("254:HELLO"), "lookup finds the first duplicate")
}

func TestEntryListClear(t *testing.T) {
	l := NewEntryList()
	l.Append(listEntry("A", ""), listEntry("B", ""))
	l.Clear()
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Entries())
}
