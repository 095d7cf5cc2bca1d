package diskarc

import (
	"github.com/tidwall/btree"
)

// EntryList is the archive's entry container, ordered by display name.
// It is rebuilt wholesale on every reload; entries are never patched in
// or out individually.
type EntryList struct {
	tree *btree.BTreeG[*Entry]
	seq  uint64
}

// NewEntryList returns an empty entry list.
func NewEntryList() *EntryList {
	return &EntryList{
		tree: btree.NewBTreeGOptions(func(a, b *Entry) bool {
			an, bn := a.DisplayName(), b.DisplayName()
			if an != bn {
				return an < bn
			}
			// Duplicate names are legal on DOS catalogs; load order
			// keeps them apart instead of replacing one another.
			return a.seq < b.seq
		}, btree.Options{NoLocks: true}),
	}
}

// Append adds entries in bulk, assigning each its insertion position.
func (l *EntryList) Append(entries ...*Entry) {
	for _, e := range entries {
		l.seq++
		e.seq = l.seq
		l.tree.Set(e)
	}
}

// Clear discards all entries.
func (l *EntryList) Clear() {
	l.tree.Clear()
	l.seq = 0
}

// Len returns the number of entries.
func (l *EntryList) Len() int {
	return l.tree.Len()
}

// Ascend visits entries in ascending display-name order until fn
// returns false.
func (l *EntryList) Ascend(fn func(*Entry) bool) {
	l.tree.Scan(fn)
}

// Descend visits entries in descending display-name order until fn
// returns false. Deletion walks this direction so subdirectory contents
// go before the subdirectory itself.
func (l *EntryList) Descend(fn func(*Entry) bool) {
	l.tree.Reverse(fn)
}

// Get returns the first entry with the given display name, or nil.
// The probe pivot carries sequence zero, so it sorts ahead of every
// stored entry with the same name.
func (l *EntryList) Get(displayName string) *Entry {
	var found *Entry
	pivot := &Entry{PathName: displayName}
	l.tree.Ascend(pivot, func(e *Entry) bool {
		if e.DisplayName() == displayName {
			found = e
		}
		return false
	})
	return found
}

// CountDescendants returns how many entries lie below the directory
// with the given display path.
func (l *EntryList) CountDescendants(dirPath string) int {
	n := 0
	pivot := &Entry{PathName: dirPath + string(DefaultFssep)}
	l.tree.Ascend(pivot, func(e *Entry) bool {
		if !e.IsDescendantOf(dirPath) {
			return false
		}
		n++
		return true
	})
	return n
}

// Entries returns a snapshot slice in ascending order.
func (l *EntryList) Entries() []*Entry {
	out := make([]*Entry, 0, l.tree.Len())
	l.tree.Scan(func(e *Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}
