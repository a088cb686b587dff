// Package routing maps CAN identifiers to channel indexes through a static,
// sorted table of identifier ranges.
package routing

import (
	"sort"

	"github.com/kstaniek/can-udp-bridge/internal/config"
)

// Entry pairs one identifier range with the index of the channel that owns it.
type Entry struct {
	Range   config.IDRange
	Channel int
}

// Table is immutable after Build and safe for concurrent reads.
type Table struct {
	entries []Entry
}

// Build copies entries and sorts them by range minimum. Entries with equal
// minimums keep their insertion (document) order.
func Build(entries []Entry) *Table {
	t := &Table{entries: make([]Entry, len(entries))}
	copy(t.entries, entries)
	sort.SliceStable(t.entries, func(i, j int) bool {
		return t.entries[i].Range.Min < t.entries[j].Range.Min
	})
	return t
}

// Resolve returns the channel whose range holds id. It finds the last entry
// with Min <= id and checks its Max only. With overlapping ranges the
// answer is deterministic but only that one candidate is consulted.
func (t *Table) Resolve(id uint32) (int, bool) {
	lo, hi := 0, len(t.entries)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if t.entries[mid].Range.Min <= id {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return -1, false
	}
	e := &t.entries[lo-1]
	if id <= e.Range.Max {
		return e.Channel, true
	}
	return -1, false
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.entries) }

// Entries returns the sorted entries. Callers must not modify the slice.
func (t *Table) Entries() []Entry { return t.entries }

// Overlap is a pair of entries whose ranges intersect.
type Overlap struct {
	A, B Entry
}

// Overlaps lists every intersecting pair. Validation only rejects overlaps
// inside one port, so pairs reported here come from different ports.
func (t *Table) Overlaps() []Overlap {
	var out []Overlap
	for i := range t.entries {
		for j := i + 1; j < len(t.entries); j++ {
			if t.entries[j].Range.Min > t.entries[i].Range.Max {
				break
			}
			out = append(out, Overlap{A: t.entries[i], B: t.entries[j]})
		}
	}
	return out
}
