// Package buffer implements the timestamped ring of historical
// StateBundles that feeds stateful controllers (spec.md §3, §4.2): a
// chronologically ordered, size- and age-bounded history with O(log n+k)
// range queries, grounded on the bounded-retained-entry shape of the
// teacher's resource cache (engine/internal/resources/manager.go)
// repurposed from page checkpoints to state history.
package buffer

import (
	"sort"
	"sync"

	"github.com/johnwbyrd/aifand/state"
)

// Entry is one (timestamp, bundle) pair.
type Entry struct {
	Timestamp int64
	Bundle    state.Bundle
}

// Buffer is a sorted-slice-backed, ascending-timestamp history. Expected
// sizes are bounded by buffer_size_limit, so a sorted slice with binary
// search comfortably meets the spec's O(log n + k) target without
// pulling in a dependency for an ordered container.
type Buffer struct {
	mu      sync.RWMutex
	entries []Entry
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// Store inserts (t, bundle) at the position that keeps entries sorted
// ascending by timestamp, snapshotting bundle so later mutation of its
// source does not affect what was stored.
func (b *Buffer) Store(t int64, bundle state.Bundle) {
	snap := bundle.Clone()
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := sort.Search(len(b.entries), func(i int) bool { return b.entries[i].Timestamp > t })
	b.entries = append(b.entries, Entry{})
	copy(b.entries[idx+1:], b.entries[idx:])
	b.entries[idx] = Entry{Timestamp: t, Bundle: snap}
}

// GetLatest returns the most recent entry.
func (b *Buffer) GetLatest() (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.entries) == 0 {
		return Entry{}, false
	}
	return b.entries[len(b.entries)-1], true
}

// GetOldest returns the least recent entry.
func (b *Buffer) GetOldest() (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.entries) == 0 {
		return Entry{}, false
	}
	return b.entries[0], true
}

// GetRecent returns every entry with timestamp >= latest - windowNs.
func (b *Buffer) GetRecent(windowNs int64) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.entries) == 0 {
		return nil
	}
	latest := b.entries[len(b.entries)-1].Timestamp
	return b.rangeLocked(latest-windowNs, latest)
}

// GetRange returns every entry with lo <= timestamp <= hi, inclusive on
// both ends.
func (b *Buffer) GetRange(lo, hi int64) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rangeLocked(lo, hi)
}

func (b *Buffer) rangeLocked(lo, hi int64) []Entry {
	start := sort.Search(len(b.entries), func(i int) bool { return b.entries[i].Timestamp >= lo })
	end := sort.Search(len(b.entries), func(i int) bool { return b.entries[i].Timestamp > hi })
	if start >= end {
		return nil
	}
	out := make([]Entry, end-start)
	copy(out, b.entries[start:end])
	return out
}

// PruneBefore drops every entry with timestamp < t and returns the count
// removed.
func (b *Buffer) PruneBefore(t int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := sort.Search(len(b.entries), func(i int) bool { return b.entries[i].Timestamp >= t })
	if idx == 0 {
		return 0
	}
	b.entries = append([]Entry(nil), b.entries[idx:]...)
	return idx
}

// TrimToSize drops the oldest entries until at most limit remain, used
// by StatefulProcess's size-bounded auto-prune.
func (b *Buffer) TrimToSize(limit int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit < 0 || len(b.entries) <= limit {
		return 0
	}
	drop := len(b.entries) - limit
	b.entries = append([]Entry(nil), b.entries[drop:]...)
	return drop
}

func (b *Buffer) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

func (b *Buffer) IsEmpty() bool { return b.Count() == 0 }

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
}

// Snapshot returns a defensive copy of every entry, oldest first.
func (b *Buffer) Snapshot() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}
