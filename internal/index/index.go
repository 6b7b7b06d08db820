// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package index implements the in-memory key -> Locator map shared between
// the single writer and every reader handle. It follows the same pattern
// the teacher WAL uses for its segment set: an immutable, ordered map held
// behind an atomic.Value so that Get is a lock-free Load plus a map lookup,
// while mutation builds a new persistent-tree snapshot and publishes it with
// one atomic Store. Ordering is not externally observable; it exists so
// compaction can iterate without holding a lock.
package index

import (
	"sync/atomic"

	"github.com/benbjohnson/immutable"
)

// Locator is the byte range of one record inside one segment file.
type Locator struct {
	SegmentID uint64
	Offset    int64
	Length    int64
}

// Index is a concurrent ordered map from key to Locator. The zero value is
// not usable; construct with New.
type Index struct {
	snapshot atomic.Value // *immutable.SortedMap[string, Locator]
}

// New returns an empty Index ready for concurrent use.
func New() *Index {
	idx := &Index{}
	idx.snapshot.Store(&immutable.SortedMap[string, Locator]{})
	return idx
}

func (idx *Index) load() *immutable.SortedMap[string, Locator] {
	return idx.snapshot.Load().(*immutable.SortedMap[string, Locator])
}

// Get performs a lock-free lookup. Safe to call concurrently with Put,
// Delete and Mutate from any number of goroutines.
func (idx *Index) Get(key string) (Locator, bool) {
	return idx.load().Get(key)
}

// Len returns the number of live keys. Lock-free; may be stale the instant
// it returns if a mutation is concurrently in flight.
func (idx *Index) Len() int {
	return idx.load().Len()
}

// Put installs loc for key, publishing a new snapshot. Callers (the
// engine's writer, under its own mutex) are responsible for serializing
// concurrent mutations; Put itself only guarantees the publish is atomic
// with respect to readers.
func (idx *Index) Put(key string, loc Locator) {
	next := idx.load().Set(key, loc)
	idx.snapshot.Store(next)
}

// Delete removes key if present, publishing a new snapshot. It is a no-op
// if key is absent.
func (idx *Index) Delete(key string) {
	next := idx.load().Delete(key)
	idx.snapshot.Store(next)
}

// Mutate lets the caller perform a Get-then-Put/Delete as one observable
// step from the perspective of readers (they see either the whole old
// snapshot or the whole new one, never a partial update). fn receives the
// current snapshot and must return the replacement; Mutate itself returns
// nothing, so a caller needing the prior Locator reads it from cur inside fn.
func (idx *Index) Mutate(fn func(cur *immutable.SortedMap[string, Locator]) *immutable.SortedMap[string, Locator]) {
	idx.snapshot.Store(fn(idx.load()))
}

// Iterator returns an iterator over the current snapshot at the moment of
// the call. It is unaffected by later mutations -- the snapshot it iterates
// is immutable -- so concurrent compaction never deadlocks with concurrent
// inserts; it simply may not see entries written after the snapshot was
// taken, and any entry it does see may already be stale by the time the
// caller acts on it. Callers that need "the current truth" for an entry
// (e.g. compaction's copy step) must re-Get the key rather than trust the
// iterated value.
func (idx *Index) Iterator() *immutable.SortedMapIterator[string, Locator] {
	return idx.load().Iterator()
}
