// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"fmt"
	"io"

	"github.com/go-kit/log/level"

	"github.com/dreamsxin/kvs/internal/index"
	"github.com/dreamsxin/kvs/internal/segment"
)

// compactLocked rewrites every live key into a fresh segment and reclaims
// every older one, following the three-generation scheme from spec.md §4.E:
// the current active segment becomes read-only, its live records are copied
// into activeID+1 (the compaction target), and activeID+2 becomes the new
// active segment for subsequent writes. Callers must hold sh.writeMu.
func (s *Store) compactLocked() error {
	sh := s.sh

	compactID := sh.activeID + 1
	newActiveID := sh.activeID + 2

	if err := sh.writer.Flush(); err != nil {
		return fmt.Errorf("compaction: flush active segment: %w", err)
	}

	cw, err := segment.CreateWriter(sh.dir, compactID)
	if err != nil {
		return fmt.Errorf("compaction: create target segment %d: %w", compactID, err)
	}

	// Readers opened here are scoped to this compaction run; they are not
	// the per-clone cache readerFor maintains, so they must not be shared.
	readers := make(map[uint64]*segment.Reader)
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()

	type relocation struct {
		key string
		loc index.Locator
	}
	var relocated []relocation

	it := sh.idx.Iterator()
	for !it.Done() {
		key, _ := it.Next()

		// The snapshot it iterates may already be stale; re-Get the
		// current Locator rather than trust the iterated value, per
		// index.Index.Iterator's documented contract.
		loc, ok := sh.idx.Get(key)
		if !ok {
			continue
		}

		r, ok := readers[loc.SegmentID]
		if !ok {
			r, err = segment.OpenReader(sh.dir, loc.SegmentID)
			if err != nil {
				return fmt.Errorf("compaction: open source segment %d: %w", loc.SegmentID, err)
			}
			readers[loc.SegmentID] = r
		}

		if _, err := r.Seek(loc.Offset, io.SeekStart); err != nil {
			return fmt.Errorf("compaction: seek source segment %d: %w", loc.SegmentID, err)
		}
		raw, err := r.Take(int(loc.Length))
		if err != nil {
			return fmt.Errorf("compaction: read source segment %d: %w", loc.SegmentID, err)
		}

		newOffset := cw.Position()
		if _, err := cw.Write(raw); err != nil {
			return fmt.Errorf("compaction: write target segment %d: %w", compactID, err)
		}
		sh.metrics.bytesWritten.Add(float64(len(raw)))
		relocated = append(relocated, relocation{key, index.Locator{SegmentID: compactID, Offset: newOffset, Length: loc.Length}})
	}

	if err := cw.Flush(); err != nil {
		return fmt.Errorf("compaction: flush target segment %d: %w", compactID, err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("compaction: close target segment %d: %w", compactID, err)
	}

	// Install the new Locators only once their bytes are flushed, so a
	// concurrent Get never resolves to data still in cw's buffer.
	for _, m := range relocated {
		sh.idx.Put(m.key, m.loc)
	}

	// Publish the new floor before unlinking so concurrent readers evict
	// their stale descriptors for reclaimed segments on their next Get
	// (readerFor checks this floor).
	sh.latestCompactedID.Store(compactID)

	reclaimed := sh.segmentIDs
	sh.segmentIDs = []uint64{compactID}
	for _, id := range reclaimed {
		if id >= compactID {
			continue
		}
		if err := segment.Remove(sh.dir, id); err != nil {
			level.Warn(sh.logger).Log("msg", "compaction: failed to remove reclaimed segment", "id", id, "err", err)
		}
	}

	nw, err := segment.CreateWriter(sh.dir, newActiveID)
	if err != nil {
		return fmt.Errorf("compaction: create new active segment %d: %w", newActiveID, err)
	}
	if err := sh.writer.Close(); err != nil {
		level.Warn(sh.logger).Log("msg", "compaction: failed to close retired active segment", "id", sh.activeID, "err", err)
	}

	sh.writer = nw
	sh.activeID = newActiveID
	sh.uncompacted = 0
	sh.segmentIDs = append(sh.segmentIDs, newActiveID)

	sh.metrics.compactions.Inc()
	sh.metrics.uncompactedBytes.Set(0)
	sh.metrics.activeSegmentID.Set(float64(newActiveID))

	level.Info(sh.logger).Log("msg", "compaction complete", "compact_id", compactID, "new_active_id", newActiveID, "live_keys", sh.idx.Len())

	return nil
}
