// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package engine implements the bitcask-style log-structured storage
// engine: an append-only segment log plus an in-memory index, with online
// compaction and a lock-free-reader / single-writer concurrency discipline.
// It is the Go analogue of the teacher WAL's state machine in wal.go,
// narrowed from a replicated log to a key/value index.
package engine

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/dreamsxin/kvs/internal/index"
	"github.com/dreamsxin/kvs/internal/kverrors"
	"github.com/dreamsxin/kvs/internal/record"
	"github.com/dreamsxin/kvs/internal/segment"
)

// Engine is the contract the server, and both concrete storage backends
// (this package's Store and internal/boltengine.Store), implement. It is
// the Go equivalent of the original's KvsEngine trait.
type Engine interface {
	// Get returns the value for key, ok=false if absent.
	Get(key string) (value []byte, ok bool, err error)
	// Set installs value for key, durable (flushed) before returning.
	Set(key string, value []byte) error
	// Remove deletes key. Returns kverrors.ErrKeyNotFound if absent.
	Remove(key string) error
	// Clone returns an independent handle sharing the same underlying
	// store -- cheap, safe to call from any goroutine, intended to be
	// called once per worker.
	Clone() Engine
	// Close releases this handle's resources. It does not affect other
	// clones or stop the store from being usable by them.
	Close() error
}

// shared is the state common to every clone of a Store: the directory, the
// index, and the single writer, guarded by writeMu. Exactly one Store
// clone's Set/Remove call is "the writer" at any instant.
type shared struct {
	dir     string
	idx     *index.Index
	logger  log.Logger
	metrics *storeMetrics

	threshold int64

	writeMu     sync.Mutex // guards everything below
	writer      *segment.Writer
	activeID    uint64
	uncompacted int64
	segmentIDs  []uint64 // all segment ids currently on disk, ascending

	latestCompactedID atomic.Uint64 // floor below which segments are gone
}

// Store is the bitcask engine. Each clone owns an independent set of
// lazily-opened read descriptors (readers) but shares everything in sh.
type Store struct {
	sh *shared

	readersMu sync.Mutex
	readers   map[uint64]*segment.Reader

	closed atomic.Bool
}

var _ Engine = (*Store)(nil)

// Open creates dir if absent, recovers the index by replaying every
// segment in ascending id order, and returns a Store ready for use
// (spec.md §4.D "Recovery").
func Open(dir string, opts ...Option) (*Store, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("engine: create data dir %s: %w", dir, err)
	}

	ids, err := segment.ListIDs(dir)
	if err != nil {
		return nil, fmt.Errorf("engine: list segments: %w", err)
	}

	idx := index.New()
	var uncompacted int64

	for _, id := range ids {
		n, err := loadSegment(dir, id, idx)
		if err != nil {
			return nil, fmt.Errorf("engine: recover segment %d: %w", id, err)
		}
		uncompacted += n
	}

	var activeID uint64
	if len(ids) > 0 {
		activeID = ids[len(ids)-1]
	}

	w, err := segment.CreateWriter(dir, activeID)
	if err != nil {
		return nil, fmt.Errorf("engine: open active segment %d: %w", activeID, err)
	}

	segIDs := ids
	if len(segIDs) == 0 {
		segIDs = []uint64{activeID}
	}

	sh := &shared{
		dir:         dir,
		idx:         idx,
		logger:      cfg.Logger,
		metrics:     newStoreMetrics(cfg.Registerer),
		threshold:   cfg.CompactionThreshold,
		writer:      w,
		activeID:    activeID,
		uncompacted: uncompacted,
		segmentIDs:  segIDs,
	}
	sh.metrics.uncompactedBytes.Set(float64(uncompacted))
	sh.metrics.activeSegmentID.Set(float64(activeID))

	level.Info(cfg.Logger).Log("msg", "engine recovered", "dir", dir, "segments", len(ids), "active_id", activeID, "uncompacted", uncompacted)

	return &Store{sh: sh, readers: make(map[uint64]*segment.Reader)}, nil
}

// loadSegment replays every record in segment id, updating idx exactly as a
// live Set/Remove would, and returns the bytes it adds to the uncompacted
// counter. Recovery treats a Remove's own record length the same way the
// live Remove path does (spec.md §9 open question, resolved: count it).
func loadSegment(dir string, id uint64, idx *index.Index) (int64, error) {
	r, err := segment.OpenReader(dir, id)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	dec := record.NewDecoder(r)
	var uncompacted int64
	var pos int64

	for {
		rec, end, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("decode record at offset %d: %w", pos, err)
		}
		length := end - pos

		switch rec.Kind {
		case record.KindSet:
			if old, ok := idx.Get(rec.Key); ok {
				uncompacted += old.Length
			}
			idx.Put(rec.Key, index.Locator{SegmentID: id, Offset: pos, Length: length})
		case record.KindRemove:
			if old, ok := idx.Get(rec.Key); ok {
				uncompacted += old.Length
			}
			idx.Delete(rec.Key)
			uncompacted += length
		}

		pos = end
	}

	return uncompacted, nil
}

// Clone returns a new handle sharing the directory, index and writer state
// with s, but with its own empty reader-descriptor cache.
func (s *Store) Clone() Engine {
	return &Store{sh: s.sh, readers: make(map[uint64]*segment.Reader)}
}

// Get resolves key via the index (lock-free) and, on a hit, seeks the
// owning segment and decodes exactly one record.
func (s *Store) Get(key string) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, kverrors.ErrClosed
	}
	loc, ok := s.sh.idx.Get(key)
	if !ok {
		return nil, false, nil
	}

	r, err := s.readerFor(loc.SegmentID)
	if err != nil {
		return nil, false, fmt.Errorf("engine: get %q: %w", key, err)
	}
	if _, err := r.Seek(loc.Offset, io.SeekStart); err != nil {
		return nil, false, fmt.Errorf("engine: get %q: %w", key, err)
	}
	raw, err := r.Take(int(loc.Length))
	if err != nil {
		return nil, false, fmt.Errorf("engine: get %q: %w", key, err)
	}

	dec := record.NewDecoder(bytes.NewReader(raw))
	rec, _, err := dec.Next()
	if err != nil {
		return nil, false, fmt.Errorf("engine: get %q: decode: %w", key, err)
	}
	if rec.Kind != record.KindSet {
		return nil, false, kverrors.ErrWrongCommand
	}

	s.sh.metrics.gets.Inc()
	s.sh.metrics.bytesRead.Add(float64(loc.Length))
	return rec.Value, true, nil
}

// readerFor returns a cached reader for segID, opening one on first use and
// opportunistically evicting descriptors for segments the compactor has
// since reclaimed (spec.md §4.D step 7: readers close stale descriptors
// lazily on next read).
func (s *Store) readerFor(segID uint64) (*segment.Reader, error) {
	s.readersMu.Lock()
	defer s.readersMu.Unlock()

	floor := s.sh.latestCompactedID.Load()
	for id, r := range s.readers {
		if id < floor {
			r.Close()
			delete(s.readers, id)
		}
	}

	if r, ok := s.readers[segID]; ok {
		return r, nil
	}
	r, err := segment.OpenReader(s.sh.dir, segID)
	if err != nil {
		return nil, err
	}
	s.readers[segID] = r
	return r, nil
}

// Set appends a Set record under the writer mutex, flushes it, installs the
// new Locator, and triggers compaction if the uncompacted watermark is
// exceeded (spec.md §4.D "set").
func (s *Store) Set(key string, value []byte) error {
	if s.closed.Load() {
		return kverrors.ErrClosed
	}
	rec, err := record.NewSet(key, value)
	if err != nil {
		return err
	}
	raw, err := record.Encode(rec)
	if err != nil {
		return fmt.Errorf("engine: encode set %q: %w", key, err)
	}

	sh := s.sh
	sh.writeMu.Lock()
	defer sh.writeMu.Unlock()

	p := sh.writer.Position()
	if _, err := sh.writer.Write(raw); err != nil {
		return fmt.Errorf("engine: set %q: %w", key, err)
	}
	if err := sh.writer.Flush(); err != nil {
		return fmt.Errorf("engine: set %q: %w", key, err)
	}
	length := sh.writer.Position() - p

	if old, ok := sh.idx.Get(key); ok {
		sh.uncompacted += old.Length
	}
	sh.idx.Put(key, index.Locator{SegmentID: sh.activeID, Offset: p, Length: length})

	sh.metrics.sets.Inc()
	sh.metrics.bytesWritten.Add(float64(length))
	sh.metrics.uncompactedBytes.Set(float64(sh.uncompacted))

	if sh.uncompacted > sh.threshold {
		if err := s.compactLocked(); err != nil {
			level.Error(sh.logger).Log("msg", "compaction failed", "err", err)
			return fmt.Errorf("engine: compaction after set %q: %w", key, err)
		}
	}
	return nil
}

// Remove appends a Remove record and drops the index entry, or returns
// kverrors.ErrKeyNotFound without writing anything if the key is absent
// (spec.md §4.D "remove").
func (s *Store) Remove(key string) error {
	if s.closed.Load() {
		return kverrors.ErrClosed
	}

	sh := s.sh
	sh.writeMu.Lock()
	defer sh.writeMu.Unlock()

	old, ok := sh.idx.Get(key)
	if !ok {
		sh.metrics.keyNotFound.Inc()
		return kverrors.ErrKeyNotFound
	}

	rec, err := record.NewRemove(key)
	if err != nil {
		return err
	}
	raw, err := record.Encode(rec)
	if err != nil {
		return fmt.Errorf("engine: encode remove %q: %w", key, err)
	}

	p := sh.writer.Position()
	if _, err := sh.writer.Write(raw); err != nil {
		return fmt.Errorf("engine: remove %q: %w", key, err)
	}
	if err := sh.writer.Flush(); err != nil {
		return fmt.Errorf("engine: remove %q: %w", key, err)
	}
	length := sh.writer.Position() - p

	sh.idx.Delete(key)
	sh.uncompacted += old.Length + length

	sh.metrics.removes.Inc()
	sh.metrics.bytesWritten.Add(float64(length))
	sh.metrics.uncompactedBytes.Set(float64(sh.uncompacted))

	if sh.uncompacted > sh.threshold {
		if err := s.compactLocked(); err != nil {
			level.Error(sh.logger).Log("msg", "compaction failed", "err", err)
			return fmt.Errorf("engine: compaction after remove %q: %w", key, err)
		}
	}
	return nil
}

// Close releases this handle's own reader descriptors. It does not touch
// the shared writer or index, matching the documented handle lifecycle:
// the last clone dropped finalizes nothing durable, since every mutation
// is already flushed by the time it returns.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return kverrors.ErrClosed
	}
	s.readersMu.Lock()
	defer s.readersMu.Unlock()
	for id, r := range s.readers {
		r.Close()
		delete(s.readers, id)
	}
	return nil
}

// Shutdown closes the shared writer for good. It must be called at most
// once, by whichever handle owns the process lifetime (typically the
// handle Open returned), after all worker clones are done issuing
// mutations -- unlike Close, it is not safe to call per-clone.
func (s *Store) Shutdown() error {
	sh := s.sh
	sh.writeMu.Lock()
	defer sh.writeMu.Unlock()
	if sh.writer == nil {
		return nil
	}
	err := sh.writer.Close()
	sh.writer = nil
	return err
}
