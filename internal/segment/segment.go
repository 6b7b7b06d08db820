// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package segment provides positioned, buffered access to the append-only
// log files ("segments") that back the storage engine. A segment file is
// named "<id>.log" where id is a 64-bit unsigned decimal integer; its
// contents are a concatenation of record package records.
package segment

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const extension = ".log"

// Name returns the file name for segment id.
func Name(id uint64) string {
	return strconv.FormatUint(id, 10) + extension
}

// Path joins dir and the file name for segment id.
func Path(dir string, id uint64) string {
	return filepath.Join(dir, Name(id))
}

// ListIDs scans dir for files matching "<u64>.log" and returns their ids in
// ascending order. Any other file name is silently ignored (spec.md §4.D).
func ListIDs(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("segment: read dir %s: %w", dir, err)
	}

	ids := make([]uint64, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, extension) {
			continue
		}
		idStr := strings.TrimSuffix(name, extension)
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			// Malformed segment file name -- filtered out, not an error.
			continue
		}
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Reader wraps a read-only segment file with buffering and tracks its own
// logical read position so callers never need a stat/seek round trip to
// learn "where am I".
type Reader struct {
	f   *os.File
	buf *bufio.Reader
	pos int64
}

// OpenReader opens the segment with id in dir for reading.
func OpenReader(dir string, id uint64) (*Reader, error) {
	f, err := os.Open(Path(dir, id))
	if err != nil {
		return nil, fmt.Errorf("segment: open reader for id %d: %w", id, err)
	}
	return &Reader{f: f, buf: bufio.NewReader(f)}, nil
}

// Position returns the reader's current logical offset in O(1).
func (r *Reader) Position() int64 { return r.pos }

// Read implements io.Reader, advancing the logical position.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.buf.Read(p)
	r.pos += int64(n)
	return n, err
}

// Seek repositions the reader, discarding the buffer, and returns the new
// logical offset.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	n, err := r.f.Seek(offset, whence)
	if err != nil {
		return 0, fmt.Errorf("segment: seek: %w", err)
	}
	r.buf.Reset(r.f)
	r.pos = n
	return n, nil
}

// Take reads and returns exactly the next n bytes, advancing the logical
// position by n -- used by the engine to read one record's raw bytes given
// its Locator.
func (r *Reader) Take(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.buf, buf); err != nil {
		return nil, fmt.Errorf("segment: take %d bytes: %w", n, err)
	}
	r.pos += int64(n)
	return buf, nil
}

// Close releases the underlying file descriptor.
func (r *Reader) Close() error {
	return r.f.Close()
}

// Writer wraps an append-mode segment file with buffering and tracks the
// logical append position in O(1).
type Writer struct {
	f   *os.File
	buf *bufio.Writer
	pos int64
}

// CreateWriter creates (or reopens for append) the segment with id in dir.
func CreateWriter(dir string, id uint64) (*Writer, error) {
	f, err := os.OpenFile(Path(dir, id), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("segment: create writer for id %d: %w", id, err)
	}
	pos, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("segment: seek to end for id %d: %w", id, err)
	}
	return &Writer{f: f, buf: bufio.NewWriter(f), pos: pos}, nil
}

// Position returns the writer's current logical append offset in O(1).
func (w *Writer) Position() int64 { return w.pos }

// Write appends p to the segment's user-space buffer, advancing the
// logical position. It does not guarantee p is durable until Flush is
// called.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.buf.Write(p)
	w.pos += int64(n)
	if err != nil {
		return n, fmt.Errorf("segment: write: %w", err)
	}
	return n, nil
}

// Flush pushes the user-space buffer to the OS. No fsync is issued --
// durability here means "survives process crash", not "survives power
// loss", matching the source engine's documented weak-durability contract.
func (w *Writer) Flush() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("segment: flush: %w", err)
	}
	return nil
}

// Close flushes and releases the underlying file descriptor.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	return w.f.Close()
}

// Remove unlinks the segment file with id in dir. On Unix this is safe to
// call while other descriptors for the same file remain open -- they keep
// working against the unlinked inode until closed (spec.md §4.D compaction
// note).
func Remove(dir string, id uint64) error {
	if err := os.Remove(Path(dir, id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("segment: remove id %d: %w", id, err)
	}
	return nil
}
