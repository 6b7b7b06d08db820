// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package boltengine implements the Engine contract on top of go.etcd.io/bbolt,
// the alternate embedded storage backend (spec.md §9 "Supplemented Features").
// It is the Go analogue of the original's sled-backed engine: every byte it
// stores goes through a single B+tree bucket with fsync-on-commit durability,
// trading the segment engine's append-only write amplification profile for
// bbolt's copy-on-write page model.
package boltengine

import (
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/dreamsxin/kvs/internal/engine"
	"github.com/dreamsxin/kvs/internal/kverrors"
)

var bucketName = []byte("kvs")

// Store is a bbolt-backed Engine implementation. Unlike the segment engine,
// every clone shares the same *bbolt.DB directly -- bbolt already serializes
// writers and allows concurrent readers internally, so there is no separate
// writer-mutex or per-clone reader cache to maintain.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) a bbolt database file at path and ensures
// the single key/value bucket exists.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0644, bbolt.DefaultOptions)
	if err != nil {
		return nil, fmt.Errorf("boltengine: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltengine: create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Get performs a read-only transaction and copies the stored value out,
// since bbolt's returned byte slices are only valid for the lifetime of the
// transaction.
func (s *Store) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v == nil {
			return nil
		}
		value = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("boltengine: get %q: %w", key, err)
	}
	return value, value != nil, nil
}

// Set upserts key, committing (and fsyncing, per bbolt's default) before
// returning.
func (s *Store) Set(key string, value []byte) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("boltengine: set %q: %w", key, err)
	}
	return nil
}

// Remove deletes key, returning kverrors.ErrKeyNotFound if it was absent.
func (s *Store) Remove(key string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b.Get([]byte(key)) == nil {
			return kverrors.ErrKeyNotFound
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		if err == kverrors.ErrKeyNotFound {
			return err
		}
		return fmt.Errorf("boltengine: remove %q: %w", key, err)
	}
	return nil
}

var _ engine.Engine = (*Store)(nil)

// Clone returns s itself: bbolt's *DB is already safe for concurrent use by
// any number of callers, so every clone can share one handle.
func (s *Store) Clone() engine.Engine { return s }

// Close is a per-clone no-op. Every clone shares the one *bbolt.DB, so a
// per-connection Close (as kvserver.handleConn defers) must not touch it --
// only Shutdown, called once by whichever handle owns the process lifetime,
// does that. This mirrors engine.Store's Close/Shutdown split.
func (s *Store) Close() error { return nil }

// Shutdown closes the underlying database file. Must be called at most
// once, after every clone is done issuing operations -- unlike Close, it is
// not safe to call per-clone.
func (s *Store) Shutdown() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("boltengine: close: %w", err)
	}
	return nil
}
