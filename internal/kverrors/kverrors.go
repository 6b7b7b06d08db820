// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package kverrors holds the sentinel errors shared across the engine,
// RPC framing, server and client packages, following the teacher's pattern
// of one small set of package-level sentinels (types.ErrNotFound,
// types.ErrCorrupt, types.ErrSealed, types.ErrClosed in wal.go) rather than
// an error-code enum.
package kverrors

import "errors"

var (
	// ErrKeyNotFound is returned by Remove when the key is absent, and
	// surfaced to the client the same way.
	ErrKeyNotFound = errors.New("kvs: key not found")

	// ErrWrongCommand is returned when a decoded record's shape doesn't
	// match what the index's Locator promised (Get resolving to something
	// other than a Set record), or when a client receives a Response whose
	// variant doesn't match the Request it sent -- both are protocol /
	// invariant violations, not user errors.
	ErrWrongCommand = errors.New("kvs: wrong command")

	// ErrClosed is returned by engine.Store's Get, Set and Remove on a
	// handle after its Close, and by a second Close of the same handle.
	ErrClosed = errors.New("kvs: use of closed handle")
)
