// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultCompactionThreshold is the uncompacted-bytes watermark (spec.md
// §4.D) above which a set/remove triggers compaction before returning.
const DefaultCompactionThreshold int64 = 1 << 20 // 1 MiB

// Config holds Store construction options, built up via the functional
// Option pattern used throughout this codebase (and by the teacher's own
// walOpt options in wal.go).
type Config struct {
	Logger              log.Logger
	Registerer          prometheus.Registerer
	CompactionThreshold int64
}

// Option mutates a Config during Open.
type Option func(*Config)

// WithLogger sets the structured logger used for recovery, compaction and
// error reporting. Defaults to a no-op logger.
func WithLogger(l log.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithRegisterer sets the prometheus registry metrics are registered
// against. Defaults to nil, in which case promauto skips registration
// entirely -- the same nil-is-a-no-op convention internal/pool and
// internal/kvserver use, so repeated Store.Open calls in one process
// (tests opening several stores, or recovery reopening after Shutdown)
// never collide on the global DefaultRegisterer.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(c *Config) { c.Registerer = r }
}

// WithCompactionThreshold overrides DefaultCompactionThreshold.
func WithCompactionThreshold(n int64) Option {
	return func(c *Config) {
		if n > 0 {
			c.CompactionThreshold = n
		}
	}
}

func defaultConfig() Config {
	return Config{
		Logger:              log.NewNopLogger(),
		Registerer:          nil,
		CompactionThreshold: DefaultCompactionThreshold,
	}
}
