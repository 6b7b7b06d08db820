// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package pool implements the thread-pool contract (spec.md §4.E): a fixed
// number of goroutines drain a submission queue, Spawn never blocks the
// caller waiting for a worker, and a panicking task is contained instead of
// taking down a worker (or the whole pool) permanently. Two independent
// implementations exist -- SharedQueuePool and StealingPool -- grounded on
// two different third-party scheduling strategies found across the example
// corpus, selectable by the server the same way engine.Engine has two
// concrete backends.
package pool

import (
	"fmt"
	"runtime/debug"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Pool is the contract internal/kvserver depends on. Both implementations
// are safe for concurrent Spawn calls from multiple goroutines.
type Pool interface {
	// Spawn enqueues task for execution by a worker goroutine. It returns
	// immediately; it does not wait for a free worker or for task to run.
	Spawn(task func())
	// Close stops accepting new tasks and waits for all enqueued and
	// in-flight tasks to finish before returning.
	Close() error
}

// recoverTask wraps task so a panic inside it is logged and contained
// rather than propagating out of the worker goroutine that runs it, which
// for both gammazero/workerpool and sourcegraph/conc/pool would otherwise
// either crash the process or permanently lose a worker.
func recoverTask(logger log.Logger, m *poolMetrics, task func()) func() {
	m.tasksSpawned.Inc()
	return func() {
		defer func() {
			if r := recover(); r != nil {
				m.tasksPanicked.Inc()
				level.Error(logger).Log("msg", "pool: recovered panic in task", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			}
		}()
		task()
	}
}
