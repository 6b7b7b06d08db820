// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package pool

import (
	"sync"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sourcegraph/conc/pool"
)

// StealingPool bounds concurrency to n in-flight tasks via
// sourcegraph/conc/pool rather than draining one shared queue -- closer to
// a work-stealing scheduler's "any idle goroutine takes the next task"
// behavior than SharedQueuePool's single channel.
type StealingPool struct {
	p       *pool.Pool
	logger  log.Logger
	metrics *poolMetrics

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup // spawns whose p.Go call hasn't registered yet
}

var _ Pool = (*StealingPool)(nil)

// NewStealingPool returns a pool that runs at most n tasks concurrently.
func NewStealingPool(n int, logger log.Logger, reg prometheus.Registerer) *StealingPool {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &StealingPool{p: pool.New().WithMaxGoroutines(n), logger: logger, metrics: newPoolMetrics(reg, "stealing")}
}

// Spawn hands task to the pool. conc's Pool.Go blocks the calling goroutine
// until a slot under WithMaxGoroutines frees up, which would violate the
// pool contract's "Spawn never blocks the caller" guarantee; the wait is
// therefore pushed onto its own goroutine so Spawn itself returns
// immediately and the task still runs under the pool's concurrency cap.
func (p *StealingPool) Spawn(task func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.pending.Add(1)
	p.mu.Unlock()

	wrapped := recoverTask(p.logger, p.metrics, task)
	go func() {
		defer p.pending.Done()
		p.p.Go(wrapped)
	}()
}

// Close waits for every spawned task to finish, including ones whose Go
// call hasn't registered with the underlying pool yet. After Close
// returns, Spawn is a no-op.
func (p *StealingPool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.pending.Wait()
	p.p.Wait()
	return nil
}
