// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package pool

import (
	"github.com/gammazero/workerpool"
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
)

// SharedQueuePool is a fixed-size pool of workers all pulling from one
// shared unbounded task queue, backed by gammazero/workerpool -- the
// "every worker is interchangeable" scheduling strategy.
type SharedQueuePool struct {
	wp      *workerpool.WorkerPool
	logger  log.Logger
	metrics *poolMetrics
}

var _ Pool = (*SharedQueuePool)(nil)

// NewSharedQueuePool starts n worker goroutines draining a shared queue.
func NewSharedQueuePool(n int, logger log.Logger, reg prometheus.Registerer) *SharedQueuePool {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &SharedQueuePool{wp: workerpool.New(n), logger: logger, metrics: newPoolMetrics(reg, "shared")}
}

// Spawn submits task to the shared queue. Submit itself can briefly block
// if the queue's internal channel is momentarily full, but never waits for
// task to complete.
func (p *SharedQueuePool) Spawn(task func()) {
	p.wp.Submit(recoverTask(p.logger, p.metrics, task))
}

// Close stops accepting submissions and waits for the queue to drain.
func (p *SharedQueuePool) Close() error {
	p.wp.StopWait()
	return nil
}
