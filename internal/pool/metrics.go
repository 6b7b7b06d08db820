// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// poolMetrics is shared by both Pool implementations so dashboards can
// compare them under the same names regardless of which is configured.
type poolMetrics struct {
	tasksSpawned  prometheus.Counter
	tasksPanicked prometheus.Counter
}

func newPoolMetrics(reg prometheus.Registerer, impl string) *poolMetrics {
	return &poolMetrics{
		tasksSpawned: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name:        "kvs_pool_tasks_spawned_total",
			Help:        "kvs_pool_tasks_spawned_total counts tasks submitted to the pool.",
			ConstLabels: prometheus.Labels{"impl": impl},
		}),
		tasksPanicked: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name:        "kvs_pool_tasks_panicked_total",
			Help:        "kvs_pool_tasks_panicked_total counts tasks whose panic was recovered by the pool.",
			ConstLabels: prometheus.Labels{"impl": impl},
		}),
	}
}
