// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package kvserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type serverMetrics struct {
	connectionsAccepted prometheus.Counter
	connectionsActive   prometheus.Gauge
	requestsGet         prometheus.Counter
	requestsSet         prometheus.Counter
	requestsRemove      prometheus.Counter
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	return &serverMetrics{
		connectionsAccepted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kvs_server_connections_accepted_total",
			Help: "kvs_server_connections_accepted_total counts accepted TCP connections.",
		}),
		connectionsActive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "kvs_server_connections_active",
			Help: "kvs_server_connections_active is the number of connections currently being served.",
		}),
		requestsGet: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kvs_server_requests_total",
			Help: "kvs_server_requests_total counts dispatched requests by kind.",
			ConstLabels: prometheus.Labels{
				"kind": "get",
			},
		}),
		requestsSet: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kvs_server_requests_total",
			Help: "kvs_server_requests_total counts dispatched requests by kind.",
			ConstLabels: prometheus.Labels{
				"kind": "set",
			},
		}),
		requestsRemove: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kvs_server_requests_total",
			Help: "kvs_server_requests_total counts dispatched requests by kind.",
			ConstLabels: prometheus.Labels{
				"kind": "remove",
			},
		}),
	}
}
