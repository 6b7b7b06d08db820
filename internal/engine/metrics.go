// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type storeMetrics struct {
	gets             prometheus.Counter
	sets             prometheus.Counter
	removes          prometheus.Counter
	keyNotFound      prometheus.Counter
	bytesWritten     prometheus.Counter
	bytesRead        prometheus.Counter
	compactions      prometheus.Counter
	uncompactedBytes prometheus.Gauge
	activeSegmentID  prometheus.Gauge
}

func newStoreMetrics(reg prometheus.Registerer) *storeMetrics {
	return &storeMetrics{
		gets: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kvs_engine_gets_total",
			Help: "kvs_engine_gets_total counts Get calls that found a value.",
		}),
		sets: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kvs_engine_sets_total",
			Help: "kvs_engine_sets_total counts calls to Set.",
		}),
		removes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kvs_engine_removes_total",
			Help: "kvs_engine_removes_total counts successful calls to Remove.",
		}),
		keyNotFound: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kvs_engine_remove_key_not_found_total",
			Help: "kvs_engine_remove_key_not_found_total counts Remove calls for an absent key.",
		}),
		bytesWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kvs_engine_bytes_written_total",
			Help: "kvs_engine_bytes_written_total counts record bytes appended to segments, including during compaction.",
		}),
		bytesRead: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kvs_engine_bytes_read_total",
			Help: "kvs_engine_bytes_read_total counts record bytes read back from segments by Get.",
		}),
		compactions: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kvs_engine_compactions_total",
			Help: "kvs_engine_compactions_total counts completed compaction runs.",
		}),
		uncompactedBytes: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "kvs_engine_uncompacted_bytes",
			Help: "kvs_engine_uncompacted_bytes is the current lower bound on bytes reclaimable by compaction.",
		}),
		activeSegmentID: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "kvs_engine_active_segment_id",
			Help: "kvs_engine_active_segment_id is the id of the segment currently being appended to.",
		}),
	}
}
