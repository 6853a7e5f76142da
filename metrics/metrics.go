// Package metrics exposes Prometheus collectors for the keys API and the
// server that serves them.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors groups the keys API metrics. A nil *Collectors discards observations.
type Collectors struct {
	httpRequests        *prometheus.CounterVec
	storeFetchDuration  *prometheus.HistogramVec
	snapshotReady       prometheus.Gauge
	snapshotBlockNumber prometheus.Gauge
	snapshotKeysOpIndex prometheus.Gauge
}

// NewCollectors creates the collectors and registers them with reg.
func NewCollectors(namespace string, reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		storeFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_fetch_duration_seconds",
			Help:      "Registry store read latency by operation and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		snapshotReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_ready",
			Help:      "1 when the last read observed a completed sync pass.",
		}),
		snapshotBlockNumber: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_block_number",
			Help:      "Block number of the last observed sync pass.",
		}),
		snapshotKeysOpIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_keys_op_index",
			Help:      "keysOpIndex of the last observed sync pass.",
		}),
	}
	reg.MustRegister(c.httpRequests, c.storeFetchDuration, c.snapshotReady, c.snapshotBlockNumber, c.snapshotKeysOpIndex)
	return c
}

func (c *Collectors) ObserveRequest(route, method string, code int) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
}

func (c *Collectors) ObserveFetch(operation, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.storeFetchDuration.WithLabelValues(operation, outcome).Observe(d.Seconds())
}

// ObserveSnapshot records the sync pass a read observed.
func (c *Collectors) ObserveSnapshot(ready bool, blockNumber, keysOpIndex uint64) {
	if c == nil {
		return
	}
	if !ready {
		c.snapshotReady.Set(0)
		return
	}
	c.snapshotReady.Set(1)
	c.snapshotBlockNumber.Set(float64(blockNumber))
	c.snapshotKeysOpIndex.Set(float64(keysOpIndex))
}

// MetricsServer serves a dedicated Prometheus registry.
type MetricsServer struct {
	srv        *http.Server
	registry   *prometheus.Registry
	collectors *Collectors
}

func New(namespace, listenAddr string) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &MetricsServer{
		srv: &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		registry:   registry,
		collectors: NewCollectors(namespace, registry),
	}, nil
}

func (m *MetricsServer) Collectors() *Collectors {
	return m.collectors
}

// Handler returns the /metrics handler, for tests and embedding.
func (m *MetricsServer) Handler() http.Handler {
	return m.srv.Handler
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
