package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics lives on its own registry so several servers (and tests) can
// coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	IndexChunks     prometheus.Gauge
	Ready           prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_http_requests_total",
				Help: "Total number of HTTP requests processed",
			},
			[]string{"method", "path", "status"},
		),
		// From sub-millisecond health checks to multi-second generations.
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rag_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),
		IndexChunks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rag_index_chunks",
			Help: "Number of chunks in the loaded index",
		}),
		Ready: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rag_ready",
			Help: "1 when the index is ready to serve queries",
		}),
	}
}

// WatchCache exports the query cache hit and miss counters.
func (m *Metrics) WatchCache(stats func() (hits, misses uint64)) {
	factory := promauto.With(m.registry)
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "rag_query_cache_hits_total",
		Help: "Query cache hits",
	}, func() float64 {
		hits, _ := stats()
		return float64(hits)
	})
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "rag_query_cache_misses_total",
		Help: "Query cache misses",
	}, func() float64 {
		_, misses := stats()
		return float64(misses)
	})
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
