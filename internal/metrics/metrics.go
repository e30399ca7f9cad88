// Package metrics exposes Prometheus collectors for cache store activity.
// A Collector satisfies cache.Observer, so stores report every poll outcome
// without depending on Prometheus directly.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/any-hub/diskcache/internal/cache"
)

// Collector 持有独立的 Registry，避免与进程内其他 Prometheus 指标冲突。
type Collector struct {
	registry *prometheus.Registry

	polls        *prometheus.CounterVec
	pollDuration *prometheus.HistogramVec
	purges       *prometheus.CounterVec
}

// NewCollector 创建并注册全部缓存指标。
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		polls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diskcache_polls_total",
				Help: "Total number of poll calls by store and outcome",
			},
			[]string{"store", "outcome"}, // outcome: hit, miss, error
		),
		pollDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "diskcache_poll_duration_seconds",
				Help:    "Duration of poll calls in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"store", "outcome"},
		),
		purges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diskcache_purges_total",
				Help: "Total number of operator purges by store and status",
			},
			[]string{"store", "status"}, // status: success, failed
		),
	}
}

// ObservePoll 实现 cache.Observer。
func (c *Collector) ObservePoll(store string, outcome cache.Outcome, elapsed time.Duration) {
	c.polls.WithLabelValues(store, string(outcome)).Inc()
	c.pollDuration.WithLabelValues(store, string(outcome)).Observe(elapsed.Seconds())
}

// ObservePurge 记录一次运维清理的结果。
func (c *Collector) ObservePurge(store string, err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	c.purges.WithLabelValues(store, status).Inc()
}

// Handler 返回 Prometheus exposition 格式的 HTTP handler。
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
