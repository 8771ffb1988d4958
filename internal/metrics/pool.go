package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolStatter exposes connection pool statistics.
type PoolStatter interface {
	Stat() *pgxpool.Stat
}

// PoolCollector reports database pool statistics at scrape time.
type PoolCollector struct {
	pool PoolStatter

	total           *prometheus.Desc
	acquired        *prometheus.Desc
	idle            *prometheus.Desc
	max             *prometheus.Desc
	constructing    *prometheus.Desc
	emptyAcquire    *prometheus.Desc
	canceled        *prometheus.Desc
	lifetimeDestroy *prometheus.Desc
	idleDestroy     *prometheus.Desc
}

// NewPoolCollector creates a collector over the given pool.
func NewPoolCollector(pool PoolStatter) *PoolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "db", name), help, nil, nil)
	}
	return &PoolCollector{
		pool:            pool,
		total:           desc("connections_total", "Total number of connections in the pool."),
		acquired:        desc("connections_acquired", "Number of currently acquired connections."),
		idle:            desc("connections_idle", "Number of idle connections."),
		max:             desc("connections_max", "Maximum number of connections in the pool."),
		constructing:    desc("connections_constructing", "Number of connections being constructed."),
		emptyAcquire:    desc("acquire_empty_total", "Acquire attempts that had to wait for a connection."),
		canceled:        desc("acquire_canceled_total", "Acquire attempts that were canceled."),
		lifetimeDestroy: desc("lifetime_destroy_total", "Connections destroyed due to max lifetime."),
		idleDestroy:     desc("idle_destroy_total", "Connections destroyed due to max idle time."),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.acquired
	ch <- c.idle
	ch <- c.max
	ch <- c.constructing
	ch <- c.emptyAcquire
	ch <- c.canceled
	ch <- c.lifetimeDestroy
	ch <- c.idleDestroy
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.Stat()
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v)
	}
	gauge(c.total, float64(s.TotalConns()))
	gauge(c.acquired, float64(s.AcquiredConns()))
	gauge(c.idle, float64(s.IdleConns()))
	gauge(c.max, float64(s.MaxConns()))
	gauge(c.constructing, float64(s.ConstructingConns()))
	counter(c.emptyAcquire, float64(s.EmptyAcquireCount()))
	counter(c.canceled, float64(s.CanceledAcquireCount()))
	counter(c.lifetimeDestroy, float64(s.MaxLifetimeDestroyCount()))
	counter(c.idleDestroy, float64(s.MaxIdleDestroyCount()))
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewUpGauge returns a gauge that is 1 while the component answers a ping
// within timeout and 0 otherwise.
func NewUpGauge(component string, p Pinger, timeout time.Duration) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "up",
		Help:        "Component health status (1 = healthy, 0 = unhealthy).",
		ConstLabels: prometheus.Labels{"component": component},
	}, func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			return 0
		}
		return 1
	})
}
