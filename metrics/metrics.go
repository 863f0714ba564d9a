// Package metrics exposes Prometheus collectors for client activity: HTTP round trips, async
// operation polls and outcomes, and stats snapshots delivered to consumers.
//
// All methods are safe on a nil *Collector, so components can record unconditionally.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "labclient"

// Operation outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

type Collector struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	polls           prometheus.Counter
	operations      *prometheus.CounterVec
	snapshots       *prometheus.CounterVec
}

// NewCollector creates the collectors and registers them with reg. A nil reg leaves them
// unregistered, which is convenient in tests.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "HTTP requests sent to the lab server.",
		}, []string{"method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests to the lab server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_polls_total",
			Help:      "Status polls issued for asynchronous operations.",
		}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Asynchronous operations that reached a terminal state.",
		}, []string{"outcome"}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_snapshots_total",
			Help:      "Stats snapshots delivered to consumers.",
		}, []string{"query"}),
	}
	if reg != nil {
		reg.MustRegister(c.requests, c.requestDuration, c.polls, c.operations, c.snapshots)
	}
	return c
}

// ObserveRequest records one HTTP round trip. A status of 0 means the request failed before
// a reply arrived and is recorded as "error".
func (c *Collector) ObserveRequest(method string, status int, d time.Duration) {
	if c == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	c.requests.WithLabelValues(method, label).Inc()
	c.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (c *Collector) PollIssued() {
	if c == nil {
		return
	}
	c.polls.Inc()
}

func (c *Collector) OperationFinished(outcome string) {
	if c == nil {
		return
	}
	c.operations.WithLabelValues(outcome).Inc()
}

func (c *Collector) SnapshotsDelivered(queryID string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.snapshots.WithLabelValues(queryID).Add(float64(n))
}
