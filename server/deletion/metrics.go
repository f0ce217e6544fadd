package deletion

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of the orchestrator. A nil *Metrics
// records nothing.
type Metrics struct {
	DeletesTotal   *prometheus.CounterVec   // caldelete_deletes_total{strategy,status}
	DeleteDuration *prometheus.HistogramVec // caldelete_delete_duration_seconds{strategy}
	ChildFailures  prometheus.Counter       // caldelete_child_failures_total
	LockWait       prometheus.Histogram     // caldelete_lock_wait_seconds
	LockTimeouts   prometheus.Counter       // caldelete_lock_timeouts_total
	Notifications  prometheus.Counter       // caldelete_implicit_notifications_total
}

// NewMetrics registers the orchestrator metrics with registry, or the default
// registerer if registry is nil.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	return &Metrics{
		DeletesTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "caldelete_deletes_total",
			Help: "DELETE requests by strategy and resulting status",
		}, []string{"strategy", "status"}),

		DeleteDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "caldelete_delete_duration_seconds",
			Help:    "DELETE duration in seconds by strategy",
			Buckets: prometheus.DefBuckets,
		}, []string{"strategy"}),

		ChildFailures: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "caldelete_child_failures_total",
			Help: "Members that failed during collection deletes",
		}),

		LockWait: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "caldelete_lock_wait_seconds",
			Help:    "Time spent acquiring scheduling object locks",
			Buckets: prometheus.DefBuckets,
		}),

		LockTimeouts: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "caldelete_lock_timeouts_total",
			Help: "Scheduling object lock acquisitions that timed out",
		}),

		Notifications: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "caldelete_implicit_notifications_total",
			Help: "Implicit scheduling notifications sent after deletes",
		}),
	}
}

func (m *Metrics) observeDelete(strategy string, status int, start time.Time) {
	if m == nil {
		return
	}
	m.DeletesTotal.WithLabelValues(strategy, strconv.Itoa(status)).Inc()
	m.DeleteDuration.WithLabelValues(strategy).Observe(time.Since(start).Seconds())
}

func (m *Metrics) childFailed() {
	if m != nil {
		m.ChildFailures.Inc()
	}
}

func (m *Metrics) lockAcquired(wait time.Duration) {
	if m != nil {
		m.LockWait.Observe(wait.Seconds())
	}
}

func (m *Metrics) lockTimedOut() {
	if m != nil {
		m.LockTimeouts.Inc()
	}
}

func (m *Metrics) notified() {
	if m != nil {
		m.Notifications.Inc()
	}
}
