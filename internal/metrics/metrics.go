// Package metrics holds the Prometheus collectors for the repository,
// the notification engine and the content generator.
//
// Every method is safe on a nil *Metrics, so components can be built
// without a registry in tests and one-shot CLI commands.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "deadlined"

// Rejection reasons recorded by DeadlineRejected.
const (
	ReasonInvalid   = "invalid"
	ReasonDuplicate = "duplicate"
	ReasonStorage   = "storage"
)

// Metrics groups the service's collectors.
type Metrics struct {
	deadlinesAdded    *prometheus.CounterVec
	deadlinesRejected *prometheus.CounterVec
	fired             *prometheus.CounterVec
	suppressed        prometheus.Counter
	expired           prometheus.Counter
	handlerErrors     prometheus.Counter
	contentFallback   prometheus.Counter
	scanDuration      prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		deadlinesAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deadlines_added_total",
			Help:      "Deadlines accepted into the repository.",
		}, []string{"op"}),
		deadlinesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deadlines_rejected_total",
			Help:      "Deadlines rejected on insert, by reason.",
		}, []string{"reason"}),
		fired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_fired_total",
			Help:      "Notifications delivered to handlers, by threshold in hours.",
		}, []string{"threshold"}),
		suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_suppressed_total",
			Help:      "Notifications suppressed by the per-deadline cooldown.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_expired_total",
			Help:      "Thresholds whose fire time had already passed at scan.",
		}),
		handlerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Notification handler failures.",
		}),
		contentFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "content_fallback_total",
			Help:      "Notifications whose content came from the template fallback.",
		}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Duration of notification scans.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.deadlinesAdded,
			m.deadlinesRejected,
			m.fired,
			m.suppressed,
			m.expired,
			m.handlerErrors,
			m.contentFallback,
			m.scanDuration,
		)
	}
	return m
}

// DeadlinesAdded counts n accepted deadlines for op ("add" or "batch").
func (m *Metrics) DeadlinesAdded(op string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.deadlinesAdded.WithLabelValues(op).Add(float64(n))
}

func (m *Metrics) DeadlineRejected(reason string) {
	if m == nil {
		return
	}
	m.deadlinesRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) NotificationFired(threshold int) {
	if m == nil {
		return
	}
	m.fired.WithLabelValues(strconv.Itoa(threshold)).Inc()
}

func (m *Metrics) NotificationSuppressed() {
	if m == nil {
		return
	}
	m.suppressed.Inc()
}

func (m *Metrics) NotificationExpired() {
	if m == nil {
		return
	}
	m.expired.Inc()
}

func (m *Metrics) HandlerError() {
	if m == nil {
		return
	}
	m.handlerErrors.Inc()
}

func (m *Metrics) ContentFallback() {
	if m == nil {
		return
	}
	m.contentFallback.Inc()
}

// ObserveScan records how long a scan took.
func (m *Metrics) ObserveScan(d time.Duration) {
	if m == nil {
		return
	}
	m.scanDuration.Observe(d.Seconds())
}
