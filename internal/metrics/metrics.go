// Package metrics provides Prometheus metrics for the directory explorer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Reconciliation metrics
	reconcileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_reconcile_total",
			Help: "Total reconciliation calls by outcome",
		},
		[]string{"outcome"},
	)

	reconcileNodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_reconcile_nodes_total",
			Help: "Nodes touched by reconciliation, by kind of change",
		},
		[]string{"change"},
	)

	multiSourceReparentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "explorer_reparent_multi_source_total",
			Help: "Reconciliations whose moved children came from more than one parent",
		},
	)

	treeSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "explorer_tree_size",
			Help: "Number of directories currently known",
		},
	)

	staleResponsesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "explorer_stale_responses_total",
			Help: "Directory responses discarded because a newer one was applied",
		},
	)

	// Fetch metrics
	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "explorer_fetch_duration_seconds",
			Help:    "Directory server request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "status"},
	)

	// Notification metrics
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_notifications_total",
			Help: "Directory notifications received by type",
		},
		[]string{"type"},
	)

	notifierConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "explorer_notifier_connected",
			Help: "1 while the notification socket is connected",
		},
	)

	// Tree event fan-out
	eventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "explorer_event_subscribers",
			Help: "Number of in-process tree event subscribers",
		},
	)

	eventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "explorer_events_dropped_total",
			Help: "Tree events dropped for slow subscribers",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordReconcile records one reconciliation call.
func RecordReconcile(changed bool, added, updated, removed, reparented, sources int) {
	outcome := "changed"
	if !changed {
		outcome = "unchanged"
	}
	reconcileTotal.WithLabelValues(outcome).Inc()
	reconcileNodesTotal.WithLabelValues("added").Add(float64(added))
	reconcileNodesTotal.WithLabelValues("updated").Add(float64(updated))
	reconcileNodesTotal.WithLabelValues("removed").Add(float64(removed))
	reconcileNodesTotal.WithLabelValues("reparented").Add(float64(reparented))
	if sources > 1 {
		multiSourceReparentTotal.Inc()
	}
}

// SetTreeSize sets the number of known directories.
func SetTreeSize(n int) {
	treeSize.Set(float64(n))
}

// RecordStaleResponse records a discarded out-of-order response.
func RecordStaleResponse() {
	staleResponsesTotal.Inc()
}

// RecordFetch records a request to the directory server. status is 0 for
// transport errors.
func RecordFetch(endpoint string, status int, duration time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	fetchDuration.WithLabelValues(endpoint, label).Observe(duration.Seconds())
}

// RecordNotification records a received directory notification.
func RecordNotification(notificationType string) {
	if notificationType == "" {
		notificationType = "unknown"
	}
	notificationsTotal.WithLabelValues(notificationType).Inc()
}

// SetNotifierConnected flags the notification socket state.
func SetNotifierConnected(connected bool) {
	if connected {
		notifierConnected.Set(1)
		return
	}
	notifierConnected.Set(0)
}

// SetEventSubscribers sets the number of tree event subscribers.
func SetEventSubscribers(n int) {
	eventSubscribers.Set(float64(n))
}

// RecordEventDropped records a tree event dropped for a slow subscriber.
func RecordEventDropped() {
	eventsDroppedTotal.Inc()
}
