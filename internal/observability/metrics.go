// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Reconciliation metrics
	EventsProcessed      prometheus.Counter
	EventsDropped        *prometheus.CounterVec
	NativeUpdatesApplied prometheus.Counter
	WrappedDeltasApplied prometheus.Counter

	// Bootstrap metrics
	BootstrapsCompleted prometheus.Counter
	BootstrapRetries    prometheus.Counter

	// Stream metrics
	StreamMessages   prometheus.Counter
	StreamReconnects prometheus.Counter
	DecodeErrors     *prometheus.CounterVec

	// Fanout metrics
	PushClients         prometheus.Gauge
	SnapshotsBroadcast  prometheus.Counter
	PushMessagesDropped prometheus.Counter

	// Latency metrics
	RPCCallLatency   *prometheus.HistogramVec
	BroadcastLatency prometheus.Histogram
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "wallet_watch"
	}

	return &Metrics{
		// Reconciliation metrics
		EventsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "events_processed_total",
			Help:      "Total number of transaction events applied",
		}),
		EventsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "events_dropped_total",
			Help:      "Total number of transaction events dropped by reason",
		}, []string{"reason"}),
		NativeUpdatesApplied: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "native_updates_applied_total",
			Help:      "Total number of absolute native balance updates applied",
		}),
		WrappedDeltasApplied: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "wrapped_deltas_applied_total",
			Help:      "Total number of wrapped balance deltas applied",
		}),

		// Bootstrap metrics
		BootstrapsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bootstrap",
			Name:      "completed_total",
			Help:      "Total number of account balance bootstraps completed",
		}),
		BootstrapRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bootstrap",
			Name:      "retries_total",
			Help:      "Total number of bootstrap fetch retries",
		}),

		// Stream metrics
		StreamMessages: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_total",
			Help:      "Total number of WebSocket stream messages received",
		}),
		StreamReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Total number of stream reconnect attempts",
		}),
		DecodeErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "decode_errors_total",
			Help:      "Total number of stream decode errors by kind",
		}, []string{"kind"}),

		// Fanout metrics
		PushClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "push_clients",
			Help:      "Current number of connected WebSocket push clients",
		}),
		SnapshotsBroadcast: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "snapshots_broadcast_total",
			Help:      "Total number of snapshot broadcasts published",
		}),
		PushMessagesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "push_messages_dropped_total",
			Help:      "Total number of push messages dropped on slow readers",
		}),

		// Latency metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		BroadcastLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "broadcast_latency_seconds",
			Help:      "Snapshot build and publish latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEventProcessed increments the events processed counter.
func RecordEventProcessed() {
	DefaultMetrics.EventsProcessed.Inc()
}

// RecordEventDropped records a dropped transaction event by reason.
func RecordEventDropped(reason string) {
	DefaultMetrics.EventsDropped.WithLabelValues(reason).Inc()
}

// RecordNativeUpdateApplied increments the native updates counter.
func RecordNativeUpdateApplied() {
	DefaultMetrics.NativeUpdatesApplied.Inc()
}

// RecordWrappedDeltaApplied increments the wrapped deltas counter.
func RecordWrappedDeltaApplied() {
	DefaultMetrics.WrappedDeltasApplied.Inc()
}

// RecordBootstrapCompleted increments the bootstrap completion counter.
func RecordBootstrapCompleted() {
	DefaultMetrics.BootstrapsCompleted.Inc()
}

// RecordBootstrapRetry increments the bootstrap retry counter.
func RecordBootstrapRetry() {
	DefaultMetrics.BootstrapRetries.Inc()
}

// RecordStreamMessage increments the stream message counter.
func RecordStreamMessage() {
	DefaultMetrics.StreamMessages.Inc()
}

// RecordStreamReconnect increments the stream reconnect counter.
func RecordStreamReconnect() {
	DefaultMetrics.StreamReconnects.Inc()
}

// RecordDecodeError records a stream decode error by kind.
func RecordDecodeError(kind string) {
	DefaultMetrics.DecodeErrors.WithLabelValues(kind).Inc()
}

// SetPushClients updates the connected push client gauge.
func SetPushClients(n int) {
	DefaultMetrics.PushClients.Set(float64(n))
}

// RecordSnapshotBroadcast records one broadcast and its latency.
func RecordSnapshotBroadcast(seconds float64) {
	DefaultMetrics.SnapshotsBroadcast.Inc()
	DefaultMetrics.BroadcastLatency.Observe(seconds)
}

// RecordPushDropped increments the dropped push message counter.
func RecordPushDropped() {
	DefaultMetrics.PushMessagesDropped.Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}
