// Package telemetry holds the prometheus instrumentation for a node process.
// Exposition is opt-in on a side HTTP port; the wire protocol owns stdout and
// must never be mixed with metrics output.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	MessagesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "node",
			Name:      "messages_received_total",
			Help:      "Total envelopes successfully parsed from the transport.",
		},
	)

	MessagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "node",
			Name:      "messages_sent_total",
			Help:      "Total envelopes written to the transport.",
		},
	)

	MalformedLines = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "node",
			Name:      "malformed_lines_total",
			Help:      "Inbound lines dropped because they failed to parse.",
		},
	)

	HandledMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "node",
			Name:      "handled_messages_total",
			Help:      "Messages dispatched to a handler, labeled by body type.",
		},
		[]string{"type"},
	)

	DroppedReplies = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "node",
			Name:      "dropped_replies_total",
			Help:      "Replies discarded because no request was outstanding.",
		},
	)

	GossipDeltaSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "node",
			Name:      "gossip_delta_size",
			Help:      "Values per outbound gossip delta.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	SyncMerges = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "node",
			Name:      "sync_merges_total",
			Help:      "Counter vector merges applied from received sync messages.",
		},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "node",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		MessagesReceived,
		MessagesSent,
		MalformedLines,
		HandledMessages,
		DroppedReplies,
		GossipDeltaSize,
		SyncMerges,
		uptime,
	)
}

// Handler exposes /metrics. Mount it with mux.Handle("/metrics", telemetry.Handler()).
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
