// Package metrics exposes Prometheus instrumentation for the bot runtime.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lchbot_events_received_total",
		Help: "Total number of events accepted by the ingestion server, labelled by kind.",
	}, []string{"kind"})

	EventsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lchbot_events_rejected_total",
		Help: "Total number of inbound payloads rejected during normalization.",
	})

	EventsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lchbot_events_handled_total",
		Help: "Total number of events consumed by a handler, labelled by plugin ID.",
	}, []string{"plugin"})

	HandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lchbot_plugin_handler_errors_total",
		Help: "Total number of handler failures isolated by the dispatcher, labelled by plugin ID.",
	}, []string{"plugin"})

	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lchbot_dispatch_duration_ms",
		Help:    "End-to-end dispatch latency per event in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})

	ActionsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lchbot_actions_sent_total",
		Help: "Total number of outbound gateway actions, labelled by action and status.",
	}, []string{"action", "status"})
)
