// Package metrics holds the Prometheus collectors of the directory.
package metrics

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "thingdir"

// Registry is the registry served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	mutationsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Count of directory mutations by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)
	eventsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Count of events appended to the event log by kind.",
		},
		[]string{"kind"},
	)
	droppedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Count of live events a stream reader missed because it was not receiving.",
		},
		[]string{"channel"},
	)
	evaluationsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_evaluations_total",
			Help:      "Count of continuous query evaluations by outcome.",
		},
		[]string{"outcome"},
	)
	readersGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_readers",
			Help:      "Number of attached stream readers.",
		},
	)
	subscriptionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions",
			Help:      "Number of registered continuous queries.",
		},
	)
)

var registerMetrics sync.Once

// Register all metrics, plus the Go and process collectors.
func Register() {
	registerMetrics.Do(func() {
		Registry.MustRegister(mutationsCounter)
		Registry.MustRegister(eventsCounter)
		Registry.MustRegister(droppedCounter)
		Registry.MustRegister(evaluationsCounter)
		Registry.MustRegister(readersGauge)
		Registry.MustRegister(subscriptionsGauge)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// Mutation outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// RecordMutation records one Put, Patch, Delete or Create call.
func RecordMutation(op, outcome string) {
	mutationsCounter.WithLabelValues(op, outcome).Inc()
}

// RecordEvent records an event appended to the log.
func RecordEvent(kind string) {
	eventsCounter.WithLabelValues(kind).Inc()
}

// RecordDropped records a live event missed by a reader of channel.
// Per-subscription channels share one label value.
func RecordDropped(channel string) {
	droppedCounter.WithLabelValues(ChannelLabel(channel)).Inc()
}

// ChannelLabel maps a channel key to a bounded label value.
func ChannelLabel(channel string) string {
	if prefix, _, ok := strings.Cut(channel, "/"); ok {
		return prefix
	}
	return channel
}

// RecordEvaluation records one continuous query evaluation. outcome is
// "match", "miss" or "error".
func RecordEvaluation(outcome string) {
	evaluationsCounter.WithLabelValues(outcome).Inc()
}

// ReaderAttached and ReaderDetached track live stream readers.
func ReaderAttached() { readersGauge.Inc() }

func ReaderDetached() { readersGauge.Dec() }

// SetSubscriptions records the number of registered continuous queries.
func SetSubscriptions(n int) {
	subscriptionsGauge.Set(float64(n))
}
