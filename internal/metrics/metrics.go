// Package metrics holds the Prometheus collectors exported by the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	eventsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Name:      "events_processed_total",
		Help:      "Events run through the update pipeline, by source and outcome.",
	}, []string{"source", "outcome"})

	unauthorized = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Name:      "unauthorized_responses_total",
		Help:      "401 responses written, by reason.",
	}, []string{"reason"})

	queueRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tracker",
		Name:      "ingest_queue_rejected_total",
		Help:      "Events rejected because the ingest queue was full.",
	})
)

func init() {
	registry.MustRegister(eventsProcessed, unauthorized, queueRejected)
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveImport records the outcome counts of one Update call.
func ObserveImport(source string, updated, ignored int) {
	eventsProcessed.WithLabelValues(source, "updated").Add(float64(updated))
	eventsProcessed.WithLabelValues(source, "ignored").Add(float64(ignored))
}

func ObserveUnauthorized(reason string) {
	unauthorized.WithLabelValues(reason).Inc()
}

func ObserveQueueRejected(n int) {
	queueRejected.Add(float64(n))
}
