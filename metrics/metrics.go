package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// GenerationsTotal counts report generation requests by outcome.
	GenerationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "honestreport",
		Subsystem: "pipeline",
		Name:      "generations_total",
		Help:      "Total number of report generation requests, labeled by outcome.",
	}, []string{"outcome"})

	// GenerationDurationSeconds is end-to-end time per generation, measured in the service.
	GenerationDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "honestreport",
		Subsystem: "pipeline",
		Name:      "generation_duration_seconds",
		Help:      "End-to-end time to handle a generation request (search + summarize + persist).",
		// Keep buckets fairly coarse to avoid high-cardinality time series.
		Buckets: []float64{0.05, 0.25, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"outcome"})

	// CacheHitsTotal counts generation requests served from an existing report.
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "honestreport",
		Subsystem: "pipeline",
		Name:      "cache_hits_total",
		Help:      "Total number of generation requests answered from an already stored report.",
	})

	// SearchRequestsTotal counts outbound search API calls by kind and result.
	SearchRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "honestreport",
		Subsystem: "search",
		Name:      "requests_total",
		Help:      "Total number of search API calls, labeled by kind (discussions, image) and result.",
	}, []string{"kind", "result"})

	// LLMRequestsTotal counts LLM completion calls by result.
	LLMRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "honestreport",
		Subsystem: "llm",
		Name:      "requests_total",
		Help:      "Total number of LLM completion calls, labeled by result.",
	}, []string{"result"})

	// EnrichmentJobsTotal counts image enrichment jobs by outcome.
	EnrichmentJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "honestreport",
		Subsystem: "enrichment",
		Name:      "jobs_total",
		Help:      "Total number of image enrichment jobs processed, labeled by outcome.",
	}, []string{"outcome"})

	// EnrichmentInFlight is the current number of enrichment jobs being processed.
	EnrichmentInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "honestreport",
		Subsystem: "enrichment",
		Name:      "jobs_in_flight",
		Help:      "Current number of image enrichment jobs being processed by worker goroutines.",
	})

	// EnrichmentQueueDepth is the current number of jobs waiting in the in-process queue.
	EnrichmentQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "honestreport",
		Subsystem: "enrichment",
		Name:      "queue_depth",
		Help:      "Current number of image enrichment jobs waiting in the in-process queue.",
	})

	// RabbitMQConnected is 1 when the subscriber considers itself connected.
	RabbitMQConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "honestreport",
		Subsystem: "enrichment",
		Name:      "rabbitmq_connected",
		Help:      "Whether the enrichment RabbitMQ subscriber is currently connected (best-effort).",
	})
)

// Register registers service metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			GenerationsTotal,
			GenerationDurationSeconds,
			CacheHitsTotal,
			SearchRequestsTotal,
			LLMRequestsTotal,
			EnrichmentJobsTotal,
			EnrichmentInFlight,
			EnrichmentQueueDepth,
			RabbitMQConnected,
		)
	})
}
