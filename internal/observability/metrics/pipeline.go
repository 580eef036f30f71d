package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
)

const namespace = "ga"

// pipelineCollectors count stage items and resilience events. Both the api and
// the worker register them so either process can run pipeline stages.
type pipelineCollectors struct {
	service string

	itemsTotal    *prometheus.CounterVec
	itemDuration  *prometheus.HistogramVec
	retriesTotal  *prometheus.CounterVec
	breakerStates *prometheus.CounterVec
}

func newPipelineCollectors(service string, registry *prometheus.Registry) *pipelineCollectors {
	itemsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "items_total",
			Help:      "Total pipeline items finished by stage and status.",
		},
		[]string{"service", "stage", "status"},
	)
	itemDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "item_duration_seconds",
			Help:      "Pipeline item duration in seconds by stage.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "stage"},
	)
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Total retried attempts of outbound calls.",
		},
		[]string{"service", "operation"},
	)
	breakerStates := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_transitions_total",
			Help:      "Total circuit breaker state transitions.",
		},
		[]string{"service", "operation", "state"},
	)

	registry.MustRegister(itemsTotal, itemDuration, retriesTotal, breakerStates)

	return &pipelineCollectors{
		service:       service,
		itemsTotal:    itemsTotal,
		itemDuration:  itemDuration,
		retriesTotal:  retriesTotal,
		breakerStates: breakerStates,
	}
}

func (c *pipelineCollectors) ObserveItem(stage domain.Stage, status domain.ItemStatus, duration time.Duration) {
	c.itemsTotal.WithLabelValues(c.service, string(stage), string(status)).Inc()
	c.itemDuration.WithLabelValues(c.service, string(stage)).Observe(duration.Seconds())
}

func (c *pipelineCollectors) RetryAttempt(operation string) {
	c.retriesTotal.WithLabelValues(c.service, operation).Inc()
}

func (c *pipelineCollectors) BreakerStateChanged(operation, to string) {
	c.breakerStates.WithLabelValues(c.service, operation, to).Inc()
}
