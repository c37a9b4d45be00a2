package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics carries the engine's flow counters. All counters are safe for
// concurrent use, so actors increment them directly.
type Metrics struct {
	InstructionsRouted  *prometheus.CounterVec
	InstructionsDropped prometheus.Counter
	ExecutionsPublished *prometheus.CounterVec
	PublishFailures     prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		InstructionsRouted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_instructions_routed_total",
			Help: "Instructions routed to book-side queues, by kind.",
		}, []string{"kind"}),
		InstructionsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_instructions_dropped_total",
			Help: "Instructions dropped because no book-side queue matched.",
		}),
		ExecutionsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_executions_published_total",
			Help: "Execution reports persisted to the outbox, by type.",
		}, []string{"type"}),
		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_publish_failures_total",
			Help: "Failed attempts to publish outbox entries to the broker.",
		}),
	}
}
