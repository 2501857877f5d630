// Package metrics exposes the engine's Prometheus counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EventsConsumed counts events taken off the input queue, by kind.
	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vulnalert",
		Name:      "events_consumed_total",
		Help:      "Events consumed from the input queue.",
	}, []string{"kind"})

	// AlertsTriggered counts alerts whose condition held.
	AlertsTriggered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vulnalert",
		Name:      "alerts_triggered_total",
		Help:      "Alerts whose condition was met and that were escalated.",
	})

	// Dispatches counts escalation outcomes by method and result code.
	Dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vulnalert",
		Name:      "dispatches_total",
		Help:      "Escalation outcomes by method and result code.",
	}, []string{"method", "code"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
