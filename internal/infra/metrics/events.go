package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(eventsTotal)
}

var eventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lifecycle_events_total",
		Help: "Lifecycle events emitted to the event sink, by name.",
	},
	[]string{"name"},
)

func IncEvent(name string) {
	eventsTotal.WithLabelValues(norm(name)).Inc()
}
