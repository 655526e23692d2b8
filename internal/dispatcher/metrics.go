package dispatcher

import "github.com/prometheus/client_golang/prometheus"

var (
	callsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pedometer",
		Subsystem: "bridge",
		Name:      "calls_total",
		Help:      "Bridge calls handled, by method and outcome code.",
	}, []string{"method", "outcome"})

	eventsRelayedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pedometer",
		Subsystem: "bridge",
		Name:      "events_relayed_total",
		Help:      "Pedometer updates forwarded to the standing call.",
	})

	eventsDroppedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pedometer",
		Subsystem: "bridge",
		Name:      "events_dropped_total",
		Help:      "Responses that were not delivered, by reason.",
	}, []string{"reason"})

	activeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pedometer",
		Subsystem: "bridge",
		Name:      "subscription_active",
		Help:      "1 while a pedometer subscription is running.",
	})
)

func init() {
	prometheus.MustRegister(callsCounter, eventsRelayedCounter, eventsDroppedCounter, activeGauge)
}

func recordCall(method string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(classify(err))
	}
	callsCounter.WithLabelValues(method, outcome).Inc()
}

func recordRelayed() {
	eventsRelayedCounter.Inc()
}

func recordDropped(reason string) {
	eventsDroppedCounter.WithLabelValues(reason).Inc()
}

func setActive(active bool) {
	if active {
		activeGauge.Set(1)
		return
	}
	activeGauge.Set(0)
}
