// Package monitor feeds pipeline activity into prometheus. It observes
// everything through one wildcard bus subscription and the bus fault hook;
// nothing in the hot path depends on it.
package monitor

import (
	"github.com/prometheus/client_golang/prometheus"

	"orderflow-core/internal/events"
	"orderflow-core/internal/execution"
	"orderflow-core/internal/risk"
)

// Monitor is a wildcard subscriber counting events by type plus the risk
// and order outcomes that matter operationally.
type Monitor struct {
	bus *events.Bus

	eventsTotal    *prometheus.CounterVec
	handlerFaults  *prometheus.CounterVec
	riskDecisions  *prometheus.CounterVec
	riskRejections *prometheus.CounterVec
	orderEvents    *prometheus.CounterVec
	signalsTotal   prometheus.Counter
	queueDropped   prometheus.CounterFunc
}

func New(bus *events.Bus, reg prometheus.Registerer) *Monitor {
	m := &Monitor{
		bus: bus,
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bus_events_total",
			Help: "Events dispatched by the bus, by event type.",
		}, []string{"type"}),
		handlerFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bus_handler_faults_total",
			Help: "Handler errors observed by the dispatch loop, by event type.",
		}, []string{"type"}),
		riskDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_decisions_total",
			Help: "Risk evaluations by outcome.",
		}, []string{"outcome"}),
		riskRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_rejections_total",
			Help: "Rejection reasons accumulated across decisions.",
		}, []string{"reason"}),
		orderEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_events_total",
			Help: "Order lifecycle events by status.",
		}, []string{"status"}),
		signalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strategy_signals_total",
			Help: "Signals emitted by the orchestrator.",
		}),
	}
	m.queueDropped = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "bus_queue_dropped_total",
		Help: "Events dropped on queue overflow.",
	}, func() float64 { return float64(bus.Dropped()) })

	reg.MustRegister(
		m.eventsTotal,
		m.handlerFaults,
		m.riskDecisions,
		m.riskRejections,
		m.orderEvents,
		m.signalsTotal,
		m.queueDropped,
	)
	return m
}

// Attach subscribes the monitor on the wildcard topic and installs the
// fault hook. Call before the first Publish.
func (m *Monitor) Attach(bus *events.Bus) {
	bus.SetFaultHook(func(t events.Type) {
		m.handlerFaults.WithLabelValues(string(t)).Inc()
	})
	bus.Subscribe(m, events.Wildcard)
}

func (m *Monitor) Detach(bus *events.Bus) {
	bus.UnsubscribeAll(m)
}

func (m *Monitor) OnEvent(evt events.Event) error {
	m.eventsTotal.WithLabelValues(string(evt.Type)).Inc()

	switch p := evt.Payload.(type) {
	case risk.Decision:
		outcome := "approved"
		if !p.Approved {
			outcome = "rejected"
		}
		m.riskDecisions.WithLabelValues(outcome).Inc()
		for _, reason := range p.Reasons {
			m.riskRejections.WithLabelValues(reason).Inc()
		}
	case execution.OrderEvent:
		m.orderEvents.WithLabelValues(p.Status).Inc()
	case events.SignalPayload:
		m.signalsTotal.Inc()
	}
	return nil
}
