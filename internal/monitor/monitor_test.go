package monitor

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"orderflow-core/internal/events"
	"orderflow-core/internal/execution"
	"orderflow-core/internal/risk"
)

func TestMonitorCountsEventsAndOutcomes(t *testing.T) {
	bus := events.NewBus(zap.NewNop(), 128)
	reg := prometheus.NewRegistry()
	m := New(bus, reg)
	m.Attach(bus)

	bus.Publish(events.New(events.TypeTrade, "sim", "ES", events.TradePayload{Price: 1, Size: 1}))
	bus.Publish(events.New(events.TypeRiskDecision, events.SourceRisk, "ES", risk.Decision{
		Approved: false,
		Reasons:  []string{risk.ReasonSizeLimit, risk.ReasonThrottleExceeded},
	}))
	bus.Publish(events.New(events.TypeOrderEvent, events.SourceExecutionSim, "ES", execution.OrderEvent{
		OrderID: "o1",
		Status:  execution.StatusFill,
	}))
	bus.Publish(events.New(events.TypeSignal, events.SourceStrategy, "ES", events.SignalPayload{SignalID: "s1"}))
	bus.Stop(time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsTotal.WithLabelValues(string(events.TypeTrade))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.riskDecisions.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.riskRejections.WithLabelValues(risk.ReasonSizeLimit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.riskRejections.WithLabelValues(risk.ReasonThrottleExceeded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.orderEvents.WithLabelValues(execution.StatusFill)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.signalsTotal))
}

func TestMonitorCountsHandlerFaults(t *testing.T) {
	bus := events.NewBus(zap.NewNop(), 128)
	reg := prometheus.NewRegistry()
	m := New(bus, reg)
	m.Attach(bus)

	bus.Subscribe(&failingHandler{}, events.TypeTick)
	bus.Publish(events.New(events.TypeTick, "sim", "ES", events.TickPayload{Price: 1}))
	bus.Stop(time.Second)

	require.Equal(t, 1.0, testutil.ToFloat64(m.handlerFaults.WithLabelValues(string(events.TypeTick))))
}

type failingHandler struct{}

func (*failingHandler) OnEvent(events.Event) error {
	return assert.AnError
}
