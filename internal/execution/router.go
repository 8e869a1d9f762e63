package execution

import (
	"fmt"

	"go.uber.org/zap"

	"orderflow-core/internal/events"
)

// Router delegates order operations to the configured adapter. Adapter
// faults never reach the bus as failures; they surface as order events
// with status error so downstream consumers see one uniform lifecycle.
type Router struct {
	log     *zap.Logger
	bus     *events.Bus
	adapter Adapter
}

func NewRouter(log *zap.Logger, bus *events.Bus, adapter Adapter) *Router {
	return &Router{log: log, bus: bus, adapter: adapter}
}

// Adapter returns the adapter orders are routed to.
func (r *Router) Adapter() Adapter { return r.adapter }

func (r *Router) Submit(order Order) error {
	if err := r.adapter.Send(order); err != nil {
		r.fault(order.ID, order.Symbol, err)
		return fmt.Errorf("submit %s: %w", order.ID, err)
	}
	return nil
}

func (r *Router) Cancel(orderID string) error {
	if err := r.adapter.Cancel(orderID); err != nil {
		r.fault(orderID, "", err)
		return fmt.Errorf("cancel %s: %w", orderID, err)
	}
	return nil
}

func (r *Router) Replace(orderID string, order Order) error {
	if err := r.adapter.Replace(orderID, order); err != nil {
		r.fault(order.ID, order.Symbol, err)
		return fmt.Errorf("replace %s: %w", orderID, err)
	}
	return nil
}

func (r *Router) fault(orderID, symbol string, err error) {
	r.log.Error("adapter fault",
		zap.String("order_id", orderID),
		zap.String("adapter", r.adapter.Name()),
		zap.Error(err))
	r.bus.Publish(events.New(events.TypeOrderEvent, events.SourceExecution, symbol, OrderEvent{
		OrderID: orderID,
		Symbol:  symbol,
		Status:  StatusError,
		Reason:  err.Error(),
	}))
}
