package execution

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"orderflow-core/internal/events"
)

// Router actions carried on router_action events.
const (
	ActionRoute         = "route"
	ActionCancel        = "cancel"
	ActionCancelReplace = "cancel_replace"
)

// SmartRouterConfig bounds slicing and the queue-time estimate.
type SmartRouterConfig struct {
	// Clip is the maximum child order quantity.
	Clip float64 `yaml:"clip"`
	// AvgFillRate (units per second) is the denominator of the queue-time
	// estimate until observed fills supply a better number.
	AvgFillRate float64 `yaml:"avg_fill_rate"`
}

func (c *SmartRouterConfig) defaults() {
	if c.Clip <= 0 {
		c.Clip = 10
	}
	if c.AvgFillRate <= 0 {
		c.AvgFillRate = 1
	}
}

// SmartRouter wraps the base router with order slicing, queue-time
// estimation and execution-quality tracking. It listens to order events
// to keep per-symbol slippage and latency averages current.
type SmartRouter struct {
	log     *zap.Logger
	bus     *events.Bus
	base    *Router
	cfg     SmartRouterConfig
	metrics *RouteMetrics
}

func NewSmartRouter(log *zap.Logger, bus *events.Bus, base *Router, cfg SmartRouterConfig) *SmartRouter {
	cfg.defaults()
	return &SmartRouter{
		log:     log,
		bus:     bus,
		base:    base,
		cfg:     cfg,
		metrics: NewRouteMetrics(),
	}
}

func (s *SmartRouter) Attach(bus *events.Bus) {
	bus.Subscribe(s.metrics, events.TypeOrderEvent)
}

func (s *SmartRouter) Detach(bus *events.Bus) {
	bus.UnsubscribeAll(s.metrics)
}

// Metrics exposes the execution-quality tracker.
func (s *SmartRouter) Metrics() *RouteMetrics { return s.metrics }

// Route slices the order by the configured clip and submits every child
// through the base router. Each child carries its estimated queue time in
// metadata under eta_sec. The first failed child submission stops the
// sequence.
func (s *SmartRouter) Route(order Order, queuePosition float64) ([]Order, error) {
	children := Slice(order, s.cfg.Clip)
	rate := s.fillRate(order.Symbol)

	for i, child := range children {
		eta := child.Quantity * clampQueuePos(queuePosition) / rate
		child = child.WithMetadata("eta_sec", strconv.FormatFloat(eta, 'f', 3, 64))
		children[i] = child

		s.metrics.Track(child, child.LimitPrice)
		if err := s.base.Submit(child); err != nil {
			return children[:i], fmt.Errorf("route %s: %w", order.ID, err)
		}
	}

	s.bus.Publish(events.New(events.TypeRouterAction, events.SourceSmartRouter, order.Symbol, events.RouterActionPayload{
		OrderID: order.ID,
		Action:  ActionRoute,
	}))
	s.log.Info("order routed",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.Int("children", len(children)),
		zap.Float64("queue_position", queuePosition))
	return children, nil
}

// Cancel forwards a cancel through the base router.
func (s *SmartRouter) Cancel(orderID string) error {
	if err := s.base.Cancel(orderID); err != nil {
		return err
	}
	s.bus.Publish(events.New(events.TypeRouterAction, events.SourceSmartRouter, "", events.RouterActionPayload{
		OrderID: orderID,
		Action:  ActionCancel,
	}))
	return nil
}

// CancelReplace cancels the resting order and, when a replacement is
// supplied, submits it as a fresh order. The replacement quantity is
// whatever the caller set; the remaining quantity of the original is not
// carried over automatically.
func (s *SmartRouter) CancelReplace(orderID string, replacement *Order) error {
	if err := s.base.Cancel(orderID); err != nil {
		return fmt.Errorf("cancel_replace %s: %w", orderID, err)
	}
	symbol := ""
	if replacement != nil {
		symbol = replacement.Symbol
		s.metrics.Track(*replacement, replacement.LimitPrice)
		if err := s.base.Submit(*replacement); err != nil {
			return fmt.Errorf("cancel_replace %s: %w", orderID, err)
		}
	}
	s.bus.Publish(events.New(events.TypeRouterAction, events.SourceSmartRouter, symbol, events.RouterActionPayload{
		OrderID: orderID,
		Action:  ActionCancelReplace,
	}))
	return nil
}

func (s *SmartRouter) fillRate(symbol string) float64 {
	if observed := s.metrics.FillRate(symbol); observed > 0 {
		return observed
	}
	return s.cfg.AvgFillRate
}

// clampQueuePos floors the queue position at 0.1 so a front-of-queue
// order still yields a non-zero estimate.
func clampQueuePos(pos float64) float64 {
	if pos < 0.1 {
		return 0.1
	}
	return pos
}
