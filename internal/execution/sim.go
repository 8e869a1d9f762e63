package execution

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"orderflow-core/internal/events"
)

// SimAdapterConfig controls the simulated venue.
type SimAdapterConfig struct {
	// FillProbability in [0,1]; unfilled orders rest until cancelled.
	FillProbability float64 `yaml:"fill_probability"`
	// FillDelay before the fill event follows the ack.
	FillDelay time.Duration `yaml:"fill_delay"`
}

func (c *SimAdapterConfig) defaults() {
	if c.FillProbability <= 0 {
		c.FillProbability = 1
	}
	if c.FillDelay <= 0 {
		c.FillDelay = time.Millisecond
	}
}

// SimAdapter is the in-process execution venue: every order is acked
// immediately, then filled at its limit price (or untouched, by the
// configured probability) after a short delay. Used in sim mode and tests.
type SimAdapter struct {
	log *zap.Logger
	bus *events.Bus
	cfg SimAdapterConfig
	rng *rand.Rand

	mu      sync.Mutex
	resting map[string]Order
	halted  bool
}

func NewSimAdapter(log *zap.Logger, bus *events.Bus, cfg SimAdapterConfig) *SimAdapter {
	cfg.defaults()
	return &SimAdapter{
		log:     log,
		bus:     bus,
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		resting: make(map[string]Order),
	}
}

func (a *SimAdapter) Name() string { return "sim" }

// Halt blocks further sends, wired to the kill switch.
func (a *SimAdapter) Halt() {
	a.mu.Lock()
	a.halted = true
	a.mu.Unlock()
}

// Resume lifts a halt.
func (a *SimAdapter) Resume() {
	a.mu.Lock()
	a.halted = false
	a.mu.Unlock()
}

func (a *SimAdapter) Send(order Order) error {
	a.mu.Lock()
	if a.halted {
		a.mu.Unlock()
		return fmt.Errorf("adapter halted")
	}
	a.resting[order.ID] = order
	fill := a.rng.Float64() < a.cfg.FillProbability
	a.mu.Unlock()

	a.publish(OrderEvent{OrderID: order.ID, Symbol: order.Symbol, Status: StatusAck})
	if !fill {
		return nil
	}
	go func() {
		time.Sleep(a.cfg.FillDelay)
		a.mu.Lock()
		if _, resting := a.resting[order.ID]; !resting {
			a.mu.Unlock()
			return
		}
		delete(a.resting, order.ID)
		a.mu.Unlock()
		a.publish(OrderEvent{
			OrderID:   order.ID,
			Symbol:    order.Symbol,
			Status:    StatusFill,
			FilledQty: order.Quantity,
			AvgPrice:  order.LimitPrice,
		})
	}()
	return nil
}

func (a *SimAdapter) Cancel(orderID string) error {
	a.mu.Lock()
	order, ok := a.resting[orderID]
	if ok {
		delete(a.resting, orderID)
	}
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("cancel %s: unknown order", orderID)
	}
	a.publish(OrderEvent{OrderID: orderID, Symbol: order.Symbol, Status: StatusCancel})
	return nil
}

func (a *SimAdapter) Replace(orderID string, order Order) error {
	if err := a.Cancel(orderID); err != nil {
		return err
	}
	return a.Send(order)
}

// Resting reports how many orders sit unfilled on the venue.
func (a *SimAdapter) Resting() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.resting)
}

func (a *SimAdapter) publish(oe OrderEvent) {
	a.bus.Publish(events.New(events.TypeOrderEvent, events.SourceExecutionSim, oe.Symbol, oe))
}
