package engines

import (
	"sync"

	"go.uber.org/zap"

	"orderflow-core/internal/events"
)

// Volatility regime labels.
const (
	VolCompression = "compression"
	VolNormal      = "normal"
	VolExpansion   = "expansion"
)

// VolatilityConfig bounds the rolling price window and the range
// thresholds for classification.
type VolatilityConfig struct {
	WindowSize           int
	CompressionThreshold float64
	ExpansionThreshold   float64
}

func (c *VolatilityConfig) defaults() {
	if c.WindowSize <= 0 {
		c.WindowSize = 30
	}
	if c.CompressionThreshold <= 0 {
		c.CompressionThreshold = 0.5
	}
	if c.ExpansionThreshold <= 0 {
		c.ExpansionThreshold = 2
	}
}

type volatilityState struct {
	prices []float64
}

// Volatility classifies each symbol's regime from the high-low range of a
// rolling trade-price window.
type Volatility struct {
	log *zap.Logger
	bus *events.Bus
	cfg VolatilityConfig

	mu    sync.RWMutex
	state map[string]*volatilityState
}

func NewVolatility(log *zap.Logger, bus *events.Bus, cfg VolatilityConfig) *Volatility {
	cfg.defaults()
	return &Volatility{
		log:   log,
		bus:   bus,
		cfg:   cfg,
		state: make(map[string]*volatilityState),
	}
}

func (v *Volatility) Attach(bus *events.Bus) {
	bus.Subscribe(v, events.TypeTrade)
}

func (v *Volatility) Detach(bus *events.Bus) {
	bus.UnsubscribeAll(v)
}

func (v *Volatility) OnEvent(evt events.Event) error {
	trade, ok := evt.Payload.(events.TradePayload)
	if !ok {
		return nil
	}
	v.mu.Lock()
	st, found := v.state[evt.Symbol]
	if !found {
		st = &volatilityState{}
		v.state[evt.Symbol] = st
	}
	st.prices = append(st.prices, trade.Price)
	if len(st.prices) > v.cfg.WindowSize {
		st.prices = st.prices[1:]
	}
	payload := v.classify(st)
	v.mu.Unlock()

	v.bus.Publish(events.New(events.TypeVolatilityUpdate, events.SourceVolatility, evt.Symbol, payload))
	return nil
}

func (v *Volatility) classify(st *volatilityState) events.VolatilityPayload {
	if len(st.prices) == 0 {
		return events.VolatilityPayload{Regime: VolNormal}
	}
	high, low := st.prices[0], st.prices[0]
	for _, p := range st.prices[1:] {
		if p > high {
			high = p
		}
		if p < low {
			low = p
		}
	}
	rng := high - low
	regime := VolNormal
	switch {
	case rng <= v.cfg.CompressionThreshold:
		regime = VolCompression
	case rng >= v.cfg.ExpansionThreshold:
		regime = VolExpansion
	}
	return events.VolatilityPayload{Range: rng, Regime: regime}
}

// Snapshot returns the latest volatility reading for a symbol.
func (v *Volatility) Snapshot(symbol string) events.VolatilityPayload {
	v.mu.RLock()
	defer v.mu.RUnlock()
	st, ok := v.state[symbol]
	if !ok {
		return events.VolatilityPayload{Regime: VolNormal}
	}
	return v.classify(st)
}
