package engines

import (
	"sync"

	"go.uber.org/zap"

	"orderflow-core/internal/events"
)

// LiquidityConfig tunes the resting-liquidity signal heuristics.
type LiquidityConfig struct {
	// ReplenishRatio: added size over removed size on the bid side at or
	// above this ratio marks replenishment (and iceberg behaviour when the
	// removal was large).
	ReplenishRatio float64
	// SpoofRatio: removed size over added size beyond this ratio marks
	// likely spoofing.
	SpoofRatio float64
	// IcebergMinRemoved: minimum removed size before replenishment is read
	// as an iceberg rather than noise.
	IcebergMinRemoved float64
}

func (c *LiquidityConfig) defaults() {
	if c.ReplenishRatio <= 0 {
		c.ReplenishRatio = 0.8
	}
	if c.SpoofRatio <= 0 {
		c.SpoofRatio = 3
	}
	if c.IcebergMinRemoved <= 0 {
		c.IcebergMinRemoved = 50
	}
}

type liquidityState struct {
	resting map[float64]events.BookCell
	signals events.LiquiditySignals
}

// Liquidity tracks resting liquidity by price and derives the
// iceberg/spoof/replenishment/shift signals from book-delta aggregates.
type Liquidity struct {
	log *zap.Logger
	bus *events.Bus
	cfg LiquidityConfig

	mu    sync.RWMutex
	state map[string]*liquidityState
}

func NewLiquidity(log *zap.Logger, bus *events.Bus, cfg LiquidityConfig) *Liquidity {
	cfg.defaults()
	return &Liquidity{
		log:   log,
		bus:   bus,
		cfg:   cfg,
		state: make(map[string]*liquidityState),
	}
}

func (l *Liquidity) Attach(bus *events.Bus) {
	bus.Subscribe(l, events.TypeDOMSnapshot, events.TypeDOMDelta)
}

func (l *Liquidity) Detach(bus *events.Bus) {
	bus.UnsubscribeAll(l)
}

func (l *Liquidity) OnEvent(evt events.Event) error {
	switch p := evt.Payload.(type) {
	case events.DOMSnapshotPayload:
		l.applySnapshot(evt.Symbol, p)
	case events.DOMDeltaPayload:
		l.applyDelta(evt.Symbol, p)
	}
	return nil
}

func (l *Liquidity) applySnapshot(symbol string, p events.DOMSnapshotPayload) {
	l.mu.Lock()
	st := l.state[symbol]
	if st == nil {
		st = &liquidityState{resting: make(map[float64]events.BookCell)}
		l.state[symbol] = st
	}
	st.resting = make(map[float64]events.BookCell, len(p.Levels))
	for _, lvl := range p.Levels {
		st.resting[lvl.Price] = events.BookCell{Bid: lvl.BidSize, Ask: lvl.AskSize}
	}
	payload := l.render(st)
	l.mu.Unlock()

	l.bus.Publish(events.New(events.TypeLiquidityUpdate, events.SourceLiquidity, symbol, payload))
}

func (l *Liquidity) applyDelta(symbol string, p events.DOMDeltaPayload) {
	l.mu.Lock()
	st := l.state[symbol]
	if st == nil {
		st = &liquidityState{resting: make(map[float64]events.BookCell)}
		l.state[symbol] = st
	}
	if p.Price > 0 {
		cell := st.resting[p.Price]
		if p.Side == events.SideSell {
			cell.Ask = p.Size
		} else {
			cell.Bid = p.Size
		}
		if p.Op == events.BookDelete {
			if p.Side == events.SideSell {
				cell.Ask = 0
			} else {
				cell.Bid = 0
			}
		}
		if cell.Bid == 0 && cell.Ask == 0 {
			delete(st.resting, p.Price)
		} else {
			st.resting[p.Price] = cell
		}
	}

	removed := p.RemovedBid + p.RemovedAsk
	added := p.AddedBid + p.AddedAsk
	st.signals = events.LiquiditySignals{
		Replenishment: removed > 0 && added >= removed*l.cfg.ReplenishRatio,
		Iceberg:       removed >= l.cfg.IcebergMinRemoved && added >= removed*l.cfg.ReplenishRatio,
		Spoof:         added > 0 && removed >= added*l.cfg.SpoofRatio,
		Shift:         p.MidShift != 0,
	}
	payload := l.render(st)
	l.mu.Unlock()

	l.bus.Publish(events.New(events.TypeLiquidityUpdate, events.SourceLiquidity, symbol, payload))
}

func (l *Liquidity) render(st *liquidityState) events.LiquidityPayload {
	resting := make(map[float64]events.BookCell, len(st.resting))
	for price, cell := range st.resting {
		resting[price] = cell
	}
	return events.LiquidityPayload{Resting: resting, Signals: st.signals}
}

// Signals returns the latest derived signal flags for a symbol.
func (l *Liquidity) Signals(symbol string) events.LiquiditySignals {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if st, ok := l.state[symbol]; ok {
		return st.signals
	}
	return events.LiquiditySignals{}
}

// Resting returns a copy of the resting-liquidity map for a symbol.
func (l *Liquidity) Resting(symbol string) map[float64]events.BookCell {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st, ok := l.state[symbol]
	if !ok {
		return nil
	}
	out := make(map[float64]events.BookCell, len(st.resting))
	for price, cell := range st.resting {
		out[price] = cell
	}
	return out
}
