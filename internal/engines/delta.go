package engines

import (
	"sync"

	"go.uber.org/zap"

	"orderflow-core/internal/events"
)

type deltaState struct {
	buys       float64
	sells      float64
	zeroPrints int
	lastPrice  float64
	cells      map[float64]events.FootprintCell
}

// Delta accumulates buy/sell volume per symbol by aggressor side and keeps
// the per-price footprint. The aggressor is the explicit trade side when
// tagged; otherwise it is inferred from the trade price against the quoted
// mid. Trades with no side and no mid cannot be attributed and are split
// evenly, which keeps buys+sells equal to total traded volume.
type Delta struct {
	log *zap.Logger
	bus *events.Bus

	mu    sync.RWMutex
	state map[string]*deltaState
}

func NewDelta(log *zap.Logger, bus *events.Bus) *Delta {
	return &Delta{
		log:   log,
		bus:   bus,
		state: make(map[string]*deltaState),
	}
}

func (d *Delta) Attach(bus *events.Bus) {
	bus.Subscribe(d, events.TypeTrade)
}

func (d *Delta) Detach(bus *events.Bus) {
	bus.UnsubscribeAll(d)
}

func (d *Delta) OnEvent(evt events.Event) error {
	trade, ok := evt.Payload.(events.TradePayload)
	if !ok {
		return nil
	}
	d.mu.Lock()
	st, found := d.state[evt.Symbol]
	if !found {
		st = &deltaState{cells: make(map[float64]events.FootprintCell)}
		d.state[evt.Symbol] = st
	}

	buyVol, sellVol := attributeAggressor(trade)
	st.buys += buyVol
	st.sells += sellVol

	cell := st.cells[trade.Price]
	cell.Buy += buyVol
	cell.Sell += sellVol
	st.cells[trade.Price] = cell

	if st.lastPrice != 0 && trade.Price == st.lastPrice {
		st.zeroPrints++
	}
	st.lastPrice = trade.Price

	update := events.DeltaPayload{
		Buys:       st.buys,
		Sells:      st.sells,
		Cumulative: st.buys - st.sells,
		ZeroPrints: st.zeroPrints,
		LastPrice:  st.lastPrice,
	}
	footprint := events.FootprintPayload{Cells: copyCells(st.cells)}
	d.mu.Unlock()

	d.bus.Publish(events.New(events.TypeDeltaUpdate, events.SourceDelta, evt.Symbol, update))
	d.bus.Publish(events.New(events.TypeFootprintSnapshot, events.SourceDelta, evt.Symbol, footprint))
	return nil
}

// attributeAggressor splits a trade's size between buy and sell volume.
func attributeAggressor(trade events.TradePayload) (buy, sell float64) {
	switch trade.Side {
	case events.SideBuy:
		return trade.Size, 0
	case events.SideSell:
		return 0, trade.Size
	}
	if trade.Mid > 0 {
		if trade.Price >= trade.Mid {
			return trade.Size, 0
		}
		return 0, trade.Size
	}
	half := trade.Size / 2
	return half, half
}

// Stats returns the running delta numbers for a symbol.
func (d *Delta) Stats(symbol string) events.DeltaPayload {
	d.mu.RLock()
	defer d.mu.RUnlock()
	st, ok := d.state[symbol]
	if !ok {
		return events.DeltaPayload{}
	}
	return events.DeltaPayload{
		Buys:       st.buys,
		Sells:      st.sells,
		Cumulative: st.buys - st.sells,
		ZeroPrints: st.zeroPrints,
		LastPrice:  st.lastPrice,
	}
}

// Footprint returns a copy of the per-price buy/sell cells for a symbol.
func (d *Delta) Footprint(symbol string) map[float64]events.FootprintCell {
	d.mu.RLock()
	defer d.mu.RUnlock()
	st, ok := d.state[symbol]
	if !ok {
		return nil
	}
	return copyCells(st.cells)
}

func copyCells(cells map[float64]events.FootprintCell) map[float64]events.FootprintCell {
	out := make(map[float64]events.FootprintCell, len(cells))
	for price, cell := range cells {
		out[price] = cell
	}
	return out
}
