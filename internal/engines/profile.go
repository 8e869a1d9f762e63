package engines

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"orderflow-core/internal/events"
)

// valueAreaFraction is the share of total volume the value area must cover.
const valueAreaFraction = 0.70

type profileState struct {
	histogram map[float64]float64
	total     float64
}

// Profile maintains the volume-by-price histogram per symbol. The point of
// control is the price with the highest traded volume. The value area scans
// prices in ascending order accumulating volume until 70% of the total is
// covered; it is intentionally not centered on the point of control, and
// the resulting price set is what snapshot consumers see.
type Profile struct {
	log *zap.Logger
	bus *events.Bus

	mu    sync.RWMutex
	state map[string]*profileState
}

func NewProfile(log *zap.Logger, bus *events.Bus) *Profile {
	return &Profile{
		log:   log,
		bus:   bus,
		state: make(map[string]*profileState),
	}
}

func (p *Profile) Attach(bus *events.Bus) {
	bus.Subscribe(p, events.TypeTrade)
}

func (p *Profile) Detach(bus *events.Bus) {
	bus.UnsubscribeAll(p)
}

func (p *Profile) OnEvent(evt events.Event) error {
	trade, ok := evt.Payload.(events.TradePayload)
	if !ok {
		return nil
	}
	p.mu.Lock()
	st, found := p.state[evt.Symbol]
	if !found {
		st = &profileState{histogram: make(map[float64]float64)}
		p.state[evt.Symbol] = st
	}
	st.histogram[trade.Price] += trade.Size
	st.total += trade.Size
	payload := buildProfile(st)
	p.mu.Unlock()

	p.bus.Publish(events.New(events.TypeVolumeProfileUpdate, events.SourceVolumeProfile, evt.Symbol, payload))
	return nil
}

// Snapshot returns the current profile for a symbol.
func (p *Profile) Snapshot(symbol string) events.ProfilePayload {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st, ok := p.state[symbol]
	if !ok {
		return events.ProfilePayload{}
	}
	return buildProfile(st)
}

func buildProfile(st *profileState) events.ProfilePayload {
	hist := make(map[float64]float64, len(st.histogram))
	prices := make([]float64, 0, len(st.histogram))
	poc := 0.0
	pocVolume := -1.0
	for price, vol := range st.histogram {
		hist[price] = vol
		prices = append(prices, price)
		// Ties resolve to the lowest price so the snapshot is stable.
		if vol > pocVolume || (vol == pocVolume && price < poc) {
			poc = price
			pocVolume = vol
		}
	}
	sort.Float64s(prices)

	target := st.total * valueAreaFraction
	var area []float64
	var covered float64
	for _, price := range prices {
		if covered >= target && len(area) > 0 {
			break
		}
		area = append(area, price)
		covered += st.histogram[price]
	}
	return events.ProfilePayload{
		Histogram:   hist,
		POC:         poc,
		ValueArea:   area,
		TotalVolume: st.total,
	}
}
