// Package micro fuses the per-engine symbol state into one microstructure
// snapshot per raw market event.
package micro

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"orderflow-core/internal/engines"
	"orderflow-core/internal/events"
)

// Aggregator reads the latest state from every engine without mutating it,
// composes a Snapshot and republishes it as one microstructure event. It
// runs inside the bus dispatch callback like the engines it reads, so its
// reads observe the state the current event just produced.
type Aggregator struct {
	log *zap.Logger
	bus *events.Bus

	book       *engines.Book
	delta      *engines.Delta
	tape       *engines.Tape
	liquidity  *engines.Liquidity
	profile    *engines.Profile
	volatility *engines.Volatility
	regime     *engines.Regime

	mu         sync.Mutex
	myOrderQty map[string]float64
}

func NewAggregator(
	log *zap.Logger,
	bus *events.Bus,
	book *engines.Book,
	delta *engines.Delta,
	tape *engines.Tape,
	liquidity *engines.Liquidity,
	profile *engines.Profile,
	volatility *engines.Volatility,
	regime *engines.Regime,
) *Aggregator {
	return &Aggregator{
		log:        log,
		bus:        bus,
		book:       book,
		delta:      delta,
		tape:       tape,
		liquidity:  liquidity,
		profile:    profile,
		volatility: volatility,
		regime:     regime,
		myOrderQty: make(map[string]float64),
	}
}

// Attach registers the aggregator after the engines so each dispatch sees
// engine state already updated for the triggering event.
func (a *Aggregator) Attach(bus *events.Bus) {
	bus.Subscribe(a, events.TypeTrade, events.TypeDOMSnapshot, events.TypeDOMDelta, events.TypeTick)
}

func (a *Aggregator) Detach(bus *events.Bus) {
	bus.UnsubscribeAll(a)
}

func (a *Aggregator) OnEvent(evt events.Event) error {
	if snap, ok := evt.Payload.(events.DOMSnapshotPayload); ok {
		a.mu.Lock()
		a.myOrderQty[evt.Symbol] = snap.MyOrderQty
		a.mu.Unlock()
	}
	snapshot := a.Compose(evt.Symbol)
	a.bus.Publish(events.New(events.TypeMicrostructure, events.SourceMicro, evt.Symbol, snapshot))
	return nil
}

// Compose builds the current fused snapshot for a symbol.
func (a *Aggregator) Compose(symbol string) Snapshot {
	bids, asks := a.book.Snapshot(symbol)
	deltaStats := a.delta.Stats(symbol)
	profile := a.profile.Snapshot(symbol)
	vol := a.volatility.Snapshot(symbol)
	regime := a.regime.Snapshot(symbol)
	signals := a.liquidity.Signals(symbol)

	snap := Snapshot{
		Symbol:          symbol,
		CumulativeDelta: deltaStats.Cumulative,
		ZeroPrints:      deltaStats.ZeroPrints,
		AbsorptionScore: a.tape.Absorption(symbol),
		Footprint:       a.delta.Footprint(symbol),
		Liquidity:       a.liquidity.Resting(symbol),
		Signals:         signals,
		VolatilityRange: vol.Range,
		Regime:          regime.Regime,
		TotalVolume:     profile.TotalVolume,
		POC:             profile.POC,
	}
	if len(bids) > 0 {
		snap.Bid = bids[0].Price
		snap.BidSize = bids[0].Size
	}
	if len(asks) > 0 {
		snap.Ask = asks[0].Price
		snap.AskSize = asks[0].Size
	}
	if snap.Bid > 0 && snap.Ask > 0 {
		snap.Mid = (snap.Bid + snap.Ask) / 2
	}
	if total := snap.BidSize + snap.AskSize; total > 0 {
		snap.Imbalance = (snap.BidSize - snap.AskSize) / total
	}

	a.mu.Lock()
	myQty := a.myOrderQty[symbol]
	a.mu.Unlock()
	snap.QueuePosition = QueuePosition(myQty, snap.BidSize)

	snap.Tags = buildTags(snap)
	snap.Features = flatten(snap)
	return snap
}

func buildTags(snap Snapshot) []string {
	tags := []string{snap.Regime}
	if snap.Signals.Spoof {
		tags = append(tags, "spoof_active")
	}
	if snap.Signals.Iceberg {
		tags = append(tags, "iceberg_active")
	}
	if snap.AbsorptionScore >= 1 {
		tags = append(tags, "absorbing")
	}
	return tags
}

// flatten renders the snapshot as the flat numeric feature map the
// strategy playbook evaluates.
func flatten(snap Snapshot) map[string]float64 {
	features := map[string]float64{
		"mid":            snap.Mid,
		"bid":            snap.Bid,
		"ask":            snap.Ask,
		"bid_size":       snap.BidSize,
		"ask_size":       snap.AskSize,
		"imbalance":      snap.Imbalance,
		"queue_position": snap.QueuePosition,
		"delta":          snap.CumulativeDelta,
		"zero_prints":    float64(snap.ZeroPrints),
		"absorption":     snap.AbsorptionScore,
		"vol_range":      snap.VolatilityRange,
		"total_volume":   snap.TotalVolume,
		"poc":            snap.POC,
	}
	for _, tag := range snap.Tags {
		features[fmt.Sprintf("tag_%s", tag)] = 1
	}
	for key, on := range map[string]bool{
		"iceberg":       snap.Signals.Iceberg,
		"spoof":         snap.Signals.Spoof,
		"replenishment": snap.Signals.Replenishment,
		"shift":         snap.Signals.Shift,
	} {
		if on {
			features[fmt.Sprintf("liq_%s", key)] = 1
		}
	}
	return features
}
