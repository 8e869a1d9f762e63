package engines

import (
	"sync"

	"go.uber.org/zap"

	"orderflow-core/internal/events"
)

// Alert kinds carried in the alert payload discriminator.
const (
	AlertSpoofing   = "spoofing"
	AlertIceberg    = "iceberg"
	AlertLargeTrade = "large_trade"
)

// DetectorConfig tunes the pattern-detector heuristics.
type DetectorConfig struct {
	// SpoofMultiple: a book level this many times larger than the average
	// level on its side raises a spoofing alert.
	SpoofMultiple float64
	// IcebergMaxClip and IcebergRepeats: this many consecutive trades at
	// one price, each at or below the clip, raise an iceberg alert.
	IcebergMaxClip float64
	IcebergRepeats int
	// LargeTradeSize: single trade size at or above this raises an alert.
	LargeTradeSize float64
}

func (c *DetectorConfig) defaults() {
	if c.SpoofMultiple <= 0 {
		c.SpoofMultiple = 4
	}
	if c.IcebergMaxClip <= 0 {
		c.IcebergMaxClip = 5
	}
	if c.IcebergRepeats <= 0 {
		c.IcebergRepeats = 3
	}
	if c.LargeTradeSize <= 0 {
		c.LargeTradeSize = 100
	}
}

type detectorState struct {
	icebergPrice float64
	icebergRuns  int
}

// Detectors raises spoof, iceberg and large-trade alerts from simple
// threshold and ratio heuristics over trades and book snapshots. Each alert
// is an alert_event whose payload carries the kind discriminator.
type Detectors struct {
	log *zap.Logger
	bus *events.Bus
	cfg DetectorConfig

	mu    sync.Mutex
	state map[string]*detectorState
}

func NewDetectors(log *zap.Logger, bus *events.Bus, cfg DetectorConfig) *Detectors {
	cfg.defaults()
	return &Detectors{
		log:   log,
		bus:   bus,
		cfg:   cfg,
		state: make(map[string]*detectorState),
	}
}

func (d *Detectors) Attach(bus *events.Bus) {
	bus.Subscribe(d, events.TypeTrade, events.TypeDOMSnapshot)
}

func (d *Detectors) Detach(bus *events.Bus) {
	bus.UnsubscribeAll(d)
}

func (d *Detectors) OnEvent(evt events.Event) error {
	switch p := evt.Payload.(type) {
	case events.TradePayload:
		d.onTrade(evt.Symbol, p)
	case events.DOMSnapshotPayload:
		d.onSnapshot(evt.Symbol, p)
	}
	return nil
}

func (d *Detectors) onTrade(symbol string, trade events.TradePayload) {
	if trade.Size >= d.cfg.LargeTradeSize {
		d.bus.Publish(events.New(events.TypeAlert, events.SourceLargeTrade, symbol, events.AlertPayload{
			Kind:  AlertLargeTrade,
			Side:  trade.Side,
			Price: trade.Price,
			Size:  trade.Size,
		}))
	}

	d.mu.Lock()
	st := d.state[symbol]
	if st == nil {
		st = &detectorState{}
		d.state[symbol] = st
	}
	if trade.Size <= d.cfg.IcebergMaxClip && trade.Price == st.icebergPrice {
		st.icebergRuns++
	} else if trade.Size <= d.cfg.IcebergMaxClip {
		st.icebergPrice = trade.Price
		st.icebergRuns = 1
	} else {
		st.icebergPrice = 0
		st.icebergRuns = 0
	}
	fire := st.icebergRuns == d.cfg.IcebergRepeats
	d.mu.Unlock()

	if fire {
		d.bus.Publish(events.New(events.TypeAlert, events.SourceIceberg, symbol, events.AlertPayload{
			Kind:   AlertIceberg,
			Side:   trade.Side,
			Price:  trade.Price,
			Size:   trade.Size,
			Detail: "repeated small prints at one price",
		}))
	}
}

func (d *Detectors) onSnapshot(symbol string, snap events.DOMSnapshotPayload) {
	if len(snap.Levels) < 2 {
		return
	}
	var bidTotal, askTotal float64
	for _, lvl := range snap.Levels {
		bidTotal += lvl.BidSize
		askTotal += lvl.AskSize
	}
	// The candidate level is excluded from its side average; a wall would
	// otherwise drag the average up and mask itself on shallow books.
	rest := float64(len(snap.Levels) - 1)
	for _, lvl := range snap.Levels {
		avgBid := (bidTotal - lvl.BidSize) / rest
		avgAsk := (askTotal - lvl.AskSize) / rest
		if avgBid > 0 && lvl.BidSize >= avgBid*d.cfg.SpoofMultiple {
			d.publishSpoof(symbol, events.SideBuy, lvl.Price, lvl.BidSize)
		}
		if avgAsk > 0 && lvl.AskSize >= avgAsk*d.cfg.SpoofMultiple {
			d.publishSpoof(symbol, events.SideSell, lvl.Price, lvl.AskSize)
		}
	}
}

func (d *Detectors) publishSpoof(symbol, side string, price, size float64) {
	d.bus.Publish(events.New(events.TypeAlert, events.SourceSpoof, symbol, events.AlertPayload{
		Kind:   AlertSpoofing,
		Side:   side,
		Price:  price,
		Size:   size,
		Detail: "level size far above side average",
	}))
}
