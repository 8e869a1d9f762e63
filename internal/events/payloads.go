package events

// Payload is the typed body of an event. Each event type has exactly one
// payload variant; providers validate raw vendor data once at the boundary
// so downstream consumers never re-parse untyped maps.
type Payload interface {
	EventType() Type
}

// Aggressor side of a trade.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// TradePayload carries one normalized trade print. Side may be empty when
// the venue does not tag the aggressor; consumers then infer it from Mid
// when present.
type TradePayload struct {
	Price float64
	Size  float64
	Side  string
	Mid   float64 // 0 when unknown
}

func (TradePayload) EventType() Type { return TypeTrade }

// BookOp is a ladder mutation kind carried by DOM deltas.
type BookOp string

const (
	BookInsert BookOp = "insert"
	BookUpdate BookOp = "update"
	BookDelete BookOp = "delete"
)

// DOMDeltaPayload carries an incremental book change: the per-level
// mutation for the book engine plus the add/remove aggregates the liquidity
// engine consumes.
type DOMDeltaPayload struct {
	Side  string // SideBuy for the bid ladder, SideSell for the ask ladder
	Level int
	Op    BookOp
	Price float64
	Size  float64

	AddedBid   float64
	RemovedBid float64
	AddedAsk   float64
	RemovedAsk float64
	MidShift   float64
}

func (DOMDeltaPayload) EventType() Type { return TypeDOMDelta }

// DOMLevel is one price level of a depth snapshot.
type DOMLevel struct {
	Price   float64
	BidSize float64
	AskSize float64
}

// DOMSnapshotPayload carries a full depth-of-market view. MyOrderQty is the
// operator's resting quantity at top of book, used for queue-position
// estimation; 0 means no resting order.
type DOMSnapshotPayload struct {
	Levels     []DOMLevel
	Last       float64
	MyOrderQty float64
}

func (DOMSnapshotPayload) EventType() Type { return TypeDOMSnapshot }

// BestBid returns the highest-priced level with bid size, ok=false when the
// snapshot has none.
func (p DOMSnapshotPayload) BestBid() (DOMLevel, bool) {
	var best DOMLevel
	found := false
	for _, lvl := range p.Levels {
		if lvl.BidSize <= 0 {
			continue
		}
		if !found || lvl.Price > best.Price {
			best = lvl
			found = true
		}
	}
	return best, found
}

// BestAsk returns the lowest-priced level with ask size.
func (p DOMSnapshotPayload) BestAsk() (DOMLevel, bool) {
	var best DOMLevel
	found := false
	for _, lvl := range p.Levels {
		if lvl.AskSize <= 0 {
			continue
		}
		if !found || lvl.Price < best.Price {
			best = lvl
			found = true
		}
	}
	return best, found
}

// TickPayload is a lightweight last/mid price update.
type TickPayload struct {
	Price float64
	Mid   float64
	Last  float64
}

func (TickPayload) EventType() Type { return TypeTick }

// DeltaPayload reports cumulative aggressor volume for one symbol.
type DeltaPayload struct {
	Buys       float64
	Sells      float64
	Cumulative float64
	ZeroPrints int
	LastPrice  float64
}

func (DeltaPayload) EventType() Type { return TypeDeltaUpdate }

// FootprintCell is the buy/sell volume traded at one price.
type FootprintCell struct {
	Buy  float64
	Sell float64
}

// FootprintPayload is the per-price footprint for a symbol.
type FootprintPayload struct {
	Cells map[float64]FootprintCell
}

func (FootprintPayload) EventType() Type { return TypeFootprintSnapshot }

// TapeEntry is one trade in the rolling tape window.
type TapeEntry struct {
	Timestamp int64 // unix millis
	Price     float64
	Size      float64
	Side      string
}

// TapePayload is a rendered tape window with the derived absorption score.
type TapePayload struct {
	Entries         []TapeEntry
	AbsorptionScore float64
}

func (TapePayload) EventType() Type { return TypeTapeSnapshot }

// BookCell is resting bid/ask size at one price.
type BookCell struct {
	Bid float64
	Ask float64
}

// LiquidityPayload carries resting liquidity by price plus pattern signals.
type LiquidityPayload struct {
	Resting map[float64]BookCell
	Signals LiquiditySignals
}

// LiquiditySignals are heuristic pattern flags derived from DOM flow.
type LiquiditySignals struct {
	Iceberg       bool
	Spoof         bool
	Replenishment bool
	Shift         bool
}

func (LiquidityPayload) EventType() Type { return TypeLiquidityUpdate }

// ProfilePayload is the volume-by-price histogram with POC and value area.
type ProfilePayload struct {
	Histogram   map[float64]float64
	POC         float64
	ValueArea   []float64
	TotalVolume float64
}

func (ProfilePayload) EventType() Type { return TypeVolumeProfileUpdate }

// VolatilityPayload reports the rolling high-low range and its regime label.
type VolatilityPayload struct {
	Range  float64
	Regime string // compression, normal, expansion
}

func (VolatilityPayload) EventType() Type { return TypeVolatilityUpdate }

// RegimePayload is the combined market regime classification.
type RegimePayload struct {
	Regime string // trending, ranging, squeezing
	Range  float64
	Delta  float64
}

func (RegimePayload) EventType() Type { return TypeRegimeUpdate }

// AlertPayload is a generic detector alert; Kind discriminates the pattern
// (spoof, iceberg, large_trade).
type AlertPayload struct {
	Kind   string
	Side   string
	Price  float64
	Size   float64
	Detail string
}

func (AlertPayload) EventType() Type { return TypeAlert }

// SignalPayload is a trading signal emitted by the orchestrator.
type SignalPayload struct {
	SignalID   string
	Direction  string // buy, sell
	Rule       string
	Score      float64
	Confidence float64
	Features   map[string]float64
	Tags       []string
}

func (SignalPayload) EventType() Type { return TypeSignal }

// RouterActionPayload records a smart-router control action.
type RouterActionPayload struct {
	OrderID string
	Action  string
}

func (RouterActionPayload) EventType() Type { return TypeRouterAction }
