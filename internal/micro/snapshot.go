package micro

import (
	"orderflow-core/internal/events"
)

// Snapshot is the fused per-symbol microstructure view published on each
// raw market event. It is read-only for consumers; the aggregator builds a
// fresh value every time.
type Snapshot struct {
	Symbol          string
	Mid             float64
	Bid             float64
	Ask             float64
	BidSize         float64
	AskSize         float64
	Imbalance       float64
	QueuePosition   float64
	CumulativeDelta float64
	ZeroPrints      int
	AbsorptionScore float64
	Footprint       map[float64]events.FootprintCell
	Liquidity       map[float64]events.BookCell
	Signals         events.LiquiditySignals
	VolatilityRange float64
	Regime          string
	TotalVolume     float64
	POC             float64

	// Features is the flat numeric map the strategy layer consumes: every
	// scalar above plus one-hot tag_<t> and liq_<k> entries.
	Features map[string]float64
	Tags     []string
}

func (Snapshot) EventType() events.Type { return events.TypeMicrostructure }

// QueuePosition estimates where a resting order of myQty sits relative to
// the visible reference size. No own order means front of nothing, so 0.
// A zero reference size cannot be estimated and is assumed worst case.
func QueuePosition(myQty, refSize float64) float64 {
	if myQty <= 0 {
		return 0
	}
	if refSize <= 0 {
		return 1
	}
	pos := myQty / refSize
	if pos > 1 {
		return 1
	}
	return pos
}
