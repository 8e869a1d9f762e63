package engines

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"orderflow-core/internal/events"
)

func testBus(t *testing.T) *events.Bus {
	t.Helper()
	b := events.NewBus(zap.NewNop(), 1024)
	t.Cleanup(func() { b.Stop(time.Second) })
	return b
}

func tradeEvent(symbol string, price, size float64, side string) events.Event {
	return events.New(events.TypeTrade, "sim", symbol, events.TradePayload{
		Price: price,
		Size:  size,
		Side:  side,
	})
}

func TestDeltaBuySellSplit(t *testing.T) {
	d := NewDelta(zap.NewNop(), testBus(t))

	require.NoError(t, d.OnEvent(tradeEvent("ES", 100, 10, events.SideBuy)))
	require.NoError(t, d.OnEvent(tradeEvent("ES", 99, 5, events.SideSell)))

	stats := d.Stats("ES")
	assert.Equal(t, 10.0, stats.Buys)
	assert.Equal(t, 5.0, stats.Sells)
	assert.Equal(t, 5.0, stats.Cumulative)
}

func TestDeltaVolumeConservedRegardlessOfOrder(t *testing.T) {
	trades := []events.Event{
		tradeEvent("ES", 100, 10, events.SideBuy),
		tradeEvent("ES", 99, 5, events.SideSell),
		tradeEvent("ES", 101, 3, events.SideBuy),
		tradeEvent("ES", 100, 7, ""), // no side, no mid
	}

	forward := NewDelta(zap.NewNop(), testBus(t))
	for _, evt := range trades {
		require.NoError(t, forward.OnEvent(evt))
	}
	reversed := NewDelta(zap.NewNop(), testBus(t))
	for i := len(trades) - 1; i >= 0; i-- {
		require.NoError(t, reversed.OnEvent(trades[i]))
	}

	var total float64
	for _, evt := range trades {
		total += evt.Payload.(events.TradePayload).Size
	}
	f, r := forward.Stats("ES"), reversed.Stats("ES")
	assert.InDelta(t, total, f.Buys+f.Sells, 1e-9)
	assert.InDelta(t, total, r.Buys+r.Sells, 1e-9)
	assert.InDelta(t, f.Cumulative, r.Cumulative, 1e-9)
}

func TestDeltaAggressorInferredFromMid(t *testing.T) {
	d := NewDelta(zap.NewNop(), testBus(t))

	above := events.New(events.TypeTrade, "sim", "ES", events.TradePayload{Price: 100.5, Size: 2, Mid: 100})
	below := events.New(events.TypeTrade, "sim", "ES", events.TradePayload{Price: 99.5, Size: 3, Mid: 100})
	require.NoError(t, d.OnEvent(above))
	require.NoError(t, d.OnEvent(below))

	stats := d.Stats("ES")
	assert.Equal(t, 2.0, stats.Buys)
	assert.Equal(t, 3.0, stats.Sells)
}

func TestDeltaUnknownAggressorSplitsFootprint(t *testing.T) {
	d := NewDelta(zap.NewNop(), testBus(t))
	require.NoError(t, d.OnEvent(tradeEvent("ES", 100, 8, "")))

	cells := d.Footprint("ES")
	require.Contains(t, cells, 100.0)
	assert.Equal(t, 4.0, cells[100].Buy)
	assert.Equal(t, 4.0, cells[100].Sell)
}

func TestDeltaZeroPrints(t *testing.T) {
	d := NewDelta(zap.NewNop(), testBus(t))
	require.NoError(t, d.OnEvent(tradeEvent("ES", 100, 1, events.SideBuy)))
	require.NoError(t, d.OnEvent(tradeEvent("ES", 100, 1, events.SideBuy)))
	require.NoError(t, d.OnEvent(tradeEvent("ES", 100, 1, events.SideSell)))
	require.NoError(t, d.OnEvent(tradeEvent("ES", 101, 1, events.SideBuy)))

	assert.Equal(t, 2, d.Stats("ES").ZeroPrints)
}

func TestBookInsertUpdateDelete(t *testing.T) {
	b := NewBook(zap.NewNop())

	apply := func(side string, level int, op events.BookOp, price, size float64) {
		require.NoError(t, b.OnEvent(events.New(events.TypeDOMDelta, "sim", "ES", events.DOMDeltaPayload{
			Side: side, Level: level, Op: op, Price: price, Size: size,
		})))
	}
	apply(events.SideBuy, 0, events.BookInsert, 100, 10)
	apply(events.SideBuy, 1, events.BookInsert, 99, 20)
	apply(events.SideSell, 0, events.BookInsert, 101, 15)
	apply(events.SideBuy, 0, events.BookUpdate, 100, 12)
	apply(events.SideBuy, 1, events.BookDelete, 0, 0)

	bids, asks := b.Snapshot("ES")
	require.Len(t, bids, 1)
	require.Len(t, asks, 1)
	assert.Equal(t, 100.0, bids[0].Price)
	assert.Equal(t, 12.0, bids[0].Size)
	assert.Equal(t, 101.0, asks[0].Price)
}

func TestBookSnapshotSortedByLevel(t *testing.T) {
	b := NewBook(zap.NewNop())
	for _, lvl := range []int{3, 0, 2, 1} {
		require.NoError(t, b.OnEvent(events.New(events.TypeDOMDelta, "sim", "ES", events.DOMDeltaPayload{
			Side: events.SideBuy, Level: lvl, Op: events.BookInsert, Price: 100 - float64(lvl), Size: 1,
		})))
	}
	bids, _ := b.Snapshot("ES")
	require.Len(t, bids, 4)
	for i, entry := range bids {
		assert.Equal(t, i, entry.Level)
	}
}

func TestBookRebuildsFromSnapshot(t *testing.T) {
	b := NewBook(zap.NewNop())
	require.NoError(t, b.OnEvent(events.New(events.TypeDOMSnapshot, "sim", "ES", events.DOMSnapshotPayload{
		Levels: []events.DOMLevel{
			{Price: 100, BidSize: 10, AskSize: 11},
			{Price: 99, BidSize: 20},
		},
		Last: 100.25,
	})))

	bids, asks := b.Snapshot("ES")
	assert.Len(t, bids, 2)
	assert.Len(t, asks, 1)
	assert.Equal(t, 100.25, b.Last("ES"))
}

func TestTapeWindowAndAbsorption(t *testing.T) {
	tape := NewTape(zap.NewNop(), testBus(t), TapeConfig{WindowSize: 3, VolumeThreshold: 10})

	for i := 0; i < 5; i++ {
		require.NoError(t, tape.OnEvent(tradeEvent("ES", 100, 2, events.SideBuy)))
	}

	window := tape.Snapshot("ES")
	require.Len(t, window, 3)
	// 3 trades of size 2 in the window out of a threshold of 10.
	assert.InDelta(t, 0.6, tape.Absorption("ES"), 1e-9)
}

func TestProfilePocAndValueArea(t *testing.T) {
	p := NewProfile(zap.NewNop(), testBus(t))
	require.NoError(t, p.OnEvent(tradeEvent("ES", 100, 10, events.SideBuy)))
	require.NoError(t, p.OnEvent(tradeEvent("ES", 101, 5, events.SideSell)))

	snap := p.Snapshot("ES")
	assert.Equal(t, 100.0, snap.POC)
	assert.Equal(t, 15.0, snap.TotalVolume)
	// Ascending scan: 10 at 100 covers less than 70% of 15, so 101 joins.
	assert.Equal(t, []float64{100, 101}, snap.ValueArea)
}

func TestProfileAccumulationIsCommutative(t *testing.T) {
	trades := []events.Event{
		tradeEvent("ES", 100, 4, events.SideBuy),
		tradeEvent("ES", 101, 2, events.SideSell),
		tradeEvent("ES", 100, 6, events.SideSell),
	}
	a := NewProfile(zap.NewNop(), testBus(t))
	for _, evt := range trades {
		require.NoError(t, a.OnEvent(evt))
	}
	b := NewProfile(zap.NewNop(), testBus(t))
	for i := len(trades) - 1; i >= 0; i-- {
		require.NoError(t, b.OnEvent(trades[i]))
	}
	assert.Equal(t, a.Snapshot("ES").Histogram, b.Snapshot("ES").Histogram)
	assert.Equal(t, a.Snapshot("ES").POC, b.Snapshot("ES").POC)
}

func TestVolatilityClassification(t *testing.T) {
	v := NewVolatility(zap.NewNop(), testBus(t), VolatilityConfig{
		WindowSize:           10,
		CompressionThreshold: 0.5,
		ExpansionThreshold:   2,
	})

	require.NoError(t, v.OnEvent(tradeEvent("ES", 100, 1, events.SideBuy)))
	require.NoError(t, v.OnEvent(tradeEvent("ES", 100.2, 1, events.SideBuy)))
	assert.Equal(t, VolCompression, v.Snapshot("ES").Regime)

	require.NoError(t, v.OnEvent(tradeEvent("ES", 103, 1, events.SideBuy)))
	assert.Equal(t, VolExpansion, v.Snapshot("ES").Regime)
}

func TestVolatilityWindowEviction(t *testing.T) {
	v := NewVolatility(zap.NewNop(), testBus(t), VolatilityConfig{WindowSize: 2, ExpansionThreshold: 2})
	require.NoError(t, v.OnEvent(tradeEvent("ES", 90, 1, events.SideSell)))
	require.NoError(t, v.OnEvent(tradeEvent("ES", 100, 1, events.SideBuy)))
	require.NoError(t, v.OnEvent(tradeEvent("ES", 100.1, 1, events.SideBuy)))

	// The 90 print fell out of the window, so the range is back to 0.1.
	assert.InDelta(t, 0.1, v.Snapshot("ES").Range, 1e-9)
}

func TestRegimeClassification(t *testing.T) {
	r := NewRegime(zap.NewNop(), testBus(t), RegimeConfig{DeltaThreshold: 25, RangeThreshold: 1})

	vol := func(rng float64, label string) events.Event {
		return events.New(events.TypeVolatilityUpdate, events.SourceVolatility, "ES",
			events.VolatilityPayload{Range: rng, Regime: label})
	}
	delta := func(cum float64) events.Event {
		return events.New(events.TypeDeltaUpdate, events.SourceDelta, "ES",
			events.DeltaPayload{Cumulative: cum})
	}

	require.NoError(t, r.OnEvent(vol(0.2, VolCompression)))
	assert.Equal(t, RegimeSqueezing, r.Snapshot("ES").Regime)

	require.NoError(t, r.OnEvent(vol(3, VolExpansion)))
	require.NoError(t, r.OnEvent(delta(40)))
	assert.Equal(t, RegimeTrending, r.Snapshot("ES").Regime)

	require.NoError(t, r.OnEvent(delta(5)))
	assert.Equal(t, RegimeRanging, r.Snapshot("ES").Regime)
}

func TestDetectorsLargeTradeAlert(t *testing.T) {
	bus := testBus(t)
	rec := newAlertRecorder()
	bus.Subscribe(rec, events.TypeAlert)

	d := NewDetectors(zap.NewNop(), bus, DetectorConfig{LargeTradeSize: 50})
	require.NoError(t, d.OnEvent(tradeEvent("ES", 100, 60, events.SideBuy)))
	require.NoError(t, d.OnEvent(tradeEvent("ES", 100, 10, events.SideBuy)))

	rec.waitFor(t, 1)
	alerts := rec.alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertLargeTrade, alerts[0].Kind)
	assert.Equal(t, 60.0, alerts[0].Size)
}

func TestDetectorsIcebergAlert(t *testing.T) {
	bus := testBus(t)
	rec := newAlertRecorder()
	bus.Subscribe(rec, events.TypeAlert)

	d := NewDetectors(zap.NewNop(), bus, DetectorConfig{
		IcebergMaxClip: 5,
		IcebergRepeats: 3,
		LargeTradeSize: 1000,
	})
	for i := 0; i < 3; i++ {
		require.NoError(t, d.OnEvent(tradeEvent("ES", 100, 2, events.SideSell)))
	}

	rec.waitFor(t, 1)
	alerts := rec.alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertIceberg, alerts[0].Kind)
	assert.Equal(t, "repeated small prints at one price", alerts[0].Detail)
}

func TestDetectorsSpoofAlert(t *testing.T) {
	bus := testBus(t)
	rec := newAlertRecorder()
	bus.Subscribe(rec, events.TypeAlert)

	d := NewDetectors(zap.NewNop(), bus, DetectorConfig{SpoofMultiple: 4, LargeTradeSize: 1000})
	require.NoError(t, d.OnEvent(events.New(events.TypeDOMSnapshot, "sim", "ES", events.DOMSnapshotPayload{
		Levels: []events.DOMLevel{
			{Price: 100, BidSize: 10, AskSize: 10},
			{Price: 99, BidSize: 10, AskSize: 10},
			{Price: 98, BidSize: 500, AskSize: 10}, // parked wall
			{Price: 97, BidSize: 10, AskSize: 10},
		},
	})))

	rec.waitFor(t, 1)
	alerts := rec.alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertSpoofing, alerts[0].Kind)
	assert.Equal(t, events.SideBuy, alerts[0].Side)
	assert.Equal(t, 98.0, alerts[0].Price)
}

func TestDetectorsSpoofAverageExcludesWall(t *testing.T) {
	bus := testBus(t)
	rec := newAlertRecorder()
	bus.Subscribe(rec, events.TypeAlert)

	// 40 vs 10 is exactly 4x the other level; an average that counted the
	// wall itself (25) would need 100 and never fire here.
	d := NewDetectors(zap.NewNop(), bus, DetectorConfig{SpoofMultiple: 4, LargeTradeSize: 1000})
	require.NoError(t, d.OnEvent(events.New(events.TypeDOMSnapshot, "sim", "ES", events.DOMSnapshotPayload{
		Levels: []events.DOMLevel{
			{Price: 100, BidSize: 10, AskSize: 40},
			{Price: 99, BidSize: 10, AskSize: 10},
		},
	})))

	rec.waitFor(t, 1)
	alerts := rec.alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertSpoofing, alerts[0].Kind)
	assert.Equal(t, events.SideSell, alerts[0].Side)
	assert.Equal(t, 100.0, alerts[0].Price)
}

func TestLiquiditySignals(t *testing.T) {
	l := NewLiquidity(zap.NewNop(), testBus(t), LiquidityConfig{
		ReplenishRatio:    0.8,
		SpoofRatio:        3,
		IcebergMinRemoved: 50,
	})

	require.NoError(t, l.OnEvent(events.New(events.TypeDOMDelta, "sim", "ES", events.DOMDeltaPayload{
		Side: events.SideBuy, Price: 100, Size: 80,
		AddedBid: 80, RemovedBid: 60, MidShift: 0.5,
	})))
	sig := l.Signals("ES")
	assert.True(t, sig.Replenishment)
	assert.True(t, sig.Iceberg)
	assert.False(t, sig.Spoof)
	assert.True(t, sig.Shift)

	require.NoError(t, l.OnEvent(events.New(events.TypeDOMDelta, "sim", "ES", events.DOMDeltaPayload{
		Side: events.SideSell, Price: 101, Size: 5,
		AddedAsk: 10, RemovedAsk: 40,
	})))
	sig = l.Signals("ES")
	assert.True(t, sig.Spoof)
	assert.False(t, sig.Shift)
}

func TestLiquidityRestingMapFromSnapshot(t *testing.T) {
	l := NewLiquidity(zap.NewNop(), testBus(t), LiquidityConfig{})
	require.NoError(t, l.OnEvent(events.New(events.TypeDOMSnapshot, "sim", "ES", events.DOMSnapshotPayload{
		Levels: []events.DOMLevel{
			{Price: 100, BidSize: 10, AskSize: 12},
			{Price: 99, BidSize: 20},
		},
	})))

	resting := l.Resting("ES")
	require.Len(t, resting, 2)
	assert.Equal(t, 10.0, resting[100].Bid)
	assert.Equal(t, 12.0, resting[100].Ask)
	assert.Equal(t, 20.0, resting[99].Bid)
}

// alertRecorder collects alert payloads published by the detectors.
type alertRecorder struct {
	mu   sync.Mutex
	list []events.AlertPayload
}

func newAlertRecorder() *alertRecorder { return &alertRecorder{} }

func (r *alertRecorder) OnEvent(evt events.Event) error {
	if p, ok := evt.Payload.(events.AlertPayload); ok {
		r.mu.Lock()
		r.list = append(r.list, p)
		r.mu.Unlock()
	}
	return nil
}

func (r *alertRecorder) alerts() []events.AlertPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.AlertPayload(nil), r.list...)
}

func (r *alertRecorder) waitFor(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(r.alerts()) >= n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("expected %d alerts before deadline", n)
}
