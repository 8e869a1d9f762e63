package micro

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"orderflow-core/internal/engines"
	"orderflow-core/internal/events"
)

func TestQueuePosition(t *testing.T) {
	cases := []struct {
		name    string
		myQty   float64
		refSize float64
		want    float64
	}{
		{"no own order", 0, 100, 0},
		{"zero reference assumes worst case", 5, 0, 1},
		{"fraction of reference", 5, 20, 0.25},
		{"clamped at one", 50, 20, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, QueuePosition(tc.myQty, tc.refSize), 1e-9)
		})
	}
}

type pipeline struct {
	bus *events.Bus
	agg *Aggregator
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	log := zap.NewNop()
	bus := events.NewBus(log, 1024)
	t.Cleanup(func() { bus.Stop(time.Second) })

	book := engines.NewBook(log)
	delta := engines.NewDelta(log, bus)
	tape := engines.NewTape(log, bus, engines.TapeConfig{WindowSize: 10, VolumeThreshold: 10})
	liquidity := engines.NewLiquidity(log, bus, engines.LiquidityConfig{})
	profile := engines.NewProfile(log, bus)
	volatility := engines.NewVolatility(log, bus, engines.VolatilityConfig{})
	regime := engines.NewRegime(log, bus, engines.RegimeConfig{})

	book.Attach(bus)
	delta.Attach(bus)
	tape.Attach(bus)
	liquidity.Attach(bus)
	profile.Attach(bus)
	volatility.Attach(bus)
	regime.Attach(bus)

	agg := NewAggregator(log, bus, book, delta, tape, liquidity, profile, volatility, regime)
	agg.Attach(bus)
	return &pipeline{bus: bus, agg: agg}
}

type snapRecorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *snapRecorder) OnEvent(evt events.Event) error {
	if snap, ok := evt.Payload.(Snapshot); ok {
		r.mu.Lock()
		r.snaps = append(r.snaps, snap)
		r.mu.Unlock()
	}
	return nil
}

func (r *snapRecorder) latest() (Snapshot, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return Snapshot{}, 0
	}
	return r.snaps[len(r.snaps)-1], len(r.snaps)
}

func waitSnaps(t *testing.T, rec *snapRecorder, n int) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap, got := rec.latest(); got >= n {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("expected %d microstructure snapshots before deadline", n)
	return Snapshot{}
}

func TestAggregatorPublishesSnapshotPerEvent(t *testing.T) {
	p := newPipeline(t)
	rec := &snapRecorder{}
	p.bus.Subscribe(rec, events.TypeMicrostructure)

	p.bus.Publish(events.New(events.TypeDOMSnapshot, "sim", "ES", events.DOMSnapshotPayload{
		Levels: []events.DOMLevel{
			{Price: 100, BidSize: 30, AskSize: 10},
			{Price: 99, BidSize: 20, AskSize: 0},
		},
		MyOrderQty: 15,
	}))
	p.bus.Publish(events.New(events.TypeTrade, "sim", "ES", events.TradePayload{
		Price: 100, Size: 10, Side: events.SideBuy,
	}))

	snap := waitSnaps(t, rec, 2)
	assert.Equal(t, "ES", snap.Symbol)
	assert.Equal(t, 100.0, snap.Bid)
	assert.Equal(t, 30.0, snap.BidSize)
	assert.Equal(t, 10.0, snap.CumulativeDelta)
	assert.InDelta(t, 0.5, snap.QueuePosition, 1e-9) // 15 of 30 resting
	assert.InDelta(t, 0.5, snap.Imbalance, 1e-9)     // (30-10)/40
	assert.NotEmpty(t, snap.Features)
	assert.Equal(t, 1.0, snap.Features["tag_"+snap.Regime])
}

func TestAggregatorFeatureMapCarriesSignals(t *testing.T) {
	p := newPipeline(t)
	rec := &snapRecorder{}
	p.bus.Subscribe(rec, events.TypeMicrostructure)

	// A heavy one-sided removal marks spoofing in the liquidity engine.
	p.bus.Publish(events.New(events.TypeDOMDelta, "sim", "ES", events.DOMDeltaPayload{
		Side: events.SideSell, Price: 101, Size: 5,
		AddedAsk: 10, RemovedAsk: 40,
	}))

	snap := waitSnaps(t, rec, 1)
	require.True(t, snap.Signals.Spoof)
	assert.Equal(t, 1.0, snap.Features["liq_spoof"])
	assert.Contains(t, snap.Tags, "spoof_active")
}
