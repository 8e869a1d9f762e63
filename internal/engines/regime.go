package engines

import (
	"sync"

	"go.uber.org/zap"

	"orderflow-core/internal/events"
)

// Market regime labels combining volatility and order-flow pressure.
const (
	RegimeTrending  = "trending"
	RegimeRanging   = "ranging"
	RegimeSqueezing = "squeezing"
)

// RegimeConfig sets the thresholds for the regime classification.
type RegimeConfig struct {
	// DeltaThreshold: absolute cumulative delta beyond which flow counts
	// as directional.
	DeltaThreshold float64
	// RangeThreshold: high-low range beyond which price counts as moving.
	RangeThreshold float64
}

func (c *RegimeConfig) defaults() {
	if c.DeltaThreshold <= 0 {
		c.DeltaThreshold = 25
	}
	if c.RangeThreshold <= 0 {
		c.RangeThreshold = 1
	}
}

type regimeState struct {
	rng      float64
	volLabel string
	delta    float64
}

// Regime combines the volatility range with cumulative delta magnitude
// into a trending/ranging/squeezing label per symbol.
type Regime struct {
	log *zap.Logger
	bus *events.Bus
	cfg RegimeConfig

	mu    sync.RWMutex
	state map[string]*regimeState
}

func NewRegime(log *zap.Logger, bus *events.Bus, cfg RegimeConfig) *Regime {
	cfg.defaults()
	return &Regime{
		log:   log,
		bus:   bus,
		cfg:   cfg,
		state: make(map[string]*regimeState),
	}
}

func (r *Regime) Attach(bus *events.Bus) {
	bus.Subscribe(r, events.TypeVolatilityUpdate, events.TypeDeltaUpdate)
}

func (r *Regime) Detach(bus *events.Bus) {
	bus.UnsubscribeAll(r)
}

func (r *Regime) OnEvent(evt events.Event) error {
	r.mu.Lock()
	st, found := r.state[evt.Symbol]
	if !found {
		st = &regimeState{volLabel: VolNormal}
		r.state[evt.Symbol] = st
	}
	switch p := evt.Payload.(type) {
	case events.VolatilityPayload:
		st.rng = p.Range
		st.volLabel = p.Regime
	case events.DeltaPayload:
		st.delta = p.Cumulative
	default:
		r.mu.Unlock()
		return nil
	}
	payload := r.classify(st)
	r.mu.Unlock()

	r.bus.Publish(events.New(events.TypeRegimeUpdate, events.SourceRegime, evt.Symbol, payload))
	return nil
}

func (r *Regime) classify(st *regimeState) events.RegimePayload {
	label := RegimeRanging
	switch {
	case st.volLabel == VolCompression:
		label = RegimeSqueezing
	case abs(st.delta) >= r.cfg.DeltaThreshold && st.rng >= r.cfg.RangeThreshold:
		label = RegimeTrending
	}
	return events.RegimePayload{Regime: label, Range: st.rng, Delta: st.delta}
}

// Snapshot returns the latest regime classification for a symbol.
func (r *Regime) Snapshot(symbol string) events.RegimePayload {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.state[symbol]
	if !ok {
		return events.RegimePayload{Regime: RegimeRanging}
	}
	return r.classify(st)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
