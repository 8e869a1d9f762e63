package engines

import (
	"sync"

	"go.uber.org/zap"

	"orderflow-core/internal/events"
)

// TapeConfig bounds the rolling trade window and sets the volume threshold
// the absorption score is measured against.
type TapeConfig struct {
	WindowSize      int
	VolumeThreshold float64
}

func (c *TapeConfig) defaults() {
	if c.WindowSize <= 0 {
		c.WindowSize = 50
	}
	if c.VolumeThreshold <= 0 {
		c.VolumeThreshold = 100
	}
}

type tapeState struct {
	entries []events.TapeEntry
	volume  float64
}

// Tape keeps a rolling fixed-size window of recent trades per symbol and
// scores absorption as windowed volume over the configured threshold.
type Tape struct {
	log *zap.Logger
	bus *events.Bus
	cfg TapeConfig

	mu    sync.RWMutex
	state map[string]*tapeState
}

func NewTape(log *zap.Logger, bus *events.Bus, cfg TapeConfig) *Tape {
	cfg.defaults()
	return &Tape{
		log:   log,
		bus:   bus,
		cfg:   cfg,
		state: make(map[string]*tapeState),
	}
}

func (t *Tape) Attach(bus *events.Bus) {
	bus.Subscribe(t, events.TypeTrade)
}

func (t *Tape) Detach(bus *events.Bus) {
	bus.UnsubscribeAll(t)
}

func (t *Tape) OnEvent(evt events.Event) error {
	trade, ok := evt.Payload.(events.TradePayload)
	if !ok {
		return nil
	}
	t.mu.Lock()
	st, found := t.state[evt.Symbol]
	if !found {
		st = &tapeState{}
		t.state[evt.Symbol] = st
	}
	st.entries = append(st.entries, events.TapeEntry{
		Timestamp: evt.Timestamp.UnixMilli(),
		Price:     trade.Price,
		Size:      trade.Size,
		Side:      trade.Side,
	})
	st.volume += trade.Size
	if len(st.entries) > t.cfg.WindowSize {
		evicted := st.entries[0]
		st.entries = st.entries[1:]
		st.volume -= evicted.Size
	}
	snap := events.TapePayload{
		Entries:         append([]events.TapeEntry(nil), st.entries...),
		AbsorptionScore: st.volume / t.cfg.VolumeThreshold,
	}
	t.mu.Unlock()

	t.bus.Publish(events.New(events.TypeTapeSnapshot, events.SourceTape, evt.Symbol, snap))
	return nil
}

// Absorption returns the current absorption score for a symbol.
func (t *Tape) Absorption(symbol string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.state[symbol]
	if !ok {
		return 0
	}
	return st.volume / t.cfg.VolumeThreshold
}

// Snapshot returns a copy of the rolling window for a symbol.
func (t *Tape) Snapshot(symbol string) []events.TapeEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.state[symbol]
	if !ok {
		return nil
	}
	return append([]events.TapeEntry(nil), st.entries...)
}
