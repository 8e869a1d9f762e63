// Package engines holds the per-symbol microstructure engines. Each engine
// subscribes to raw market events, keeps its own per-symbol state and
// republishes derived events. State records are created lazily on the first
// event for a symbol and are only mutated from the bus dispatch goroutine;
// the engine mutexes exist for readers outside that goroutine (the
// aggregator snapshot path and the ops API).
package engines

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"orderflow-core/internal/events"
)

type bookLevel struct {
	price float64
	size  float64
}

type bookState struct {
	bids map[int]bookLevel
	asks map[int]bookLevel
	last float64
}

// Book reconstructs the depth-of-market ladder per symbol from dom_delta
// insert/update/delete operations keyed by (side, level).
type Book struct {
	log *zap.Logger

	mu    sync.RWMutex
	books map[string]*bookState
}

func NewBook(log *zap.Logger) *Book {
	return &Book{
		log:   log,
		books: make(map[string]*bookState),
	}
}

func (b *Book) Attach(bus *events.Bus) {
	bus.Subscribe(b, events.TypeDOMDelta, events.TypeDOMSnapshot)
}

func (b *Book) Detach(bus *events.Bus) {
	bus.UnsubscribeAll(b)
}

func (b *Book) OnEvent(evt events.Event) error {
	switch p := evt.Payload.(type) {
	case events.DOMDeltaPayload:
		b.applyDelta(evt.Symbol, p)
	case events.DOMSnapshotPayload:
		b.applySnapshot(evt.Symbol, p)
	}
	return nil
}

func (b *Book) applyDelta(symbol string, p events.DOMDeltaPayload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.state(symbol)
	side := st.bids
	if p.Side == events.SideSell {
		side = st.asks
	}
	switch p.Op {
	case events.BookInsert, events.BookUpdate:
		side[p.Level] = bookLevel{price: p.Price, size: p.Size}
	case events.BookDelete:
		delete(side, p.Level)
	default:
		b.log.Warn("unknown book operation", zap.String("symbol", symbol), zap.String("op", string(p.Op)))
	}
}

// applySnapshot replaces the ladder wholesale. Snapshot levels are indexed
// by their position in the payload.
func (b *Book) applySnapshot(symbol string, p events.DOMSnapshotPayload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.state(symbol)
	st.bids = make(map[int]bookLevel, len(p.Levels))
	st.asks = make(map[int]bookLevel, len(p.Levels))
	for i, lvl := range p.Levels {
		if lvl.BidSize > 0 {
			st.bids[i] = bookLevel{price: lvl.Price, size: lvl.BidSize}
		}
		if lvl.AskSize > 0 {
			st.asks[i] = bookLevel{price: lvl.Price, size: lvl.AskSize}
		}
	}
	if p.Last > 0 {
		st.last = p.Last
	}
}

func (b *Book) state(symbol string) *bookState {
	st, ok := b.books[symbol]
	if !ok {
		st = &bookState{
			bids: make(map[int]bookLevel),
			asks: make(map[int]bookLevel),
		}
		b.books[symbol] = st
	}
	return st
}

// BookEntry is one rendered ladder row.
type BookEntry struct {
	Level int
	Price float64
	Size  float64
}

// Snapshot renders the current ladder for a symbol, both sides sorted by
// level ascending. Unknown symbols return empty sides.
func (b *Book) Snapshot(symbol string) (bids, asks []BookEntry) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.books[symbol]
	if !ok {
		return nil, nil
	}
	return renderSide(st.bids), renderSide(st.asks)
}

// Last returns the last traded or marked price seen in a snapshot.
func (b *Book) Last(symbol string) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if st, ok := b.books[symbol]; ok {
		return st.last
	}
	return 0
}

func renderSide(side map[int]bookLevel) []BookEntry {
	out := make([]BookEntry, 0, len(side))
	for lvl, entry := range side {
		out = append(out, BookEntry{Level: lvl, Price: entry.price, Size: entry.size})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}
