package execution

import (
	"sync"
	"time"

	"orderflow-core/internal/events"
)

type symbolStats struct {
	fills       int
	avgSlippage float64
	avgLatency  time.Duration
	filledQty   float64
	firstFill   time.Time
	lastFill    time.Time
}

type pendingOrder struct {
	symbol      string
	refPrice    float64
	submittedAt time.Time
}

// RouteMetrics tracks per-symbol running slippage and latency averages
// from order events. Submissions register the reference price; fills close
// the loop.
type RouteMetrics struct {
	mu      sync.Mutex
	pending map[string]pendingOrder
	stats   map[string]*symbolStats
}

func NewRouteMetrics() *RouteMetrics {
	return &RouteMetrics{
		pending: make(map[string]pendingOrder),
		stats:   make(map[string]*symbolStats),
	}
}

// Track records a submitted order so a later fill can be attributed.
func (m *RouteMetrics) Track(order Order, refPrice float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[order.ID] = pendingOrder{
		symbol:      order.Symbol,
		refPrice:    refPrice,
		submittedAt: time.Now().UTC(),
	}
}

// OnEvent consumes order events and folds fills into the running averages.
func (m *RouteMetrics) OnEvent(evt events.Event) error {
	oe, ok := evt.Payload.(OrderEvent)
	if !ok {
		return nil
	}
	if oe.Status != StatusFill && oe.Status != StatusPartialFill {
		if oe.Status == StatusReject || oe.Status == StatusCancel || oe.Status == StatusError {
			m.mu.Lock()
			delete(m.pending, oe.OrderID)
			m.mu.Unlock()
		}
		return nil
	}

	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()

	p, tracked := m.pending[oe.OrderID]
	symbol := oe.Symbol
	if symbol == "" {
		symbol = p.symbol
	}
	st := m.stats[symbol]
	if st == nil {
		st = &symbolStats{firstFill: now}
		m.stats[symbol] = st
	}
	st.fills++
	st.lastFill = now
	st.filledQty += oe.FilledQty
	if tracked {
		if p.refPrice > 0 && oe.AvgPrice > 0 {
			slip := oe.AvgPrice - p.refPrice
			if slip < 0 {
				slip = -slip
			}
			st.avgSlippage += (slip - st.avgSlippage) / float64(st.fills)
		}
		latency := now.Sub(p.submittedAt)
		st.avgLatency += (latency - st.avgLatency) / time.Duration(st.fills)
		if oe.Status == StatusFill {
			delete(m.pending, oe.OrderID)
		}
	}
	return nil
}

// AvgSlippage returns the running absolute slippage average for a symbol.
func (m *RouteMetrics) AvgSlippage(symbol string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st := m.stats[symbol]; st != nil {
		return st.avgSlippage
	}
	return 0
}

// AvgLatency returns the running submit-to-fill latency for a symbol.
func (m *RouteMetrics) AvgLatency(symbol string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st := m.stats[symbol]; st != nil {
		return st.avgLatency
	}
	return 0
}

// FillRate observes units filled per second for a symbol; zero until at
// least two fills spread over measurable time.
func (m *RouteMetrics) FillRate(symbol string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stats[symbol]
	if st == nil {
		return 0
	}
	elapsed := st.lastFill.Sub(st.firstFill).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return st.filledQty / elapsed
}
