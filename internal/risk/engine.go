// Package risk gates orders against configured limits, the exposure
// ledger and the kill switch.
package risk

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"orderflow-core/internal/events"
	"orderflow-core/internal/execution"
)

// Engine evaluates orders against the limits. Checks run in a fixed order
// and all triggered reasons accumulate; evaluation never short-circuits,
// so a rejection names every violated limit. The exposure ledger moves
// only on approval.
type Engine struct {
	log *zap.Logger
	bus *events.Bus

	killSwitch *KillSwitch

	mu       sync.Mutex
	limits   Limits
	allowed  map[string]struct{}
	exposure map[string]float64
	window   []time.Time
}

func NewEngine(log *zap.Logger, bus *events.Bus, limits Limits, ks *KillSwitch) *Engine {
	e := &Engine{
		log:        log,
		bus:        bus,
		killSwitch: ks,
		limits:     limits,
		exposure:   make(map[string]float64),
	}
	e.setAllowed(limits.Symbols)
	return e
}

func (e *Engine) setAllowed(symbols []string) {
	if len(symbols) == 0 {
		e.allowed = nil
		return
	}
	e.allowed = make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		e.allowed[s] = struct{}{}
	}
}

// SetLimits swaps the configured limits at runtime.
func (e *Engine) SetLimits(limits Limits) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.limits = limits
	e.setAllowed(limits.Symbols)
}

// Evaluate runs every check against the order and returns the decision.
// The decision is also published as a risk_decision event when the engine
// was built with a bus.
func (e *Engine) Evaluate(order execution.Order) Decision {
	e.mu.Lock()
	now := time.Now().UTC()
	var reasons []string

	if engaged, _ := e.killSwitch.Engaged(); engaged {
		reasons = append(reasons, ReasonKillSwitch)
	}
	if e.allowed != nil {
		if _, ok := e.allowed[order.Symbol]; !ok {
			reasons = append(reasons, ReasonSymbolNotAllowed)
		}
	}
	if e.limits.MaxSize > 0 && order.Quantity > e.limits.MaxSize {
		reasons = append(reasons, ReasonSizeLimit)
	}
	if e.limits.MaxExposure > 0 {
		next := e.exposure[order.Symbol] + order.SignedQuantity()
		if abs(next) > e.limits.MaxExposure {
			reasons = append(reasons, ReasonExposureLimit)
		}
	}
	if e.throttled(now) {
		reasons = append(reasons, ReasonThrottleExceeded)
	}

	approved := len(reasons) == 0
	if approved {
		e.exposure[order.Symbol] += order.SignedQuantity()
	}
	decision := Decision{
		ID:        uuid.NewString(),
		Timestamp: now,
		OrderID:   order.ID,
		Symbol:    order.Symbol,
		Approved:  approved,
		Reasons:   reasons,
		Limits:    e.limits,
	}
	e.mu.Unlock()

	if !approved {
		e.log.Warn("order rejected",
			zap.String("order_id", order.ID),
			zap.String("symbol", order.Symbol),
			zap.Strings("reasons", reasons))
	}
	if e.bus != nil {
		e.bus.Publish(events.New(events.TypeRiskDecision, events.SourceRisk, order.Symbol, decision))
	}
	return decision
}

// throttled prunes the sliding window lazily and reports whether the
// window's order allowance is spent. An evaluation under the limit
// consumes a slot even when the order is rejected for another reason.
func (e *Engine) throttled(now time.Time) bool {
	if e.limits.ThrottleMax <= 0 || e.limits.ThrottleWindow <= 0 {
		return false
	}
	cutoff := now.Add(-e.limits.ThrottleWindow)
	kept := e.window[:0]
	for _, ts := range e.window {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	e.window = kept
	if len(e.window) >= e.limits.ThrottleMax {
		return true
	}
	e.window = append(e.window, now)
	return false
}

// Exposure returns the signed net quantity currently held for a symbol.
func (e *Engine) Exposure(symbol string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exposure[symbol]
}

// KillSwitch exposes the engine's kill switch to the ops surface.
func (e *Engine) KillSwitch() *KillSwitch { return e.killSwitch }

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
