package events

import "time"

// Type enumerates the event topics flowing through the core.
type Type string

const (
	// Raw feed events, produced by providers.
	TypeTrade       Type = "trade"
	TypeDOMDelta    Type = "dom_delta"
	TypeDOMSnapshot Type = "dom_snapshot"
	TypeTick        Type = "tick"

	// Derived events, produced by the engines.
	TypeDeltaUpdate         Type = "delta_update"
	TypeFootprintSnapshot   Type = "footprint_snapshot"
	TypeTapeSnapshot        Type = "tape_snapshot"
	TypeLiquidityUpdate     Type = "liquidity_update"
	TypeVolumeProfileUpdate Type = "volume_profile_update"
	TypeVolatilityUpdate    Type = "volatility_update"
	TypeRegimeUpdate        Type = "regime_update"
	TypeAlert               Type = "alert_event"
	TypeMicrostructure      Type = "microstructure"

	// Decision and order lifecycle events.
	TypeSignal       Type = "signal"
	TypeRiskDecision Type = "risk_decision"
	TypeOrderEvent   Type = "order_event"
	TypeRouterAction Type = "router_action"

	// Wildcard matches every event type.
	Wildcard Type = "*"
)

// Source tags for internally produced events. The bus allow-list never
// filters these; only provider sources are subject to filtering.
const (
	SourceBook          = "book_engine"
	SourceDelta         = "delta_engine"
	SourceTape          = "tape_engine"
	SourceLiquidity     = "liquidity_map"
	SourceVolumeProfile = "volume_profile"
	SourceVolatility    = "volatility_engine"
	SourceRegime        = "regime_engine"
	SourceSpoof         = "spoof_detector"
	SourceIceberg       = "iceberg_detector"
	SourceLargeTrade    = "large_trade_detector"
	SourceMicro         = "microstructure"
	SourceStrategy      = "strategy_orchestrator"
	SourceRisk          = "risk_engine"
	SourceExecution     = "execution"
	SourceExecutionSim  = "execution_sim"
	SourceSmartRouter   = "smart_router"
)

// internalSources is the fixed set of engine-originated source tags exempt
// from allow-list filtering.
var internalSources = map[string]struct{}{
	SourceBook:          {},
	SourceDelta:         {},
	SourceTape:          {},
	SourceLiquidity:     {},
	SourceVolumeProfile: {},
	SourceVolatility:    {},
	SourceRegime:        {},
	SourceSpoof:         {},
	SourceIceberg:       {},
	SourceLargeTrade:    {},
	SourceMicro:         {},
	SourceStrategy:      {},
	SourceRisk:          {},
	SourceExecution:     {},
	SourceExecutionSim:  {},
	SourceSmartRouter:   {},
}

// Event is the canonical unit passed through the bus. Providers normalize
// raw vendor callbacks into this shape before publishing, so every consumer
// sees one predictable contract. Events are values and never mutated after
// construction.
type Event struct {
	Type      Type
	Timestamp time.Time
	Source    string
	Symbol    string
	Payload   Payload
}

// New builds an event stamped with the current UTC time.
func New(t Type, source, symbol string, payload Payload) Event {
	return Event{
		Type:      t,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Symbol:    symbol,
		Payload:   payload,
	}
}

// Handler consumes events from the bus. Implementations must keep OnEvent
// non-blocking: it runs on the shared dispatch goroutine and a slow handler
// stalls every subscriber. A returned error is logged at the dispatch site
// and never stops dispatch to the remaining handlers.
type Handler interface {
	OnEvent(evt Event) error
}
