// Package execution routes approved orders to a pluggable adapter and
// tracks their lifecycle through order events on the bus.
package execution

import (
	"orderflow-core/internal/events"
)

// Order sides mirror the trade aggressor sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Order types.
const (
	TypeMarket    = "market"
	TypeLimit     = "limit"
	TypeStop      = "stop"
	TypeStopLimit = "stop_limit"
)

// Order statuses carried on order events.
const (
	StatusAck         = "ack"
	StatusPartialFill = "partial_fill"
	StatusFill        = "fill"
	StatusReject      = "reject"
	StatusCancel      = "cancel"
	StatusError       = "error"
)

// Order is an immutable order request. Callers build it once; the router
// and adapters never mutate it, child orders are fresh values.
type Order struct {
	ID         string
	Symbol     string
	Side       string
	Quantity   float64
	Type       string
	LimitPrice float64
	StopPrice  float64
	TIF        string
	PostOnly   bool
	ReduceOnly bool
	DryRun     bool
	Metadata   map[string]string
}

// SignedQuantity is the quantity with sell orders negated, the unit the
// exposure ledger accumulates.
func (o Order) SignedQuantity() float64 {
	if o.Side == SideSell {
		return -o.Quantity
	}
	return o.Quantity
}

// WithMetadata returns a copy of the order with one metadata entry added.
func (o Order) WithMetadata(key, value string) Order {
	meta := make(map[string]string, len(o.Metadata)+1)
	for k, v := range o.Metadata {
		meta[k] = v
	}
	meta[key] = value
	o.Metadata = meta
	return o
}

// OrderEvent is the status-transition record adapters publish, correlated
// to the originating order by id.
type OrderEvent struct {
	OrderID   string
	Symbol    string
	Status    string
	FilledQty float64
	AvgPrice  float64
	Reason    string
}

func (OrderEvent) EventType() events.Type { return events.TypeOrderEvent }

// Adapter is the execution venue contract. Implementations must publish
// order events asynchronously: an ack on acceptance, then
// fill/partial/reject/cancel/error as the venue reports them. Faults are
// returned as errors, never panics.
type Adapter interface {
	Name() string
	Send(order Order) error
	Cancel(orderID string) error
	Replace(orderID string, order Order) error
}
