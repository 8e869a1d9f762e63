package risk

import (
	"time"

	"orderflow-core/internal/events"
)

// Rejection reason codes, accumulated in check order.
const (
	ReasonKillSwitch       = "kill_switch"
	ReasonSymbolNotAllowed = "symbol_not_allowed"
	ReasonSizeLimit        = "size_limit"
	ReasonExposureLimit    = "exposure_limit"
	ReasonThrottleExceeded = "throttle_exceeded"
)

// Limits are the configured bounds an order is evaluated against. A copy
// is embedded in every decision so the outcome is self-describing.
type Limits struct {
	Symbols        []string      `yaml:"symbols"`
	MaxSize        float64       `yaml:"max_size"`
	MaxExposure    float64       `yaml:"max_exposure"`
	ThrottleWindow time.Duration `yaml:"throttle_window"`
	ThrottleMax    int           `yaml:"throttle_max"`
}

// Decision is the immutable outcome of one risk evaluation.
type Decision struct {
	ID        string
	Timestamp time.Time
	OrderID   string
	Symbol    string
	Approved  bool
	Reasons   []string
	Limits    Limits
}

func (Decision) EventType() events.Type { return events.TypeRiskDecision }
