package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"orderflow-core/internal/execution"
)

func testEngine(limits Limits) *Engine {
	log := zap.NewNop()
	return NewEngine(log, nil, limits, NewKillSwitch(log))
}

func order(id, symbol, side string, qty float64) execution.Order {
	return execution.Order{ID: id, Symbol: symbol, Side: side, Quantity: qty, Type: execution.TypeMarket}
}

func TestEvaluateApprovesWithinLimits(t *testing.T) {
	e := testEngine(Limits{Symbols: []string{"ES"}, MaxSize: 10, MaxExposure: 100})

	d := e.Evaluate(order("o1", "ES", execution.SideBuy, 5))
	assert.True(t, d.Approved)
	assert.Empty(t, d.Reasons)
	assert.Equal(t, "o1", d.OrderID)
}

func TestEvaluateSizeLimit(t *testing.T) {
	e := testEngine(Limits{MaxSize: 5})

	d := e.Evaluate(order("o1", "ES", execution.SideBuy, 6))
	assert.False(t, d.Approved)
	assert.Contains(t, d.Reasons, ReasonSizeLimit)
}

func TestEvaluateAccumulatesAllReasons(t *testing.T) {
	e := testEngine(Limits{Symbols: []string{"NQ"}, MaxSize: 5, MaxExposure: 3})
	e.KillSwitch().Engage("test")

	d := e.Evaluate(order("o1", "ES", execution.SideBuy, 6))
	assert.False(t, d.Approved)
	assert.Equal(t, []string{
		ReasonKillSwitch,
		ReasonSymbolNotAllowed,
		ReasonSizeLimit,
		ReasonExposureLimit,
	}, d.Reasons)
}

func TestEvaluateDeterministic(t *testing.T) {
	a := testEngine(Limits{MaxSize: 5})
	b := testEngine(Limits{MaxSize: 5})

	da := a.Evaluate(order("o1", "ES", execution.SideBuy, 6))
	db := b.Evaluate(order("o1", "ES", execution.SideBuy, 6))
	assert.Equal(t, da.Approved, db.Approved)
	assert.Equal(t, da.Reasons, db.Reasons)
}

func TestExposureMovesOnlyOnApproval(t *testing.T) {
	e := testEngine(Limits{MaxSize: 5, MaxExposure: 100})

	e.Evaluate(order("o1", "ES", execution.SideBuy, 5))
	assert.Equal(t, 5.0, e.Exposure("ES"))

	e.Evaluate(order("o2", "ES", execution.SideBuy, 6)) // size_limit
	assert.Equal(t, 5.0, e.Exposure("ES"))

	e.Evaluate(order("o3", "ES", execution.SideSell, 3))
	assert.Equal(t, 2.0, e.Exposure("ES"))
}

func TestExposureLimitUsesSignedQuantity(t *testing.T) {
	e := testEngine(Limits{MaxExposure: 10})

	d := e.Evaluate(order("o1", "ES", execution.SideBuy, 8))
	require.True(t, d.Approved)

	// Net would be 16, over the cap.
	d = e.Evaluate(order("o2", "ES", execution.SideBuy, 8))
	assert.Contains(t, d.Reasons, ReasonExposureLimit)

	// Selling reduces the net position and is fine.
	d = e.Evaluate(order("o3", "ES", execution.SideSell, 8))
	assert.True(t, d.Approved)
	assert.Equal(t, 0.0, e.Exposure("ES"))

	// A large short breaches on the negative side.
	d = e.Evaluate(order("o4", "ES", execution.SideSell, 12))
	assert.Contains(t, d.Reasons, ReasonExposureLimit)
}

func TestThrottleSlidingWindow(t *testing.T) {
	e := testEngine(Limits{ThrottleWindow: 50 * time.Millisecond, ThrottleMax: 2})

	assert.True(t, e.Evaluate(order("o1", "ES", execution.SideBuy, 1)).Approved)
	assert.True(t, e.Evaluate(order("o2", "ES", execution.SideBuy, 1)).Approved)

	d := e.Evaluate(order("o3", "ES", execution.SideBuy, 1))
	assert.Contains(t, d.Reasons, ReasonThrottleExceeded)

	time.Sleep(60 * time.Millisecond)
	assert.True(t, e.Evaluate(order("o4", "ES", execution.SideBuy, 1)).Approved)
}

func TestThrottleSlotConsumedOnOtherRejection(t *testing.T) {
	e := testEngine(Limits{MaxSize: 5, ThrottleWindow: time.Minute, ThrottleMax: 2})

	// Both evaluations fail on size but still burn throttle slots.
	e.Evaluate(order("o1", "ES", execution.SideBuy, 6))
	e.Evaluate(order("o2", "ES", execution.SideBuy, 6))

	d := e.Evaluate(order("o3", "ES", execution.SideBuy, 1))
	assert.Contains(t, d.Reasons, ReasonThrottleExceeded)
}

func TestEmptyWhitelistAllowsAnySymbol(t *testing.T) {
	e := testEngine(Limits{MaxSize: 5})

	d := e.Evaluate(order("o1", "ANYTHING", execution.SideBuy, 1))
	assert.True(t, d.Approved)
}

func TestKillSwitchListeners(t *testing.T) {
	ks := NewKillSwitch(zap.NewNop())

	var got []string
	ks.AddListener(func(reason string) { got = append(got, reason) })
	ks.AddListener(func(string) { panic("listener boom") })
	ks.AddListener(func(reason string) { got = append(got, reason+"-2") })

	ks.Engage("manual")
	assert.Equal(t, []string{"manual", "manual-2"}, got)

	engaged, reason := ks.Engaged()
	assert.True(t, engaged)
	assert.Equal(t, "manual", reason)

	// Re-engaging does not refire listeners.
	ks.Engage("again")
	assert.Len(t, got, 2)

	ks.Reset()
	engaged, _ = ks.Engaged()
	assert.False(t, engaged)
}
