package provider

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"orderflow-core/internal/events"
)

// Leak-audit tolerances. Growth beyond these across one switch is logged
// as a probable subscription or goroutine leak.
const (
	auditGoroutineTolerance  = 4
	auditSubscriberTolerance = 0
)

// defaultSettleWait gives a stopped provider's goroutines time to unwind
// before the new one starts.
const defaultSettleWait = 50 * time.Millisecond

// Manager is the provider registry and lifecycle owner.
type Manager struct {
	log        *zap.Logger
	bus        *events.Bus
	settleWait time.Duration
	audit      bool

	mu        sync.Mutex
	providers map[string]Provider
	active    Provider
}

func NewManager(log *zap.Logger, bus *events.Bus) *Manager {
	return &Manager{
		log:        log,
		bus:        bus,
		settleWait: defaultSettleWait,
		audit:      true,
		providers:  make(map[string]Provider),
	}
}

// Register adds a named provider. Registering a second provider under the
// same name replaces the first.
func (m *Manager) Register(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.Name()] = p
}

// Active returns the name of the running provider, empty when none is.
func (m *Manager) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ""
	}
	return m.active.Name()
}

// Start activates the named provider. Any running provider is stopped
// first and fully reclaimed before the new one starts. Once the new
// provider runs, the bus allow-list is rebound to its name so events still
// queued from the old provider are dropped at the publish boundary.
func (m *Manager) Start(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, ok := m.providers[name]
	if !ok {
		return fmt.Errorf("provider %q not registered", name)
	}

	goroutinesBefore := runtime.NumGoroutine()
	subscribersBefore := m.bus.SubscriberCount()

	if m.active != nil {
		if err := m.stopActiveLocked(); err != nil {
			m.log.Error("stopping previous provider failed", zap.Error(err))
		}
	}

	if err := next.Start(); err != nil {
		return fmt.Errorf("start provider %q: %w", name, err)
	}
	m.active = next
	m.bus.SetAllowedSources(name)
	m.log.Info("provider active", zap.String("provider", name))

	if m.audit {
		m.auditCounts(name, goroutinesBefore, subscribersBefore)
	}
	return nil
}

// Stop halts the active provider and clears the allow-list so every
// source is accepted again.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	err := m.stopActiveLocked()
	m.bus.SetAllowedSources()
	return err
}

func (m *Manager) stopActiveLocked() error {
	name := m.active.Name()
	err := m.active.Stop()
	m.active = nil
	if err != nil {
		return fmt.Errorf("stop provider %q: %w", name, err)
	}
	// Settle, then force reclamation of anything the provider dropped.
	time.Sleep(m.settleWait)
	runtime.GC()
	m.log.Info("provider stopped", zap.String("provider", name))
	return nil
}

func (m *Manager) auditCounts(name string, goroutinesBefore, subscribersBefore int) {
	goroutines := runtime.NumGoroutine()
	subscribers := m.bus.SubscriberCount()
	if grown := goroutines - goroutinesBefore; grown > auditGoroutineTolerance {
		m.log.Warn("goroutine count grew across provider switch",
			zap.String("provider", name),
			zap.Int("before", goroutinesBefore),
			zap.Int("after", goroutines))
	}
	if grown := subscribers - subscribersBefore; grown > auditSubscriberTolerance {
		m.log.Warn("subscriber count grew across provider switch",
			zap.String("provider", name),
			zap.Int("before", subscribersBefore),
			zap.Int("after", subscribers))
	}
}

// AutoStart classifies the symbol, registers nothing, and starts the
// market provider the classification selects. It returns the chosen
// instrument so callers can also pick the execution venue.
func (m *Manager) AutoStart(symbol string) (Instrument, error) {
	inst := Classify(symbol)
	m.log.Info("instrument classified",
		zap.String("symbol", symbol),
		zap.String("class", string(inst.Class)),
		zap.String("market_provider", inst.MarketProvider),
		zap.String("execution_provider", inst.ExecutionProvider))
	if err := m.Start(inst.MarketProvider); err != nil {
		return inst, err
	}
	return inst, nil
}
