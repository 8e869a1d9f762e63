// Package strategy turns microstructure snapshots into trading signals
// through a filter, playbook, confluence and scoring pipeline.
package strategy

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"orderflow-core/internal/events"
	"orderflow-core/internal/micro"
)

// Signal directions.
const (
	DirectionBuy  = "buy"
	DirectionSell = "sell"
)

// bonusTags earn the fixed scoring bonus when present on a snapshot.
var bonusTags = map[string]struct{}{
	"absorbing":      {},
	"iceberg_active": {},
}

// Orchestrator evaluates each microstructure snapshot through the
// playbook chain and emits a signal event when a rule fires, survives the
// confluence vetoes and scores above zero. Evaluations are stateless: a
// snapshot that fails any stage is dropped and the next one starts fresh.
// The per-symbol last-signal clock is recorded for operators but not
// evaluated per event.
type Orchestrator struct {
	log *zap.Logger
	bus *events.Bus
	cfg Config

	symbols map[string]struct{}

	mu         sync.Mutex
	lastSignal map[string]time.Time
}

func NewOrchestrator(log *zap.Logger, bus *events.Bus, cfg Config) *Orchestrator {
	cfg.defaults()
	o := &Orchestrator{
		log:        log,
		bus:        bus,
		cfg:        cfg,
		lastSignal: make(map[string]time.Time),
	}
	if len(cfg.Symbols) > 0 {
		o.symbols = make(map[string]struct{}, len(cfg.Symbols))
		for _, s := range cfg.Symbols {
			o.symbols[s] = struct{}{}
		}
	}
	return o
}

func (o *Orchestrator) Attach(bus *events.Bus) {
	bus.Subscribe(o, events.TypeMicrostructure)
}

func (o *Orchestrator) Detach(bus *events.Bus) {
	bus.UnsubscribeAll(o)
}

func (o *Orchestrator) OnEvent(evt events.Event) error {
	snap, ok := evt.Payload.(micro.Snapshot)
	if !ok {
		return nil
	}
	sig, ok := o.Evaluate(snap)
	if !ok {
		return nil
	}
	o.mu.Lock()
	o.lastSignal[snap.Symbol] = time.Now().UTC()
	o.mu.Unlock()

	o.log.Info("signal emitted",
		zap.String("symbol", snap.Symbol),
		zap.String("direction", sig.Direction),
		zap.Float64("score", sig.Score),
		zap.String("rule", sig.Rule))
	o.bus.Publish(events.New(events.TypeSignal, events.SourceStrategy, snap.Symbol, sig))
	return nil
}

// Evaluate runs the full pipeline on one snapshot. The boolean reports
// whether a signal should be emitted.
func (o *Orchestrator) Evaluate(snap micro.Snapshot) (events.SignalPayload, bool) {
	if o.symbols != nil {
		if _, ok := o.symbols[snap.Symbol]; !ok {
			return events.SignalPayload{}, false
		}
	}
	if !o.regimeAllows(snap) {
		return events.SignalPayload{}, false
	}
	rule, ok := o.matchPlaybook(snap)
	if !ok {
		return events.SignalPayload{}, false
	}
	if o.vetoed(snap) {
		return events.SignalPayload{}, false
	}
	score := o.score(snap)
	if score <= 0 {
		return events.SignalPayload{}, false
	}
	confidence := score
	if confidence > 1 {
		confidence = 1
	}
	return events.SignalPayload{
		SignalID:   uuid.NewString(),
		Direction:  rule.Direction,
		Rule:       rule.Name,
		Score:      score,
		Confidence: confidence,
		Features:   snap.Features,
		Tags:       snap.Tags,
	}, true
}

func (o *Orchestrator) regimeAllows(snap micro.Snapshot) bool {
	if snap.TotalVolume < o.cfg.MinVolume {
		return false
	}
	if o.cfg.MaxVolume > 0 && snap.TotalVolume > o.cfg.MaxVolume {
		return false
	}
	if o.cfg.MaxRange > 0 && snap.VolatilityRange > o.cfg.MaxRange {
		return false
	}
	return true
}

// matchPlaybook walks the ordered rules; the first match wins.
func (o *Orchestrator) matchPlaybook(snap micro.Snapshot) (Rule, bool) {
	for _, rule := range o.cfg.Playbook {
		value, ok := snap.Features[rule.Feature]
		if !ok {
			continue
		}
		switch rule.Direction {
		case DirectionBuy:
			if value >= rule.Threshold {
				return rule, true
			}
		case DirectionSell:
			if value <= rule.Threshold {
				return rule, true
			}
		}
	}
	return Rule{}, false
}

func (o *Orchestrator) vetoed(snap micro.Snapshot) bool {
	if snap.VolatilityRange > o.cfg.VetoVolatility {
		return true
	}
	if o.cfg.VetoSpoof && snap.Signals.Spoof {
		return true
	}
	return false
}

func (o *Orchestrator) score(snap micro.Snapshot) float64 {
	score := o.cfg.ImbalanceWeight*abs(snap.Imbalance) + o.cfg.DeltaWeight*abs(snap.CumulativeDelta)
	for _, tag := range snap.Tags {
		if _, ok := bonusTags[tag]; ok {
			score += o.cfg.TagBonus
		}
	}
	return score
}

// LastSignal reports when the orchestrator last fired for a symbol.
func (o *Orchestrator) LastSignal(symbol string) (time.Time, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ts, ok := o.lastSignal[symbol]
	return ts, ok
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
