package provider

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"orderflow-core/internal/events"
)

// SimConfig drives the random-walk generator.
type SimConfig struct {
	Symbols    []string      `yaml:"symbols"`
	Interval   time.Duration `yaml:"interval"`
	StartPrice float64       `yaml:"start_price"`
	TickSize   float64       `yaml:"tick_size"`
	Depth      int           `yaml:"depth"`
}

func (c *SimConfig) defaults() {
	if len(c.Symbols) == 0 {
		c.Symbols = []string{"SIMUSD"}
	}
	if c.Interval <= 0 {
		c.Interval = 100 * time.Millisecond
	}
	if c.StartPrice <= 0 {
		c.StartPrice = 100
	}
	if c.TickSize <= 0 {
		c.TickSize = 0.25
	}
	if c.Depth <= 0 {
		c.Depth = 5
	}
}

// Sim publishes a random-walk trade and a fresh book snapshot per symbol
// on every tick.
type Sim struct {
	log *zap.Logger
	bus *events.Bus
	cfg SimConfig
	rng *rand.Rand

	mu     sync.Mutex
	prices map[string]float64
	loop   *ticker
}

func NewSim(log *zap.Logger, bus *events.Bus, cfg SimConfig) *Sim {
	cfg.defaults()
	return &Sim{
		log:    log,
		bus:    bus,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		prices: make(map[string]float64),
	}
}

func (s *Sim) Name() string { return "sim" }

func (s *Sim) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loop != nil {
		return nil
	}
	for _, sym := range s.cfg.Symbols {
		if _, ok := s.prices[sym]; !ok {
			s.prices[sym] = s.cfg.StartPrice
		}
	}
	s.loop = startTicker(s.cfg.Interval, s.tick)
	s.log.Info("sim feed started", zap.Strings("symbols", s.cfg.Symbols))
	return nil
}

func (s *Sim) Stop() error {
	s.mu.Lock()
	loop := s.loop
	s.loop = nil
	s.mu.Unlock()
	if loop != nil {
		loop.halt()
	}
	return nil
}

func (s *Sim) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sym := range s.cfg.Symbols {
		price := s.prices[sym]
		step := float64(s.rng.Intn(3)-1) * s.cfg.TickSize
		price += step
		if price < s.cfg.TickSize {
			price = s.cfg.TickSize
		}
		s.prices[sym] = price

		side := events.SideBuy
		if s.rng.Intn(2) == 0 {
			side = events.SideSell
		}
		size := float64(s.rng.Intn(9) + 1)
		s.bus.Publish(events.New(events.TypeTrade, s.Name(), sym, events.TradePayload{
			Price: price,
			Size:  size,
			Side:  side,
			Mid:   price,
		}))

		levels := make([]events.DOMLevel, 0, s.cfg.Depth)
		for i := 0; i < s.cfg.Depth; i++ {
			levels = append(levels, events.DOMLevel{
				Price:   price - float64(i)*s.cfg.TickSize,
				BidSize: float64(s.rng.Intn(50) + 1),
				AskSize: float64(s.rng.Intn(50) + 1),
			})
		}
		s.bus.Publish(events.New(events.TypeDOMSnapshot, s.Name(), sym, events.DOMSnapshotPayload{
			Levels: levels,
			Last:   price,
		}))
	}
}
