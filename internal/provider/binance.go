package provider

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"orderflow-core/internal/events"
	"orderflow-core/pkg/market/binance"
)

// BinanceConfig selects the symbols and stream endpoint.
type BinanceConfig struct {
	Symbols   []string `yaml:"symbols"`
	StreamURL string   `yaml:"stream_url"`
}

// Binance normalizes the combined aggTrade/bookTicker stream into trade
// and dom_snapshot events. The book snapshot carries only the top of book;
// that is all the public bookTicker stream exposes.
type Binance struct {
	log    *zap.Logger
	bus    *events.Bus
	cfg    BinanceConfig
	client *binance.StreamClient

	mu     sync.Mutex
	cancel context.CancelFunc
	stop   func()
	done   chan struct{}
}

func NewBinance(log *zap.Logger, bus *events.Bus, cfg BinanceConfig) *Binance {
	return &Binance{
		log:    log,
		bus:    bus,
		cfg:    cfg,
		client: binance.NewStreamClient(log, cfg.StreamURL),
	}
}

func (b *Binance) Name() string { return "binance" }

func (b *Binance) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return nil
	}
	if len(b.cfg.Symbols) == 0 {
		return fmt.Errorf("binance provider: no symbols configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	msgs, stop, err := b.client.SubscribeCombined(ctx, b.cfg.Symbols)
	if err != nil {
		cancel()
		return fmt.Errorf("binance provider: %w", err)
	}
	b.cancel = cancel
	b.stop = stop
	b.done = make(chan struct{})

	go b.pump(msgs)
	b.log.Info("binance feed started", zap.Strings("symbols", b.cfg.Symbols))
	return nil
}

func (b *Binance) pump(msgs <-chan binance.Message) {
	defer close(b.done)
	for msg := range msgs {
		switch {
		case msg.Trade != nil:
			b.bus.Publish(b.normalizeTrade(*msg.Trade))
		case msg.Ticker != nil:
			b.bus.Publish(b.normalizeBook(*msg.Ticker))
		}
	}
}

func (b *Binance) normalizeTrade(t binance.AggTrade) events.Event {
	side := events.SideBuy
	if t.BuyerMaker { // buyer was the maker, so the seller crossed
		side = events.SideSell
	}
	return events.New(events.TypeTrade, b.Name(), t.Symbol, events.TradePayload{
		Price: t.Price,
		Size:  t.Quantity,
		Side:  side,
	})
}

func (b *Binance) normalizeBook(tk binance.BookTicker) events.Event {
	mid := (tk.BidPrice + tk.AskPrice) / 2
	return events.New(events.TypeDOMSnapshot, b.Name(), tk.Symbol, events.DOMSnapshotPayload{
		Levels: []events.DOMLevel{
			{Price: tk.BidPrice, BidSize: tk.BidQty},
			{Price: tk.AskPrice, AskSize: tk.AskQty},
		},
		Last: mid,
	})
}

func (b *Binance) Stop() error {
	b.mu.Lock()
	cancel, stop, done := b.cancel, b.stop, b.done
	b.cancel, b.stop, b.done = nil, nil, nil
	b.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	stop()
	<-done
	return nil
}
