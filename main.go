package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"orderflow-core/internal/api"
	"orderflow-core/internal/engines"
	"orderflow-core/internal/events"
	"orderflow-core/internal/execution"
	"orderflow-core/internal/micro"
	"orderflow-core/internal/monitor"
	"orderflow-core/internal/provider"
	"orderflow-core/internal/risk"
	"orderflow-core/internal/strategy"
	"orderflow-core/pkg/config"
	"orderflow-core/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/settings.yaml", "path to the base settings file")
	profile := flag.String("profile", os.Getenv("PROFILE"), "settings profile overlay")
	flag.Parse()

	settings, err := config.Load(*configPath, *profile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(settings.Log.Level, settings.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(log, settings); err != nil {
		log.Fatal("fatal", zap.Error(err))
	}
}

func run(log *zap.Logger, settings config.Settings) error {
	bus := events.NewBus(log.Named("bus"), settings.Bus.QueueSize)

	registry := prometheus.NewRegistry()
	mon := monitor.New(bus, registry)
	mon.Attach(bus)

	// Engines first: registration order is dispatch order, and the
	// aggregator must observe state the current event already updated.
	book := engines.NewBook(log.Named("book"))
	delta := engines.NewDelta(log.Named("delta"), bus)
	tape := engines.NewTape(log.Named("tape"), bus, engines.TapeConfig{})
	liquidity := engines.NewLiquidity(log.Named("liquidity"), bus, engines.LiquidityConfig{})
	profile := engines.NewProfile(log.Named("profile"), bus)
	volatility := engines.NewVolatility(log.Named("volatility"), bus, engines.VolatilityConfig{})
	regime := engines.NewRegime(log.Named("regime"), bus, engines.RegimeConfig{})
	detectors := engines.NewDetectors(log.Named("detectors"), bus, engines.DetectorConfig{})
	for _, eng := range []interface{ Attach(*events.Bus) }{
		book, delta, tape, liquidity, profile, volatility, regime, detectors,
	} {
		eng.Attach(bus)
	}

	aggregator := micro.NewAggregator(log.Named("micro"), bus, book, delta, tape, liquidity, profile, volatility, regime)
	aggregator.Attach(bus)

	orchestrator := strategy.NewOrchestrator(log.Named("strategy"), bus, strategy.Config{
		Symbols:        settings.Symbols,
		MinVolume:      settings.Strategy.MinVolume,
		MaxVolume:      settings.Strategy.MaxVolume,
		MaxRange:       settings.Strategy.MaxRange,
		VetoVolatility: settings.Strategy.VetoVolatility,
		VetoSpoof:      settings.Strategy.VetoSpoof,
	})
	orchestrator.Attach(bus)

	killSwitch := risk.NewKillSwitch(log.Named("killswitch"))
	riskEngine := risk.NewEngine(log.Named("risk"), bus, risk.Limits{
		Symbols:        settings.Risk.Symbols,
		MaxSize:        settings.Risk.MaxSize,
		MaxExposure:    settings.Risk.MaxExposure,
		ThrottleWindow: settings.Risk.ThrottleWindow,
		ThrottleMax:    settings.Risk.ThrottleMax,
	}, killSwitch)

	simAdapter := execution.NewSimAdapter(log.Named("sim-venue"), bus, execution.SimAdapterConfig{
		FillProbability: settings.Execution.FillProbability,
		FillDelay:       settings.Execution.FillDelay,
	})
	killSwitch.AddListener(func(reason string) {
		simAdapter.Halt()
	})

	router := execution.NewRouter(log.Named("router"), bus, simAdapter)
	smartRouter := execution.NewSmartRouter(log.Named("smart-router"), bus, router, execution.SmartRouterConfig{
		Clip:        settings.Execution.Clip,
		AvgFillRate: settings.Execution.AvgFillRate,
	})
	smartRouter.Attach(bus)

	trader := &trader{
		log:      log.Named("trader"),
		risk:     riskEngine,
		router:   smartRouter,
		quantity: settings.Execution.OrderQuantity,
	}
	bus.Subscribe(trader, events.TypeSignal)

	manager := provider.NewManager(log.Named("provider"), bus)
	manager.Register(provider.NewSim(log.Named("sim-feed"), bus, provider.SimConfig{Symbols: settings.Symbols}))
	manager.Register(provider.NewBinance(log.Named("binance-feed"), bus, provider.BinanceConfig{
		Symbols:   settings.Symbols,
		StreamURL: settings.Binance.StreamURL,
	}))

	switch settings.Provider {
	case "auto":
		if len(settings.Symbols) == 0 {
			return fmt.Errorf("auto provider selection needs at least one symbol")
		}
		if _, err := manager.AutoStart(settings.Symbols[0]); err != nil {
			return err
		}
	default:
		if err := manager.Start(settings.Provider); err != nil {
			return err
		}
	}

	opsServer := api.NewServer(log.Named("api"), bus, riskEngine, manager, registry, settings.Symbols)
	serveErr := make(chan error, 1)
	go func() { serveErr <- opsServer.Start(settings.HTTPAddr) }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			log.Error("ops api failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("ops api shutdown", zap.Error(err))
	}
	if err := manager.Stop(); err != nil {
		log.Warn("provider stop", zap.Error(err))
	}
	bus.Stop(settings.Bus.StopTimeout)
	return nil
}

// trader turns approved signals into routed orders. It runs inside the
// dispatch callback like the rest of the decision chain.
type trader struct {
	log      *zap.Logger
	risk     *risk.Engine
	router   *execution.SmartRouter
	quantity float64
}

func (t *trader) OnEvent(evt events.Event) error {
	sig, ok := evt.Payload.(events.SignalPayload)
	if !ok {
		return nil
	}
	order := execution.Order{
		ID:       uuid.NewString(),
		Symbol:   evt.Symbol,
		Side:     sig.Direction,
		Quantity: t.quantity,
		Type:     execution.TypeMarket,
	}
	decision := t.risk.Evaluate(order)
	if !decision.Approved {
		return nil
	}
	if _, err := t.router.Route(order, sig.Features["queue_position"]); err != nil {
		return fmt.Errorf("route order %s: %w", order.ID, err)
	}
	return nil
}
