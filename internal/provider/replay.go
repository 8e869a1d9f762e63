package provider

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"orderflow-core/internal/events"
)

// Replay republishes a recorded event sequence in order, paced by a rate
// limiter. Sources on the recorded events are rewritten to the replay
// provider's name so the allow-list treats them as live.
type Replay struct {
	log      *zap.Logger
	bus      *events.Bus
	recorded []events.Event
	perSec   rate.Limit

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReplay paces eventsPerSecond through the limiter; zero or negative
// means unthrottled.
func NewReplay(log *zap.Logger, bus *events.Bus, recorded []events.Event, eventsPerSecond float64) *Replay {
	perSec := rate.Inf
	if eventsPerSecond > 0 {
		perSec = rate.Limit(eventsPerSecond)
	}
	return &Replay{
		log:      log,
		bus:      bus,
		recorded: recorded,
		perSec:   perSec,
	}
}

func (r *Replay) Name() string { return "replay" }

func (r *Replay) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.run(ctx)
	r.log.Info("replay started", zap.Int("events", len(r.recorded)))
	return nil
}

func (r *Replay) run(ctx context.Context) {
	defer close(r.done)
	limiter := rate.NewLimiter(r.perSec, 1)
	for _, evt := range r.recorded {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		evt.Source = r.Name()
		r.bus.Publish(evt)
	}
	r.log.Info("replay finished", zap.Int("events", len(r.recorded)))
}

func (r *Replay) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.cancel = nil
	r.done = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

// Done reports replay completion for callers that want to wait for the
// full sequence, such as backtests.
func (r *Replay) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}
