// Package provider owns the feed adapters and their lifecycle. Exactly one
// provider is active at a time; switching is a full stop-then-start
// transition guarded by the bus source allow-list so events queued by the
// outgoing provider never reach subscribers.
package provider

import "time"

// Provider is the feed adapter contract. Start spawns the provider's own
// publishing goroutines; Stop tears them down. A provider publishes events
// whose Source equals its Name, which is what the allow-list keys on.
type Provider interface {
	Name() string
	Start() error
	Stop() error
}

// ticker runs fn on a fixed interval until stopped. It is the one
// scheduled-task shape every polling provider uses, so shutdown is
// uniform: closing the stop channel ends the goroutine, and Stop returns
// once the loop has exited.
type ticker struct {
	stop chan struct{}
	done chan struct{}
}

func startTicker(interval time.Duration, fn func()) *ticker {
	t := &ticker{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go func() {
		defer close(t.done)
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-tick.C:
				fn()
			}
		}
	}()
	return t
}

func (t *ticker) halt() {
	close(t.stop)
	<-t.done
}
