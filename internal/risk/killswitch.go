package risk

import (
	"sync"

	"go.uber.org/zap"
)

// KillSwitch is the global order halt. Once engaged it stays engaged until
// an operator resets it explicitly; there is no automatic recovery.
// Engaging fires every registered listener (used to halt adapters);
// listener panics are recovered and logged, never propagated.
type KillSwitch struct {
	log *zap.Logger

	mu        sync.Mutex
	engaged   bool
	reason    string
	listeners []func(reason string)
}

func NewKillSwitch(log *zap.Logger) *KillSwitch {
	return &KillSwitch{log: log}
}

// AddListener registers a callback fired on engagement.
func (k *KillSwitch) AddListener(fn func(reason string)) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.listeners = append(k.listeners, fn)
}

// Engage trips the switch. Engaging an already engaged switch only updates
// the recorded reason; listeners fire once per transition.
func (k *KillSwitch) Engage(reason string) {
	k.mu.Lock()
	already := k.engaged
	k.engaged = true
	k.reason = reason
	listeners := append([]func(string){}, k.listeners...)
	k.mu.Unlock()

	if already {
		return
	}
	k.log.Warn("kill switch engaged", zap.String("reason", reason))
	for _, fn := range listeners {
		k.fire(fn, reason)
	}
}

func (k *KillSwitch) fire(fn func(string), reason string) {
	defer func() {
		if r := recover(); r != nil {
			k.log.Error("kill switch listener panicked", zap.Any("panic", r))
		}
	}()
	fn(reason)
}

// Reset disengages the switch. Manual operator action only.
func (k *KillSwitch) Reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.engaged {
		k.log.Info("kill switch reset")
	}
	k.engaged = false
	k.reason = ""
}

// Engaged reports the current state and the engagement reason.
func (k *KillSwitch) Engaged() (bool, string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.engaged, k.reason
}
