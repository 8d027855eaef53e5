package quickchat

import (
	"sync"
	"time"
)

// Relay rate-limits quick signals per identity. Purely ephemeral.
type Relay struct {
	mu       sync.Mutex
	last     map[string]time.Time
	cooldown time.Duration
	now      func() time.Time
}

func NewRelay(cooldown time.Duration) *Relay {
	return &Relay{
		last:     make(map[string]time.Time),
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Allow records a send attempt for identity. When the cooldown has not
// elapsed since the last accepted signal, the remaining wait is returned and
// the attempt does not count.
func (r *Relay) Allow(identity string) (remaining time.Duration, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if last, seen := r.last[identity]; seen {
		if wait := r.cooldown - now.Sub(last); wait > 0 {
			return wait, false
		}
	}
	r.last[identity] = now
	return 0, true
}

// Forget clears the identity's throttle state.
func (r *Relay) Forget(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.last, identity)
}
