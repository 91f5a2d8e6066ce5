package cooldown

import (
	"sync"
	"time"
)

// Gate admits at most one alert per cooldown window. The window is
// measured between acceptance times, not delivery times.
type Gate struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     time.Time
	seen     bool
}

// New creates a gate with the given minimum spacing between accepts
func New(cooldown time.Duration) *Gate {
	return &Gate{cooldown: cooldown}
}

// TryAccept reports whether an alert at now may proceed and, if so,
// records now as the last accepted time. Check and set are one step.
func (g *Gate) TryAccept(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.seen && now.Sub(g.last) < g.cooldown {
		return false
	}
	g.last = now
	g.seen = true
	return true
}

// Last returns the last accepted time, if any
func (g *Gate) Last() (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last, g.seen
}

// Cooldown returns the configured window
func (g *Gate) Cooldown() time.Duration {
	return g.cooldown
}
