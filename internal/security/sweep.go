package security

import "time"

// sweepGate throttles expired-entry sweeps to at most once per interval.
// Callers must hold their store's lock; the gate itself is not synchronized.
type sweepGate struct {
	interval time.Duration
	last     time.Time
}

// due reports whether a sweep should run now, and if so records this
// sweep as the most recent one.
func (g *sweepGate) due(now time.Time) bool {
	if g.interval <= 0 {
		return false
	}
	if !g.last.IsZero() && now.Sub(g.last) < g.interval {
		return false
	}
	g.last = now
	return true
}
