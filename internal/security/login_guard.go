package security

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// LoginGuardConfig holds the knobs for IP rate limiting and account lockout
type LoginGuardConfig struct {
	MaxAttemptsPerIP   int           // attempts allowed from one IP per window
	IPWindow           time.Duration // sliding window anchored at the first attempt
	MaxAccountFailures int           // consecutive failures before an account locks
	LockoutDuration    time.Duration // how long a locked account stays locked
	CleanupInterval    time.Duration // minimum gap between expired-entry sweeps
}

// loginRecord tracks attempts for a single IP or account.
type loginRecord struct {
	attempts     int
	firstAttempt time.Time
	lastAttempt  time.Time
	lockedUntil  time.Time // zero value means no lock (IP records never set it)
}

// LoginGuard tracks failed login attempts per source IP and per account,
// entirely in memory. IP tracking is a sliding window over all attempts from
// a source; account tracking is a consecutive-failure lockout with automatic
// expiry. The two axes are independent: IP limiting bounds brute force from
// one source regardless of target account, account lockout defends a single
// account against attempts from many sources. Both checks must pass before
// the caller verifies credentials.
//
// State lives in process memory and is lost on restart. Multi-instance
// deployments need a shared TTL-capable store (e.g. Redis) behind the same
// contract instead.
type LoginGuard struct {
	mu      sync.Mutex
	config  LoginGuardConfig
	byIP    map[string]*loginRecord
	byEmail map[string]*loginRecord
	sweep   sweepGate
	logger  *slog.Logger
	now     func() time.Time
}

// LoginGuardOption customizes a LoginGuard at construction.
type LoginGuardOption func(*LoginGuard)

// WithLoginGuardClock overrides the guard's time source. Used by tests to
// drive window and lockout expiry deterministically.
func WithLoginGuardClock(now func() time.Time) LoginGuardOption {
	return func(g *LoginGuard) {
		g.now = now
	}
}

// NewLoginGuard creates a new LoginGuard
func NewLoginGuard(config LoginGuardConfig, logger *slog.Logger, opts ...LoginGuardOption) (*LoginGuard, error) {
	if config.MaxAttemptsPerIP < 1 {
		return nil, fmt.Errorf("max attempts per IP must be at least 1, got %d", config.MaxAttemptsPerIP)
	}
	if config.IPWindow <= 0 {
		return nil, fmt.Errorf("IP window must be positive, got %s", config.IPWindow)
	}
	if config.MaxAccountFailures < 1 {
		return nil, fmt.Errorf("max account failures must be at least 1, got %d", config.MaxAccountFailures)
	}
	if config.LockoutDuration <= 0 {
		return nil, fmt.Errorf("lockout duration must be positive, got %s", config.LockoutDuration)
	}

	g := &LoginGuard{
		config:  config,
		byIP:    make(map[string]*loginRecord),
		byEmail: make(map[string]*loginRecord),
		sweep:   sweepGate{interval: config.CleanupInterval},
		logger:  logger,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// CheckIPRateLimit reports whether a login attempt from the given IP should
// proceed. When denied, retryAfter is the time remaining in the current
// window, never less than one second. A window that has fully elapsed is
// discarded here rather than decremented.
func (g *LoginGuard) CheckIPRateLimit(ip string) (allowed bool, retryAfter time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.maybeSweep(now)

	rec, ok := g.byIP[ip]
	if !ok {
		return true, 0
	}

	elapsed := now.Sub(rec.firstAttempt)
	if elapsed >= g.config.IPWindow {
		// Stale window: reset wholesale.
		delete(g.byIP, ip)
		return true, 0
	}

	if rec.attempts >= g.config.MaxAttemptsPerIP {
		return false, floorSecond(g.config.IPWindow - elapsed)
	}

	return true, 0
}

// CheckAccountLockout reports whether a login attempt for the given account
// should proceed. Lookup is case-insensitive. An expired lock is left in
// place; RecordLoginAttempt resets the streak on the next failure.
func (g *LoginGuard) CheckAccountLockout(email string) (allowed bool, retryAfter time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.maybeSweep(now)

	rec, ok := g.byEmail[normalizeEmail(email)]
	if !ok {
		return true, 0
	}

	if rec.lockedUntil.IsZero() || !rec.lockedUntil.After(now) {
		return true, 0
	}

	return false, floorSecond(rec.lockedUntil.Sub(now))
}

// RecordLoginAttempt records the outcome of a login attempt. The IP counter
// advances on every attempt, success or failure, to bound total login traffic
// from a source. A success wipes the account's failure streak; a failure
// increments it and triggers a lockout at the configured threshold.
func (g *LoginGuard) RecordLoginAttempt(ip, email string, success bool, userAgent string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	key := normalizeEmail(email)

	if rec, ok := g.byIP[ip]; ok && now.Sub(rec.firstAttempt) < g.config.IPWindow {
		rec.attempts++
		rec.lastAttempt = now
	} else {
		g.byIP[ip] = &loginRecord{attempts: 1, firstAttempt: now, lastAttempt: now}
	}

	if success {
		delete(g.byEmail, key)
		g.logger.Info("login attempt succeeded",
			slog.String("ip_address", ip))
		return
	}

	rec, ok := g.byEmail[key]
	if !ok || (!rec.lockedUntil.IsZero() && !rec.lockedUntil.After(now)) {
		// First failure, or first failure after a lockout fully expired:
		// the streak starts over at 1.
		rec = &loginRecord{attempts: 1, firstAttempt: now, lastAttempt: now}
		g.byEmail[key] = rec
	} else {
		rec.attempts++
		rec.lastAttempt = now
	}

	if rec.attempts >= g.config.MaxAccountFailures {
		newlyLocked := rec.lockedUntil.IsZero()
		rec.lockedUntil = now.Add(g.config.LockoutDuration)
		if newlyLocked {
			g.logger.Warn("account locked after repeated failures",
				slog.Int("failed_attempts", rec.attempts),
				slog.String("ip_address", ip),
				slog.String("user_agent", userAgent),
				slog.Time("locked_until", rec.lockedUntil))
		}
	}
}

// GetRemainingAttempts returns how many more failures the account can absorb
// before locking, floored at zero.
func (g *LoginGuard) GetRemainingAttempts(email string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.byEmail[normalizeEmail(email)]
	if !ok {
		return g.config.MaxAccountFailures
	}

	remaining := g.config.MaxAccountFailures - rec.attempts
	if remaining < 0 {
		return 0
	}
	return remaining
}

// maybeSweep drops expired entries from both maps, at most once per cleanup
// interval. Caller must hold g.mu.
func (g *LoginGuard) maybeSweep(now time.Time) {
	if !g.sweep.due(now) {
		return
	}

	removed := 0
	for ip, rec := range g.byIP {
		if now.Sub(rec.firstAttempt) >= g.config.IPWindow {
			delete(g.byIP, ip)
			removed++
		}
	}
	for email, rec := range g.byEmail {
		if !rec.lockedUntil.IsZero() {
			if !rec.lockedUntil.After(now) {
				delete(g.byEmail, email)
				removed++
			}
			continue
		}
		// Idle unlocked streaks age out after a full lockout duration.
		if now.Sub(rec.lastAttempt) >= g.config.LockoutDuration {
			delete(g.byEmail, email)
			removed++
		}
	}

	if removed > 0 {
		g.logger.Debug("swept stale login records", slog.Int("removed", removed))
	}
}

// floorSecond clamps a retry hint to at least one second so callers never
// surface a zero or negative wait.
func floorSecond(d time.Duration) time.Duration {
	if d < time.Second {
		return time.Second
	}
	return d
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
