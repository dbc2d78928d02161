package security_test

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/EvanMarlow/gatehouse/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually-advanced time source shared by the security tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestGuard(t *testing.T, config security.LoginGuardConfig, clock *fakeClock) *security.LoginGuard {
	t.Helper()
	guard, err := security.NewLoginGuard(config, testLogger(), security.WithLoginGuardClock(clock.Now))
	require.NoError(t, err)
	return guard
}

func defaultGuardConfig() security.LoginGuardConfig {
	return security.LoginGuardConfig{
		MaxAttemptsPerIP:   3,
		IPWindow:           60 * time.Second,
		MaxAccountFailures: 5,
		LockoutDuration:    15 * time.Minute,
		CleanupInterval:    5 * time.Minute,
	}
}

func TestNewLoginGuard_RejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*security.LoginGuardConfig)
	}{
		{"zero max attempts per IP", func(c *security.LoginGuardConfig) { c.MaxAttemptsPerIP = 0 }},
		{"zero IP window", func(c *security.LoginGuardConfig) { c.IPWindow = 0 }},
		{"zero max account failures", func(c *security.LoginGuardConfig) { c.MaxAccountFailures = 0 }},
		{"negative lockout duration", func(c *security.LoginGuardConfig) { c.LockoutDuration = -time.Minute }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			config := defaultGuardConfig()
			tc.mutate(&config)
			_, err := security.NewLoginGuard(config, testLogger())
			assert.Error(t, err)
		})
	}
}

func TestLoginGuardCheckIPRateLimit_AllowsUnknownIP(t *testing.T) {
	guard := newTestGuard(t, defaultGuardConfig(), newFakeClock())

	allowed, retryAfter := guard.CheckIPRateLimit("1.2.3.4")

	assert.True(t, allowed)
	assert.Zero(t, retryAfter)
}

func TestLoginGuardCheckIPRateLimit_DeniesAfterMaxAttempts(t *testing.T) {
	// Three attempts in a 60s window at t=0, 10, 20. The check at t=30
	// must deny with roughly 30s left in the window.
	clock := newFakeClock()
	guard := newTestGuard(t, defaultGuardConfig(), clock)

	for i := 0; i < 3; i++ {
		allowed, _ := guard.CheckIPRateLimit("1.2.3.4")
		require.True(t, allowed)
		guard.RecordLoginAttempt("1.2.3.4", "user@example.com", false, "test-agent")
		clock.Advance(10 * time.Second)
	}

	allowed, retryAfter := guard.CheckIPRateLimit("1.2.3.4")

	assert.False(t, allowed)
	assert.Equal(t, 30*time.Second, retryAfter)
}

func TestLoginGuardCheckIPRateLimit_AllowsAfterWindowElapsed(t *testing.T) {
	clock := newFakeClock()
	guard := newTestGuard(t, defaultGuardConfig(), clock)

	for i := 0; i < 3; i++ {
		guard.RecordLoginAttempt("1.2.3.4", "user@example.com", false, "test-agent")
	}

	allowed, _ := guard.CheckIPRateLimit("1.2.3.4")
	require.False(t, allowed)

	clock.Advance(61 * time.Second)

	allowed, retryAfter := guard.CheckIPRateLimit("1.2.3.4")
	assert.True(t, allowed)
	assert.Zero(t, retryAfter)

	// The stale window was discarded wholesale: the counter reflects only
	// new activity.
	guard.RecordLoginAttempt("1.2.3.4", "user@example.com", false, "test-agent")
	allowed, _ = guard.CheckIPRateLimit("1.2.3.4")
	assert.True(t, allowed)
}

func TestLoginGuardCheckIPRateLimit_RetryAfterFlooredAtOneSecond(t *testing.T) {
	clock := newFakeClock()
	guard := newTestGuard(t, defaultGuardConfig(), clock)

	for i := 0; i < 3; i++ {
		guard.RecordLoginAttempt("1.2.3.4", "user@example.com", false, "test-agent")
	}

	// 200ms before the window closes the hint still reads one full second.
	clock.Advance(60*time.Second - 200*time.Millisecond)

	allowed, retryAfter := guard.CheckIPRateLimit("1.2.3.4")
	assert.False(t, allowed)
	assert.Equal(t, time.Second, retryAfter)
}

func TestLoginGuardCheckIPRateLimit_CountsSuccessfulAttempts(t *testing.T) {
	// The IP axis bounds total login traffic from a source, so successes
	// count toward the window too.
	clock := newFakeClock()
	guard := newTestGuard(t, defaultGuardConfig(), clock)

	guard.RecordLoginAttempt("1.2.3.4", "user@example.com", true, "test-agent")
	guard.RecordLoginAttempt("1.2.3.4", "user@example.com", true, "test-agent")
	guard.RecordLoginAttempt("1.2.3.4", "user@example.com", false, "test-agent")

	allowed, _ := guard.CheckIPRateLimit("1.2.3.4")
	assert.False(t, allowed)
}

func TestLoginGuardCheckAccountLockout_LocksAfterMaxFailures(t *testing.T) {
	// Five straight failures with a 900s lockout deny until now+901.
	config := defaultGuardConfig()
	config.LockoutDuration = 900 * time.Second
	clock := newFakeClock()
	guard := newTestGuard(t, config, clock)

	for i := 0; i < 4; i++ {
		guard.RecordLoginAttempt("1.2.3.4", "user@x.com", false, "test-agent")
		allowed, _ := guard.CheckAccountLockout("user@x.com")
		require.True(t, allowed, "attempt %d should not lock yet", i+1)
	}

	guard.RecordLoginAttempt("1.2.3.4", "user@x.com", false, "test-agent")

	allowed, retryAfter := guard.CheckAccountLockout("user@x.com")
	assert.False(t, allowed)
	assert.Equal(t, 900*time.Second, retryAfter)

	clock.Advance(901 * time.Second)

	allowed, _ = guard.CheckAccountLockout("user@x.com")
	assert.True(t, allowed)
}

func TestLoginGuardCheckAccountLockout_CaseInsensitiveEmail(t *testing.T) {
	clock := newFakeClock()
	guard := newTestGuard(t, defaultGuardConfig(), clock)

	for i := 0; i < 5; i++ {
		guard.RecordLoginAttempt("1.2.3.4", "User@Example.COM", false, "test-agent")
	}

	allowed, _ := guard.CheckAccountLockout("user@example.com")
	assert.False(t, allowed)
}

func TestLoginGuardRecordLoginAttempt_SuccessClearsFailureStreak(t *testing.T) {
	clock := newFakeClock()
	guard := newTestGuard(t, defaultGuardConfig(), clock)

	for i := 0; i < 4; i++ {
		guard.RecordLoginAttempt("1.2.3.4", "user@example.com", false, "test-agent")
	}
	require.Equal(t, 1, guard.GetRemainingAttempts("user@example.com"))

	guard.RecordLoginAttempt("1.2.3.4", "user@example.com", true, "test-agent")
	assert.Equal(t, 5, guard.GetRemainingAttempts("user@example.com"))

	// The next failure starts a fresh streak from 1.
	guard.RecordLoginAttempt("1.2.3.4", "user@example.com", false, "test-agent")
	assert.Equal(t, 4, guard.GetRemainingAttempts("user@example.com"))
}

func TestLoginGuardRecordLoginAttempt_FailureAfterExpiredLockoutStartsFresh(t *testing.T) {
	clock := newFakeClock()
	guard := newTestGuard(t, defaultGuardConfig(), clock)

	for i := 0; i < 5; i++ {
		guard.RecordLoginAttempt("1.2.3.4", "user@example.com", false, "test-agent")
	}
	allowed, _ := guard.CheckAccountLockout("user@example.com")
	require.False(t, allowed)

	clock.Advance(16 * time.Minute)

	// Expired lock is left in place by the check, then reset to a streak of
	// one by the next recorded failure.
	allowed, _ = guard.CheckAccountLockout("user@example.com")
	require.True(t, allowed)

	guard.RecordLoginAttempt("1.2.3.4", "user@example.com", false, "test-agent")
	assert.Equal(t, 4, guard.GetRemainingAttempts("user@example.com"))

	allowed, _ = guard.CheckAccountLockout("user@example.com")
	assert.True(t, allowed)
}

func TestLoginGuardGetRemainingAttempts_UnknownAccount(t *testing.T) {
	guard := newTestGuard(t, defaultGuardConfig(), newFakeClock())

	assert.Equal(t, 5, guard.GetRemainingAttempts("nobody@example.com"))
}

func TestLoginGuardGetRemainingAttempts_FlooredAtZero(t *testing.T) {
	clock := newFakeClock()
	guard := newTestGuard(t, defaultGuardConfig(), clock)

	for i := 0; i < 7; i++ {
		guard.RecordLoginAttempt("1.2.3.4", "user@example.com", false, "test-agent")
	}

	assert.Equal(t, 0, guard.GetRemainingAttempts("user@example.com"))
}

func TestLoginGuard_IPAndAccountAxesAreIndependent(t *testing.T) {
	clock := newFakeClock()
	guard := newTestGuard(t, defaultGuardConfig(), clock)

	// Five failures for one account spread over distinct IPs: the account
	// locks while no single IP hits its limit.
	for i := 0; i < 5; i++ {
		ip := fmt.Sprintf("10.0.0.%d", i+1)
		guard.RecordLoginAttempt(ip, "user@example.com", false, "test-agent")
	}

	allowed, _ := guard.CheckAccountLockout("user@example.com")
	assert.False(t, allowed)

	allowed, _ = guard.CheckIPRateLimit("10.0.0.1")
	assert.True(t, allowed)

	// One IP hammering many accounts trips the IP limit while each account
	// stays unlocked.
	for i := 0; i < 3; i++ {
		email := fmt.Sprintf("victim%d@example.com", i)
		guard.RecordLoginAttempt("9.9.9.9", email, false, "test-agent")
	}

	allowed, _ = guard.CheckIPRateLimit("9.9.9.9")
	assert.False(t, allowed)

	allowed, _ = guard.CheckAccountLockout("victim0@example.com")
	assert.True(t, allowed)
}

func TestLoginGuard_SweepRemovesIdleEntries(t *testing.T) {
	config := defaultGuardConfig()
	config.CleanupInterval = time.Minute
	clock := newFakeClock()
	guard := newTestGuard(t, config, clock)

	guard.RecordLoginAttempt("1.2.3.4", "user@example.com", false, "test-agent")

	// Well past both the IP window and the idle horizon; the next check
	// triggers a sweep and the account streak is gone.
	clock.Advance(time.Hour)

	allowed, _ := guard.CheckIPRateLimit("5.6.7.8")
	require.True(t, allowed)

	assert.Equal(t, 5, guard.GetRemainingAttempts("user@example.com"))
}

func TestLoginGuard_ConcurrentRecordAndCheck(t *testing.T) {
	config := defaultGuardConfig()
	config.MaxAttemptsPerIP = 1000
	config.MaxAccountFailures = 1000
	guard := newTestGuard(t, config, newFakeClock())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			email := fmt.Sprintf("user%d@example.com", n%2)
			for j := 0; j < 50; j++ {
				guard.RecordLoginAttempt("1.2.3.4", email, j%5 == 0, "test-agent")
				guard.CheckIPRateLimit("1.2.3.4")
				guard.CheckAccountLockout(email)
				guard.GetRemainingAttempts(email)
			}
		}(i)
	}
	wg.Wait()
}
