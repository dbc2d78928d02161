package models

import "time"

// LoginAttempt is the durable audit record for a single login attempt. The
// in-memory counters that drive rate limiting live in internal/security;
// these rows exist for forensics and are swept by the background cleanup.
type LoginAttempt struct {
	ID            string    `db:"id"`
	Email         string    `db:"email"`
	IPAddress     string    `db:"ip_address"`
	UserAgent     string    `db:"user_agent"`
	AttemptTime   time.Time `db:"attempt_time"`
	Success       bool      `db:"success"`
	FailureReason *string   `db:"failure_reason"`
	ExpiresAt     time.Time `db:"expires_at"`
}

// LoginActivity summarizes the recent audit trail for one account.
type LoginActivity struct {
	FailedAttempts int
	Window         time.Duration
	LastSuccessAt  *time.Time
}
