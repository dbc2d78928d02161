package middleware

import (
	"net/http"
	"time"

	"github.com/EvanMarlow/gatehouse/internal/auth"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultAuthRateLimit returns default rate limit config for auth endpoints (5 requests per minute)
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 5,
	}
}

// AuthenticatedRateLimitConfig holds per-user rate limits by operation tier
type AuthenticatedRateLimitConfig struct {
	ReadOperationsPerMinute  int
	WriteOperationsPerMinute int
	AdminOperationsPerMinute int
}

// DefaultAuthenticatedRateLimit returns default per-user rate limits
func DefaultAuthenticatedRateLimit() AuthenticatedRateLimitConfig {
	return AuthenticatedRateLimitConfig{
		ReadOperationsPerMinute:  100,
		WriteOperationsPerMinute: 30,
		AdminOperationsPerMinute: 60,
	}
}

func writeLimitExceeded(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"rate_limit_exceeded","message":"Too many requests"}`))
}

// RateLimitByIP creates a middleware that rate limits requests by client IP.
// It fronts the unauthenticated auth endpoints so a burst from one address
// gets bounced before it reaches the login guard.
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(writeLimitExceeded),
	)
}

// RateLimitByUserID creates a middleware that rate limits authenticated
// requests per user, with the limit chosen by operation tier ("read",
// "write", or "admin"). Requests with no user claims in context fall back to
// the client IP so the middleware is safe to stack ahead of AuthMiddleware.
func RateLimitByUserID(config AuthenticatedRateLimitConfig, operation string) func(next http.Handler) http.Handler {
	limit := config.ReadOperationsPerMinute
	switch operation {
	case "write":
		limit = config.WriteOperationsPerMinute
	case "admin":
		limit = config.AdminOperationsPerMinute
	}

	return httprate.Limit(
		limit,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if claims := auth.GetUserFromContext(r); claims != nil && claims.UserID != "" {
				return "user:" + claims.UserID, nil
			}
			return httprate.KeyByIP(r)
		}),
		httprate.WithLimitHandler(writeLimitExceeded),
	)
}
