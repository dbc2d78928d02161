package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/EvanMarlow/gatehouse/internal/auth"
	"github.com/EvanMarlow/gatehouse/internal/models"
	"github.com/EvanMarlow/gatehouse/internal/security"
	pkgauth "github.com/EvanMarlow/gatehouse/pkg/auth"
	pkglogger "github.com/EvanMarlow/gatehouse/pkg/logger"
)

// TokenRevocationRepository defines the interface for token revocation operations
type TokenRevocationRepository interface {
	RevokeToken(ctx context.Context, jti, userID, tokenType string, expiresAt time.Time, reason string) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// LoginAttemptRecorder persists the audit trail of login attempts.
type LoginAttemptRecorder interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
}

// AuthService handles authentication business logic. Every login attempt runs
// through the in-memory LoginGuard before credentials are checked and is
// recorded with it afterward, whatever the outcome.
type AuthService struct {
	repo             UserRepository
	revokeRepo       TokenRevocationRepository
	attemptRepo      LoginAttemptRecorder
	guard            *security.LoginGuard
	tm               *auth.TokenManager
	logger           *slog.Logger
	auditLogger      *pkglogger.AuditLogger
	attemptRetention time.Duration
}

// NewAuthService creates a new AuthService
func NewAuthService(
	repo UserRepository,
	tm *auth.TokenManager,
	revokeRepo TokenRevocationRepository,
	attemptRepo LoginAttemptRecorder,
	guard *security.LoginGuard,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
	attemptRetention time.Duration,
) *AuthService {
	return &AuthService{
		repo:             repo,
		revokeRepo:       revokeRepo,
		attemptRepo:      attemptRepo,
		guard:            guard,
		tm:               tm,
		logger:           logger,
		auditLogger:      auditLogger,
		attemptRetention: attemptRetention,
	}
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID            string   `json:"id"`
	Email         string   `json:"email"`
	Name          string   `json:"name"`
	EmailVerified bool     `json:"email_verified"`
	Role          string   `json:"role"`
	Permissions   []string `json:"permissions"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
}

// AuthResponse represents the response from auth operations
type AuthResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	User         *UserResponse `json:"user"`
}

// RateLimitedError carries the retry hint surfaced to the client when the
// login guard denies an attempt.
type RateLimitedError struct {
	RetryAfter time.Duration
	cause      error
}

// NewRateLimitedError wraps cause with a retry hint.
func NewRateLimitedError(cause error, retryAfter time.Duration) *RateLimitedError {
	return &RateLimitedError{RetryAfter: retryAfter, cause: cause}
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s (retry after %s)", e.cause, e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error {
	return e.cause
}

// Login authenticates a user and returns tokens. The flow is fixed: IP rate
// limit check, account lockout check, credential verification, then the
// attempt is recorded unconditionally.
func (s *AuthService) Login(ctx context.Context, email, password, ipAddress, userAgent string) (*AuthResponse, error) {
	if email = strings.ToLower(strings.TrimSpace(email)); email == "" {
		s.logger.Warn("login attempt with empty email")
		return nil, models.ErrUnauthorized
	}

	if allowed, retryAfter := s.guard.CheckIPRateLimit(ipAddress); !allowed {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			IPAddress:     ipAddress,
			FailureReason: "ip_rate_limited",
			Success:       false,
		})
		return nil, &RateLimitedError{RetryAfter: retryAfter, cause: models.ErrRateLimitExceeded}
	}

	if allowed, retryAfter := s.guard.CheckAccountLockout(email); !allowed {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			IPAddress:     ipAddress,
			FailureReason: "account_locked",
			Success:       false,
		})
		return nil, &RateLimitedError{RetryAfter: retryAfter, cause: models.ErrAccountLockedBySystem}
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Record the miss so an enumeration scan still counts against the IP window.
			s.recordAttempt(ctx, email, ipAddress, userAgent, false, "invalid_credentials")
			s.logger.Info("login failed: invalid credentials")
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := validateAccountState(user); err != nil {
		s.recordAttempt(ctx, email, ipAddress, userAgent, false, "account_blocked")
		s.logger.Info("login blocked due to account state",
			slog.String("user_id", user.ID),
			slog.String("status", user.Status))
		return nil, err
	}

	if !user.EmailVerified {
		s.recordAttempt(ctx, email, ipAddress, userAgent, false, "email_not_verified")
		s.logger.Info("login blocked: email not verified", slog.String("user_id", user.ID))
		return nil, models.ErrEmailNotVerified
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		s.recordAttempt(ctx, email, ipAddress, userAgent, false, "invalid_credentials")
		s.logger.Info("login failed: invalid credentials",
			slog.Int("remaining_attempts", s.guard.GetRemainingAttempts(email)))
		return nil, models.ErrUnauthorized
	}

	s.recordAttempt(ctx, email, ipAddress, userAgent, true, "")

	accessToken, err := s.tm.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	refreshToken, err := s.tm.GenerateRefreshToken(user.ID, user.Email)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    user.ID,
		IPAddress: ipAddress,
		Success:   true,
	})

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         userModelToResponse(user),
	}, nil
}

// recordAttempt updates the in-memory guard and best-effort persists the
// audit row. A failed insert never blocks the login outcome.
func (s *AuthService) recordAttempt(ctx context.Context, email, ipAddress, userAgent string, success bool, failureReason string) {
	s.guard.RecordLoginAttempt(ipAddress, email, success, userAgent)

	attempt := &models.LoginAttempt{
		Email:       email,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		AttemptTime: time.Now(),
		Success:     success,
		ExpiresAt:   time.Now().Add(s.attemptRetention),
	}
	if failureReason != "" {
		attempt.FailureReason = &failureReason
	}

	if err := s.attemptRepo.RecordAttempt(ctx, attempt); err != nil {
		s.logger.Error("failed to persist login attempt", slog.Any("error", err))
	}
}

// RefreshToken generates a new token pair from a refresh token
func (s *AuthService) RefreshToken(ctx context.Context, refreshTokenString string) (*AuthResponse, error) {
	if refreshTokenString = strings.TrimSpace(refreshTokenString); refreshTokenString == "" {
		return nil, models.ErrUnauthorized
	}

	claims, err := s.tm.ValidateToken(refreshTokenString)
	if err != nil {
		s.logger.Info("refresh token validation failed", slog.Any("error", err))
		return nil, models.ErrUnauthorized
	}

	if claims.Type != "refresh" {
		s.logger.Warn("refresh attempt with non-refresh token", slog.String("user_id", claims.UserID))
		return nil, models.ErrUnauthorized
	}

	if claims.ID != "" {
		revoked, err := s.revokeRepo.IsTokenRevoked(ctx, claims.ID)
		if err == nil && revoked {
			s.logger.Info("refresh attempt with revoked token", slog.String("user_id", claims.UserID))
			return nil, models.ErrUnauthorized
		}
	}

	user, err := s.repo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("user not found for token refresh", slog.String("user_id", claims.UserID))
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user for token refresh", slog.String("user_id", claims.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := validateAccountState(user); err != nil {
		s.logger.Info("token refresh blocked due to account state",
			slog.String("user_id", user.ID),
			slog.String("status", user.Status))
		return nil, models.ErrUnauthorized
	}

	accessToken, err := s.tm.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	newRefreshToken, err := s.tm.GenerateRefreshToken(user.ID, user.Email)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("token refreshed", slog.String("user_id", user.ID))

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		User:         userModelToResponse(user),
	}, nil
}

// Register creates a new user account and triggers the verification email
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)

	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, err
	}

	_, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		s.logger.Info("registration failed: user already exists")
		return nil, models.ErrConflict
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check if user exists", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hashedPassword, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hashedPassword,
		Name:         name,
		Role:         "user",
	}

	createdUser, err := s.repo.Create(ctx, user)
	if err != nil {
		s.logger.Error("failed to create user", slog.Any("error", err))
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user registered", slog.String("user_id", createdUser.ID))
	s.auditLogger.LogAccountAction("user_registered", createdUser.ID, "", nil)

	return createdUser, nil
}

// Logout revokes the current access token
func (s *AuthService) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.tm.ValidateToken(accessToken)
	if err != nil {
		return models.ErrUnauthorized
	}

	expiresAt := claims.ExpiresAt.Time
	err = s.revokeRepo.RevokeToken(ctx, claims.ID, claims.UserID, claims.Type, expiresAt, "logout")
	if err != nil {
		s.logger.Error("failed to revoke token", slog.String("jti", claims.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("user logged out", slog.String("user_id", claims.UserID))
	return nil
}

// validateAccountState checks if user account is in valid state for authentication
func validateAccountState(user *models.User) error {
	switch user.Status {
	case models.StatusDisabled:
		return models.ErrAccountDisabled
	case models.StatusSuspended:
		return models.ErrAccountSuspended
	case models.StatusActive:
		return nil
	default:
		return fmt.Errorf("unknown account status: %s", user.Status)
	}
}

// userModelToResponse converts a user model to response DTO
func userModelToResponse(user *models.User) *UserResponse {
	permissions := user.Permissions
	if permissions == nil {
		permissions = []string{}
	}
	return &UserResponse{
		ID:            user.ID,
		Email:         user.Email,
		Name:          user.Name,
		EmailVerified: user.EmailVerified,
		Role:          user.Role,
		Permissions:   permissions,
		CreatedAt:     user.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     user.UpdatedAt.Format(time.RFC3339),
	}
}
