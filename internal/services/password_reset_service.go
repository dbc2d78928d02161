package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/EvanMarlow/gatehouse/internal/models"
	"github.com/EvanMarlow/gatehouse/internal/security"
	pkgauth "github.com/EvanMarlow/gatehouse/pkg/auth"
	pkglogger "github.com/EvanMarlow/gatehouse/pkg/logger"
)

// PasswordResetService drives the forgot-password flow on top of the
// TokenStore. The plaintext token leaves the process exactly once, inside
// the reset email.
type PasswordResetService struct {
	userRepo     UserRepository
	tokens       *security.TokenStore
	emailService EmailService
	logger       *slog.Logger
	auditLogger  *pkglogger.AuditLogger
}

// NewPasswordResetService creates a new PasswordResetService
func NewPasswordResetService(
	userRepo UserRepository,
	tokens *security.TokenStore,
	emailService EmailService,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *PasswordResetService {
	return &PasswordResetService{
		userRepo:     userRepo,
		tokens:       tokens,
		emailService: emailService,
		logger:       logger,
		auditLogger:  auditLogger,
	}
}

// RequestReset issues a reset token and emails it to the user. Unknown
// addresses succeed silently so the endpoint cannot be used to probe for
// accounts.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("password reset requested for unknown email")
			return nil
		}
		s.logger.Error("failed to look up user for password reset", slog.Any("error", err))
		// Still silent toward the caller: availability problems must not
		// reveal whether the account exists.
		return nil
	}

	token, err := s.tokens.CreatePasswordResetToken(user.Email)
	if err != nil {
		s.logger.Error("failed to create password reset token", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.emailService.SendPasswordResetEmail(ctx, user.Email, token); err != nil {
		s.logger.Error("failed to send password reset email",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("password reset email sent", slog.String("user_id", user.ID))
	return nil
}

// ConfirmReset validates the token, updates the password, and then consumes
// the token. Consumption happens after the password write so a crash in
// between leaves a token that can simply be used again, rather than a user
// locked out with a burned token.
func (s *PasswordResetService) ConfirmReset(ctx context.Context, token, email, newPassword string) error {
	if !s.tokens.ValidatePasswordResetToken(token, email) {
		s.logger.Info("password reset with invalid or expired token")
		return models.ErrUnauthorized
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrUnauthorized
		}
		s.logger.Error("failed to look up user for password reset", slog.Any("error", err))
		return models.ErrInternalServer
	}

	hashedPassword, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash new password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.userRepo.UpdatePassword(ctx, user.ID, hashedPassword); err != nil {
		s.logger.Error("failed to update password",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	// Unconditional: the token is spent whether or not the caller retries.
	s.tokens.ConsumeToken(token)

	s.logger.Info("password reset completed", slog.String("user_id", user.ID))
	s.auditLogger.LogPasswordChange(user.ID, "", true)

	return nil
}
