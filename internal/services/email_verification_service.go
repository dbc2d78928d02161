package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/EvanMarlow/gatehouse/internal/models"
	"github.com/EvanMarlow/gatehouse/internal/security"
)

// EmailVerificationService handles email verification on top of the
// TokenStore. Issuing a fresh token invalidates any earlier one for the same
// address, so only the most recently mailed link works.
type EmailVerificationService struct {
	userRepo     UserRepository
	tokens       *security.TokenStore
	emailService EmailService
	logger       *slog.Logger
}

// NewEmailVerificationService creates a new EmailVerificationService
func NewEmailVerificationService(
	userRepo UserRepository,
	tokens *security.TokenStore,
	emailService EmailService,
	logger *slog.Logger,
) *EmailVerificationService {
	return &EmailVerificationService{
		userRepo:     userRepo,
		tokens:       tokens,
		emailService: emailService,
		logger:       logger,
	}
}

// SendVerificationEmail issues a verification token and mails it
func (s *EmailVerificationService) SendVerificationEmail(ctx context.Context, userID, email string) error {
	token, err := s.tokens.CreateEmailVerificationToken(email)
	if err != nil {
		s.logger.Error("failed to create email verification token",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.emailService.SendVerificationEmail(ctx, email, token); err != nil {
		s.logger.Error("failed to send verification email",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("verification email sent", slog.String("user_id", userID))
	return nil
}

// VerifyEmail validates a token, marks the user verified, then consumes the
// token. The generic ErrUnauthorized hides whether the token was unknown,
// expired, or issued for a different address.
func (s *EmailVerificationService) VerifyEmail(ctx context.Context, token, email string) error {
	if !s.tokens.ValidateEmailVerificationToken(token, email) {
		s.logger.Info("email verification with invalid or expired token")
		return models.ErrUnauthorized
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrUnauthorized
		}
		s.logger.Error("failed to look up user for email verification", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.userRepo.MarkEmailVerified(ctx, user.ID); err != nil {
		s.logger.Error("failed to mark email verified",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.tokens.ConsumeToken(token)

	s.logger.Info("email verified", slog.String("user_id", user.ID))
	return nil
}

// ResendVerification sends a fresh verification email if the account exists
// and is still unverified. The caller always sees success, to prevent
// enumeration.
func (s *EmailVerificationService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to look up user for resend", slog.Any("error", err))
		}
		return nil
	}

	if user.EmailVerified {
		return nil
	}

	return s.SendVerificationEmail(ctx, user.ID, user.Email)
}

// GetStatus returns the verification status for a user
func (s *EmailVerificationService) GetStatus(ctx context.Context, userID string) (bool, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}

	return user.EmailVerified, nil
}
