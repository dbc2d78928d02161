package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/EvanMarlow/gatehouse/internal/models"
	pkgauth "github.com/EvanMarlow/gatehouse/pkg/auth"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	Update(ctx context.Context, id string, user *models.User) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	MarkEmailVerified(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// LoginAttemptReader reads the durable login attempt audit trail.
type LoginAttemptReader interface {
	GetFailedAttemptCount(ctx context.Context, email string, since time.Time) (int, error)
	GetLastSuccessTime(ctx context.Context, email string) (*time.Time, error)
}

// loginActivityWindow is how far back GetLoginActivity counts failures.
const loginActivityWindow = 24 * time.Hour

// UserService handles user business logic
type UserService struct {
	repo     UserRepository
	attempts LoginAttemptReader
	logger   *slog.Logger
}

// NewUserService creates a new UserService
func NewUserService(repo UserRepository, attempts LoginAttemptReader, logger *slog.Logger) *UserService {
	return &UserService{
		repo:     repo,
		attempts: attempts,
		logger:   logger,
	}
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("user not found", slog.String("user_id", id))
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return user, nil
}

// ListUsers retrieves a list of users with pagination
func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	users, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list users", slog.Int("limit", limit), slog.Int("offset", offset), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return users, nil
}

// CreateUser creates a new user with an optional initial password
func (s *UserService) CreateUser(ctx context.Context, user *models.User, password string) (*models.User, error) {
	existingUser, err := s.repo.GetByEmail(ctx, user.Email)
	if err == nil && existingUser != nil {
		s.logger.Info("user already exists")
		return nil, models.ErrConflict
	}

	if password != "" {
		if err := pkgauth.ValidatePassword(password); err != nil {
			return nil, err
		}
		hashed, err := pkgauth.HashPassword(password)
		if err != nil {
			s.logger.Error("failed to hash password", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		user.PasswordHash = hashed
	}

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user created", slog.String("user_id", created.ID))
	return created, nil
}

// UpdateUser updates mutable user fields
func (s *UserService) UpdateUser(ctx context.Context, id string, user *models.User) (*models.User, error) {
	updated, err := s.repo.Update(ctx, id, user)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to update user", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user updated", slog.String("user_id", id))
	return updated, nil
}

// DeleteUser removes a user
func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to delete user", slog.String("user_id", id), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("user deleted", slog.String("user_id", id))
	return nil
}

// GetLoginActivity reports recent failed attempts and the last successful
// login for a user, read from the audit trail.
func (s *UserService) GetLoginActivity(ctx context.Context, id string) (*models.LoginActivity, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user for login activity", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	since := time.Now().Add(-loginActivityWindow)
	failed, err := s.attempts.GetFailedAttemptCount(ctx, user.Email, since)
	if err != nil {
		s.logger.Error("failed to count login attempts", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	lastSuccess, err := s.attempts.GetLastSuccessTime(ctx, user.Email)
	if err != nil {
		s.logger.Error("failed to get last successful login", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &models.LoginActivity{
		FailedAttempts: failed,
		Window:         loginActivityWindow,
		LastSuccessAt:  lastSuccess,
	}, nil
}
