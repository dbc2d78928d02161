package services

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/EvanMarlow/gatehouse/internal/models"
	pkglogger "github.com/EvanMarlow/gatehouse/pkg/logger"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc           func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc        func(ctx context.Context, email string) (*models.User, error)
	ListFunc              func(ctx context.Context, limit, offset int) ([]*models.User, error)
	CreateFunc            func(ctx context.Context, user *models.User) (*models.User, error)
	UpdateFunc            func(ctx context.Context, id string, user *models.User) (*models.User, error)
	UpdatePasswordFunc    func(ctx context.Context, id, passwordHash string) error
	MarkEmailVerifiedFunc func(ctx context.Context, id string) error
	DeleteFunc            func(ctx context.Context, id string) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.User{}, nil
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) Update(ctx context.Context, id string, user *models.User) (*models.User, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash)
	}
	return nil
}

func (m *MockUserRepository) MarkEmailVerified(ctx context.Context, id string) error {
	if m.MarkEmailVerifiedFunc != nil {
		return m.MarkEmailVerifiedFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

// MockTokenRevocationRepository implements TokenRevocationRepository for testing
type MockTokenRevocationRepository struct {
	RevokeTokenFunc    func(ctx context.Context, jti, userID, tokenType string, expiresAt time.Time, reason string) error
	IsTokenRevokedFunc func(ctx context.Context, jti string) (bool, error)
}

func (m *MockTokenRevocationRepository) RevokeToken(ctx context.Context, jti, userID, tokenType string, expiresAt time.Time, reason string) error {
	if m.RevokeTokenFunc != nil {
		return m.RevokeTokenFunc(ctx, jti, userID, tokenType, expiresAt, reason)
	}
	return nil
}

func (m *MockTokenRevocationRepository) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if m.IsTokenRevokedFunc != nil {
		return m.IsTokenRevokedFunc(ctx, jti)
	}
	return false, nil
}

// MockLoginAttemptRecorder captures audit rows instead of hitting Postgres
type MockLoginAttemptRecorder struct {
	Attempts []*models.LoginAttempt
}

func (m *MockLoginAttemptRecorder) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	m.Attempts = append(m.Attempts, attempt)
	return nil
}

// MockEmailService captures outbound tokens instead of calling SES
type MockEmailService struct {
	VerificationTokens map[string]string // email -> last token
	ResetTokens        map[string]string
	SendErr            error
}

func NewMockEmailService() *MockEmailService {
	return &MockEmailService{
		VerificationTokens: make(map[string]string),
		ResetTokens:        make(map[string]string),
	}
}

func (m *MockEmailService) SendVerificationEmail(ctx context.Context, email, token string) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.VerificationTokens[email] = token
	return nil
}

func (m *MockEmailService) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.ResetTokens[email] = token
	return nil
}

// MockLoginAttemptReader implements LoginAttemptReader for testing
type MockLoginAttemptReader struct {
	GetFailedAttemptCountFunc func(ctx context.Context, email string, since time.Time) (int, error)
	GetLastSuccessTimeFunc    func(ctx context.Context, email string) (*time.Time, error)
}

func (m *MockLoginAttemptReader) GetFailedAttemptCount(ctx context.Context, email string, since time.Time) (int, error) {
	if m.GetFailedAttemptCountFunc != nil {
		return m.GetFailedAttemptCountFunc(ctx, email, since)
	}
	return 0, nil
}

func (m *MockLoginAttemptReader) GetLastSuccessTime(ctx context.Context, email string) (*time.Time, error) {
	if m.GetLastSuccessTimeFunc != nil {
		return m.GetLastSuccessTimeFunc(ctx, email)
	}
	return nil, nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestAuditLogger() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(newTestLogger())
}
