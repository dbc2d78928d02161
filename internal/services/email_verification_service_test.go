package services

import (
	"context"
	"testing"

	"github.com/EvanMarlow/gatehouse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyEmail_MarksUserVerified(t *testing.T) {
	marked := false
	repo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return &models.User{ID: "user-1", Email: "test@example.com"}, nil
		},
		MarkEmailVerifiedFunc: func(ctx context.Context, id string) error {
			marked = true
			return nil
		},
	}
	store := newTestTokenStore(t)
	emails := NewMockEmailService()
	svc := NewEmailVerificationService(repo, store, emails, newTestLogger())

	require.NoError(t, svc.SendVerificationEmail(context.Background(), "user-1", "test@example.com"))
	token := emails.VerificationTokens["test@example.com"]
	require.NotEmpty(t, token)

	require.NoError(t, svc.VerifyEmail(context.Background(), token, "test@example.com"))
	assert.True(t, marked)

	// Single use: the same link cannot verify twice.
	err := svc.VerifyEmail(context.Background(), token, "test@example.com")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestVerifyEmail_RejectsResetToken(t *testing.T) {
	repo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return &models.User{ID: "user-1", Email: "test@example.com"}, nil
		},
	}
	store := newTestTokenStore(t)
	svc := NewEmailVerificationService(repo, store, NewMockEmailService(), newTestLogger())

	resetToken, err := store.CreatePasswordResetToken("test@example.com")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.VerifyEmail(context.Background(), resetToken, "test@example.com"), models.ErrUnauthorized)
}

func TestVerifyEmail_FailedPersistLeavesTokenLive(t *testing.T) {
	fail := true
	repo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return &models.User{ID: "user-1", Email: "test@example.com"}, nil
		},
		MarkEmailVerifiedFunc: func(ctx context.Context, id string) error {
			if fail {
				return assert.AnError
			}
			return nil
		},
	}
	store := newTestTokenStore(t)
	emails := NewMockEmailService()
	svc := NewEmailVerificationService(repo, store, emails, newTestLogger())

	require.NoError(t, svc.SendVerificationEmail(context.Background(), "user-1", "test@example.com"))
	token := emails.VerificationTokens["test@example.com"]

	assert.ErrorIs(t, svc.VerifyEmail(context.Background(), token, "test@example.com"), models.ErrInternalServer)

	// The write failed before the token was consumed, so a retry works.
	fail = false
	assert.NoError(t, svc.VerifyEmail(context.Background(), token, "test@example.com"))
}

func TestResendVerification_SkipsVerifiedAndUnknown(t *testing.T) {
	verified := &models.User{ID: "user-1", Email: "done@example.com", EmailVerified: true}
	repo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			if email == "done@example.com" {
				return verified, nil
			}
			return nil, models.ErrNotFound
		},
	}
	emails := NewMockEmailService()
	svc := NewEmailVerificationService(repo, newTestTokenStore(t), emails, newTestLogger())

	assert.NoError(t, svc.ResendVerification(context.Background(), "done@example.com"))
	assert.NoError(t, svc.ResendVerification(context.Background(), "ghost@example.com"))
	assert.Empty(t, emails.VerificationTokens)
}

func TestResendVerification_SendsForUnverified(t *testing.T) {
	repo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return &models.User{ID: "user-1", Email: "test@example.com"}, nil
		},
	}
	emails := NewMockEmailService()
	svc := NewEmailVerificationService(repo, newTestTokenStore(t), emails, newTestLogger())

	require.NoError(t, svc.ResendVerification(context.Background(), "test@example.com"))
	assert.NotEmpty(t, emails.VerificationTokens["test@example.com"])
}

func TestGetStatus(t *testing.T) {
	repo := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return &models.User{ID: id, EmailVerified: true}, nil
		},
	}
	svc := NewEmailVerificationService(repo, newTestTokenStore(t), NewMockEmailService(), newTestLogger())

	ok, err := svc.GetStatus(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, ok)
}
