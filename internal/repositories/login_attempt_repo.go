package repositories

import (
	"context"
	"time"

	"github.com/EvanMarlow/gatehouse/internal/database"
	"github.com/EvanMarlow/gatehouse/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LoginAttemptRepository persists the audit trail of login attempts. Rate
// limiting decisions come from the in-memory LoginGuard; these rows are for
// after-the-fact analysis and expire on their own schedule.
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// RecordAttempt records a login attempt in the database
func (r *LoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}

	query := `
		INSERT INTO login_attempts (id, email, ip_address, user_agent, success, failure_reason, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.ID,
		attempt.Email,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.Success,
		attempt.FailureReason,
		attempt.ExpiresAt,
	)

	return database.MapPostgresError(err)
}

// GetFailedAttemptCount returns the number of failed attempts for an email within a time window
func (r *LoginAttemptRepository) GetFailedAttemptCount(ctx context.Context, email string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE email = $1 AND success = false AND attempt_time >= $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, email, since).Scan(&count)
	return count, err
}

// GetLastSuccessTime returns the timestamp of the most recent successful login for an email
func (r *LoginAttemptRepository) GetLastSuccessTime(ctx context.Context, email string) (*time.Time, error) {
	query := `
		SELECT attempt_time FROM login_attempts
		WHERE email = $1 AND success = true
		ORDER BY attempt_time DESC
		LIMIT 1
	`

	var successTime time.Time
	err := r.db.Pool.QueryRow(ctx, query, email).Scan(&successTime)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &successTime, nil
}

// DeleteExpiredAttempts removes login attempts past their retention window
func (r *LoginAttemptRepository) DeleteExpiredAttempts(ctx context.Context) (int64, error) {
	query := `DELETE FROM login_attempts WHERE expires_at <= CURRENT_TIMESTAMP`

	result, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected(), nil
}
