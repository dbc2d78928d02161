package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/EvanMarlow/gatehouse/internal/repositories"
)

// CleanupManager periodically removes expired revoked tokens and aged-out
// login attempt audit rows from the database. The in-memory security stores
// sweep themselves; this covers the durable tables.
type CleanupManager struct {
	revokeRepo  *repositories.TokenRevocationRepository
	attemptRepo *repositories.LoginAttemptRepository
	logger      *slog.Logger
	interval    time.Duration
	stopCh      chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	revokeRepo *repositories.TokenRevocationRepository,
	attemptRepo *repositories.LoginAttemptRepository,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		revokeRepo:  revokeRepo,
		attemptRepo: attemptRepo,
		logger:      logger,
		interval:    interval,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup removes expired rows from the database
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tokensDeleted, err := cm.revokeRepo.CleanupExpiredTokens(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to cleanup expired revoked tokens", slog.Any("error", err))
	} else if tokensDeleted > 0 {
		cm.logger.Info("expired revoked token cleanup completed", slog.Int64("rows_deleted", tokensDeleted))
	}

	attemptsDeleted, err := cm.attemptRepo.DeleteExpiredAttempts(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to cleanup expired login attempts", slog.Any("error", err))
	} else if attemptsDeleted > 0 {
		cm.logger.Info("login attempt retention cleanup completed", slog.Int64("rows_deleted", attemptsDeleted))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
