package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"authgate/internal/models"
	"authgate/internal/permissions"
	"authgate/internal/services"
	"authgate/internal/tasks/rate"
	"authgate/internal/utils/logger"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

// TaskHandler handles task processing with improved error handling and logging
type TaskHandler struct {
	db          *gorm.DB
	logger      *logger.Logger
	resolver    *permissions.Resolver
	assignments *services.AssignmentService
	warmLimiter *rate.QueueRateLimiter
}

// NewTaskHandler creates a new TaskHandler. The warm limiter caps how many
// closure re-resolutions one user can trigger per minute, so a burst of grant
// changes cannot hammer the database.
func NewTaskHandler(db *gorm.DB, resolver *permissions.Resolver, assignments *services.AssignmentService, taskClient *TaskClient) *TaskHandler {
	return &TaskHandler{
		db:          db,
		logger:      logger.New("task_handler"),
		resolver:    resolver,
		assignments: assignments,
		warmLimiter: rate.NewQueueRateLimiter(taskClient.GetRedisClient(), rate.QueueConfig{
			Name: QueueLow,
			RateLimit: rate.RateLimit{
				Window:  time.Minute,
				MaxJobs: 10,
			},
		}),
	}
}

// HandleGrantsExpire soft-revokes every grant past its expiry. Scheduled
// periodically; the assignment service also drops the affected users' cached
// closures.
func (h *TaskHandler) HandleGrantsExpire(ctx context.Context, t *asynq.Task) error {
	count, err := h.assignments.ExpireGrants(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("failed to expire grants: %w", err)
	}
	if count > 0 {
		h.logger.Info("expired %d grants", count)
	}
	return nil
}

// HandleSessionsCleanup hard-deletes sessions whose refresh window has lapsed.
func (h *TaskHandler) HandleSessionsCleanup(ctx context.Context, t *asynq.Task) error {
	result := h.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now()).
		Delete(&models.AuthSession{})
	if result.Error != nil {
		return fmt.Errorf("failed to clean up sessions: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		h.logger.Info("deleted %d expired sessions", result.RowsAffected)
	}
	return nil
}

// HandleClosureWarm re-resolves one user's permission closure so the cache is
// hot before their next request. Rate limited per user; over-limit warms are
// skipped, not retried, since the next request resolves on demand anyway.
func (h *TaskHandler) HandleClosureWarm(ctx context.Context, t *asynq.Task) error {
	var payload ClosureWarmPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal closure warm payload: %w", err)
	}

	allowed, err := h.warmLimiter.Allow(ctx, payload.UserID)
	if err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}
	if !allowed {
		h.logger.Debug("closure warm for user %s skipped by rate limit", payload.UserID)
		return nil
	}

	slug := payload.TenantSlug
	if slug == "" {
		var user models.UserAccount
		if err := h.db.WithContext(ctx).Where("id = ?", payload.UserID).Preload("Tenant").First(&user).Error; err != nil {
			return fmt.Errorf("failed to load user %s: %w", payload.UserID, err)
		}
		if user.Tenant != nil {
			slug = user.Tenant.Slug
		}
	}

	if _, err := h.resolver.Resolve(ctx, payload.UserID, slug); err != nil {
		return fmt.Errorf("failed to warm closure for %s: %w", payload.UserID, err)
	}
	return nil
}
