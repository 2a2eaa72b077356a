package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"authgate/internal/utils/logger"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// TaskClient handles task enqueuing with improved error handling and context support
type TaskClient struct {
	client       *asynq.Client
	logger       *logger.Logger
	redisOptions *redis.Options
	redisClient  *redis.Client
}

func (c *TaskClient) GetClient() *asynq.Client {
	return c.client
}

func (c *TaskClient) GetRedisClient() *redis.Client {
	return c.redisClient
}

// NewTaskClient creates a new TaskClient with the given Redis configuration
func NewTaskClient(redisAddr, username, password string, db int) *TaskClient {
	redisOpt := asynq.RedisClientOpt{
		Addr:     redisAddr,
		Username: username,
		Password: password,
		DB:       db,
	}

	redisClient := redis.NewClient(
		&redis.Options{
			Addr:     redisAddr,
			Username: username,
			Password: password,
			DB:       db,
		},
	)

	return &TaskClient{
		client: asynq.NewClient(redisOpt),
		redisOptions: &redis.Options{
			Addr:     redisAddr,
			Username: username,
			Password: password,
			DB:       db,
		},
		redisClient: redisClient,
		logger:      logger.New("TASKS"),
	}
}

// ClosureWarmPayload identifies the user whose closure should be re-resolved.
type ClosureWarmPayload struct {
	UserID     string `json:"userId"`
	TenantSlug string `json:"tenantSlug"`
}

// EnqueueClosureWarm schedules a background re-resolution of a user's
// permission closure, typically after their grants changed.
func (c *TaskClient) EnqueueClosureWarm(ctx context.Context, userID, tenantSlug string) error {
	payload, err := json.Marshal(ClosureWarmPayload{UserID: userID, TenantSlug: tenantSlug})
	if err != nil {
		return fmt.Errorf("failed to marshal closure warm payload: %w", err)
	}

	task := asynq.NewTask(TaskTypeClosureWarm, payload,
		asynq.Queue(QueueLow),
		asynq.MaxRetry(RetryMin),
		asynq.Timeout(TimeoutShort),
	)

	if _, err := c.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue closure warm for %s: %w", userID, err)
	}

	c.logger.Debug("enqueued closure warm for user %s", userID)
	return nil
}

// Close closes the underlying asynq client
func (c *TaskClient) Close() error {
	return c.client.Close()
}
