package tasks

import (
	"fmt"

	"authgate/internal/utils/logger"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
)

// Scheduler handles periodic task scheduling
type Scheduler struct {
	scheduler *asynq.Scheduler
	logger    *logger.Logger
}

// NewScheduler creates a new task scheduler
func NewScheduler(redisAddr, username, password string, db int, logger *logger.Logger) *Scheduler {
	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{
			Addr:     redisAddr,
			Username: username,
			Password: password,
			DB:       db,
		},
		&asynq.SchedulerOpts{},
	)

	return &Scheduler{
		scheduler: scheduler,
		logger:    logger,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	if err := s.registerTasks(); err != nil {
		return fmt.Errorf("failed to register tasks: %w", err)
	}

	s.logger.Info("starting task scheduler")
	return s.scheduler.Run()
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.scheduler.Shutdown()
	s.logger.Info("task scheduler stopped")
}

// registerTasks registers all periodic tasks
func (s *Scheduler) registerTasks() error {
	// Expire lapsed grants every minute so revocation lag stays within one
	// scheduler tick plus the closure cache TTL.
	if err := s.RegisterCustomTask("* * * * *", TaskTypeGrantsExpire, nil,
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(RetryDefault),
		asynq.Timeout(TimeoutShort),
	); err != nil {
		return err
	}

	// Sweep expired sessions hourly.
	if err := s.RegisterCustomTask("0 * * * *", TaskTypeSessionsCleanup, nil,
		asynq.Queue(QueueLow),
		asynq.MaxRetry(RetryMin),
		asynq.Timeout(TimeoutMedium),
	); err != nil {
		return err
	}

	s.logger.Info("registered all periodic tasks")
	return nil
}

// RegisterCustomTask registers a custom periodic task. The cron spec is
// validated before registration so a bad expression fails at startup instead
// of silently never firing.
func (s *Scheduler) RegisterCustomTask(spec string, taskType string, payload []byte, opts ...asynq.Option) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q for task %s: %w", spec, taskType, err)
	}

	entryID, err := s.scheduler.Register(spec, asynq.NewTask(taskType, payload, opts...))
	if err != nil {
		return fmt.Errorf("failed to register custom task: %w", err)
	}

	s.logger.Info("registered custom task %s %s %s", taskType, spec, entryID)
	return nil
}
