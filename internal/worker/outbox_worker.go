package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"celestia/internal/domain"
	"celestia/internal/metrics"
	"celestia/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const defaultQueueKey = "celestia:outbox"

// OutboxWorker delivers the side effects committed with booking changes: the
// spreadsheet mirror and staff assignment notices. Tasks reach it through
// Redis, an in-memory channel, or by polling sync_queue, so a lost wake-up
// only delays delivery.
type OutboxWorker struct {
	repo          domain.Repository
	sheets        domain.SheetsWriter
	notifier      domain.AssignmentNotifier
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	queueKey      string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
	now           func() time.Time
}

type Option func(*OutboxWorker)

// WithRedis routes wake-ups through a Redis list under key.
func WithRedis(client *redis.Client, key string) Option {
	return func(w *OutboxWorker) {
		w.redis = client
		if key != "" {
			w.queueKey = key
			w.deadLetterKey = key + ":deadletter"
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(w *OutboxWorker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// NewOutboxWorker builds a worker. A nil sheets writer or notifier turns the
// matching tasks into no-ops.
func NewOutboxWorker(
	repo domain.Repository,
	sheets domain.SheetsWriter,
	notifier domain.AssignmentNotifier,
	retry RetryPolicy,
	logger *zerolog.Logger,
	opts ...Option,
) *OutboxWorker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	w := &OutboxWorker{
		repo:          repo,
		sheets:        sheets,
		notifier:      notifier,
		retryPolicy:   retry.withDefaults(),
		queue:         make(chan models.SyncTask, 128),
		queueKey:      defaultQueueKey,
		deadLetterKey: defaultQueueKey + ":deadletter",
		pollInterval:  5 * time.Second,
		batchSize:     20,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Notify wakes the worker for tasks that were just committed. It never blocks.
func (w *OutboxWorker) Notify(ctx context.Context, tasks []models.SyncTask) {
	for _, task := range tasks {
		if w.redis != nil {
			if err := w.pushRedis(ctx, w.queueKey, task); err != nil {
				w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("redis push failed, fallback to memory queue")
			} else {
				continue
			}
		}

		select {
		case w.queue <- task:
		default:
			w.logger.Warn().Int64("task_id", task.ID).Msg("in-memory queue full, task left to polling")
		}
	}
}

// Run processes tasks until ctx is done.
func (w *OutboxWorker) Run(ctx context.Context) {
	w.logger.Info().Msg("outbox worker started")
	defer w.logger.Info().Msg("outbox worker stopped")

	if failed, err := w.repo.GetFailedSyncTasks(ctx); err == nil && len(failed) > 0 {
		w.logger.Warn().Int("count", len(failed)).Msg("outbox has failed tasks awaiting review")
	}

	for ctx.Err() == nil {
		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.repo.GetPendingSyncTasks(ctx, w.batchSize)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error().Err(err).Msg("fetch pending tasks")
			}
			w.sleep(ctx)
			continue
		}
		if len(tasks) == 0 {
			w.sleep(ctx)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *OutboxWorker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (w *OutboxWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *OutboxWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.queueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("redis BRPOP error")
		}
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

// processTask runs one task. Queue entries may be stale, so the stored row is
// authoritative: finished tasks and retries not yet due are skipped.
func (w *OutboxWorker) processTask(ctx context.Context, queued *models.SyncTask) {
	task, err := w.repo.GetSyncTask(ctx, queued.ID)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", queued.ID).Msg("load task")
		return
	}
	switch task.Status {
	case models.TaskStatusCompleted, models.TaskStatusFailed:
		return
	}
	if task.NextRetryAt != nil && task.NextRetryAt.After(w.now()) {
		return
	}

	if err := w.handle(ctx, task); err != nil {
		var perm *permanentError
		if errors.As(err, &perm) {
			w.failTask(ctx, task, err)
			return
		}
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.repo.UpdateSyncTaskStatus(ctx, task.ID, models.TaskStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark completed")
		return
	}
	metrics.IncOutboxTask(task.TaskType, models.TaskStatusCompleted)
}

// permanentError marks a task that cannot succeed on retry.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

func (w *OutboxWorker) handle(ctx context.Context, task *models.SyncTask) error {
	switch task.TaskType {
	case models.TaskMirrorBooking:
		var booking models.Booking
		if err := json.Unmarshal([]byte(task.Payload), &booking); err != nil {
			return &permanentError{fmt.Errorf("decode payload: %w", err)}
		}
		if w.sheets == nil {
			return nil
		}
		return w.sheets.UpsertBooking(ctx, &booking)
	case models.TaskNotifyAssignment:
		var notice models.AssignmentNotice
		if err := json.Unmarshal([]byte(task.Payload), &notice); err != nil {
			return &permanentError{fmt.Errorf("decode payload: %w", err)}
		}
		if w.notifier == nil {
			return nil
		}
		return w.notifier.NotifyAssignment(ctx, notice)
	default:
		return &permanentError{fmt.Errorf("unknown task type: %s", task.TaskType)}
	}
}

func (w *OutboxWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	next := w.now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.repo.UpdateSyncTaskStatus(ctx, task.ID, models.TaskStatusRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
		return
	}
	metrics.IncOutboxTask(task.TaskType, models.TaskStatusRetry)
	w.logger.Warn().
		Err(cause).
		Int64("task_id", task.ID).
		Str("task_type", task.TaskType).
		Int("attempt", attempt).
		Time("next_retry_at", next).
		Msg("outbox task failed, will retry")
}

func (w *OutboxWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	if err := w.repo.UpdateSyncTaskStatus(ctx, task.ID, models.TaskStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
	}
	metrics.IncOutboxTask(task.TaskType, models.TaskStatusFailed)
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("task_type", task.TaskType).Msg("outbox task moved to dead letter")

	if w.redis != nil {
		if err := w.pushRedis(ctx, w.deadLetterKey, *task); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
		}
	}
}

func (w *OutboxWorker) pushRedis(ctx context.Context, key string, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}
