package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"celestia/internal/domain"
	"celestia/internal/models"
)

const syncTaskColumns = `id, task_type, booking_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at`

// CreateSyncTask records an outbox task. Called inside a booking transaction,
// the task commits or rolls back with the change that produced it.
func (s *Store) CreateSyncTask(ctx context.Context, task *models.SyncTask) error {
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	ts := now()
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO sync_queue (task_type, booking_id, payload, status, retry_count, last_error, created_at, next_retry_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.TaskType, task.BookingID, task.Payload, task.Status, task.RetryCount, task.LastError, ts, task.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.CreatedAt = ts
	return nil
}

func (s *Store) GetSyncTask(ctx context.Context, id int64) (*models.SyncTask, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+syncTaskColumns+` FROM sync_queue WHERE id = ?`, id)
	var t models.SyncTask
	err := row.Scan(&t.ID, &t.TaskType, &t.BookingID, &t.Payload, &t.Status, &t.RetryCount, &t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sync task %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync task: %w", err)
	}
	return &t, nil
}

// GetPendingSyncTasks returns runnable tasks, oldest first.
func (s *Store) GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error) {
	return s.scanSyncTasks(ctx,
		`SELECT `+syncTaskColumns+` FROM sync_queue
         WHERE status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)
         ORDER BY created_at ASC, id ASC LIMIT ?`,
		models.TaskStatusPending, models.TaskStatusRetry, now(), limit,
	)
}

func (s *Store) GetFailedSyncTasks(ctx context.Context) ([]models.SyncTask, error) {
	return s.scanSyncTasks(ctx,
		`SELECT `+syncTaskColumns+` FROM sync_queue WHERE status = ? ORDER BY created_at DESC, id DESC`,
		models.TaskStatusFailed,
	)
}

func (s *Store) UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var lastErr *string
	if errMsg != "" {
		lastErr = &errMsg
	}
	if nextRetryAt != nil {
		utc := nextRetryAt.UTC()
		nextRetryAt = &utc
	}

	var query string
	var args []any
	switch status {
	case models.TaskStatusRetry:
		query = `UPDATE sync_queue SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []any{status, lastErr, nextRetryAt, id}
	case models.TaskStatusCompleted, models.TaskStatusFailed:
		query = `UPDATE sync_queue SET status = ?, last_error = ?, next_retry_at = NULL, processed_at = ? WHERE id = ?`
		args = []any{status, lastErr, now(), id}
	default:
		query = `UPDATE sync_queue SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []any{status, lastErr, nextRetryAt, id}
	}

	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update sync task status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("sync task %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) scanSyncTasks(ctx context.Context, query string, args ...any) ([]models.SyncTask, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.SyncTask
	for rows.Next() {
		var t models.SyncTask
		if err := rows.Scan(&t.ID, &t.TaskType, &t.BookingID, &t.Payload, &t.Status, &t.RetryCount, &t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
