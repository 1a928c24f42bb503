package database

import (
	"context"
	"fmt"
	"time"

	"chatbook/internal/models"
)

// Journal mirror task states. A retry row is due again at next_retry_at.
const (
	SyncPending   = "pending"
	SyncRetry     = "retry"
	SyncCompleted = "completed"
	SyncFailed    = "failed"
)

const syncTaskColumns = `id, task_type, booking_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at`

// CreateSyncTask appends a task. A blank status means pending.
func (db *DB) CreateSyncTask(ctx context.Context, task *models.SyncTask) error {
	if task.Status == "" {
		task.Status = SyncPending
	}
	task.CreatedAt = time.Now().UTC()

	row := db.QueryRowContext(ctx,
		`INSERT INTO sync_queue (task_type, booking_id, payload, status, retry_count, last_error, created_at, next_retry_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		task.TaskType, task.BookingID, task.Payload, task.Status,
		task.RetryCount, task.LastError, task.CreatedAt, utcPtr(task.NextRetryAt),
	)
	if err := row.Scan(&task.ID); err != nil {
		return fmt.Errorf("enqueue sync task for %s: %w", task.BookingID, err)
	}
	return nil
}

// GetPendingSyncTasks returns due pending and retry tasks, oldest first.
func (db *DB) GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error) {
	return db.querySyncTasks(ctx,
		`SELECT `+syncTaskColumns+` FROM sync_queue
         WHERE status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)
         ORDER BY created_at, id LIMIT ?`,
		SyncPending, SyncRetry, time.Now().UTC(), limit)
}

// ListFailedSyncTasks returns the most recent tasks that gave up, newest first.
func (db *DB) ListFailedSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error) {
	return db.querySyncTasks(ctx,
		`SELECT `+syncTaskColumns+` FROM sync_queue
         WHERE status = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		SyncFailed, limit)
}

// UpdateSyncTaskStatus records one attempt. Moving to retry bumps retry_count;
// a terminal state stamps processed_at.
func (db *DB) UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	_, err := db.ExecContext(ctx,
		`UPDATE sync_queue SET
             status = ?,
             last_error = ?,
             next_retry_at = ?,
             retry_count = retry_count + CASE WHEN ? = ? THEN 1 ELSE 0 END,
             processed_at = CASE WHEN ? IN (?, ?) THEN ? ELSE processed_at END
         WHERE id = ?`,
		status, errMsg, utcPtr(nextRetryAt),
		status, SyncRetry,
		status, SyncCompleted, SyncFailed, time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update sync task %d to %s: %w", id, status, err)
	}
	return nil
}

func (db *DB) querySyncTasks(ctx context.Context, query string, args ...interface{}) ([]models.SyncTask, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sync tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.SyncTask
	for rows.Next() {
		var t models.SyncTask
		if err := rows.Scan(&t.ID, &t.TaskType, &t.BookingID, &t.Payload, &t.Status,
			&t.RetryCount, &t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt); err != nil {
			return nil, fmt.Errorf("scan sync task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
