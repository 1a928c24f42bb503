package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chatbook/internal/domain"
	"chatbook/internal/metrics"
	"chatbook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskUpsert       = "upsert"
	TaskUpdateStatus = "update_status"
)

const (
	statusPending   = "pending"
	statusRetry     = "retry"
	statusCompleted = "completed"
	statusFailed    = "failed"
)

const failedReportLimit = 50

// sheetTaskPayload is persisted in SyncTask.Payload as JSON.
type sheetTaskPayload struct {
	BookingID string          `json:"booking_id"`
	Booking   *models.Booking `json:"booking,omitempty"`
	Status    string          `json:"status,omitempty"`
}

// TaskStore is the durable sync_queue plus read access to the ledger.
type TaskStore interface {
	GetBooking(ctx context.Context, botID, id string) (*models.Booking, error)
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	ListFailedSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// SheetsWorker consumes sync_queue tasks and applies them to the booking
// journal sheet. It only mirrors; the ledger stays authoritative.
type SheetsWorker struct {
	db            TaskStore
	sheets        domain.SheetsWriter
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

var _ domain.SyncWorker = (*SheetsWorker)(nil)

// NewSheetsWorker builds a worker with sane defaults.
func NewSheetsWorker(db TaskStore, sheets domain.SheetsWriter, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *SheetsWorker {
	def := DefaultRetryPolicy()
	if retry.MaxRetries == 0 {
		retry.MaxRetries = def.MaxRetries
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = def.InitialDelay
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = def.MaxDelay
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = def.BackoffFactor
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &SheetsWorker{
		db:            db,
		sheets:        sheets,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.SyncTask, models.WorkerQueueSize),
		redisQueueKey: "sheets:queue",
		deadLetterKey: "sheets:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logger,
	}
}

// EnqueueTask records the task in sync_queue and hands it to redis or the
// in-memory queue. A task neither queue accepts is picked up by polling.
func (w *SheetsWorker) EnqueueTask(ctx context.Context, taskType string, bookingID string, booking *models.Booking, status string) error {
	task, err := newSyncTask(taskType, bookingID, booking, status)
	if err != nil {
		return err
	}
	if err := w.db.CreateSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}
	w.dispatch(ctx, task)
	return nil
}

func newSyncTask(taskType, bookingID string, booking *models.Booking, status string) (models.SyncTask, error) {
	if taskType == "" {
		return models.SyncTask{}, errors.New("task type is required")
	}
	if bookingID == "" && booking != nil {
		bookingID = booking.ID
	}
	if bookingID == "" {
		return models.SyncTask{}, errors.New("booking id is required")
	}
	raw, err := json.Marshal(sheetTaskPayload{BookingID: bookingID, Booking: booking, Status: status})
	if err != nil {
		return models.SyncTask{}, fmt.Errorf("encode payload: %w", err)
	}
	return models.SyncTask{
		TaskType:  taskType,
		BookingID: bookingID,
		Payload:   string(raw),
		Status:    statusPending,
	}, nil
}

func (w *SheetsWorker) dispatch(ctx context.Context, task models.SyncTask) {
	log := w.taskLogger(&task)
	if w.redis != nil {
		err := w.pushRedis(ctx, w.redisQueueKey, task)
		if err == nil {
			return
		}
		log.Warn().Err(err).Msg("sheets_worker: redis push failed, using memory queue")
	}
	select {
	case w.queue <- task:
	default:
		log.Warn().Msg("sheets_worker: memory queue full, task left to polling")
	}
}

// Start runs until ctx is done.
func (w *SheetsWorker) Start(ctx context.Context) {
	w.logger.Info().
		Dur("poll_interval", w.pollInterval).
		Bool("redis", w.redis != nil).
		Msg("sheets_worker: started")
	defer w.logger.Info().Msg("sheets_worker: stopped")

	w.reportFailed(ctx)
	for ctx.Err() == nil {
		if w.drain(ctx) == 0 {
			w.sleep(ctx)
		}
	}
}

// reportFailed logs tasks that ran out of retries before this start. They
// stay in sync_queue and the dead-letter list until someone replays them.
func (w *SheetsWorker) reportFailed(ctx context.Context) int {
	failed, err := w.db.ListFailedSyncTasks(ctx, failedReportLimit)
	if err != nil {
		w.logger.Warn().Err(err).Msg("sheets_worker: list failed tasks")
		return 0
	}
	if len(failed) == 0 {
		return 0
	}
	ids := make([]string, 0, len(failed))
	for _, t := range failed {
		ids = append(ids, t.BookingID)
	}
	w.logger.Warn().
		Int("count", len(failed)).
		Strs("booking_ids", ids).
		Msg("sheets_worker: journal rows out of sync")
	return len(failed)
}

// drain handles one queued task if there is one, otherwise a batch of due
// rows from sync_queue. It returns the number of tasks handled.
func (w *SheetsWorker) drain(ctx context.Context) int {
	if t, ok := w.tryLocalQueue(); ok {
		w.processTask(ctx, &t)
		return 1
	}
	if t, ok := w.tryRedis(ctx); ok {
		w.processTask(ctx, &t)
		return 1
	}

	due, err := w.db.GetPendingSyncTasks(ctx, w.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("sheets_worker: fetch pending")
		}
		return 0
	}
	for i := range due {
		if ctx.Err() != nil {
			return i
		}
		w.processTask(ctx, &due[i])
	}
	return len(due)
}

func (w *SheetsWorker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (w *SheetsWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *SheetsWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	switch {
	case err == nil && len(res) == 2:
	case err == nil, errors.Is(err, redis.Nil), ctx.Err() != nil:
		return models.SyncTask{}, false
	default:
		w.logger.Error().Err(err).Msg("sheets_worker: redis BRPOP")
		return models.SyncTask{}, false
	}

	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("sheets_worker: decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *SheetsWorker) processTask(ctx context.Context, task *models.SyncTask) {
	payload, err := w.decodePayload(task.Payload)
	if err != nil {
		w.settle(ctx, task, fmt.Errorf("decode payload: %w", err), true)
		return
	}
	w.settle(ctx, task, w.handleSheetTask(ctx, task.TaskType, payload), false)
}

func (w *SheetsWorker) handleSheetTask(ctx context.Context, taskType string, payload sheetTaskPayload) error {
	switch taskType {
	case TaskUpsert:
		if payload.Booking == nil {
			return errors.New("booking payload missing")
		}
		current, err := w.currentBooking(ctx, payload.Booking)
		if err != nil {
			return err
		}
		return w.sheets.UpsertBooking(ctx, current)
	case TaskUpdateStatus:
		if payload.BookingID == "" || payload.Status == "" {
			return errors.New("booking id or status missing")
		}
		return w.sheets.UpdateBookingStatus(ctx, payload.BookingID, payload.Status)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

// currentBooking rereads the row from the ledger so a delayed upsert never
// writes back an older snapshot over a later status change. The queued copy
// is used only when the ledger no longer has the row.
func (w *SheetsWorker) currentBooking(ctx context.Context, queued *models.Booking) (*models.Booking, error) {
	if w.db == nil {
		return queued, nil
	}
	current, err := w.db.GetBooking(ctx, queued.BotID, queued.ID)
	switch {
	case errors.Is(err, domain.ErrBookingNotFound):
		return queued, nil
	case err != nil:
		return nil, fmt.Errorf("reload booking %s: %w", queued.ID, err)
	}
	return current, nil
}

// settle records the outcome of one attempt. Permanent errors and exhausted
// retries go to the dead-letter list.
func (w *SheetsWorker) settle(ctx context.Context, task *models.SyncTask, cause error, permanent bool) {
	log := w.taskLogger(task)
	attempt := task.RetryCount + 1

	outcome, lastErr := statusCompleted, ""
	var nextAt *time.Time
	switch {
	case cause == nil:
	case !permanent && !w.retryPolicy.Exhausted(attempt):
		delay := w.retryPolicy.NextDelay(attempt)
		at := time.Now().Add(delay)
		outcome, lastErr, nextAt = statusRetry, cause.Error(), &at
		log.Warn().Err(cause).Int("attempt", attempt).Dur("delay", delay).Msg("sheets_worker: task will be retried")
	default:
		outcome, lastErr = statusFailed, cause.Error()
		log.Error().Err(cause).Int("attempt", attempt).Msg("sheets_worker: task failed permanently")
	}

	metrics.IncJournalTask(task.TaskType, outcome)
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, outcome, lastErr, nextAt); err != nil {
		log.Error().Err(err).Str("status", outcome).Msg("sheets_worker: record task status")
	}
	if outcome == statusFailed {
		w.pushDeadLetter(ctx, task)
	}
}

func (w *SheetsWorker) decodePayload(raw string) (sheetTaskPayload, error) {
	var payload sheetTaskPayload
	err := json.Unmarshal([]byte(raw), &payload)
	return payload, err
}

func (w *SheetsWorker) taskLogger(task *models.SyncTask) zerolog.Logger {
	return w.logger.With().
		Int64("task_id", task.ID).
		Str("booking_id", task.BookingID).
		Str("task_type", task.TaskType).
		Logger()
}

func (w *SheetsWorker) pushRedis(ctx context.Context, key string, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}

func (w *SheetsWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask) {
	if w.redis == nil {
		return
	}
	if err := w.pushRedis(ctx, w.deadLetterKey, *task); err != nil {
		log := w.taskLogger(task)
		log.Error().Err(err).Msg("sheets_worker: dead-letter push")
	}
}
