package worker

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chatbook/internal/database"
	"chatbook/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func testBooking(id string) *models.Booking {
	start := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)
	return &models.Booking{
		ID:            id,
		BotID:         "salon",
		CustomerName:  "tester",
		CustomerEmail: "tester@example.com",
		ServiceKey:    "cut",
		ServiceName:   "Hair Cut",
		CalendarID:    "cal-1",
		Start:         start,
		End:           start.Add(time.Hour),
		Timezone:      "America/New_York",
		Status:        models.StatusActive,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
}

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, nil)

	booking := testBooking("b-1")

	ctx := context.Background()
	if err := worker.EnqueueTask(ctx, TaskUpsert, booking.ID, booking, ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != "completed" {
		t.Fatalf("expected status=completed, got %s", status)
	}
	if retryCount != 0 {
		t.Fatalf("expected retry_count=0, got %d", retryCount)
	}
	if nextRetry.Valid {
		t.Fatalf("expected next_retry_at NULL on success")
	}
	if sheets.upsertCalls != 1 {
		t.Fatalf("expected upsert call, got %d", sheets.upsertCalls)
	}
	if sheets.lastBooking == nil || sheets.lastBooking.ServiceName != "Hair Cut" {
		t.Fatalf("expected booking to round-trip through payload, got %+v", sheets.lastBooking)
	}
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("boom")}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second}, nil)

	booking := testBooking("b-2")

	ctx := context.Background()
	if err := worker.EnqueueTask(ctx, TaskUpsert, booking.ID, booking, ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != "retry" {
		t.Fatalf("expected status=retry, got %s", status)
	}
	if retryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", retryCount)
	}
	if !nextRetry.Valid || nextRetry.Time.Before(time.Now()) {
		t.Fatalf("expected next_retry_at in future, got %v", nextRetry)
	}

	pending, err := db.GetPendingSyncTasks(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected task to wait for its retry time, got %d pending", len(pending))
	}
}

func TestProcessTaskFail(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("fatal")}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{MaxRetries: 1}, nil)

	booking := testBooking("b-3")

	ctx := context.Background()
	if err := worker.EnqueueTask(ctx, TaskUpsert, booking.ID, booking, ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, _ := worker.tryLocalQueue()
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != "failed" {
		t.Fatalf("expected status=failed, got %s", status)
	}
}

func TestProcessTaskBadPayload(t *testing.T) {
	db := newTestDB(t)
	worker := NewSheetsWorker(db, &fakeSheets{}, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	task := models.SyncTask{TaskType: TaskUpsert, BookingID: "b-4", Payload: "{broken"}
	if err := db.CreateSyncTask(ctx, &task); err != nil {
		t.Fatalf("create: %v", err)
	}
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != "failed" {
		t.Fatalf("expected status=failed, got %s", status)
	}
}

func TestProcessTaskRetryUsesLedgerState(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second}, nil)
	ctx := context.Background()

	booking := testBooking("")
	if err := db.CreateBooking(ctx, booking); err != nil {
		t.Fatalf("create booking: %v", err)
	}
	if err := worker.EnqueueTask(ctx, TaskUpsert, booking.ID, booking, ""); err != nil {
		t.Fatalf("enqueue create: %v", err)
	}
	created, _ := worker.tryLocalQueue()
	worker.processTask(ctx, &created)

	// Reschedule mirrors fail once and wait for their retry.
	booking.Start = booking.Start.Add(2 * time.Hour)
	booking.End = booking.End.Add(2 * time.Hour)
	if err := db.RescheduleBookingWithVersion(ctx, booking); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if err := worker.EnqueueTask(ctx, TaskUpsert, booking.ID, booking, ""); err != nil {
		t.Fatalf("enqueue reschedule: %v", err)
	}
	rescheduled, _ := worker.tryLocalQueue()
	sheets.failUpserts = 1
	worker.processTask(ctx, &rescheduled)
	if status, _, _ := loadTaskStatus(t, db, rescheduled.ID); status != "retry" {
		t.Fatalf("expected reschedule task in retry, got %s", status)
	}

	if err := db.CancelBookingWithVersion(ctx, booking.ID, booking.Version); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := worker.EnqueueTask(ctx, TaskUpdateStatus, booking.ID, nil, models.StatusCancelled); err != nil {
		t.Fatalf("enqueue cancel: %v", err)
	}
	cancelled, _ := worker.tryLocalQueue()
	worker.processTask(ctx, &cancelled)
	if got := sheets.rows[booking.ID]; got != models.StatusCancelled {
		t.Fatalf("expected CANCELLED after cancel, got %q", got)
	}

	worker.processTask(ctx, &rescheduled)

	if got := sheets.rows[booking.ID]; got != models.StatusCancelled {
		t.Fatalf("retried upsert regressed row to %q", got)
	}
	if !sheets.lastBooking.Start.Equal(booking.Start) {
		t.Fatalf("expected rescheduled start %s, got %s", booking.Start, sheets.lastBooking.Start)
	}
	if status, _, _ := loadTaskStatus(t, db, rescheduled.ID); status != "completed" {
		t.Fatalf("expected retried task completed, got %s", status)
	}
}

func TestSheetsWorker_HandleSheetTask(t *testing.T) {
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(nil, sheets, nil, RetryPolicy{MaxRetries: 3}, nil)

	ctx := context.Background()

	t.Run("Upsert", func(t *testing.T) {
		err := worker.handleSheetTask(ctx, TaskUpsert, sheetTaskPayload{Booking: testBooking("b-1")})
		if err != nil {
			t.Fatalf("handle: %v", err)
		}
		if sheets.upsertCalls != 1 {
			t.Fatalf("expected 1 upsert call, got %d", sheets.upsertCalls)
		}
	})

	t.Run("UpsertWithoutBooking", func(t *testing.T) {
		if err := worker.handleSheetTask(ctx, TaskUpsert, sheetTaskPayload{BookingID: "b-1"}); err == nil {
			t.Fatalf("expected error for missing booking")
		}
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		err := worker.handleSheetTask(ctx, TaskUpdateStatus, sheetTaskPayload{BookingID: "b-1", Status: models.StatusCancelled})
		if err != nil {
			t.Fatalf("handle: %v", err)
		}
		if sheets.statusCalls != 1 || sheets.lastStatus != models.StatusCancelled {
			t.Fatalf("expected 1 status call with CANCELLED, got %d %q", sheets.statusCalls, sheets.lastStatus)
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		if err := worker.handleSheetTask(ctx, "delete", sheetTaskPayload{BookingID: "b-1"}); err == nil {
			t.Fatalf("expected error for unknown task type")
		}
	})
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	d1 := policy.NextDelay(1)
	d2 := policy.NextDelay(2)
	d3 := policy.NextDelay(5)

	if d1 != time.Second {
		t.Fatalf("attempt1 expected 1s, got %s", d1)
	}
	if d2 != 2*time.Second {
		t.Fatalf("attempt2 expected 2s, got %s", d2)
	}
	if d3 != 5*time.Second {
		t.Fatalf("attempt5 expected capped 5s, got %s", d3)
	}
	if d := policy.NextDelay(200); d != 5*time.Second {
		t.Fatalf("overflowing attempt expected capped 5s, got %s", d)
	}

	def := DefaultRetryPolicy()
	if def.Exhausted(4) || !def.Exhausted(5) {
		t.Fatalf("expected default policy to allow 5 attempts")
	}
}

func TestSheetsWorker_EnqueueTask(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, nil)

	ctx := context.Background()
	booking := testBooking("b-1")

	t.Run("ValidTask", func(t *testing.T) {
		err := worker.EnqueueTask(ctx, TaskUpsert, "", booking, "")
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		task, ok := worker.tryLocalQueue()
		if !ok || task.BookingID != "b-1" {
			t.Fatalf("expected queued task for b-1, got %+v", task)
		}
	})

	t.Run("InvalidTaskType", func(t *testing.T) {
		err := worker.EnqueueTask(ctx, "", "b-1", booking, "")
		if err == nil {
			t.Fatalf("expected error for empty task type")
		}
	})

	t.Run("InvalidBookingID", func(t *testing.T) {
		err := worker.EnqueueTask(ctx, TaskUpsert, "", nil, "")
		if err == nil {
			t.Fatalf("expected error for missing booking id")
		}
	})
}

func TestSheetsWorker_Redis(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer s.Close()
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("quota exceeded")}
	worker := NewSheetsWorker(db, sheets, client, RetryPolicy{MaxRetries: 1}, nil)
	ctx := context.Background()

	if err := worker.EnqueueTask(ctx, TaskUpdateStatus, "b-9", nil, models.StatusCancelled); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, ok := worker.tryLocalQueue(); ok {
		t.Fatalf("expected task to go to redis, not memory")
	}

	task, ok := worker.tryRedis(ctx)
	if !ok {
		t.Fatalf("expected task from redis")
	}
	if task.TaskType != TaskUpdateStatus || task.BookingID != "b-9" {
		t.Fatalf("unexpected task %+v", task)
	}

	worker.processTask(ctx, &task)

	dead, err := s.List("sheets:deadletter")
	if err != nil {
		t.Fatalf("deadletter list: %v", err)
	}
	if len(dead) != 1 {
		t.Fatalf("expected 1 deadletter entry, got %d", len(dead))
	}
	var deadTask models.SyncTask
	if err := json.Unmarshal([]byte(dead[0]), &deadTask); err != nil || deadTask.BookingID != "b-9" {
		t.Fatalf("unexpected deadletter entry %s (%v)", dead[0], err)
	}
}

func TestSheetsWorker_StartDrainsQueue(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{done: make(chan struct{}, 1)}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, nil)
	worker.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(stopped)
	}()

	if err := worker.EnqueueTask(ctx, TaskUpsert, "b-5", testBooking("b-5"), ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case <-sheets.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not process task")
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop")
	}
}

func TestSheetsWorker_ReportFailed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	worker := NewSheetsWorker(db, &fakeSheets{}, nil, RetryPolicy{}, &logger)

	if n := worker.reportFailed(ctx); n != 0 {
		t.Fatalf("expected no failed tasks, got %d", n)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no log output, got %s", buf.String())
	}

	task := models.SyncTask{TaskType: TaskUpsert, BookingID: "b-lost", Payload: "{}", Status: "failed"}
	if err := db.CreateSyncTask(ctx, &task); err != nil {
		t.Fatalf("create: %v", err)
	}
	if n := worker.reportFailed(ctx); n != 1 {
		t.Fatalf("expected 1 failed task, got %d", n)
	}
	if !strings.Contains(buf.String(), "b-lost") {
		t.Fatalf("expected booking id in log, got %s", buf.String())
	}
}

func TestSheetsWorker_DecodePayload(t *testing.T) {
	worker := NewSheetsWorker(nil, nil, nil, RetryPolicy{}, nil)

	t.Run("ValidPayload", func(t *testing.T) {
		payload := `{"booking_id":"b-123","status":"CANCELLED"}`
		decoded, err := worker.decodePayload(payload)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if decoded.BookingID != "b-123" || decoded.Status != "CANCELLED" {
			t.Fatalf("unexpected decoded payload: %+v", decoded)
		}
	})

	t.Run("InvalidPayload", func(t *testing.T) {
		payload := `invalid json`
		_, err := worker.decodePayload(payload)
		if err == nil {
			t.Fatalf("expected error for invalid json")
		}
	})
}

// Helpers

type fakeSheets struct {
	err         error
	failUpserts int
	upsertCalls int
	statusCalls int
	lastBooking *models.Booking
	lastStatus  string
	rows        map[string]string
	done        chan struct{}
}

func (f *fakeSheets) UpsertBooking(ctx context.Context, b *models.Booking) error {
	f.upsertCalls++
	f.lastBooking = b
	if f.done != nil {
		select {
		case f.done <- struct{}{}:
		default:
		}
	}
	if f.failUpserts > 0 {
		f.failUpserts--
		return errors.New("sheets: 503 backend unavailable")
	}
	if f.err == nil {
		f.setRow(b.ID, b.Status)
	}
	return f.err
}

func (f *fakeSheets) UpdateBookingStatus(ctx context.Context, id string, status string) error {
	f.statusCalls++
	f.lastStatus = status
	if f.err == nil {
		f.setRow(id, status)
	}
	return f.err
}

func (f *fakeSheets) setRow(id, status string) {
	if f.rows == nil {
		f.rows = make(map[string]string)
	}
	f.rows[id] = status
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.db")
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(path, &logger)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count, next_retry_at FROM sync_queue WHERE id = ?`, id)
	if err := row.Scan(&status, &retryCount, &nextRetry); err != nil {
		t.Fatalf("scan task: %v", err)
	}
	return status, retryCount, nextRetry
}
