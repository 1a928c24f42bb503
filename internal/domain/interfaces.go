package domain

import (
	"context"
	"time"

	"chatbook/internal/models"
)

// BookingRepository is the internal booking ledger.
type BookingRepository interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, botID, id string) (*models.Booking, error)
	CountOverlapping(ctx context.Context, botID, calendarID string, start, end time.Time, excludeID string) (int, error)
	ListActiveInRange(ctx context.Context, botID, calendarID string, from, to time.Time) ([]*models.Booking, error)
	FindActiveByEmailNear(ctx context.Context, botID, email string, around time.Time, tolerance time.Duration) (*models.Booking, error)
	RescheduleBookingWithVersion(ctx context.Context, booking *models.Booking) error
	CancelBookingWithVersion(ctx context.Context, id string, version int64) error
	GetBookingsByDateRange(ctx context.Context, botID string, from, to time.Time) ([]*models.Booking, error)
}

// CalendarProvider is the external calendar. Each method is a single attempt.
type CalendarProvider interface {
	CreateEvent(ctx context.Context, calendarID string, input models.CalendarEventInput) (*models.CalendarEvent, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, input models.CalendarEventInput) (*models.CalendarEvent, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
	CountEventsInRange(ctx context.Context, calendarID string, timeMin, timeMax time.Time, maxResults int, excludeEventID string) (int, error)
}

// CapacityOracle is the bounded view of the calendar used by the booking path.
type CapacityOracle interface {
	CalendarProvider
	// HasCapacity is true when fewer than capacity events overlap the range.
	HasCapacity(ctx context.Context, calendarID string, start, end time.Time, capacity int, excludeEventID string) (bool, error)
}

type TenantProvider interface {
	Get(ctx context.Context, botID string) (*models.Tenant, error)
}

// Notifier delivers customer emails. It never fails the caller; the outcome
// is reported instead.
type Notifier interface {
	Send(ctx context.Context, kind, to, subject, text, html string, attachments ...models.Attachment) models.NotificationOutcome
}

type SlotSuggester interface {
	Suggest(ctx context.Context, req SuggestRequest) []string
}

// SuggestRequest describes a rejected request to search around.
type SuggestRequest struct {
	BotID            string
	RequestedStart   time.Time
	Now              time.Time
	Policy           models.BookingPolicy
	Service          models.ServiceDefinition
	ExcludeBookingID string
	ExcludeEventID   string
}

type DraftRepository interface {
	GetDraft(ctx context.Context, botID, conversationID string) (*models.Draft, error)
	SetDraft(ctx context.Context, draft *models.Draft) error
	ClearDraft(ctx context.Context, botID, conversationID string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type DraftManager interface {
	GetDraft(ctx context.Context, botID, conversationID string) (*models.Draft, error)
	SaveDraft(ctx context.Context, botID, conversationID, intent string, fields map[string]string) (*models.Draft, error)
	ClearDraft(ctx context.Context, botID, conversationID string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, bookingID, status string) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, bookingID string, booking *models.Booking, status string) error
}

type BookingService interface {
	Create(ctx context.Context, req models.CreateRequest) (*models.BookingResult, error)
	Update(ctx context.Context, req models.UpdateRequest) (*models.BookingResult, error)
	Cancel(ctx context.Context, req models.CancelRequest) (*models.BookingResult, error)
}
